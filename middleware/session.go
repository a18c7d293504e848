package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/gqlbbs/services"
	"github.com/cppla/gqlbbs/utils"
)

// ContextRequestKey stores the *services.RequestContext inside the Gin context.
const ContextRequestKey = "request_context"

// SessionResumer turns a session cookie into an authenticated user.
type SessionResumer interface {
	Resume(ctx context.Context, rc *services.RequestContext)
}

// SessionOptions configures the session cookie.
type SessionOptions struct {
	CookieName string
	Secret     string
	Secure     bool
	MaxAge     time.Duration
}

// cookieSession is the services.SessionCookie of one request. The cookie holds
// a signed token naming the session id.
type cookieSession struct {
	ctx  *gin.Context
	opts SessionOptions
	sid  string
}

func (c *cookieSession) SessionID() string { return c.sid }

func (c *cookieSession) SetSessionID(sid string) {
	token, err := utils.SignSessionID(c.opts.Secret, sid, c.opts.MaxAge)
	if err != nil {
		utils.Sugar.Errorw("sign session cookie failed", "error", err)
		return
	}
	c.sid = sid
	c.ctx.SetSameSite(http.SameSiteLaxMode)
	c.ctx.SetCookie(c.opts.CookieName, token, int(c.opts.MaxAge/time.Second), "/", "", c.opts.Secure, true)
}

func (c *cookieSession) ClearSessionID() {
	c.sid = ""
	c.ctx.SetSameSite(http.SameSiteLaxMode)
	c.ctx.SetCookie(c.opts.CookieName, "", -1, "/", "", c.opts.Secure, true)
}

// Session resolves the session cookie of every request and attaches the
// resulting RequestContext to both the Gin and the request context.
// A missing or forged cookie leaves the request anonymous.
func Session(resumer SessionResumer, opts SessionOptions) gin.HandlerFunc {
	if opts.CookieName == "" {
		opts.CookieName = "qid"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = services.SessionTTL
	}

	return func(ctx *gin.Context) {
		cookie := &cookieSession{ctx: ctx, opts: opts}
		if raw, err := ctx.Cookie(opts.CookieName); err == nil && raw != "" {
			if sid, err := utils.ParseSessionID(opts.Secret, raw); err == nil {
				cookie.sid = sid
			}
		}

		rc := &services.RequestContext{Cookie: cookie, ClientIP: ctx.ClientIP()}
		resumer.Resume(ctx.Request.Context(), rc)

		ctx.Set(ContextRequestKey, rc)
		ctx.Request = ctx.Request.WithContext(services.WithRequestContext(ctx.Request.Context(), rc))
		ctx.Next()
	}
}

// RequestContext returns the RequestContext attached by Session.
func RequestContext(ctx *gin.Context) *services.RequestContext {
	if v, ok := ctx.Get(ContextRequestKey); ok {
		if rc, ok := v.(*services.RequestContext); ok {
			return rc
		}
	}
	return services.RequestContextFrom(ctx.Request.Context())
}
