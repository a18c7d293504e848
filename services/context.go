package services

import "context"

// SessionCookie reads and writes the session cookie of a single request.
type SessionCookie interface {
	SessionID() string
	SetSessionID(sid string)
	ClearSessionID()
}

// RequestContext carries per-request state into every service call. It is
// built by the HTTP layer and passed explicitly; services never reach for
// request globals.
type RequestContext struct {
	Cookie SessionCookie
	// UserID is the authenticated user, 0 when anonymous.
	UserID   uint
	ClientIP string
}

// Authenticated reports whether the request carries a live session.
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.UserID != 0
}

// discardCookie is used when a RequestContext has no cookie, e.g. in the mail worker.
type discardCookie struct{}

func (discardCookie) SessionID() string   { return "" }
func (discardCookie) SetSessionID(string) {}
func (discardCookie) ClearSessionID()     {}

func cookieOf(rc *RequestContext) SessionCookie {
	if rc.Cookie == nil {
		return discardCookie{}
	}
	return rc.Cookie
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx for resolvers further down the call chain.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext attached to ctx, or an
// anonymous one without a cookie.
func RequestContextFrom(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok && rc != nil {
		return rc
	}
	return &RequestContext{}
}
