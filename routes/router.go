package routes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cppla/gqlbbs/config"
	"github.com/cppla/gqlbbs/controllers"
	"github.com/cppla/gqlbbs/graph"
	"github.com/cppla/gqlbbs/metrics"
	"github.com/cppla/gqlbbs/middleware"
	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/services"
	"github.com/cppla/gqlbbs/utils"
)

// AuthAPI is everything the HTTP surface needs from the account service.
type AuthAPI interface {
	graph.Auth
	middleware.SessionResumer
	LoginOAuth(ctx context.Context, rc *services.RequestContext, id services.OAuthIdentity) (*models.User, error)
}

// Dependencies are the services the router wires into handlers.
type Dependencies struct {
	Auth        AuthAPI
	Posts       graph.Posts
	OAuthStates controllers.StateStore
	Metrics     *prometheus.Registry
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Dependencies) (*gin.Engine, error) {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	schema, err := graph.NewSchema(deps.Auth, deps.Posts)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		utils.Sugar.Warnw("gin logger unavailable, using default recovery", "error", err)
		r.Use(gin.Recovery())
	}
	r.Use(metrics.Middleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{cfg.FrontendURL}
	}
	if len(origins) == 1 && origins[0] == "*" {
		// browsers refuse credentialed requests to a wildcard origin
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = origins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Metrics)))
	}
	r.GET("/", func(ctx *gin.Context) {
		ctx.Redirect(http.StatusFound, "/graphql")
	})

	session := middleware.Session(deps.Auth, middleware.SessionOptions{
		CookieName: cfg.CookieName,
		Secret:     cfg.SessionSecret,
		Secure:     cfg.IsProd(),
		MaxAge:     services.SessionTTL,
	})
	limit := middleware.RateLimit(cfg.RateLimitPerMinute)

	graphqlController := controllers.NewGraphQLController(schema)
	gql := r.Group("/graphql", limit, session)
	gql.POST("", graphqlController.Query)
	gql.GET("", graphqlController.Query)

	oauthController := controllers.NewOAuthController(cfg, deps.Auth, deps.OAuthStates)
	oauth := r.Group("/auth/oauth", limit, session)
	oauth.GET("/:provider/login", oauthController.Redirect)
	oauth.GET("/:provider/callback", oauthController.Callback)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r, nil
}
