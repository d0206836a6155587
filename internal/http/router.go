package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/gideonfinance/gideon-auth/internal/config"
	"github.com/gideonfinance/gideon-auth/internal/http/handler"
	httpmiddleware "github.com/gideonfinance/gideon-auth/internal/http/middleware"
	"github.com/gideonfinance/gideon-auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	authGroup := r.Group("/auth")
	{
		password := authGroup.Group("/password")
		{
			password.POST("/login", authHandler.PasswordLogin)
			password.POST("/register", authHandler.PasswordRegister)
			password.POST("/forgot", authHandler.PasswordForgot)
			password.POST("/reset", authHandler.PasswordReset)
		}

		authGroup.GET("/oauth/start", authHandler.OAuthStart)
		authGroup.GET("/callback", authHandler.Callback)
		authGroup.GET("/me", authMiddleware.ValidateJWT, authHandler.Me)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
