package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/passwordless/internal/session"
	"github.com/ErlanBelekov/passwordless/internal/transport/http/handler"
	"github.com/ErlanBelekov/passwordless/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, authHandler *handler.AuthHandler, sessions *session.CookieAuth) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		// request_id is added by ctxlog.ContextHandler.
		WithRequestID: false,
		// The verify query string carries a live login token.
		Filters: []sloggin.Filter{sloggin.IgnorePath("/auth/verify")},
	}))
	r.Use(middleware.Metrics())

	requireSession := middleware.RequireSession(sessions, logger)

	auth := r.Group("/auth")
	auth.POST("/login", authHandler.RequestLogin)
	auth.GET("/verify", authHandler.Verify)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", requireSession, authHandler.Me)

	return r
}
