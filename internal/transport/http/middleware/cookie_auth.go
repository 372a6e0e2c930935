package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/passwordless/internal/domain"
	"github.com/ErlanBelekov/passwordless/internal/session"
	"github.com/gin-gonic/gin"
)

const (
	errUnauthorized   = "Unauthorized. "
	errInternalServer = "Internal server error"

	// OwnerKey holds the domain.Owner of an authenticated request.
	OwnerKey = "owner"
)

type sessionReader interface {
	Owner(ctx context.Context, jar session.CookieJar) (domain.Owner, error)
}

// RequireSession rejects requests without a valid session cookie and sets
// OwnerKey and "userID" in the gin context for the rest.
func RequireSession(sessions sessionReader, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := sessions.Owner(c.Request.Context(), c)
		if err != nil {
			status := session.Status(err)
			if status == http.StatusInternalServerError {
				logger.ErrorContext(c.Request.Context(), "session lookup", "error", err)
				abort(c, status, errInternalServer)
				return
			}
			abort(c, status, errUnauthorized+reason(err))
			return
		}

		c.Set(OwnerKey, owner)
		c.Set("userID", owner.ID)
		c.Next()
	}
}

func reason(err error) string {
	if errors.Is(err, session.ErrNoSession) {
		return "No token provided"
	}
	return "Token is invalid or expired"
}

func abort(c *gin.Context, status int, message string) {
	if WantsJSON(c) {
		c.AbortWithStatusJSON(status, gin.H{"message": message})
		return
	}
	c.Abort()
	c.String(status, message)
}

// WantsJSON reports whether the caller asked for a JSON response.
func WantsJSON(c *gin.Context) bool {
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "/json") || strings.Contains(accept, "+json")
}
