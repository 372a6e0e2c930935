package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
	"github.com/ErlanBelekov/passwordless/internal/session"
	"github.com/ErlanBelekov/passwordless/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

// RedirectCookieName remembers where to send the user once the emailed link
// is opened.
const RedirectCookieName = "passwordless_redirect"

const redirectCookieMaxAge = 24 * 60 * 60

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	RequestLogin(ctx context.Context, email string) error
	RedeemLogin(ctx context.Context, token string) (*domain.User, error)
	User(ctx context.Context, owner domain.Owner) (*domain.User, error)
}

type sessionManager interface {
	Login(ctx context.Context, jar session.CookieJar, owner domain.Owner, ttl time.Duration) error
	Check(ctx context.Context, jar session.CookieJar) bool
	Logout(ctx context.Context, jar session.CookieJar)
}

type AuthHandlerConfig struct {
	SessionTTL      time.Duration
	DefaultRedirect string
	SecureCookies   bool
}

type AuthHandler struct {
	authUsecase authUsecaser
	sessions    sessionManager
	cfg         AuthHandlerConfig
	logger      *slog.Logger
}

func NewAuthHandler(authUsecase authUsecaser, sessions sessionManager, cfg AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authUsecase: authUsecase,
		sessions:    sessions,
		cfg:         cfg,
		logger:      logger.With("component", "auth_handler"),
	}
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Redirect string `json:"redirect" binding:"omitempty,max=2048"`
}

// POST /auth/login
// Always returns 200 for a valid email to avoid revealing whether it exists.
func (h *AuthHandler) RequestLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Redirect != "" {
		c.SetCookie(RedirectCookieName, req.Redirect, redirectCookieMaxAge, "/", "", h.cfg.SecureCookies, true)
	}

	if err := h.authUsecase.RequestLogin(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, domain.ErrRegistrationClosed) {
			h.logger.InfoContext(c.Request.Context(), "login requested for unknown email")
		} else {
			h.logger.ErrorContext(c.Request.Context(), "request login", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": msgCheckInbox})
}

// GET /auth/verify?token=<token>
// Redeems the emailed token, starts a cookie session and redirects.
func (h *AuthHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()

	if h.sessions.Check(ctx, c) {
		h.finish(c, nil)
		return
	}

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errTokenMissing})
		return
	}

	user, err := h.authUsecase.RedeemLogin(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errTokenInvalid})
			return
		}
		h.logger.ErrorContext(ctx, "redeem login", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	if err := h.sessions.Login(ctx, c, user.Owner(), h.cfg.SessionTTL); err != nil {
		h.logger.ErrorContext(ctx, "start session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	h.finish(c, user)
}

// finish sends the caller to the remembered redirect, then the configured
// default, and otherwise answers with the user.
func (h *AuthHandler) finish(c *gin.Context, user *domain.User) {
	if intended, err := c.Cookie(RedirectCookieName); err == nil && intended != "" {
		c.SetCookie(RedirectCookieName, "", -1, "/", "", h.cfg.SecureCookies, true)
		c.Redirect(http.StatusFound, safeRedirectPath(intended))
		return
	}
	if h.cfg.DefaultRedirect != "" {
		c.Redirect(http.StatusFound, h.cfg.DefaultRedirect)
		return
	}
	if user == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.sessions.Logout(c.Request.Context(), c)
	c.Status(http.StatusNoContent)
}

// GET /auth/me, behind RequireSession.
func (h *AuthHandler) Me(c *gin.Context) {
	owner, ok := c.MustGet(middleware.OwnerKey).(domain.Owner)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	user, err := h.authUsecase.User(c.Request.Context(), owner)
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errTokenInvalid})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "load user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// safeRedirectPath keeps only the path of a (possibly URL-encoded) redirect
// target so a stored cookie can never send the user to another host.
func safeRedirectPath(raw string) string {
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return "/" + strings.TrimLeft(u.Path, "/\\")
}
