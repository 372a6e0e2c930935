// Package session implements cookie-carried sessions on top of "auth"-scoped
// tokens. The cookie holds the token string; the token store is the only
// server-side state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
)

const CookieName = "auth_token"

// CookieJar reads request cookies and queues response cookies.
// *gin.Context satisfies it.
type CookieJar interface {
	Cookie(name string) (string, error)
	SetCookie(name, value string, maxAge int, path, domain string, secure, httpOnly bool)
}

type tokenService interface {
	Generate(ctx context.Context, owner domain.Owner, scope domain.Scope, ttl time.Duration) (string, error)
	Parse(ctx context.Context, token string, invalidate bool, scope domain.Scope) (domain.Owner, error)
}

// ErrNoSession is returned by Owner when the request carries no auth cookie.
var ErrNoSession = errors.New("no token provided")

type CookieAuth struct {
	tokens tokenService
	secure bool
	logger *slog.Logger
}

func NewCookieAuth(tokens tokenService, secure bool, logger *slog.Logger) *CookieAuth {
	return &CookieAuth{
		tokens: tokens,
		secure: secure,
		logger: logger.With("component", "cookie_auth"),
	}
}

// Login mints an auth token for owner and queues it as the session cookie.
func (a *CookieAuth) Login(ctx context.Context, jar CookieJar, owner domain.Owner, ttl time.Duration) error {
	token, err := a.tokens.Generate(ctx, owner, domain.ScopeAuth, ttl)
	if err != nil {
		return fmt.Errorf("session login: %w", err)
	}
	jar.SetCookie(CookieName, token, int(ttl/time.Second), "/", "", a.secure, true)
	return nil
}

// Owner resolves the session cookie without consuming it. Invalid and
// expired sessions fail with domain.ErrTokenInvalid.
func (a *CookieAuth) Owner(ctx context.Context, jar CookieJar) (domain.Owner, error) {
	token, err := jar.Cookie(CookieName)
	if err != nil || token == "" {
		return domain.Owner{}, ErrNoSession
	}
	owner, err := a.tokens.Parse(ctx, token, false, domain.ScopeAuth)
	if errors.Is(err, domain.ErrMalformedToken) {
		return domain.Owner{}, domain.ErrTokenInvalid
	}
	return owner, err
}

func (a *CookieAuth) Check(ctx context.Context, jar CookieJar) bool {
	_, err := a.Owner(ctx, jar)
	return err == nil
}

// Logout destroys the backing token and clears the cookie. Parse errors are
// ignored: the session is torn down either way.
func (a *CookieAuth) Logout(ctx context.Context, jar CookieJar) {
	token, err := jar.Cookie(CookieName)
	if err != nil || token == "" {
		return
	}
	if _, err := a.tokens.Parse(ctx, token, true, domain.ScopeAuth); err != nil {
		a.logger.DebugContext(ctx, "logout with unusable token", "error", err)
	}
	jar.SetCookie(CookieName, "", -1, "/", "", a.secure, true)
}

// Status maps an Owner error to the HTTP status a guard should answer with.
func Status(err error) int {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return http.StatusInternalServerError
	}
	return http.StatusUnauthorized
}
