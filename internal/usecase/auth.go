package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
	"github.com/ErlanBelekov/passwordless/internal/email"
	"github.com/ErlanBelekov/passwordless/internal/repository"
)

const (
	DefaultLoginTTL = 30 * time.Minute
	DefaultAuthTTL  = 15 * time.Minute
)

// tokenIssuer is the subset of TokenService the login flow needs.
type tokenIssuer interface {
	Generate(ctx context.Context, owner domain.Owner, scope domain.Scope, ttl time.Duration) (string, error)
	Parse(ctx context.Context, token string, invalidate bool, scope domain.Scope) (domain.Owner, error)
}

type AuthConfig struct {
	LoginTTL          time.Duration
	AllowRegistration bool
	// VerifyURL is the absolute URL of the verify endpoint; the token is
	// appended as ?token=.
	VerifyURL string
}

type AuthUsecase struct {
	users  repository.UserRepository
	tokens tokenIssuer
	email  email.Sender
	cfg    AuthConfig
	logger *slog.Logger
}

func NewAuthUsecase(users repository.UserRepository, tokens tokenIssuer, emailSender email.Sender, cfg AuthConfig, logger *slog.Logger) *AuthUsecase {
	if cfg.LoginTTL <= 0 {
		cfg.LoginTTL = DefaultLoginTTL
	}
	return &AuthUsecase{
		users:  users,
		tokens: tokens,
		email:  emailSender,
		cfg:    cfg,
		logger: logger.With("component", "auth_usecase"),
	}
}

// RequestLogin emails a sign-in link for emailAddr.
// Returns ErrRegistrationClosed for unknown emails when registration is off.
func (u *AuthUsecase) RequestLogin(ctx context.Context, emailAddr string) error {
	user, link, err := u.issueLogin(ctx, emailAddr)
	if err != nil {
		return err
	}

	body, err := email.RenderLogin(email.LoginData{
		BaseURL:           u.cfg.VerifyURL,
		AuthenticationURL: link,
		ExpiresIn:         email.HumanizeTTL(u.cfg.LoginTTL),
	})
	if err != nil {
		return err
	}
	if err = u.email.Send(ctx, user.Email, email.LoginSubject, body); err != nil {
		return fmt.Errorf("send login email: %w", err)
	}
	return nil
}

// LoginLink mints a login token for emailAddr and returns the sign-in URL
// without sending it.
func (u *AuthUsecase) LoginLink(ctx context.Context, emailAddr string) (string, error) {
	_, link, err := u.issueLogin(ctx, emailAddr)
	return link, err
}

// issueLogin resolves the account for emailAddr, creating it when
// registration is open.
func (u *AuthUsecase) issueLogin(ctx context.Context, emailAddr string) (*domain.User, string, error) {
	user, err := u.users.FindByEmail(ctx, emailAddr)
	if errors.Is(err, domain.ErrUserNotFound) {
		if !u.cfg.AllowRegistration {
			return nil, "", domain.ErrRegistrationClosed
		}
		user, err = u.users.Create(ctx, emailAddr)
	}
	if err != nil {
		return nil, "", fmt.Errorf("resolve user: %w", err)
	}

	token, err := u.tokens.Generate(ctx, user.Owner(), domain.ScopeLogin, u.cfg.LoginTTL)
	if err != nil {
		return nil, "", fmt.Errorf("generate login token: %w", err)
	}
	return user, u.cfg.VerifyURL + "?token=" + token, nil
}

// RedeemLogin consumes a login token and returns its user, activating the
// account on first sign-in. Every token failure is domain.ErrTokenInvalid.
func (u *AuthUsecase) RedeemLogin(ctx context.Context, token string) (*domain.User, error) {
	owner, err := u.tokens.Parse(ctx, token, true, domain.ScopeLogin)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedToken) || errors.Is(err, domain.ErrTokenInvalid) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}

	user, err := u.ownerUser(ctx, owner)
	if err != nil {
		return nil, err
	}

	if !user.IsActivated {
		if err := u.users.Activate(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("activate user: %w", err)
		}
		user.IsActivated = true
		u.logger.InfoContext(ctx, "user activated", "user_id", user.ID)
	}
	return user, nil
}

// User resolves the account behind an authenticated owner.
func (u *AuthUsecase) User(ctx context.Context, owner domain.Owner) (*domain.User, error) {
	return u.ownerUser(ctx, owner)
}

func (u *AuthUsecase) ownerUser(ctx context.Context, owner domain.Owner) (*domain.User, error) {
	if owner.Type != domain.OwnerTypeUser {
		return nil, domain.ErrTokenInvalid
	}
	user, err := u.users.FindByID(ctx, owner.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// account removed after the token was issued
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
