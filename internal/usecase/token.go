package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
	"github.com/ErlanBelekov/passwordless/internal/metrics"
	"github.com/ErlanBelekov/passwordless/internal/repository"
)

const (
	identifierBytes = 16
	secretBytes     = 32
	tokenSeparator  = "."
)

var (
	tokenEncoding = base64.RawURLEncoding

	identifierLen = tokenEncoding.EncodedLen(identifierBytes)
	secretLen     = tokenEncoding.EncodedLen(secretBytes)
)

// TokenService mints and redeems scoped, expiring tokens.
// It's safe for concurrent use; exclusivity is delegated to the store.
type TokenService struct {
	repo   repository.TokenRepository
	logger *slog.Logger
	now    func() time.Time
	rand   io.Reader
}

type TokenOption func(*TokenService)

// WithClock overrides time.Now, used by tests to advance time.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) TokenOption {
	return func(s *TokenService) { s.rand = r }
}

func NewTokenService(repo repository.TokenRepository, logger *slog.Logger, opts ...TokenOption) *TokenService {
	s := &TokenService{
		repo:   repo,
		logger: logger.With("component", "token_service"),
		now:    time.Now,
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate stores a new record for owner and returns the distributable token
// string. A single identifier collision is retried once before giving up.
func (s *TokenService) Generate(ctx context.Context, owner domain.Owner, scope domain.Scope, ttl time.Duration) (string, error) {
	if scope == "" {
		return "", errors.New("generate token: empty scope")
	}
	if ttl < 0 {
		return "", errors.New("generate token: negative ttl")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		token, err := s.generate(ctx, owner, scope, ttl)
		if err == nil {
			metrics.TokensIssuedTotal.WithLabelValues(string(scope)).Inc()
			return token, nil
		}
		if !errors.Is(err, domain.ErrTokenConflict) {
			return "", err
		}
		s.logger.WarnContext(ctx, "token identifier collision, regenerating", "scope", scope, "attempt", attempt+1)
		lastErr = err
	}
	return "", fmt.Errorf("generate token: %w", lastErr)
}

func (s *TokenService) generate(ctx context.Context, owner domain.Owner, scope domain.Scope, ttl time.Duration) (string, error) {
	identifier, err := s.randomString(identifierBytes)
	if err != nil {
		return "", fmt.Errorf("generate identifier: %w", err)
	}
	secret, err := s.randomString(secretBytes)
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}

	_, err = s.repo.Insert(ctx, &domain.TokenRecord{
		Owner:      owner,
		Identifier: identifier,
		Verifier:   hashSecret(secret),
		Scope:      scope,
		ExpiresAt:  s.now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return identifier + tokenSeparator + secret, nil
}

// Parse verifies token within scope and returns its owner. Unknown, tampered
// and expired tokens all fail with domain.ErrTokenInvalid. With invalidate
// set, success consumes the record: exactly one concurrent caller wins.
func (s *TokenService) Parse(ctx context.Context, token string, invalidate bool, scope domain.Scope) (domain.Owner, error) {
	owner, reason, err := s.parse(ctx, token, invalidate, scope)
	outcome := "ok"
	if err != nil {
		outcome = reason
		s.logger.DebugContext(ctx, "token rejected", "scope", scope, "reason", reason)
	}
	metrics.TokensParsedTotal.WithLabelValues(string(scope), outcome).Inc()
	return owner, err
}

func (s *TokenService) parse(ctx context.Context, token string, invalidate bool, scope domain.Scope) (domain.Owner, string, error) {
	identifier, secret, ok := splitToken(token)
	if !ok {
		return domain.Owner{}, "malformed", domain.ErrMalformedToken
	}

	rec, err := s.repo.FindByIdentifierAndScope(ctx, identifier, scope)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return domain.Owner{}, "unknown", domain.ErrTokenInvalid
		}
		return domain.Owner{}, "store_error", fmt.Errorf("find token: %w", err)
	}

	presented := hashSecret(secret)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(rec.Verifier)) != 1 {
		return domain.Owner{}, "mismatch", domain.ErrTokenInvalid
	}

	if rec.Expired(s.now()) {
		if _, err := s.repo.DeleteByID(ctx, rec.ID); err != nil {
			s.logger.WarnContext(ctx, "delete expired token", "error", err)
		}
		return domain.Owner{}, "expired", domain.ErrTokenInvalid
	}

	if invalidate {
		deleted, err := s.repo.DeleteByID(ctx, rec.ID)
		if err != nil {
			return domain.Owner{}, "store_error", fmt.Errorf("invalidate token: %w", err)
		}
		if !deleted {
			// Lost the race against another redemption or a sweep.
			return domain.Owner{}, "consumed", domain.ErrTokenInvalid
		}
	}

	return rec.Owner, "", nil
}

// ClearExpired removes every record whose expiry has passed.
func (s *TokenService) ClearExpired(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpiredBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("clear expired tokens: %w", err)
	}
	return n, nil
}

func (s *TokenService) randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", err
	}
	return tokenEncoding.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// splitToken is strict: fixed widths, one separator, valid base64url halves.
func splitToken(token string) (identifier, secret string, ok bool) {
	if len(token) != identifierLen+len(tokenSeparator)+secretLen {
		return "", "", false
	}
	identifier, secret, found := strings.Cut(token, tokenSeparator)
	if !found || len(identifier) != identifierLen || len(secret) != secretLen {
		return "", "", false
	}
	if _, err := tokenEncoding.DecodeString(identifier); err != nil {
		return "", "", false
	}
	if _, err := tokenEncoding.DecodeString(secret); err != nil {
		return "", "", false
	}
	return identifier, secret, true
}
