package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
)

// TokenRepository is the persistence boundary of the token service.
// No business rules live behind it.
type TokenRepository interface {
	// Insert persists a new record and returns it with ID and timestamps set.
	// Returns domain.ErrTokenConflict if (identifier, scope) is already taken.
	Insert(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, error)

	// FindByIdentifierAndScope returns domain.ErrTokenNotFound when absent.
	FindByIdentifierAndScope(ctx context.Context, identifier string, scope domain.Scope) (*domain.TokenRecord, error)

	// DeleteByID is idempotent. The bool reports whether this call removed the
	// row, which makes it the atomic claim for one-time redemption.
	DeleteByID(ctx context.Context, id string) (bool, error)

	// DeleteExpiredBefore removes every record with expires < cutoff, across scopes.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}
