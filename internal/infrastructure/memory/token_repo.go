// Package memory holds process-local stores used for ENV=local and tests.
// Data does not survive a restart and is not shared between instances.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
	"github.com/google/uuid"
)

type tokenKey struct {
	identifier string
	scope      domain.Scope
}

type TokenRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.TokenRecord
	byIdent map[tokenKey]string
	now     func() time.Time
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		byID:    make(map[string]*domain.TokenRecord),
		byIdent: make(map[tokenKey]string),
		now:     time.Now,
	}
}

func (r *TokenRepository) Insert(_ context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tokenKey{identifier: rec.Identifier, scope: rec.Scope}
	if _, ok := r.byIdent[key]; ok {
		return nil, domain.ErrTokenConflict
	}

	now := r.now()
	stored := *rec
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.byID[stored.ID] = &stored
	r.byIdent[key] = stored.ID

	out := stored
	return &out, nil
}

func (r *TokenRepository) FindByIdentifierAndScope(_ context.Context, identifier string, scope domain.Scope) (*domain.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byIdent[tokenKey{identifier: identifier, scope: scope}]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *TokenRepository) DeleteByID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	r.remove(rec)
	return true, nil
}

func (r *TokenRepository) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for _, rec := range r.byID {
		if rec.ExpiresAt.Before(cutoff) {
			r.remove(rec)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (r *TokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *TokenRepository) Ping(_ context.Context) error { return nil }

// caller holds r.mu
func (r *TokenRepository) remove(rec *domain.TokenRecord) {
	delete(r.byID, rec.ID)
	delete(r.byIdent, tokenKey{identifier: rec.Identifier, scope: rec.Scope})
}
