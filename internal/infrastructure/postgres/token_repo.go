package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Insert(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, error) {
	query := `
		INSERT INTO tokens (owner_type, owner_id, identifier, verifier, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, owner_type, owner_id, identifier, verifier, scope,
		          expires_at, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query,
		rec.Owner.Type,
		rec.Owner.ID,
		rec.Identifier,
		rec.Verifier,
		rec.Scope,
		rec.ExpiresAt,
	)

	created, err := scanToken(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrTokenConflict
		}
		return nil, storeErr("insert token", err)
	}
	return created, nil
}

func (r *TokenRepository) FindByIdentifierAndScope(ctx context.Context, identifier string, scope domain.Scope) (*domain.TokenRecord, error) {
	query := `
		SELECT id, owner_type, owner_id, identifier, verifier, scope,
		       expires_at, created_at, updated_at
		FROM tokens
		WHERE identifier = $1 AND scope = $2`

	rec, err := scanToken(r.pool.QueryRow(ctx, query, identifier, scope))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, err
		}
		return nil, storeErr("find token", err)
	}
	return rec, nil
}

// DeleteByID is the single-statement claim: of N concurrent callers only one
// sees a deleted row.
func (r *TokenRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return false, storeErr("delete token", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, storeErr("delete expired tokens", err)
	}
	return int(tag.RowsAffected()), nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.TokenRecord, error) {
	var t domain.TokenRecord
	err := row.Scan(
		&t.ID, &t.Owner.Type, &t.Owner.ID, &t.Identifier, &t.Verifier, &t.Scope,
		&t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	return &t, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
