// Package infrastructure selects and opens the configured token and user
// stores.
package infrastructure

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/passwordless/internal/health"
	"github.com/ErlanBelekov/passwordless/internal/infrastructure/gormstore"
	"github.com/ErlanBelekov/passwordless/internal/infrastructure/memory"
	"github.com/ErlanBelekov/passwordless/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/passwordless/internal/repository"
)

const (
	StorePostgres = "postgres"
	StoreMySQL    = "mysql"
	StoreMemory   = "memory"
)

// Stores bundles the repositories of one backend. Close releases its
// connections.
type Stores struct {
	Tokens repository.TokenRepository
	Users  repository.UserRepository
	Pinger health.Pinger
	Close  func()
}

// Open connects to the backend named by kind. dsn is ignored for memory.
func Open(ctx context.Context, kind, dsn string) (*Stores, error) {
	switch kind {
	case StorePostgres:
		pool, err := postgres.NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Tokens: postgres.NewTokenRepository(pool),
			Users:  postgres.NewUserRepository(pool),
			Pinger: pool,
			Close:  pool.Close,
		}, nil

	case StoreMySQL:
		db, err := gormstore.Open(dsn)
		if err != nil {
			return nil, err
		}
		tokens := gormstore.NewTokenRepository(db)
		return &Stores{
			Tokens: tokens,
			Users:  gormstore.NewUserRepository(db),
			Pinger: tokens,
			Close: func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil

	case StoreMemory:
		tokens := memory.NewTokenRepository()
		return &Stores{
			Tokens: tokens,
			Users:  memory.NewUserRepository(),
			Pinger: tokens,
			Close:  func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store %q", kind)
}
