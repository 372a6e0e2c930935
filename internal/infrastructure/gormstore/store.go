// Package gormstore implements the token and user stores on gorm, for
// deployments backed by MySQL instead of Postgres.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to MySQL and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&gormUser{}, &gormToken{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Insert(ctx context.Context, rec *domain.TokenRecord) (*domain.TokenRecord, error) {
	row := fromDomainToken(rec)
	row.ID = uuid.NewString()

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicate(err) {
			return nil, domain.ErrTokenConflict
		}
		return nil, storeErr("insert token", err)
	}
	return toDomainToken(row), nil
}

func (r *TokenRepository) FindByIdentifierAndScope(ctx context.Context, identifier string, scope domain.Scope) (*domain.TokenRecord, error) {
	var row gormToken
	err := r.db.WithContext(ctx).
		Where("identifier = ? AND scope = ?", identifier, string(scope)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, storeErr("find token", err)
	}
	return toDomainToken(&row), nil
}

func (r *TokenRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&gormToken{}, "id = ?", id)
	if res.Error != nil {
		return false, storeErr("delete token", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *TokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res := r.db.WithContext(ctx).Delete(&gormToken{}, "expires_at < ?", cutoff)
	if res.Error != nil {
		return 0, storeErr("delete expired tokens", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Ping satisfies health.Pinger.
func (r *TokenRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row gormUser
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return toDomainUser(&row), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var row gormUser
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return toDomainUser(&row), nil
}

func (r *UserRepository) Create(ctx context.Context, email string) (*domain.User, error) {
	row := &gormUser{ID: uuid.NewString(), Email: email}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicate(err) {
			return r.FindByEmail(ctx, email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return toDomainUser(row), nil
}

func (r *UserRepository) Activate(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&gormUser{}).Where("id = ?", id).Update("is_activated", true)
	if res.Error != nil {
		return fmt.Errorf("activate user: %w", res.Error)
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
