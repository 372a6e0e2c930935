package gormstore

import (
	"time"

	"github.com/ErlanBelekov/passwordless/internal/domain"
)

type gormToken struct {
	ID         string    `gorm:"primaryKey;size:36"`
	OwnerType  string    `gorm:"size:64;not null"`
	OwnerID    string    `gorm:"size:64;not null"`
	Identifier string    `gorm:"size:64;not null;uniqueIndex:idx_tokens_identifier_scope"`
	Verifier   string    `gorm:"size:64;not null"`
	Scope      string    `gorm:"size:32;not null;uniqueIndex:idx_tokens_identifier_scope"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (gormToken) TableName() string { return "tokens" }

type gormUser struct {
	ID          string `gorm:"primaryKey;size:36"`
	Email       string `gorm:"size:255;not null;uniqueIndex"`
	IsActivated bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (gormUser) TableName() string { return "users" }

func fromDomainToken(t *domain.TokenRecord) *gormToken {
	return &gormToken{
		ID:         t.ID,
		OwnerType:  t.Owner.Type,
		OwnerID:    t.Owner.ID,
		Identifier: t.Identifier,
		Verifier:   t.Verifier,
		Scope:      string(t.Scope),
		ExpiresAt:  t.ExpiresAt,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func toDomainToken(t *gormToken) *domain.TokenRecord {
	return &domain.TokenRecord{
		ID:         t.ID,
		Owner:      domain.Owner{Type: t.OwnerType, ID: t.OwnerID},
		Identifier: t.Identifier,
		Verifier:   t.Verifier,
		Scope:      domain.Scope(t.Scope),
		ExpiresAt:  t.ExpiresAt,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func toDomainUser(u *gormUser) *domain.User {
	return &domain.User{
		ID:          u.ID,
		Email:       u.Email,
		IsActivated: u.IsActivated,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
