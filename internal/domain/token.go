package domain

import (
	"errors"
	"time"
)

var (
	ErrMalformedToken   = errors.New("token is malformed")
	ErrTokenInvalid     = errors.New("token is invalid or expired")
	ErrTokenConflict    = errors.New("token identifier already exists")
	ErrTokenNotFound    = errors.New("token not found")
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// Scope partitions tokens by purpose. A token only ever parses within the
// scope it was generated for.
type Scope string

const (
	ScopeLogin Scope = "login"
	ScopeAuth  Scope = "auth"
)

// Owner is a polymorphic reference to the account a token was issued for.
// The token core carries it back to the caller and never dereferences it.
type Owner struct {
	Type string
	ID   string
}

func (o Owner) IsZero() bool {
	return o.Type == "" && o.ID == ""
}

type TokenRecord struct {
	ID         string
	Owner      Owner
	Identifier string
	Verifier   string // hex sha256 of the secret half, never the secret itself
	Scope      Scope
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the record can no longer authenticate at now.
func (r *TokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
