package domain

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrRegistrationClosed = errors.New("registration is closed")
)

// OwnerTypeUser is the owner discriminator stored on tokens issued to users.
const OwnerTypeUser = "user"

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	IsActivated bool      `json:"is_activated"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u *User) Owner() Owner {
	return Owner{Type: OwnerTypeUser, ID: u.ID}
}
