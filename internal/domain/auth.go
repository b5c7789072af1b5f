// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"time"

	"notes/internal/errs"
)

var (
	// ErrUserNotFound is returned by user lookups that match no row.
	ErrUserNotFound = errs.New(errs.NotFound, "user not found")
	// ErrUsernameTaken is returned by Create when the username already exists.
	ErrUsernameTaken = errs.New(errs.FailedPrecondition, "username already taken")
)

// User represents an account that owns notes.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserRepository defines the port for user persistence operations.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	Count(ctx context.Context) (int, error)
}
