package sqlite

import (
	"context"
	"database/sql"
	"errors"

	modsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"notes/internal/domain"
)

var _ domain.UserRepository = (*DB)(nil)

func (d *DB) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	var (
		u  domain.User
		ns int64
	)
	err := d.sql.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE "+where+" = ?", arg,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromStamp(ns)
	return &u, nil
}

// GetByUsername retrieves a user by username.
func (d *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return d.getUser(ctx, "username", username)
}

// GetByID retrieves a user by ID.
func (d *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return d.getUser(ctx, "id", id)
}

// Create creates a new user.
func (d *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	var (
		u  domain.User
		ns int64
	)
	err := d.sql.QueryRowContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?) RETURNING id, username, password_hash, created_at",
		username, passwordHash, d.stamp(),
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &ns)
	if uniqueViolation(err) {
		return nil, domain.ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromStamp(ns)
	return &u, nil
}

func uniqueViolation(err error) bool {
	var se *modsqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// Count returns the total number of users.
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}
