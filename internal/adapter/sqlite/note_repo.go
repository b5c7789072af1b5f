package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notes/internal/domain"
)

var _ domain.NoteRepository = (*DB)(nil)

const noteColumns = "id, user_id, title, description, is_favorite, created_at"

// scanNote reads one note row. An empty RETURNING result maps onto
// ErrNoteNotFound; other failures are wrapped with op.
func scanNote(op string, row interface{ Scan(...any) error }) (*domain.Note, error) {
	var (
		n  domain.Note
		ns int64
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Description, &n.IsFavorite, &ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	n.CreatedAt = fromStamp(ns)
	return &n, nil
}

// CreateNote inserts a note and returns the stored row.
func (d *DB) CreateNote(ctx context.Context, n domain.NewNote) (*domain.Note, error) {
	return scanNote("create note", d.sql.QueryRowContext(ctx,
		"INSERT INTO notes (user_id, title, description, created_at) VALUES (?, ?, ?, ?) RETURNING "+noteColumns,
		n.UserID, n.Title, n.Description, d.stamp(),
	))
}

// GetNoteByID returns the note with the given id regardless of owner.
func (d *DB) GetNoteByID(ctx context.Context, id int64) (*domain.Note, error) {
	return scanNote("get note", d.sql.QueryRowContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE id = ?", id,
	))
}

// ListNotesByUser lists a user's notes, newest first.
func (d *DB) ListNotesByUser(ctx context.Context, userID int64, limit int) ([]domain.Note, error) {
	limit = domain.ClampListLimit(limit)
	rows, err := d.sql.QueryContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list notes: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Note, 0)
	for rows.Next() {
		n, err := scanNote("list notes", rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// UpdateNote applies the patch in a single statement filtered by id and owner.
func (d *DB) UpdateNote(ctx context.Context, id, userID int64, patch domain.NotePatch) (*domain.Note, error) {
	return scanNote("update note", d.sql.QueryRowContext(ctx,
		`UPDATE notes SET
			title = COALESCE(?, title),
			description = COALESCE(?, description),
			is_favorite = COALESCE(?, is_favorite)
		WHERE id = ? AND user_id = ?
		RETURNING `+noteColumns,
		patch.Title, patch.Description, patch.IsFavorite, id, userID,
	))
}

// DeleteNote removes a note matching id and owner.
func (d *DB) DeleteNote(ctx context.Context, id, userID int64) (bool, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM notes WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete note: %w", err)
	}
	return n > 0, nil
}

// ToggleFavorite flips is_favorite in place for a note matching id and owner.
func (d *DB) ToggleFavorite(ctx context.Context, id, userID int64) (*domain.Note, error) {
	return scanNote("toggle favorite", d.sql.QueryRowContext(ctx,
		"UPDATE notes SET is_favorite = NOT is_favorite WHERE id = ? AND user_id = ? RETURNING "+noteColumns,
		id, userID,
	))
}
