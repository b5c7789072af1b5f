package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notes/internal/domain"
)

var _ domain.NoteRepository = (*DB)(nil)

const noteColumns = "id, user_id, title, description, is_favorite, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(op string, row scanner) (*domain.Note, error) {
	var n domain.Note
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Description, &n.IsFavorite, &n.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoteNotFound
		}
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return &n, nil
}

// CreateNote inserts a note and returns the stored row.
func (d *DB) CreateNote(ctx context.Context, n domain.NewNote) (*domain.Note, error) {
	return scanNote("create note", d.sql.QueryRowContext(ctx,
		"INSERT INTO notes (user_id, title, description) VALUES ($1, $2, $3) RETURNING "+noteColumns,
		n.UserID, n.Title, n.Description,
	))
}

// GetNoteByID returns the note with the given id regardless of owner.
func (d *DB) GetNoteByID(ctx context.Context, id int64) (*domain.Note, error) {
	return scanNote("get note", d.sql.QueryRowContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE id = $1", id,
	))
}

// ListNotesByUser lists a user's notes, newest first.
func (d *DB) ListNotesByUser(ctx context.Context, userID int64, limit int) ([]domain.Note, error) {
	limit = domain.ClampListLimit(limit)
	rows, err := d.sql.QueryContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2;",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notes: %w", err)
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

// UpdateNote applies the patch in one statement filtered by id and owner.
// Zero matched rows means the note is missing or belongs to someone else.
func (d *DB) UpdateNote(ctx context.Context, id, userID int64, patch domain.NotePatch) (*domain.Note, error) {
	return scanNote("update note", d.sql.QueryRowContext(ctx,
		`UPDATE notes SET
			title = COALESCE($3::varchar, title),
			description = COALESCE($4::text, description),
			is_favorite = COALESCE($5::boolean, is_favorite)
		WHERE id = $1 AND user_id = $2
		RETURNING `+noteColumns,
		id, userID, patch.Title, patch.Description, patch.IsFavorite,
	))
}

// DeleteNote removes a note matching id and owner.
func (d *DB) DeleteNote(ctx context.Context, id, userID int64) (bool, error) {
	var deleted int64
	err := d.sql.QueryRowContext(ctx,
		"DELETE FROM notes WHERE id = $1 AND user_id = $2 RETURNING id;", id, userID,
	).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: delete note: %w", err)
	}
	return true, nil
}

// ToggleFavorite flips is_favorite in place. The negation happens inside
// the UPDATE so concurrent toggles serialize on the row lock.
func (d *DB) ToggleFavorite(ctx context.Context, id, userID int64) (*domain.Note, error) {
	return scanNote("toggle favorite", d.sql.QueryRowContext(ctx,
		"UPDATE notes SET is_favorite = NOT is_favorite WHERE id = $1 AND user_id = $2 RETURNING "+noteColumns,
		id, userID,
	))
}
