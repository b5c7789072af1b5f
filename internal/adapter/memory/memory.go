// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"notes/internal/domain"
)

// DB implements an in-memory database storage. A single mutex makes every
// operation atomic, mirroring a single SQL statement.
type DB struct {
	mu    sync.Mutex
	notes map[int64]*domain.Note
	users []*domain.User

	noteIDCounter int64
	userIDCounter int64

	now func() time.Time
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		notes: make(map[int64]*domain.Note),
		now:   time.Now,
	}
}

// Ensure interfaces are met.
var _ domain.NoteRepository = (*DB)(nil)
var _ domain.UserRepository = (*DB)(nil)

// --- NoteRepository ---

// CreateNote stores a new note.
func (db *DB) CreateNote(ctx context.Context, n domain.NewNote) (*domain.Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.userExists(n.UserID) {
		return nil, fmt.Errorf("memory: create note: user %d does not exist", n.UserID)
	}

	db.noteIDCounter++
	note := &domain.Note{
		ID:          db.noteIDCounter,
		UserID:      n.UserID,
		Title:       n.Title,
		Description: n.Description,
		CreatedAt:   db.now().UTC(),
	}
	db.notes[note.ID] = note
	out := *note
	return &out, nil
}

// GetNoteByID returns the note with the given id regardless of owner.
func (db *DB) GetNoteByID(ctx context.Context, id int64) (*domain.Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	note, ok := db.notes[id]
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	out := *note
	return &out, nil
}

// ListNotesByUser lists a user's notes, newest first.
func (db *DB) ListNotesByUser(ctx context.Context, userID int64, limit int) ([]domain.Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	limit = domain.ClampListLimit(limit)
	out := make([]domain.Note, 0)
	for _, n := range db.notes {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// owned returns the note only when both id and owner match.
func (db *DB) owned(id, userID int64) (*domain.Note, bool) {
	note, ok := db.notes[id]
	if !ok || note.UserID != userID {
		return nil, false
	}
	return note, true
}

// UpdateNote applies the patch to a note matching id and owner.
func (db *DB) UpdateNote(ctx context.Context, id, userID int64, patch domain.NotePatch) (*domain.Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	note, ok := db.owned(id, userID)
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	if patch.Title != nil {
		note.Title = *patch.Title
	}
	if patch.Description != nil {
		note.Description = *patch.Description
	}
	if patch.IsFavorite != nil {
		note.IsFavorite = *patch.IsFavorite
	}
	out := *note
	return &out, nil
}

// DeleteNote removes a note matching id and owner.
func (db *DB) DeleteNote(ctx context.Context, id, userID int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.owned(id, userID); !ok {
		return false, nil
	}
	delete(db.notes, id)
	return true, nil
}

// ToggleFavorite flips the favorite flag of a note matching id and owner.
func (db *DB) ToggleFavorite(ctx context.Context, id, userID int64) (*domain.Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	note, ok := db.owned(id, userID)
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	note.IsFavorite = !note.IsFavorite
	out := *note
	return &out, nil
}

// --- UserRepository ---

func (db *DB) userExists(id int64) bool {
	for _, u := range db.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

// GetByUsername retrieves a user by username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// Create creates a new user. Usernames are unique.
func (db *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.Username == username {
			return nil, domain.ErrUsernameTaken
		}
	}
	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    db.now().UTC(),
	}
	db.users = append(db.users, u)
	out := *u
	return &out, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}
