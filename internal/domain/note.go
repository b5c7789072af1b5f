package domain

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"notes/internal/errs"
)

const (
	// MaxTitleLength is the maximum number of characters in a note title.
	MaxTitleLength = 255
	// MaxDescriptionLength is the maximum number of characters in a note description.
	MaxDescriptionLength = 10000
	// DefaultListLimit caps ListNotesByUser when no explicit limit is given.
	DefaultListLimit = 1000
)

// ErrNoteNotFound is returned when no note matches the id, or when the
// combined id+owner filter of a mutation matched zero rows.
var ErrNoteNotFound = errs.New(errs.NotFound, "note not found")

// ErrNoteForbidden is returned on the read path when a note exists but is
// owned by another user.
var ErrNoteForbidden = errs.New(errs.PermissionDenied, "you don't have permission to view this note")

// Note is a short text note owned by exactly one user.
type Note struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsFavorite  bool      `json:"isFavorite"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewNote is the insert payload for a note.
type NewNote struct {
	Title       string
	Description string
	UserID      int64
}

// NotePatch lists the fields an update may change. Nil fields are left as-is.
type NotePatch struct {
	Title       *string
	Description *string
	IsFavorite  *bool
}

// Empty reports whether the patch changes nothing.
func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.IsFavorite == nil
}

// NoteRepository is the port for note persistence.
//
// Every method that takes both id and userID must apply them in one
// statement; implementations never read a row to decide whether to write it.
type NoteRepository interface {
	CreateNote(ctx context.Context, n NewNote) (*Note, error)
	// GetNoteByID is not scoped by owner; callers authorize the result.
	GetNoteByID(ctx context.Context, id int64) (*Note, error)
	ListNotesByUser(ctx context.Context, userID int64, limit int) ([]Note, error)
	UpdateNote(ctx context.Context, id, userID int64, patch NotePatch) (*Note, error)
	DeleteNote(ctx context.Context, id, userID int64) (bool, error)
	ToggleFavorite(ctx context.Context, id, userID int64) (*Note, error)
}

// ClampListLimit maps a requested list size onto (0, DefaultListLimit].
func ClampListLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}

// ValidateNewNote trims the title and checks both fields, returning the
// cleaned payload or an errs.InvalidArgument error with per-field messages.
func ValidateNewNote(n NewNote) (NewNote, error) {
	fields := map[string][]string{}
	n.Title = strings.TrimSpace(n.Title)
	if msg := checkTitle(n.Title); msg != "" {
		fields["title"] = append(fields["title"], msg)
	}
	if msg := checkDescription(n.Description); msg != "" {
		fields["description"] = append(fields["description"], msg)
	}
	if n.UserID <= 0 {
		fields["userId"] = append(fields["userId"], "User ID must be a positive integer")
	}
	if len(fields) > 0 {
		return n, errs.Invalid(fields)
	}
	return n, nil
}

// ValidatePatch applies the same rules as ValidateNewNote to the fields a
// patch sets. An empty patch is rejected.
func ValidatePatch(p NotePatch) (NotePatch, error) {
	if p.Empty() {
		return p, errs.Invalid(map[string][]string{"_": {"At least one field must be provided"}})
	}
	fields := map[string][]string{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
		if msg := checkTitle(title); msg != "" {
			fields["title"] = append(fields["title"], msg)
		}
	}
	if p.Description != nil {
		if msg := checkDescription(*p.Description); msg != "" {
			fields["description"] = append(fields["description"], msg)
		}
	}
	if len(fields) > 0 {
		return p, errs.Invalid(fields)
	}
	return p, nil
}

func checkTitle(title string) string {
	switch {
	case title == "":
		return "Title is required"
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return "Title must be at most 255 characters"
	}
	return ""
}

func checkDescription(description string) string {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "Description must be at most 10000 characters"
	}
	return ""
}
