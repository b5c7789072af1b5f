package app

import (
	"context"

	"notes/internal/domain"
)

// NoteService encapsulates note use cases on behalf of an authenticated user.
type NoteService struct {
	repo domain.NoteRepository
}

// NewNoteService creates a NoteService backed by the given repository.
func NewNoteService(repo domain.NoteRepository) *NoteService {
	return &NoteService{repo: repo}
}

// Create validates the fields and stores a new note owned by userID.
func (s *NoteService) Create(ctx context.Context, userID int64, title, description string) (*domain.Note, error) {
	n, err := domain.ValidateNewNote(domain.NewNote{Title: title, Description: description, UserID: userID})
	if err != nil {
		return nil, err
	}
	return s.repo.CreateNote(ctx, n)
}

// Get returns a note the caller owns. A note owned by someone else yields
// domain.ErrNoteForbidden, a missing one domain.ErrNoteNotFound.
//
// Fetch-then-compare is only sound because nothing is written; mutations go
// through the repository's combined id+owner statements instead.
func (s *NoteService) Get(ctx context.Context, id, userID int64) (*domain.Note, error) {
	note, err := s.repo.GetNoteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if note.UserID != userID {
		return nil, domain.ErrNoteForbidden
	}
	return note, nil
}

// List returns the caller's notes, newest first.
func (s *NoteService) List(ctx context.Context, userID int64, limit int) ([]domain.Note, error) {
	return s.repo.ListNotesByUser(ctx, userID, domain.ClampListLimit(limit))
}

// Update applies a validated patch to a note the caller owns.
func (s *NoteService) Update(ctx context.Context, id, userID int64, patch domain.NotePatch) (*domain.Note, error) {
	p, err := domain.ValidatePatch(patch)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateNote(ctx, id, userID, p)
}

// Delete removes a note the caller owns. It returns domain.ErrNoteNotFound
// when nothing matched.
func (s *NoteService) Delete(ctx context.Context, id, userID int64) error {
	deleted, err := s.repo.DeleteNote(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNoteNotFound
	}
	return nil
}

// ToggleFavorite flips the favorite flag of a note the caller owns.
func (s *NoteService) ToggleFavorite(ctx context.Context, id, userID int64) (*domain.Note, error) {
	return s.repo.ToggleFavorite(ctx, id, userID)
}
