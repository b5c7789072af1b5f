package adapthttp

import (
	"encoding/json"
	"net/http"

	"notes/internal/auth"
	"notes/internal/domain"
	"notes/internal/errs"
)

type noteRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsFavorite  *bool   `json:"isFavorite"`
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listNotes(w, r)
	case http.MethodPost:
		s.createNote(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.getNote(w, r, id)
	case http.MethodPatch:
		s.updateNote(w, r, id)
	case http.MethodDelete:
		s.deleteNote(w, r, id)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.List(r.Context(), auth.UserIDFrom(r.Context()), intQuery(r, "limit", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFrom(r.Context())
	var req noteRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var title string
	if req.Title != nil {
		title = *req.Title
	}

	// The description may be empty but must be submitted.
	if req.Description == nil {
		fields := map[string][]string{"description": {"Description is required"}}
		if _, err := domain.ValidateNewNote(domain.NewNote{Title: title, UserID: userID}); err != nil {
			for k, v := range errs.FieldsOf(err) {
				fields[k] = append(fields[k], v...)
			}
		}
		writeError(w, r, errs.Invalid(fields))
		return
	}

	note, err := s.notes.Create(r.Context(), userID, title, *req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "note": note})
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request, id int64) {
	note, err := s.notes.Get(r.Context(), id, auth.UserIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request, id int64) {
	var req noteRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := s.notes.Update(r.Context(), id, auth.UserIDFrom(r.Context()), domain.NotePatch{
		Title:       req.Title,
		Description: req.Description,
		IsFavorite:  req.IsFavorite,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.notes.Delete(r.Context(), id, auth.UserIDFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleToggleFavorite flips the favorite flag. noteId comes from a JSON
// body or a submitted form.
func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var raw string
	if isJSONRequest(r) {
		var body struct {
			NoteID json.Number `json:"noteId"`
		}
		if err := parseJSON(r, &body); err != nil {
			writeError(w, r, errInvalidNoteID)
			return
		}
		raw = body.NoteID.String()
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		raw = r.FormValue("noteId")
	}

	id, err := parseID(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	note, err := s.notes.ToggleFavorite(r.Context(), id, auth.UserIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "isFavorite": note.IsFavorite})
}
