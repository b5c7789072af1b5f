package adapthttp

import (
	"errors"
	"net/http"

	"notes/internal/auth"
	"notes/internal/obs"
)

// requireUser runs the auth gate. Browsers are redirected to the login
// page; JSON clients get a 401 carrying the same redirect target.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.gate.DeriveUserID(r)
		if err != nil {
			var failure *auth.AuthFailure
			if !errors.As(err, &failure) {
				writeError(w, r, err)
				return
			}
			obs.From(r.Context()).Debug("auth_required", "path", r.URL.Path)
			if wantsJSON(r) {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error":      "unauthenticated",
					"redirectTo": failure.RedirectTo,
				})
				return
			}
			http.Redirect(w, r, failure.RedirectTo, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}
