package adapthttp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/coreos/go-oidc/v3/oidc"

	"notes/internal/app"
	"notes/internal/errs"
	"notes/internal/obs"
)

const oauthStateCookie = "oauth_state"

type credentialsRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if ok, wait := s.loginLimiter.allow(clientIP(r, s.proxies)); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "too many login attempts"})
		return
	}

	var req credentialsRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.authSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			obs.From(r.Context()).Info("login_failed", "ip", clientIP(r, s.proxies))
		}
		writeError(w, r, err)
		return
	}

	if !s.startSession(w, r, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"redirectTo": safeRedirect(req.RedirectTo, s.homePath),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	http.SetCookie(w, s.sessions.Destroy(s.sessions.Read(r)))
	http.Redirect(w, r, s.loginPath, http.StatusFound)
}

func (s *Server) handleSetupUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req credentialsRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.authSvc.CreateInitialUser(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	obs.From(r.Context()).Info("initial_user_created", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

// startSession issues the session cookie. It writes the error response
// itself and reports false when the cookie could not be sealed.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID int64) bool {
	cookie, err := s.sessions.CreateSession(userID)
	if err != nil {
		writeError(w, r, errs.Wrap(errs.Internal, "could not create session", err))
		return false
	}
	http.SetCookie(w, cookie)
	return true
}

// stateCookie carries the SSO state. Setting and clearing must use the same
// attributes or browsers may keep the original.
func (s *Server) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode, // Lax required for cross-site redirect returns
		MaxAge:   maxAge,
	}
}

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if !s.oidc.enabled() {
		http.NotFound(w, r)
		return
	}
	state := generateState()
	http.SetCookie(w, s.stateCookie(state, 300))
	http.Redirect(w, r, s.oidc.OAuth2Config.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if !s.oidc.enabled() {
		http.NotFound(w, r)
		return
	}
	log := obs.From(r.Context()).With("pkg", "http")

	state, err := r.Cookie(oauthStateCookie)
	if err != nil || !app.ConstantTimeCompare(r.URL.Query().Get("state"), state.Value) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid state"})
		return
	}
	http.SetCookie(w, s.stateCookie("", -1))

	token, err := s.oidc.OAuth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		log.Warn("sso_exchange_failed", "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "failed to exchange token"})
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "no id_token"})
		return
	}

	idToken, err := s.oidc.Provider.Verifier(&oidc.Config{ClientID: s.oidc.OAuth2Config.ClientID}).Verify(r.Context(), rawIDToken)
	if err != nil {
		log.Warn("sso_verify_failed", "err", err)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "failed to verify token"})
		return
	}

	var claims struct {
		Email string `json:"email"`
		Sub   string `json:"sub"`
	}
	if err := idToken.Claims(&claims); err != nil {
		writeError(w, r, errs.Wrap(errs.Internal, "failed to parse claims", err))
		return
	}

	username := claims.Email
	if username == "" {
		username = claims.Sub
	}

	user, err := s.authSvc.LoginWithUser(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.startSession(w, r, user.ID) {
		return
	}
	http.Redirect(w, r, s.homePath, http.StatusFound)
}

func generateState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
