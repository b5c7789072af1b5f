package adapthttp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	adapthttp "notes/internal/adapter/http"
	"notes/internal/adapter/memory"
	"notes/internal/app"
	"notes/internal/domain"
	"notes/internal/session"
)

type testEnv struct {
	handler  http.Handler
	db       *memory.DB
	sessions *session.Store
	authSvc  *app.AuthService
}

func newTestEnv(t *testing.T, opts ...adapthttp.Option) *testEnv {
	t.Helper()
	return newTestEnvWithNotes(t, nil, opts...)
}

// newTestEnvWithNotes lets a test swap the note repository while users stay
// in the in-memory store.
func newTestEnvWithNotes(t *testing.T, notes domain.NoteRepository, opts ...adapthttp.Option) *testEnv {
	t.Helper()
	db := memory.New()
	if notes == nil {
		notes = db
	}
	sessions, err := session.NewStore(session.Options{Secrets: []string{"handler-test-secret"}})
	require.NoError(t, err)
	authSvc := app.NewAuthService(db).WithCost(bcrypt.MinCost)
	srv := adapthttp.New(app.NewNoteService(notes), authSvc, sessions, opts...)
	return &testEnv{handler: srv.Handler(), db: db, sessions: sessions, authSvc: authSvc}
}

// login creates a user and returns a session cookie for it.
func (e *testEnv) login(t *testing.T, username string) (*http.Cookie, int64) {
	t.Helper()
	user, err := e.db.Create(context.Background(), username, "")
	require.NoError(t, err)
	cookie, err := e.sessions.CreateSession(user.ID)
	require.NoError(t, err)
	return cookie, user.ID
}

func (e *testEnv) do(t *testing.T, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createNote(t *testing.T, e *testEnv, cookie *http.Cookie, title string) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/notes", `{"title":"`+title+`","description":"Milk, eggs"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	note := decode(t, rec)["note"].(map[string]any)
	return int64(note["id"].(float64))
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestNotes_UnauthenticatedRedirects(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/notes/12", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirectTo=%2Fapi%2Fnotes%2F12", rec.Header().Get("Location"))
}

func TestNotes_UnauthenticatedJSON(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unauthenticated", body["error"])
	assert.Equal(t, "/login?redirectTo=%2Fapi%2Fnotes", body["redirectTo"])
}

func TestNotes_ForgedCookieRedirects(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/notes", "", &http.Cookie{Name: e.sessions.Name(), Value: "forged"})
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestNotes_Lifecycle(t *testing.T) {
	e := newTestEnv(t)
	cookie, userID := e.login(t, "alice")

	id := createNote(t, e, cookie, "Groceries")

	rec := e.do(t, http.MethodGet, "/api/notes", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode(t, rec)["notes"].([]any)
	require.Len(t, notes, 1)
	first := notes[0].(map[string]any)
	assert.Equal(t, float64(id), first["id"])
	assert.Equal(t, float64(userID), first["userId"])
	assert.Equal(t, false, first["isFavorite"])

	rec = e.do(t, http.MethodPost, "/api/notes/favorite", `{"noteId":`+jsonInt(id)+`}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"success": true, "isFavorite": true}, decode(t, rec))

	rec = e.do(t, http.MethodGet, "/api/notes/"+jsonInt(id), "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["isFavorite"])

	rec = e.do(t, http.MethodPatch, "/api/notes/"+jsonInt(id), `{"title":"  Errands  "}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode(t, rec)
	assert.Equal(t, "Errands", patched["title"])
	assert.Equal(t, "Milk, eggs", patched["description"])

	rec = e.do(t, http.MethodDelete, "/api/notes/"+jsonInt(id), "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["deleted"])

	rec = e.do(t, http.MethodGet, "/api/notes/"+jsonInt(id), "", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateNote_Validation(t *testing.T) {
	e := newTestEnv(t)
	cookie, _ := e.login(t, "alice")

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"missing description", `{"title":"x"}`, []string{"description"}},
		{"missing both", `{}`, []string{"title", "description"}},
		{"blank title", `{"title":"   ","description":""}`, []string{"title"}},
		{"long title", `{"title":"` + strings.Repeat("a", 256) + `","description":""}`, []string{"title"}},
		{"long description", `{"title":"ok","description":"` + strings.Repeat("d", 10001) + `"}`, []string{"description"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/notes", tt.body, cookie)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			errsMap := body["errors"].(map[string]any)
			for _, f := range tt.fields {
				assert.Contains(t, errsMap, f)
			}
		})
	}

	rec := e.do(t, http.MethodPost, "/api/notes", `{"title":"ok","description":""}`, cookie)
	assert.Equal(t, http.StatusCreated, rec.Code, "an empty description is allowed")
}

func TestNotes_OtherUsersNote(t *testing.T) {
	e := newTestEnv(t)
	owner, _ := e.login(t, "alice")
	intruder, _ := e.login(t, "mallory")
	id := createNote(t, e, owner, "Secret")
	path := "/api/notes/" + jsonInt(id)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, path, "", intruder).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPatch, path, `{"title":"pwned"}`, intruder).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, path, "", intruder).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/notes/favorite", `{"noteId":`+jsonInt(id)+`}`, intruder).Code)

	rec := e.do(t, http.MethodGet, path, "", owner)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Secret", body["title"])
	assert.Equal(t, false, body["isFavorite"])

	rec = e.do(t, http.MethodGet, "/api/notes", "", intruder)
	assert.Empty(t, decode(t, rec)["notes"])
}

func TestNote_InvalidID(t *testing.T) {
	e := newTestEnv(t)
	cookie, _ := e.login(t, "alice")
	for _, raw := range []string{"abc", "0", "-3", "12abc"} {
		rec := e.do(t, http.MethodGet, "/api/notes/"+raw, "", cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
		assert.Equal(t, "invalid note ID", decode(t, rec)["error"], raw)
	}
}

func TestToggleFavorite_Form(t *testing.T) {
	e := newTestEnv(t)
	cookie, _ := e.login(t, "alice")
	id := createNote(t, e, cookie, "Groceries")

	form := url.Values{"noteId": {jsonInt(id)}}
	req := httptest.NewRequest(http.MethodPost, "/api/notes/favorite", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["isFavorite"])
}

func TestToggleFavorite_Errors(t *testing.T) {
	e := newTestEnv(t)
	cookie, _ := e.login(t, "alice")

	rec := e.do(t, http.MethodGet, "/api/notes/favorite", "", cookie)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/notes/favorite", `{}`, cookie).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/notes/favorite", `{"noteId":"abc"}`, cookie).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/notes/favorite", `{"noteId":"`+jsonInt(createNote(t, e, cookie, "x"))+`"}`, cookie).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/notes/favorite", `{"noteId":999}`, cookie).Code)
}

func TestToggleFavorite_WrongMethodBeforeAuth(t *testing.T) {
	e := newTestEnv(t)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := e.do(t, method, "/api/notes/favorite", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
		assert.Empty(t, rec.Header().Get("Location"))
	}
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/api/notes/favorite", `{"noteId":1}`, nil).Code)
}

type brokenNotes struct {
	domain.NoteRepository
}

func (brokenNotes) ToggleFavorite(ctx context.Context, id, userID int64) (*domain.Note, error) {
	return nil, errors.New("connection reset by peer")
}

func TestToggleFavorite_StoreFailure(t *testing.T) {
	e := newTestEnvWithNotes(t, brokenNotes{})
	cookie, _ := e.login(t, "alice")

	rec := e.do(t, http.MethodPost, "/api/notes/favorite", `{"noteId":1}`, cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.authSvc.CreateUser(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/login", `{"username":"alice","password":"correct-horse","redirectTo":"/notes/3"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/notes/3", decode(t, rec)["redirectTo"])

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == e.sessions.Name() {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)

	rec = e.do(t, http.MethodGet, "/api/notes", "", sessionCookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_IgnoresOffsiteRedirect(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.authSvc.CreateUser(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)

	for _, target := range []string{"//evil.example", "https://evil.example", "notes"} {
		rec := e.do(t, http.MethodPost, "/login", `{"username":"alice","password":"correct-horse","redirectTo":"`+target+`"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/notes", decode(t, rec)["redirectTo"], target)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.authSvc.CreateUser(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/login", `{"username":"alice","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogin_RateLimited(t *testing.T) {
	e := newTestEnv(t, adapthttp.WithLoginRateLimit(0.01, 2))
	body := `{"username":"ghost","password":"whatever"}`

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/login", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/login", body, nil).Code)

	rec := e.do(t, http.MethodPost, "/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func loginFrom(t *testing.T, e *testEnv, remoteAddr, forwardedFor string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"ghost","password":"whatever"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestLogin_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	e := newTestEnv(t, adapthttp.WithLoginRateLimit(0.01, 2))

	throttled := 0
	for i := 0; i < 20; i++ {
		if loginFrom(t, e, "198.51.100.7:40000", fmt.Sprintf("10.0.0.%d", i)) == http.StatusTooManyRequests {
			throttled++
		}
	}
	assert.Equal(t, 18, throttled, "a rotating X-Forwarded-For must not mint new buckets")
}

func TestLogin_RateLimitBehindTrustedProxy(t *testing.T) {
	proxy := netip.MustParsePrefix("127.0.0.1/32")
	e := newTestEnv(t, adapthttp.WithLoginRateLimit(0.01, 1), adapthttp.WithTrustedProxies([]netip.Prefix{proxy}))

	assert.Equal(t, http.StatusUnauthorized, loginFrom(t, e, "127.0.0.1:1234", "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(t, e, "127.0.0.1:1234", "203.0.113.1"))
	assert.Equal(t, http.StatusUnauthorized, loginFrom(t, e, "127.0.0.1:1234", "203.0.113.2"), "clients behind the proxy get their own bucket")

	// The same header from an untrusted peer is ignored.
	assert.Equal(t, http.StatusUnauthorized, loginFrom(t, e, "198.51.100.7:1", "203.0.113.3"))
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(t, e, "198.51.100.7:1", "203.0.113.4"))
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t)
	cookie, _ := e.login(t, "alice")

	rec := e.do(t, http.MethodPost, "/logout", "", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, e.sessions.Name(), cookies[0].Name)
	assert.Equal(t, "", cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestSetup(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/setup", `{"username":"admin","password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/setup", `{"username":"admin","password":"password123"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/setup", `{"username":"admin2","password":"password123"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSSO_DisabledIs404(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/auth/sso/login", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/auth/sso/callback", "", nil).Code)
}

func newSSOEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(tokens.Close)

	provider := (&oidc.ProviderConfig{
		IssuerURL: tokens.URL,
		AuthURL:   tokens.URL + "/authorize",
		TokenURL:  tokens.URL + "/token",
	}).NewProvider(context.Background())
	return newTestEnv(t, adapthttp.WithSecureCookies(true), adapthttp.WithOIDC(&adapthttp.OIDCConfig{
		Provider: provider,
		OAuth2Config: oauth2.Config{
			ClientID:    "notes",
			Endpoint:    provider.Endpoint(),
			RedirectURL: "https://notes.example/auth/sso/callback",
		},
	}))
}

func stateCookieOf(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "oauth_state" {
			return c
		}
	}
	t.Fatalf("no oauth_state cookie in %v", rec.Header().Values("Set-Cookie"))
	return nil
}

func TestSSO_StateCookieClearedWithSameAttributes(t *testing.T) {
	e := newSSOEnv(t)

	rec := e.do(t, http.MethodGet, "/auth/sso/login", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	set := stateCookieOf(t, rec)
	require.NotEmpty(t, set.Value)

	rec = e.do(t, http.MethodGet, "/auth/sso/callback?code=bad&state="+url.QueryEscape(set.Value), "", set)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	cleared := stateCookieOf(t, rec)

	assert.Equal(t, -1, cleared.MaxAge)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, set.Path, cleared.Path)
	assert.Equal(t, set.HttpOnly, cleared.HttpOnly)
	assert.Equal(t, set.Secure, cleared.Secure)
	assert.Equal(t, set.SameSite, cleared.SameSite)
	assert.True(t, cleared.HttpOnly)
	assert.True(t, cleared.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cleared.SameSite)
}

func TestSSO_CallbackRejectsStateMismatch(t *testing.T) {
	e := newSSOEnv(t)
	rec := e.do(t, http.MethodGet, "/auth/sso/callback?code=x&state=other", "", &http.Cookie{Name: "oauth_state", Value: "mine"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonInt(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
