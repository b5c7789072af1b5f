// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"net/http"
	"net/netip"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"notes/internal/app"
	"notes/internal/auth"
	"notes/internal/obs"
	"notes/internal/session"
)

// OIDCConfig enables single sign-on when Provider is set.
type OIDCConfig struct {
	Provider     *oidc.Provider
	OAuth2Config oauth2.Config
}

func (c *OIDCConfig) enabled() bool {
	return c != nil && c.Provider != nil
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	notes    *app.NoteService
	authSvc  *app.AuthService
	sessions *session.Store
	gate     *auth.Gate

	loginPath    string
	homePath     string
	loginLimiter *ipLimiter
	proxies      []netip.Prefix
	oidc         *OIDCConfig
	secure       bool
}

// Option configures a Server.
type Option func(*Server)

// WithOIDC enables the /auth/sso routes.
func WithOIDC(cfg *OIDCConfig) Option {
	return func(s *Server) { s.oidc = cfg }
}

// WithLoginRateLimit sets the per-client login token bucket.
func WithLoginRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.loginLimiter = newIPLimiter(rps, burst) }
}

// WithTrustedProxies lists the reverse proxies whose X-Forwarded-For header
// is believed when throttling logins. Without it only RemoteAddr counts.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(s *Server) { s.proxies = prefixes }
}

// WithSecureCookies marks auxiliary cookies (SSO state) as Secure.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secure = secure }
}

// New creates a Server wired to the given application services.
func New(notes *app.NoteService, authSvc *app.AuthService, sessions *session.Store, opts ...Option) *Server {
	s := &Server{
		notes:     notes,
		authSvc:   authSvc,
		sessions:  sessions,
		loginPath: auth.DefaultLoginPath,
		homePath:  "/notes",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loginLimiter == nil {
		s.loginLimiter = newIPLimiter(DefaultLoginRPS, DefaultLoginBurst)
	}
	s.gate = auth.NewGate(sessions, s.loginPath)
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/api/setup", s.handleSetupUser)

	mux.Handle("/api/notes", s.requireUser(http.HandlerFunc(s.handleNotes)))
	mux.Handle("/api/notes/favorite", postOnly(s.requireUser(http.HandlerFunc(s.handleToggleFavorite))))
	mux.Handle("/api/notes/{id}", s.requireUser(http.HandlerFunc(s.handleNote)))

	mux.HandleFunc(s.loginPath, s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/auth/sso/login", s.handleSSOLogin)
	mux.HandleFunc("/auth/sso/callback", s.handleSSOCallback)

	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("http", withNoCache(mux)))
}
