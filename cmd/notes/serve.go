package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	adapthttp "notes/internal/adapter/http"
	"notes/internal/app"
	"notes/internal/config"
	"notes/internal/obs"
	"notes/internal/session"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP server.

Environment:
  DATABASE_URL            postgres://..., sqlite:<path>, or memory (required)
  SESSION_SECRET          cookie secret; comma-separated to rotate (required)
  APP_ENV                 "production" marks cookies Secure
  LISTEN_ADDR             listen address (default :8080)
  SESSION_COOKIE_NAME     cookie name (default notes_session)
  SESSION_MAX_AGE         cookie lifetime (default 720h)
  LOGIN_RATE_LIMIT_RPS    login attempts per second per client
  LOGIN_RATE_LIMIT_BURST  login burst per client
  OIDC_ISSUER_URL, OIDC_CLIENT_ID, OIDC_CLIENT_SECRET, OIDC_REDIRECT_URL  optional SSO`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		if err := cfg.Validate(); err != nil {
			fatal("invalid configuration", err)
		}
		if err := serve(cmd.Context(), cfg); err != nil {
			fatal("server failed", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := obs.Pkg("main")

	sessions, err := session.NewStore(session.Options{
		Name:    cfg.SessionCookieName,
		Secrets: cfg.SessionSecrets,
		Secure:  cfg.SecureCookies(),
		MaxAge:  cfg.SessionMaxAge,
	})
	if err != nil {
		return err
	}

	db, closer, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	opts := []adapthttp.Option{
		adapthttp.WithLoginRateLimit(cfg.LoginRateLimitRPS, cfg.LoginRateLimitBurst),
		adapthttp.WithSecureCookies(cfg.SecureCookies()),
		adapthttp.WithTrustedProxies(cfg.TrustedProxies),
	}
	if cfg.OIDCEnabled() {
		oidcCfg, err := newOIDC(ctx, cfg)
		if err != nil {
			return err
		}
		opts = append(opts, adapthttp.WithOIDC(oidcCfg))
		log.Info("sso_enabled", "issuer", cfg.OIDCIssuerURL)
	}

	h := adapthttp.New(app.NewNoteService(db), app.NewAuthService(db), sessions, opts...).Handler()
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr, "env", cfg.AppEnv)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newOIDC(ctx context.Context, cfg *config.Config) (*adapthttp.OIDCConfig, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		return nil, err
	}
	return &adapthttp.OIDCConfig{
		Provider: provider,
		OAuth2Config: oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}
