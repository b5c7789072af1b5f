// Package config loads the server configuration from environment variables,
// validates it, and fills defaults. Command-line flags override selected
// values after loading.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends selectable through DATABASE_URL.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	ListenAddr  string
	DatabaseURL string
	AppEnv      string

	// Session cookie. The first secret signs new cookies; all are accepted.
	SessionSecrets    []string
	SessionCookieName string
	SessionMaxAge     time.Duration

	// Login throttling, per client address.
	LoginRateLimitRPS   float64
	LoginRateLimitBurst int

	// Reverse proxies allowed to set X-Forwarded-For. Empty means RemoteAddr
	// is the client.
	TrustedProxies []netip.Prefix

	// Optional OpenID Connect single sign-on.
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	problems []string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads the environment. It does not validate; call Validate once
// flag overrides have been applied.
func Load() *Config {
	cfg := &Config{
		ListenAddr:          getEnvOrDefault("LISTEN_ADDR", ":8080"),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AppEnv:              getEnvOrDefault("APP_ENV", "development"),
		SessionSecrets:      splitList(os.Getenv("SESSION_SECRET")),
		SessionCookieName:   getEnvOrDefault("SESSION_COOKIE_NAME", "notes_session"),
		OIDCIssuerURL:       strings.TrimSpace(os.Getenv("OIDC_ISSUER_URL")),
		OIDCClientID:        strings.TrimSpace(os.Getenv("OIDC_CLIENT_ID")),
		OIDCClientSecret:    strings.TrimSpace(os.Getenv("OIDC_CLIENT_SECRET")),
		OIDCRedirectURL:     strings.TrimSpace(os.Getenv("OIDC_REDIRECT_URL")),
		LoginRateLimitBurst: 5,
		LoginRateLimitRPS:   5.0 / 60.0,
		SessionMaxAge:       30 * 24 * time.Hour,
	}

	if v := os.Getenv("SESSION_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			cfg.problems = append(cfg.problems, fmt.Sprintf("SESSION_MAX_AGE %q is not a duration (e.g. 720h)", v))
		} else {
			cfg.SessionMaxAge = d
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			cfg.problems = append(cfg.problems, fmt.Sprintf("LOGIN_RATE_LIMIT_RPS %q is not a number", v))
		} else {
			cfg.LoginRateLimitRPS = f
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			cfg.problems = append(cfg.problems, fmt.Sprintf("LOGIN_RATE_LIMIT_BURST %q is not an integer", v))
		} else {
			cfg.LoginRateLimitBurst = n
		}
	}
	for _, entry := range splitList(os.Getenv("TRUSTED_PROXIES")) {
		p, err := parseProxy(entry)
		if err != nil {
			cfg.problems = append(cfg.problems, fmt.Sprintf("TRUSTED_PROXIES entry %q is not an IP or CIDR", entry))
			continue
		}
		cfg.TrustedProxies = append(cfg.TrustedProxies, p)
	}
	return cfg
}

// parseProxy accepts a bare address or a CIDR prefix.
func parseProxy(v string) (netip.Prefix, error) {
	if strings.Contains(v, "/") {
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(v)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	errs := append([]string(nil), c.problems...)

	if len(c.SessionSecrets) == 0 {
		errs = append(errs, "SESSION_SECRET is required (generate with: openssl rand -hex 32)")
	}
	for i, s := range c.SessionSecrets {
		if len(s) < 16 {
			errs = append(errs, fmt.Sprintf("SESSION_SECRET entry %d must be at least 16 characters", i+1))
		}
	}
	if c.SessionMaxAge <= 0 {
		errs = append(errs, "SESSION_MAX_AGE must be positive")
	}

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required (postgres://..., sqlite:<path>, or memory)")
	} else if _, _, err := c.Backend(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.LoginRateLimitRPS <= 0 {
		errs = append(errs, "LOGIN_RATE_LIMIT_RPS must be positive")
	}
	if c.LoginRateLimitBurst <= 0 {
		errs = append(errs, "LOGIN_RATE_LIMIT_BURST must be positive")
	}

	// SSO is all or nothing.
	if c.OIDCIssuerURL != "" || c.OIDCClientID != "" {
		for name, v := range map[string]string{
			"OIDC_ISSUER_URL":    c.OIDCIssuerURL,
			"OIDC_CLIENT_ID":     c.OIDCClientID,
			"OIDC_CLIENT_SECRET": c.OIDCClientSecret,
			"OIDC_REDIRECT_URL":  c.OIDCRedirectURL,
		} {
			if v == "" {
				errs = append(errs, name+" is required when SSO is configured")
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Backend splits DATABASE_URL into a backend kind and its data source.
func (c *Config) Backend() (kind, dsn string, err error) {
	u := c.DatabaseURL
	switch {
	case u == BackendMemory:
		return BackendMemory, "", nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return BackendPostgres, u, nil
	case strings.HasPrefix(u, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(u, "sqlite:"), "//")
		if path == "" {
			return "", "", fmt.Errorf("DATABASE_URL %q has no sqlite path", u)
		}
		return BackendSQLite, path, nil
	}
	return "", "", fmt.Errorf("DATABASE_URL must start with postgres://, sqlite: or be \"memory\"")
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// SecureCookies reports whether cookies carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return c.IsProduction()
}

// OIDCEnabled reports whether SSO routes should be served.
func (c *Config) OIDCEnabled() bool {
	return c.OIDCIssuerURL != "" && c.OIDCClientID != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
