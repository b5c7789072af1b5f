// Package session implements cookie-backed sessions. The cookie holds the
// whole session payload as a signed-then-encrypted JWT, so no server-side
// state is kept.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"notes/internal/obs"
)

// Cookie defaults.
const (
	DefaultCookieName = "notes_session"
	DefaultMaxAge     = 30 * 24 * time.Hour
	DefaultPath       = "/"

	keySize = 32
)

var (
	// ErrNoSecret is returned by NewStore when no signing secret is configured.
	ErrNoSecret = errors.New("session: at least one secret is required")
	// ErrInvalidSession is returned by Decode for any cookie that fails
	// decryption, signature verification or expiry checks.
	ErrInvalidSession = errors.New("session: invalid session cookie")
)

// reserved claim names are owned by the store and never exposed as values.
var reserved = map[string]struct{}{"jti": {}, "iat": {}, "exp": {}, "nbf": {}, "iss": {}, "sub": {}, "aud": {}}

// Options configures a Store. SameSite=Lax and HttpOnly are always set.
type Options struct {
	Name string
	// Secrets are tried in order when reading; the first one signs.
	Secrets []string
	Secure  bool
	MaxAge  time.Duration
	Path    string
}

type keyPair struct {
	sign []byte
	enc  []byte
}

// Store encodes, decodes and expires session cookies.
type Store struct {
	opts Options
	keys []keyPair
	now  func() time.Time
}

// NewStore validates opts, fills defaults and derives cookie keys from each
// secret.
func NewStore(opts Options) (*Store, error) {
	var secrets []string
	for _, s := range opts.Secrets {
		if s = strings.TrimSpace(s); s != "" {
			secrets = append(secrets, s)
		}
	}
	if len(secrets) == 0 {
		return nil, ErrNoSecret
	}
	opts.Secrets = secrets
	if opts.Name == "" {
		opts.Name = DefaultCookieName
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}

	keys := make([]keyPair, 0, len(secrets))
	for _, s := range secrets {
		sign, err := deriveKey(s, "notes/session/sign/v1")
		if err != nil {
			return nil, err
		}
		enc, err := deriveKey(s, "notes/session/enc/v1")
		if err != nil {
			return nil, err
		}
		keys = append(keys, keyPair{sign: sign, enc: enc})
	}
	return &Store{opts: opts, keys: keys, now: time.Now}, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	return key, nil
}

// Name returns the cookie name.
func (s *Store) Name() string { return s.opts.Name }

// New returns an empty, uncommitted session.
func (s *Store) New() *Session {
	return &Session{values: map[string]any{}}
}

// Read returns the session carried by the request's cookie. Any missing,
// tampered, undecryptable or expired cookie yields a fresh empty session.
func (s *Store) Read(r *http.Request) *Session {
	c, err := r.Cookie(s.opts.Name)
	if err != nil || c.Value == "" {
		return s.New()
	}
	sess, err := s.Decode(c.Value)
	if err != nil {
		obs.From(r.Context()).Debug("session cookie rejected", "pkg", "session", "error", err)
		return s.New()
	}
	return sess
}

// Decode verifies and decrypts a cookie value.
func (s *Store) Decode(value string) (*Session, error) {
	for _, k := range s.keys {
		tok, err := jwt.ParseSignedAndEncrypted(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}
		nested, err := tok.Decrypt(k.enc)
		if err != nil {
			continue
		}
		var std jwt.Claims
		values := map[string]any{}
		if err := nested.Claims(k.sign, &std, &values); err != nil {
			continue
		}
		if std.Expiry == nil {
			return nil, fmt.Errorf("%w: missing expiry", ErrInvalidSession)
		}
		if err := std.ValidateWithLeeway(jwt.Expected{Time: s.now()}, 0); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}
		for name := range reserved {
			delete(values, name)
		}
		return &Session{id: std.ID, values: values}, nil
	}
	return nil, fmt.Errorf("%w: no matching key", ErrInvalidSession)
}

// Commit serialises the session into a cookie for the response.
func (s *Store) Commit(sess *Session) (*http.Cookie, error) {
	if sess.id == "" {
		sess.id = uuid.NewString()
	}
	now := s.now()
	expires := now.Add(s.opts.MaxAge)

	k := s.keys[0]
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: k.sign}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("session: create signer: %w", err)
	}
	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: k.enc},
		(&jose.EncrypterOptions{}).WithType("JWT").WithContentType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("session: create encrypter: %w", err)
	}

	values := make(map[string]any, len(sess.values))
	for name, v := range sess.values {
		if _, ok := reserved[name]; !ok {
			values[name] = v
		}
	}
	std := jwt.Claims{
		ID:       sess.id,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(expires),
	}
	raw, err := jwt.SignedAndEncrypted(signer, encrypter).Claims(std).Claims(values).CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("session: serialize: %w", err)
	}
	return s.cookie(raw, int(s.opts.MaxAge.Seconds()), expires), nil
}

// CreateSession starts a session for userID and returns its cookie.
func (s *Store) CreateSession(userID int64) (*http.Cookie, error) {
	sess := s.New()
	sess.Set(UserIDKey, userID)
	return s.Commit(sess)
}

// Destroy clears the session and returns a cookie instructing the client to
// discard it.
func (s *Store) Destroy(sess *Session) *http.Cookie {
	if sess != nil {
		sess.values = map[string]any{}
	}
	return s.cookie("", -1, time.Unix(0, 0))
}

func (s *Store) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     s.opts.Name,
		Value:    value,
		Path:     s.opts.Path,
		MaxAge:   maxAge,
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
