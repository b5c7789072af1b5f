// Package auth turns a request's session into a trusted user id.
package auth

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"notes/internal/session"
)

// NoUserID is the sentinel for an absent or unusable identity.
const NoUserID int64 = 0

// DefaultLoginPath is where unauthenticated requests are sent.
const DefaultLoginPath = "/login"

// SessionReader reads the session attached to a request.
type SessionReader interface {
	Read(r *http.Request) *session.Session
}

// AuthFailure asks the caller to send the client to RedirectTo.
type AuthFailure struct {
	RedirectTo string
}

func (e *AuthFailure) Error() string {
	return "unauthenticated: redirect to " + e.RedirectTo
}

// Gate derives the caller's user id from its session.
type Gate struct {
	sessions  SessionReader
	loginPath string
}

// NewGate creates a Gate. An empty loginPath means DefaultLoginPath.
func NewGate(sessions SessionReader, loginPath string) *Gate {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &Gate{sessions: sessions, loginPath: loginPath}
}

// DeriveUserID returns the positive user id carried by the request's
// session. Otherwise it returns NoUserID and an *AuthFailure whose
// RedirectTo points at the login path with the request path as return url.
func (g *Gate) DeriveUserID(r *http.Request) (int64, error) {
	sess := g.sessions.Read(r)
	if id := NormalizeUserID(sess.Get(session.UserIDKey)); id != NoUserID {
		return id, nil
	}
	return NoUserID, &AuthFailure{RedirectTo: LoginRedirect(g.loginPath, r.URL.Path)}
}

// LoginRedirect builds "<loginPath>?redirectTo=<returnPath>".
func LoginRedirect(loginPath, returnPath string) string {
	if returnPath == "" {
		returnPath = "/"
	}
	return loginPath + "?" + url.Values{"redirectTo": {returnPath}}.Encode()
}

// NormalizeUserID converts a weakly typed session claim into a positive
// user id, or NoUserID. Strings must be plain base-10 integers; floats must
// be integral.
func NormalizeUserID(v any) int64 {
	var id int64
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return NoUserID
		}
		id = n
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || x >= math.MaxInt64 || x < math.MinInt64 {
			return NoUserID
		}
		id = int64(x)
	case int64:
		id = x
	case int:
		id = int64(x)
	case int32:
		id = int64(x)
	default:
		return NoUserID
	}
	if id <= 0 {
		return NoUserID
	}
	return id
}

type contextKey struct{}

// WithUserID stores the derived user id in ctx.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserIDFrom returns the user id stored by WithUserID, or NoUserID.
func UserIDFrom(ctx context.Context) int64 {
	id, ok := ctx.Value(contextKey{}).(int64)
	if !ok {
		return NoUserID
	}
	return id
}
