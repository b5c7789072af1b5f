// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"notes/internal/domain"
	"notes/internal/errs"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials indicates that the provided username or password was incorrect.
	ErrInvalidCredentials = errs.New(errs.Unauthenticated, "invalid username or password")
	// ErrUsersExist is returned by CreateInitialUser once any account exists.
	ErrUsersExist = errs.New(errs.FailedPrecondition, "users already exist")
)

// dummyHash keeps the cost of a failed lookup close to a failed password check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

// AuthService authenticates users. Sessions themselves live in cookies and
// are issued by the HTTP layer.
type AuthService struct {
	users domain.UserRepository
	cost  int
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository) *AuthService {
	return &AuthService{
		users: users,
		cost:  bcrypt.DefaultCost,
	}
}

// WithCost overrides the bcrypt cost, mainly so tests stay fast.
func (s *AuthService) WithCost(cost int) *AuthService {
	s.cost = cost
	return s
}

// Login checks a username/password pair and returns the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// CreateUser stores a new account with a bcrypt password hash.
func (s *AuthService) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	fields := map[string][]string{}
	if username == "" {
		fields["username"] = []string{"Username is required"}
	}
	if len(password) < 8 {
		fields["password"] = []string{"Password must be at least 8 characters"}
	}
	if len(password) > 72 {
		fields["password"] = []string{"Password must be at most 72 bytes"}
	}
	if len(fields) > 0 {
		return nil, errs.Invalid(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	return s.users.Create(ctx, username, string(hash))
}

// CreateInitialUser creates the first user if no users exist.
func (s *AuthService) CreateInitialUser(ctx context.Context, username, password string) (*domain.User, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsersExist
	}
	return s.CreateUser(ctx, username, password)
}

// LoginWithUser returns the account for an identity already verified
// elsewhere (SSO), provisioning it on first sight. SSO accounts have no
// password hash and cannot use password login.
func (s *AuthService) LoginWithUser(ctx context.Context, username string) (*domain.User, error) {
	if username == "" {
		return nil, errs.New(errs.InvalidArgument, "missing identity")
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err == nil && user != nil {
		return user, nil
	}
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	user, err = s.users.Create(ctx, username, "")
	if err != nil {
		// A concurrent first login may have created the row already.
		if existing, getErr := s.users.GetByUsername(ctx, username); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return user, nil
}

// ConstantTimeCompare performs a constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
