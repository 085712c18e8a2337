// Package password authenticates username/password credentials against
// bcrypt hashes held in a user store.
package password

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/debug"
	"github.com/rhuss/warden/pkg/storage"
)

// Credential fields read by the authenticator.
const (
	FieldUsername = "username"
	FieldPassword = "password"
)

// DefaultCost is the bcrypt cost used by HashPassword.
const DefaultCost = bcrypt.DefaultCost

// UserLookup is the subset of storage.UserStore the authenticator needs.
type UserLookup interface {
	GetUser(ctx context.Context, username string) (*storage.User, error)
}

// Authenticator verifies passwords with bcrypt.
type Authenticator struct {
	users UserLookup

	// dummyHash is compared against when the user does not exist, so
	// unknown usernames cost the same as wrong passwords.
	dummyHash []byte
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates a password authenticator backed by users.
func New(users UserLookup) *Authenticator {
	dummy, err := bcrypt.GenerateFromPassword([]byte("warden-dummy-password"), DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("password: generating dummy hash: %v", err))
	}
	return &Authenticator{users: users, dummyHash: dummy}
}

// AuthenticateCredentials returns nil when no username is present, a
// failure for unknown users or wrong passwords, and a success carrying the
// user's identity otherwise.
func (a *Authenticator) AuthenticateCredentials(ctx context.Context, creds auth.Credentials) (*auth.Result, error) {
	username := creds.Get(FieldUsername)
	if username == "" {
		return nil, nil
	}
	password := creds.Get(FieldPassword)

	user, err := a.users.GetUser(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		debug.Log("plugins", "unknown user", "username", username)
		return auth.Failure(fmt.Errorf("invalid username or password: %w", auth.ErrUnauthenticated)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user %q: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		debug.Log("plugins", "password mismatch", "username", username)
		return auth.Failure(fmt.Errorf("invalid username or password: %w", auth.ErrUnauthenticated)), nil
	}

	return auth.Success(user.Identity(), map[string]string{"method": "password"}), nil
}

// HashPassword returns the bcrypt hash of password at the given cost.
// A cost of zero selects DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
