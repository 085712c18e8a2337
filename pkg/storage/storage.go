package storage

import (
	"context"
	"time"

	"github.com/rhuss/warden/pkg/auth"
)

// Session is a server-side login session referenced by a cookie.
type Session struct {
	ID        string
	Identity  auth.Identity
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// User is a local account verified by the password plugin.
type User struct {
	Username     string
	PasswordHash string // bcrypt
	ServiceTier  string
	TenantID     string
	Scopes       []string
}

// Identity builds the identity a successful login yields for u.
func (u *User) Identity() *auth.Identity {
	id := &auth.Identity{
		Subject:     u.Username,
		ServiceTier: u.ServiceTier,
		Scopes:      u.Scopes,
	}
	if u.TenantID != "" {
		id.Metadata = map[string]string{"tenant_id": u.TenantID}
	}
	return id
}

// SessionStore persists login sessions.
type SessionStore interface {
	// CreateSession stores a new session. Returns ErrConflict if the ID exists.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns the session with the given ID or ErrNotFound.
	// Expired sessions are returned as-is; callers check Expired.
	GetSession(ctx context.Context, id string) (*Session, error)

	// DeleteSession removes a session. Returns ErrNotFound if absent.
	DeleteSession(ctx context.Context, id string) error

	// DeleteExpiredSessions removes every session expired at now and
	// returns how many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// UserStore looks up local accounts.
type UserStore interface {
	// GetUser returns the user or ErrNotFound.
	GetUser(ctx context.Context, username string) (*User, error)

	// PutUser creates or replaces a user.
	PutUser(ctx context.Context, u *User) error

	HealthCheck(ctx context.Context) error
	Close() error
}
