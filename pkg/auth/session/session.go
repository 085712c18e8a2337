// Package session resolves server-side login sessions referenced by a
// cookie. A valid session authenticates the request directly during
// extraction; resetting credentials deletes the session.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/debug"
	"github.com/rhuss/warden/pkg/storage"
)

// Config controls the session cookie.
type Config struct {
	CookieName string        // default "warden_session"
	Path       string        // default "/"
	Secure     bool          // set the Secure attribute
	TTL        time.Duration // default 12h
	SameSite   http.SameSite // default Lax
}

func (c *Config) applyDefaults() {
	if c.CookieName == "" {
		c.CookieName = "warden_session"
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.TTL == 0 {
		c.TTL = 12 * time.Hour
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
}

// Plugin extracts and resets cookie sessions.
type Plugin struct {
	cfg   Config
	store storage.SessionStore
	now   func() time.Time
}

var (
	_ auth.Extractor[*http.Request, http.ResponseWriter] = (*Plugin)(nil)
	_ auth.Resetter[*http.Request]                       = (*Plugin)(nil)
)

// New creates a session plugin backed by store.
func New(cfg Config, store storage.SessionStore) *Plugin {
	cfg.applyDefaults()
	return &Plugin{cfg: cfg, store: store, now: time.Now}
}

// HasSession reports whether r carries a live session cookie. Lookup
// errors count as no session.
func (p *Plugin) HasSession(ctx context.Context, r *http.Request) bool {
	sess, err := p.lookup(ctx, r)
	return err == nil && sess != nil
}

// ExtractCredentials resolves the request to a success when it carries a
// live session cookie. Missing, unknown or expired sessions defer so other
// extractors still get a chance.
func (p *Plugin) ExtractCredentials(ctx context.Context, r *http.Request, _ http.ResponseWriter) (auth.Extraction, error) {
	sess, err := p.lookup(ctx, r)
	if err != nil || sess == nil {
		return auth.Defer(), err
	}

	return auth.Resolved(auth.Success(&sess.Identity, map[string]string{
		"method":     "session",
		"session_id": sess.ID,
	})), nil
}

// ResetCredentials deletes the session referenced by the request cookie.
// A request without a session is not an error.
func (p *Plugin) ResetCredentials(ctx context.Context, r *http.Request) error {
	c, err := r.Cookie(p.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil
	}

	err = p.store.DeleteSession(ctx, c.Value)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting session: %w", err)
	}
	debug.Log("plugins", "session deleted", "session", debug.Redact(c.Value))
	return nil
}

// Issue creates a session for identity and sets the cookie on w.
func (p *Plugin) Issue(ctx context.Context, w http.ResponseWriter, identity *auth.Identity) (*storage.Session, error) {
	if identity == nil || identity.Subject == "" {
		return nil, errors.New("session: identity without subject")
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := p.now()
	sess := &storage.Session{
		ID:        id,
		Identity:  *identity,
		CreatedAt: now,
		ExpiresAt: now.Add(p.cfg.TTL),
	}
	if err := p.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     p.cfg.CookieName,
		Value:    id,
		Path:     p.cfg.Path,
		Expires:  sess.ExpiresAt,
		MaxAge:   int(p.cfg.TTL.Seconds()),
		Secure:   p.cfg.Secure,
		HttpOnly: true,
		SameSite: p.cfg.SameSite,
	})
	return sess, nil
}

// Clear expires the session cookie on w.
func (p *Plugin) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.cfg.CookieName,
		Value:    "",
		Path:     p.cfg.Path,
		MaxAge:   -1,
		Secure:   p.cfg.Secure,
		HttpOnly: true,
		SameSite: p.cfg.SameSite,
	})
}

// RunJanitor removes expired sessions every interval until ctx is done.
func (p *Plugin) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.DeleteExpiredSessions(ctx, p.now())
			if err != nil {
				slog.Warn("expired session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				debug.Log("storage", "expired sessions removed", "count", n)
			}
		}
	}
}

func (p *Plugin) lookup(ctx context.Context, r *http.Request) (*storage.Session, error) {
	c, err := r.Cookie(p.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}

	sess, err := p.store.GetSession(ctx, c.Value)
	if errors.Is(err, storage.ErrNotFound) {
		debug.Log("plugins", "unknown session cookie", "session", debug.Redact(c.Value))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess.Expired(p.now()) {
		debug.Log("plugins", "expired session cookie", "session", debug.Redact(c.Value))
		if err := p.store.DeleteSession(ctx, sess.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("deleting expired session failed", "error", err)
		}
		return nil, nil
	}
	return sess, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
