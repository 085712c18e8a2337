// Package postgres provides PostgreSQL implementations of storage.SessionStore
// and storage.UserStore. It uses pgx/v5 for connection pooling and JSONB for
// scopes and identity metadata.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/warden/pkg/debug"
	"github.com/rhuss/warden/pkg/storage"
)

// Store is a PostgreSQL-backed session and user store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.SessionStore = (*Store)(nil)
	_ storage.UserStore    = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateSession inserts a session row.
func (s *Store) CreateSession(ctx context.Context, sess *storage.Session) error {
	scopesJSON, err := json.Marshal(nonNilScopes(sess.Identity.Scopes))
	if err != nil {
		return fmt.Errorf("marshaling scopes: %w", err)
	}
	metadataJSON, err := json.Marshal(nonNilMetadata(sess.Identity.Metadata))
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, subject, service_tier, scopes, metadata, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		sess.ID, sess.Identity.Subject, sess.Identity.ServiceTier,
		scopesJSON, metadataJSON, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	debug.Log("storage", "session created", "subject", sess.Identity.Subject, "expires_at", sess.ExpiresAt)
	return nil
}

// GetSession loads a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	var (
		sess                     storage.Session
		scopesJSON, metadataJSON []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, subject, service_tier, scopes, metadata, created_at, expires_at
		FROM sessions
		WHERE id = $1
	`, id).Scan(
		&sess.ID, &sess.Identity.Subject, &sess.Identity.ServiceTier,
		&scopesJSON, &metadataJSON, &sess.CreatedAt, &sess.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	if err := json.Unmarshal(scopesJSON, &sess.Identity.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshaling scopes: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &sess.Identity.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	if len(sess.Identity.Scopes) == 0 {
		sess.Identity.Scopes = nil
	}
	if len(sess.Identity.Metadata) == 0 {
		sess.Identity.Metadata = nil
	}

	return &sess, nil
}

// DeleteSession removes a session by ID.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteExpiredSessions removes sessions whose expiry is at or before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// GetUser loads a user by username.
func (s *Store) GetUser(ctx context.Context, username string) (*storage.User, error) {
	var (
		u          storage.User
		scopesJSON []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT username, password_hash, service_tier, tenant_id, scopes
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.PasswordHash, &u.ServiceTier, &u.TenantID, &scopesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if err := json.Unmarshal(scopesJSON, &u.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshaling scopes: %w", err)
	}
	if len(u.Scopes) == 0 {
		u.Scopes = nil
	}
	return &u, nil
}

// PutUser upserts a user.
func (s *Store) PutUser(ctx context.Context, u *storage.User) error {
	scopesJSON, err := json.Marshal(nonNilScopes(u.Scopes))
	if err != nil {
		return fmt.Errorf("marshaling scopes: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, service_tier, tenant_id, scopes, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			service_tier  = EXCLUDED.service_tier,
			tenant_id     = EXCLUDED.tenant_id,
			scopes        = EXCLUDED.scopes,
			updated_at    = now()
	`, u.Username, u.PasswordHash, u.ServiceTier, u.TenantID, scopesJSON)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nonNilScopes(scopes []string) []string {
	if scopes == nil {
		return []string{}
	}
	return scopes
}

func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
