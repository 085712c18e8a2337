package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/storage"
)

// setupTestDB starts a PostgreSQL container and returns a migrated Store.
// Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration tests in short mode")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("warden_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func makeTestSession(id string, ttl time.Duration) *storage.Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &storage.Session{
		ID: id,
		Identity: auth.Identity{
			Subject:     "alice",
			ServiceTier: "premium",
			Scopes:      []string{"read", "write"},
			Metadata:    map[string]string{"tenant_id": "org-1"},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestPostgres_SessionRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	sess := makeTestSession(uniqueID("sess"), time.Hour)
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	if got.Identity.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", got.Identity.Subject, "alice")
	}
	if got.Identity.TenantID() != "org-1" {
		t.Errorf("TenantID = %q, want %q", got.Identity.TenantID(), "org-1")
	}
	if len(got.Identity.Scopes) != 2 {
		t.Errorf("Scopes = %v, want 2 entries", got.Identity.Scopes)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, sess.ExpiresAt)
	}
}

func TestPostgres_SessionConflict(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	sess := makeTestSession(uniqueID("sess"), time.Hour)
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.CreateSession(ctx, sess); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestPostgres_DeleteSession(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	sess := makeTestSession(uniqueID("sess"), time.Hour)
	store.CreateSession(ctx, sess)

	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := store.GetSession(ctx, sess.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := store.DeleteSession(ctx, sess.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestPostgres_DeleteExpiredSessions(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	expired := makeTestSession(uniqueID("sess_old"), -time.Minute)
	valid := makeTestSession(uniqueID("sess_new"), time.Hour)
	store.CreateSession(ctx, expired)
	store.CreateSession(ctx, valid)

	n, err := store.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if n < 1 {
		t.Errorf("removed = %d, want at least 1", n)
	}
	if _, err := store.GetSession(ctx, valid.ID); err != nil {
		t.Errorf("valid session removed: %v", err)
	}
}

func TestPostgres_UserUpsert(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	u := &storage.User{Username: uniqueID("user"), PasswordHash: "$2a$10$first", TenantID: "org-1"}
	if err := store.PutUser(ctx, u); err != nil {
		t.Fatalf("PutUser failed: %v", err)
	}

	u.PasswordHash = "$2a$10$second"
	u.Scopes = []string{"admin"}
	if err := store.PutUser(ctx, u); err != nil {
		t.Fatalf("PutUser (update) failed: %v", err)
	}

	got, err := store.GetUser(ctx, u.Username)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.PasswordHash != "$2a$10$second" {
		t.Errorf("PasswordHash = %q, want updated hash", got.PasswordHash)
	}
	if len(got.Scopes) != 1 || got.Scopes[0] != "admin" {
		t.Errorf("Scopes = %v, want [admin]", got.Scopes)
	}

	if _, err := store.GetUser(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgres_MigrateIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	if err := store.migrate(context.Background()); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}
}

func TestLoadMigrations_Ordered(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("len = %d, want 3", len(migrations))
	}
	for i, m := range migrations {
		if m.version != i+1 {
			t.Errorf("migrations[%d].version = %d, want %d", i, m.version, i+1)
		}
	}
}
