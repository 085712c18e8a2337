package main

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/auth/password"
	"github.com/rhuss/warden/pkg/config"
	"github.com/rhuss/warden/pkg/storage/memory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := password.HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.Auth.Plugins = []string{"throttle", "session", "basic", "bearer", "apikey", "password"}
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Key: "key-1", Subject: "ci-bot", TenantID: "org-9"}}
	cfg.Auth.Users = []config.UserConfig{{Username: "alice", PasswordHash: hash}}
	return &cfg
}

func TestBuildGateway_RegistersInOrder(t *testing.T) {
	cfg := testConfig(t)
	gw, err := buildGateway(cfg, memory.New(0), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if got := len(gw.service.Plugins()); got != len(cfg.Auth.Plugins) {
		t.Errorf("plugins = %d, want %d", got, len(cfg.Auth.Plugins))
	}
	if gw.sessions == nil {
		t.Error("session plugin not exposed")
	}
}

func TestBuildGateway_Anonymous(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Anonymous = true

	gw, err := buildGateway(&cfg, memory.New(0), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if gw.sessions != nil {
		t.Error("sessions enabled without the session plugin")
	}

	result, err := gw.service.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil), httptest.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsSuccess() || result.Identity().Subject != "anonymous" {
		t.Errorf("result = %v, want anonymous success", result)
	}
}

func TestBuildGateway_NothingConfigured(t *testing.T) {
	cfg := config.Defaults()
	if _, err := buildGateway(&cfg, memory.New(0), slog.Default()); err == nil {
		t.Fatal("expected error with no plugins")
	}
}

func TestBuildGateway_UnknownPlugin(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Plugins = []string{"kerberos"}
	if _, err := buildGateway(&cfg, memory.New(0), slog.Default()); err == nil {
		t.Fatal("expected error for unknown plugin")
	}
}

func TestBuildGateway_Authenticates(t *testing.T) {
	cfg := testConfig(t)
	st := memory.New(0)
	if err := seedUsers(context.Background(), st, cfg.Auth.Users); err != nil {
		t.Fatal(err)
	}
	gw, err := buildGateway(cfg, st, slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		header      string
		wantSuccess bool
		wantSubject string
		wantTenant  string
	}{
		{"basic password", "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret")), true, "alice", ""},
		{"basic wrong password", "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:nope")), false, "", ""},
		{"bearer api key", "Bearer key-1", true, "ci-bot", "org-9"},
		{"bearer unknown key", "Bearer key-2", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.Header.Set("Authorization", tt.header)
			result, err := gw.service.Authenticate(context.Background(), r, httptest.NewRecorder())
			if err != nil {
				t.Fatal(err)
			}
			if result.IsSuccess() != tt.wantSuccess {
				t.Fatalf("result = %v, want success=%t", result, tt.wantSuccess)
			}
			if !tt.wantSuccess {
				return
			}
			id := result.Identity()
			if id.Subject != tt.wantSubject || id.TenantID() != tt.wantTenant {
				t.Errorf("identity = %+v", id)
			}
		})
	}
}

func TestBuildGateway_ChallengesWithoutCredentials(t *testing.T) {
	gw, err := buildGateway(testConfig(t), memory.New(0), slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	result, err := gw.service.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil), w)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsChallenge() {
		t.Fatalf("result = %v, want challenge", result)
	}
	if got := w.Header().Values("WWW-Authenticate"); len(got) != 2 {
		t.Errorf("WWW-Authenticate = %v, want Basic and Bearer", got)
	}
}

func TestBuildGateway_SessionsBypassThrottle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Throttle.Limit = 1

	gw, err := buildGateway(cfg, memory.New(0), slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	rec := httptest.NewRecorder()
	if _, err := gw.sessions.Issue(ctx, rec, &auth.Identity{Subject: "alice"}); err != nil {
		t.Fatal(err)
	}
	cookie := rec.Result().Cookies()[0]

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest("GET", "/whoami", nil)
		r.AddCookie(cookie)
		result, err := gw.service.Authenticate(ctx, r, httptest.NewRecorder())
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsSuccess() {
			t.Fatalf("session request %d = %v, want success", i+1, result)
		}
	}

	// Requests without a session still share the limit of one.
	var last *auth.Result
	for i := 0; i < 2; i++ {
		r := httptest.NewRequest("GET", "/whoami", nil)
		r.Header.Set("Authorization", "Bearer key-1")
		if last, err = gw.service.Authenticate(ctx, r, httptest.NewRecorder()); err != nil {
			t.Fatal(err)
		}
	}
	if !last.IsFailure() || !errors.Is(last.Reason(), auth.ErrTooManyRequests) {
		t.Errorf("second API-key request = %v, want rate-limit failure", last)
	}
}

func TestOpenStore(t *testing.T) {
	cfg := config.Defaults()
	st, err := openStore(context.Background(), &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, ok := st.(*memory.Store); !ok {
		t.Errorf("store = %T, want *memory.Store", st)
	}

	cfg.Storage.Type = "redis"
	if _, err := openStore(context.Background(), &cfg); err == nil {
		t.Error("expected error for unknown storage type")
	}
}

func TestHashFromReader(t *testing.T) {
	hash, err := hashFromReader(strings.NewReader("s3cret\n"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("hash does not match: %v", err)
	}

	if _, err := hashFromReader(strings.NewReader("\n"), bcrypt.MinCost); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestBuildGateway_LDAPDoesNotDial(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Plugins = []string{"basic", "ldap"}
	cfg.Auth.LDAP.URL = "ldap://127.0.0.1:1"
	cfg.Auth.LDAP.BaseDN = "dc=example,dc=com"

	gw, err := buildGateway(&cfg, memory.New(0), slog.Default())
	if err != nil {
		t.Fatalf("building gateway: %v", err)
	}

	// Without credentials the directory is never consulted.
	result, err := gw.service.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil), httptest.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsChallenge() {
		t.Errorf("result = %v, want challenge", result)
	}
}
