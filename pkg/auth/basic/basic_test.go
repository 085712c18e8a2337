package basic

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/warden/pkg/auth"
)

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestExtractCredentials(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantState auth.ExtractionState
		wantUser  string
		wantPass  string
	}{
		{"no header", "", auth.ExtractionDeferred, "", ""},
		{"bearer scheme", "Bearer abc", auth.ExtractionDeferred, "", ""},
		{"valid", basicHeader("alice", "s3cret"), auth.ExtractionCredentials, "alice", "s3cret"},
		{"lowercase scheme", "basic " + base64.StdEncoding.EncodeToString([]byte("bob:pw")), auth.ExtractionCredentials, "bob", "pw"},
		{"colon in password", basicHeader("carol", "a:b:c"), auth.ExtractionCredentials, "carol", "a:b:c"},
		{"bad base64", "Basic !!!", auth.ExtractionResolved, "", ""},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("nocolon")), auth.ExtractionResolved, "", ""},
		{"empty user", basicHeader("", "pw"), auth.ExtractionResolved, "", ""},
	}

	p := New("test")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, err := p.ExtractCredentials(context.Background(), r, httptest.NewRecorder())
			if err != nil {
				t.Fatalf("ExtractCredentials: %v", err)
			}
			if got.State() != tt.wantState {
				t.Fatalf("State = %v, want %v", got.State(), tt.wantState)
			}

			switch tt.wantState {
			case auth.ExtractionCredentials:
				if got.Credentials().Get(FieldUsername) != tt.wantUser {
					t.Errorf("username = %q, want %q", got.Credentials().Get(FieldUsername), tt.wantUser)
				}
				if got.Credentials().Get(FieldPassword) != tt.wantPass {
					t.Errorf("password = %q, want %q", got.Credentials().Get(FieldPassword), tt.wantPass)
				}
			case auth.ExtractionResolved:
				if !got.Result().IsFailure() || !errors.Is(got.Result().Reason(), auth.ErrUnauthenticated) {
					t.Errorf("result = %v, want unauthenticated failure", got.Result())
				}
			}
		})
	}
}

func TestChallenge(t *testing.T) {
	p := New("staging")
	rec := httptest.NewRecorder()

	ok, err := p.Challenge(context.Background(), httptest.NewRequest("GET", "/", nil), rec)
	if err != nil || !ok {
		t.Fatalf("Challenge = (%v, %v), want (true, nil)", ok, err)
	}

	want := `Basic realm="staging", charset="UTF-8"`
	if got := rec.Header().Get("WWW-Authenticate"); got != want {
		t.Errorf("WWW-Authenticate = %q, want %q", got, want)
	}
}

func TestNew_DefaultRealm(t *testing.T) {
	if p := New(""); p.realm != "warden" {
		t.Errorf("realm = %q, want %q", p.realm, "warden")
	}
}
