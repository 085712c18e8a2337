package http

import (
	"context"
	"encoding/json"
	"errors"
	gohttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/auth/apikey"
	"github.com/rhuss/warden/pkg/auth/bearer"
	"github.com/rhuss/warden/pkg/transport"
)

// resultListener answers authenticate.pre with a fixed outcome.
type resultListener struct {
	result *auth.Result
	err    error
}

func (l resultListener) AttachToEvents(bus *auth.EventBus[*gohttp.Request, gohttp.ResponseWriter]) {
	bus.Attach(auth.EventPreAuthenticate, func(context.Context, *auth.Event[*gohttp.Request, gohttp.ResponseWriter]) (*auth.Result, error) {
		return l.result, l.err
	})
}

func newAPIKeyService() *auth.HTTPService {
	svc := auth.NewHTTPService()
	svc.MustAddPlugin(bearer.New("test")).MustAddPlugin(apikey.New([]apikey.RawKeyEntry{{
		Key: "sk-alice",
		Identity: auth.Identity{
			Subject:  "alice",
			Metadata: map[string]string{"tenant_id": "org-1"},
		},
	}}))
	return svc
}

func okHandler(seen **gohttp.Request) gohttp.Handler {
	return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		*seen = r
		w.WriteHeader(gohttp.StatusOK)
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) transport.ErrorBody {
	t.Helper()
	var resp transport.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}

func TestGuard_BypassPath(t *testing.T) {
	var seen *gohttp.Request
	handler := Guard(newAPIKeyService(), GuardOptions{BypassPaths: DefaultBypassPaths})(okHandler(&seen))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != gohttp.StatusOK || seen == nil {
		t.Errorf("bypass path: status = %d, handler ran = %v", rec.Code, seen != nil)
	}
}

func TestGuard_SuccessSetsContext(t *testing.T) {
	var seen *gohttp.Request
	handler := Guard(newAPIKeyService(), GuardOptions{})(okHandler(&seen))

	r := httptest.NewRequest("GET", "/whoami", nil)
	r.Header.Set("Authorization", "Bearer sk-alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != gohttp.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	id := auth.IdentityFromContext(seen.Context())
	if id == nil || id.Subject != "alice" {
		t.Fatalf("identity = %+v, want alice", id)
	}
	if tenant := id.TenantID(); tenant != "org-1" {
		t.Errorf("tenant = %q, want org-1", tenant)
	}
}

func TestGuard_ChallengeWhenNoCredentials(t *testing.T) {
	var seen *gohttp.Request
	handler := Guard(newAPIKeyService(), GuardOptions{})(okHandler(&seen))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/whoami", nil))

	if rec.Code != gohttp.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer realm="test"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	if seen != nil {
		t.Error("protected handler ran")
	}
}

func TestGuard_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		listener   *resultListener
		wantStatus int
		wantType   string
	}{
		{"no plugins answer", nil, gohttp.StatusUnauthorized, transport.ErrorTypeUnauthenticated},
		{"failure", &resultListener{result: auth.Failure(nil)}, gohttp.StatusUnauthorized, transport.ErrorTypeUnauthenticated},
		{"throttled", &resultListener{result: auth.Failure(auth.ErrTooManyRequests)}, gohttp.StatusTooManyRequests, transport.ErrorTypeTooManyRequests},
		{"forbidden", &resultListener{result: auth.Failure(auth.ErrForbidden)}, gohttp.StatusForbidden, transport.ErrorTypeForbidden},
		{"challenge", &resultListener{result: auth.Challenge("custom")}, gohttp.StatusUnauthorized, transport.ErrorTypeUnauthenticated},
		{"plugin error", &resultListener{err: errors.New("backend down")}, gohttp.StatusInternalServerError, transport.ErrorTypeServer},
		{"success without subject", &resultListener{result: auth.Success(&auth.Identity{}, nil)}, gohttp.StatusInternalServerError, transport.ErrorTypeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := auth.NewHTTPService()
			if tt.listener != nil {
				svc.MustAddPlugin(*tt.listener)
			}

			var seen *gohttp.Request
			rec := httptest.NewRecorder()
			Guard(svc, GuardOptions{})(okHandler(&seen)).ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body := decodeError(t, rec); body.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", body.Type, tt.wantType)
			}
			if seen != nil {
				t.Error("protected handler ran")
			}
		})
	}
}

func TestGuard_FailureReasonNotEchoed(t *testing.T) {
	svc := auth.NewHTTPService()
	svc.MustAddPlugin(resultListener{result: auth.Failure(errors.New("user alice has password hunter2"))})

	var seen *gohttp.Request
	rec := httptest.NewRecorder()
	Guard(svc, GuardOptions{})(okHandler(&seen)).ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))

	if body := decodeError(t, rec); body.Message != auth.ErrUnauthenticated.Error() {
		t.Errorf("message = %q, want generic message", body.Message)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		result *auth.Result
		err    error
		want   string
	}{
		{auth.Success(&auth.Identity{Subject: "a"}, nil), nil, "success"},
		{auth.Failure(nil), nil, "failure"},
		{auth.Challenge("x"), nil, "challenge"},
		{nil, auth.ErrNoResult, "no_result"},
		{nil, errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		if got := Outcome(tt.result, tt.err); got != tt.want {
			t.Errorf("Outcome(%v, %v) = %q, want %q", tt.result, tt.err, got, tt.want)
		}
	}
}
