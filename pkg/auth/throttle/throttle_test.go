package throttle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/warden/pkg/auth"
)

func TestLimiter_FixedWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false, false} {
		if got := l.Allow("a"); got != want {
			t.Errorf("hit %d: Allow = %v, want %v", i+1, got, want)
		}
	}

	if !l.Allow("b") {
		t.Error("other key should have its own budget")
	}

	now = now.Add(time.Minute)
	if !l.Allow("a") {
		t.Error("new window should reset the budget")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatalf("hit %d rejected with limit disabled", i+1)
		}
	}
}

func TestLimiter_SweepsStaleCounters(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	now = now.Add(2 * time.Minute)
	l.Allow("c")

	if n := len(l.counters); n != 1 {
		t.Errorf("counters = %d, want 1 after sweep", n)
	}
}

func newRequest(remote, forwarded string) *http.Request {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = remote
	if forwarded != "" {
		r.Header.Set("X-Forwarded-For", forwarded)
	}
	return r
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name      string
		trust     bool
		hops      int
		remote    string
		forwarded string
		want      string
	}{
		{"remote addr", false, 0, "10.0.0.1:5555", "", "10.0.0.1"},
		{"forwarded ignored", false, 0, "10.0.0.1:5555", "203.0.113.9", "10.0.0.1"},
		{"forwarded trusted", true, 0, "10.0.0.1:5555", "203.0.113.9", "203.0.113.9"},
		{"client prefix ignored", true, 0, "10.0.0.1:5555", "192.0.2.77, 203.0.113.9", "203.0.113.9"},
		{"two trusted hops", true, 2, "10.0.0.1:5555", "192.0.2.77, 203.0.113.9, 10.0.0.2", "203.0.113.9"},
		{"chain shorter than hops", true, 3, "10.0.0.1:5555", "203.0.113.9, 10.0.0.2", "203.0.113.9"},
		{"blank entries skipped", true, 0, "10.0.0.1:5555", "203.0.113.9, ,", "203.0.113.9"},
		{"trusted without header", true, 0, "10.0.0.1:5555", "", "10.0.0.1"},
		{"no port", false, 0, "10.0.0.1", "", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{Limit: 1, TrustForwardedFor: tt.trust, TrustedHops: tt.hops})
			if got := p.clientKey(newRequest(tt.remote, tt.forwarded)); got != tt.want {
				t.Errorf("clientKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientKey_MultipleHeaders(t *testing.T) {
	p := New(Config{Limit: 1, TrustForwardedFor: true})
	r := newRequest("10.0.0.1:5555", "192.0.2.77")
	r.Header.Add("X-Forwarded-For", "203.0.113.9")

	if got := p.clientKey(r); got != "203.0.113.9" {
		t.Errorf("clientKey = %q, want the last header's entry", got)
	}
}

func TestPlugin_RotatedForwardedPrefixStaysThrottled(t *testing.T) {
	svc := auth.NewHTTPService()
	svc.MustAddPlugin(New(Config{Limit: 1, Window: time.Minute, TrustForwardedFor: true})).MustAddPlugin(&stubExtractor{})

	allowed := 0
	for i := 0; i < 5; i++ {
		r := newRequest("10.0.0.1:5555", fmt.Sprintf("10.0.0.%d, 198.51.100.7", i))
		result, err := svc.Authenticate(context.Background(), r, httptest.NewRecorder())
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if !result.IsFailure() {
			allowed++
		}
	}

	if allowed != 1 {
		t.Errorf("allowed %d of 5 attempts with limit 1", allowed)
	}
}

func TestPlugin_ExemptRequestsNotCounted(t *testing.T) {
	svc := auth.NewHTTPService()
	svc.MustAddPlugin(New(Config{
		Limit:  1,
		Window: time.Minute,
		Exempt: func(_ context.Context, r *http.Request) bool {
			return r.Header.Get("Cookie") != ""
		},
	})).MustAddPlugin(&stubExtractor{})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		r := newRequest("192.0.2.1:1234", "")
		r.Header.Set("Cookie", "warden_session=live")
		result, err := svc.Authenticate(ctx, r, httptest.NewRecorder())
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsSuccess() {
			t.Fatalf("exempt attempt %d = %v, want success", i+1, result)
		}
	}

	// The budget is untouched, so one counted attempt still passes.
	first, _ := svc.Authenticate(ctx, newRequest("192.0.2.1:1234", ""), httptest.NewRecorder())
	second, _ := svc.Authenticate(ctx, newRequest("192.0.2.1:1234", ""), httptest.NewRecorder())
	if !first.IsSuccess() {
		t.Errorf("first counted attempt = %v, want success", first)
	}
	if !second.IsFailure() || !errors.Is(second.Reason(), auth.ErrTooManyRequests) {
		t.Errorf("second counted attempt = %v, want rate-limit failure", second)
	}
}

// stubExtractor records whether extraction ran.
type stubExtractor struct{ calls int }

func (s *stubExtractor) ExtractCredentials(context.Context, *http.Request, http.ResponseWriter) (auth.Extraction, error) {
	s.calls++
	return auth.Resolved(auth.Success(&auth.Identity{Subject: "alice"}, nil)), nil
}

func TestPlugin_ShortCircuitsPipeline(t *testing.T) {
	svc := auth.NewHTTPService()
	extractor := &stubExtractor{}
	svc.MustAddPlugin(New(Config{Limit: 2, Window: time.Minute})).MustAddPlugin(extractor)

	if n := svc.EventBus().Listeners(auth.EventPreAuthenticate); n != 1 {
		t.Fatalf("pre listeners = %d, want 1", n)
	}

	var last *auth.Result
	for i := 0; i < 3; i++ {
		result, err := svc.Authenticate(context.Background(), newRequest("192.0.2.1:1234", ""), httptest.NewRecorder())
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		last = result
	}

	if !last.IsFailure() || !errors.Is(last.Reason(), auth.ErrTooManyRequests) {
		t.Errorf("third attempt = %v, want rate-limit failure", last)
	}
	if extractor.calls != 2 {
		t.Errorf("extractor calls = %d, want 2", extractor.calls)
	}

	result, err := svc.Authenticate(context.Background(), newRequest("192.0.2.2:1234", ""), httptest.NewRecorder())
	if err != nil || !result.IsSuccess() {
		t.Errorf("other client = (%v, %v), want success", result, err)
	}
}
