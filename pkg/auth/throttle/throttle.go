// Package throttle limits authentication attempts per client before any
// credential is looked at. It listens on authenticate.pre and answers with
// a rate-limit failure once a client exceeds its budget for the window.
package throttle

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/debug"
	"github.com/rhuss/warden/pkg/observability"
)

// Config holds throttle settings.
type Config struct {
	// Limit is the number of attempts allowed per client per window.
	// Zero disables throttling.
	Limit int

	// Window is the length of a counting window. Default: 1 minute.
	Window time.Duration

	// TrustForwardedFor keys clients by the X-Forwarded-For entry written
	// by the outermost trusted proxy instead of the connection address.
	TrustForwardedFor bool

	// TrustedHops is the number of trusted proxies appending to
	// X-Forwarded-For. The client key is the TrustedHops-th entry from the
	// right; entries left of it are client supplied. Default: 1.
	TrustedHops int

	// Exempt, when set, lets requests through without counting them.
	// Used to keep requests with a live session off the budget.
	Exempt func(ctx context.Context, r *http.Request) bool
}

// Limiter is a fixed-window counter keyed by an arbitrary client key.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
	sweptAt  time.Time
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewLimiter creates a limiter allowing limit hits per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Allow records a hit for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= l.window {
		l.counters[key] = &counter{count: 1, windowAt: now}
		return true
	}

	c.count++
	return c.count <= l.limit
}

// sweep drops counters whose window has passed, at most once per window.
// Must be called with mu held.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.sweptAt) < l.window {
		return
	}
	for k, c := range l.counters {
		if now.Sub(c.windowAt) >= l.window {
			delete(l.counters, k)
		}
	}
	l.sweptAt = now
}

// Plugin throttles authentication per client address.
type Plugin struct {
	limiter        *Limiter
	trustForwarded bool
	trustedHops    int
	exempt         func(context.Context, *http.Request) bool
}

var _ auth.EventAware[*http.Request, http.ResponseWriter] = (*Plugin)(nil)

// New creates a throttle plugin.
func New(cfg Config) *Plugin {
	if cfg.TrustedHops <= 0 {
		cfg.TrustedHops = 1
	}
	return &Plugin{
		limiter:        NewLimiter(cfg.Limit, cfg.Window),
		trustForwarded: cfg.TrustForwardedFor,
		trustedHops:    cfg.TrustedHops,
		exempt:         cfg.Exempt,
	}
}

// AttachToEvents registers the pre-authentication listener.
func (p *Plugin) AttachToEvents(bus *auth.EventBus[*http.Request, http.ResponseWriter]) {
	bus.Attach(auth.EventPreAuthenticate, p.onPreAuthenticate)
}

func (p *Plugin) onPreAuthenticate(ctx context.Context, e *auth.Event[*http.Request, http.ResponseWriter]) (*auth.Result, error) {
	if p.exempt != nil && p.exempt(ctx, e.Request) {
		return nil, nil
	}

	key := p.clientKey(e.Request)
	if p.limiter.Allow(key) {
		return nil, nil
	}

	debug.Log("plugins", "authentication throttled", "client", key)
	observability.ThrottleRejectedTotal.WithLabelValues("client").Inc()
	return auth.Failure(fmt.Errorf("client %s: %w", key, auth.ErrTooManyRequests)), nil
}

// clientKey returns the address a request is attributed to. With trusted
// forwarding, only the entries appended by trusted proxies are read, so a
// client cannot pick its own key by prepending values.
func (p *Plugin) clientKey(r *http.Request) string {
	if p.trustForwarded {
		if ip := forwardedClient(r.Header.Values("X-Forwarded-For"), p.trustedHops); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedClient returns the hops-th X-Forwarded-For entry counted from
// the right, or the leftmost entry when the chain is shorter than hops.
func forwardedClient(headers []string, hops int) string {
	var entries []string
	for _, h := range headers {
		for _, part := range strings.Split(h, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				entries = append(entries, ip)
			}
		}
	}
	if len(entries) == 0 {
		return ""
	}
	if hops > len(entries) {
		return entries[0]
	}
	return entries[len(entries)-hops]
}
