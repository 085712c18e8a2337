// Package http mounts warden's authentication service on net/http: a
// guard middleware, login/logout/whoami handlers, a forward-auth verify
// endpoint, and a server with graceful shutdown.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/observability"
	"github.com/rhuss/warden/pkg/transport"
)

// DefaultBypassPaths lists endpoints that skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/readyz", "/metrics"}

// GuardOptions configures Guard.
type GuardOptions struct {
	// BypassPaths are passed through without authentication.
	BypassPaths []string

	Logger *slog.Logger
}

// Guard returns middleware that authenticates every request through svc.
//
// On success the identity is stored in the request context and the request
// proceeds. Every other outcome is answered here: challenges and unanswered
// requests get 401, failures get 401, 403 or 429 depending on the reason,
// and plugin errors get 500.
func Guard(svc *auth.HTTPService, opts GuardOptions) transport.Middleware {
	bypass := make(map[string]bool, len(opts.BypassPaths))
	for _, p := range opts.BypassPaths {
		bypass[p] = true
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result, ok := authenticate(svc, w, r, logger)
			if !ok {
				return
			}

			identity := result.Identity()
			ctx := auth.SetIdentity(r.Context(), identity)
			transport.RecordIdentity(r, identity)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate runs the pipeline and records metrics. It returns the
// success result, or writes the error response and reports false.
func authenticate(svc *auth.HTTPService, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*auth.Result, bool) {
	start := time.Now()
	result, err := svc.Authenticate(r.Context(), r, w)
	elapsed := time.Since(start)

	outcome := Outcome(result, err)
	observability.ObserveAuth(outcome, elapsed)

	if outcome == observability.OutcomeSuccess {
		if result.Identity() == nil || result.Identity().Subject == "" {
			logger.Error("plugin returned success without a subject", "path", r.URL.Path)
			transport.WriteError(w, http.StatusInternalServerError, transport.ErrorTypeServer, "internal authentication error")
			return nil, false
		}
		logger.Debug("authentication succeeded",
			"subject", result.Identity().Subject,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		return result, true
	}

	attrs := []any{
		"outcome", outcome,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"request_id", transport.RequestIDFromContext(r.Context()),
	}
	switch {
	case err != nil && outcome == observability.OutcomeError:
		logger.Error("authentication error", append(attrs, "error", err)...)
	case result != nil && result.IsFailure():
		logger.Warn("authentication failed", append(attrs, "reason", result.Reason())...)
	default:
		logger.Debug("authentication required", attrs...)
	}

	WriteAuthError(w, result, err)
	return nil, false
}

// Outcome classifies a pipeline result for metrics and logging.
func Outcome(result *auth.Result, err error) string {
	switch {
	case errors.Is(err, auth.ErrNoResult):
		return observability.OutcomeNoResult
	case err != nil:
		return observability.OutcomeError
	case result.IsSuccess():
		return observability.OutcomeSuccess
	case result.IsChallenge():
		return observability.OutcomeChallenge
	default:
		return observability.OutcomeFailure
	}
}

// StatusFor maps a non-success pipeline outcome to an HTTP status and
// error type.
func StatusFor(result *auth.Result, err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrNoResult):
		return http.StatusUnauthorized, transport.ErrorTypeUnauthenticated
	case err != nil:
		return http.StatusInternalServerError, transport.ErrorTypeServer
	case result.IsChallenge():
		return http.StatusUnauthorized, transport.ErrorTypeUnauthenticated
	case errors.Is(result.Reason(), auth.ErrTooManyRequests):
		return http.StatusTooManyRequests, transport.ErrorTypeTooManyRequests
	case errors.Is(result.Reason(), auth.ErrForbidden):
		return http.StatusForbidden, transport.ErrorTypeForbidden
	default:
		return http.StatusUnauthorized, transport.ErrorTypeUnauthenticated
	}
}

// WriteAuthError answers a request whose authentication did not succeed.
// Challenge headers set by challengers are already on w. Failure reasons
// are not echoed beyond their category.
func WriteAuthError(w http.ResponseWriter, result *auth.Result, err error) {
	status, errType := StatusFor(result, err)

	var msg string
	switch status {
	case http.StatusTooManyRequests:
		msg = auth.ErrTooManyRequests.Error()
	case http.StatusForbidden:
		msg = auth.ErrForbidden.Error()
	case http.StatusInternalServerError:
		msg = "internal authentication error"
	default:
		msg = auth.ErrUnauthenticated.Error()
	}
	transport.WriteError(w, status, errType, msg)
}
