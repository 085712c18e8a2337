package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/warden/pkg/auth"
)

// Logging returns middleware that emits one structured log entry per
// request with method, path, status, duration, request ID and, once the
// guard has run, the authenticated subject. Server errors log at ERROR,
// client errors at WARN, everything else at INFO.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// The guard stores the identity in a derived request, so read
			// it back through a holder placed in the context up front.
			holder := &identityHolder{}
			next.ServeHTTP(rec, r.WithContext(withIdentityHolder(r.Context(), holder)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			}
			if holder.identity != nil {
				attrs = append(attrs, slog.String("subject", holder.identity.Subject))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}

// RecordIdentity makes identity visible to the Logging middleware for the
// current request. It is a no-op outside a Logging-wrapped handler.
func RecordIdentity(r *http.Request, identity *auth.Identity) {
	if h := identityHolderFrom(r.Context()); h != nil {
		h.identity = identity
	}
}
