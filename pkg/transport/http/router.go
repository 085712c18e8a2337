package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/auth/session"
	"github.com/rhuss/warden/pkg/observability"
	"github.com/rhuss/warden/pkg/transport"
)

// RouterOptions controls the construction of the warden HTTP router.
type RouterOptions struct {
	Service *auth.HTTPService

	// Sessions enables cookie issuance on login. Optional.
	Sessions *session.Plugin

	// BypassPaths skip the guard. Defaults to DefaultBypassPaths.
	BypassPaths []string

	// Metrics is served at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string

	// Ready lists the dependencies /readyz checks.
	Ready []HealthChecker

	Logger *slog.Logger
}

// NewRouter assembles a chi.Router with the shared middleware and the
// warden endpoints:
//
//	GET  /healthz   liveness
//	GET  /readyz    readiness of storage
//	POST /login     authenticate and issue a session
//	POST /logout    reset credentials
//	GET  /whoami    identity of the caller (guarded)
//	*    /verify    forward-auth endpoint (guarded)
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bypass := opts.BypassPaths
	if bypass == nil {
		bypass = DefaultBypassPaths
	}

	r := chi.NewRouter()
	r.Use(
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(logger),
		observability.MetricsMiddleware,
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		transport.WriteError(w, http.StatusNotFound, transport.ErrorTypeInvalidRequest, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		transport.WriteError(w, http.StatusMethodNotAllowed, transport.ErrorTypeInvalidRequest, "method not allowed")
	})

	r.Get("/healthz", healthHandler)
	r.Get("/readyz", ReadyHandler(opts.Ready...))
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, opts.Metrics)
	}

	r.Post("/login", LoginHandler(opts.Service, opts.Sessions, logger))
	r.Post("/logout", LogoutHandler(opts.Service, opts.Sessions, logger))

	r.Group(func(r chi.Router) {
		r.Use(Guard(opts.Service, GuardOptions{BypassPaths: bypass, Logger: logger}))
		r.Get("/whoami", WhoAmIHandler())
		r.HandleFunc("/verify", VerifyHandler())
	})

	return r
}
