package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/auth/session"
	"github.com/rhuss/warden/pkg/observability"
	"github.com/rhuss/warden/pkg/transport"
)

// IdentityResponse is the JSON body returned by login and whoami.
type IdentityResponse struct {
	Subject     string            `json:"subject"`
	TenantID    string            `json:"tenant_id,omitempty"`
	ServiceTier string            `json:"service_tier,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Method      string            `json:"method,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func identityResponse(id *auth.Identity, method string) IdentityResponse {
	resp := IdentityResponse{
		Subject:     id.Subject,
		TenantID:    id.TenantID(),
		ServiceTier: id.ServiceTier,
		Scopes:      id.Scopes,
		Method:      method,
	}
	if len(id.Metadata) > 0 {
		resp.Metadata = make(map[string]string, len(id.Metadata))
		for k, v := range id.Metadata {
			if k != "tenant_id" {
				resp.Metadata[k] = v
			}
		}
		if len(resp.Metadata) == 0 {
			resp.Metadata = nil
		}
	}
	return resp
}

// LoginHandler authenticates the request and, when sessions is non-nil,
// issues a session cookie for the identity. A request that already carries
// a live session is answered without issuing a new one.
func LoginHandler(svc *auth.HTTPService, sessions *session.Plugin, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := authenticate(svc, w, r, logger)
		if !ok {
			return
		}

		identity := result.Identity()
		method := result.Metadata()["method"]
		resp := identityResponse(identity, method)

		if sessions != nil && method != "session" {
			sess, err := sessions.Issue(r.Context(), w, identity)
			if err != nil {
				logger.Error("issuing session failed", "subject", identity.Subject, "error", err)
				transport.WriteError(w, http.StatusInternalServerError, transport.ErrorTypeServer, "could not create session")
				return
			}
			resp.ExpiresAt = &sess.ExpiresAt
		}

		logger.Info("login", "subject", identity.Subject, "method", method)
		transport.WriteJSON(w, http.StatusOK, resp)
	}
}

// LogoutHandler resets credentials through every resetter plugin and
// clears the session cookie. It answers 204 even when the caller was not
// logged in.
func LogoutHandler(svc *auth.HTTPService, sessions *session.Plugin, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.ResetCredentials(r.Context(), r)
		observability.ObserveReset(err)
		if sessions != nil {
			sessions.Clear(w)
		}
		if err != nil {
			logger.Error("credential reset failed", "error", err)
			transport.WriteError(w, http.StatusInternalServerError, transport.ErrorTypeServer, "logout failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// WhoAmIHandler reports the identity the guard stored in the context.
func WhoAmIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := auth.IdentityFromContext(r.Context())
		if identity == nil {
			transport.WriteError(w, http.StatusUnauthorized, transport.ErrorTypeUnauthenticated, auth.ErrUnauthenticated.Error())
			return
		}
		transport.WriteJSON(w, http.StatusOK, identityResponse(identity, ""))
	}
}

// Headers set by VerifyHandler for reverse proxies doing forward auth.
const (
	HeaderSubject = "X-Warden-Subject"
	HeaderTenant  = "X-Warden-Tenant"
	HeaderTier    = "X-Warden-Tier"
	HeaderScopes  = "X-Warden-Scopes"
)

// VerifyHandler answers forward-auth subrequests (nginx auth_request,
// Traefik ForwardAuth). Behind the guard it only runs for authenticated
// requests and reports the identity in response headers.
func VerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := auth.IdentityFromContext(r.Context())
		if identity == nil {
			transport.WriteError(w, http.StatusUnauthorized, transport.ErrorTypeUnauthenticated, auth.ErrUnauthenticated.Error())
			return
		}

		h := w.Header()
		h.Set(HeaderSubject, identity.Subject)
		if tenant := identity.TenantID(); tenant != "" {
			h.Set(HeaderTenant, tenant)
		}
		if identity.ServiceTier != "" {
			h.Set(HeaderTier, identity.ServiceTier)
		}
		if len(identity.Scopes) > 0 {
			h.Set(HeaderScopes, strings.Join(identity.Scopes, " "))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthChecker is implemented by stores that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadyHandler reports 200 when every checker is healthy and 503 otherwise.
func ReadyHandler(checkers ...HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range checkers {
			if err := c.HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "error", err)
				transport.WriteError(w, http.StatusServiceUnavailable, transport.ErrorTypeServer, "not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
