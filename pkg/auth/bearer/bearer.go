// Package bearer extracts bearer tokens (RFC 6750) from the Authorization
// header and issues Bearer challenges. The token is handed on in the
// "token" credential field; apikey and jwt authenticate it.
package bearer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/debug"
)

// FieldToken is the credential field holding the raw token.
const FieldToken = "token"

// Plugin extracts bearer tokens and challenges for them.
type Plugin struct {
	realm string
}

var (
	_ auth.Extractor[*http.Request, http.ResponseWriter]  = (*Plugin)(nil)
	_ auth.Challenger[*http.Request, http.ResponseWriter] = (*Plugin)(nil)
)

// New creates a bearer plugin announcing realm in its challenges.
func New(realm string) *Plugin {
	if realm == "" {
		realm = "warden"
	}
	return &Plugin{realm: realm}
}

// ExtractCredentials defers when no Bearer header is present. An empty
// token is rejected outright.
func (p *Plugin) ExtractCredentials(_ context.Context, r *http.Request, _ http.ResponseWriter) (auth.Extraction, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Defer(), nil
	}

	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return auth.Defer(), nil
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Resolved(auth.Failure(fmt.Errorf("empty bearer token: %w", auth.ErrUnauthenticated))), nil
	}

	debug.Trace("plugins", "bearer token extracted", "token", debug.Redact(token))
	return auth.Extracted(auth.Credentials{FieldToken: token}), nil
}

// Challenge adds a Bearer WWW-Authenticate header.
func (p *Plugin) Challenge(_ context.Context, _ *http.Request, w http.ResponseWriter) (bool, error) {
	w.Header().Add("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q", p.realm))
	return true, nil
}
