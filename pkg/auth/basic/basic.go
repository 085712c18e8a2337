// Package basic extracts HTTP Basic credentials (RFC 7617) and issues
// Basic challenges. Pair it with an authenticator that understands the
// "username" and "password" fields, such as the password plugin.
package basic

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/debug"
)

// Credential field names produced by the extractor.
const (
	FieldUsername = "username"
	FieldPassword = "password"
)

// Plugin extracts Basic credentials and challenges for them.
type Plugin struct {
	realm string
}

var (
	_ auth.Extractor[*http.Request, http.ResponseWriter]  = (*Plugin)(nil)
	_ auth.Challenger[*http.Request, http.ResponseWriter] = (*Plugin)(nil)
)

// New creates a Basic plugin announcing realm in its challenges.
func New(realm string) *Plugin {
	if realm == "" {
		realm = "warden"
	}
	return &Plugin{realm: realm}
}

// ExtractCredentials defers when there is no Basic Authorization header and
// resolves to a failure when the header is malformed.
func (p *Plugin) ExtractCredentials(_ context.Context, r *http.Request, _ http.ResponseWriter) (auth.Extraction, error) {
	header := r.Header.Get("Authorization")
	scheme, payload, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return auth.Defer(), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		debug.Log("plugins", "malformed basic credentials", "error", err)
		return auth.Resolved(auth.Failure(fmt.Errorf("malformed basic credentials: %w", auth.ErrUnauthenticated))), nil
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok || username == "" {
		return auth.Resolved(auth.Failure(fmt.Errorf("malformed basic credentials: %w", auth.ErrUnauthenticated))), nil
	}

	return auth.Extracted(auth.Credentials{
		FieldUsername: username,
		FieldPassword: password,
	}), nil
}

// Challenge adds a Basic WWW-Authenticate header. The status code is left
// to the caller so several challengers can contribute headers.
func (p *Plugin) Challenge(_ context.Context, _ *http.Request, w http.ResponseWriter) (bool, error) {
	w.Header().Add("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q, charset="UTF-8"`, p.realm))
	return true, nil
}
