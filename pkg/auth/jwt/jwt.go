// Package jwt provides an authenticator that validates JWT bearer tokens
// against a JWKS (JSON Web Key Set) endpoint.
//
// Tokens arrive in the "token" credential field. Values that are not
// shaped like a compact JWS are left for other authenticators, so jwt and
// apikey can share one bearer extractor.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/debug"
)

// FieldToken is the credential field this authenticator reads.
const FieldToken = "token"

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string

	// Audience is the expected aud claim. Empty disables the check.
	Audience string

	// JWKSURL is the URL of the JSON Web Key Set used for signature verification.
	JWKSURL string

	// UserClaim becomes the identity subject. Default: "sub".
	UserClaim string

	// TenantClaim becomes the tenant_id metadata. Default: "tenant_id".
	TenantClaim string

	// ScopesClaim holds authorization scopes, either space-separated or a
	// JSON array. Default: "scope".
	ScopesClaim string

	// TierClaim becomes the identity service tier. Default: "tier".
	TierClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration

	// HTTPClient is used for JWKS fetches. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator validates JWT tokens.
type Authenticator struct {
	config Config
	keys   *jwksCache
	parser *jwtlib.Parser
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwtlib.WithLeeway(cfg.Leeway))
	}

	return &Authenticator{
		config: cfg,
		keys:   newJWKSCache(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient),
		parser: jwtlib.NewParser(opts...),
	}
}

// AuthenticateCredentials validates the token credential.
//
// Outcomes:
//   - nil: no token, or the token is not shaped like a JWT
//   - Failure: a JWT that fails validation (expired, wrong issuer, bad signature)
//   - Success: a valid JWT, with subject, tenant, tier and scopes mapped from claims
//
// JWKS fetch failures are returned as errors, since they say nothing
// about the caller's credentials.
func (a *Authenticator) AuthenticateCredentials(ctx context.Context, creds auth.Credentials) (*auth.Result, error) {
	tokenStr := creds.Get(FieldToken)
	if !looksLikeJWT(tokenStr) {
		return nil, nil
	}

	var fetchErr error
	token, err := a.parser.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token missing kid header")
		}
		key, err := a.keys.getKey(ctx, kid)
		if err != nil && !errors.Is(err, errUnknownKID) {
			fetchErr = err
		}
		return key, err
	})
	if fetchErr != nil {
		return nil, fmt.Errorf("jwt: %w", fetchErr)
	}
	if err != nil {
		debug.Log("plugins", "JWT validation failed", "error", err)
		return auth.Failure(fmt.Errorf("invalid JWT: %w: %w", err, auth.ErrUnauthenticated)), nil
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return auth.Failure(fmt.Errorf("invalid JWT claims: %w", auth.ErrUnauthenticated)), nil
	}

	subject := claimString(claims, a.config.UserClaim)
	if subject == "" {
		return auth.Failure(fmt.Errorf("JWT missing %q claim: %w", a.config.UserClaim, auth.ErrUnauthenticated)), nil
	}

	identity := &auth.Identity{
		Subject:     subject,
		ServiceTier: claimString(claims, a.config.TierClaim),
		Scopes:      extractScopes(claims, a.config.ScopesClaim),
		Metadata:    make(map[string]string),
	}
	if tenant := claimString(claims, a.config.TenantClaim); tenant != "" {
		identity.Metadata["tenant_id"] = tenant
	}

	meta := map[string]string{"method": "jwt"}
	if iss := claimString(claims, "iss"); iss != "" {
		meta["issuer"] = iss
	}
	return auth.Success(identity, meta), nil
}

// looksLikeJWT reports whether s has the three dot-separated segments of a
// compact JWS.
func looksLikeJWT(s string) bool {
	return s != "" && strings.Count(s, ".") == 2
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// extractScopes accepts a space-separated string or a JSON array.
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		parts := strings.Fields(v)
		if len(parts) == 0 {
			return nil
		}
		return parts
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
