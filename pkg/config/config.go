// Package config provides unified configuration for warden.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (WARDEN_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Plugin names accepted in auth.plugins.
const (
	PluginThrottle = "throttle"
	PluginSession  = "session"
	PluginBasic    = "basic"
	PluginBearer   = "bearer"
	PluginAPIKey   = "apikey"
	PluginJWT      = "jwt"
	PluginLDAP     = "ldap"
	PluginPassword = "password"
)

// KnownPlugins lists every plugin name in a sensible registration order.
var KnownPlugins = []string{
	PluginThrottle,
	PluginSession,
	PluginBasic,
	PluginBearer,
	PluginAPIKey,
	PluginJWT,
	PluginLDAP,
	PluginPassword,
}

// Config holds all configuration for warden.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 15s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Realm is announced in Basic and Bearer challenges.
	Realm string `yaml:"realm"` // default: "warden"

	// Plugins lists the plugins to register, in order. Order matters:
	// extractors and authenticators are consulted in this order.
	Plugins []string `yaml:"plugins"`

	// Anonymous registers the noop listener, granting an anonymous
	// identity when nothing else answers.
	Anonymous bool `yaml:"anonymous"`

	// BypassPaths are served without authentication.
	BypassPaths []string `yaml:"bypass_paths"`

	APIKeys  []APIKeyConfig `yaml:"api_keys"`
	JWT      JWTConfig      `yaml:"jwt"`
	LDAP     LDAPConfig     `yaml:"ldap"`
	Users    []UserConfig   `yaml:"users"`
	Session  SessionConfig  `yaml:"session"`
	Throttle ThrottleConfig `yaml:"throttle"`
}

// Enabled reports whether the named plugin is listed.
func (a *AuthConfig) Enabled(name string) bool {
	for _, p := range a.Plugins {
		if p == name {
			return true
		}
	}
	return false
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string   `yaml:"key" json:"key"`
	KeyFile     string   `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string   `yaml:"subject" json:"subject"`
	TenantID    string   `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig configures JWT validation.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`   // default: "sub"
	TenantClaim string        `yaml:"tenant_claim"` // default: "tenant_id"
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	TierClaim   string        `yaml:"tier_claim"`   // default: "tier"
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default: 1h
	Leeway      time.Duration `yaml:"leeway"`
}

// LDAPConfig configures directory authentication.
type LDAPConfig struct {
	URL                string        `yaml:"url"` // ldap:// or ldaps://
	BaseDN             string        `yaml:"base_dn"`
	BindDN             string        `yaml:"bind_dn"`
	BindPassword       string        `yaml:"bind_password"`
	BindPasswordFile   string        `yaml:"bind_password_file"` // _file variant for bind_password
	UserFilter         string        `yaml:"user_filter"`        // default: "(uid=%s)"
	GroupFilter        string        `yaml:"group_filter"`
	GroupAttribute     string        `yaml:"group_attribute"` // default: "cn"
	RequireGroup       string        `yaml:"require_group"`
	TenantAttribute    string        `yaml:"tenant_attribute"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"` // default: 10s
}

// UserConfig describes a local account seeded into the user store.
type UserConfig struct {
	Username         string   `yaml:"username"`
	PasswordHash     string   `yaml:"password_hash"`      // bcrypt, see "warden hash-password"
	PasswordHashFile string   `yaml:"password_hash_file"` // _file variant for password_hash
	ServiceTier      string   `yaml:"service_tier"`
	TenantID         string   `yaml:"tenant_id"`
	Scopes           []string `yaml:"scopes"`
}

// SessionConfig configures cookie sessions.
type SessionConfig struct {
	CookieName      string        `yaml:"cookie_name"`      // default: "warden_session"
	Secure          bool          `yaml:"secure"`           // default: true
	TTL             time.Duration `yaml:"ttl"`              // default: 12h
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // default: 5m
}

// ThrottleConfig configures the pre-authentication throttle.
//
// Every guarded request without a live session counts against Limit,
// including API-key, bearer and /verify traffic. Behind a reverse proxy
// without trust_forwarded_for, all clients share the proxy's budget.
type ThrottleConfig struct {
	Limit             int           `yaml:"limit"`  // requests per client per window, default: 60
	Window            time.Duration `yaml:"window"` // default: 1m
	TrustForwardedFor bool          `yaml:"trust_forwarded_for"`
	TrustedHops       int           `yaml:"trusted_hops"` // proxies appending X-Forwarded-For, default: 1
}

// StorageConfig holds session and user storage settings.
type StorageConfig struct {
	Type        string         `yaml:"type"`         // "memory" or "postgres", default: "memory"
	MaxSessions int            `yaml:"max_sessions"` // for memory store, default: 10000
	Postgres    PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log settings. WARDEN_LOG_LEVEL and WARDEN_DEBUG
// take precedence at startup.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Debug  string `yaml:"debug"`  // comma-separated debug categories
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Realm:       "warden",
			BypassPaths: []string{"/healthz", "/readyz", "/metrics"},
			Session: SessionConfig{
				CookieName:      "warden_session",
				Secure:          true,
				TTL:             12 * time.Hour,
				CleanupInterval: 5 * time.Minute,
			},
			Throttle: ThrottleConfig{
				Limit:       60,
				Window:      time.Minute,
				TrustedHops: 1,
			},
		},
		Storage: StorageConfig{
			Type:        "memory",
			MaxSessions: 10000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
