package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
		errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
	}

	errs = append(errs, c.Auth.validate(c.Storage.Type)...)

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func (a *AuthConfig) validate(storageType string) []error {
	var errs []error

	if len(a.Plugins) == 0 && !a.Anonymous {
		errs = append(errs, fmt.Errorf("auth.plugins must list at least one plugin unless auth.anonymous is true"))
	}

	seen := make(map[string]bool, len(a.Plugins))
	for i, name := range a.Plugins {
		if !slices.Contains(KnownPlugins, name) {
			errs = append(errs, fmt.Errorf("auth.plugins[%d]: unknown plugin %q (known: %s)", i, name, strings.Join(KnownPlugins, ", ")))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("auth.plugins[%d]: plugin %q listed twice", i, name))
		}
		seen[name] = true
	}

	// Extractors need an authenticator that understands their credentials.
	if seen[PluginBasic] && !seen[PluginPassword] && !seen[PluginLDAP] {
		errs = append(errs, fmt.Errorf("auth.plugins: %q requires %q or %q", PluginBasic, PluginPassword, PluginLDAP))
	}
	if seen[PluginBearer] && !seen[PluginAPIKey] && !seen[PluginJWT] {
		errs = append(errs, fmt.Errorf("auth.plugins: %q requires %q or %q", PluginBearer, PluginAPIKey, PluginJWT))
	}

	if seen[PluginAPIKey] {
		if len(a.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys is required when %q is enabled", PluginAPIKey))
		}
		for i, k := range a.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: subject is required", i))
			}
		}
	}

	if seen[PluginJWT] && a.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when %q is enabled", PluginJWT))
	}

	if seen[PluginLDAP] {
		if a.LDAP.URL == "" {
			errs = append(errs, fmt.Errorf("auth.ldap.url is required when %q is enabled", PluginLDAP))
		} else if !strings.HasPrefix(a.LDAP.URL, "ldap://") && !strings.HasPrefix(a.LDAP.URL, "ldaps://") {
			errs = append(errs, fmt.Errorf("auth.ldap.url must start with ldap:// or ldaps://, got %q", a.LDAP.URL))
		}
		if a.LDAP.BaseDN == "" {
			errs = append(errs, fmt.Errorf("auth.ldap.base_dn is required when %q is enabled", PluginLDAP))
		}
		if a.LDAP.UserFilter != "" && strings.Count(a.LDAP.UserFilter, "%s") != 1 {
			errs = append(errs, fmt.Errorf("auth.ldap.user_filter must contain exactly one %%s, got %q", a.LDAP.UserFilter))
		}
	}

	// With postgres, accounts may already live in the database.
	if seen[PluginPassword] && len(a.Users) == 0 && storageType != "postgres" {
		errs = append(errs, fmt.Errorf("auth.users is required when %q is enabled with memory storage", PluginPassword))
	}
	for i, u := range a.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Errorf("auth.users[%d]: username is required", i))
		}
		if u.PasswordHash == "" && u.PasswordHashFile == "" {
			errs = append(errs, fmt.Errorf("auth.users[%d]: password_hash or password_hash_file is required", i))
		}
	}

	if seen[PluginSession] && a.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.session.ttl must be > 0"))
	}
	if seen[PluginThrottle] && a.Throttle.Limit < 0 {
		errs = append(errs, fmt.Errorf("auth.throttle.limit must be >= 0, got %d", a.Throttle.Limit))
	}
	if seen[PluginThrottle] && a.Throttle.TrustedHops < 1 {
		errs = append(errs, fmt.Errorf("auth.throttle.trusted_hops must be >= 1, got %d", a.Throttle.TrustedHops))
	}

	return errs
}
