package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/auth/apikey"
	"github.com/rhuss/warden/pkg/auth/basic"
	"github.com/rhuss/warden/pkg/auth/bearer"
	"github.com/rhuss/warden/pkg/auth/jwt"
	"github.com/rhuss/warden/pkg/auth/ldap"
	"github.com/rhuss/warden/pkg/auth/noop"
	"github.com/rhuss/warden/pkg/auth/password"
	"github.com/rhuss/warden/pkg/auth/session"
	"github.com/rhuss/warden/pkg/auth/throttle"
	"github.com/rhuss/warden/pkg/config"
	"github.com/rhuss/warden/pkg/debug"
	"github.com/rhuss/warden/pkg/storage"
	"github.com/rhuss/warden/pkg/storage/memory"
	"github.com/rhuss/warden/pkg/storage/postgres"
)

// store is what the gateway needs from a storage backend.
type store interface {
	storage.SessionStore
	storage.UserStore
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Storage.Postgres.MaxConns)
		return pg, nil
	case "memory", "":
		slog.Info("storage enabled", "type", "memory", "max_sessions", cfg.Storage.MaxSessions)
		return memory.New(cfg.Storage.MaxSessions), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// seedUsers writes the configured local accounts into the user store.
func seedUsers(ctx context.Context, users storage.UserStore, accounts []config.UserConfig) error {
	for _, u := range accounts {
		err := users.PutUser(ctx, &storage.User{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			ServiceTier:  u.ServiceTier,
			TenantID:     u.TenantID,
			Scopes:       u.Scopes,
		})
		if err != nil {
			return fmt.Errorf("seeding user %q: %w", u.Username, err)
		}
		debug.Log("config", "user seeded", "username", u.Username)
	}
	return nil
}

// gateway is the assembled authentication service.
type gateway struct {
	service  *auth.HTTPService
	sessions *session.Plugin // nil unless the session plugin is enabled
}

// buildGateway registers the configured plugins in order. The anonymous
// listener, when enabled, is registered last.
func buildGateway(cfg *config.Config, st store, logger *slog.Logger) (*gateway, error) {
	gw := &gateway{service: auth.NewHTTPService(auth.WithLogger(logger))}
	a := cfg.Auth

	// Created up front so the throttle can exempt requests with a live
	// session regardless of plugin order.
	if a.Enabled(config.PluginSession) {
		gw.sessions = session.New(session.Config{
			CookieName: a.Session.CookieName,
			Secure:     a.Session.Secure,
			TTL:        a.Session.TTL,
		}, st)
	}

	for _, name := range a.Plugins {
		var plugin any
		switch name {
		case config.PluginThrottle:
			tc := throttle.Config{
				Limit:             a.Throttle.Limit,
				Window:            a.Throttle.Window,
				TrustForwardedFor: a.Throttle.TrustForwardedFor,
				TrustedHops:       a.Throttle.TrustedHops,
			}
			if gw.sessions != nil {
				tc.Exempt = gw.sessions.HasSession
			}
			plugin = throttle.New(tc)
		case config.PluginSession:
			plugin = gw.sessions
		case config.PluginBasic:
			plugin = basic.New(a.Realm)
		case config.PluginBearer:
			plugin = bearer.New(a.Realm)
		case config.PluginAPIKey:
			plugin = apikey.New(apiKeyEntries(a.APIKeys))
		case config.PluginJWT:
			plugin = jwt.New(jwt.Config{
				Issuer:      a.JWT.Issuer,
				Audience:    a.JWT.Audience,
				JWKSURL:     a.JWT.JWKSURL,
				UserClaim:   a.JWT.UserClaim,
				TenantClaim: a.JWT.TenantClaim,
				ScopesClaim: a.JWT.ScopesClaim,
				TierClaim:   a.JWT.TierClaim,
				CacheTTL:    a.JWT.CacheTTL,
				Leeway:      a.JWT.Leeway,
			})
		case config.PluginLDAP:
			plugin = ldap.New(ldap.Config{
				URL:                a.LDAP.URL,
				BaseDN:             a.LDAP.BaseDN,
				BindDN:             a.LDAP.BindDN,
				BindPassword:       a.LDAP.BindPassword,
				UserFilter:         a.LDAP.UserFilter,
				GroupFilter:        a.LDAP.GroupFilter,
				GroupAttribute:     a.LDAP.GroupAttribute,
				RequireGroup:       a.LDAP.RequireGroup,
				TenantAttribute:    a.LDAP.TenantAttribute,
				InsecureSkipVerify: a.LDAP.InsecureSkipVerify,
				Timeout:            a.LDAP.Timeout,
			})
		case config.PluginPassword:
			plugin = password.New(st)
		default:
			return nil, fmt.Errorf("unknown plugin %q", name)
		}

		if err := gw.service.AddPlugin(plugin); err != nil {
			return nil, fmt.Errorf("registering plugin %q: %w", name, err)
		}
	}

	if a.Anonymous {
		if err := gw.service.AddPlugin(noop.New()); err != nil {
			return nil, fmt.Errorf("registering anonymous listener: %w", err)
		}
		logger.Warn("anonymous access enabled; unauthenticated requests are accepted")
	}

	if len(gw.service.Plugins()) == 0 {
		return nil, errors.New("no authentication plugins configured")
	}
	return gw, nil
}

func apiKeyEntries(keys []config.APIKeyConfig) []apikey.RawKeyEntry {
	entries := make([]apikey.RawKeyEntry, 0, len(keys))
	for _, k := range keys {
		id := auth.Identity{
			Subject:     k.Subject,
			ServiceTier: k.ServiceTier,
			Scopes:      k.Scopes,
		}
		if k.TenantID != "" {
			id.Metadata = map[string]string{"tenant_id": k.TenantID}
		}
		entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
	}
	return entries
}
