// Package ldap authenticates username/password credentials by binding
// against an LDAP or Active Directory server.
//
// The authenticator searches for the user with a service account (or
// anonymously), then binds as the user's DN with the supplied password.
// Users missing from the directory are left to later authenticators, so
// ldap can be listed ahead of the local password plugin.
package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	ldapv3 "github.com/go-ldap/ldap/v3"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/debug"
)

// Credential fields read by the authenticator.
const (
	FieldUsername = "username"
	FieldPassword = "password"
)

// Search limits.
const (
	searchTimeLimit = 30 // seconds
	groupSizeLimit  = 100
)

// Config describes the directory and how users map to identities.
type Config struct {
	// URL of the server, ldap:// or ldaps://.
	URL string

	// BaseDN is the root of user and group searches.
	BaseDN string

	// BindDN and BindPassword identify the service account used to search.
	// Empty BindDN searches anonymously.
	BindDN       string
	BindPassword string

	// UserFilter finds the user entry; %s is replaced by the escaped
	// username. Default: "(uid=%s)".
	UserFilter string

	// GroupFilter finds the user's groups; %s is replaced by the escaped
	// username. Empty skips group lookup.
	GroupFilter string

	// GroupAttribute names a group entry. Default: "cn".
	GroupAttribute string

	// RequireGroup, when set, forbids users outside this group.
	RequireGroup string

	// TenantAttribute, when set, is copied into the tenant_id metadata.
	TenantAttribute string

	// InsecureSkipVerify disables certificate checks for ldaps://.
	InsecureSkipVerify bool

	// Timeout bounds connection setup. Default: 10s.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.UserFilter == "" {
		c.UserFilter = "(uid=%s)"
	}
	if c.GroupAttribute == "" {
		c.GroupAttribute = "cn"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// directory is the subset of *ldapv3.Conn the authenticator uses.
type directory interface {
	Bind(username, password string) error
	Search(req *ldapv3.SearchRequest) (*ldapv3.SearchResult, error)
	Close()
}

type conn struct{ *ldapv3.Conn }

func (c conn) Close() { c.Conn.Close() }

// Authenticator verifies credentials with an LDAP bind.
type Authenticator struct {
	cfg  Config
	dial func(ctx context.Context) (directory, error)
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an LDAP authenticator. No connection is made until the first
// authentication.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	a := &Authenticator{cfg: cfg}
	a.dial = a.dialURL
	return a
}

func (a *Authenticator) dialURL(ctx context.Context) (directory, error) {
	dialer := &net.Dialer{Timeout: a.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	opts := []ldapv3.DialOpt{ldapv3.DialWithDialer(dialer)}
	if strings.HasPrefix(a.cfg.URL, "ldaps://") {
		opts = append(opts, ldapv3.DialWithTLSConfig(&tls.Config{
			InsecureSkipVerify: a.cfg.InsecureSkipVerify,
		}))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := ldapv3.DialURL(a.cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return conn{c}, nil
}

// AuthenticateCredentials returns nil when no username is present or the
// user is not in the directory, a failure for a wrong password (or a
// forbidden failure outside RequireGroup), and a success otherwise.
// Directory outages are returned as errors.
func (a *Authenticator) AuthenticateCredentials(ctx context.Context, creds auth.Credentials) (*auth.Result, error) {
	username := creds.Get(FieldUsername)
	if username == "" {
		return nil, nil
	}
	password := creds.Get(FieldPassword)
	if password == "" {
		// An empty password would be an unauthenticated bind, which many
		// servers accept.
		return auth.Failure(fmt.Errorf("empty password: %w", auth.ErrUnauthenticated)), nil
	}

	dir, err := a.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("ldap: connecting to %s: %w", a.cfg.URL, err)
	}
	defer dir.Close()

	if a.cfg.BindDN != "" {
		if err := dir.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("ldap: service bind: %w", err)
		}
	}

	entry, err := a.findUser(dir, username)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		debug.Log("plugins", "ldap user not found", "username", username)
		return nil, nil
	}

	if err := dir.Bind(entry.DN, password); err != nil {
		if ldapv3.IsErrorWithCode(err, ldapv3.LDAPResultInvalidCredentials) {
			debug.Log("plugins", "ldap bind rejected", "username", username)
			return auth.Failure(fmt.Errorf("invalid username or password: %w", auth.ErrUnauthenticated)), nil
		}
		return nil, fmt.Errorf("ldap: user bind: %w", err)
	}

	var groups []string
	if a.cfg.GroupFilter != "" {
		groups, err = a.userGroups(dir, username)
		if err != nil {
			return nil, err
		}
	}
	if a.cfg.RequireGroup != "" && !slices.Contains(groups, a.cfg.RequireGroup) {
		return auth.Failure(fmt.Errorf("user %q not in group %q: %w", username, a.cfg.RequireGroup, auth.ErrForbidden)), nil
	}

	identity := &auth.Identity{
		Subject:  username,
		Scopes:   groups,
		Metadata: map[string]string{"dn": entry.DN},
	}
	if a.cfg.TenantAttribute != "" {
		if tenant := entry.GetAttributeValue(a.cfg.TenantAttribute); tenant != "" {
			identity.Metadata["tenant_id"] = tenant
		}
	}
	return auth.Success(identity, map[string]string{"method": "ldap"}), nil
}

// findUser returns the single entry matching username, or nil if none does.
func (a *Authenticator) findUser(dir directory, username string) (*ldapv3.Entry, error) {
	attrs := []string{"dn"}
	if a.cfg.TenantAttribute != "" {
		attrs = append(attrs, a.cfg.TenantAttribute)
	}
	req := ldapv3.NewSearchRequest(
		a.cfg.BaseDN,
		ldapv3.ScopeWholeSubtree,
		ldapv3.NeverDerefAliases,
		2, // more than one match is an error
		searchTimeLimit,
		false,
		fmt.Sprintf(a.cfg.UserFilter, ldapv3.EscapeFilter(username)),
		attrs,
		nil,
	)
	res, err := dir.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap: user search: %w", err)
	}
	switch len(res.Entries) {
	case 0:
		return nil, nil
	case 1:
		return res.Entries[0], nil
	default:
		return nil, errors.New("ldap: user filter matched more than one entry")
	}
}

func (a *Authenticator) userGroups(dir directory, username string) ([]string, error) {
	req := ldapv3.NewSearchRequest(
		a.cfg.BaseDN,
		ldapv3.ScopeWholeSubtree,
		ldapv3.NeverDerefAliases,
		groupSizeLimit,
		searchTimeLimit,
		false,
		fmt.Sprintf(a.cfg.GroupFilter, ldapv3.EscapeFilter(username)),
		[]string{a.cfg.GroupAttribute},
		nil,
	)
	res, err := dir.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap: group search: %w", err)
	}
	groups := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		if name := e.GetAttributeValue(a.cfg.GroupAttribute); name != "" {
			groups = append(groups, name)
		}
	}
	return groups, nil
}
