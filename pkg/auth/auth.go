package auth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Kind identifies the variant of a Result.
type Kind int

const (
	// KindSuccess means an identity was established.
	KindSuccess Kind = iota

	// KindFailure means credentials were present but rejected.
	KindFailure

	// KindChallenge means the caller was asked for credentials.
	KindChallenge
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindChallenge:
		return "challenge"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the immutable outcome of an authentication attempt.
// Build one with Success, Failure or Challenge.
type Result struct {
	kind     Kind
	identity *Identity
	metadata map[string]string
	reason   error
	marker   string
}

// Success returns a Result carrying the authenticated identity.
func Success(identity *Identity, metadata map[string]string) *Result {
	return &Result{
		kind:     KindSuccess,
		identity: identity.clone(),
		metadata: maps.Clone(metadata),
	}
}

// Failure returns a Result for rejected credentials.
func Failure(reason error) *Result {
	if reason == nil {
		reason = ErrUnauthenticated
	}
	return &Result{kind: KindFailure, reason: reason}
}

// Challenge returns a Result signalling that credentials were requested
// from the caller. The marker names what issued the challenge.
func Challenge(marker string) *Result {
	return &Result{kind: KindChallenge, marker: marker}
}

func (r *Result) Kind() Kind        { return r.kind }
func (r *Result) IsSuccess() bool   { return r.kind == KindSuccess }
func (r *Result) IsFailure() bool   { return r.kind == KindFailure }
func (r *Result) IsChallenge() bool { return r.kind == KindChallenge }

// Identity returns a copy of the authenticated identity, or nil for
// non-success results.
func (r *Result) Identity() *Identity {
	return r.identity.clone()
}

// Metadata returns a copy of the metadata attached to a success result.
func (r *Result) Metadata() map[string]string {
	return maps.Clone(r.metadata)
}

// Reason returns why a failure result was produced.
func (r *Result) Reason() error { return r.reason }

// Marker returns the challenge marker.
func (r *Result) Marker() string { return r.marker }

func (r *Result) String() string {
	if r == nil {
		return "<nil>"
	}
	switch r.kind {
	case KindSuccess:
		if r.identity != nil {
			return "success(" + r.identity.Subject + ")"
		}
		return "success"
	case KindFailure:
		return "failure(" + r.reason.Error() + ")"
	default:
		return "challenge(" + r.marker + ")"
	}
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// ServiceTier groups callers for throttling and priority.
	ServiceTier string

	// Scopes lists the authorization scopes granted.
	Scopes []string

	// Metadata carries plugin-specific data.
	// The key "tenant_id" is used for storage multi-tenancy scoping.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or empty string.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

func (id *Identity) clone() *Identity {
	if id == nil {
		return nil
	}
	c := *id
	c.Scopes = slices.Clone(id.Scopes)
	c.Metadata = maps.Clone(id.Metadata)
	return &c
}

// Sentinel errors.
var (
	// ErrInvalidPlugin is returned by AddPlugin for values that implement
	// none of the plugin capabilities.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrNoResult is returned by Authenticate when every phase ran without
	// producing a Result.
	ErrNoResult = errors.New("no plugin was able to generate a result")

	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// InvalidPluginError reports the type of a rejected plugin.
type InvalidPluginError struct {
	Type string
	Nil  bool // the plugin was a nil value of Type
}

func (e *InvalidPluginError) Error() string {
	if e.Nil {
		return "nil " + e.Type + " cannot be registered as a plugin"
	}
	return e.Type + " does not implement any known plugin interface"
}

func (e *InvalidPluginError) Unwrap() error { return ErrInvalidPlugin }

// identityKey is a private type for the identity context key.
type identityKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity.
// Returns nil if no identity is set.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}
