// Package auth orchestrates authentication over a chain of pluggable
// strategies.
//
// A Service owns an ordered plugin registry and an event bus. Plugins
// implement any subset of five capabilities (Extractor, Authenticator,
// Challenger, Resetter, EventAware) and are classified once, when they are
// added. Authenticate runs a fixed pipeline:
//
//	authenticate.pre -> extraction -> authentication -> authenticate.post -> challenge
//
// and the earliest phase that produces a Result wins. If no phase produces
// one, Authenticate returns ErrNoResult.
//
// The Service is generic over the request and response types and never
// inspects them. HTTPService binds it to net/http for the plugins in the
// subpackages (basic, bearer, apikey, jwt, ldap, password, session, throttle,
// noop).
package auth
