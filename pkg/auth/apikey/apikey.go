// Package apikey provides an authenticator that validates opaque tokens
// against a static key store using SHA-256 hashing and constant-time
// comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/rhuss/warden/pkg/auth"
	"github.com/rhuss/warden/pkg/debug"
)

// FieldToken is the credential field this authenticator reads.
const FieldToken = "token"

// KeyEntry maps a key hash to an identity.
type KeyEntry struct {
	KeyHash  [32]byte
	Identity auth.Identity
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

// Authenticator validates tokens against a static key store.
type Authenticator struct {
	keys []KeyEntry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an API key authenticator from a list of raw keys and identities.
// Keys are hashed immediately; plaintext keys are not stored.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		a.keys = append(a.keys, KeyEntry{
			KeyHash:  sha256.Sum256([]byte(e.Key)),
			Identity: e.Identity,
		})
	}
	return a
}

// AuthenticateCredentials returns a success when the token matches a
// configured key. Unknown tokens yield no result so that another
// authenticator (typically jwt) can try them.
func (a *Authenticator) AuthenticateCredentials(_ context.Context, creds auth.Credentials) (*auth.Result, error) {
	token := creds.Get(FieldToken)
	if token == "" {
		return nil, nil
	}

	tokenHash := sha256.Sum256([]byte(token))

	// Compare against every entry so timing does not reveal the match position.
	var match *KeyEntry
	for i := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], a.keys[i].KeyHash[:]) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		debug.Log("plugins", "api key not recognized", "token", debug.Redact(token))
		return nil, nil
	}

	id := match.Identity
	return auth.Success(&id, map[string]string{"method": "apikey"}), nil
}
