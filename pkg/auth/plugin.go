package auth

import "context"

// Credentials is the opaque bag of fields an Extractor hands to the
// Authenticators. The Service passes the map through untouched.
type Credentials map[string]string

// Get returns the named field, or empty string.
func (c Credentials) Get(key string) string {
	if c == nil {
		return ""
	}
	return c[key]
}

// ExtractionState is the outcome of a single extraction step.
type ExtractionState int

const (
	// ExtractionDeferred means the plugin found nothing it can handle.
	// The zero Extraction is deferred.
	ExtractionDeferred ExtractionState = iota

	// ExtractionCredentials means credentials were found and should be
	// passed to the authentication phase.
	ExtractionCredentials

	// ExtractionResolved means the plugin produced a final Result and the
	// pipeline stops.
	ExtractionResolved
)

// Extraction is returned by Extractor.ExtractCredentials.
type Extraction struct {
	state       ExtractionState
	credentials Credentials
	result      *Result
}

// Defer lets the next extractor try.
func Defer() Extraction {
	return Extraction{}
}

// Extracted hands creds to the authentication phase.
func Extracted(creds Credentials) Extraction {
	return Extraction{state: ExtractionCredentials, credentials: creds}
}

// Resolved ends the pipeline with result. A nil result defers.
func Resolved(result *Result) Extraction {
	if result == nil {
		return Extraction{}
	}
	return Extraction{state: ExtractionResolved, result: result}
}

func (e Extraction) State() ExtractionState   { return e.state }
func (e Extraction) Credentials() Credentials { return e.credentials }
func (e Extraction) Result() *Result          { return e.result }

// EventAware plugins subscribe themselves to the event bus when they are
// added to a Service.
type EventAware[Req, Resp any] interface {
	AttachToEvents(events *EventBus[Req, Resp])
}

// Extractor reads credentials from a request.
type Extractor[Req, Resp any] interface {
	ExtractCredentials(ctx context.Context, req Req, resp Resp) (Extraction, error)
}

// Authenticator verifies credentials produced by an Extractor.
// A nil Result with a nil error lets the next Authenticator try.
type Authenticator interface {
	AuthenticateCredentials(ctx context.Context, creds Credentials) (*Result, error)
}

// Challenger asks the caller for credentials, typically by writing to the
// response. It reports whether it issued a challenge.
type Challenger[Req, Resp any] interface {
	Challenge(ctx context.Context, req Req, resp Resp) (bool, error)
}

// Resetter discards any credentials stored for the request (logout).
type Resetter[Req any] interface {
	ResetCredentials(ctx context.Context, req Req) error
}
