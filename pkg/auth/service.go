package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/rhuss/warden/pkg/debug"
)

// Service runs the authentication pipeline over its registered plugins.
//
// Register plugins and listeners during setup. Once configured, Authenticate
// may be called concurrently as long as the plugins themselves are safe for
// concurrent use; the Service adds no locking of its own.
type Service[Req, Resp any] struct {
	plugins        []any
	extractors     []Extractor[Req, Resp]
	authenticators []Authenticator
	challengers    []namedChallenger[Req, Resp]
	resetters      []Resetter[Req]
	events         *EventBus[Req, Resp]
	logger         *slog.Logger
}

// HTTPService is the Service bound to net/http, used by the plugin
// subpackages and the HTTP transport.
type HTTPService = Service[*http.Request, http.ResponseWriter]

// NewHTTPService creates a Service for net/http requests.
func NewHTTPService(opts ...Option) *HTTPService {
	return NewService[*http.Request, http.ResponseWriter](opts...)
}

type namedChallenger[Req, Resp any] struct {
	name string
	Challenger[Req, Resp]
}

type serviceOptions struct {
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// NewService creates a Service with an empty registry and event bus.
func NewService[Req, Resp any](opts ...Option) *Service[Req, Resp] {
	o := serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service[Req, Resp]{
		events: NewEventBus[Req, Resp](),
		logger: o.logger,
	}
}

// EventBus returns the bus the pipeline triggers its events on.
func (s *Service[Req, Resp]) EventBus() *EventBus[Req, Resp] {
	return s.events
}

// Plugins returns the registered plugins in registration order.
func (s *Service[Req, Resp]) Plugins() []any {
	out := make([]any, len(s.plugins))
	copy(out, s.plugins)
	return out
}

// AddPlugin classifies plugin by the capabilities it implements and appends
// it to the registry. A plugin implementing none of them is rejected with an
// *InvalidPluginError and the registry is left unchanged, as is a nil
// pointer of a plugin type. EventAware plugins are attached to the event bus
// before AddPlugin returns.
func (s *Service[Req, Resp]) AddPlugin(plugin any) error {
	name := pluginName(plugin)
	if isNilPointer(plugin) {
		return &InvalidPluginError{Type: name, Nil: true}
	}

	extractor, isExtractor := plugin.(Extractor[Req, Resp])
	authenticator, isAuthenticator := plugin.(Authenticator)
	challenger, isChallenger := plugin.(Challenger[Req, Resp])
	resetter, isResetter := plugin.(Resetter[Req])
	aware, isAware := plugin.(EventAware[Req, Resp])

	if !isExtractor && !isAuthenticator && !isChallenger && !isResetter && !isAware {
		return &InvalidPluginError{Type: name}
	}

	var caps []string
	if isExtractor {
		s.extractors = append(s.extractors, extractor)
		caps = append(caps, "extraction")
	}
	if isAuthenticator {
		s.authenticators = append(s.authenticators, authenticator)
		caps = append(caps, "authentication")
	}
	if isChallenger {
		s.challengers = append(s.challengers, namedChallenger[Req, Resp]{name: name, Challenger: challenger})
		caps = append(caps, "challenge")
	}
	if isResetter {
		s.resetters = append(s.resetters, resetter)
		caps = append(caps, "reset")
	}
	if isAware {
		caps = append(caps, "events")
	}
	s.plugins = append(s.plugins, plugin)

	if isAware {
		aware.AttachToEvents(s.events)
	}

	debug.Log("auth", "plugin registered", "plugin", name, "capabilities", strings.Join(caps, ","))
	return nil
}

// MustAddPlugin is like AddPlugin but panics on an invalid plugin. It
// returns the Service so registrations can be chained during setup.
func (s *Service[Req, Resp]) MustAddPlugin(plugin any) *Service[Req, Resp] {
	if err := s.AddPlugin(plugin); err != nil {
		panic(err)
	}
	return s
}

// Authenticate runs the pipeline for one request and returns the first
// Result produced, in phase order:
//
//  1. authenticate.pre listeners
//  2. extraction: the first extractor that resolves or yields credentials
//  3. authentication: only when credentials were extracted
//  4. authenticate.post listeners
//  5. challenge: every challenger runs; any true yields a Challenge result
//
// ErrNoResult is returned when no phase produced a Result. Errors returned
// by plugins and listeners abort the pipeline and are returned unchanged.
func (s *Service[Req, Resp]) Authenticate(ctx context.Context, req Req, resp Resp) (*Result, error) {
	pre := &Event[Req, Resp]{Name: EventPreAuthenticate, Request: req, Response: resp, Service: s}
	result, err := s.events.Trigger(ctx, pre)
	if err != nil || result != nil {
		return result, err
	}

	result, err = s.runPlugins(ctx, req, resp)
	if err != nil || result != nil {
		return result, err
	}

	post := &Event[Req, Resp]{Name: EventPostAuthenticate, Request: req, Response: resp, Service: s}
	result, err = s.events.Trigger(ctx, post)
	if err != nil || result != nil {
		return result, err
	}

	result, err = s.challenge(ctx, req, resp)
	if err != nil || result != nil {
		return result, err
	}

	s.logger.Debug("authentication produced no result",
		"plugins", len(s.plugins),
		"challengers", len(s.challengers),
	)
	return nil, ErrNoResult
}

// runPlugins covers the extraction and authentication phases.
func (s *Service[Req, Resp]) runPlugins(ctx context.Context, req Req, resp Resp) (*Result, error) {
	var (
		creds Credentials
		found bool
	)

	for _, extractor := range s.extractors {
		extraction, err := extractor.ExtractCredentials(ctx, req, resp)
		if err != nil {
			return nil, err
		}

		switch extraction.State() {
		case ExtractionResolved:
			debug.Log("auth", "extraction resolved", "plugin", pluginName(extractor), "result", extraction.Result())
			return extraction.Result(), nil
		case ExtractionCredentials:
			debug.Log("auth", "credentials extracted", "plugin", pluginName(extractor))
			creds, found = extraction.Credentials(), true
		}
		if found {
			break
		}
	}

	if !found {
		return nil, nil
	}

	for _, authenticator := range s.authenticators {
		result, err := authenticator.AuthenticateCredentials(ctx, creds)
		if err != nil {
			return nil, err
		}
		if result != nil {
			debug.Log("auth", "credentials authenticated", "plugin", pluginName(authenticator), "result", result)
			return result, nil
		}
	}

	return nil, nil
}

// challenge asks every challenger in turn. All of them run, so each can
// add its own scheme to the response.
func (s *Service[Req, Resp]) challenge(ctx context.Context, req Req, resp Resp) (*Result, error) {
	var issued []string
	for _, c := range s.challengers {
		ok, err := c.Challenge(ctx, req, resp)
		if err != nil {
			return nil, err
		}
		if ok {
			issued = append(issued, c.name)
		}
	}

	if len(issued) == 0 {
		return nil, nil
	}

	debug.Log("auth", "challenge issued", "plugins", strings.Join(issued, ","))
	return Challenge(strings.Join(issued, ",")), nil
}

// ResetCredentials calls every Resetter in registration order. A failing
// plugin does not stop the others; all errors are joined and returned.
func (s *Service[Req, Resp]) ResetCredentials(ctx context.Context, req Req) error {
	var errs []error
	for _, r := range s.resetters {
		if err := r.ResetCredentials(ctx, req); err != nil {
			s.logger.Warn("credential reset failed", "plugin", pluginName(r), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func pluginName(plugin any) string {
	if plugin == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", plugin)
}

// isNilPointer reports whether plugin is a typed nil, such as a
// (*basic.Plugin)(nil) stored in an interface.
func isNilPointer(plugin any) bool {
	if plugin == nil {
		return false
	}
	v := reflect.ValueOf(plugin)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
