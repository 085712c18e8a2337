// Package noop provides a listener that accepts every request as an
// anonymous caller. It answers on authenticate.post, so it only applies
// when no plugin produced a result first. Used for development.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/warden/pkg/auth"
)

// Plugin answers authenticate.post with an anonymous success.
type Plugin struct {
	identity auth.Identity
}

var _ auth.EventAware[*http.Request, http.ResponseWriter] = (*Plugin)(nil)

// New creates a plugin granting subject "anonymous" in tier "default".
func New() *Plugin {
	return &Plugin{identity: auth.Identity{Subject: "anonymous", ServiceTier: "default"}}
}

func (p *Plugin) AttachToEvents(bus *auth.EventBus[*http.Request, http.ResponseWriter]) {
	bus.Attach(auth.EventPostAuthenticate, func(context.Context, *auth.Event[*http.Request, http.ResponseWriter]) (*auth.Result, error) {
		return auth.Success(&p.identity, map[string]string{"method": "anonymous"}), nil
	})
}
