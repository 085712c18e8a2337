package auth

import (
	"context"

	"github.com/rhuss/warden/pkg/debug"
)

// EventName identifies an event on the bus.
type EventName string

// Events triggered by Service.Authenticate.
const (
	EventPreAuthenticate  EventName = "authenticate.pre"
	EventPostAuthenticate EventName = "authenticate.post"
)

// Event is passed to every listener of a triggered event.
type Event[Req, Resp any] struct {
	Name     EventName
	Request  Req
	Response Resp
	Service  *Service[Req, Resp]
}

// Listener handles an event. Returning a non-nil Result stops propagation
// and makes that Result the answer of the trigger. Listeners may mutate the
// request and response freely.
type Listener[Req, Resp any] func(ctx context.Context, e *Event[Req, Resp]) (*Result, error)

// EventBus is a synchronous publish/subscribe registry keyed by event name.
// Attach is not safe for concurrent use; attach listeners during setup.
type EventBus[Req, Resp any] struct {
	listeners map[EventName][]Listener[Req, Resp]
}

// NewEventBus creates an empty event bus.
func NewEventBus[Req, Resp any]() *EventBus[Req, Resp] {
	return &EventBus[Req, Resp]{listeners: make(map[EventName][]Listener[Req, Resp])}
}

// Attach registers listener for the named event. Listeners run in
// attachment order.
func (b *EventBus[Req, Resp]) Attach(name EventName, listener Listener[Req, Resp]) {
	if listener == nil {
		return
	}
	b.listeners[name] = append(b.listeners[name], listener)
	debug.Log("events", "listener attached", "event", name, "listeners", len(b.listeners[name]))
}

// Listeners returns the number of listeners attached to name.
func (b *EventBus[Req, Resp]) Listeners(name EventName) int {
	return len(b.listeners[name])
}

// Trigger invokes the listeners of e.Name in order and stops at the first
// one that returns a Result or an error. It returns (nil, nil) when no
// listener answered.
func (b *EventBus[Req, Resp]) Trigger(ctx context.Context, e *Event[Req, Resp]) (*Result, error) {
	for i, listener := range b.listeners[e.Name] {
		result, err := listener(ctx, e)
		if err != nil {
			return nil, err
		}
		if result != nil {
			debug.Log("events", "short-circuit", "event", e.Name, "listener", i, "result", result)
			return result, nil
		}
	}
	return nil, nil
}
