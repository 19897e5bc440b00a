// Package bus provides the typed host event bus. The host delivers
// session lifecycle and turn events here one at a time; handlers run
// synchronously on the caller's goroutine and are never re-entered.
package bus

import (
	"time"

	. "github.com/modelrelay/modelrelay/internal/logging"
)

// Kind identifies a host event type.
type Kind string

const (
	KindTurnEnded       Kind = "turn_ended"
	KindModelSelected   Kind = "model_selected"
	KindSessionStarted  Kind = "session_started"
	KindSessionSwitched Kind = "session_switched"
	KindSessionShutdown Kind = "session_shutdown"
)

// TurnEnded is published when a conversation turn completes.
// Err is empty for a successful turn.
type TurnEnded struct {
	Err         string
	Prompt      string // last user prompt, for auto-resend
	UsageTokens int    // context usage after the turn
	Idle        bool   // no follow-up turn queued
}

// ModelSelected is published when the user manually changes the model.
type ModelSelected struct {
	ModelID string
}

// SessionStarted is published when a session begins or resumes.
type SessionStarted struct {
	SessionKey string
}

// SessionSwitched is published when the host switches sessions.
type SessionSwitched struct {
	SessionKey string
}

// SessionShutdown is published once when the host is tearing down.
type SessionShutdown struct{}

// Event wraps a payload with its kind and publication time.
type Event struct {
	Kind      Kind
	Payload   any
	Timestamp time.Time
}

// Handler processes a single event.
type Handler func(Event)

// Bus dispatches events synchronously to subscribed handlers.
// Publishing from inside a handler does not recurse: nested events are
// queued and delivered after the current dispatch completes.
type Bus struct {
	handlers    map[Kind][]Handler
	dispatching bool
	pending     []Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for an event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.handlers[kind] = append(b.handlers[kind], h)
	L_debug("bus: subscribed", "kind", kind, "handlers", len(b.handlers[kind]))
}

// Publish delivers an event to all handlers for its kind, in
// subscription order, on the calling goroutine.
func (b *Bus) Publish(kind Kind, payload any) {
	ev := Event{Kind: kind, Payload: payload, Timestamp: time.Now()}

	if b.dispatching {
		// Handler published while a dispatch is running; deliver after.
		b.pending = append(b.pending, ev)
		L_trace("bus: queued nested event", "kind", kind)
		return
	}

	b.dispatching = true
	b.dispatch(ev)
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending = b.pending[1:]
		b.dispatch(next)
	}
	b.dispatching = false
}

func (b *Bus) dispatch(ev Event) {
	handlers := b.handlers[ev.Kind]
	if len(handlers) == 0 {
		L_trace("bus: no handlers", "kind", ev.Kind)
		return
	}
	for _, h := range handlers {
		h(ev)
	}
}
