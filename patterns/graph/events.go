package graph

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EventStateUpdated is emitted with a Snapshot payload whenever graph state changes.
const EventStateUpdated = "state.graph.updated"

// Listener receives event payloads.
type Listener func(payload any)

// Subscription identifies one registration made with On. Pass it to Off to
// remove exactly that listener.
type Subscription struct {
	event string
	id    uint64
}

// Emitter is a small named-event broadcaster. Emit is synchronous: listeners
// run on the caller's goroutine, in registration order, and a panicking
// listener propagates to the caller.
type Emitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string][]registeredListener
}

type registeredListener struct {
	id       uint64
	listener Listener
}

// NewEmitter returns an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]registeredListener)}
}

// On registers listener for event.
func (e *Emitter) On(event string, listener Listener) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.listeners[event] = append(e.listeners[event], registeredListener{id: e.nextID, listener: listener})
	return Subscription{event: event, id: e.nextID}
}

// Off removes the listener registered under subscription. Unknown
// subscriptions are ignored.
func (e *Emitter) Off(event string, subscription Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if subscription.event != event {
		return
	}
	registered := e.listeners[event]
	for i, entry := range registered {
		if entry.id == subscription.id {
			e.listeners[event] = append(registered[:i:i], registered[i+1:]...)
			return
		}
	}
}

// Emit calls every listener of event with payload. Listeners may call On or
// Off; changes apply from the next Emit.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	registered := append([]registeredListener(nil), e.listeners[event]...)
	e.mu.Unlock()

	for _, entry := range registered {
		entry.listener(payload)
	}
}

// ListenerCount returns how many listeners event has.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// FormatSSE renders a snapshot as one Server-Sent Events frame.
func FormatSSE(snapshot Snapshot) (string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", EventStateUpdated, data), nil
}
