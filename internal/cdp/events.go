package cdp

import (
	"encoding/json"
	"sync"
)

// Listener receives the params of an event and the session it came from, if
// any.
type Listener func(params json.RawMessage, sessionID string)

// Subscription is returned by On and removes the listener it registered.
type Subscription struct {
	registry *eventRegistry
	event    string
	id       uint64
}

// Remove unregisters the listener. It is safe to call more than once.
func (s Subscription) Remove() {
	if s.registry == nil {
		return
	}
	s.registry.off(s.event, s.id)
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// eventRegistry maps event names to listeners in registration order.
type eventRegistry struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]listenerEntry
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{listeners: make(map[string][]listenerEntry)}
}

func (r *eventRegistry) on(event string, fn Listener) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.listeners[event] = append(r.listeners[event], listenerEntry{id: r.nextID, fn: fn})
	return Subscription{registry: r, event: event, id: r.nextID}
}

func (r *eventRegistry) off(event string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.listeners[event]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		// Copy so a concurrent emit keeps iterating its own snapshot.
		next := make([]listenerEntry, 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		if len(next) == 0 {
			delete(r.listeners, event)
		} else {
			r.listeners[event] = next
		}
		return
	}
}

// emit calls every listener registered for evt.Method and returns how many
// ran.
func (r *eventRegistry) emit(evt *Event) int {
	r.mu.RLock()
	entries := r.listeners[evt.Method]
	r.mu.RUnlock()

	for _, e := range entries {
		e.fn(evt.Params, evt.SessionID)
	}
	return len(entries)
}
