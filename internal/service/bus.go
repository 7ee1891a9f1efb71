package service

import (
	"sync"

	"github.com/joeblew999/plat-basemap/internal/session"
)

// Event is a session change tagged with the session it happened in.
type Event struct {
	Session string // session ID
	session.Event
}

// EventBus is a fan-out pub/sub for session events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]string)}
}

// Publish sends an event to matching subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, id := range b.subs {
		if id != "" && id != e.Session {
			continue
		}
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel receiving events of one session, or
// of every session when id is empty.
func (b *EventBus) Subscribe(id string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = id
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	_, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Forward returns a session event sink that publishes into the bus.
func (b *EventBus) Forward(id string) func(session.Event) {
	return func(ev session.Event) {
		b.Publish(Event{Session: id, Event: ev})
	}
}
