package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe channel with topic-prefix filtering.
// It replaces the DOM-event-style dispatch of the browser dashboard: event
// kinds are declared constants and payloads are typed structs owned by the
// publishing package, so subscribers type-assert instead of parsing strings.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Emit stamps the current time and delivers the event to every subscriber
// whose prefix matches kind. Delivery is non-blocking: a subscriber whose
// buffer is full misses the event rather than stalling the publisher.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, At: time.Now(), Payload: payload})
}

// Publish delivers a pre-built event to matching subscribers.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving every event whose kind starts with
// prefix, plus an unsubscribe function. bufSize controls the channel buffer.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
