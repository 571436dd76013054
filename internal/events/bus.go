// Package events distributes marketplace notifications to in-process subscribers.
package events

import (
	"sync"

	"nft-market-lab/internal/domain"
)

// Sink receives marketplace events. Publish must not block the caller.
type Sink interface {
	Publish(event domain.Event)
}

// Discard is a Sink that drops every event.
type Discard struct{}

func (Discard) Publish(domain.Event) {}

// subscriberBuffer is the per-subscriber channel capacity.
// A subscriber that falls this far behind starts losing events.
const subscriberBuffer = 256

// Bus fans events out to subscribers by event type.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[domain.EventType]map[int]chan domain.Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[domain.EventType]map[int]chan domain.Event)}
}

// Subscribe registers interest in the given event types and returns the
// delivery channel plus an unsubscribe function. Unsubscribe closes the channel.
func (b *Bus) Subscribe(types ...domain.EventType) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	for _, typ := range types {
		if b.subs[typ] == nil {
			b.subs[typ] = make(map[int]chan domain.Event)
		}
		b.subs[typ][id] = ch
	}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		removed := false
		for _, typ := range types {
			if _, ok := b.subs[typ][id]; ok {
				delete(b.subs[typ], id)
				removed = true
			}
		}
		if removed {
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Publish delivers the event to every subscriber of its type.
// Slow subscribers lose events rather than blocking the publisher; the
// settlement path must never stall on observers.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.Type()] {
		select {
		case ch <- event:
		default:
		}
	}
}

var _ Sink = (*Bus)(nil)
