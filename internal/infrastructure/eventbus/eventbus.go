// Package eventbus is an in-memory publish/subscribe bus for execution events.
//
// Each subscriber gets a buffered channel. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber only.
// Streaming deltas are best-effort; the durable store remains the source of truth.
package eventbus

import (
	"sync"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

const defaultBufferSize = 100

type subscriber struct {
	ch    chan domain.Event
	types map[domain.EventType]struct{}
}

func (s *subscriber) wants(eventType domain.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Bus is the in-memory implementation of ports.EventPublisher.
type Bus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]*subscriber
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber for the given event types, or for every event when
// none are given. The returned func unsubscribes and closes the channel.
func (b *Bus) Subscribe(types ...domain.EventType) (<-chan domain.Event, func()) {
	sub := &subscriber{ch: make(chan domain.Event, defaultBufferSize)}
	if len(types) > 0 {
		sub.types = make(map[domain.EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers evt to every interested subscriber without blocking.
func (b *Bus) Publish(evt domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.wants(evt.Type) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// buffer full, drop
		}
	}
}

// Subscribers reports the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

var _ ports.EventPublisher = (*Bus)(nil)
