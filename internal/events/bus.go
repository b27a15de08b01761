package events

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultCapacity is the ring buffer size per subscriber (spec.md §4.5:
// "capacity ≈ 1024").
const DefaultCapacity = 1024

// Subscription is a subscriber's independent view of the bus. Lag is
// incremented every time the ring buffer overflows and the oldest event
// for this subscriber is dropped; the subscriber can read it out-of-band
// without it affecting the event stream.
type Subscription struct {
	ID     uuid.UUID
	Events <-chan Event

	bus  *Bus
	lag  *int64
	mu   *sync.Mutex
	ch   chan Event
}

// Lag returns how many events this subscriber has missed due to overflow.
func (s *Subscription) Lag() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.lag
}

// Unsubscribe removes this subscriber from the bus. Safe to call more than
// once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.ID)
}

// Bus is a bounded broadcast channel. Publish never blocks: a subscriber
// whose buffer is full has its oldest event dropped and its lag counter
// incremented, matching spec.md §4.5 "the core never blocks on event
// emission."
type Bus struct {
	capacity int

	mu   sync.Mutex
	subs map[uuid.UUID]*subscriber
}

type subscriber struct {
	ch  chan Event
	lag int64
	mu  sync.Mutex
}

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{capacity: capacity, subs: make(map[uuid.UUID]*subscriber)}
}

func (b *Bus) Subscribe() *Subscription {
	sub := &subscriber{ch: make(chan Event, b.capacity)}
	id := uuid.New()

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	return &Subscription{
		ID:     id,
		Events: sub.ch,
		bus:    b,
		lag:    &sub.lag,
		mu:     &sub.mu,
		ch:     sub.ch,
	}
}

func (b *Bus) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Publish broadcasts an event to every current subscriber. Never blocks.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			// Buffer full: drop the oldest queued event to make room,
			// and record the loss rather than block the publisher.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
			sub.mu.Lock()
			sub.lag++
			sub.mu.Unlock()
		}
	}
}

// SubscriberCount reports how many active subscriptions exist, mostly for
// tests and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close tears down every subscription, emitting a final Shutdown event
// first so subscribers observe an orderly close.
func (b *Bus) Close() {
	b.Publish(Event{Kind: Shutdown})

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
