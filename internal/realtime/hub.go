package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/internal/ledger"
)

// DefaultBuffer is the per-subscriber event buffer. A subscriber that falls
// this far behind starts losing events.
const DefaultBuffer = 16

// Subscriber receives the events published to one restaurant scope.
type Subscriber struct {
	ch chan ledger.Event
}

// Events is the subscriber's receive channel. It is closed on Unsubscribe.
func (s *Subscriber) Events() <-chan ledger.Event {
	return s.ch
}

// Hub is an in-process, restaurant-scoped event broadcaster. Delivery is
// best-effort and at-most-once: events published to a scope with no
// subscribers are dropped, and a slow subscriber whose buffer is full misses
// the event rather than blocking the publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]map[*Subscriber]struct{}
	buffer      int
}

// NewHub builds a hub. A buffer of zero falls back to DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subscribers: map[uuid.UUID]map[*Subscriber]struct{}{},
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber for the restaurant scope.
func (h *Hub) Subscribe(restaurantID uuid.UUID) *Subscriber {
	sub := &Subscriber{ch: make(chan ledger.Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	scope, ok := h.subscribers[restaurantID]
	if !ok {
		scope = map[*Subscriber]struct{}{}
		h.subscribers[restaurantID] = scope
	}
	scope[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call for
// a subscriber that was already removed.
func (h *Hub) Unsubscribe(restaurantID uuid.UUID, sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	scope, ok := h.subscribers[restaurantID]
	if !ok {
		return
	}
	if _, ok := scope[sub]; !ok {
		return
	}
	delete(scope, sub)
	if len(scope) == 0 {
		delete(h.subscribers, restaurantID)
	}
	close(sub.ch)
}

// Publish fans the event out to every subscriber of the restaurant scope
// without blocking. Sends happen under the hub lock so a concurrent
// Unsubscribe cannot close a channel mid-send.
func (h *Hub) Publish(restaurantID uuid.UUID, event ledger.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers[restaurantID] {
		select {
		case sub.ch <- event:
		default:
			// Buffer full; the subscriber misses this event.
		}
	}
}

// SubscriberCount reports the live subscribers for a scope.
func (h *Hub) SubscriberCount(restaurantID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[restaurantID])
}
