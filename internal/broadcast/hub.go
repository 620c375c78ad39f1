// Package broadcast fans values out to independently paced subscribers.
//
// Delivery is best effort: every subscriber owns a bounded buffer and a
// subscriber that does not keep up loses its oldest undelivered values.
// Publishing never blocks.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/srg/blehub/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Hub delivers every published value to all attached subscribers.
type Hub[T any] struct {
	mu       sync.Mutex
	capacity int
	nextID   uint64
	subs     *orderedmap.OrderedMap[uint64, *Subscription[T]]
	onPrune  func(sub *Subscription[T])
}

// NewHub creates a hub whose subscribers buffer up to capacity values each.
func NewHub[T any](capacity int) *Hub[T] {
	if capacity <= 0 {
		panic("broadcast: capacity must be > 0")
	}
	return &Hub[T]{
		capacity: capacity,
		subs:     orderedmap.New[uint64, *Subscription[T]](),
	}
}

// OnPrune registers a hook invoked (under the hub lock) whenever a detached
// subscriber is removed. Must be set before the hub is shared.
func (h *Hub[T]) OnPrune(fn func(sub *Subscription[T])) {
	h.onPrune = fn
}

// Subscribe attaches a new subscriber. It only observes values published
// after this call returns.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription[T]{
		id:   h.nextID,
		ring: ringchan.New[T](h.capacity),
	}
	h.subs.Set(sub.id, sub)
	return sub
}

// Publish delivers v to every attached subscriber. Subscribers that were
// closed since the previous publish are pruned and their channel is closed.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var detached []*Subscription[T]
	for pair := h.subs.Oldest(); pair != nil; pair = pair.Next() {
		sub := pair.Value
		if sub.detached.Load() {
			detached = append(detached, sub)
			continue
		}
		sub.ring.Send(v)
	}

	for _, sub := range detached {
		h.subs.Delete(sub.id)
		sub.ring.Close()
		if h.onPrune != nil {
			h.onPrune(sub)
		}
	}
}

// Len returns the number of subscribers currently tracked, including detached
// ones that have not been pruned yet.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs.Len()
}

// Subscription is the receiving end of a hub subscription.
type Subscription[T any] struct {
	id       uint64
	ring     *ringchan.RingChannel[T]
	detached atomic.Bool
}

// ID identifies the subscription within its hub.
func (s *Subscription[T]) ID() uint64 {
	return s.id
}

// C returns the channel values are delivered on. It is closed once the hub
// prunes the subscription after Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ring.C()
}

// Close detaches the subscription. The hub stops delivering on its next publish.
func (s *Subscription[T]) Close() {
	s.detached.Store(true)
}

// Dropped returns how many values were discarded because the subscriber fell behind.
func (s *Subscription[T]) Dropped() uint64 {
	return uint64(s.ring.Snapshot().Overwritten)
}
