package central

import (
	"context"
	"errors"
	"sync"

	"github.com/srg/blehub/internal/device"
)

// ErrQueueClosed is returned by Recv once the queue is closed and drained.
var ErrQueueClosed = errors.New("event queue closed")

// EventQueue is the ordered single-consumer event sink. It is unbounded: Push
// never blocks and never drops, memory grows while the consumer lags.
type EventQueue struct {
	mu     sync.Mutex
	items  []device.CentralEvent
	head   int
	closed bool
	ready  chan struct{}
}

func newEventQueue() *EventQueue {
	return &EventQueue{ready: make(chan struct{}, 1)}
}

// push appends ev. It reports false once the consumer closed the queue.
func (q *EventQueue) push(ev device.CentralEvent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// TryRecv pops the oldest event without blocking.
func (q *EventQueue) TryRecv() (device.CentralEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Recv blocks until an event is available, ctx is done, or the queue is closed
// and drained.
func (q *EventQueue) Recv(ctx context.Context) (device.CentralEvent, error) {
	for {
		q.mu.Lock()
		ev, ok := q.popLocked()
		closed := q.closed
		q.mu.Unlock()

		if ok {
			return ev, nil
		}
		if closed {
			return device.CentralEvent{}, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return device.CentralEvent{}, ctx.Err()
		}
	}
}

// Len returns the number of undelivered events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close stops accepting events. Already queued events remain readable.
func (q *EventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *EventQueue) popLocked() (device.CentralEvent, bool) {
	if q.head == len(q.items) {
		return device.CentralEvent{}, false
	}
	ev := q.items[q.head]
	q.items[q.head] = device.CentralEvent{}
	q.head++

	// reclaim the consumed prefix once it dominates the backing array
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return ev, true
}
