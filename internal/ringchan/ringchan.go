// Package ringchan provides a bounded channel with overwrite-oldest semantics.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel so that producers never block: when the
// buffer is full the oldest element is discarded to make room.
//
// Readers consume C() like any other channel. Only one goroutine may send at a
// time; concurrent receivers are fine.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was discarded. Send never blocks.
func (rc *RingChannel[T]) Send(v T) bool {
	select {
	case rc.ch <- v:
		rc.metrics.Written.Add(1)
		return false
	default:
	}

	dropped := false
	select {
	case <-rc.ch:
		rc.metrics.Overwritten.Add(1)
		dropped = true
	default:
		// a receiver drained the buffer in the meantime
	}

	select {
	case rc.ch <- v:
		rc.metrics.Written.Add(1)
	default:
		// lost a race with another sender; the contract forbids it, count and drop
		rc.metrics.Overwritten.Add(1)
		dropped = true
	}
	return dropped
}

// Close closes the underlying channel. Sending afterwards panics.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// Snapshot returns the current counter values.
func (rc *RingChannel[T]) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Written:     rc.metrics.Written.Load(),
		Overwritten: rc.metrics.Overwritten.Load(),
	}
}

// Metrics are lock-free counters maintained by a RingChannel.
type Metrics struct {
	Written     atomic.Int64
	Overwritten atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Written     int64
	Overwritten int64
}
