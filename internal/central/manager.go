// Package central owns the address keyed peripheral table of one adapter and
// fans every central event out to its consumers.
package central

import (
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blehub/internal/broadcast"
	"github.com/srg/blehub/internal/device"
)

// DefaultStreamBuffer is the per-subscriber capacity of EventStream subscriptions.
const DefaultStreamBuffer = 64

// Manager is the registry and event bus of one adapter.
//
// Events reach at most one ordered, unbounded consumer (EventReceiver) and any
// number of bounded, lossy broadcast subscribers (EventStream). Emit never blocks.
type Manager[P device.Peripheral] struct {
	peripherals *hashmap.Map[uint64, P]

	sinkMu    sync.Mutex
	sink      *EventQueue
	sinkTaken bool

	streams *broadcast.Hub[device.CentralEvent]
	logger  *logrus.Logger
}

// NewManager creates an empty registry whose broadcast subscribers buffer up
// to streamBuffer events each (DefaultStreamBuffer if <= 0).
func NewManager[P device.Peripheral](streamBuffer int, logger *logrus.Logger) *Manager[P] {
	if logger == nil {
		logger = logrus.New()
	}
	if streamBuffer <= 0 {
		streamBuffer = DefaultStreamBuffer
	}

	m := &Manager[P]{
		peripherals: hashmap.New[uint64, P](),
		sink:        newEventQueue(),
		streams:     broadcast.NewHub[device.CentralEvent](streamBuffer),
		logger:      logger,
	}
	m.streams.OnPrune(func(sub *broadcast.Subscription[device.CentralEvent]) {
		m.logger.WithFields(logrus.Fields{
			"subscriber": sub.ID(),
			"dropped":    sub.Dropped(),
		}).Debug("Pruned detached event stream subscriber")
	})
	return m
}

// Emit applies registry side effects and delivers event to every consumer.
// DeviceDisconnected and DeviceLost evict the address from the table.
func (m *Manager[P]) Emit(event device.CentralEvent) {
	switch event.Kind {
	case device.DeviceDisconnected, device.DeviceLost:
		if m.peripherals.Del(event.Address.Uint64()) {
			m.logger.WithFields(logrus.Fields{
				"address": event.Address,
				"reason":  event.Kind,
			}).Debug("Removed peripheral from registry")
		}
	}

	m.logger.WithFields(logrus.Fields{
		"address": event.Address,
		"event":   event.Kind,
	}).Debug("Emitting central event")

	m.sinkMu.Lock()
	if m.sinkTaken {
		m.sink.push(event)
	}
	m.sinkMu.Unlock()

	m.streams.Publish(event)
}

// EventReceiver hands out the ordered single-consumer sink. Only the first
// call succeeds; later calls return (nil, false). Use EventStream for
// additional consumers.
func (m *Manager[P]) EventReceiver() (*EventQueue, bool) {
	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()

	if m.sinkTaken {
		return nil, false
	}
	m.sinkTaken = true
	return m.sink, true
}

// EventStream attaches a new best-effort broadcast subscriber. A subscriber
// that falls behind misses the oldest events instead of slowing the producer.
// Close the subscription to detach; it is pruned on a subsequent Emit.
func (m *Manager[P]) EventStream() *broadcast.Subscription[device.CentralEvent] {
	return m.streams.Subscribe()
}

// HasPeripheral reports whether addr is registered.
func (m *Manager[P]) HasPeripheral(addr device.Address) bool {
	_, ok := m.peripherals.Get(addr.Uint64())
	return ok
}

// AddPeripheral registers p under addr. Registering an address twice, or
// under a key that differs from p.Address(), is a programming error and panics.
func (m *Manager[P]) AddPeripheral(addr device.Address, p P) {
	if got := p.Address(); got != addr {
		panic(fmt.Sprintf("central: peripheral has unexpected address: key %s, peripheral %s", addr, got))
	}
	if !m.peripherals.Insert(addr.Uint64(), p) {
		panic(fmt.Sprintf("central: adding a peripheral that's already registered: %s", addr))
	}
}

// Peripheral looks addr up. The zero P and false are returned when unknown.
func (m *Manager[P]) Peripheral(addr device.Address) (P, bool) {
	return m.peripherals.Get(addr.Uint64())
}

// Modify runs fn against the peripheral registered under addr and reports
// whether it was found.
func (m *Manager[P]) Modify(addr device.Address, fn func(p P)) bool {
	p, ok := m.peripherals.Get(addr.Uint64())
	if !ok {
		return false
	}
	fn(p)
	return true
}

// Peripherals returns a snapshot of the registered peripherals in no
// particular order.
func (m *Manager[P]) Peripherals() []P {
	out := make([]P, 0, m.peripherals.Len())
	m.peripherals.Range(func(_ uint64, p P) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Len returns the number of registered peripherals.
func (m *Manager[P]) Len() int {
	return m.peripherals.Len()
}
