package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/blehub/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockLink implements Link for testing
type MockLink struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[*ble.Characteristic]ble.NotificationHandler
}

func (m *MockLink) DiscoverServices(ctx context.Context) ([]*ble.Service, error) {
	args := m.Called(ctx)
	services, _ := args.Get(0).([]*ble.Service)
	return services, args.Error(1)
}

func (m *MockLink) ReadCharacteristic(ctx context.Context, c *ble.Characteristic) ([]byte, error) {
	args := m.Called(ctx, c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockLink) WriteCharacteristic(ctx context.Context, c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(ctx, c, value, noRsp)
	return args.Error(0)
}

func (m *MockLink) Subscribe(ctx context.Context, c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(ctx, c, ind, h)
	if args.Error(0) == nil {
		m.mu.Lock()
		if m.handlers == nil {
			m.handlers = make(map[*ble.Characteristic]ble.NotificationHandler)
		}
		m.handlers[c] = h
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockLink) Unsubscribe(ctx context.Context, c *ble.Characteristic, ind bool) error {
	args := m.Called(ctx, c, ind)
	return args.Error(0)
}

func (m *MockLink) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Notify delivers data to the handler subscribed for c, as the remote would.
func (m *MockLink) Notify(c *ble.Characteristic, data []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[c]
	m.mu.Unlock()
	if ok {
		h(data)
	}
	return ok
}

// MockDialer implements Dialer for testing. The disconnect callback of the
// most recent successful dial is kept for LoseLink.
type MockDialer struct {
	mock.Mock

	mu           sync.Mutex
	onDisconnect func()
}

func (m *MockDialer) Dial(ctx context.Context, addr device.Address, onDisconnect func()) (Link, error) {
	args := m.Called(ctx, addr)
	link, _ := args.Get(0).(Link)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.onDisconnect = onDisconnect
	m.mu.Unlock()
	return link, nil
}

// LoseLink simulates a platform reported disconnect of the last dialed link.
func (m *MockDialer) LoseLink() {
	m.mu.Lock()
	cb := m.onDisconnect
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// MockScanner implements Scanner for testing: it replays its advertisements
// and then blocks until the context is done.
type MockScanner struct {
	mock.Mock
	Advertisements []ble.Advertisement
}

func (m *MockScanner) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup)
	if err := args.Error(0); err != nil {
		return err
	}
	for _, adv := range m.Advertisements {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// recordingEmitter collects emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []device.CentralEvent
}

func (r *recordingEmitter) Emit(event device.CentralEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) Events() []device.CentralEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.CentralEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingEmitter) Kinds() []device.EventKind {
	var kinds []device.EventKind
	for _, e := range r.Events() {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *recordingEmitter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
