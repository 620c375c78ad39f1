// Package blefake provides an in-memory go-ble transport for tests of the
// layers above the adapter.
package blefake

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
)

// Scanner replays its advertisements, then scans until cancelled.
type Scanner struct {
	Advertisements []ble.Advertisement
	Err            error
}

func (f *Scanner) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	if f.Err != nil {
		return f.Err
	}
	for _, adv := range f.Advertisements {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Dialer hands out Link on every Dial unless Err is set.
type Dialer struct {
	Link *Link
	Err  error

	mu           sync.Mutex
	dials        int
	onDisconnect func()
}

func (f *Dialer) Dial(_ context.Context, _ device.Address, onDisconnect func()) (goble.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.Err != nil {
		return nil, f.Err
	}
	f.onDisconnect = onDisconnect
	f.Link.reopen()
	return f.Link, nil
}

// Dials returns how many times Dial was called.
func (f *Dialer) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// LoseLink reports the current link as lost by the platform.
func (f *Dialer) LoseLink() {
	f.mu.Lock()
	fn := f.onDisconnect
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Write is one recorded characteristic write.
type Write struct {
	UUID  string
	Value []byte
	NoRsp bool
}

// Link serves a fixed GATT profile. Values are keyed by go-ble's textual
// characteristic UUID ("2a29").
type Link struct {
	Services []*ble.Service
	Values   map[string][]byte
	// Notifications are pushed synchronously to the handler on Subscribe.
	Notifications map[string][][]byte
	// OnSubscribe runs on its own goroutine after every Subscribe.
	OnSubscribe func()

	mu     sync.Mutex
	writes []Write
	closed bool
}

// NewLink creates a link serving services.
func NewLink(services []*ble.Service) *Link {
	return &Link{Services: services, Values: map[string][]byte{}, Notifications: map[string][][]byte{}}
}

func (l *Link) reopen() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = false
}

func (l *Link) DiscoverServices(context.Context) ([]*ble.Service, error) {
	return l.Services, nil
}

func (l *Link) ReadCharacteristic(_ context.Context, c *ble.Characteristic) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.Values[c.UUID.String()]
	if !ok {
		return nil, errors.New("read not permitted")
	}
	return v, nil
}

func (l *Link) WriteCharacteristic(_ context.Context, c *ble.Characteristic, value []byte, noRsp bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, Write{UUID: c.UUID.String(), Value: value, NoRsp: noRsp})
	return nil
}

func (l *Link) Subscribe(_ context.Context, c *ble.Characteristic, _ bool, h ble.NotificationHandler) error {
	for _, v := range l.Notifications[c.UUID.String()] {
		h(v)
	}
	if l.OnSubscribe != nil {
		go l.OnSubscribe()
	}
	return nil
}

func (l *Link) Unsubscribe(context.Context, *ble.Characteristic, bool) error {
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Closed reports whether the link was closed since the last Dial.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Writes returns the recorded writes in order.
func (l *Link) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// SensorProfile is a heart rate service (measurement 2a37 read|notify,
// control point 2a39 write|write-without-response) plus a device information
// service (manufacturer name 2a29 read).
func SensorProfile() []*ble.Service {
	return []*ble.Service{
		{
			UUID: ble.UUID16(0x180D),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.UUID16(0x2A37), Property: ble.CharRead | ble.CharNotify},
				{UUID: ble.UUID16(0x2A39), Property: ble.CharWrite | ble.CharWriteNR},
			},
		},
		{
			UUID: ble.UUID16(0x180A),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.UUID16(0x2A29), Property: ble.CharRead},
			},
		},
	}
}
