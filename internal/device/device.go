package device

import (
	"context"
)

// LinkState is the tristate connection state of a peripheral.
type LinkState int32

const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateConnected
)

func (s LinkState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Emitter receives the events a peripheral produces. It is implemented by the
// central registry and must never block.
type Emitter interface {
	Emit(event CentralEvent)
}

// NotificationStream is one independent reader of a peripheral's value
// notifications. Values published before the reader attached are not replayed;
// a reader that falls behind loses the oldest values.
type NotificationStream interface {
	C() <-chan ValueNotification
	Close()
	// Dropped counts the values lost because the reader fell behind.
	Dropped() uint64
}

// PeripheralInfo is the read-only query surface of a peripheral.
//
//nolint:revive // PeripheralInfo name is intentional when used as device.PeripheralInfo
type PeripheralInfo interface {
	Address() Address
	Properties() Properties
	Characteristics() []Characteristic
	IsConnected() bool
	State() LinkState
}

// Peripheral is the capability set every transport implements.
type Peripheral interface {
	PeripheralInfo

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	DiscoverCharacteristics(ctx context.Context) ([]Characteristic, error)

	Read(ctx context.Context, c Characteristic) ([]byte, error)
	Write(ctx context.Context, c Characteristic, data []byte, wt WriteType) error
	Subscribe(ctx context.Context, c Characteristic) error
	Unsubscribe(ctx context.Context, c Characteristic) error

	Notifications() NotificationStream
}
