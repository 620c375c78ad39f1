package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
	// Evicted is returned by a peripheral handle the registry no longer holds.
	Evicted ConnectionState = "evicted"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
	ErrEvicted          = &ConnectionError{State: Evicted}
)

// ErrNotSupported matches every NotSupportedError through errors.Is.
var ErrNotSupported = errors.New("not supported")

// NotSupportedError reports a GATT operation attempted against a characteristic
// that is not present in the peripheral's characteristic cache.
type NotSupportedError struct {
	Op   string // "read", "write", "subscribe", "unsubscribe"
	UUID uuid.UUID
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s not supported: characteristic %s not discovered", e.Op, e.UUID)
}

func (e *NotSupportedError) Is(target error) bool {
	return target == ErrNotSupported
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// UnsupportedOp returns the operation name carried by a NotSupportedError in err's chain.
func UnsupportedOp(err error) (string, bool) {
	var nerr *NotSupportedError
	if errors.As(err, &nerr) {
		return nerr.Op, true
	}
	return "", false
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeError maps transport error strings that are common to every backend
// onto structured ConnectionError values. Returns wrapped errors to preserve
// the original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return err
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	default:
		return err
	}
}
