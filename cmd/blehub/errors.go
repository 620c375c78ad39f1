package main

import (
	"errors"
	"fmt"

	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost during operation.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a device that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// formatUserError adds a hint to errors a user can act upon.
func formatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return fmt.Sprintf("%v (is Bluetooth turned on?)", err)
	case errors.Is(err, device.ErrNotSupported):
		return fmt.Sprintf("%v (the device does not expose this characteristic)", err)
	case errors.Is(err, goble.ErrUnsupportedPlatform):
		return fmt.Sprintf("%v (blehub needs a linux HCI adapter)", err)
	case errors.Is(err, ErrConnectionLost):
		return fmt.Sprintf("%v (the device went out of range or was turned off)", err)
	default:
		return err.Error()
	}
}
