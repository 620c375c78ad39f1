package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blehub/internal/device"
)

// ErrUnsupportedPlatform is returned by DeviceFactory where no usable
// transport exists.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// unsupportedPlatform explains why goos has no transport. CoreBluetooth hands
// out per-host peer UUIDs instead of hardware addresses, and peripherals are
// keyed and dialed by hardware address.
func unsupportedPlatform(goos string) error {
	if goos == "darwin" {
		return fmt.Errorf("%w: %s: CoreBluetooth does not expose device hardware addresses", ErrUnsupportedPlatform, goos)
	}
	return fmt.Errorf("%w: %s: no BLE transport", ErrUnsupportedPlatform, goos)
}

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	default:
		return device.NormalizeError(err)
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
