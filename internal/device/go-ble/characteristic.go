package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/blehub/internal/device"
)

// BLECharacteristic is a cache entry: the immutable characteristic metadata
// plus the go-ble handle GATT operations are issued against.
type BLECharacteristic struct {
	info    device.Characteristic
	BLEChar *ble.Characteristic
}

// NewCharacteristic converts a discovered go-ble characteristic.
func NewCharacteristic(service uuid.UUID, c *ble.Characteristic) (*BLECharacteristic, error) {
	u, err := UUIDFromBLE(c.UUID)
	if err != nil {
		return nil, fmt.Errorf("characteristic in service %s: %w", service, err)
	}
	return &BLECharacteristic{
		info: device.Characteristic{
			UUID:        u,
			ServiceUUID: service,
			Properties:  NewProperties(c.Property),
		},
		BLEChar: c,
	}, nil
}

// Characteristic returns the transport independent view.
func (c *BLECharacteristic) Characteristic() device.Characteristic {
	return c.info
}

// useIndications reports whether subscribing must use indications because the
// characteristic does not support notifications.
func (c *BLECharacteristic) useIndications() bool {
	return !c.info.Properties.Has(device.CharNotify) && c.info.Properties.Has(device.CharIndicate)
}

// UUIDFromBLE converts a go-ble UUID (stored little-endian, as on air) into its
// canonical 128-bit form.
func UUIDFromBLE(u ble.UUID) (uuid.UUID, error) {
	return device.UUIDFromLittleEndian(u)
}
