package goble

import (
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/blehub/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProperties(t *testing.T) {
	tests := []struct {
		name string
		in   ble.Property
		want device.CharProperties
	}{
		{"none", 0, 0},
		{"read notify", ble.CharRead | ble.CharNotify, device.CharRead | device.CharNotify},
		{"writes", ble.CharWrite | ble.CharWriteNR, device.CharWrite | device.CharWriteWithoutResponse},
		{"indicate", ble.CharIndicate, device.CharIndicate},
		{"signed and extended", ble.CharSignedWrite | ble.CharExtended, device.CharAuthenticatedSignedWrites | device.CharExtendedProperties},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewProperties(tt.in))
		})
	}
}

func TestNewCharacteristic(t *testing.T) {
	service := device.UUIDFrom16(0x180F)
	c, err := NewCharacteristic(service, &ble.Characteristic{UUID: ble.UUID16(0x2A19), Property: ble.CharIndicate})
	require.NoError(t, err)

	info := c.Characteristic()
	assert.Equal(t, device.UUIDFrom16(0x2A19), info.UUID)
	assert.Equal(t, service, info.ServiceUUID)
	assert.True(t, c.useIndications())

	_, err = NewCharacteristic(service, &ble.Characteristic{UUID: ble.UUID{1, 2, 3}})
	assert.Error(t, err)
}

func TestNormalizeError(t *testing.T) {
	assert.NoError(t, NormalizeError(nil))

	err := NormalizeError(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"))
	assert.ErrorIs(t, err, device.ErrBluetoothOff)

	err = NormalizeError(errors.New("peripheral Disconnected"))
	assert.ErrorIs(t, err, device.ErrNotConnected)

	err = NormalizeError(errors.New("device already connected"))
	assert.ErrorIs(t, err, device.ErrAlreadyConnected)

	other := errors.New("att error 0x05")
	assert.Same(t, other, NormalizeError(other))
}

func TestUnsupportedPlatform(t *testing.T) {
	tests := []struct {
		goos     string
		contains string
	}{
		{"darwin", "CoreBluetooth does not expose device hardware addresses"},
		{"windows", "windows: no BLE transport"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			err := unsupportedPlatform(tt.goos)
			assert.ErrorIs(t, err, ErrUnsupportedPlatform)
			assert.ErrorContains(t, err, tt.contains)
		})
	}
}
