package devicefactory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
	"github.com/srg/blehub/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdapterReportsDeviceFailure(t *testing.T) {
	original := DeviceFactory
	t.Cleanup(func() { DeviceFactory = original })

	tests := []struct {
		name    string
		err     error
		matches error
	}{
		{
			name:    "bluetooth off",
			err:     errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			matches: device.ErrBluetoothOff,
		},
		{
			name:    "unsupported platform",
			err:     fmt.Errorf("%w: darwin", goble.ErrUnsupportedPlatform),
			matches: goble.ErrUnsupportedPlatform,
		},
		{
			name: "other",
			err:  errors.New("can't init hci: no devices available"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			DeviceFactory = func() (ble.Device, error) { return nil, tt.err }

			adapter, release, err := NewAdapter(goble.AdapterOptions{EventBuffer: 4}, testutils.NewTestLogger())

			require.Error(t, err)
			assert.Nil(t, adapter)
			assert.Nil(t, release)
			assert.ErrorContains(t, err, "failed to create BLE device")
			if tt.matches != nil {
				assert.ErrorIs(t, err, tt.matches)
			}
		})
	}
}
