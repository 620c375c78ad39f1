// Package devicefactory opens the platform BLE device and builds adapters on top of it.
package devicefactory

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/blehub/internal/device/go-ble"
)

// DeviceFactory creates the platform ble.Device.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = func() (ble.Device, error) {
	return goble.DeviceFactory()
}

// NewAdapter opens the platform device and builds an adapter on it.
// The returned func stops the device and must be called once the adapter is
// no longer used.
func NewAdapter(opts goble.AdapterOptions, logger *logrus.Logger) (*goble.Adapter, func(), error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create BLE device: %w", goble.NormalizeError(err))
	}

	release := func() {
		if err := dev.Stop(); err != nil {
			logger.WithError(err).Debug("Stopping BLE device failed")
		}
	}
	return goble.NewDeviceAdapter(dev, opts, logger), release, nil
}
