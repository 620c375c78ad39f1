package inspector

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// InspectCallback processes a connected peripheral and produces output of type R.
// chars holds every characteristic discovered on the peripheral.
type InspectCallback[R any] func(p *goble.Peripheral, chars []device.Characteristic) (R, error)

// InspectDevice connects to the peripheral at addr, discovers its
// characteristics and executes the callback with the connected peripheral.
// The connection is closed once the callback returns, whatever its outcome.
// The connect timeout is the one the adapter was configured with.
func InspectDevice[R any](ctx context.Context, adapter *goble.Adapter, addr device.Address, logger *logrus.Logger, progressCallback ProgressCallback, callback InspectCallback[R]) (R, error) {
	var zero R
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	progressCallback("Connecting")

	p := adapter.PeripheralFor(addr)
	if err := p.Connect(ctx); err != nil {
		progressCallback("Failed")
		return zero, err
	}

	progressCallback("Connected")

	// Ensure the peripheral is disconnected after the callback completes
	defer func() {
		if err := p.Disconnect(context.Background()); err != nil {
			logger.WithError(err).WithField("address", addr).Error("failed to disconnect device")
		}
	}()

	progressCallback("Discovering")

	chars, err := p.DiscoverCharacteristics(ctx)
	if err != nil {
		progressCallback("Failed")
		return zero, fmt.Errorf("failed to discover characteristics: %w", err)
	}

	progressCallback("Processing results")

	return callback(p, chars)
}
