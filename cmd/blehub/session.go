package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
	"github.com/srg/blehub/internal/devicefactory"
	"github.com/srg/blehub/pkg/config"
)

// adapterFactory opens the platform BLE device. The returned func releases it.
var adapterFactory = func(cfg *config.Config, logger *logrus.Logger) (*goble.Adapter, func(), error) {
	return devicefactory.NewAdapter(cfg.AdapterOptions(), logger)
}

// setup loads the configuration and builds the logger for cmd.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// commandContext derives the context of a command run: bounded by timeout
// when positive and cancelled on Ctrl+C.
func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cancelTimeout := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
	}
	ctx, cancel := context.WithCancel(ctx)

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
		cancelTimeout()
	}
}

// findCharacteristic looks u up among the discovered characteristics.
func findCharacteristic(chars []device.Characteristic, u device.Characteristic) (device.Characteristic, error) {
	idx := slices.IndexFunc(chars, func(c device.Characteristic) bool { return c.UUID == u.UUID })
	if idx >= 0 {
		return chars[idx], nil
	}

	available := make([]string, 0, len(chars))
	for _, c := range chars {
		available = append(available, device.ShortenUUID(c.UUID))
	}
	return device.Characteristic{}, fmt.Errorf("%w: characteristic %s not found (available: %s)",
		device.ErrNotSupported, device.ShortenUUID(u.UUID), strings.Join(available, ", "))
}

// parseTarget validates the <address> <characteristic...> arguments shared
// by the GATT commands.
func parseTarget(args []string) (device.Address, []device.Characteristic, error) {
	addr, err := device.ParseAddress(args[0])
	if err != nil {
		return device.Address{}, nil, err
	}
	chars := make([]device.Characteristic, 0, len(args)-1)
	for _, s := range args[1:] {
		u, err := device.ParseUUID(s)
		if err != nil {
			return device.Address{}, nil, err
		}
		chars = append(chars, device.Characteristic{UUID: u})
	}
	return addr, chars, nil
}
