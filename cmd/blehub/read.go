package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blehub/inspector"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
)

var readCmd = &cobra.Command{
	Use:   "read <address> <characteristic>",
	Short: "Read a characteristic value",
	Long: `Connect to a device, read one characteristic and print its value.

The characteristic may be given in short ("2A37") or full UUID form.`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

var readTimeout time.Duration

func init() {
	readCmd.Flags().DurationVarP(&readTimeout, "timeout", "t", 30*time.Second, "Overall operation timeout")
}

func runRead(cmd *cobra.Command, args []string) error {
	addr, targets, err := parseTarget(args)
	if err != nil {
		return err
	}
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	adapter, release, err := adapterFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd, readTimeout)
	defer cancel()

	_, err = inspector.InspectDevice(ctx, adapter, addr, logger, nil,
		func(p *goble.Peripheral, chars []device.Characteristic) (struct{}, error) {
			c, err := findCharacteristic(chars, targets[0])
			if err != nil {
				return struct{}{}, err
			}
			if !c.Properties.Has(device.CharRead) {
				logger.WithField("characteristic", c.UUID).Warn("Characteristic does not advertise read support")
			}

			value, err := p.Read(ctx, c)
			if err != nil {
				return struct{}{}, err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", device.ShortenUUID(c.UUID), formatValue(value))
			return struct{}{}, nil
		})
	return err
}
