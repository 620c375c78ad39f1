package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blehub/inspector"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
)

var writeCmd = &cobra.Command{
	Use:   "write <address> <characteristic> <hex-value>",
	Short: "Write a characteristic value",
	Long: `Connect to a device and write a hex encoded value to one characteristic.

The value accepts "0a0b", "0x0a0b" and "0a 0b" forms.`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var (
	writeTimeout         time.Duration
	writeWithoutResponse bool
)

func init() {
	writeCmd.Flags().DurationVarP(&writeTimeout, "timeout", "t", 30*time.Second, "Overall operation timeout")
	writeCmd.Flags().BoolVar(&writeWithoutResponse, "without-response", false, "Use write without response")
}

// parseHexValue decodes a user supplied hex string.
func parseHexValue(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %w", err)
	}
	return data, nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	addr, targets, err := parseTarget(args[:2])
	if err != nil {
		return err
	}
	value, err := parseHexValue(args[2])
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

	ctx, cancel := commandContext(cmd, writeTimeout)
	defer cancel()

	_, err = inspector.InspectDevice(ctx, adapter, addr, logger, nil,
		func(p *goble.Peripheral, chars []device.Characteristic) (int, error) {
			c, err := findCharacteristic(chars, targets[0])
			if err != nil {
				return 0, err
			}

			wt := device.WithResponse
			if writeWithoutResponse {
				wt = device.WithoutResponse
			}
			if err := p.Write(ctx, c, value, wt); err != nil {
				return 0, err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(value), device.ShortenUUID(c.UUID))
			return len(value), nil
		})
	return err
}
