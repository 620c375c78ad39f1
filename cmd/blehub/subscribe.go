package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blehub/inspector"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <address> <characteristic>...",
	Short: "Print characteristic notifications",
	Long: `Connect to a device, subscribe to one or more characteristics and print
every received value until interrupted, the duration elapses or the
requested number of values has been received.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSubscribe,
}

var (
	subscribeDuration time.Duration
	subscribeCount    int
)

func init() {
	subscribeCmd.Flags().DurationVarP(&subscribeDuration, "duration", "d", 0, "Stop after this long (0 for indefinite)")
	subscribeCmd.Flags().IntVarP(&subscribeCount, "count", "n", 0, "Stop after this many values (0 for unlimited)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	addr, targets, err := parseTarget(args)
	if err != nil {
		return err
	}
	if subscribeCount < 0 {
		return fmt.Errorf("invalid count %d: must not be negative", subscribeCount)
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

	ctx, cancel := commandContext(cmd, subscribeDuration)
	defer cancel()

	lifecycle := adapter.EventStream()
	defer lifecycle.Close()

	out := cmd.OutOrStdout()
	_, err = inspector.InspectDevice(ctx, adapter, addr, logger, nil,
		func(p *goble.Peripheral, chars []device.Characteristic) (int, error) {
			resolved := make([]device.Characteristic, 0, len(targets))
			for _, t := range targets {
				c, err := findCharacteristic(chars, t)
				if err != nil {
					return 0, err
				}
				resolved = append(resolved, c)
			}

			values := p.Notifications()
			defer func() {
				values.Close()
				if n := values.Dropped(); n > 0 {
					logger.WithField("dropped", n).Warn("Notifications were dropped, output could not keep up")
				}
			}()

			for _, c := range resolved {
				if err := p.Subscribe(ctx, c); err != nil {
					return 0, err
				}
				defer func(c device.Characteristic) {
					if err := p.Unsubscribe(context.Background(), c); err != nil {
						logger.WithError(err).WithField("characteristic", c.UUID).Debug("Unsubscribe failed")
					}
				}(c)
			}

			received := 0
			for {
				select {
				case <-ctx.Done():
					return received, nil
				case n := <-values.C():
					fmt.Fprintf(out, "%s: %s\n", device.ShortenUUID(n.UUID), formatValue(n.Value))
					received++
					if subscribeCount > 0 && received >= subscribeCount {
						return received, nil
					}
				case ev := <-lifecycle.C():
					if ev.Kind == device.DeviceDisconnected && ev.Address == addr {
						return received, fmt.Errorf("%s: %w", addr, ErrConnectionLost)
					}
				}
			}
		})
	return err
}
