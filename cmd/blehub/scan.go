package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blehub/internal/device"
	"github.com/srg/blehub/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for Bluetooth Low Energy devices in the vicinity.

While scanning, every central event is printed as it happens: device
discovery, advertised manufacturer data, service data and services, and
devices that stopped advertising. When the scan ends a summary of all
tracked devices is printed.`,
	RunE: runScan,
}

var (
	scanDuration     time.Duration
	scanFormat       string
	scanServices     []string
	scanAllowList    []string
	scanBlockList    []string
	scanNoDuplicates bool
	scanQuiet        bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to scan_timeout)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Summary format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Only show devices advertising one of these service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicates, "no-duplicates", false, "Report only the first advertisement of each device")
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "Print only the summary")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if scanFormat != "" {
		cfg.OutputFormat = scanFormat
	}
	if scanDuration > 0 {
		cfg.ScanTimeout = scanDuration
	}
	if cmd.Flags().Changed("no-duplicates") {
		cfg.AllowDuplicates = !scanNoDuplicates
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	opts, err := scanner.NewScanOptions(scanServices, scanAllowList, scanBlockList)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, release, err := adapterFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd, cfg.ScanTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	// JSON summaries stay machine readable
	live := !scanQuiet && cfg.OutputFormat != "json"

	onEvent := func(ev device.CentralEvent) {
		if live {
			fmt.Fprintln(out, formatEvent(ev))
		}
	}

	props, err := scanner.NewScanner(adapter, opts, logger).Scan(ctx, onEvent, nil)
	if err != nil {
		logger.WithError(err).Error("scan failed")
		return err
	}

	if live {
		fmt.Fprintln(out)
	}
	return writeSummary(out, props, cfg.OutputFormat, time.Now())
}
