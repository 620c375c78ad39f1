package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/srg/blehub/internal/device"
)

var (
	discoveredColor = color.New(color.FgGreen).SprintFunc()
	lostColor       = color.New(color.FgRed).SprintFunc()
	linkColor       = color.New(color.FgCyan).SprintFunc()
	advertColor     = color.New(color.Faint).SprintFunc()
)

// formatEvent renders one central event as a single line.
func formatEvent(ev device.CentralEvent) string {
	kind := fmt.Sprintf("%-29s", ev.Kind)
	switch ev.Kind {
	case device.DeviceDiscovered:
		kind = discoveredColor(kind)
	case device.DeviceLost:
		kind = lostColor(kind)
	case device.DeviceConnected, device.DeviceDisconnected:
		kind = linkColor(kind)
	case device.ManufacturerDataAdvertisement, device.ServiceDataAdvertisement, device.ServicesAdvertisement:
		kind = advertColor(kind)
	}

	line := kind + " " + ev.Address.String()
	if details := eventDetails(ev); details != "" {
		line += " " + details
	}
	return line
}

func eventDetails(ev device.CentralEvent) string {
	switch ev.Kind {
	case device.DeviceUpdated:
		return ev.Categories.String()
	case device.ManufacturerDataAdvertisement:
		ids := make([]uint16, 0, len(ev.ManufacturerData))
		for id := range ev.ManufacturerData {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf("0x%04x=%x", id, ev.ManufacturerData[id]))
		}
		return strings.Join(parts, " ")
	case device.ServiceDataAdvertisement:
		parts := make([]string, 0, len(ev.ServiceData))
		for u, data := range ev.ServiceData {
			parts = append(parts, fmt.Sprintf("%s=%x", device.ShortenUUID(u), data))
		}
		sort.Strings(parts)
		return strings.Join(parts, " ")
	case device.ServicesAdvertisement:
		return joinServices(ev.Services)
	default:
		return ""
	}
}

func joinServices(services []uuid.UUID) string {
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, device.ShortenUUID(s))
	}
	return strings.Join(names, ",")
}

// formatValue renders a characteristic value as hex, followed by the quoted
// text when every byte is printable.
func formatValue(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	out := fmt.Sprintf("% x", data)
	for _, r := range string(data) {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return out
		}
	}
	return fmt.Sprintf("%s %q", out, string(data))
}

func writeSummary(w io.Writer, props []device.Properties, format string, now time.Time) error {
	if format == "json" {
		return writeJSON(w, props)
	}
	if len(props) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}
	return writeTable(w, props, now)
}

func writeTable(w io.Writer, props []device.Properties, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tTX\tSERVICES\tLAST SEEN")

	for _, p := range props {
		name := p.Name()
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := joinServices(p.Services)
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		lastSeen := now.Sub(p.LastSeen).Truncate(time.Second)

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s ago\n",
			name, p.Address, dbm(p.RSSI), dbm(p.TxPowerLevel), services, lastSeen)
	}

	return tw.Flush()
}

func dbm[T int8 | int16](v *T) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d dBm", *v)
}

func writeJSON(w io.Writer, props []device.Properties) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(props)
}
