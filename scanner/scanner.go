package scanner

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
	"github.com/srg/blehub/internal/groutine"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// maxPendingEvents bounds the events held back per device while it does not
// match the service filter yet. The oldest are dropped first.
const maxPendingEvents = 32

// ScanOptions restricts the devices a scan reports. Empty lists do not filter.
type ScanOptions struct {
	ServiceUUIDs []uuid.UUID
	AllowList    []device.Address
	BlockList    []device.Address
}

// NewScanOptions parses textual service UUIDs and addresses.
func NewScanOptions(services, allow, block []string) (*ScanOptions, error) {
	opts := &ScanOptions{}
	for _, s := range services {
		u, err := device.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID: %w", err)
		}
		opts.ServiceUUIDs = append(opts.ServiceUUIDs, u)
	}

	var err error
	if opts.AllowList, err = parseAddresses(allow); err != nil {
		return nil, err
	}
	if opts.BlockList, err = parseAddresses(block); err != nil {
		return nil, err
	}
	return opts, nil
}

func parseAddresses(in []string) ([]device.Address, error) {
	out := make([]device.Address, 0, len(in))
	for _, s := range in {
		addr, err := device.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// AddressAllowed applies the allow and block lists.
func (o *ScanOptions) AddressAllowed(addr device.Address) bool {
	if slices.Contains(o.BlockList, addr) {
		return false
	}
	return len(o.AllowList) == 0 || slices.Contains(o.AllowList, addr)
}

// Match reports whether a device passes every filter. A device matches the
// service filter when it advertised at least one of the services.
func (o *ScanOptions) Match(props device.Properties) bool {
	if !o.AddressAllowed(props.Address) {
		return false
	}
	if len(o.ServiceUUIDs) == 0 {
		return true
	}
	return slices.ContainsFunc(o.ServiceUUIDs, props.HasService)
}

// Scanner drives an adapter scan and filters what it reports.
type Scanner struct {
	adapter *goble.Adapter
	opts    *ScanOptions
	logger  *logrus.Logger

	// owned by the goroutine delivering events
	matched map[device.Address]bool
	pending map[device.Address][]device.CentralEvent
}

// NewScanner creates a scanner over adapter. It takes the adapter's event
// receiver on the first Scan.
func NewScanner(adapter *goble.Adapter, opts *ScanOptions, logger *logrus.Logger) *Scanner {
	if opts == nil {
		opts = &ScanOptions{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		adapter: adapter,
		opts:    opts,
		logger:  logger,
		matched: make(map[device.Address]bool),
		pending: make(map[device.Address][]device.CentralEvent),
	}
}

// Scan processes advertisements until ctx is done and returns the properties
// of every matching device, ordered by name and then address.
//
// Events of matching devices are passed to onEvent in emission order, one at a
// time. While a service filter is set, the events of a device are held back
// until it advertises one of the services, then released in order.
func (s *Scanner) Scan(ctx context.Context, onEvent func(device.CentralEvent), progressCallback ProgressCallback) ([]device.Properties, error) {
	if onEvent == nil {
		onEvent = func(device.CentralEvent) {}
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	events, ok := s.adapter.EventReceiver()
	if !ok {
		return nil, fmt.Errorf("scan already started on this adapter")
	}

	s.logger.Info("Starting BLE scan...")
	progressCallback("Scanning")

	deliverCtx, stopDelivery := context.WithCancel(context.Background())
	delivered := make(chan struct{})
	groutine.Go(deliverCtx, "scan-event-delivery", func(ctx context.Context) {
		defer close(delivered)
		for {
			ev, err := events.Recv(ctx)
			if err != nil {
				return
			}
			s.deliver(ev, onEvent)
		}
	})

	scanErr := s.adapter.Scan(ctx)

	stopDelivery()
	<-delivered
	for {
		ev, ok := events.TryRecv()
		if !ok {
			break
		}
		s.deliver(ev, onEvent)
	}

	if scanErr != nil {
		return nil, fmt.Errorf("scan failed: %w", scanErr)
	}

	progressCallback("Processing results")

	props := s.Devices()
	s.logger.WithField("device_count", len(props)).Info("BLE scan completed")
	return props, nil
}

// Devices returns the properties of every matching device, ordered by name
// and then address.
func (s *Scanner) Devices() []device.Properties {
	out := make([]device.Properties, 0)
	for _, p := range s.adapter.Peripherals() {
		props := p.Properties()
		if s.opts.Match(props) {
			out = append(out, props)
		}
	}
	slices.SortFunc(out, func(a, b device.Properties) int {
		if c := strings.Compare(a.Name(), b.Name()); c != 0 {
			return c
		}
		return a.Address.Compare(b.Address)
	})
	return out
}

func (s *Scanner) deliver(ev device.CentralEvent, onEvent func(device.CentralEvent)) {
	addr := ev.Address
	if !s.opts.AddressAllowed(addr) {
		return
	}
	if len(s.opts.ServiceUUIDs) == 0 {
		onEvent(ev)
		return
	}

	if !s.matched[addr] {
		p, ok := s.adapter.Peripheral(addr)
		if !ok || !s.opts.Match(p.Properties()) {
			s.hold(ev)
			return
		}
		s.matched[addr] = true
		for _, held := range s.pending[addr] {
			onEvent(held)
		}
		delete(s.pending, addr)
	}

	onEvent(ev)
	if ev.Kind == device.DeviceLost {
		// a rediscovered device starts over with fresh properties
		delete(s.matched, addr)
	}
}

func (s *Scanner) hold(ev device.CentralEvent) {
	if ev.Kind == device.DeviceLost {
		delete(s.pending, ev.Address)
		return
	}
	q := append(s.pending[ev.Address], ev)
	if len(q) > maxPendingEvents {
		q = q[len(q)-maxPendingEvents:]
	}
	s.pending[ev.Address] = q
}
