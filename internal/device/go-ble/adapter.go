package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blehub/internal/advert"
	"github.com/srg/blehub/internal/broadcast"
	"github.com/srg/blehub/internal/central"
	"github.com/srg/blehub/internal/device"
	"github.com/srg/blehub/internal/groutine"
)

// AdapterOptions tunes an Adapter and the peripherals it creates.
type AdapterOptions struct {
	// EventBuffer is the per-subscriber capacity of EventStream subscriptions.
	EventBuffer int `default:"64"`
	// DeviceTimeout is how long a disconnected peripheral may stay silent
	// before DeviceLost is emitted for it. Zero disables expiry.
	DeviceTimeout time.Duration `default:"30s"`
	// AllowDuplicates reports every advertisement instead of the first one.
	AllowDuplicates bool `default:"true"`
	Peripheral      Options
}

// Adapter ties one go-ble device to a central registry: scan callbacks are
// decoded and merged into per-address peripherals, connection callbacks are
// routed to them and stale peripherals are expired.
type Adapter struct {
	manager *central.Manager[*Peripheral]
	scanner Scanner
	dialer  Dialer
	opts    AdapterOptions
	logger  *logrus.Logger

	// createMu makes lookup-or-create and expiry atomic with respect to each other.
	createMu sync.Mutex
}

// NewAdapter creates an adapter that scans with scanner and connects with dialer.
func NewAdapter(scanner Scanner, dialer Dialer, opts AdapterOptions, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{
		manager: central.NewManager[*Peripheral](opts.EventBuffer, logger),
		scanner: scanner,
		dialer:  dialer,
		opts:    opts,
		logger:  logger,
	}
}

// NewDeviceAdapter creates an adapter on top of a platform device, see DeviceFactory.
func NewDeviceAdapter(dev ble.Device, opts AdapterOptions, logger *logrus.Logger) *Adapter {
	return NewAdapter(dev, NewDialer(dev, logger), opts, logger)
}

// Scan processes advertisements until ctx is done. While scanning, stale
// peripherals are expired every half DeviceTimeout. Cancellation and deadline
// expiry of ctx are a normal end of scan, not an error.
func (a *Adapter) Scan(ctx context.Context) error {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.opts.DeviceTimeout > 0 {
		groutine.Go(scanCtx, "ble-stale-sweeper", a.sweep)
	}

	a.logger.WithField("allow_duplicates", a.opts.AllowDuplicates).Debug("Scanning...")
	err := a.scanner.Scan(scanCtx, a.opts.AllowDuplicates, a.HandleAdvertisement)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return NormalizeError(err)
}

func (a *Adapter) sweep(ctx context.Context) {
	interval := a.opts.DeviceTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.ExpireStale(now); n > 0 {
				a.logger.WithField("count", n).Debug("Expired stale peripherals")
			}
		}
	}
}

// HandleAdvertisement is the go-ble scan callback.
func (a *Adapter) HandleAdvertisement(adv ble.Advertisement) {
	r, err := NewReport(adv)
	if err != nil {
		a.logger.WithField("error", err).Debug("Ignoring advertisement")
		return
	}
	a.HandleReport(r)
}

// HandleReport merges r into the peripheral for its address. A report for an
// unknown address registers a new peripheral and emits DeviceDiscovered;
// otherwise DeviceUpdated carries the categories the report contained.
func (a *Adapter) HandleReport(r advert.Report) {
	p, created := a.lookupOrCreate(r.Address)
	if created {
		a.logger.WithField("address", r.Address).Info("Discovered peripheral")
		a.manager.Emit(device.Discovered(r.Address))
	}

	cats := p.UpdateProperties(r)
	if !created {
		a.manager.Emit(device.Updated(r.Address, cats))
	}
}

// OnConnectionState routes a platform connection-state callback. Only
// disconnects are acted upon; connections are driven by Peripheral.Connect.
func (a *Adapter) OnConnectionState(addr device.Address, connected bool) {
	if connected {
		return
	}
	p, ok := a.manager.Peripheral(addr)
	if !ok {
		return
	}
	p.handleLinkLost(p.gen.Load())
}

// PeripheralFor returns the peripheral registered for addr, registering a
// fresh one when the address was never seen. No discovery event is emitted.
func (a *Adapter) PeripheralFor(addr device.Address) *Peripheral {
	p, _ := a.lookupOrCreate(addr)
	return p
}

func (a *Adapter) lookupOrCreate(addr device.Address) (*Peripheral, bool) {
	// an evicted handle may linger until its eviction event is emitted;
	// expiry does both under createMu
	if p, ok := a.manager.Peripheral(addr); ok && !p.Evicted() {
		return p, false
	}

	a.createMu.Lock()
	defer a.createMu.Unlock()

	if p, ok := a.manager.Peripheral(addr); ok {
		return p, false
	}
	p := NewPeripheral(addr, a.manager, a.dialer, a.opts.Peripheral, a.logger)
	a.manager.AddPeripheral(addr, p)
	return p, true
}

// ExpireStale emits DeviceLost for every disconnected peripheral that has not
// advertised within DeviceTimeout of now and returns how many were expired.
func (a *Adapter) ExpireStale(now time.Time) int {
	if a.opts.DeviceTimeout <= 0 {
		return 0
	}

	a.createMu.Lock()
	defer a.createMu.Unlock()

	expired := 0
	for _, p := range a.manager.Peripherals() {
		if p.expire(now, a.opts.DeviceTimeout) {
			expired++
		}
	}
	return expired
}

func (a *Adapter) Peripheral(addr device.Address) (*Peripheral, bool) {
	return a.manager.Peripheral(addr)
}

func (a *Adapter) Peripherals() []*Peripheral {
	return a.manager.Peripherals()
}

func (a *Adapter) HasPeripheral(addr device.Address) bool {
	return a.manager.HasPeripheral(addr)
}

// EventReceiver hands out the ordered, unbounded event sink once.
func (a *Adapter) EventReceiver() (*central.EventQueue, bool) {
	return a.manager.EventReceiver()
}

// EventStream attaches a best-effort broadcast subscriber.
func (a *Adapter) EventStream() *broadcast.Subscription[device.CentralEvent] {
	return a.manager.EventStream()
}
