package goble

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/blehub/internal/advert"
	"github.com/srg/blehub/internal/broadcast"
	"github.com/srg/blehub/internal/device"
)

// Options tunes a Peripheral.
type Options struct {
	// NotificationBuffer is the per-reader capacity of Notifications streams.
	NotificationBuffer int `default:"16"`
	// ConnectTimeout bounds Connect when the caller's context has no deadline.
	ConnectTimeout time.Duration `default:"30s"`
}

// Peripheral is the go-ble backed aggregator of one remote device: its
// accumulated advertised properties, its GATT link and characteristic cache,
// and the fanout of received notifications.
//
// Emitting DeviceDisconnected or DeviceLost evicts the peripheral from its
// registry and ends the handle's lifetime: Connect and every GATT operation
// then fail with device.ErrEvicted. Queries keep answering from the last state.
//
// Lock order: updateMu, then linkMu, then charsMu or propsMu. Emission never
// calls back into the peripheral.
type Peripheral struct {
	address device.Address
	emitter device.Emitter
	dialer  Dialer
	opts    Options
	logger  *logrus.Logger

	// linkMu serializes connect, disconnect and every GATT operation.
	linkMu sync.Mutex
	link   Link
	gen     atomic.Uint64
	state   atomic.Int32
	evicted atomic.Bool

	charsMu sync.RWMutex
	chars   map[uuid.UUID]*BLECharacteristic
	order   []uuid.UUID

	notifications *broadcast.Hub[device.ValueNotification]

	// updateMu keeps merge and emission of one report atomic relative to the next.
	updateMu sync.Mutex
	propsMu  sync.RWMutex
	props    device.Properties
}

var _ device.Peripheral = (*Peripheral)(nil)

// NewPeripheral creates the aggregator for addr. Events are delivered to
// emitter, connections are opened through dialer.
func NewPeripheral(addr device.Address, emitter device.Emitter, dialer Dialer, opts Options, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.NotificationBuffer <= 0 {
		opts.NotificationBuffer = 16
	}

	p := &Peripheral{
		address:       addr,
		emitter:       emitter,
		dialer:        dialer,
		opts:          opts,
		logger:        logger,
		chars:         make(map[uuid.UUID]*BLECharacteristic),
		notifications: broadcast.NewHub[device.ValueNotification](opts.NotificationBuffer),
		props: device.Properties{
			Address:          addr,
			ManufacturerData: map[uint16][]byte{},
			ServiceData:      map[uuid.UUID][]byte{},
			LastSeen:         time.Now(),
		},
	}
	p.state.Store(int32(device.StateDisconnected))
	return p
}

func (p *Peripheral) Address() device.Address {
	return p.address
}

// Properties returns a point-in-time copy of the advertised state.
func (p *Peripheral) Properties() device.Properties {
	p.propsMu.RLock()
	defer p.propsMu.RUnlock()
	return p.props.Clone()
}

// LastSeen returns when the last advertisement report was merged.
func (p *Peripheral) LastSeen() time.Time {
	p.propsMu.RLock()
	defer p.propsMu.RUnlock()
	return p.props.LastSeen
}

func (p *Peripheral) State() device.LinkState {
	return device.LinkState(p.state.Load())
}

func (p *Peripheral) IsConnected() bool {
	return p.State() == device.StateConnected
}

// Evicted reports whether the handle's lifetime ended.
func (p *Peripheral) Evicted() bool {
	return p.evicted.Load()
}

// UpdateProperties merges one advertisement report and emits one event per
// payload category the report carried. It returns the categories present.
//
// discovery_count grows on every call. Services are unioned; the union and
// its ServicesAdvertisement are skipped when every advertised service is
// already known. All other categories replace the stored value.
func (p *Peripheral) UpdateProperties(r advert.Report) device.Categories {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	cats := r.Categories()

	var manufacturerData map[uint16][]byte
	if cats.Has(device.CategoryManufacturerData) {
		manufacturerData = advert.DecodeManufacturerData(r.ManufacturerData)
	}
	var serviceData map[uuid.UUID][]byte
	if cats.Has(device.CategoryServiceData) {
		serviceData = advert.DecodeServiceData(r.DataSections)
	}

	var services []uuid.UUID
	if cats.Has(device.CategoryServices) {
		services = advert.DecodeServices(r.Services)

		p.propsMu.RLock()
		known := p.props.ContainsServices(services)
		p.propsMu.RUnlock()
		if known {
			services = nil
		}
	}

	var allServices []uuid.UUID

	p.propsMu.Lock()
	p.props.DiscoveryCount++
	p.props.LastSeen = time.Now()
	if cats.Has(device.CategoryLocalName) {
		name := r.LocalName
		p.props.LocalName = &name
	}
	if r.AddressType != nil {
		t := *r.AddressType
		p.props.AddressType = &t
	}
	if cats.Has(device.CategoryTxPower) {
		v := *r.TxPowerLevel
		p.props.TxPowerLevel = &v
	}
	if cats.Has(device.CategoryRSSI) {
		v := *r.RSSI
		p.props.RSSI = &v
	}
	if manufacturerData != nil {
		p.props.ManufacturerData = manufacturerData
	}
	if serviceData != nil {
		p.props.ServiceData = serviceData
	}
	if services != nil && p.props.MergeServices(services) {
		allServices = slices.Clone(p.props.Services)
	}
	p.propsMu.Unlock()

	if manufacturerData != nil {
		p.emitter.Emit(device.CentralEvent{
			Kind:             device.ManufacturerDataAdvertisement,
			Address:          p.address,
			ManufacturerData: cloneMap(manufacturerData),
		})
	}
	if serviceData != nil {
		p.emitter.Emit(device.CentralEvent{
			Kind:        device.ServiceDataAdvertisement,
			Address:     p.address,
			ServiceData: cloneMap(serviceData),
		})
	}
	if allServices != nil {
		p.emitter.Emit(device.CentralEvent{
			Kind:     device.ServicesAdvertisement,
			Address:  p.address,
			Services: allServices,
		})
	}

	return cats
}

// Connect opens the GATT link and emits DeviceConnected on success. A failed
// or cancelled attempt leaves the peripheral disconnected and emits nothing.
func (p *Peripheral) Connect(ctx context.Context) error {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()

	if p.evicted.Load() {
		return fmt.Errorf("failed to connect to %s: %w", p.address, device.ErrEvicted)
	}
	if p.link != nil {
		return device.ErrAlreadyConnected
	}

	if _, ok := ctx.Deadline(); !ok && p.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ConnectTimeout)
		defer cancel()
	}

	p.state.Store(int32(device.StateConnecting))
	gen := p.gen.Add(1)

	link, err := p.dialer.Dial(ctx, p.address, func() { p.handleLinkLost(gen) })
	if err == nil && ctx.Err() != nil {
		// dial finished after the caller gave up
		_ = link.Close()
		err = ctx.Err()
	}
	if err != nil {
		p.state.Store(int32(device.StateDisconnected))
		return fmt.Errorf("failed to connect to %s: %w", p.address, err)
	}

	p.link = link
	p.state.Store(int32(device.StateConnected))
	p.logger.WithField("address", p.address).Info("Connected")
	p.emitter.Emit(device.Connected(p.address))
	return nil
}

// Disconnect releases the link, if any, emits DeviceDisconnected and evicts
// the handle. Calling it on an evicted handle does nothing, so a stale handle
// can never evict a peripheral rediscovered under the same address.
func (p *Peripheral) Disconnect(_ context.Context) error {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()

	if p.evicted.Load() {
		return nil
	}

	// invalidates the disconnect callback of the link being closed
	p.gen.Add(1)

	link := p.link
	p.link = nil
	p.state.Store(int32(device.StateDisconnected))

	var err error
	if link != nil {
		err = link.Close()
		p.logger.WithField("address", p.address).Info("Disconnected")
	}

	p.evicted.Store(true)
	p.emitter.Emit(device.Disconnected(p.address))

	if err != nil {
		return fmt.Errorf("failed to disconnect from %s: %w", p.address, NormalizeError(err))
	}
	return nil
}

// handleLinkLost processes a platform reported disconnect of the link opened
// by connection attempt gen.
func (p *Peripheral) handleLinkLost(gen uint64) {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()

	if p.gen.Load() != gen || p.link == nil {
		return
	}

	p.link = nil
	p.state.Store(int32(device.StateDisconnected))
	p.logger.WithField("address", p.address).Warn("Link lost")
	p.evicted.Store(true)
	p.emitter.Emit(device.Disconnected(p.address))
}

// expire emits DeviceLost and evicts the handle when it is disconnected and
// has not advertised within timeout of now. A peripheral busy connecting or
// running a GATT operation is skipped.
func (p *Peripheral) expire(now time.Time, timeout time.Duration) bool {
	if !p.linkMu.TryLock() {
		return false
	}
	defer p.linkMu.Unlock()

	if p.evicted.Load() || p.link != nil || now.Sub(p.LastSeen()) < timeout {
		return false
	}

	p.evicted.Store(true)
	p.emitter.Emit(device.Lost(p.address))
	return true
}

// DiscoverCharacteristics walks the remote GATT profile and caches every
// characteristic found. An entry already cached is never replaced. The whole
// cache is returned in discovery order.
func (p *Peripheral) DiscoverCharacteristics(ctx context.Context) ([]device.Characteristic, error) {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()

	if err := p.checkLinkLocked(); err != nil {
		return nil, err
	}

	services, err := p.link.DiscoverServices(ctx)
	if err != nil {
		return nil, err
	}

	added := 0
	p.charsMu.Lock()
	for _, svc := range services {
		su, err := UUIDFromBLE(svc.UUID)
		if err != nil {
			p.logger.WithField("error", err).Debug("Skipping service with malformed UUID")
			continue
		}
		for _, c := range svc.Characteristics {
			bc, err := NewCharacteristic(su, c)
			if err != nil {
				p.logger.WithField("error", err).Debug("Skipping characteristic with malformed UUID")
				continue
			}
			u := bc.Characteristic().UUID
			if _, exists := p.chars[u]; exists {
				continue
			}
			p.chars[u] = bc
			p.order = append(p.order, u)
			added++
		}
	}
	p.charsMu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"address":  p.address,
		"services": len(services),
		"added":    added,
	}).Debug("Discovered characteristics")

	return p.Characteristics(), nil
}

// Characteristics returns the cached characteristics in discovery order.
func (p *Peripheral) Characteristics() []device.Characteristic {
	p.charsMu.RLock()
	defer p.charsMu.RUnlock()

	out := make([]device.Characteristic, 0, len(p.order))
	for _, u := range p.order {
		out = append(out, p.chars[u].Characteristic())
	}
	return out
}

func (p *Peripheral) Read(ctx context.Context, c device.Characteristic) ([]byte, error) {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()

	bc, err := p.resolveLocked("read", c.UUID)
	if err != nil {
		return nil, err
	}
	data, err := p.link.ReadCharacteristic(ctx, bc.BLEChar)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.UUID, err)
	}
	return data, nil
}

func (p *Peripheral) Write(ctx context.Context, c device.Characteristic, data []byte, wt device.WriteType) error {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()

	bc, err := p.resolveLocked("write", c.UUID)
	if err != nil {
		return err
	}
	if err := p.link.WriteCharacteristic(ctx, bc.BLEChar, data, wt == device.WithoutResponse); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", c.UUID, err)
	}
	return nil
}

// Subscribe enables notifications (or indications when that is all the
// characteristic offers) and forwards every received value to Notifications.
func (p *Peripheral) Subscribe(ctx context.Context, c device.Characteristic) error {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()

	bc, err := p.resolveLocked("subscribe", c.UUID)
	if err != nil {
		return err
	}

	u := bc.info.UUID
	handler := func(data []byte) {
		p.notifications.Publish(device.ValueNotification{UUID: u, Value: slices.Clone(data)})
	}
	if err := p.link.Subscribe(ctx, bc.BLEChar, bc.useIndications(), handler); err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", c.UUID, err)
	}
	return nil
}

func (p *Peripheral) Unsubscribe(ctx context.Context, c device.Characteristic) error {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()

	bc, err := p.resolveLocked("unsubscribe", c.UUID)
	if err != nil {
		return err
	}
	if err := p.link.Unsubscribe(ctx, bc.BLEChar, bc.useIndications()); err != nil {
		return fmt.Errorf("failed to unsubscribe from characteristic %s: %w", c.UUID, err)
	}
	return nil
}

// Notifications attaches a new independent reader of received values.
func (p *Peripheral) Notifications() device.NotificationStream {
	return p.notifications.Subscribe()
}

func (p *Peripheral) checkLinkLocked() error {
	if p.evicted.Load() {
		return device.ErrEvicted
	}
	if p.link == nil {
		return device.ErrNotConnected
	}
	return nil
}

// resolveLocked checks the handle and connectivity first, then the cache.
// linkMu must be held.
func (p *Peripheral) resolveLocked(op string, u uuid.UUID) (*BLECharacteristic, error) {
	if err := p.checkLinkLocked(); err != nil {
		return nil, err
	}

	p.charsMu.RLock()
	bc, ok := p.chars[u]
	p.charsMu.RUnlock()
	if !ok {
		return nil, &device.NotSupportedError{Op: op, UUID: u}
	}
	return bc, nil
}

func (p *Peripheral) String() string {
	p.propsMu.RLock()
	name := p.props.Name()
	p.propsMu.RUnlock()

	if p.IsConnected() {
		return fmt.Sprintf("%s %s connected", p.address, name)
	}
	return fmt.Sprintf("%s %s", p.address, name)
}

func cloneMap[K comparable](m map[K][]byte) map[K][]byte {
	out := make(map[K][]byte, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}
