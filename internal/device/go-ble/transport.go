package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blehub/internal/device"
	"github.com/srg/blehub/internal/groutine"
)

// Scanner delivers raw advertisements. ble.Device implements it.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

// Dialer establishes GATT links. onDisconnect is invoked at most once, from
// another goroutine, when the platform reports that the link went away
// without Close being called.
type Dialer interface {
	Dial(ctx context.Context, addr device.Address, onDisconnect func()) (Link, error)
}

// Link is one live GATT connection. Characteristic handles come from
// DiscoverServices and may be reused on a later link to the same device.
type Link interface {
	DiscoverServices(ctx context.Context) ([]*ble.Service, error)
	ReadCharacteristic(ctx context.Context, c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(ctx context.Context, c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(ctx context.Context, c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(ctx context.Context, c *ble.Characteristic, ind bool) error
	Close() error
}

// ClientDialer is the subset of ble.Device used to open connections.
type ClientDialer interface {
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
}

// BLEDialer opens go-ble client connections.
type BLEDialer struct {
	dev    ClientDialer
	logger *logrus.Logger
}

// NewDialer creates a Dialer on top of a go-ble device.
func NewDialer(dev ClientDialer, logger *logrus.Logger) *BLEDialer {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLEDialer{dev: dev, logger: logger}
}

// Dial connects to addr and starts watching for platform disconnects.
func (d *BLEDialer) Dial(ctx context.Context, addr device.Address, onDisconnect func()) (Link, error) {
	d.logger.WithField("address", addr).Debug("Dialing BLE device...")

	client, err := d.dev.Dial(ctx, ble.NewAddr(addr.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", addr, NormalizeError(err))
	}

	link := &clientLink{client: client, closed: make(chan struct{}), logger: d.logger}

	// CoreBluetooth and the linux HCI client both expose Disconnected()
	if watcher, ok := client.(interface{ Disconnected() <-chan struct{} }); ok && onDisconnect != nil {
		groutine.Go(context.Background(), "ble-link-monitor-"+addr.String(), func(context.Context) {
			select {
			case <-watcher.Disconnected():
				select {
				case <-link.closed:
				default:
					d.logger.WithField("address", addr).Warn("Platform reported disconnection")
					onDisconnect()
				}
			case <-link.closed:
			}
		})
	} else {
		d.logger.WithField("address", addr).Debug("Client does not report disconnections")
	}

	return link, nil
}

type clientLink struct {
	client    ble.Client
	closeOnce sync.Once
	closed    chan struct{}
	logger    *logrus.Logger
}

func (l *clientLink) DiscoverServices(ctx context.Context) ([]*ble.Service, error) {
	profile, err := callWithContext(ctx, func() (*ble.Profile, error) {
		return l.client.DiscoverProfile(true)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}
	return profile.Services, nil
}

func (l *clientLink) ReadCharacteristic(ctx context.Context, c *ble.Characteristic) ([]byte, error) {
	data, err := callWithContext(ctx, func() ([]byte, error) {
		return l.client.ReadCharacteristic(c)
	})
	return data, NormalizeError(err)
}

func (l *clientLink) WriteCharacteristic(ctx context.Context, c *ble.Characteristic, value []byte, noRsp bool) error {
	_, err := callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.WriteCharacteristic(c, value, noRsp)
	})
	return NormalizeError(err)
}

func (l *clientLink) Subscribe(ctx context.Context, c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	_, err := callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.Subscribe(c, ind, h)
	})
	return NormalizeError(err)
}

func (l *clientLink) Unsubscribe(ctx context.Context, c *ble.Characteristic, ind bool) error {
	_, err := callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.Unsubscribe(c, ind)
	})
	return NormalizeError(err)
}

// Close cancels the connection. The disconnect monitor is stopped first so a
// locally initiated close is never reported as a platform disconnect.
func (l *clientLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.client.CancelConnection()
		if err != nil {
			l.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		}
	})
	return err
}

// callWithContext runs a blocking go-ble call and abandons it when ctx is done.
// go-ble operations do not take a context.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		v, err := fn()
		resultCh <- result{v: v, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
