package goble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/blehub/internal/central"
	"github.com/srg/blehub/internal/device"
	"github.com/srg/blehub/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type AdapterTestSuite struct {
	suite.Suite

	scanner *MockScanner
	dialer  *MockDialer
	adapter *Adapter
	events  *central.EventQueue
}

func TestAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(AdapterTestSuite))
}

func (s *AdapterTestSuite) SetupTest() {
	s.scanner = &MockScanner{}
	s.dialer = &MockDialer{}
	s.adapter = NewAdapter(s.scanner, s.dialer, AdapterOptions{
		EventBuffer:     16,
		DeviceTimeout:   time.Minute,
		AllowDuplicates: true,
		Peripheral:      Options{NotificationBuffer: 4, ConnectTimeout: time.Second},
	}, testutils.NewTestLogger())

	events, ok := s.adapter.EventReceiver()
	s.Require().True(ok)
	s.events = events
}

func (s *AdapterTestSuite) drain() []device.CentralEvent {
	var out []device.CentralEvent
	for {
		ev, ok := s.events.TryRecv()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func kinds(events []device.CentralEvent) []device.EventKind {
	var out []device.EventKind
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func (s *AdapterTestSuite) TestFirstReportDiscovers() {
	s.adapter.HandleReport(testutils.NewReportBuilder(testAddress).
		WithName("HR").
		WithManufacturerData(0x004C, []byte{1}).
		Build())

	addr := device.MustParseAddress(testAddress)
	s.True(s.adapter.HasPeripheral(addr))
	s.Equal([]device.EventKind{device.DeviceDiscovered, device.ManufacturerDataAdvertisement}, kinds(s.drain()))
}

func (s *AdapterTestSuite) TestLaterReportsUpdate() {
	s.adapter.HandleReport(testutils.NewReportBuilder(testAddress).WithName("HR").Build())
	s.drain()

	s.adapter.HandleReport(testutils.NewReportBuilder(testAddress).WithRSSI(-50).WithServices("180D").Build())

	events := s.drain()
	s.Equal([]device.EventKind{device.ServicesAdvertisement, device.DeviceUpdated}, kinds(events))
	s.Equal(device.CategoryRSSI|device.CategoryServices, events[1].Categories)

	p, ok := s.adapter.Peripheral(device.MustParseAddress(testAddress))
	s.Require().True(ok)
	s.Equal(uint32(2), p.Properties().DiscoveryCount)
}

func (s *AdapterTestSuite) TestHandleAdvertisement() {
	s.adapter.HandleAdvertisement(testutils.NewAdvertisementBuilder().
		WithAddress(testAddress).
		WithName("HR").
		Build())
	s.adapter.HandleAdvertisement(testutils.NewAdvertisementBuilder().
		WithAddress("not-an-address").
		Build())

	s.Len(s.adapter.Peripherals(), 1)
	s.Equal([]device.EventKind{device.DeviceDiscovered}, kinds(s.drain()))
}

func (s *AdapterTestSuite) TestConcurrentReportsRegisterOnce() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.adapter.HandleReport(testutils.NewReportBuilder(testAddress).WithRSSI(-40).Build())
			}
		}()
	}
	wg.Wait()

	s.Len(s.adapter.Peripherals(), 1)
	discovered := 0
	for _, ev := range s.drain() {
		if ev.Kind == device.DeviceDiscovered {
			discovered++
		}
	}
	s.Equal(1, discovered)

	p, _ := s.adapter.Peripheral(device.MustParseAddress(testAddress))
	s.Equal(uint32(400), p.Properties().DiscoveryCount)
}

func (s *AdapterTestSuite) TestDisconnectEvictsAndRediscoveryReinserts() {
	addr := device.MustParseAddress(testAddress)
	s.adapter.HandleReport(testutils.NewReportBuilder(testAddress).WithName("HR").Build())
	p, ok := s.adapter.Peripheral(addr)
	s.Require().True(ok)

	s.Require().NoError(p.Disconnect(context.Background()))
	s.False(s.adapter.HasPeripheral(addr))

	// the evicted handle keeps working without re-registering itself
	p.UpdateProperties(testutils.NewReportBuilder(testAddress).WithRSSI(-30).Build())
	s.False(s.adapter.HasPeripheral(addr))

	s.adapter.HandleReport(testutils.NewReportBuilder(testAddress).Build())
	again, ok := s.adapter.Peripheral(addr)
	s.Require().True(ok)
	s.NotSame(p, again)
	s.Equal(uint32(1), again.Properties().DiscoveryCount)
}

func (s *AdapterTestSuite) TestPeripheralForConnectsByAddress() {
	addr := device.MustParseAddress(testAddress)

	p := s.adapter.PeripheralFor(addr)
	s.Same(p, s.adapter.PeripheralFor(addr))
	s.True(s.adapter.HasPeripheral(addr))
	s.Empty(s.drain(), "connect-by-address is not a discovery")

	link := &MockLink{}
	s.dialer.On("Dial", mock.Anything, addr).Return(link, nil).Once()
	s.Require().NoError(p.Connect(context.Background()))
	s.Equal([]device.EventKind{device.DeviceConnected}, kinds(s.drain()))
}

func (s *AdapterTestSuite) TestEvictedHandleCannotReconnect() {
	addr := device.MustParseAddress(testAddress)
	p := s.adapter.PeripheralFor(addr)

	link := &MockLink{}
	link.On("Close").Return(nil).Once()
	s.dialer.On("Dial", mock.Anything, addr).Return(link, nil).Once()
	s.Require().NoError(p.Connect(context.Background()))
	s.Require().NoError(p.Disconnect(context.Background()))
	s.False(s.adapter.HasPeripheral(addr))

	err := p.Connect(context.Background())
	s.ErrorIs(err, device.ErrEvicted)
	s.False(p.IsConnected())
	s.False(s.adapter.HasPeripheral(addr))

	s.adapter.HandleReport(testutils.NewReportBuilder(testAddress).WithName("HR").Build())
	fresh, ok := s.adapter.Peripheral(addr)
	s.Require().True(ok)
	s.NotSame(p, fresh)
	s.False(fresh.Evicted())

	// the stale handle must not evict the rediscovered peripheral
	s.Require().NoError(p.Disconnect(context.Background()))
	s.True(s.adapter.HasPeripheral(addr))

	s.Equal([]device.EventKind{
		device.DeviceConnected,
		device.DeviceDisconnected,
		device.DeviceDiscovered,
	}, kinds(s.drain()))
	s.dialer.AssertNumberOfCalls(s.T(), "Dial", 1)
}

func (s *AdapterTestSuite) TestOnConnectionState() {
	addr := device.MustParseAddress(testAddress)
	p := s.adapter.PeripheralFor(addr)
	s.dialer.On("Dial", mock.Anything, addr).Return(&MockLink{}, nil).Once()
	s.Require().NoError(p.Connect(context.Background()))
	s.drain()

	s.adapter.OnConnectionState(addr, true)
	s.True(p.IsConnected())

	s.adapter.OnConnectionState(addr, false)
	s.False(p.IsConnected())
	s.False(s.adapter.HasPeripheral(addr))
	s.Equal([]device.EventKind{device.DeviceDisconnected}, kinds(s.drain()))

	// unknown addresses are ignored
	s.adapter.OnConnectionState(device.MustParseAddress("11:22:33:44:55:66"), false)
	s.Empty(s.drain())
}

func (s *AdapterTestSuite) TestExpireStale() {
	stale := device.MustParseAddress("11:22:33:44:55:66")
	connected := device.MustParseAddress(testAddress)

	s.adapter.HandleReport(testutils.NewReportBuilder(stale.String()).Build())
	s.adapter.HandleReport(testutils.NewReportBuilder(connected.String()).Build())
	s.dialer.On("Dial", mock.Anything, connected).Return(&MockLink{}, nil).Once()
	p, _ := s.adapter.Peripheral(connected)
	s.Require().NoError(p.Connect(context.Background()))
	s.drain()

	s.Equal(0, s.adapter.ExpireStale(time.Now()))
	s.Equal(1, s.adapter.ExpireStale(time.Now().Add(2*time.Minute)))

	s.False(s.adapter.HasPeripheral(stale))
	s.True(s.adapter.HasPeripheral(connected), "connected peripherals never expire")

	events := s.drain()
	s.Require().Len(events, 1)
	s.Equal(device.Lost(stale), events[0])
}

func (s *AdapterTestSuite) TestScanProcessesAdvertisementsUntilCancelled() {
	s.scanner.Advertisements = []ble.Advertisement{
		testutils.NewAdvertisementBuilder().WithAddress(testAddress).Build(),
		testutils.NewAdvertisementBuilder().WithAddress("11:22:33:44:55:66").Build(),
	}
	s.scanner.On("Scan", mock.Anything, true).Return(nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s.NoError(s.adapter.Scan(ctx))
	s.Len(s.adapter.Peripherals(), 2)
	s.scanner.AssertExpectations(s.T())
}

func (s *AdapterTestSuite) TestScanFailure() {
	s.scanner.On("Scan", mock.Anything, true).Return(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")).Once()

	err := s.adapter.Scan(context.Background())

	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *AdapterTestSuite) TestEventReceiverIsSingleUse() {
	_, ok := s.adapter.EventReceiver()
	s.False(ok)
}

func (s *AdapterTestSuite) TestEventStreamSeesSameEvents() {
	stream := s.adapter.EventStream()
	defer stream.Close()

	s.adapter.HandleReport(testutils.NewReportBuilder(testAddress).Build())

	select {
	case ev := <-stream.C():
		s.Equal(device.Discovered(device.MustParseAddress(testAddress)), ev)
	case <-time.After(time.Second):
		s.Fail("no event on stream")
	}
}
