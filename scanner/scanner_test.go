package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
	"github.com/srg/blehub/internal/testutils"
	"github.com/srg/blehub/internal/testutils/blefake"
	"github.com/srg/blehub/scanner"
	"github.com/stretchr/testify/require"
	suitelib "github.com/stretchr/testify/suite"
)

const (
	addr1 = "AA:BB:CC:DD:EE:FF"
	addr2 = "11:22:33:44:55:66"
	addr3 = "99:88:77:66:55:44"
)

type ScannerTestSuite struct {
	suitelib.Suite

	ble *blefake.Scanner
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.ble = &blefake.Scanner{Advertisements: []blelib.Advertisement{
		testutils.NewAdvertisementBuilder().WithAddress(addr1).WithName("Test Device 1").WithRSSI(-45).Build(),
		testutils.NewAdvertisementBuilder().WithAddress(addr2).WithName("Test Device 2").WithServices("180F").Build(),
		testutils.NewAdvertisementBuilder().WithAddress(addr1).WithServices("180D", "1800").Build(),
		testutils.NewAdvertisementBuilder().WithAddress(addr3).WithName("Test Device 3").WithServices("1802").Build(),
	}}
}

type recorded struct {
	kind device.EventKind
	addr string
}

func (suite *ScannerTestSuite) scan(opts *scanner.ScanOptions) ([]recorded, []device.Properties, []string) {
	adapter := goble.NewAdapter(suite.ble, &blefake.Dialer{}, goble.AdapterOptions{EventBuffer: 8}, testutils.NewTestLogger())
	s := scanner.NewScanner(adapter, opts, testutils.NewTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var events []recorded
	var phases []string
	props, err := s.Scan(ctx,
		func(ev device.CentralEvent) { events = append(events, recorded{ev.Kind, ev.Address.String()}) },
		func(phase string) { phases = append(phases, phase) })
	suite.Require().NoError(err)
	return events, props, phases
}

func names(props []device.Properties) []string {
	out := make([]string, 0, len(props))
	for _, p := range props {
		out = append(out, p.Name())
	}
	return out
}

func (suite *ScannerTestSuite) TestNoFiltersReportsEverything() {
	events, props, phases := suite.scan(nil)

	suite.Equal([]recorded{
		{device.DeviceDiscovered, addr1},
		{device.DeviceDiscovered, addr2},
		{device.ServicesAdvertisement, addr2},
		{device.ServicesAdvertisement, addr1},
		{device.DeviceUpdated, addr1},
		{device.DeviceDiscovered, addr3},
		{device.ServicesAdvertisement, addr3},
	}, events)
	suite.Equal([]string{"Test Device 1", "Test Device 2", "Test Device 3"}, names(props))
	suite.Equal([]string{"Scanning", "Processing results"}, phases)
}

func (suite *ScannerTestSuite) TestBlockList() {
	opts, err := scanner.NewScanOptions(nil, nil, []string{addr2})
	suite.Require().NoError(err)

	events, props, _ := suite.scan(opts)

	for _, ev := range events {
		suite.NotEqual(addr2, ev.addr)
	}
	suite.Equal([]string{"Test Device 1", "Test Device 3"}, names(props))
}

func (suite *ScannerTestSuite) TestAllowList() {
	opts, err := scanner.NewScanOptions(nil, []string{addr3, addr2}, []string{addr2})
	suite.Require().NoError(err)

	events, props, _ := suite.scan(opts)

	suite.Equal([]recorded{
		{device.DeviceDiscovered, addr3},
		{device.ServicesAdvertisement, addr3},
	}, events)
	suite.Equal([]string{"Test Device 3"}, names(props), "block list wins over allow list")
}

func (suite *ScannerTestSuite) TestServiceFilterReleasesHeldEventsInOrder() {
	opts, err := scanner.NewScanOptions([]string{"180D", "1802"}, nil, nil)
	suite.Require().NoError(err)

	events, props, _ := suite.scan(opts)

	suite.Equal([]recorded{
		{device.DeviceDiscovered, addr1},
		{device.ServicesAdvertisement, addr1},
		{device.DeviceUpdated, addr1},
		{device.DeviceDiscovered, addr3},
		{device.ServicesAdvertisement, addr3},
	}, events)
	suite.Equal([]string{"Test Device 1", "Test Device 3"}, names(props))
}

func (suite *ScannerTestSuite) TestScanFailure() {
	suite.ble.Err = errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	adapter := goble.NewAdapter(suite.ble, &blefake.Dialer{}, goble.AdapterOptions{EventBuffer: 8}, testutils.NewTestLogger())

	_, err := scanner.NewScanner(adapter, nil, nil).Scan(context.Background(), nil, nil)

	suite.ErrorIs(err, device.ErrBluetoothOff)
}

func (suite *ScannerTestSuite) TestScanIsSingleUse() {
	adapter := goble.NewAdapter(suite.ble, &blefake.Dialer{}, goble.AdapterOptions{EventBuffer: 8}, testutils.NewTestLogger())
	s := scanner.NewScanner(adapter, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scan(ctx, nil, nil)
	suite.Require().NoError(err)

	_, err = s.Scan(ctx, nil, nil)
	suite.Error(err)
}

func TestNewScanOptions(t *testing.T) {
	tests := []struct {
		name                   string
		services, allow, block []string
		wantErr                string
	}{
		{name: "empty"},
		{name: "valid", services: []string{"180d", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"}, allow: []string{addr1}, block: []string{addr2}},
		{name: "bad service", services: []string{"zz"}, wantErr: "invalid service UUID"},
		{name: "bad allow", allow: []string{"AA:BB"}, wantErr: "invalid address"},
		{name: "bad block", block: []string{"nope"}, wantErr: "invalid address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := scanner.NewScanOptions(tt.services, tt.allow, tt.block)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, opts.ServiceUUIDs, len(tt.services))
		})
	}
}

func TestScanOptionsMatch(t *testing.T) {
	opts, err := scanner.NewScanOptions([]string{"180D"}, nil, []string{addr2})
	require.NoError(t, err)

	hr := device.Properties{Address: device.MustParseAddress(addr1)}
	hr.MergeServices([]uuid.UUID{device.UUIDFrom16(0x180D)})
	blocked := device.Properties{Address: device.MustParseAddress(addr2)}
	blocked.MergeServices([]uuid.UUID{device.UUIDFrom16(0x180D)})
	other := device.Properties{Address: device.MustParseAddress(addr3)}

	require.True(t, opts.Match(hr))
	require.False(t, opts.Match(blocked))
	require.False(t, opts.Match(other))
}
