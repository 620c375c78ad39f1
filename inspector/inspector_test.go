package inspector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blehub/inspector"
	"github.com/srg/blehub/internal/device"
	goble "github.com/srg/blehub/internal/device/go-ble"
	"github.com/srg/blehub/internal/testutils"
	"github.com/srg/blehub/internal/testutils/blefake"
	"github.com/stretchr/testify/suite"
)

type InspectorTestSuite struct {
	suite.Suite

	link    *blefake.Link
	dialer  *blefake.Dialer
	adapter *goble.Adapter
	addr    device.Address
	phases  []string
}

func TestInspectorTestSuite(t *testing.T) {
	suite.Run(t, new(InspectorTestSuite))
}

func (s *InspectorTestSuite) SetupTest() {
	s.link = blefake.NewLink(blefake.SensorProfile())
	s.link.Values["2a29"] = []byte("Acme")
	s.dialer = &blefake.Dialer{Link: s.link}
	s.adapter = goble.NewAdapter(&blefake.Scanner{}, s.dialer, goble.AdapterOptions{
		EventBuffer: 8,
		Peripheral:  goble.Options{NotificationBuffer: 4, ConnectTimeout: time.Second},
	}, testutils.NewTestLogger())
	s.addr = device.MustParseAddress("AA:BB:CC:DD:EE:FF")
	s.phases = nil
}

func (s *InspectorTestSuite) progress(phase string) {
	s.phases = append(s.phases, phase)
}

func (s *InspectorTestSuite) TestCallbackRunsOnConnectedPeripheral() {
	value, err := inspector.InspectDevice(context.Background(), s.adapter, s.addr, testutils.NewTestLogger(), s.progress,
		func(p *goble.Peripheral, chars []device.Characteristic) ([]byte, error) {
			s.True(p.IsConnected())
			s.Len(chars, 3)
			return p.Read(context.Background(), chars[2])
		})

	s.Require().NoError(err)
	s.Equal([]byte("Acme"), value)
	s.Equal([]string{"Connecting", "Connected", "Discovering", "Processing results"}, s.phases)
	s.True(s.link.Closed(), "peripheral is disconnected afterwards")
	s.False(s.adapter.HasPeripheral(s.addr), "disconnect evicts the peripheral")
}

func (s *InspectorTestSuite) TestCallbackErrorStillDisconnects() {
	boom := errors.New("boom")

	_, err := inspector.InspectDevice(context.Background(), s.adapter, s.addr, nil, nil,
		func(*goble.Peripheral, []device.Characteristic) (struct{}, error) {
			return struct{}{}, boom
		})

	s.ErrorIs(err, boom)
	s.True(s.link.Closed())
}

func (s *InspectorTestSuite) TestConnectFailure() {
	s.dialer.Err = errors.New("connection refused")
	called := false

	_, err := inspector.InspectDevice(context.Background(), s.adapter, s.addr, nil, s.progress,
		func(*goble.Peripheral, []device.Characteristic) (int, error) {
			called = true
			return 0, nil
		})

	s.ErrorContains(err, "connection refused")
	s.False(called)
	s.Equal([]string{"Connecting", "Failed"}, s.phases)
}
