package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EventKind tags a CentralEvent.
type EventKind int

const (
	DeviceDiscovered EventKind = iota
	DeviceUpdated
	DeviceConnected
	DeviceDisconnected
	DeviceLost
	ManufacturerDataAdvertisement
	ServiceDataAdvertisement
	ServicesAdvertisement
)

var eventKindNames = map[EventKind]string{
	DeviceDiscovered:              "DeviceDiscovered",
	DeviceUpdated:                 "DeviceUpdated",
	DeviceConnected:               "DeviceConnected",
	DeviceDisconnected:            "DeviceDisconnected",
	DeviceLost:                    "DeviceLost",
	ManufacturerDataAdvertisement: "ManufacturerDataAdvertisement",
	ServiceDataAdvertisement:      "ServiceDataAdvertisement",
	ServicesAdvertisement:         "ServicesAdvertisement",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Categories is a bitmask of advertised property categories.
type Categories uint8

const (
	CategoryLocalName Categories = 1 << iota
	CategoryManufacturerData
	CategoryServiceData
	CategoryServices
	CategoryTxPower
	CategoryRSSI
)

var categoryNames = []struct {
	c    Categories
	name string
}{
	{CategoryLocalName, "local_name"},
	{CategoryManufacturerData, "manufacturer_data"},
	{CategoryServiceData, "service_data"},
	{CategoryServices, "services"},
	{CategoryTxPower, "tx_power"},
	{CategoryRSSI, "rssi"},
}

func (c Categories) Has(o Categories) bool {
	return c&o == o
}

func (c Categories) String() string {
	var names []string
	for _, n := range categoryNames {
		if c.Has(n.c) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// CentralEvent is an immutable registry level notification. Payload fields
// are only populated for the kinds that carry them; receivers must not mutate
// the maps or slices.
type CentralEvent struct {
	Kind             EventKind
	Address          Address
	Categories       Categories           // DeviceUpdated
	ManufacturerData map[uint16][]byte    // ManufacturerDataAdvertisement
	ServiceData      map[uuid.UUID][]byte // ServiceDataAdvertisement
	Services         []uuid.UUID          // ServicesAdvertisement
}

func (e CentralEvent) String() string {
	switch e.Kind {
	case DeviceUpdated:
		return fmt.Sprintf("%s(%s, %s)", e.Kind, e.Address, e.Categories)
	case ManufacturerDataAdvertisement:
		return fmt.Sprintf("%s(%s, %d companies)", e.Kind, e.Address, len(e.ManufacturerData))
	case ServiceDataAdvertisement:
		return fmt.Sprintf("%s(%s, %d services)", e.Kind, e.Address, len(e.ServiceData))
	case ServicesAdvertisement:
		return fmt.Sprintf("%s(%s, %d services)", e.Kind, e.Address, len(e.Services))
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Address)
	}
}

func Discovered(addr Address) CentralEvent   { return CentralEvent{Kind: DeviceDiscovered, Address: addr} }
func Connected(addr Address) CentralEvent    { return CentralEvent{Kind: DeviceConnected, Address: addr} }
func Disconnected(addr Address) CentralEvent { return CentralEvent{Kind: DeviceDisconnected, Address: addr} }
func Lost(addr Address) CentralEvent         { return CentralEvent{Kind: DeviceLost, Address: addr} }

func Updated(addr Address, c Categories) CentralEvent {
	return CentralEvent{Kind: DeviceUpdated, Address: addr, Categories: c}
}
