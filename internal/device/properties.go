package device

import (
	"bytes"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Properties is the accumulated advertised state of a peripheral.
//
// Services only ever grow. Every other field reflects the most recent
// advertisement that carried it.
type Properties struct {
	Address          Address              `json:"address"`
	AddressType      *AddressType         `json:"address_type,omitempty"`
	LocalName        *string              `json:"local_name,omitempty"`
	TxPowerLevel     *int8                `json:"tx_power_level,omitempty"`
	RSSI             *int16               `json:"rssi,omitempty"`
	ManufacturerData map[uint16][]byte    `json:"manufacturer_data"`
	ServiceData      map[uuid.UUID][]byte `json:"service_data"`
	Services         []uuid.UUID          `json:"services"`
	DiscoveryCount   uint32               `json:"discovery_count"`
	LastSeen         time.Time            `json:"-"`
}

// Name returns the local name or "(unknown)".
func (p Properties) Name() string {
	if p.LocalName == nil {
		return "(unknown)"
	}
	return *p.LocalName
}

// HasService reports whether u was ever advertised.
func (p Properties) HasService(u uuid.UUID) bool {
	_, found := slices.BinarySearchFunc(p.Services, u, compareUUID)
	return found
}

// Clone returns a deep copy safe to hand out to other goroutines.
func (p *Properties) Clone() Properties {
	c := *p
	if p.AddressType != nil {
		v := *p.AddressType
		c.AddressType = &v
	}
	if p.LocalName != nil {
		v := *p.LocalName
		c.LocalName = &v
	}
	if p.TxPowerLevel != nil {
		v := *p.TxPowerLevel
		c.TxPowerLevel = &v
	}
	if p.RSSI != nil {
		v := *p.RSSI
		c.RSSI = &v
	}
	c.ManufacturerData = cloneBytesMap(p.ManufacturerData)
	c.ServiceData = cloneBytesMap(p.ServiceData)
	c.Services = slices.Clone(p.Services)
	return c
}

// MergeServices unions incoming into the sorted service list and reports
// whether anything was added.
func (p *Properties) MergeServices(incoming []uuid.UUID) bool {
	added := false
	for _, u := range incoming {
		i, found := slices.BinarySearchFunc(p.Services, u, compareUUID)
		if found {
			continue
		}
		p.Services = slices.Insert(p.Services, i, u)
		added = true
	}
	return added
}

// ContainsServices reports whether every UUID in incoming is already known.
func (p Properties) ContainsServices(incoming []uuid.UUID) bool {
	for _, u := range incoming {
		if !p.HasService(u) {
			return false
		}
	}
	return true
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

func cloneBytesMap[K comparable](m map[K][]byte) map[K][]byte {
	if m == nil {
		return nil
	}
	c := maps.Clone(m)
	for k, v := range c {
		c[k] = slices.Clone(v)
	}
	return c
}
