// Package advert decodes the raw fields of an advertisement report into typed
// values. Every function is pure.
package advert

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/srg/blehub/internal/device"
)

// AD types of the service data sections this package understands.
const (
	TypeServiceData16  byte = 0x16
	TypeServiceData32  byte = 0x20
	TypeServiceData128 byte = 0x21
)

// ManufacturerData is one manufacturer specific data entry.
type ManufacturerData struct {
	CompanyID uint16
	Data      []byte
}

// DataSection is one raw advertising data section tagged with its AD type.
type DataSection struct {
	Type byte
	Data []byte
}

// Report is one advertisement report as delivered by the transport. A nil
// slice or pointer means the report did not carry that category; an empty
// non-nil slice means it carried an empty value.
type Report struct {
	Address          device.Address
	AddressType      *device.AddressType
	LocalName        string
	ManufacturerData []ManufacturerData
	DataSections     []DataSection
	Services         []uuid.UUID
	TxPowerLevel     *int8
	RSSI             *int16
}

// DecodeManufacturerData maps entries by company id, one-to-one.
// A later entry for the same company wins.
func DecodeManufacturerData(entries []ManufacturerData) map[uint16][]byte {
	out := make(map[uint16][]byte, len(entries))
	for _, e := range entries {
		out[e.CompanyID] = slices.Clone(e.Data)
	}
	return out
}

// HasServiceData reports whether any section is a service data section.
func HasServiceData(sections []DataSection) bool {
	for _, s := range sections {
		if uuidWidth(s.Type) > 0 {
			return true
		}
	}
	return false
}

// DecodeServiceData splits every service data section into its UUID prefix and
// payload. Sections of other types are skipped. A section shorter than its
// declared UUID prefix violates the transport contract and panics.
func DecodeServiceData(sections []DataSection) map[uuid.UUID][]byte {
	out := make(map[uuid.UUID][]byte)
	for _, s := range sections {
		u, payload, ok := DecodeServiceDataSection(s)
		if !ok {
			continue
		}
		out[u] = payload
	}
	return out
}

// DecodeServiceDataSection decodes a single section. ok is false for sections
// that are not service data.
func DecodeServiceDataSection(s DataSection) (u uuid.UUID, payload []byte, ok bool) {
	width := uuidWidth(s.Type)
	if width == 0 {
		return uuid.Nil, nil, false
	}
	if len(s.Data) < width {
		panic(fmt.Sprintf("advert: service data section type %#02x has %d bytes, need at least %d", s.Type, len(s.Data), width))
	}

	prefix, rest := s.Data[:width], s.Data[width:]
	switch width {
	case 2:
		u = device.UUIDFrom16(binary.LittleEndian.Uint16(prefix))
	case 4:
		u = device.UUIDFrom32(binary.LittleEndian.Uint32(prefix))
	default:
		u, _ = device.UUIDFromLittleEndian(prefix)
	}
	return u, slices.Clone(rest), true
}

// DecodeServices passes already normalized 128-bit UUIDs through.
func DecodeServices(services []uuid.UUID) []uuid.UUID {
	return slices.Clone(services)
}

// Categories returns the property categories the report carries.
func (r *Report) Categories() device.Categories {
	var c device.Categories
	if r.LocalName != "" {
		c |= device.CategoryLocalName
	}
	if r.ManufacturerData != nil {
		c |= device.CategoryManufacturerData
	}
	if HasServiceData(r.DataSections) {
		c |= device.CategoryServiceData
	}
	if r.Services != nil {
		c |= device.CategoryServices
	}
	if r.TxPowerLevel != nil {
		c |= device.CategoryTxPower
	}
	if r.RSSI != nil {
		c |= device.CategoryRSSI
	}
	return c
}

func uuidWidth(t byte) int {
	switch t {
	case TypeServiceData16:
		return 2
	case TypeServiceData32:
		return 4
	case TypeServiceData128:
		return 16
	default:
		return 0
	}
}
