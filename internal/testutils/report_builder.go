package testutils

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/srg/blehub/internal/advert"
	"github.com/srg/blehub/internal/device"
)

// ReportBuilder builds advertisement reports for tests. Only the categories
// that were explicitly set end up in the report.
type ReportBuilder struct {
	report advert.Report
}

// NewReportBuilder starts a report for addr ("AA:BB:CC:DD:EE:FF").
func NewReportBuilder(addr string) *ReportBuilder {
	return &ReportBuilder{report: advert.Report{Address: device.MustParseAddress(addr)}}
}

func (b *ReportBuilder) WithName(name string) *ReportBuilder {
	b.report.LocalName = name
	return b
}

func (b *ReportBuilder) WithAddressType(t device.AddressType) *ReportBuilder {
	b.report.AddressType = &t
	return b
}

func (b *ReportBuilder) WithRSSI(rssi int16) *ReportBuilder {
	b.report.RSSI = &rssi
	return b
}

func (b *ReportBuilder) WithTxPower(power int8) *ReportBuilder {
	b.report.TxPowerLevel = &power
	return b
}

// WithServices adds service UUIDs in short ("180D") or full form.
func (b *ReportBuilder) WithServices(uuids ...string) *ReportBuilder {
	if b.report.Services == nil {
		b.report.Services = []uuid.UUID{}
	}
	for _, s := range uuids {
		b.report.Services = append(b.report.Services, device.MustParseUUID(s))
	}
	return b
}

func (b *ReportBuilder) WithManufacturerData(companyID uint16, data []byte) *ReportBuilder {
	if b.report.ManufacturerData == nil {
		b.report.ManufacturerData = []advert.ManufacturerData{}
	}
	b.report.ManufacturerData = append(b.report.ManufacturerData, advert.ManufacturerData{CompanyID: companyID, Data: data})
	return b
}

// WithServiceData16 adds a 16-bit UUID service data section.
func (b *ReportBuilder) WithServiceData16(short uint16, payload []byte) *ReportBuilder {
	data := binary.LittleEndian.AppendUint16(nil, short)
	return b.WithSection(advert.TypeServiceData16, append(data, payload...))
}

// WithSection adds a raw data section.
func (b *ReportBuilder) WithSection(typ byte, data []byte) *ReportBuilder {
	b.report.DataSections = append(b.report.DataSections, advert.DataSection{Type: typ, Data: data})
	return b
}

// FromJSON fills the builder from a JSON document with format support.
// Panics on invalid JSON as this is intended for test data setup.
//
//	{"name": "HR", "rssi": -40, "tx_power": 4, "services": ["180D"],
//	 "manufacturer_data": {"76": [1, 2]}, "service_data": {"180F": [100]}}
func (b *ReportBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *ReportBuilder {
	var data struct {
		Name             *string          `json:"name"`
		RSSI             *int16           `json:"rssi"`
		TxPower          *int8            `json:"tx_power"`
		Services         []string         `json:"services"`
		ManufacturerData map[uint16][]int `json:"manufacturer_data"`
		ServiceData      map[string][]int `json:"service_data"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}

	if data.Name != nil {
		b.WithName(*data.Name)
	}
	if data.RSSI != nil {
		b.WithRSSI(*data.RSSI)
	}
	if data.TxPower != nil {
		b.WithTxPower(*data.TxPower)
	}
	if data.Services != nil {
		b.WithServices(data.Services...)
	}
	for id, payload := range data.ManufacturerData {
		b.WithManufacturerData(id, toBytes(payload))
	}
	for s, payload := range data.ServiceData {
		u := device.MustParseUUID(s)
		short, ok := device.ShortUUID(u)
		if !ok || short > 0xFFFF {
			panic(fmt.Sprintf("FromJSON: service data UUID %s has no 16-bit form", s))
		}
		b.WithServiceData16(uint16(short), toBytes(payload))
	}
	return b
}

func (b *ReportBuilder) Build() advert.Report {
	return b.report
}

func toBytes(v []int) []byte {
	out := make([]byte, len(v))
	for i, n := range v {
		out[i] = byte(n)
	}
	return out
}
