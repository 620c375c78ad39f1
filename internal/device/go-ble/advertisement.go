package goble

import (
	"encoding/binary"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/blehub/internal/advert"
	"github.com/srg/blehub/internal/device"
)

// txPowerUnavailable is what go-ble reports when no TX power level was advertised.
const txPowerUnavailable = 127

// NewReport converts a go-ble advertisement into the raw report form consumed
// by the aggregator. go-ble has already split the AD structures, so service
// data is re-tagged with the AD type matching its UUID width.
func NewReport(adv ble.Advertisement) (advert.Report, error) {
	addr, err := device.ParseAddress(adv.Addr().String())
	if err != nil {
		return advert.Report{}, fmt.Errorf("unsupported peer address: %w", err)
	}

	report := advert.Report{
		Address:   addr,
		LocalName: adv.LocalName(),
	}

	// only the linux HCI transport reports the address type
	if typed, ok := adv.(interface{ AddressType() uint8 }); ok {
		if t, ok := addressTypeFromHCI(typed.AddressType()); ok {
			report.AddressType = &t
		}
	}

	if raw := adv.ManufacturerData(); len(raw) >= 2 {
		report.ManufacturerData = []advert.ManufacturerData{{
			CompanyID: binary.LittleEndian.Uint16(raw[:2]),
			Data:      raw[2:],
		}}
	}

	for _, sd := range adv.ServiceData() {
		var typ byte
		switch len(sd.UUID) {
		case 2:
			typ = advert.TypeServiceData16
		case 4:
			typ = advert.TypeServiceData32
		case 16:
			typ = advert.TypeServiceData128
		default:
			continue
		}
		data := make([]byte, 0, len(sd.UUID)+len(sd.Data))
		data = append(data, sd.UUID...)
		data = append(data, sd.Data...)
		report.DataSections = append(report.DataSections, advert.DataSection{Type: typ, Data: data})
	}

	if services := adv.Services(); len(services) > 0 {
		report.Services = make([]uuid.UUID, 0, len(services))
		for _, s := range services {
			u, err := UUIDFromBLE(s)
			if err != nil {
				continue
			}
			report.Services = append(report.Services, u)
		}
	}

	if tx := adv.TxPowerLevel(); tx != txPowerUnavailable {
		v := int8(tx)
		report.TxPowerLevel = &v
	}

	rssi := int16(adv.RSSI())
	report.RSSI = &rssi

	return report, nil
}

// addressTypeFromHCI maps the LE advertising report address type. Values 2
// and 3 are the resolved identity forms of public and random addresses.
func addressTypeFromHCI(v uint8) (device.AddressType, bool) {
	switch v {
	case 0x00, 0x02:
		return device.AddressPublic, true
	case 0x01, 0x03:
		return device.AddressRandom, true
	default:
		return 0, false
	}
}
