package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blehub/internal/device"
)

var propertyMapping = []struct {
	ble ble.Property
	dev device.CharProperties
}{
	{ble.CharBroadcast, device.CharBroadcast},
	{ble.CharRead, device.CharRead},
	{ble.CharWriteNR, device.CharWriteWithoutResponse},
	{ble.CharWrite, device.CharWrite},
	{ble.CharNotify, device.CharNotify},
	{ble.CharIndicate, device.CharIndicate},
	{ble.CharSignedWrite, device.CharAuthenticatedSignedWrites},
	{ble.CharExtended, device.CharExtendedProperties},
}

// NewProperties converts go-ble property bit flags.
func NewProperties(p ble.Property) device.CharProperties {
	var props device.CharProperties
	for _, m := range propertyMapping {
		if p&m.ble != 0 {
			props |= m.dev
		}
	}
	return props
}
