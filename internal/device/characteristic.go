package device

import (
	"strings"

	"github.com/google/uuid"
)

// CharProperties is the declared capability bitmask of a characteristic.
// Bit values follow the GATT characteristic properties field.
type CharProperties uint8

const (
	CharBroadcast CharProperties = 1 << iota
	CharRead
	CharWriteWithoutResponse
	CharWrite
	CharNotify
	CharIndicate
	CharAuthenticatedSignedWrites
	CharExtendedProperties
)

var charPropertyNames = []struct {
	flag CharProperties
	name string
}{
	{CharBroadcast, "broadcast"},
	{CharRead, "read"},
	{CharWriteWithoutResponse, "write-without-response"},
	{CharWrite, "write"},
	{CharNotify, "notify"},
	{CharIndicate, "indicate"},
	{CharAuthenticatedSignedWrites, "authenticated-signed-writes"},
	{CharExtendedProperties, "extended-properties"},
}

// Has reports whether every flag in f is set.
func (p CharProperties) Has(f CharProperties) bool {
	return p&f == f
}

func (p CharProperties) String() string {
	var names []string
	for _, n := range charPropertyNames {
		if p.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// Characteristic identifies a discovered characteristic. It is immutable once
// discovered.
type Characteristic struct {
	UUID        uuid.UUID      `json:"uuid"`
	ServiceUUID uuid.UUID      `json:"service_uuid"`
	Properties  CharProperties `json:"properties"`
}

// WriteType selects between acknowledged and unacknowledged writes.
type WriteType int

const (
	WithResponse WriteType = iota
	WithoutResponse
)

// ValueNotification is a value pushed by a subscribed characteristic.
type ValueNotification struct {
	UUID  uuid.UUID
	Value []byte
}
