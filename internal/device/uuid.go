package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BaseUUID is the Bluetooth SIG base UUID that 16 and 32-bit UUIDs expand into.
var BaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// UUIDFrom16 expands a 16-bit assigned number into its 128-bit form.
func UUIDFrom16(v uint16) uuid.UUID {
	return UUIDFrom32(uint32(v))
}

// UUIDFrom32 expands a 32-bit assigned number into its 128-bit form.
func UUIDFrom32(v uint32) uuid.UUID {
	u := BaseUUID
	binary.BigEndian.PutUint32(u[0:4], v)
	return u
}

// UUIDFromLittleEndian converts a 2, 4 or 16 byte little-endian (on-air) UUID
// into its canonical 128-bit form.
func UUIDFromLittleEndian(b []byte) (uuid.UUID, error) {
	switch len(b) {
	case 2:
		return UUIDFrom16(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return UUIDFrom32(binary.LittleEndian.Uint32(b)), nil
	case 16:
		var u uuid.UUID
		for i := range b {
			u[i] = b[len(b)-1-i]
		}
		return u, nil
	default:
		return uuid.Nil, fmt.Errorf("invalid UUID length %d", len(b))
	}
}

// ShortUUID returns the 16 or 32-bit assigned number embedded in u when u is
// derived from the base UUID.
func ShortUUID(u uuid.UUID) (uint32, bool) {
	if !bytes.Equal(u[4:], BaseUUID[4:]) {
		return 0, false
	}
	return binary.BigEndian.Uint32(u[0:4]), true
}

// ShortenUUID returns a compact display form: "180d" for SIG-derived UUIDs,
// the full string otherwise.
func ShortenUUID(u uuid.UUID) string {
	if v, ok := ShortUUID(u); ok {
		if v <= 0xFFFF {
			return fmt.Sprintf("%04x", v)
		}
		return fmt.Sprintf("%08x", v)
	}
	return u.String()
}

// ParseUUID accepts the short ("180D", "0x180d") and full textual UUID forms.
func ParseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	switch len(s) {
	case 4, 8:
		var v uint32
		if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
			return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return UUIDFrom32(v), nil
	default:
		u, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return u, nil
	}
}

// MustParseUUID is ParseUUID that panics on malformed input.
func MustParseUUID(s string) uuid.UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}
