package device

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 6-byte Bluetooth hardware address, most significant byte first.
type Address [6]byte

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (':' or '-' separated, case-insensitive).
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != len(a) {
		return a, fmt.Errorf("invalid address %q: want 6 octets, got %d", s, len(parts))
	}
	for i, p := range parts {
		if len(p) != 2 {
			return Address{}, fmt.Errorf("invalid address %q: octet %d is %q", s, i, p)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
		}
		a[i] = b[0]
	}
	return a, nil
}

// MustParseAddress is ParseAddress that panics on malformed input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Uint64 packs the address into the low 48 bits, preserving ordering.
func (a Address) Uint64() uint64 {
	var v uint64
	for _, b := range a {
		v = v<<8 | uint64(b)
	}
	return v
}

// Compare orders addresses byte-wise.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AddressType distinguishes public from random device addresses.
type AddressType int

const (
	AddressPublic AddressType = iota
	AddressRandom
)

func (t AddressType) String() string {
	switch t {
	case AddressPublic:
		return "public"
	case AddressRandom:
		return "random"
	default:
		return fmt.Sprintf("AddressType(%d)", int(t))
	}
}

func (t AddressType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
