// Package model defines the value types shared across the HCI and
// connector layers: MAC addresses, UUIDs, module/device identifiers,
// and the telemetry shapes exchanged between them.
package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MAC is a 48-bit Bluetooth device address.
//
// Equality and hashing are on the 6-byte value; the separator used to
// parse or render a MAC carries no semantic meaning.
type MAC [6]byte

// ParseMAC parses a colon- or underscore-separated hex MAC address, e.g.
// "AA:BB:CC:DD:EE:FF" or "aa_bb_cc_dd_ee_ff". Input is case-insensitive.
func ParseMAC(s string) (MAC, error) {
	var mac MAC

	var parts []string
	switch {
	case strings.Contains(s, ":"):
		parts = strings.Split(s, ":")
	case strings.Contains(s, "_"):
		parts = strings.Split(s, "_")
	default:
		return mac, fmt.Errorf("model: invalid MAC %q: no separator found", s)
	}

	if len(parts) != 6 {
		return mac, fmt.Errorf("model: invalid MAC %q: expected 6 octets, got %d", s, len(parts))
	}

	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return mac, fmt.Errorf("model: invalid MAC %q: bad octet %q", s, p)
		}
		mac[i] = b[0]
	}

	return mac, nil
}

// Render renders the MAC using the given separator byte, with uppercase
// hex octets (matching BlueZ's device-path convention of upper-case,
// underscore-separated addresses).
func (m MAC) Render(sep byte) string {
	var b strings.Builder
	b.Grow(17)
	for i, octet := range m {
		if i > 0 {
			b.WriteByte(sep)
		}
		fmt.Fprintf(&b, "%02X", octet)
	}
	return b.String()
}

// String renders the MAC colon-separated, e.g. "AA:BB:CC:DD:EE:FF".
func (m MAC) String() string {
	return m.Render(':')
}

// IsZero reports whether the MAC is the zero value.
func (m MAC) IsZero() bool {
	return m == MAC{}
}
