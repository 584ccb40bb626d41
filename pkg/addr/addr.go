// Package addr implements the fixed-width endpoint addresses (MAC, IPv4 and
// IPv6) that key the classid maps.
package addr

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// Address parse errors.
var (
	ErrInvalidFormat = errors.New("unknown address format")
	ErrInvalidMAC    = errors.New("invalid MAC address")
	ErrInvalidIPv4   = errors.New("invalid IPv4 address")
	ErrInvalidIPv6   = errors.New("invalid IPv6 address")
)

// Type identifies the kind of an address. The numeric order is the
// primary sort order of addresses.
type Type uint8

const (
	MAC Type = iota
	IPv4
	IPv6

	NumTypes = 3
)

// Raw byte widths per type.
const (
	MACLen  = 6
	IPv4Len = 4
	IPv6Len = 16
)

// macStrLen is the length of the colon-hex form aa:bb:cc:dd:ee:ff.
const macStrLen = 17

// lastMACColon is the position of the final colon in a MAC string.
const lastMACColon = 14

// Types lists all address types in enumeration order.
var Types = [NumTypes]Type{MAC, IPv4, IPv6}

// Len returns the raw byte width of the type.
func (t Type) Len() int {
	switch t {
	case MAC:
		return MACLen
	case IPv4:
		return IPv4Len
	case IPv6:
		return IPv6Len
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case MAC:
		return "mac"
	case IPv4:
		return "ip4"
	case IPv6:
		return "ip6"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Addr is an immutable typed address. Only the first Type.Len() bytes of
// raw are significant; the rest are always zero.
type Addr struct {
	typ Type
	raw [IPv6Len]byte
}

// FromBytes builds an address of type t from its raw bytes.
func FromBytes(t Type, b []byte) (Addr, error) {
	if t.Len() == 0 || len(b) != t.Len() {
		return Addr{}, fmt.Errorf("%d bytes for %s address", len(b), t)
	}
	var a Addr
	a.typ = t
	copy(a.raw[:], b)
	return a, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static tables.
func MustParse(s string) Addr {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Parse detects the address type from the shape of s and parses it.
func Parse(s string) (Addr, error) {
	t, ok := detectType(s)
	if !ok {
		return Addr{}, fmt.Errorf("%w (%s)", ErrInvalidFormat, s)
	}

	switch t {
	case MAC:
		return parseMAC(s)
	case IPv4:
		ip, err := netip.ParseAddr(s)
		if err != nil || !ip.Is4() {
			return Addr{}, fmt.Errorf("%w (%s)", ErrInvalidIPv4, s)
		}
		b := ip.As4()
		return FromBytes(IPv4, b[:])
	default:
		ip, err := netip.ParseAddr(s)
		if err != nil || !ip.Is6() || ip.Zone() != "" {
			return Addr{}, fmt.Errorf("%w (%s)", ErrInvalidIPv6, s)
		}
		b := ip.As16()
		return FromBytes(IPv6, b[:])
	}
}

// detectType classifies s by shape: 17 characters with colons only at
// octet boundaries is a MAC, any dot is IPv4, any other colon is IPv6.
func detectType(s string) (Type, bool) {
	var t Type
	ok := false
	if len(s) == macStrLen {
		t, ok = MAC, true
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.':
			return IPv4, true
		case ':':
			if !ok || t != MAC || i > lastMACColon || (i-2)%3 != 0 {
				return IPv6, true
			}
		}
	}
	return t, ok
}

func parseMAC(s string) (Addr, error) {
	parts := strings.Split(s, ":")
	if len(s) != macStrLen || len(parts) != MACLen {
		return Addr{}, ErrInvalidMAC
	}
	var b [MACLen]byte
	for i, p := range parts {
		if len(p) != 2 {
			return Addr{}, ErrInvalidMAC
		}
		if _, err := hex.Decode(b[i:i+1], []byte(p)); err != nil {
			return Addr{}, ErrInvalidMAC
		}
	}
	return FromBytes(MAC, b[:])
}

// Type returns the address type.
func (a Addr) Type() Type {
	return a.typ
}

// Bytes returns a copy of the raw address bytes, as used for map keys.
func (a Addr) Bytes() []byte {
	return bytes.Clone(a.raw[:a.typ.Len()])
}

// String returns the canonical form: lowercase colon-hex for MAC, the
// standard presentation form for IP addresses.
func (a Addr) String() string {
	switch a.typ {
	case MAC:
		r := a.raw
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
			r[0], r[1], r[2], r[3], r[4], r[5])
	case IPv4:
		return netip.AddrFrom4([4]byte(a.raw[:IPv4Len])).String()
	case IPv6:
		return netip.AddrFrom16(a.raw).String()
	default:
		return a.typ.String()
	}
}

// Compare orders addresses by type, then by raw bytes.
func Compare(a, b Addr) int {
	if a.typ != b.typ {
		if a.typ < b.typ {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.raw[:a.typ.Len()], b.raw[:b.typ.Len()])
}

// ComparePtr is Compare extended with nil, which orders after every
// address. Used to terminate merges.
func ComparePtr(a, b *Addr) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return Compare(*a, *b)
}
