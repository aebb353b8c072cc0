package ble

import (
	"fmt"
	"net"
	"strings"

	blecrypto "github.com/chaz8081/blekbd/internal/ble/crypto"
)

// AddrType is the link-layer address type.
type AddrType uint8

const (
	AddrPublic AddrType = iota
	AddrRandom
)

func (t AddrType) String() string {
	if t == AddrRandom {
		return "random"
	}
	return "public"
}

// IRK is an identity resolving key.
type IRK [blecrypto.IRKSize]byte

// IsZero reports whether no key has been stored.
func (k IRK) IsZero() bool { return k == IRK{} }

// Addr is a typed device address. MAC is in display order, most significant
// octet first.
type Addr struct {
	Type AddrType
	MAC  [6]byte
}

// ParseAddr parses "AA:BB:CC:DD:EE:FF" with the given type.
func ParseAddr(s string, t AddrType) (Addr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return Addr{}, fmt.Errorf("ble: parse address %q: invalid MAC", s)
	}
	var a Addr
	a.Type = t
	copy(a.MAC[:], hw)
	return a, nil
}

func (a Addr) String() string {
	parts := make([]string, len(a.MAC))
	for i, b := range a.MAC {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":") + "(" + a.Type.String() + ")"
}

// IsZero reports whether a is the zero address.
func (a Addr) IsZero() bool { return a == Addr{} }

// IsResolvableRandom reports whether a is a resolvable private address.
func (a Addr) IsResolvableRandom() bool {
	return a.Type == AddrRandom && a.MAC[0]&0xC0 == 0x40
}

// IsNonResolvableRandom reports whether a is a non-resolvable private address.
func (a Addr) IsNonResolvableRandom() bool {
	return a.Type == AddrRandom && a.MAC[0]&0xC0 == 0x00
}

// IsPrivate reports whether a is either kind of private address.
func (a Addr) IsPrivate() bool {
	return a.IsResolvableRandom() || a.IsNonResolvableRandom()
}
