package store

import (
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
)

// SanityMagic marks an initialised image. Any other value at offset 0 means
// the image is blank or from an incompatible layout.
const SanityMagic uint16 = 0xAB06

// Application header layout.
const (
	offsetSanity = 0
	offsetBonded = offsetSanity + 2
	offsetAddr   = offsetBonded + 1 // type byte then 6 address bytes
	offsetDiv    = offsetAddr + 7
	offsetIRK    = offsetDiv + 2

	// HeaderSize is the first offset available to service regions.
	HeaderSize = offsetIRK + len(ble.IRK{})
)

// Region is a slice of the image owned by one service.
type Region struct {
	Offset int
	Size   int
}

// At returns the absolute offset of a field within the region.
func (r Region) At(field int) int {
	if field < 0 || field >= r.Size {
		panic(fmt.Sprintf("store: field %d outside region of %d bytes", field, r.Size))
	}
	return r.Offset + field
}

// Layout hands out consecutive regions after the application header. The
// allocation order must be the same on every boot.
type Layout struct {
	next int
}

// NewLayout starts allocating at HeaderSize.
func NewLayout() *Layout {
	return &Layout{next: HeaderSize}
}

// Alloc reserves size bytes.
func (l *Layout) Alloc(size int) Region {
	r := Region{Offset: l.next, Size: size}
	l.next += size
	return r
}

// Used reports the number of bytes allocated so far, header included.
func (l *Layout) Used() int { return l.next }

// Bond is the single bond record.
type Bond struct {
	Bonded bool
	Addr   ble.Addr
	Div    uint16
	IRK    ble.IRK
}

// Open validates the sanity word. A blank or foreign image is reset to an
// unbonded header and fresh is true; service regions must then write their
// own defaults.
func Open(s Store) (b Bond, fresh bool, err error) {
	sanity, err := ReadUint16(s, offsetSanity)
	if err != nil {
		return Bond{}, false, fmt.Errorf("store: read sanity word: %w", err)
	}
	if sanity != SanityMagic {
		if err := WriteUint16(s, offsetSanity, SanityMagic); err != nil {
			return Bond{}, false, fmt.Errorf("store: write sanity word: %w", err)
		}
		if err := WriteBond(s, Bond{}); err != nil {
			return Bond{}, false, err
		}
		return Bond{}, true, nil
	}
	b, err = ReadBond(s)
	return b, false, err
}

// ReadBond loads the bond record. The address and IRK are only meaningful
// while Bonded is set; the diversifier is kept across unbonding.
func ReadBond(s Store) (Bond, error) {
	raw, err := s.Read(offsetBonded, HeaderSize-offsetBonded)
	if err != nil {
		return Bond{}, fmt.Errorf("store: read bond: %w", err)
	}
	var b Bond
	b.Bonded = raw[0] == 1
	b.Div = uint16(raw[offsetDiv-offsetBonded]) | uint16(raw[offsetDiv-offsetBonded+1])<<8
	if !b.Bonded {
		return b, nil
	}
	a := raw[offsetAddr-offsetBonded:]
	b.Addr.Type = ble.AddrType(a[0])
	copy(b.Addr.MAC[:], a[1:7])
	if b.Addr.IsResolvableRandom() {
		copy(b.IRK[:], raw[offsetIRK-offsetBonded:])
	}
	return b, nil
}

// WriteBond persists the whole bond record.
func WriteBond(s Store, b Bond) error {
	raw := make([]byte, HeaderSize-offsetBonded)
	if b.Bonded {
		raw[0] = 1
	}
	a := raw[offsetAddr-offsetBonded:]
	a[0] = byte(b.Addr.Type)
	copy(a[1:7], b.Addr.MAC[:])
	raw[offsetDiv-offsetBonded] = byte(b.Div)
	raw[offsetDiv-offsetBonded+1] = byte(b.Div >> 8)
	copy(raw[offsetIRK-offsetBonded:], b.IRK[:])
	if err := s.Write(offsetBonded, raw); err != nil {
		return fmt.Errorf("store: write bond: %w", err)
	}
	return nil
}

// WriteBonded updates only the bonded flag.
func WriteBonded(s Store, bonded bool) error {
	v := byte(0)
	if bonded {
		v = 1
	}
	if err := s.Write(offsetBonded, []byte{v}); err != nil {
		return fmt.Errorf("store: write bonded flag: %w", err)
	}
	return nil
}

// WriteDiv updates only the diversifier.
func WriteDiv(s Store, div uint16) error {
	if err := WriteUint16(s, offsetDiv, div); err != nil {
		return fmt.Errorf("store: write diversifier: %w", err)
	}
	return nil
}

// WriteIRK updates only the peer IRK.
func WriteIRK(s Store, irk ble.IRK) error {
	if err := s.Write(offsetIRK, irk[:]); err != nil {
		return fmt.Errorf("store: write IRK: %w", err)
	}
	return nil
}
