package gatt

import (
	"encoding/binary"
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/store"
)

// MaxNameLen is the longest device name the GAP service stores.
const MaxNameLen = 20

const (
	gapFieldNameLen = 0
	gapFieldName    = 1
	gapFieldPrivacy = gapFieldName + MaxNameLen
	gapFieldReconn  = gapFieldPrivacy + 1
	gapStoreSize    = gapFieldReconn + 6
)

// GAP is the Generic Access service.
type GAP struct {
	name       []byte
	appearance uint16
	preferred  ble.ParamRequest
	// privacy enables the peripheral privacy flag and reconnection address.
	privacy bool

	privacyFlag bool
	reconn      [6]byte

	st     store.Store
	region store.Region
}

// NewGAP creates the service. Names longer than MaxNameLen are truncated.
func NewGAP(name string, appearance uint16, preferred ble.ParamRequest, privacy bool) *GAP {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	return &GAP{
		name:       []byte(name),
		appearance: appearance,
		preferred:  preferred,
		privacy:    privacy,
	}
}

func (g *GAP) Name() string { return "gap" }

// DeviceName returns the current device name.
func (g *GAP) DeviceName() string { return string(g.name) }

// Appearance returns the GAP appearance value.
func (g *GAP) Appearance() uint16 { return g.appearance }

// PrivacyEnabled reports whether the host has switched peripheral privacy on.
func (g *GAP) PrivacyEnabled() bool { return g.privacy && g.privacyFlag }

// ReconnectionAddress returns the address written by the host, if any.
func (g *GAP) ReconnectionAddress() (ble.Addr, bool) {
	if !g.privacy || g.reconn == ([6]byte{}) {
		return ble.Addr{}, false
	}
	return ble.Addr{Type: ble.AddrRandom, MAC: g.reconn}, true
}

func (g *GAP) HandlesHandle(h uint16) bool {
	return inRange(h, HandleGAPService, HandleGAPServiceEnd)
}

func (g *GAP) StoreSize() int { return gapStoreSize }

func (g *GAP) Load(s store.Store, r store.Region, _ bool, fresh bool) error {
	g.st, g.region = s, r
	if fresh {
		return g.save()
	}
	raw, err := s.Read(r.Offset, gapStoreSize)
	if err != nil {
		return fmt.Errorf("gatt: read gap region: %w", err)
	}
	n := int(raw[gapFieldNameLen])
	if n > MaxNameLen {
		// Damaged length; keep the configured name.
		return g.save()
	}
	g.name = append([]byte(nil), raw[gapFieldName:gapFieldName+n]...)
	g.privacyFlag = raw[gapFieldPrivacy] == 1
	copy(g.reconn[:], raw[gapFieldReconn:gapFieldReconn+6])
	if g.reconn == [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF} {
		g.reconn = [6]byte{}
	}
	return nil
}

func (g *GAP) save() error {
	if g.st == nil {
		return nil
	}
	raw := make([]byte, gapStoreSize)
	raw[gapFieldNameLen] = byte(len(g.name))
	copy(raw[gapFieldName:], g.name)
	if g.privacyFlag {
		raw[gapFieldPrivacy] = 1
	}
	copy(raw[gapFieldReconn:], g.reconn[:])
	if err := g.st.Write(g.region.Offset, raw); err != nil {
		return fmt.Errorf("gatt: write gap region: %w", err)
	}
	return nil
}

func (g *GAP) OnRead(h uint16) (ble.AttStatus, []byte) {
	switch h {
	case HandleDeviceName:
		return ble.AttSuccess, append([]byte(nil), g.name...)
	case HandleAppearance:
		return ble.AttSuccess, binary.LittleEndian.AppendUint16(nil, g.appearance)
	case HandlePreferredParams:
		b := binary.LittleEndian.AppendUint16(nil, g.preferred.MinInterval)
		b = binary.LittleEndian.AppendUint16(b, g.preferred.MaxInterval)
		b = binary.LittleEndian.AppendUint16(b, g.preferred.Latency)
		return ble.AttSuccess, binary.LittleEndian.AppendUint16(b, g.preferred.Timeout)
	case HandlePrivacyFlag:
		if !g.privacy {
			return ble.AttReadNotPermitted, nil
		}
		if g.privacyFlag {
			return ble.AttSuccess, []byte{1}
		}
		return ble.AttSuccess, []byte{0}
	default:
		return ble.AttReadNotPermitted, nil
	}
}

func (g *GAP) OnWrite(h uint16, v []byte) ble.AttStatus {
	switch h {
	case HandleDeviceName:
		if len(v) > MaxNameLen {
			return ble.AttInvalidLength
		}
		g.name = append([]byte(nil), v...)
	case HandlePrivacyFlag:
		if !g.privacy {
			return ble.AttWriteNotPermitted
		}
		if len(v) != 1 {
			return ble.AttInvalidLength
		}
		g.privacyFlag = v[0] == 1
	case HandleReconnectionAddr:
		if !g.privacy {
			return ble.AttWriteNotPermitted
		}
		if len(v) != 6 {
			return ble.AttInvalidLength
		}
		copy(g.reconn[:], v)
	default:
		return ble.AttWriteNotPermitted
	}
	if err := g.save(); err != nil {
		return ble.AttWriteNotPermitted
	}
	return ble.AttSuccess
}
