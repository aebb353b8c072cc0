package gatt

import (
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/store"
)

// Battery is the Battery service.
type Battery struct {
	level uint8
	cfg   ClientConfig

	st     store.Store
	region store.Region
}

// NewBattery creates the service reporting level percent.
func NewBattery(level uint8) *Battery {
	if level > 100 {
		level = 100
	}
	return &Battery{level: level}
}

func (b *Battery) Name() string { return "battery" }

// Level returns the battery level in percent.
func (b *Battery) Level() uint8 { return b.level }

// SetLevel updates the level. Callers notify separately.
func (b *Battery) SetLevel(level uint8) {
	if level > 100 {
		level = 100
	}
	b.level = level
}

// Notification returns the level notification if the host asked for one.
func (b *Battery) Notification() (uint16, []byte, bool) {
	if !b.cfg.Notifying() {
		return 0, nil, false
	}
	return HandleBatteryLevel, []byte{b.level}, true
}

func (b *Battery) HandlesHandle(h uint16) bool {
	return inRange(h, HandleBatteryService, HandleBatteryServiceEnd)
}

func (b *Battery) StoreSize() int { return 2 }

func (b *Battery) Load(s store.Store, r store.Region, bonded, fresh bool) error {
	b.st, b.region = s, r
	if fresh || !bonded {
		b.cfg = ConfigNone
		return SaveClientConfig(s, r.At(0), ConfigNone)
	}
	cfg, err := LoadClientConfig(s, r.At(0))
	if err != nil {
		return fmt.Errorf("gatt: read battery config: %w", err)
	}
	b.cfg = cfg
	return nil
}

func (b *Battery) Reset(bonded bool) error {
	if bonded {
		return nil
	}
	b.cfg = ConfigNone
	if b.st == nil {
		return nil
	}
	return SaveClientConfig(b.st, b.region.At(0), ConfigNone)
}

func (b *Battery) OnRead(h uint16) (ble.AttStatus, []byte) {
	switch h {
	case HandleBatteryLevel:
		return ble.AttSuccess, []byte{b.level}
	case HandleBatteryLevelCCCD:
		return ble.AttSuccess, b.cfg.Bytes()
	default:
		return ble.AttReadNotPermitted, nil
	}
}

func (b *Battery) OnWrite(h uint16, v []byte) ble.AttStatus {
	if h != HandleBatteryLevelCCCD {
		return ble.AttWriteNotPermitted
	}
	cfg, status := ParseClientConfig(v)
	if status != ble.AttSuccess {
		return status
	}
	b.cfg = cfg
	if b.st != nil {
		if err := SaveClientConfig(b.st, b.region.At(0), cfg); err != nil {
			return ble.AttWriteNotPermitted
		}
	}
	return ble.AttSuccess
}

func (b *Battery) Def() ble.ServiceDef {
	return ble.ServiceDef{
		UUID: ble.UUID16(UUIDBatteryService),
		Chars: []ble.CharDef{{
			UUID:   ble.UUID16(UUIDBatteryLevel),
			Handle: HandleBatteryLevel,
			CCCD:   HandleBatteryLevelCCCD,
			Flags:  ble.CharRead | ble.CharNotify,
			Value:  []byte{b.level},
		}},
	}
}
