package hid

import (
	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/gatt"
)

// BootService is a vendor service for hosts that only speak boot protocol
// over a private characteristic. When its notifications are on, all input
// data goes through it.
type BootService struct {
	cfg    gatt.ClientConfig
	output uint8
	onLEDs func(LEDs)
}

// NewBootService creates the service. onLEDs may be nil.
func NewBootService(onLEDs func(LEDs)) *BootService {
	return &BootService{onLEDs: onLEDs}
}

func (b *BootService) Name() string { return "hid boot" }

// NotificationsEnabled reports whether the host subscribed to boot reports.
func (b *BootService) NotificationsEnabled() bool { return b.cfg.Notifying() }

// ReportHandle returns the characteristic for reports with id. Consumer
// reports keep using the HID service characteristic.
func (b *BootService) ReportHandle(id uint8) (uint16, bool) {
	switch id {
	case InputReportID:
		return gatt.HandleBootReport, true
	case ConsumerReportID:
		return gatt.HandleHIDConsumerReport, true
	default:
		return gatt.InvalidHandle, false
	}
}

func (b *BootService) HandlesHandle(h uint16) bool {
	return h >= gatt.HandleBootService && h <= gatt.HandleBootServiceEnd
}

func (b *BootService) Reset(bool) error {
	b.cfg = gatt.ConfigNone
	b.output = 0
	return nil
}

func (b *BootService) OnRead(h uint16) (ble.AttStatus, []byte) {
	if h == gatt.HandleBootReportCCCD {
		return ble.AttSuccess, b.cfg.Bytes()
	}
	return ble.AttReadNotPermitted, nil
}

func (b *BootService) OnWrite(h uint16, v []byte) ble.AttStatus {
	switch h {
	case gatt.HandleBootReportCCCD:
		c, status := gatt.ParseClientConfig(v)
		if status != ble.AttSuccess {
			return status
		}
		b.cfg = c
		return ble.AttSuccess
	case gatt.HandleBootReport:
		if len(v) != OutputReportLen {
			return ble.AttInvalidLength
		}
		b.output = v[0]
		if b.onLEDs != nil {
			b.onLEDs(LEDs(v[0]))
		}
		return ble.AttSuccess
	default:
		return ble.AttWriteNotPermitted
	}
}

func (b *BootService) Def() ble.ServiceDef {
	return ble.ServiceDef{
		UUID: ble.UUID(gatt.UUIDBootService),
		Chars: []ble.CharDef{{
			UUID:   ble.UUID(gatt.UUIDBootReportChar),
			Handle: gatt.HandleBootReport,
			CCCD:   gatt.HandleBootReportCCCD,
			Flags:  ble.CharNotify | ble.CharWrite,
			Value:  make([]byte, InputReportLen),
		}},
	}
}
