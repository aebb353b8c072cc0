package gatt

import "github.com/chaz8081/blekbd/internal/ble"

const (
	otaVersion        = 0x06
	otaControlBoot    = 0x01 // reboot into the update loader
	otaControlNoReset = 0x00
)

// OTA is the over-the-air update service. The update itself happens in a
// loader; this side only records that a reset into it was requested.
type OTA struct {
	resetRequired bool
}

func NewOTA() *OTA { return &OTA{} }

func (o *OTA) Name() string { return "ota" }

// ResetRequired reports whether the host asked for a reset on disconnect.
func (o *OTA) ResetRequired() bool { return o.resetRequired }

func (o *OTA) HandlesHandle(h uint16) bool {
	return inRange(h, HandleOTAService, HandleOTAServiceEnd)
}

func (o *OTA) OnRead(h uint16) (ble.AttStatus, []byte) {
	if h == HandleOTAVersion {
		return ble.AttSuccess, []byte{otaVersion}
	}
	return ble.AttReadNotPermitted, nil
}

func (o *OTA) OnWrite(h uint16, v []byte) ble.AttStatus {
	if h != HandleOTAControl {
		return ble.AttWriteNotPermitted
	}
	if len(v) != 1 {
		return ble.AttInvalidLength
	}
	switch v[0] {
	case otaControlBoot:
		o.resetRequired = true
	case otaControlNoReset:
		o.resetRequired = false
	default:
		return ble.AttOpcodeNotSupported
	}
	return ble.AttSuccess
}

func (o *OTA) Def() ble.ServiceDef {
	return ble.ServiceDef{
		UUID: ble.UUID(UUIDOTAService),
		Chars: []ble.CharDef{
			{UUID: ble.UUID(UUIDOTAVersion), Handle: HandleOTAVersion, Flags: ble.CharRead, Value: []byte{otaVersion}},
			{UUID: ble.UUID(UUIDOTAControl), Handle: HandleOTAControl, Flags: ble.CharWrite},
		},
	}
}
