package gatt

import (
	"encoding/binary"
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/store"
)

// refreshRequired is the only Scan Refresh value defined.
const refreshRequired = 0x00

// ScanParams is the Scan Parameters service. The host tells the keyboard how
// it scans; the keyboard can ask it to rewrite that value.
type ScanParams struct {
	interval uint16
	window   uint16
	cfg      ClientConfig

	st     store.Store
	region store.Region
}

func NewScanParams() *ScanParams { return &ScanParams{} }

func (p *ScanParams) Name() string { return "scan parameters" }

// IntervalWindow returns the host scan interval and window, in 0.625 ms units.
func (p *ScanParams) IntervalWindow() (uint16, uint16) { return p.interval, p.window }

// RefreshNotification returns the refresh request if the host enabled it.
func (p *ScanParams) RefreshNotification() (uint16, []byte, bool) {
	if !p.cfg.Notifying() {
		return 0, nil, false
	}
	return HandleScanRefresh, []byte{refreshRequired}, true
}

func (p *ScanParams) HandlesHandle(h uint16) bool {
	return inRange(h, HandleScanParamService, HandleScanParamServiceEnd)
}

func (p *ScanParams) StoreSize() int { return 2 }

func (p *ScanParams) Load(s store.Store, r store.Region, bonded, fresh bool) error {
	p.st, p.region = s, r
	if fresh || !bonded {
		p.cfg = ConfigNone
		return SaveClientConfig(s, r.At(0), ConfigNone)
	}
	cfg, err := LoadClientConfig(s, r.At(0))
	if err != nil {
		return fmt.Errorf("gatt: read scan refresh config: %w", err)
	}
	p.cfg = cfg
	return nil
}

func (p *ScanParams) Reset(bonded bool) error {
	if bonded {
		return nil
	}
	p.cfg = ConfigNone
	if p.st == nil {
		return nil
	}
	return SaveClientConfig(p.st, p.region.At(0), ConfigNone)
}

func (p *ScanParams) OnRead(h uint16) (ble.AttStatus, []byte) {
	if h == HandleScanRefreshCCCD {
		return ble.AttSuccess, p.cfg.Bytes()
	}
	return ble.AttReadNotPermitted, nil
}

func (p *ScanParams) OnWrite(h uint16, v []byte) ble.AttStatus {
	switch h {
	case HandleScanIntervalWindow:
		if len(v) != 4 {
			return ble.AttInvalidLength
		}
		p.interval = binary.LittleEndian.Uint16(v[0:2])
		p.window = binary.LittleEndian.Uint16(v[2:4])
		return ble.AttSuccess
	case HandleScanRefreshCCCD:
		cfg, status := ParseClientConfig(v)
		if status != ble.AttSuccess {
			return status
		}
		p.cfg = cfg
		if p.st != nil {
			if err := SaveClientConfig(p.st, p.region.At(0), cfg); err != nil {
				return ble.AttWriteNotPermitted
			}
		}
		return ble.AttSuccess
	default:
		return ble.AttWriteNotPermitted
	}
}

func (p *ScanParams) Def() ble.ServiceDef {
	return ble.ServiceDef{
		UUID: ble.UUID16(UUIDScanParamService),
		Chars: []ble.CharDef{
			{UUID: ble.UUID16(UUIDScanIntervalWindow), Handle: HandleScanIntervalWindow, Flags: ble.CharWriteNoResponse},
			{UUID: ble.UUID16(UUIDScanRefresh), Handle: HandleScanRefresh, CCCD: HandleScanRefreshCCCD, Flags: ble.CharNotify},
		},
	}
}
