package gatt

import "github.com/chaz8081/blekbd/internal/ble"

const (
	// bondMgmtFeatures advertises "delete bond of requesting device, LE only".
	bondMgmtFeatures = 0x10
	// opDeleteBondLE is the matching control point opcode.
	opDeleteBondLE = 0x03
)

// BondMgmt is the Bond Management service. A delete request only raises a
// flag; the keyboard performs the deletion once the link is down.
type BondMgmt struct {
	deletion bool
	// OnDelete runs after every control point write that raised the flag.
	OnDelete func()
}

func NewBondMgmt() *BondMgmt { return &BondMgmt{} }

func (b *BondMgmt) Name() string { return "bond management" }

// DeletionRequested reports whether the host asked for the bond to be deleted.
func (b *BondMgmt) DeletionRequested() bool { return b.deletion }

// SetDeletionRequested sets or clears the deletion flag.
func (b *BondMgmt) SetDeletionRequested(v bool) { b.deletion = v }

func (b *BondMgmt) HandlesHandle(h uint16) bool {
	return inRange(h, HandleBondMgmtService, HandleBondMgmtServiceEnd)
}

func (b *BondMgmt) Reset(bool) error {
	b.deletion = false
	return nil
}

func (b *BondMgmt) OnRead(h uint16) (ble.AttStatus, []byte) {
	if h == HandleBondMgmtFeature {
		return ble.AttSuccess, []byte{bondMgmtFeatures}
	}
	return ble.AttReadNotPermitted, nil
}

func (b *BondMgmt) OnWrite(h uint16, v []byte) ble.AttStatus {
	if h != HandleBondMgmtControl {
		return ble.AttWriteNotPermitted
	}
	if len(v) == 0 || v[0] != opDeleteBondLE {
		return ble.AttOpcodeNotSupported
	}
	b.deletion = true
	if b.OnDelete != nil {
		b.OnDelete()
	}
	return ble.AttSuccess
}

func (b *BondMgmt) Def() ble.ServiceDef {
	return ble.ServiceDef{
		UUID: ble.UUID16(UUIDBondMgmtService),
		Chars: []ble.CharDef{
			{UUID: ble.UUID16(UUIDBondMgmtControl), Handle: HandleBondMgmtControl, Flags: ble.CharWrite},
			{UUID: ble.UUID16(UUIDBondMgmtFeature), Handle: HandleBondMgmtFeature, Flags: ble.CharRead, Value: []byte{bondMgmtFeatures}},
		},
	}
}
