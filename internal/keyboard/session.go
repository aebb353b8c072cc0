package keyboard

import (
	"github.com/chaz8081/blekbd/internal/ble"
)

// paramPhase is the step the connection parameter negotiator is waiting in.
type paramPhase uint8

const (
	phaseNone paramPhase = iota
	// phasePause is the quiet period right after the link comes up.
	phasePause
	// phaseCentral gives the host a chance to finish service discovery; any
	// attribute access restarts it.
	phaseCentral
	// phaseRetry follows a rejected or unsatisfying update.
	phaseRetry
)

func (p paramPhase) String() string {
	switch p {
	case phasePause:
		return "pause"
	case phaseCentral:
		return "central"
	case phaseRetry:
		return "retry"
	default:
		return "none"
	}
}

// Session is the state of the keyboard. The bond record, the revoke count and
// the parameter attempt counter survive a disconnect; the rest is
// re-initialised every time the link goes down.
type Session struct {
	State State

	Conn ble.ConnHandle
	Peer ble.Addr

	Bonded     bool
	BondedAddr ble.Addr
	Div        uint16
	IRK        ble.IRK

	EncryptionEnabled bool
	AuthFailed        bool

	Params            ble.ConnParams
	ConnParamAttempts int
	RevokeCount       int

	DataPending      bool
	TxInProgress     bool
	WaitingForBuffer bool

	// PairingPressed is set when the pairing button removed the bond while
	// advertising; the advert is restarted with an empty whitelist.
	PairingPressed bool
	// StartAdverts restarts advertising from scratch once the current advert
	// has stopped.
	StartAdverts bool

	buttonDown bool
	phase      paramPhase
}

// linkReset clears everything tied to one connection.
func (s *Session) linkReset() {
	s.Conn = ble.InvalidConn
	s.Peer = ble.Addr{}
	s.EncryptionEnabled = false
	s.AuthFailed = false
	s.Params = ble.ConnParams{}
	s.TxInProgress = false
	s.WaitingForBuffer = false
	s.PairingPressed = false
	s.StartAdverts = false
	s.phase = phaseNone
}
