package ble

// Events reported by the link and security collaborators. They are delivered
// to the keyboard through its mailbox, one at a time.

// DatabaseRegistered reports the outcome of registering the GATT database.
type DatabaseRegistered struct {
	Err error
}

// ConnectionComplete carries the parameters of a new link. It precedes Connected.
type ConnectionComplete struct {
	Params ConnParams
}

// ConnStatus is the outcome of an advertising run that ended in a connect attempt.
type ConnStatus uint8

const (
	ConnSuccess ConnStatus = iota
	ConnDirectedTimeout
	ConnFailed
)

// Connected reports the end of advertising.
type Connected struct {
	Conn   ConnHandle
	Peer   Addr
	Status ConnStatus
}

// AdvertisingStopped confirms StopAdvertising. Err is non-nil when the stop failed.
type AdvertisingStopped struct {
	Err error
}

// AttributeAccess is a read or write of an application-handled attribute.
type AttributeAccess struct {
	Conn   ConnHandle
	Handle uint16
	Write  bool
	Value  []byte
}

// Disconnected reports link teardown.
type Disconnected struct {
	Conn   ConnHandle
	Reason DisconnectReason
}

// EncryptionChanged reports a change of link encryption. Err is non-nil when
// the procedure failed, in which case Enabled is meaningless.
type EncryptionChanged struct {
	Err     error
	Enabled bool
}

// KeysDistributed carries keys received during bonding.
type KeysDistributed struct {
	HasDiv bool
	Div    uint16
	HasIRK bool
	IRK    IRK
}

// PairingAuthRequested asks whether a Just Works pairing may proceed.
type PairingAuthRequested struct {
	Conn ConnHandle
}

// PairingStatus is the outcome of a pairing procedure.
type PairingStatus uint8

const (
	PairingSuccess PairingStatus = iota
	PairingFailed
	PairingRepeatedAttempts
)

func (s PairingStatus) String() string {
	switch s {
	case PairingSuccess:
		return "success"
	case PairingRepeatedAttempts:
		return "repeated attempts"
	default:
		return "failed"
	}
}

// PairingCompleted reports the end of pairing.
type PairingCompleted struct {
	Status PairingStatus
	Peer   Addr
}

// PasskeyRequested asks the user to type the passkey shown by the host.
type PasskeyRequested struct{}

// DivApprovalRequested asks whether the host may encrypt with the key
// identified by Div.
type DivApprovalRequested struct {
	Conn ConnHandle
	Div  uint16
}

// ConnParamUpdateConfirmed answers RequestConnParams.
type ConnParamUpdateConfirmed struct {
	Err error
}

// ConnectionUpdated reports new link parameters.
type ConnectionUpdated struct {
	Params ConnParams
}

// ConnParamUpdateIndicated reports that a parameter update procedure finished.
type ConnParamUpdateIndicated struct{}

// NotificationConfirmed answers Notify. Err is ErrBusy on backpressure.
type NotificationConfirmed struct {
	Handle uint16
	Err    error
}

// TxBufferFreed is sent once after EnableTxEvents when queued data has been
// transmitted.
type TxBufferFreed struct{}
