// Package ble describes the link and security collaborators of the keyboard
// peripheral, the events they report, and the adapters that implement them on
// real radios (tinygo bluetooth) or in-process (Loopback).
package ble

import (
	"errors"
	"fmt"
	"time"
)

// ConnHandle identifies a live connection.
type ConnHandle uint16

// InvalidConn is the handle value used while no link exists.
const InvalidConn ConnHandle = 0xFFFF

// DisconnectReason is an HCI disconnect reason code.
type DisconnectReason uint8

const (
	ReasonAuthenticationFailure DisconnectReason = 0x05
	ReasonConnectionTimeout     DisconnectReason = 0x08
	ReasonRemoteUserTerminated  DisconnectReason = 0x13
	ReasonLocalHostTerminated   DisconnectReason = 0x16
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonAuthenticationFailure:
		return "authentication failure"
	case ReasonConnectionTimeout:
		return "connection timeout"
	case ReasonRemoteUserTerminated:
		return "remote user terminated"
	case ReasonLocalHostTerminated:
		return "local host terminated"
	default:
		return fmt.Sprintf("reason 0x%02x", uint8(r))
	}
}

// AttStatus is the status returned for an attribute access.
type AttStatus uint16

const (
	AttSuccess            AttStatus = 0x00
	AttReadNotPermitted   AttStatus = 0x02
	AttWriteNotPermitted  AttStatus = 0x03
	AttInvalidOffset      AttStatus = 0x07
	AttInvalidLength      AttStatus = 0x0D
	AttOpcodeNotSupported AttStatus = 0x80
	AttImproperConfig     AttStatus = 0xFD
)

// AdvertMode selects the advertising procedure.
type AdvertMode uint8

const (
	AdvertDirected AdvertMode = iota
	AdvertFast
	AdvertSlow
)

func (m AdvertMode) String() string {
	switch m {
	case AdvertDirected:
		return "directed"
	case AdvertFast:
		return "fast"
	case AdvertSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// DiscoverMode is the GAP discoverable mode while advertising.
type DiscoverMode uint8

const (
	DiscoverNone DiscoverMode = iota
	DiscoverLimited
)

// AdvertParams describes one advertising run.
type AdvertParams struct {
	Mode         AdvertMode
	MinInterval  time.Duration
	MaxInterval  time.Duration
	Discoverable DiscoverMode
	// Whitelist restricts scan and connect requests to whitelisted peers.
	Whitelist bool
	// Target is the peer of a directed advert.
	Target Addr
	// OwnRandom advertises from the current private address.
	OwnRandom    bool
	LocalName    string
	Data         []byte
	ScanResponse []byte
}

// ErrBusy is reported in NotificationConfirmed when the transport buffer is full.
var ErrBusy = errors.New("ble: transport busy")

// Link is the link-layer collaborator. Calls never block on the air: the
// outcome of every request arrives later as an event.
type Link interface {
	StartAdvertising(p AdvertParams) error
	StopAdvertising() error
	Disconnect(c ConnHandle, reason DisconnectReason) error
	// Notify queues a notification; NotificationConfirmed follows.
	Notify(c ConnHandle, handle uint16, value []byte) error
	AccessResponse(c ConnHandle, handle uint16, status AttStatus, value []byte)
	RequestConnParams(c ConnHandle, peer Addr, p ParamRequest) error
	// SetWhitelist replaces the controller whitelist.
	SetWhitelist(addrs []Addr) error
	// EnableTxEvents asks for TxBufferFreed once queued data has gone out.
	EnableTxEvents(c ConnHandle, on bool) error
	SetLTKAvailable(peer Addr, available bool)
	RequestSecurity(peer Addr) error
	SetRandomAddress(a Addr) error
}

// Security is the Security Manager collaborator.
type Security interface {
	PairingAuthResponse(c ConnHandle, accept bool)
	DivApproval(c ConnHandle, approve bool)
	PasskeyInput(peer Addr, passkey uint32)
	PasskeyNegative(peer Addr)
	// MatchAddress resolves peer against irk.
	MatchAddress(peer Addr, irk IRK) bool
	// RegenerateAddress produces a new private address for this device.
	RegenerateAddress() (Addr, error)
}
