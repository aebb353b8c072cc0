package keyboard

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is wrapped by faults raised for an event the current
	// state does not accept.
	ErrInvalidState = errors.New("keyboard: event not valid in state")

	// ErrResetRequested is returned by Run when the link went down after the
	// host asked for a reset into the update loader.
	ErrResetRequested = errors.New("keyboard: reset requested")
)

// FaultCode classifies unrecoverable failures.
type FaultCode uint8

const (
	FaultInvalidState FaultCode = iota + 1
	FaultDatabaseRegistration
	FaultConnection
	FaultWhitelist
	FaultConnParamUpdate
	FaultAdvertising
	FaultStore
)

func (c FaultCode) String() string {
	switch c {
	case FaultInvalidState:
		return "invalid state"
	case FaultDatabaseRegistration:
		return "database registration"
	case FaultConnection:
		return "connection establishment"
	case FaultWhitelist:
		return "whitelist"
	case FaultConnParamUpdate:
		return "connection parameter update"
	case FaultAdvertising:
		return "advertising"
	case FaultStore:
		return "persistent store"
	default:
		return fmt.Sprintf("fault(%d)", uint8(c))
	}
}

// Fault is an unrecoverable failure. The device is expected to reset.
type Fault struct {
	Code  FaultCode
	State State
	// Event is the event being handled, if any.
	Event any
	Err   error
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("keyboard: %s fault in state %s", f.Code, f.State)
	if f.Event != nil {
		msg += fmt.Sprintf(" handling %T", f.Event)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Fault) Unwrap() error { return f.Err }
