package keyboard

import (
	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/hid"
	"github.com/chaz8081/blekbd/internal/timer"
)

// KeyReport is a debounced raw report from the key source.
type KeyReport struct {
	Raw hid.RawReport
}

// PairingButton reports a change of the pairing button.
type PairingButton struct {
	Pressed bool
}

// BatteryLow reports a new, low battery level.
type BatteryLow struct {
	Level uint8
}

// TimerExpired is posted by the keyboard's own timers.
type TimerExpired timer.Expiry

type eventKind uint8

const (
	evDatabaseRegistered eventKind = iota
	evConnectionComplete
	evConnected
	evAdvertisingStopped
	evAdvertisingStopFailed
	evAttributeAccess
	evDisconnected
	evEncryptionChanged
	evKeysDistributed
	evPairingAuthRequested
	evPairingCompleted
	evPasskeyRequested
	evDivApprovalRequested
	evConnParamUpdateConfirmed
	evConnectionUpdated
	evConnParamUpdateIndicated
	evNotificationConfirmed
	evTxBufferFreed
	evKeyReport
	evPairingButton
	evBatteryLow
	evTimerExpired
	numEventKinds
)

func kindOf(ev any) (eventKind, bool) {
	switch e := ev.(type) {
	case ble.DatabaseRegistered:
		return evDatabaseRegistered, true
	case ble.ConnectionComplete:
		return evConnectionComplete, true
	case ble.Connected:
		return evConnected, true
	case ble.AdvertisingStopped:
		if e.Err != nil {
			return evAdvertisingStopFailed, true
		}
		return evAdvertisingStopped, true
	case ble.AttributeAccess:
		return evAttributeAccess, true
	case ble.Disconnected:
		return evDisconnected, true
	case ble.EncryptionChanged:
		return evEncryptionChanged, true
	case ble.KeysDistributed:
		return evKeysDistributed, true
	case ble.PairingAuthRequested:
		return evPairingAuthRequested, true
	case ble.PairingCompleted:
		return evPairingCompleted, true
	case ble.PasskeyRequested:
		return evPasskeyRequested, true
	case ble.DivApprovalRequested:
		return evDivApprovalRequested, true
	case ble.ConnParamUpdateConfirmed:
		return evConnParamUpdateConfirmed, true
	case ble.ConnectionUpdated:
		return evConnectionUpdated, true
	case ble.ConnParamUpdateIndicated:
		return evConnParamUpdateIndicated, true
	case ble.NotificationConfirmed:
		return evNotificationConfirmed, true
	case ble.TxBufferFreed:
		return evTxBufferFreed, true
	case KeyReport:
		return evKeyReport, true
	case PairingButton:
		return evPairingButton, true
	case BatteryLow:
		return evBatteryLow, true
	case TimerExpired:
		return evTimerExpired, true
	default:
		return 0, false
	}
}
