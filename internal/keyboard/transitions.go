package keyboard

import (
	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/timer"
)

// rule says in which states an event kind is accepted. Outside of them the
// event is dropped when ignore is set, and is an invalid-state fault
// otherwise.
type rule struct {
	in     stateSet
	ignore bool
	handle func(k *Keyboard, ev any) error
}

var (
	advertising = states(StateDirectAdvert, StateFastAdvertising, StateSlowAdvertising)
	linked      = states(StateConnected, StatePasskeyInput)
	linkedOrEnd = states(StateConnected, StatePasskeyInput, StateDisconnecting)
)

var rules [numEventKinds]rule

func init() {
	rules = [numEventKinds]rule{
		evDatabaseRegistered: {
			in:     states(StateInit),
			handle: func(k *Keyboard, ev any) error { return k.onDatabaseRegistered(ev.(ble.DatabaseRegistered)) },
		},
		evConnectionComplete: {
			in:     anyState,
			handle: func(k *Keyboard, ev any) error { return k.onConnectionComplete(ev.(ble.ConnectionComplete)) },
		},
		evConnected: {
			in:     advertising,
			handle: func(k *Keyboard, ev any) error { return k.onConnected(ev.(ble.Connected)) },
		},
		evAdvertisingStopped: {
			in:     states(StateFastAdvertising, StateSlowAdvertising),
			handle: func(k *Keyboard, _ any) error { return k.onAdvertisingStopped() },
		},
		evAdvertisingStopFailed: {
			in:     anyState,
			handle: func(k *Keyboard, ev any) error { return k.onAdvertisingStopFailed(ev.(ble.AdvertisingStopped)) },
		},
		evAttributeAccess: {
			in:     linked,
			ignore: true,
			handle: func(k *Keyboard, ev any) error { return k.onAttributeAccess(ev.(ble.AttributeAccess)) },
		},
		evDisconnected: {
			in:     linkedOrEnd,
			handle: func(k *Keyboard, ev any) error { return k.onDisconnected(ev.(ble.Disconnected)) },
		},
		evEncryptionChanged: {
			in:     linked,
			handle: func(k *Keyboard, ev any) error { return k.onEncryptionChanged(ev.(ble.EncryptionChanged)) },
		},
		evKeysDistributed: {
			in:     linked,
			handle: func(k *Keyboard, ev any) error { return k.onKeysDistributed(ev.(ble.KeysDistributed)) },
		},
		evPairingAuthRequested: {
			in:     states(StateConnected),
			handle: func(k *Keyboard, ev any) error { return k.onPairingAuthRequested(ev.(ble.PairingAuthRequested)) },
		},
		evPairingCompleted: {
			in:     linked,
			ignore: true,
			handle: func(k *Keyboard, ev any) error { return k.onPairingCompleted(ev.(ble.PairingCompleted)) },
		},
		evPasskeyRequested: {
			in:     linked,
			handle: func(k *Keyboard, _ any) error { return k.onPasskeyRequested() },
		},
		evDivApprovalRequested: {
			in:     states(StateConnected),
			handle: func(k *Keyboard, ev any) error { return k.onDivApprovalRequested(ev.(ble.DivApprovalRequested)) },
		},
		evConnParamUpdateConfirmed: {
			in:     linked,
			handle: func(k *Keyboard, ev any) error { return k.onConnParamUpdateConfirmed(ev.(ble.ConnParamUpdateConfirmed)) },
		},
		evConnectionUpdated: {
			in:     linkedOrEnd,
			handle: func(k *Keyboard, ev any) error { return k.onConnectionUpdated(ev.(ble.ConnectionUpdated)) },
		},
		evConnParamUpdateIndicated: {
			in:     linked,
			handle: func(k *Keyboard, _ any) error { return k.onConnParamUpdateIndicated() },
		},
		evNotificationConfirmed: {
			in:     linked,
			handle: func(k *Keyboard, ev any) error { return k.onNotificationConfirmed(ev.(ble.NotificationConfirmed)) },
		},
		evTxBufferFreed: {
			in:     anyState,
			handle: func(k *Keyboard, _ any) error { return k.onTxBufferFreed() },
		},
		evKeyReport: {
			in:     anyState,
			handle: func(k *Keyboard, ev any) error { return k.onKeyReport(ev.(KeyReport)) },
		},
		evPairingButton: {
			in:     anyState,
			handle: func(k *Keyboard, ev any) error { return k.onPairingButton(ev.(PairingButton)) },
		},
		evBatteryLow: {
			in:     anyState,
			handle: func(k *Keyboard, ev any) error { return k.onBatteryLow(ev.(BatteryLow)) },
		},
		evTimerExpired: {
			in:     anyState,
			handle: func(k *Keyboard, ev any) error { return k.onTimer(timer.Expiry(ev.(TimerExpired))) },
		},
	}
}

// onTimer dispatches an expiry that is still current.
func (k *Keyboard) onTimer(e timer.Expiry) error {
	if !k.timers.Claim(e) {
		k.log.Debug("[KBD] stale timer", "timer", e)
		return nil
	}
	switch e.Role {
	case roleIdle:
		return k.onIdleTimeout()
	case roleAdvert:
		return k.onAdvertTimeout()
	case roleConnParam:
		return k.onConnParamTimer()
	case roleBondingChance:
		return k.onBondingChanceTimeout()
	case roleButtonDebounce:
		return k.onButtonDebounced()
	case roleBondRemoval:
		return k.removeBond()
	case rolePendingReport:
		return k.drain()
	case roleRandomAddress:
		return k.onRandomAddressTimer()
	}
	return nil
}

func (k *Keyboard) onBatteryLow(ev BatteryLow) error {
	k.battery.SetLevel(ev.Level)
	k.log.Warn("[KBD] battery low", "level", k.battery.Level())
	if k.sess.State.Linked() {
		k.notifyService(k.battery.Notification())
	}
	return nil
}
