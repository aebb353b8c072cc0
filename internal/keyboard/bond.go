package keyboard

import (
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/store"
)

func (k *Keyboard) onKeysDistributed(ev ble.KeysDistributed) error {
	if ev.HasDiv {
		k.sess.Div = ev.Div
		if err := store.WriteDiv(k.st, ev.Div); err != nil {
			return k.fault(FaultStore, err)
		}
	}
	if ev.HasIRK {
		k.sess.IRK = ev.IRK
		if err := store.WriteIRK(k.st, ev.IRK); err != nil {
			return k.fault(FaultStore, err)
		}
	}
	return nil
}

func (k *Keyboard) onPairingAuthRequested(ev ble.PairingAuthRequested) error {
	accept := !k.sess.Bonded
	k.log.Debug("[KBD] pairing requested", "accept", accept)
	k.sec.PairingAuthResponse(ev.Conn, accept)
	return nil
}

func (k *Keyboard) onPairingCompleted(ev ble.PairingCompleted) error {
	k.log.Info("[KBD] pairing completed", "status", ev.Status, "peer", ev.Peer)
	switch ev.Status {
	case ble.PairingSuccess:
		k.timers.Stop(roleBondingChance)
		peer := ev.Peer
		if peer.IsZero() {
			peer = k.sess.Peer
		}
		k.sess.Bonded = true
		k.sess.BondedAddr = peer
		bond := store.Bond{Bonded: true, Addr: peer, Div: k.sess.Div, IRK: k.sess.IRK}
		if err := store.WriteBond(k.st, bond); err != nil {
			return k.fault(FaultStore, err)
		}
		k.sess.RevokeCount = 0
		return k.updateWhitelist()

	case ble.PairingRepeatedAttempts:
		return k.setState(StateDisconnecting)

	default:
		if k.sess.Bonded {
			// The host lost its keys; give it a while to pair again.
			k.sess.EncryptionEnabled = false
			k.timers.Start(roleBondingChance, k.cfg.Security.BondingChance.Duration)
		} else if !k.timers.Running(roleBondingChance) {
			k.timers.Start(roleBondingChance, k.cfg.Security.PairingWait.Duration)
		}
		return nil
	}
}

func (k *Keyboard) onBondingChanceTimeout() error {
	if !k.sess.State.Linked() {
		return nil
	}
	k.log.Info("[KBD] host did not pair in time, disconnecting")
	return k.setState(StateDisconnecting)
}

func (k *Keyboard) onPasskeyRequested() error {
	k.passkey.Reset()
	return k.setState(StatePasskeyInput)
}

func (k *Keyboard) onDivApprovalRequested(ev ble.DivApprovalRequested) error {
	approve := k.sess.Bonded && ev.Div == k.sess.Div
	if approve {
		k.sess.RevokeCount = 0
	} else {
		k.sess.RevokeCount++
	}
	if k.cfg.Features.ProprietaryBoot {
		approve = true
	}
	k.log.Debug("[KBD] diversifier approval", "div", ev.Div, "approve", approve, "revokes", k.sess.RevokeCount)
	k.sec.DivApproval(ev.Conn, approve)
	if !approve && k.sess.RevokeCount >= k.cfg.Security.MaxRevokes {
		return k.setState(StateDisconnecting)
	}
	return nil
}

// whitelist returns the peers allowed to connect to an undirected advert.
func (k *Keyboard) whitelist() []ble.Addr {
	var addrs []ble.Addr
	if k.sess.Bonded && !k.sess.BondedAddr.IsPrivate() {
		addrs = append(addrs, k.sess.BondedAddr)
	}
	if k.gap.PrivacyEnabled() {
		if a, ok := k.gap.ReconnectionAddress(); ok {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func (k *Keyboard) updateWhitelist() error {
	addrs := k.whitelist()
	if err := k.link.SetWhitelist(addrs); err != nil {
		return k.fault(FaultWhitelist, fmt.Errorf("set whitelist of %d: %w", len(addrs), err))
	}
	return nil
}

func (k *Keyboard) clearWhitelist() error {
	if err := k.link.SetWhitelist(nil); err != nil {
		return k.fault(FaultWhitelist, fmt.Errorf("clear whitelist: %w", err))
	}
	return nil
}

// deleteBond carries out a Bond Management delete request. While the link
// is up it only disconnects; the bond goes once the link is down.
func (k *Keyboard) deleteBond() error {
	switch k.sess.State {
	case StateConnected, StatePasskeyInput:
		k.log.Info("[KBD] bond deletion requested, disconnecting")
		k.queue.Reset()
		k.sess.DataPending = false
		return k.setState(StateDisconnecting)

	case StateDisconnecting:
		addr := k.sess.BondedAddr
		k.sess.Bonded = false
		if err := store.WriteBonded(k.st, false); err != nil {
			return k.fault(FaultStore, err)
		}
		k.link.SetLTKAvailable(addr, false)
		if err := k.clearWhitelist(); err != nil {
			return err
		}
		k.bondMgmt.SetDeletionRequested(false)
		k.log.Info("[KBD] bond deleted", "peer", addr)
	}
	return nil
}

func (k *Keyboard) onPairingButton(ev PairingButton) error {
	if ev.Pressed {
		if k.timers.Running(roleButtonDebounce) {
			return nil
		}
		k.timers.Stop(roleBondRemoval)
		k.sess.buttonDown = true
		k.timers.Start(roleButtonDebounce, k.cfg.Security.ButtonDebounce.Duration)
		return nil
	}
	k.sess.buttonDown = false
	if !k.timers.Running(roleButtonDebounce) {
		k.timers.Stop(roleBondRemoval)
	}
	return nil
}

func (k *Keyboard) onButtonDebounced() error {
	if k.sess.buttonDown {
		k.timers.Start(roleBondRemoval, k.cfg.Security.ButtonHold.Duration)
	}
	return nil
}

// removeBond forgets the bonded host after the pairing button was held, and
// opens the keyboard to a new host.
func (k *Keyboard) removeBond() error {
	if k.sess.PairingPressed {
		return nil
	}
	k.log.Info("[KBD] pairing button held, removing bond", "peer", k.sess.BondedAddr, "state", k.sess.State)
	addr := k.sess.BondedAddr
	k.sess.Bonded = false
	if err := store.WriteBonded(k.st, false); err != nil {
		return k.fault(FaultStore, err)
	}
	k.link.SetLTKAvailable(addr, false)
	k.queue.Reset()
	k.sess.DataPending = false

	state := k.sess.State
	switch {
	case state.Linked():
		if err := k.clearWhitelist(); err != nil {
			return err
		}
		return k.setState(StateDisconnecting)

	case state.Advertising():
		if err := k.reinit(); err != nil {
			return err
		}
		k.sess.PairingPressed = true
		// A directed advert ends on its own; the whitelist is cleared then.
		if state == StateDirectAdvert {
			return nil
		}
		return k.stopAdvertising()

	case state == StateIdle:
		if err := k.reinit(); err != nil {
			return err
		}
		if err := k.clearWhitelist(); err != nil {
			return err
		}
		return k.setState(StateFastAdvertising)
	}
	return nil
}
