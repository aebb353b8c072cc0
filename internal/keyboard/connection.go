package keyboard

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chaz8081/blekbd/internal/ble"
)

func (k *Keyboard) onConnectionComplete(ev ble.ConnectionComplete) error {
	k.sess.Params = ev.Params
	return nil
}

func (k *Keyboard) onConnected(ev ble.Connected) error {
	k.timers.Stop(roleAdvert)

	switch ev.Status {
	case ble.ConnSuccess:
	case ble.ConnDirectedTimeout:
		if k.sess.PairingPressed {
			k.sess.PairingPressed = false
			if err := k.clearWhitelist(); err != nil {
				return err
			}
		}
		return k.setState(StateFastAdvertising)
	default:
		return k.fault(FaultConnection, fmt.Errorf("advertising ended with status %d", ev.Status))
	}

	k.sess.Conn = ev.Conn
	k.sess.Peer = ev.Peer
	k.log = k.base.With("session", uuid.New().String())
	k.log.Info("[KBD] connected", "peer", ev.Peer, "conn", ev.Conn, "params", k.sess.Params)

	if k.sess.Bonded {
		bonded := k.sess.BondedAddr
		match := ev.Peer == bonded
		if bonded.IsResolvableRandom() {
			match = k.sec.MatchAddress(ev.Peer, k.sess.IRK)
		}
		k.link.SetLTKAvailable(ev.Peer, match)
		if bonded.IsResolvableRandom() && !match {
			k.log.Warn("[KBD] peer does not resolve against the bonded key", "peer", ev.Peer)
			k.sess.AuthFailed = true
			return k.setState(StateDisconnecting)
		}
	}

	if !k.cfg.Features.ProprietaryBoot && !ev.Peer.IsResolvableRandom() {
		if err := k.link.RequestSecurity(ev.Peer); err != nil {
			k.log.Warn("[KBD] security request failed", "error", err)
		}
	}
	if err := k.setState(StateConnected); err != nil {
		return err
	}
	if !k.timers.Running(roleConnParam) && k.outsidePreference() {
		k.sess.ConnParamAttempts = 0
		k.startParamPhase(phasePause)
	}
	return nil
}

func (k *Keyboard) onDisconnected(ev ble.Disconnected) error {
	k.log.Info("[KBD] disconnected", "reason", ev.Reason, "pending", k.queue.Len())
	if k.ota.ResetRequired() {
		return ErrResetRequested
	}
	if k.bondMgmt.DeletionRequested() {
		k.sess.State = StateDisconnecting
		if err := k.deleteBond(); err != nil {
			return err
		}
	}
	if err := k.reinit(); err != nil {
		return err
	}

	if k.sess.RevokeCount >= k.cfg.Security.MaxRevokes {
		k.log.Warn("[KBD] too many rejected keys, staying idle", "revokes", k.sess.RevokeCount)
		k.sess.RevokeCount = 0
		return k.setState(StateIdle)
	}
	if ev.Reason == ble.ReasonConnectionTimeout || !k.sess.Bonded || k.sess.DataPending {
		return k.startAdvert()
	}
	return k.setState(StateIdle)
}

func (k *Keyboard) onEncryptionChanged(ev ble.EncryptionChanged) error {
	if ev.Err != nil {
		k.log.Warn("[KBD] encryption change failed", "error", ev.Err)
	} else {
		k.sess.EncryptionEnabled = ev.Enabled
		k.timers.Stop(roleBondingChance)
		k.log.Info("[KBD] encryption changed", "enabled", ev.Enabled)
	}
	if !k.sess.EncryptionEnabled {
		return nil
	}

	k.notifyService(k.battery.Notification())
	k.notifyService(k.scan.RefreshNotification())

	if !k.sess.DataPending {
		return nil
	}
	if k.cfg.Features.PendingReportWait {
		k.timers.Start(rolePendingReport, k.cfg.Features.PendingReportPeriod.Duration)
		return nil
	}
	return k.drain()
}

// notifyService sends a service notification outside of the report flow.
func (k *Keyboard) notifyService(handle uint16, value []byte, ok bool) {
	if !ok || k.sess.Conn == ble.InvalidConn {
		return
	}
	if err := k.link.Notify(k.sess.Conn, handle, value); err != nil {
		k.log.Warn("[KBD] notification failed", "handle", fmt.Sprintf("0x%04X", handle), "error", err)
	}
}

func (k *Keyboard) onIdleTimeout() error {
	if k.sess.State != StateConnected {
		return nil
	}
	k.log.Info("[KBD] idle, disconnecting", "dropped", k.queue.Len())
	k.queue.Reset()
	k.sess.DataPending = false
	return k.setState(StateDisconnecting)
}

func (k *Keyboard) onAttributeAccess(ev ble.AttributeAccess) error {
	if k.sess.phase == phaseCentral && k.timers.Running(roleConnParam) {
		k.startParamPhase(phaseCentral)
	}

	if !ev.Write {
		status, value := k.db.Read(ev.Handle)
		k.link.AccessResponse(ev.Conn, ev.Handle, status, value)
		return nil
	}

	before := k.notificationsOn()
	status := k.db.Write(ev.Handle, ev.Value)
	k.link.AccessResponse(ev.Conn, ev.Handle, status, nil)

	if k.bondMgmt.DeletionRequested() && k.bondMgmt.HandlesHandle(ev.Handle) {
		return k.deleteBond()
	}
	if k.cfg.Features.PendingReportWait {
		if k.timers.Running(rolePendingReport) {
			k.timers.Start(rolePendingReport, k.cfg.Features.PendingReportPeriod.Duration)
		}
		return nil
	}
	if !before && k.notificationsOn() && k.sess.DataPending {
		return k.drain()
	}
	return nil
}

// notificationsOn reports whether the host subscribed to key data on either
// HID service.
func (k *Keyboard) notificationsOn() bool {
	if k.boot != nil && k.boot.NotificationsEnabled() {
		return true
	}
	return k.hidSvc.NotificationsEnabled()
}
