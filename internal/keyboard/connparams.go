package keyboard

import (
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
)

// outsidePreference reports whether the link parameters miss the preferred
// set: interval out of range, or less slave latency than wanted.
func (k *Keyboard) outsidePreference() bool {
	pref := k.cfg.Connection.Preferred.Request()
	p := k.sess.Params
	return p.Interval < pref.MinInterval || p.Interval > pref.MaxInterval || p.Latency < pref.Latency
}

func (k *Keyboard) startParamPhase(phase paramPhase) {
	d := k.cfg.Connection.PausePeriod.Duration
	switch phase {
	case phaseCentral:
		d = k.cfg.Connection.CentralPeriod.Duration
	case phaseRetry:
		d = k.cfg.Connection.RetryPeriod.Duration
	}
	k.sess.phase = phase
	k.timers.Start(roleConnParam, d)
}

func (k *Keyboard) onConnParamTimer() error {
	if !k.sess.State.Linked() {
		k.sess.phase = phaseNone
		return nil
	}
	if k.sess.phase == phasePause {
		k.startParamPhase(phaseCentral)
		return nil
	}
	k.sess.phase = phaseNone
	return k.requestConnParams()
}

// requestConnParams asks the host for the preferred set, and for the
// alternate set once the preferred one has been refused too often.
func (k *Keyboard) requestConnParams() error {
	k.sess.ConnParamAttempts++
	set := k.cfg.Connection.Preferred
	if k.sess.ConnParamAttempts > k.cfg.Connection.SelfAttempts {
		set = k.cfg.Connection.Alternate
	}
	if k.hidSvc.Suspended() {
		k.log.Debug("[KBD] host suspended, skipping parameter update")
		return nil
	}
	req := set.Request()
	k.log.Debug("[KBD] requesting connection parameters", "attempt", k.sess.ConnParamAttempts,
		"min", ble.IntervalDuration(req.MinInterval), "max", ble.IntervalDuration(req.MaxInterval), "latency", req.Latency)
	if err := k.link.RequestConnParams(k.sess.Conn, k.sess.Peer, req); err != nil {
		return k.fault(FaultConnParamUpdate, fmt.Errorf("request connection parameters: %w", err))
	}
	return nil
}

func (k *Keyboard) onConnParamUpdateConfirmed(ev ble.ConnParamUpdateConfirmed) error {
	if ev.Err == nil {
		return nil
	}
	k.log.Debug("[KBD] parameter update refused", "attempt", k.sess.ConnParamAttempts, "error", ev.Err)
	if k.sess.ConnParamAttempts < k.cfg.Connection.MaxAttempts {
		k.startParamPhase(phaseRetry)
	}
	return nil
}

func (k *Keyboard) onConnectionUpdated(ev ble.ConnectionUpdated) error {
	k.sess.Params = ev.Params
	k.log.Debug("[KBD] connection updated", "params", ev.Params)
	return nil
}

func (k *Keyboard) onConnParamUpdateIndicated() error {
	k.timers.Stop(roleConnParam)
	k.sess.phase = phaseNone
	if k.outsidePreference() {
		k.sess.ConnParamAttempts = 0
		k.startParamPhase(phaseRetry)
	}
	return nil
}
