package keyboard

import (
	"fmt"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/gatt"
)

// advertisedServices are listed in the advertising data.
var advertisedServices = []uint16{gatt.UUIDHIDService, gatt.UUIDBatteryService, gatt.UUIDScanParamService}

// setState moves to s and runs its entry action. Moving to the current
// state does nothing.
func (k *Keyboard) setState(s State) error {
	old := k.sess.State
	if old == s {
		return nil
	}
	k.sess.State = s
	k.log.Info("[KBD] state changed", "from", old, "to", s)

	if old == StateInit {
		if err := k.updateWhitelist(); err != nil {
			return err
		}
	}

	switch s {
	case StateDirectAdvert:
		return k.advertise(ble.AdvertDirected)
	case StateFastAdvertising:
		k.timers.Start(roleAdvert, k.cfg.Advertising.FastTimeout.Duration)
		return k.advertise(ble.AdvertFast)
	case StateSlowAdvertising:
		k.timers.Start(roleAdvert, k.cfg.Advertising.SlowTimeout.Duration)
		return k.advertise(ble.AdvertSlow)
	case StateConnected:
		k.resetIdleTimer()
	case StateDisconnecting:
		reason := ble.ReasonRemoteUserTerminated
		if k.sess.AuthFailed {
			reason = ble.ReasonAuthenticationFailure
		}
		if err := k.link.Disconnect(k.sess.Conn, reason); err != nil {
			k.log.Error("[KBD] disconnect failed", "conn", k.sess.Conn, "error", err)
		}
	}
	return nil
}

// directTarget returns the peer to advertise to directly, if any. Without
// privacy that is a bonded peer with a fixed address; with privacy it is the
// reconnection address the host wrote.
func (k *Keyboard) directTarget() (ble.Addr, bool) {
	if !k.sess.Bonded {
		return ble.Addr{}, false
	}
	if k.gap.PrivacyEnabled() {
		return k.gap.ReconnectionAddress()
	}
	if k.sess.BondedAddr.IsPrivate() {
		return ble.Addr{}, false
	}
	return k.sess.BondedAddr, true
}

// startAdvert starts a new advertising run from the top.
func (k *Keyboard) startAdvert() error {
	if _, ok := k.directTarget(); ok {
		return k.setState(StateDirectAdvert)
	}
	return k.setState(StateFastAdvertising)
}

func (k *Keyboard) advertise(mode ble.AdvertMode) error {
	p := ble.AdvertParams{
		Mode:      mode,
		OwnRandom: k.gap.PrivacyEnabled(),
	}
	switch mode {
	case ble.AdvertDirected:
		p.Target, _ = k.directTarget()
	default:
		if mode == ble.AdvertFast {
			p.MinInterval = k.cfg.Advertising.FastMinInterval.Duration
			p.MaxInterval = k.cfg.Advertising.FastMaxInterval.Duration
		} else {
			p.MinInterval = k.cfg.Advertising.SlowMinInterval.Duration
			p.MaxInterval = k.cfg.Advertising.SlowMaxInterval.Duration
		}
		p.Discoverable = ble.DiscoverLimited
		if k.sess.Bonded {
			p.Discoverable = ble.DiscoverNone
			p.Whitelist = len(k.whitelist()) > 0
		}
		p.LocalName = k.gap.DeviceName()
		p.Data, p.ScanResponse = gatt.BuildAdvertisingData(gatt.AdvertOptions{
			Name:         p.LocalName,
			Appearance:   k.gap.Appearance(),
			TxPower:      k.cfg.Device.TxPower,
			Services:     advertisedServices,
			Discoverable: p.Discoverable,
		})
	}
	k.log.Debug("[KBD] advertising", "mode", mode, "whitelist", p.Whitelist, "target", p.Target)
	if err := k.link.StartAdvertising(p); err != nil {
		return k.fault(FaultAdvertising, fmt.Errorf("start %s advertising: %w", mode, err))
	}
	return nil
}

func (k *Keyboard) stopAdvertising() error {
	k.timers.Stop(roleAdvert)
	if err := k.link.StopAdvertising(); err != nil {
		return k.fault(FaultAdvertising, fmt.Errorf("stop advertising: %w", err))
	}
	return nil
}

func (k *Keyboard) onDatabaseRegistered(ev ble.DatabaseRegistered) error {
	if ev.Err != nil {
		return k.fault(FaultDatabaseRegistration, ev.Err)
	}
	if k.cfg.Features.Privacy {
		k.rotateAddress()
	}
	return k.startAdvert()
}

func (k *Keyboard) onAdvertTimeout() error {
	switch k.sess.State {
	case StateFastAdvertising, StateSlowAdvertising:
		return k.stopAdvertising()
	}
	return nil
}

// onAdvertisingStopped moves to the next advertising phase once the link
// confirms the stop.
func (k *Keyboard) onAdvertisingStopped() error {
	if k.sess.PairingPressed {
		k.sess.PairingPressed = false
		if err := k.clearWhitelist(); err != nil {
			return err
		}
		if k.sess.State == StateFastAdvertising {
			k.timers.Start(roleAdvert, k.cfg.Advertising.FastTimeout.Duration)
			return k.advertise(ble.AdvertFast)
		}
		return k.setState(StateFastAdvertising)
	}
	if k.sess.StartAdverts {
		k.sess.StartAdverts = false
		return k.startAdvert()
	}
	if k.sess.State == StateFastAdvertising {
		return k.setState(StateSlowAdvertising)
	}
	return k.setState(StateIdle)
}

func (k *Keyboard) onAdvertisingStopFailed(ev ble.AdvertisingStopped) error {
	k.log.Error("[KBD] advertising stop failed", "error", ev.Err)
	return nil
}

// rotateAddress installs a new private address and schedules the next one.
func (k *Keyboard) rotateAddress() {
	addr, err := k.sec.RegenerateAddress()
	if err != nil {
		k.log.Warn("[KBD] private address generation failed", "error", err)
	} else if err := k.link.SetRandomAddress(addr); err != nil {
		k.log.Warn("[KBD] set private address failed", "addr", addr, "error", err)
	}
	k.timers.Start(roleRandomAddress, k.cfg.Features.RandomAddressPeriod.Duration)
}

func (k *Keyboard) onRandomAddressTimer() error {
	// The address cannot change under a running advert.
	if k.sess.State.Advertising() {
		k.timers.Start(roleRandomAddress, k.cfg.Features.RandomAddressRetry.Duration)
		return nil
	}
	k.rotateAddress()
	return nil
}
