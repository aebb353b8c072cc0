package keyboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/gatt"
	"github.com/chaz8081/blekbd/internal/hid"
	"github.com/chaz8081/blekbd/internal/store"
)

func TestStartupAdvertisesFastWhenUnbonded(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, StateInit, h.state())

	h.start()

	assert.Equal(t, StateFastAdvertising, h.state())
	require.Len(t, h.link.adverts, 1)
	adv := h.link.adverts[0]
	assert.Equal(t, ble.AdvertFast, adv.Mode)
	assert.Equal(t, ble.DiscoverLimited, adv.Discoverable)
	assert.False(t, adv.Whitelist)
	assert.Equal(t, 20*time.Millisecond, adv.MinInterval)
	assert.Equal(t, "BLE Keyboard", adv.LocalName)
	assert.NotEmpty(t, adv.Data)
	require.Len(t, h.link.whitelists, 1, "whitelist installed when leaving init")
	assert.Empty(t, h.link.whitelists[0])
}

func TestStartupDirectedWhenBondedToPublicAddress(t *testing.T) {
	h := newHarness(t, withBond(hostAddr, ble.IRK{}))
	require.True(t, h.kb.Session().Bonded)

	h.start()

	assert.Equal(t, StateDirectAdvert, h.state())
	adv := h.link.lastAdvert()
	assert.Equal(t, ble.AdvertDirected, adv.Mode)
	assert.Equal(t, hostAddr, adv.Target)
	assert.Equal(t, []ble.Addr{hostAddr}, h.link.lastWhitelist())
}

func TestStartupFastWhenBondedToPrivateAddress(t *testing.T) {
	private := ble.Addr{Type: ble.AddrRandom, MAC: [6]byte{0x4A, 1, 2, 3, 4, 5}}
	h := newHarness(t, withBond(private, ble.IRK{1}))

	h.start()

	assert.Equal(t, StateFastAdvertising, h.state())
	adv := h.link.lastAdvert()
	assert.Equal(t, ble.DiscoverNone, adv.Discoverable)
	assert.False(t, adv.Whitelist, "private peers cannot be whitelisted")
}

func TestDatabaseRegistrationFailureFaults(t *testing.T) {
	h := newHarness(t)
	err := h.kb.Handle(ble.DatabaseRegistered{Err: errors.New("no room")})

	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FaultDatabaseRegistration, f.Code)
	assert.Equal(t, StateInit, f.State)
}

func TestAdvertisingPhases(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.advance(30 * time.Second)
	assert.Equal(t, 1, h.link.stops)
	assert.Equal(t, StateFastAdvertising, h.state(), "waits for the stop to be confirmed")

	h.handle(ble.AdvertisingStopped{})
	assert.Equal(t, StateSlowAdvertising, h.state())
	adv := h.link.lastAdvert()
	assert.Equal(t, ble.AdvertSlow, adv.Mode)
	assert.Equal(t, time.Second, adv.MinInterval)

	h.advance(60 * time.Second)
	assert.Equal(t, 2, h.link.stops)
	h.handle(ble.AdvertisingStopped{})
	assert.Equal(t, StateIdle, h.state())
	assert.Len(t, h.link.adverts, 2)
}

func TestAdvertisingStopFailureIsLogged(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.handle(ble.AdvertisingStopped{Err: errors.New("controller busy")})
	assert.Equal(t, StateFastAdvertising, h.state())
}

func TestDirectedTimeoutFallsBackToFast(t *testing.T) {
	h := newHarness(t, withBond(hostAddr, ble.IRK{}))
	h.start()

	h.handle(ble.Connected{Status: ble.ConnDirectedTimeout})

	assert.Equal(t, StateFastAdvertising, h.state())
	adv := h.link.lastAdvert()
	assert.Equal(t, ble.AdvertFast, adv.Mode)
	assert.True(t, adv.Whitelist)
	assert.Equal(t, ble.DiscoverNone, adv.Discoverable)
}

func TestConnectionFailureFaults(t *testing.T) {
	h := newHarness(t)
	h.start()

	err := h.kb.Handle(ble.Connected{Status: ble.ConnFailed})

	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FaultConnection, f.Code)
}

func TestAdvertisingFailureFaults(t *testing.T) {
	h := newHarness(t)
	h.link.advertErr = errors.New("radio off")

	err := h.kb.Handle(ble.DatabaseRegistered{})

	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FaultAdvertising, f.Code)
}

func TestConnectedRequestsSecurity(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.connect(hostAddr, inPreference)

	assert.Equal(t, StateConnected, h.state())
	s := h.kb.Session()
	assert.Equal(t, hostAddr, s.Peer)
	assert.Equal(t, ble.ConnHandle(1), s.Conn)
	assert.Equal(t, inPreference, s.Params)
	assert.Equal(t, 1, h.link.securityRequests)
	_, running := h.kb.timers.Duration(roleIdle)
	assert.True(t, running, "idle timer armed on connect")
}

func TestInvalidStateFaults(t *testing.T) {
	tests := []struct {
		name string
		ev   any
	}{
		{"encryption while advertising", ble.EncryptionChanged{Enabled: true}},
		{"database registered twice", ble.DatabaseRegistered{}},
		{"disconnect while advertising", ble.Disconnected{Reason: ble.ReasonRemoteUserTerminated}},
		{"passkey request while advertising", ble.PasskeyRequested{}},
		{"notification confirm while advertising", ble.NotificationConfirmed{Handle: gatt.HandleHIDInputReport}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.start()

			err := h.kb.Handle(tt.ev)

			require.ErrorIs(t, err, ErrInvalidState)
			var f *Fault
			require.ErrorAs(t, err, &f)
			assert.Equal(t, FaultInvalidState, f.Code)
			assert.Equal(t, StateFastAdvertising, f.State)
			assert.Equal(t, tt.ev, f.Event)
		})
	}
}

func TestConnectedInInitFaults(t *testing.T) {
	h := newHarness(t)
	err := h.kb.Handle(ble.Connected{Conn: 1, Peer: hostAddr})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRacingEventsAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.handle(ble.AttributeAccess{Conn: 1, Handle: gatt.HandleBatteryLevel})
	h.handle(ble.PairingCompleted{Status: ble.PairingSuccess, Peer: hostAddr})

	assert.Equal(t, StateFastAdvertising, h.state())
	assert.False(t, h.kb.Session().Bonded)
	assert.Empty(t, h.link.responses)
}

func TestUnknownEventFaults(t *testing.T) {
	h := newHarness(t)
	h.start()

	err := h.kb.Handle(struct{}{})

	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FaultInvalidState, f.Code)
	assert.Equal(t, StateFastAdvertising, f.State)
	assert.Equal(t, struct{}{}, f.Event)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStaleTimerIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.start()
	gen := h.kb.timers.Start(roleAdvert, time.Minute)
	h.kb.timers.Start(roleAdvert, time.Minute)

	h.handle(TimerExpired{Role: roleAdvert, Gen: gen})

	assert.Zero(t, h.link.stops)
	assert.True(t, h.kb.timers.Running(roleAdvert))
}

func TestIdleTimeoutDisconnectsAndDropsQueue(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.connect(hostAddr, inPreference)
	h.press(0x04)
	require.Equal(t, 1, h.kb.QueueLen(), "not encrypted yet")

	h.advance(30 * time.Minute)

	assert.Equal(t, StateDisconnecting, h.state())
	assert.Equal(t, []ble.DisconnectReason{ble.ReasonRemoteUserTerminated}, h.link.disconnects)
	assert.Zero(t, h.kb.QueueLen())
	assert.False(t, h.kb.Session().DataPending)
}

func TestDisconnectKeepsQueueAndReadvertises(t *testing.T) {
	h := newHarness(t, withBond(hostAddr, ble.IRK{}))
	h.start()
	h.connect(hostAddr, inPreference)
	h.press(0x04)

	h.handle(ble.Disconnected{Conn: 1, Reason: ble.ReasonRemoteUserTerminated})

	assert.Equal(t, StateDirectAdvert, h.state())
	assert.Equal(t, 1, h.kb.QueueLen())
	s := h.kb.Session()
	assert.True(t, s.DataPending)
	assert.Equal(t, ble.InvalidConn, s.Conn)
	assert.False(t, s.EncryptionEnabled)
}

func TestDisconnectBondedWithoutDataGoesIdle(t *testing.T) {
	h := newHarness(t, withBond(hostAddr, ble.IRK{}))
	h.start()
	h.connect(hostAddr, inPreference)

	h.handle(ble.Disconnected{Conn: 1, Reason: ble.ReasonRemoteUserTerminated})
	assert.Equal(t, StateIdle, h.state())

	// A key press wakes the keyboard up again.
	h.press(0x04)
	assert.Equal(t, StateDirectAdvert, h.state())
	assert.Equal(t, 1, h.kb.QueueLen())
}

func TestDisconnectOnLinkLossReadvertises(t *testing.T) {
	h := newHarness(t, withBond(hostAddr, ble.IRK{}))
	h.start()
	h.connect(hostAddr, inPreference)

	h.handle(ble.Disconnected{Conn: 1, Reason: ble.ReasonConnectionTimeout})

	assert.Equal(t, StateDirectAdvert, h.state())
}

func TestDisconnectUnbondedReadvertises(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.connect(hostAddr, inPreference)

	h.handle(ble.Disconnected{Conn: 1, Reason: ble.ReasonRemoteUserTerminated})

	assert.Equal(t, StateFastAdvertising, h.state())
}

func TestKeyInSlowAdvertisingRestartsAdverts(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.advance(30 * time.Second)
	h.handle(ble.AdvertisingStopped{})
	require.Equal(t, StateSlowAdvertising, h.state())

	h.press(0x04)
	h.press(0x05)
	assert.Equal(t, 2, h.link.stops, "one stop for the key press")
	assert.True(t, h.kb.Session().StartAdverts)

	h.handle(ble.AdvertisingStopped{})
	assert.Equal(t, StateFastAdvertising, h.state())
	assert.Equal(t, ble.AdvertFast, h.link.lastAdvert().Mode)
	assert.Equal(t, 2, h.kb.QueueLen())
}

func TestOTAResetOnDisconnect(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.connect(hostAddr, inPreference)
	h.write(gatt.HandleOTAControl, 0x01)
	assert.Equal(t, ble.AttSuccess, h.link.responses[gatt.HandleOTAControl])

	err := h.kb.Handle(ble.Disconnected{Conn: 1, Reason: ble.ReasonRemoteUserTerminated})
	assert.ErrorIs(t, err, ErrResetRequested)
}

func TestAttributeReadIsAnswered(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.connect(hostAddr, inPreference)

	h.handle(ble.AttributeAccess{Conn: 1, Handle: gatt.HandleBatteryLevel})
	h.handle(ble.AttributeAccess{Conn: 1, Handle: 0x0FFF})

	assert.Equal(t, ble.AttSuccess, h.link.responses[gatt.HandleBatteryLevel])
	assert.Equal(t, ble.AttReadNotPermitted, h.link.responses[0x0FFF])
}

func TestBatteryLowNotifiesWhenConnected(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.handle(BatteryLow{Level: 9})
	assert.Empty(t, h.link.notifies)

	h.connect(hostAddr, inPreference)
	h.write(gatt.HandleBatteryLevelCCCD, 1, 0)
	h.handle(BatteryLow{Level: 5})

	require.Len(t, h.link.notifies, 1)
	assert.Equal(t, notification{handle: gatt.HandleBatteryLevel, value: []byte{5}}, h.link.notifies[0])
}

func TestEncryptionNotifiesBatteryAndScanRefresh(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.connect(hostAddr, inPreference)
	h.write(gatt.HandleBatteryLevelCCCD, 1, 0)
	h.write(gatt.HandleScanRefreshCCCD, 1, 0)

	h.handle(ble.EncryptionChanged{Enabled: true})

	require.Len(t, h.link.notifies, 2)
	assert.Equal(t, gatt.HandleBatteryLevel, h.link.notifies[0].handle)
	assert.Equal(t, []byte{80}, h.link.notifies[0].value)
	assert.Equal(t, gatt.HandleScanRefresh, h.link.notifies[1].handle)
}

func TestRandomAddressRotation(t *testing.T) {
	h := newHarness(t, withConfig(func(c *config.Config) { c.Features.Privacy = true }))
	h.start()
	require.Len(t, h.link.randomAddrs, 1)

	// Walk the adverts down to idle.
	h.advance(30 * time.Second)
	h.handle(ble.AdvertisingStopped{})
	h.advance(60 * time.Second)
	h.handle(ble.AdvertisingStopped{})
	require.Equal(t, StateIdle, h.state())

	h.advance(15 * time.Minute)
	assert.Len(t, h.link.randomAddrs, 2)
	assert.Equal(t, 2, h.sec.regenerated)
}

func TestRandomAddressDeferredWhileAdvertising(t *testing.T) {
	h := newHarness(t, withConfig(func(c *config.Config) {
		c.Features.Privacy = true
		c.Advertising.FastTimeout = config.D(time.Hour)
	}))
	h.start()

	h.advance(15 * time.Minute)

	assert.Len(t, h.link.randomAddrs, 1)
	d, running := h.kb.timers.Duration(roleRandomAddress)
	require.True(t, running)
	assert.Equal(t, 30*time.Second, d)
}

func TestRunProcessesPostedEvents(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.kb.Run(ctx) }()

	h.kb.Post(ble.DatabaseRegistered{})
	require.Eventually(t, func() bool { return h.kb.State() == StateFastAdvertising }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunStopsOnFault(t *testing.T) {
	h := newHarness(t)
	done := make(chan error, 1)
	go func() { done <- h.kb.Run(context.Background()) }()

	h.kb.Post(ble.DatabaseRegistered{})
	h.kb.Post(ble.EncryptionChanged{Enabled: true})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInvalidState)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on an invalid event")
	}
}

func TestRunKeepsUpWithKeyBurst(t *testing.T) {
	var (
		kb        *Keyboard
		delivered atomic.Int64
	)
	lb := ble.NewLoopback(func(ev any) { kb.Post(ev) }, ble.LoopbackOptions{
		Peer:  hostAddr,
		CCCDs: []uint16{gatt.HandleHIDInputCCCD, gatt.HandleHIDConsumerCCCD},
		OnNotify: func(handle uint16, _ []byte) {
			if handle == gatt.HandleHIDInputReport {
				delivered.Add(1)
			}
		},
	})
	kb, err := New(Options{Link: lb, Security: lb, Store: store.NewMemory(store.DefaultSize), Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lb.Run(ctx)
	done := make(chan error, 1)
	go func() { done <- kb.Run(ctx) }()

	kb.Post(ble.DatabaseRegistered{})
	require.Eventually(t, func() bool { return kb.Session().EncryptionEnabled }, 2*time.Second, 5*time.Millisecond)

	// Far more reports than the mailbox holds, each answered by the link
	// from inside the handler.
	for i := 0; i < 4*mailboxSize; i++ {
		var raw hid.RawReport
		if i%2 == 0 {
			raw[2] = hid.KeyA
		}
		kb.Post(KeyReport{Raw: raw})
	}

	require.Eventually(t, func() bool {
		s := kb.Session()
		return kb.QueueLen() == 0 && !s.TxInProgress
	}, 5*time.Second, 5*time.Millisecond, "delivery stalled")
	assert.Positive(t, delivered.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewLoadsBondFromStore(t *testing.T) {
	h := newHarness(t, withBond(hostAddr, ble.IRK{}))
	s := h.kb.Session()
	assert.True(t, s.Bonded)
	assert.Equal(t, hostAddr, s.BondedAddr)
	assert.Equal(t, testDiv, s.Div)

	b, err := store.ReadBond(h.st)
	require.NoError(t, err)
	assert.Equal(t, hostAddr, b.Addr)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fast advertising", StateFastAdvertising.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateDirectAdvert.Advertising())
	assert.True(t, StatePasskeyInput.Linked())
	assert.False(t, StateDisconnecting.Linked())
}
