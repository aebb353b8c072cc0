package keyboard

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/gatt"
	"github.com/chaz8081/blekbd/internal/hid"
	"github.com/chaz8081/blekbd/internal/store"
	"github.com/chaz8081/blekbd/internal/timer"
)

var (
	hostAddr  = ble.Addr{Type: ble.AddrPublic, MAC: [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}}
	otherAddr = ble.Addr{Type: ble.AddrPublic, MAC: [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01}}
	testDiv   = uint16(0x1234)

	// inPreference matches the default preferred parameter set.
	inPreference = ble.ConnParams{Interval: 12, Latency: 4, Timeout: 200}
	// outOfPreference has a 30 ms interval.
	outOfPreference = ble.ConnParams{Interval: 24, Latency: 0, Timeout: 200}
)

type notification struct {
	handle uint16
	value  []byte
}

// fakeLink records every request. It never produces events on its own; the
// tests play the controller.
type fakeLink struct {
	adverts          []ble.AdvertParams
	stops            int
	disconnects      []ble.DisconnectReason
	notifies         []notification
	responses        map[uint16]ble.AttStatus
	paramRequests    []ble.ParamRequest
	whitelists       [][]ble.Addr
	txEvents         []bool
	ltk              map[ble.Addr]bool
	securityRequests int
	randomAddrs      []ble.Addr

	advertErr error
	paramErr  error
}

func newFakeLink() *fakeLink {
	return &fakeLink{responses: make(map[uint16]ble.AttStatus), ltk: make(map[ble.Addr]bool)}
}

func (l *fakeLink) StartAdvertising(p ble.AdvertParams) error {
	if l.advertErr != nil {
		return l.advertErr
	}
	l.adverts = append(l.adverts, p)
	return nil
}

func (l *fakeLink) StopAdvertising() error {
	l.stops++
	return nil
}

func (l *fakeLink) Disconnect(_ ble.ConnHandle, reason ble.DisconnectReason) error {
	l.disconnects = append(l.disconnects, reason)
	return nil
}

func (l *fakeLink) Notify(_ ble.ConnHandle, handle uint16, value []byte) error {
	l.notifies = append(l.notifies, notification{handle: handle, value: append([]byte(nil), value...)})
	return nil
}

func (l *fakeLink) AccessResponse(_ ble.ConnHandle, handle uint16, status ble.AttStatus, _ []byte) {
	l.responses[handle] = status
}

func (l *fakeLink) RequestConnParams(_ ble.ConnHandle, _ ble.Addr, p ble.ParamRequest) error {
	if l.paramErr != nil {
		return l.paramErr
	}
	l.paramRequests = append(l.paramRequests, p)
	return nil
}

func (l *fakeLink) SetWhitelist(addrs []ble.Addr) error {
	l.whitelists = append(l.whitelists, append([]ble.Addr(nil), addrs...))
	return nil
}

func (l *fakeLink) EnableTxEvents(_ ble.ConnHandle, on bool) error {
	l.txEvents = append(l.txEvents, on)
	return nil
}

func (l *fakeLink) SetLTKAvailable(peer ble.Addr, available bool) { l.ltk[peer] = available }

func (l *fakeLink) RequestSecurity(ble.Addr) error {
	l.securityRequests++
	return nil
}

func (l *fakeLink) SetRandomAddress(a ble.Addr) error {
	l.randomAddrs = append(l.randomAddrs, a)
	return nil
}

func (l *fakeLink) lastWhitelist() []ble.Addr {
	if len(l.whitelists) == 0 {
		return nil
	}
	return l.whitelists[len(l.whitelists)-1]
}

func (l *fakeLink) lastAdvert() ble.AdvertParams {
	if len(l.adverts) == 0 {
		return ble.AdvertParams{}
	}
	return l.adverts[len(l.adverts)-1]
}

type fakeSecurity struct {
	authResponses []bool
	divApprovals  []bool
	passkeys      []uint32
	negatives     int
	match         bool
	regenerated   int
}

func (s *fakeSecurity) PairingAuthResponse(_ ble.ConnHandle, accept bool) {
	s.authResponses = append(s.authResponses, accept)
}

func (s *fakeSecurity) DivApproval(_ ble.ConnHandle, approve bool) {
	s.divApprovals = append(s.divApprovals, approve)
}

func (s *fakeSecurity) PasskeyInput(_ ble.Addr, passkey uint32) {
	s.passkeys = append(s.passkeys, passkey)
}

func (s *fakeSecurity) PasskeyNegative(ble.Addr) { s.negatives++ }

func (s *fakeSecurity) MatchAddress(ble.Addr, ble.IRK) bool { return s.match }

func (s *fakeSecurity) RegenerateAddress() (ble.Addr, error) {
	s.regenerated++
	return ble.Addr{Type: ble.AddrRandom, MAC: [6]byte{0x40, 0, 0, 0, 0, byte(s.regenerated)}}, nil
}

type harness struct {
	t     *testing.T
	kb    *Keyboard
	link  *fakeLink
	sec   *fakeSecurity
	clock *timer.Manual
	st    *store.Memory
	cfg   *config.Config
}

type harnessOption func(*harness)

func withConfig(f func(*config.Config)) harnessOption {
	return func(h *harness) { f(h.cfg) }
}

// withBond seeds the store with a bond to addr.
func withBond(addr ble.Addr, irk ble.IRK) harnessOption {
	return func(h *harness) {
		// Let a throwaway keyboard lay out a fresh image first.
		_, err := New(Options{Config: h.cfg, Link: newFakeLink(), Security: &fakeSecurity{}, Store: h.st, Logger: quietLogger()})
		require.NoError(h.t, err)
		require.NoError(h.t, store.WriteBond(h.st, store.Bond{Bonded: true, Addr: addr, Div: testDiv, IRK: irk}))
	}
}

// withStore boots on an existing image, as after a power cycle.
func withStore(st *store.Memory) harnessOption {
	return func(h *harness) { h.st = st }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		link:  newFakeLink(),
		sec:   &fakeSecurity{},
		clock: timer.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		st:    store.NewMemory(store.DefaultSize),
		cfg:   config.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	kb, err := New(Options{
		Config:       h.cfg,
		Link:         h.link,
		Security:     h.sec,
		Store:        h.st,
		Clock:        h.clock,
		Logger:       quietLogger(),
		BatteryLevel: 80,
	})
	require.NoError(t, err)
	h.kb = kb
	return h
}

// handle runs ev and everything it caused, failing the test on error.
func (h *harness) handle(ev any) {
	h.t.Helper()
	require.NoError(h.t, h.kb.Handle(ev))
	h.flush()
}

// flush handles posted events, timer expiries included.
func (h *harness) flush() {
	h.t.Helper()
	for {
		select {
		case ev := <-h.kb.mailbox:
			require.NoError(h.t, h.kb.Handle(ev))
		default:
			return
		}
	}
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.flush()
}

func (h *harness) start() {
	h.t.Helper()
	h.handle(ble.DatabaseRegistered{})
}

func (h *harness) connect(peer ble.Addr, params ble.ConnParams) {
	h.t.Helper()
	h.handle(ble.ConnectionComplete{Params: params})
	h.handle(ble.Connected{Conn: 1, Peer: peer, Status: ble.ConnSuccess})
}

func (h *harness) write(handle uint16, value ...byte) {
	h.t.Helper()
	h.handle(ble.AttributeAccess{Conn: 1, Handle: handle, Write: true, Value: value})
}

// subscribe enables the input and consumer report notifications.
func (h *harness) subscribe() {
	h.t.Helper()
	h.write(gatt.HandleHIDInputCCCD, 1, 0)
	h.write(gatt.HandleHIDConsumerCCCD, 1, 0)
}

// ready connects, encrypts and subscribes.
func (h *harness) ready(peer ble.Addr) {
	h.t.Helper()
	h.start()
	h.connect(peer, inPreference)
	h.handle(ble.EncryptionChanged{Enabled: true})
	h.subscribe()
}

func (h *harness) press(keys ...uint8) {
	h.t.Helper()
	var raw hid.RawReport
	copy(raw[2:], keys)
	h.handle(KeyReport{Raw: raw})
}

func (h *harness) confirm(handle uint16) {
	h.t.Helper()
	h.handle(ble.NotificationConfirmed{Handle: handle})
}

func (h *harness) state() State { return h.kb.State() }

// sentInputKeys returns the first key of every input report sent so far.
func (h *harness) sentInputKeys() []uint8 {
	var keys []uint8
	for _, n := range h.link.notifies {
		if n.handle == gatt.HandleHIDInputReport {
			keys = append(keys, n.value[2])
		}
	}
	return keys
}

// confirmAll confirms reports until nothing is in flight.
func (h *harness) confirmAll() {
	h.t.Helper()
	for i := 0; h.kb.Session().TxInProgress; i++ {
		require.Less(h.t, i, 100, "delivery never settles")
		h.confirm(gatt.HandleHIDInputReport)
	}
}

func inputReport(key uint8) []byte {
	return []byte{0, 0, key, 0, 0, 0, 0, 0}
}
