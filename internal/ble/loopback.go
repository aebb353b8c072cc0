package ble

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// LoopbackOptions configures a Loopback host.
type LoopbackOptions struct {
	// Peer is the address the simulated host connects from.
	Peer Addr
	// Params are the link parameters reported on connect.
	Params ConnParams
	// CCCDs are enabled by the host right after encryption.
	CCCDs []uint16
	// OnNotify observes every delivered notification.
	OnNotify func(handle uint16, value []byte)
	// BusyEvery makes every Nth notification report ErrBusy. 0 disables.
	BusyEvery int
	// Manual stops the host from connecting when advertising starts.
	Manual bool
	// Bond makes the host pair and bond after encryption, distributing Div.
	Bond bool
	Div  uint16
}

// Loopback is an in-process host. It connects as soon as the keyboard
// advertises, enables notifications, and accepts every report. Events are
// delivered in order from Run.
type Loopback struct {
	LocalSecurity

	opts   LoopbackOptions
	events *pump

	mu          sync.Mutex
	advertising *AdvertParams
	conn        ConnHandle
	notified    int
	whitelist   []Addr
	txEvents    bool
}

// NewLoopback creates a loopback host that delivers events through post.
func NewLoopback(post func(any), opts LoopbackOptions) *Loopback {
	if opts.Params == (ConnParams{}) {
		opts.Params = ConnParams{Interval: 12, Latency: 0, Timeout: 200}
	}
	return &Loopback{
		opts:   opts,
		events: newPump(post),
		conn:   InvalidConn,
	}
}

// Run forwards queued events until ctx is cancelled.
func (l *Loopback) Run(ctx context.Context) { l.events.run(ctx) }

func (l *Loopback) emit(evs ...any) { l.events.push(evs...) }

// Connect simulates the host connecting to the current advert.
func (l *Loopback) Connect() {
	l.mu.Lock()
	if l.advertising == nil || l.conn != InvalidConn {
		l.mu.Unlock()
		return
	}
	l.advertising = nil
	l.conn = 1
	c := l.conn
	l.mu.Unlock()

	evs := []any{
		ConnectionComplete{Params: l.opts.Params},
		Connected{Conn: c, Peer: l.opts.Peer, Status: ConnSuccess},
		EncryptionChanged{Enabled: true},
	}
	if l.opts.Bond {
		evs = append(evs,
			KeysDistributed{HasDiv: true, Div: l.opts.Div},
			PairingCompleted{Status: PairingSuccess, Peer: l.opts.Peer},
		)
	}
	for _, h := range l.opts.CCCDs {
		evs = append(evs, AttributeAccess{Conn: c, Handle: h, Write: true, Value: []byte{0x01, 0x00}})
	}
	l.emit(evs...)
}

// HostDisconnect simulates the host dropping the link.
func (l *Loopback) HostDisconnect(reason DisconnectReason) {
	l.mu.Lock()
	c := l.conn
	l.conn = InvalidConn
	l.mu.Unlock()
	if c == InvalidConn {
		return
	}
	l.emit(Disconnected{Conn: c, Reason: reason})
}

// Advertising reports the current advert, if any.
func (l *Loopback) Advertising() (AdvertParams, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.advertising == nil {
		return AdvertParams{}, false
	}
	return *l.advertising, true
}

func (l *Loopback) StartAdvertising(p AdvertParams) error {
	l.mu.Lock()
	l.advertising = &p
	l.mu.Unlock()
	slog.Debug("[BLE] loopback advertising", "mode", p.Mode)
	if !l.opts.Manual {
		l.Connect()
	}
	return nil
}

func (l *Loopback) StopAdvertising() error {
	l.mu.Lock()
	l.advertising = nil
	l.mu.Unlock()
	l.emit(AdvertisingStopped{})
	return nil
}

func (l *Loopback) Disconnect(c ConnHandle, reason DisconnectReason) error {
	l.mu.Lock()
	if l.conn != c {
		l.mu.Unlock()
		return errors.New("ble: loopback: unknown connection")
	}
	l.conn = InvalidConn
	l.mu.Unlock()
	l.emit(Disconnected{Conn: c, Reason: ReasonLocalHostTerminated})
	return nil
}

func (l *Loopback) Notify(c ConnHandle, handle uint16, value []byte) error {
	l.mu.Lock()
	if l.conn != c {
		l.mu.Unlock()
		return errors.New("ble: loopback: unknown connection")
	}
	l.notified++
	busy := l.opts.BusyEvery > 0 && l.notified%l.opts.BusyEvery == 0
	l.mu.Unlock()

	if busy {
		l.emit(NotificationConfirmed{Handle: handle, Err: ErrBusy})
		return nil
	}
	if l.opts.OnNotify != nil {
		buf := make([]byte, len(value))
		copy(buf, value)
		l.opts.OnNotify(handle, buf)
	}
	l.emit(NotificationConfirmed{Handle: handle})
	return nil
}

func (l *Loopback) AccessResponse(ConnHandle, uint16, AttStatus, []byte) {}

func (l *Loopback) RequestConnParams(_ ConnHandle, _ Addr, p ParamRequest) error {
	params := ConnParams{Interval: p.MaxInterval, Latency: p.Latency, Timeout: p.Timeout}
	l.emit(ConnParamUpdateConfirmed{}, ConnectionUpdated{Params: params}, ConnParamUpdateIndicated{})
	return nil
}

func (l *Loopback) SetWhitelist(addrs []Addr) error {
	l.mu.Lock()
	l.whitelist = append([]Addr(nil), addrs...)
	l.mu.Unlock()
	return nil
}

// Whitelist returns the last whitelist installed.
func (l *Loopback) Whitelist() []Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Addr(nil), l.whitelist...)
}

func (l *Loopback) EnableTxEvents(_ ConnHandle, on bool) error {
	l.mu.Lock()
	was := l.txEvents
	l.txEvents = on
	l.mu.Unlock()
	if on && !was {
		l.emit(TxBufferFreed{})
	}
	return nil
}

func (l *Loopback) SetLTKAvailable(Addr, bool) {}

func (l *Loopback) RequestSecurity(Addr) error { return nil }

func (l *Loopback) SetRandomAddress(Addr) error { return nil }

var (
	_ Link     = (*Loopback)(nil)
	_ Security = (*Loopback)(nil)
)
