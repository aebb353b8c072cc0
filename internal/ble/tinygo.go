package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// TinygoOptions configures a TinygoLink.
type TinygoOptions struct {
	// RetryDelay is how long a busy notification waits before TxBufferFreed
	// is reported.
	RetryDelay time.Duration
	// HostManagedSecurity reports encryption as enabled right after connect.
	// The OS stack owns pairing on desktop platforms.
	HostManagedSecurity bool
}

// DefaultTinygoOptions returns sensible defaults.
func DefaultTinygoOptions() TinygoOptions {
	return TinygoOptions{
		RetryDelay:          20 * time.Millisecond,
		HostManagedSecurity: true,
	}
}

// TinygoLink drives a real controller through tinygo-org/bluetooth in the
// peripheral role. Features the library does not expose (whitelists,
// directed advertising, radio events, LTK hints) degrade to undirected
// advertising and synthesised events.
type TinygoLink struct {
	adapter *bluetooth.Adapter
	events  *pump
	opts    TinygoOptions

	// mu protects the fields below; tinygo callbacks arrive on their own goroutines.
	mu        sync.Mutex
	adv       *bluetooth.Advertisement
	chars     map[uint16]*bluetooth.Characteristic
	cccds     []uint16
	device    *bluetooth.Device
	conn      ConnHandle
	nextConn  ConnHandle
	txWaiting bool
}

// NewTinygoLink creates a link on the default adapter. post receives every
// inbound event once Run is started.
func NewTinygoLink(post func(any), opts TinygoOptions) *TinygoLink {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 20 * time.Millisecond
	}
	return &TinygoLink{
		adapter: bluetooth.DefaultAdapter,
		events:  newPump(post),
		opts:    opts,
		chars:   make(map[uint16]*bluetooth.Characteristic),
		conn:    InvalidConn,
	}
}

// Run forwards events to post until ctx is cancelled.
func (l *TinygoLink) Run(ctx context.Context) { l.events.run(ctx) }

// Enable powers on the adapter and installs the connection handler.
func (l *TinygoLink) Enable() error {
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	l.adapter.SetConnectHandler(l.onConnect)
	return nil
}

func (l *TinygoLink) onConnect(device bluetooth.Device, connected bool) {
	l.mu.Lock()
	if !connected {
		c := l.conn
		l.conn = InvalidConn
		l.device = nil
		l.mu.Unlock()
		if c == InvalidConn {
			return
		}
		slog.Info("[BLE] host disconnected", "addr", device.Address.String())
		l.events.push(Disconnected{Conn: c, Reason: ReasonRemoteUserTerminated})
		return
	}
	l.nextConn++
	c := l.nextConn
	l.conn = c
	dev := device
	l.device = &dev
	cccds := append([]uint16(nil), l.cccds...)
	l.mu.Unlock()

	peer, err := ParseAddr(device.Address.String(), AddrPublic)
	if err != nil {
		// CoreBluetooth hands out UUIDs instead of MACs; the peer stays anonymous.
		slog.Debug("[BLE] peer address is not a MAC", "addr", device.Address.String())
	}
	slog.Info("[BLE] host connected", "addr", device.Address.String(), "conn", c)

	l.events.push(ConnectionComplete{})
	l.events.push(Connected{Conn: c, Peer: peer, Status: ConnSuccess})
	if !l.opts.HostManagedSecurity {
		return
	}
	l.events.push(EncryptionChanged{Enabled: true})
	// The OS stack answers CCCD writes itself; mirror them as enabled.
	for _, h := range cccds {
		l.events.push(AttributeAccess{Conn: c, Handle: h, Write: true, Value: []byte{0x01, 0x00}})
	}
}

// AddServices registers defs with the adapter and reports DatabaseRegistered.
func (l *TinygoLink) AddServices(defs []ServiceDef) error {
	for _, def := range defs {
		svcUUID, err := bluetooth.ParseUUID(string(def.UUID))
		if err != nil {
			return fmt.Errorf("ble: parse service UUID %s: %w", def.UUID, err)
		}
		svc := &bluetooth.Service{UUID: svcUUID}
		for _, cd := range def.Chars {
			charUUID, err := bluetooth.ParseUUID(string(cd.UUID))
			if err != nil {
				return fmt.Errorf("ble: parse characteristic UUID %s: %w", cd.UUID, err)
			}
			handle := new(bluetooth.Characteristic)
			attr := cd.Handle
			cfg := bluetooth.CharacteristicConfig{
				Handle: handle,
				UUID:   charUUID,
				Value:  cd.Value,
				Flags:  charPermissions(cd.Flags),
			}
			if cd.Flags&(CharWrite|CharWriteNoResponse) != 0 {
				cfg.WriteEvent = func(_ bluetooth.Connection, offset int, value []byte) {
					if offset != 0 {
						return
					}
					l.mu.Lock()
					c := l.conn
					l.mu.Unlock()
					buf := make([]byte, len(value))
					copy(buf, value)
					l.events.push(AttributeAccess{Conn: c, Handle: attr, Write: true, Value: buf})
				}
			}
			svc.Characteristics = append(svc.Characteristics, cfg)

			l.mu.Lock()
			l.chars[cd.Handle] = handle
			if cd.CCCD != 0 {
				l.cccds = append(l.cccds, cd.CCCD)
			}
			l.mu.Unlock()
		}
		if err := l.adapter.AddService(svc); err != nil {
			l.events.push(DatabaseRegistered{Err: err})
			return fmt.Errorf("ble: add service %s: %w", def.UUID, err)
		}
	}
	l.events.push(DatabaseRegistered{})
	return nil
}

func charPermissions(f CharFlags) bluetooth.CharacteristicPermissions {
	var p bluetooth.CharacteristicPermissions
	if f&CharRead != 0 {
		p |= bluetooth.CharacteristicReadPermission
	}
	if f&CharWrite != 0 {
		p |= bluetooth.CharacteristicWritePermission
	}
	if f&CharWriteNoResponse != 0 {
		p |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if f&CharNotify != 0 {
		p |= bluetooth.CharacteristicNotifyPermission
	}
	return p
}

func (l *TinygoLink) StartAdvertising(p AdvertParams) error {
	if p.Mode == AdvertDirected || p.Whitelist {
		slog.Debug("[BLE] filtered advertising unsupported, advertising undirected", "mode", p.Mode)
	}
	l.mu.Lock()
	if l.adv == nil {
		l.adv = l.adapter.DefaultAdvertisement()
	}
	adv := l.adv
	l.mu.Unlock()

	err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.LocalName,
		ServiceUUIDs: []bluetooth.UUID{bluetooth.New16BitUUID(0x1812)},
		Interval:     bluetooth.NewDuration(p.MinInterval),
	})
	if err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}
	slog.Debug("[BLE] advertising", "mode", p.Mode, "interval", p.MinInterval)
	return nil
}

func (l *TinygoLink) StopAdvertising() error {
	l.mu.Lock()
	adv := l.adv
	l.mu.Unlock()
	var err error
	if adv != nil {
		err = adv.Stop()
	}
	l.events.push(AdvertisingStopped{Err: err})
	return nil
}

func (l *TinygoLink) Disconnect(c ConnHandle, reason DisconnectReason) error {
	l.mu.Lock()
	dev := l.device
	l.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("ble: disconnect %d: not connected", c)
	}
	slog.Debug("[BLE] disconnecting", "conn", c, "reason", reason)
	if err := dev.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect %d: %w", c, err)
	}
	return nil
}

func (l *TinygoLink) Notify(c ConnHandle, handle uint16, value []byte) error {
	l.mu.Lock()
	ch, ok := l.chars[handle]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: notify: unknown handle 0x%04x", handle)
	}
	if _, err := ch.Write(value); err != nil {
		slog.Debug("[BLE] notification busy", "handle", handle, "error", err)
		l.events.push(NotificationConfirmed{Handle: handle, Err: ErrBusy})
		return nil
	}
	l.events.push(NotificationConfirmed{Handle: handle})
	return nil
}

func (l *TinygoLink) AccessResponse(c ConnHandle, handle uint16, status AttStatus, _ []byte) {
	if status != AttSuccess {
		slog.Debug("[BLE] attribute access rejected", "handle", handle, "status", status)
	}
}

func (l *TinygoLink) RequestConnParams(c ConnHandle, _ Addr, p ParamRequest) error {
	l.mu.Lock()
	dev := l.device
	l.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("ble: request connection params: not connected")
	}
	go func() {
		err := dev.RequestConnectionParams(bluetooth.ConnectionParams{
			MinInterval: bluetooth.NewDuration(IntervalDuration(p.MinInterval)),
			MaxInterval: bluetooth.NewDuration(IntervalDuration(p.MaxInterval)),
			Timeout:     bluetooth.NewDuration(TimeoutDuration(p.Timeout)),
		})
		l.events.push(ConnParamUpdateConfirmed{Err: err})
	}()
	return nil
}

func (l *TinygoLink) SetWhitelist(addrs []Addr) error {
	slog.Debug("[BLE] whitelist not supported by adapter", "count", len(addrs))
	return nil
}

func (l *TinygoLink) EnableTxEvents(c ConnHandle, on bool) error {
	l.mu.Lock()
	if !on || l.txWaiting {
		l.txWaiting = on && l.txWaiting
		l.mu.Unlock()
		return nil
	}
	l.txWaiting = true
	l.mu.Unlock()

	time.AfterFunc(l.opts.RetryDelay, func() {
		l.mu.Lock()
		waiting := l.txWaiting
		l.txWaiting = false
		l.mu.Unlock()
		if waiting {
			l.events.push(TxBufferFreed{})
		}
	})
	return nil
}

func (l *TinygoLink) SetLTKAvailable(Addr, bool) {}

func (l *TinygoLink) RequestSecurity(peer Addr) error {
	slog.Debug("[BLE] security is host managed", "peer", peer)
	return nil
}

func (l *TinygoLink) SetRandomAddress(a Addr) error {
	slog.Debug("[BLE] random address not supported by adapter", "addr", a)
	return nil
}

// Compile-time check that TinygoLink implements Link.
var _ Link = (*TinygoLink)(nil)
