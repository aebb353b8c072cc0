// Package keyboard is the connection and report delivery core of the BLE
// keyboard. It owns the session state machine, the pending report queue and
// the timers, and talks to the radio through ble.Link and ble.Security.
//
// All input arrives as events. Post queues an event for Run, which handles one
// event at a time; Handle runs one event synchronously.
package keyboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/blekbd/internal/ble"
	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/gatt"
	"github.com/chaz8081/blekbd/internal/hid"
	"github.com/chaz8081/blekbd/internal/queue"
	"github.com/chaz8081/blekbd/internal/store"
	"github.com/chaz8081/blekbd/internal/timer"
)

const mailboxSize = 256

// Timer roles.
const (
	roleIdle timer.Role = iota
	roleAdvert
	roleConnParam
	roleBondingChance
	roleButtonDebounce
	roleBondRemoval
	rolePendingReport
	roleRandomAddress
)

// Options configure a Keyboard.
type Options struct {
	Config   *config.Config
	Link     ble.Link
	Security ble.Security
	Store    store.Store
	// Clock drives the timers; the wall clock if nil.
	Clock  timer.Clock
	Logger *slog.Logger
	// OnLEDs receives the indicator state written by the host.
	OnLEDs func(hid.LEDs)
	// BatteryLevel is the initial battery level in percent.
	BatteryLevel uint8
}

// Keyboard is the peripheral core.
type Keyboard struct {
	cfg  *config.Config
	link ble.Link
	sec  ble.Security
	st   store.Store

	base *slog.Logger
	log  *slog.Logger

	mailbox chan any
	done    chan struct{}
	stop    sync.Once
	timers  *timer.Set

	mu         sync.Mutex
	sess       Session
	queue      *queue.Ring
	formulator hid.Formulator
	passkey    hid.PasskeyEntry
	// current is the event being handled, for fault reports.
	current any

	db       *gatt.Database
	gap      *gatt.GAP
	hidSvc   *hid.Service
	boot     *hid.BootService
	battery  *gatt.Battery
	scan     *gatt.ScanParams
	bondMgmt *gatt.BondMgmt
	ota      *gatt.OTA
}

// New builds the attribute database, loads the store and returns a keyboard
// in the Init state. The link must report DatabaseRegistered once the
// services from Database().Defs() are in place.
func New(opts Options) (*Keyboard, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Link == nil || opts.Security == nil || opts.Store == nil {
		return nil, fmt.Errorf("keyboard: link, security and store are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := opts.Config

	k := &Keyboard{
		cfg:     cfg,
		link:    opts.Link,
		sec:     opts.Security,
		st:      opts.Store,
		base:    opts.Logger,
		log:     opts.Logger,
		mailbox: make(chan any, mailboxSize),
		done:    make(chan struct{}),
		queue:   queue.NewRing(cfg.Queue.Capacity),
	}
	k.timers = timer.NewSet(opts.Clock, func(e timer.Expiry) { k.Post(TimerExpired(e)) })

	k.gap = gatt.NewGAP(cfg.Device.Name, cfg.Device.Appearance, cfg.Connection.Preferred.Request(), cfg.Features.Privacy)
	k.hidSvc = hid.NewService(hid.ServiceOptions{
		Flags:  hid.InfoRemoteWake | hid.InfoNormallyConnectable,
		OnLEDs: opts.OnLEDs,
	})
	k.battery = gatt.NewBattery(opts.BatteryLevel)
	k.scan = gatt.NewScanParams()
	k.bondMgmt = gatt.NewBondMgmt()
	k.ota = gatt.NewOTA()
	services := []gatt.Service{k.gap, k.hidSvc}
	if cfg.Features.ProprietaryBoot {
		k.boot = hid.NewBootService(opts.OnLEDs)
		services = append(services, k.boot)
	}
	services = append(services,
		k.battery,
		k.scan,
		gatt.NewDevInfo(gatt.DeviceInfo{
			Manufacturer:     cfg.Device.Manufacturer,
			Model:            cfg.Device.Model,
			Serial:           cfg.Device.Serial,
			HardwareRevision: cfg.Device.HardwareRevision,
			FirmwareRevision: cfg.Device.FirmwareRevision,
			SoftwareRevision: cfg.Device.SoftwareRevision,
			VendorID:         cfg.Device.VendorID,
			ProductID:        cfg.Device.ProductID,
			ProductVersion:   cfg.Device.ProductVersion,
		}),
		k.bondMgmt,
		k.ota,
	)
	k.db = gatt.NewDatabase(services...)

	bond, fresh, err := store.Open(k.st)
	if err != nil {
		return nil, fmt.Errorf("keyboard: open store: %w", err)
	}
	if err := k.db.Load(k.st, bond.Bonded, fresh); err != nil {
		return nil, fmt.Errorf("keyboard: load services: %w", err)
	}
	k.sess = Session{
		State:      StateInit,
		Conn:       ble.InvalidConn,
		Bonded:     bond.Bonded,
		BondedAddr: bond.Addr,
		Div:        bond.Div,
		IRK:        bond.IRK,
	}
	k.log.Info("[KBD] initialised", "bonded", bond.Bonded, "peer", bond.Addr, "fresh_store", fresh)
	return k, nil
}

// Database returns the attribute database the link must expose.
func (k *Keyboard) Database() *gatt.Database { return k.db }

// Post queues ev for Run. It blocks while the mailbox is full and drops ev
// once Run has returned. Links must not call it from inside Handle.
func (k *Keyboard) Post(ev any) {
	select {
	case k.mailbox <- ev:
	case <-k.done:
	}
}

// Run handles posted events until ctx is done or an event fails. A non-nil
// error other than ctx.Err() means the device must reset.
func (k *Keyboard) Run(ctx context.Context) error {
	defer func() {
		k.stop.Do(func() { close(k.done) })
		k.mu.Lock()
		k.timers.StopAll()
		k.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-k.mailbox:
			if err := k.Handle(ev); err != nil {
				k.log.Error("[KBD] stopping", "error", err)
				return err
			}
		}
	}
}

// Handle processes one event to completion.
func (k *Keyboard) Handle(ev any) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.current = ev
	defer func() { k.current = nil }()

	kind, ok := kindOf(ev)
	if !ok {
		return k.fault(FaultInvalidState, fmt.Errorf("%w: unknown event %T", ErrInvalidState, ev))
	}

	r := rules[kind]
	if !r.in.has(k.sess.State) {
		if r.ignore {
			k.log.Debug("[KBD] event ignored", "event", fmt.Sprintf("%T", ev), "state", k.sess.State)
			return nil
		}
		return k.fault(FaultInvalidState, ErrInvalidState)
	}
	return r.handle(k, ev)
}

// State returns the current state.
func (k *Keyboard) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sess.State
}

// Session returns a copy of the session.
func (k *Keyboard) Session() Session {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sess
}

// QueueLen returns the number of reports waiting for the host.
func (k *Keyboard) QueueLen() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.queue.Len()
}

func (k *Keyboard) fault(code FaultCode, err error) error {
	return &Fault{Code: code, State: k.sess.State, Event: k.current, Err: err}
}

// reinit drops everything tied to the last connection. The bond record, the
// queue and the counters stay.
func (k *Keyboard) reinit() error {
	for _, r := range []timer.Role{roleIdle, roleAdvert, roleConnParam, roleBondingChance, rolePendingReport} {
		k.timers.Stop(r)
	}
	k.sess.linkReset()
	k.queue.ClearSent()
	k.formulator.Reset()
	k.passkey.Reset()
	if err := k.db.Reset(k.sess.Bonded); err != nil {
		return k.fault(FaultStore, err)
	}
	k.log = k.base
	return nil
}

func (k *Keyboard) resetIdleTimer() {
	k.timers.Start(roleIdle, k.cfg.Connection.IdleTimeout.Duration)
}
