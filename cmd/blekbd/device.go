package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chaz8081/blekbd/internal/ble"
	blecrypto "github.com/chaz8081/blekbd/internal/ble/crypto"
	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/gatt"
	"github.com/chaz8081/blekbd/internal/hid"
	"github.com/chaz8081/blekbd/internal/keyboard"
	"github.com/chaz8081/blekbd/internal/keysource"
	"github.com/chaz8081/blekbd/internal/store"
)

const irkInfo = "blekbd identity resolving key"

// loopbackPeer is the address the in-process host connects from.
var loopbackPeer = ble.Addr{Type: ble.AddrPublic, MAC: [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}}

// localIRK derives this device's identity key from the configured seed.
func localIRK(cfg *config.Config) (ble.IRK, error) {
	if cfg.Device.Seed == "" {
		return ble.IRK{}, nil
	}
	irk, err := blecrypto.DeriveIRK([]byte(cfg.Device.Seed), irkInfo)
	if err != nil {
		return ble.IRK{}, fmt.Errorf("derive IRK: %w", err)
	}
	return ble.IRK(irk), nil
}

func openStore(path string) (*store.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return store.OpenFile(path, store.DefaultSize)
}

// randomDiv picks the diversifier the in-process host hands out.
func randomDiv() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

// device is an assembled keyboard with its link.
type device struct {
	kb   *keyboard.Keyboard
	link interface{ Run(context.Context) }
	log  *slog.Logger
}

type deviceOptions struct {
	cfg      *config.Config
	store    store.Store
	logger   *slog.Logger
	loopback bool
	onNotify func(handle uint16, value []byte)
}

// newDevice builds the keyboard on either the radio or an in-process host
// and registers its services.
func newDevice(o deviceOptions) (*device, error) {
	irk, err := localIRK(o.cfg)
	if err != nil {
		return nil, err
	}

	d := &device{log: o.logger}
	// Links only post once registration starts, after d.kb is set.
	post := func(ev any) { d.kb.Post(ev) }

	var (
		link     ble.Link
		sec      ble.Security
		register func() error
	)
	if o.loopback {
		lb := ble.NewLoopback(post, ble.LoopbackOptions{
			Peer:     loopbackPeer,
			CCCDs:    []uint16{gatt.HandleHIDInputCCCD, gatt.HandleHIDConsumerCCCD, gatt.HandleBatteryLevelCCCD},
			OnNotify: o.onNotify,
			Bond:     true,
			Div:      randomDiv(),
		})
		lb.LocalSecurity.IRK = irk
		d.link = lb
		link, sec = lb, lb
		register = func() error {
			d.kb.Post(ble.DatabaseRegistered{})
			return nil
		}
	} else {
		tl := ble.NewTinygoLink(post, ble.DefaultTinygoOptions())
		if err := tl.Enable(); err != nil {
			return nil, err
		}
		d.link = tl
		link, sec = tl, &ble.LocalSecurity{IRK: irk}
		register = func() error { return tl.AddServices(d.kb.Database().Defs()) }
	}

	kb, err := keyboard.New(keyboard.Options{
		Config:   o.cfg,
		Link:     link,
		Security: sec,
		Store:    o.store,
		Logger:   o.logger,
		OnLEDs: func(l hid.LEDs) {
			o.logger.Info("[KBD] LEDs", "num_lock", l.NumLock(), "caps_lock", l.CapsLock())
		},
		BatteryLevel: 100,
	})
	if err != nil {
		return nil, err
	}
	d.kb = kb
	if err := register(); err != nil {
		return nil, fmt.Errorf("register services: %w", err)
	}
	return d, nil
}

// run drives the keyboard, the link and src until ctx ends, src fails, or
// the keyboard stops. A nil src runs without local keys.
func (d *device) run(ctx context.Context, src keysource.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.link.Run(ctx)

	srcErr := make(chan error, 1)
	if src != nil {
		reports := make(chan hid.RawReport, 64)
		go func() {
			srcErr <- src.Run(ctx, reports)
			cancel()
		}()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case r := <-reports:
					d.kb.Post(keyboard.KeyReport{Raw: r})
				}
			}
		}()
	}

	err := d.kb.Run(ctx)
	cancel()

	switch {
	case errors.Is(err, keyboard.ErrResetRequested):
		d.log.Warn("[KBD] reset requested by host")
		return err
	case err != nil && !errors.Is(err, context.Canceled):
		return err
	}
	select {
	case err := <-srcErr:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, keysource.ErrInterrupted) {
			return fmt.Errorf("key source: %w", err)
		}
	default:
	}
	return nil
}
