package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/hid"
	"github.com/chaz8081/blekbd/internal/hotkey"
	"github.com/chaz8081/blekbd/internal/inject"
	"github.com/chaz8081/blekbd/internal/keyboard"
	"github.com/chaz8081/blekbd/internal/keysource"
	"github.com/chaz8081/blekbd/internal/log"
	"github.com/chaz8081/blekbd/internal/store"
)

// RunCmd runs the keyboard until interrupted.
type RunCmd struct {
	Loopback bool   `help:"Connect to an in-process host instead of using the radio."`
	Replay   bool   `help:"Press the keys the in-process host receives on this desktop."`
	Source   string `help:"Key source, overriding the config file: terminal or hook."`
}

func (c *RunCmd) Run(logger *slog.Logger, cfg *config.Config, reports log.ReportLogger) error {
	if c.Source != "" {
		cfg.KeySource.Type = c.Source
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if c.Replay && !c.Loopback {
		return fmt.Errorf("--replay needs --loopback")
	}

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}

	onNotify := reports.Log
	if c.Replay {
		replayer := inject.NewReplayer(logger)
		onNotify = func(handle uint16, value []byte) {
			reports.Log(handle, value)
			replayer.Replay(handle, value)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		src      keysource.Source
		listener *hotkey.Listener
	)
	switch cfg.KeySource.Type {
	case "hook":
		listener = hotkey.NewListener(cfg.KeySource.PairingKeys)
		src = keysource.NewHook(listener, logger)
	default:
		src = keysource.NewTerminal(logger)
	}

	dev, err := newDevice(deviceOptions{
		cfg:      cfg,
		store:    st,
		logger:   logger,
		loopback: c.Loopback,
		onNotify: onNotify,
	})
	if err != nil {
		return err
	}

	if listener != nil {
		go listener.Start()
		go func() {
			for ev := range listener.Events() {
				dev.kb.Post(keyboard.PairingButton{Pressed: ev.Pressed})
			}
		}()
		logger.Info("[KBD] pairing button on chord", "keys", strings.Join(cfg.KeySource.PairingKeys, "+"))
		// The gohook session is left to the OS on exit; hook.End can crash
		// during C cleanup.
	}

	logger.Info("[KBD] running", "name", cfg.Device.Name, "source", cfg.KeySource.Type,
		"loopback", c.Loopback, "store", st.Path())
	return dev.run(ctx, src)
}

// TypeCmd types text through an in-process host and prints what it received.
type TypeCmd struct {
	Text     string        `arg:"" help:"Text to type."`
	Replay   bool          `help:"Also press the keys on this desktop."`
	Interval time.Duration `help:"Pause between reports." default:"10ms"`
	Timeout  time.Duration `help:"Give up after this long." default:"30s"`
}

func (c *TypeCmd) Run(logger *slog.Logger, cfg *config.Config, reports log.ReportLogger) error {
	if _, err := inject.Reports(c.Text); err != nil {
		return err
	}

	var received int
	onNotify := func(handle uint16, value []byte) {
		received++
		reports.Log(handle, value)
	}
	if c.Replay {
		replayer := inject.NewReplayer(logger)
		inner := onNotify
		onNotify = func(handle uint16, value []byte) {
			inner(handle, value)
			replayer.Replay(handle, value)
		}
	}

	dev, err := newDevice(deviceOptions{
		cfg:      cfg,
		store:    store.NewMemory(store.DefaultSize),
		logger:   logger,
		loopback: true,
		onNotify: onNotify,
	})
	if err != nil {
		return err
	}

	typer := inject.NewTyper(c.Text)
	typer.Interval = c.Interval

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	if err := dev.run(ctx, untilDelivered{typer, dev.kb}); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("typing did not finish within %s", c.Timeout)
	}
	logger.Info("[KBD] typed", "chars", len(c.Text), "reports", received)
	return nil
}

// untilDelivered runs a source, then waits for the keyboard to send what it
// queued.
type untilDelivered struct {
	keysource.Source
	kb *keyboard.Keyboard
}

func (u untilDelivered) Run(ctx context.Context, out chan<- hid.RawReport) error {
	if err := u.Source.Run(ctx, out); err != nil {
		return err
	}
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			// Reports may still sit in out or the mailbox.
			if len(out) == 0 && u.kb.QueueLen() == 0 && !u.kb.Session().DataPending {
				return nil
			}
		}
	}
}

// StoreCmd groups the bond store commands.
type StoreCmd struct {
	Show  StoreShowCmd  `cmd:"" default:"1" help:"Print the bond record."`
	Clear StoreClearCmd `cmd:"" help:"Forget the bonded host."`
}

type StoreShowCmd struct{}

func (StoreShowCmd) Run(cfg *config.Config) error {
	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	b, fresh, err := store.Open(st)
	if err != nil {
		return err
	}
	fmt.Printf("store:   %s\n", st.Path())
	if fresh {
		fmt.Println("status:  empty")
		return nil
	}
	if !b.Bonded {
		fmt.Println("status:  not bonded")
		return nil
	}
	fmt.Println("status:  bonded")
	fmt.Printf("host:    %s\n", b.Addr)
	fmt.Printf("div:     0x%04X\n", b.Div)
	if !b.IRK.IsZero() {
		fmt.Println("irk:     stored")
	}
	return nil
}

type StoreClearCmd struct{}

func (StoreClearCmd) Run(logger *slog.Logger, cfg *config.Config) error {
	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	b, _, err := store.Open(st)
	if err != nil {
		return err
	}
	if !b.Bonded {
		logger.Info("[STORE] no bond to clear", "path", st.Path())
		return nil
	}
	if err := store.WriteBonded(st, false); err != nil {
		return err
	}
	logger.Info("[STORE] bond cleared", "host", b.Addr, "path", st.Path())
	return nil
}

// InitCmd writes the default config file.
type InitCmd struct{}

func (InitCmd) Run() error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "%s already exists\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
