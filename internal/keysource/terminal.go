package keysource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/chaz8081/blekbd/internal/hid"
)

// ErrInterrupted is returned by Terminal.Run when Ctrl-C is typed.
var ErrInterrupted = errors.New("keysource: interrupted")

const ctrlC = 0x03

// escapes maps CSI sequences to usages.
var escapes = map[string]uint8{
	"\x1b[A":  hid.KeyUp,
	"\x1b[B":  hid.KeyDown,
	"\x1b[C":  hid.KeyRight,
	"\x1b[D":  hid.KeyLeft,
	"\x1b[H":  hid.KeyHome,
	"\x1b[F":  hid.KeyEnd,
	"\x1b[2~": hid.KeyInsert,
	"\x1b[3~": hid.KeyDelete,
	"\x1b[5~": hid.KeyPageUp,
	"\x1b[6~": hid.KeyPageDown,
	"\x1bOP":  hid.KeyF1,
	"\x1bOQ":  hid.KeyF2,
	"\x1bOR":  hid.KeyF3,
	"\x1bOS":  hid.KeyF4,
}

// Terminal reads keystrokes from a terminal in raw mode. A terminal only
// reports characters, so every character becomes a press and a release.
type Terminal struct {
	in  io.Reader
	fd  int
	log *slog.Logger
}

// NewTerminal reads from stdin.
func NewTerminal(logger *slog.Logger) *Terminal {
	return NewTerminalReader(os.Stdin, int(os.Stdin.Fd()), logger)
}

// NewTerminalReader reads from in. Raw mode is set on fd when it is a
// terminal.
func NewTerminalReader(in io.Reader, fd int, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminal{in: in, fd: fd, log: logger}
}

func (t *Terminal) Run(ctx context.Context, out chan<- hid.RawReport) error {
	if term.IsTerminal(t.fd) {
		old, err := term.MakeRaw(t.fd)
		if err != nil {
			return fmt.Errorf("keysource: raw mode: %w", err)
		}
		defer func() { _ = term.Restore(t.fd, old) }()
	}

	chunks := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := t.in.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("keysource: read terminal: %w", err)
		case chunk := <-chunks:
			reports, interrupted := decode(chunk)
			for _, r := range reports {
				if err := send(ctx, out, r); err != nil {
					return err
				}
			}
			if interrupted {
				return ErrInterrupted
			}
		}
	}
}

// decode turns one read from a raw terminal into press/release pairs.
func decode(chunk []byte) (reports []hid.RawReport, interrupted bool) {
	tap := func(mods, key uint8) {
		var r hid.RawReport
		r[0] = mods
		r[2] = key
		reports = append(reports, r, hid.RawReport{})
	}

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		if c == 0x1b {
			if key, n := escape(chunk[i:]); n > 0 {
				tap(0, key)
				i += n - 1
				continue
			}
		}
		if c == ctrlC {
			return reports, true
		}
		if r, ok := hid.CharToReport(c); ok {
			tap(r[0], r[2])
			continue
		}
		if c >= 0x01 && c <= 0x1a {
			// Ctrl+letter.
			tap(hid.ModLeftCtrl, hid.KeyA+c-1)
		}
	}
	return reports, false
}

// escape matches a CSI sequence at the start of b and returns its key and
// length.
func escape(b []byte) (uint8, int) {
	for seq, key := range escapes {
		if len(b) >= len(seq) && string(b[:len(seq)]) == seq {
			return key, len(seq)
		}
	}
	return 0, 0
}
