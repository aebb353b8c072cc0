// Package keysource turns desktop key input into raw keyboard reports.
package keysource

import (
	"context"

	"github.com/chaz8081/blekbd/internal/hid"
)

// Source produces raw reports until ctx is cancelled or input ends. Every
// report differs from the one before it.
type Source interface {
	Run(ctx context.Context, out chan<- hid.RawReport) error
}

const maxKeys = hid.InputReportLen - 2

// Tracker holds the set of pressed keys and renders it as a raw report.
// Keys beyond the six slots are ignored until a slot frees up.
type Tracker struct {
	mods uint8
	keys []uint8
}

// Press marks key as held. changed is false when the report is unchanged.
func (t *Tracker) Press(key uint8) (r hid.RawReport, changed bool) {
	if key == hid.KeyNone {
		return t.Report(), false
	}
	if hid.IsModifier(key) {
		bit := hid.ModifierBit(key)
		if t.mods&bit != 0 {
			return t.Report(), false
		}
		t.mods |= bit
		return t.Report(), true
	}
	for _, k := range t.keys {
		if k == key {
			return t.Report(), false
		}
	}
	if len(t.keys) == maxKeys {
		return t.Report(), false
	}
	t.keys = append(t.keys, key)
	return t.Report(), true
}

// Release marks key as no longer held.
func (t *Tracker) Release(key uint8) (r hid.RawReport, changed bool) {
	if hid.IsModifier(key) {
		bit := hid.ModifierBit(key)
		if t.mods&bit == 0 {
			return t.Report(), false
		}
		t.mods &^= bit
		return t.Report(), true
	}
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			return t.Report(), true
		}
	}
	return t.Report(), false
}

// Reset releases everything.
func (t *Tracker) Reset() {
	t.mods = 0
	t.keys = t.keys[:0]
}

// Report renders the held keys in press order.
func (t *Tracker) Report() hid.RawReport {
	var r hid.RawReport
	r[0] = t.mods
	copy(r[2:], t.keys)
	return r
}

// send delivers r unless ctx is done.
func send(ctx context.Context, out chan<- hid.RawReport, r hid.RawReport) error {
	select {
	case out <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
