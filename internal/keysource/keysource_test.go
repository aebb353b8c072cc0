package keysource

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	hook "github.com/robotn/gohook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blekbd/internal/hid"
)

func raw(mods uint8, keys ...uint8) hid.RawReport {
	var r hid.RawReport
	r[0] = mods
	copy(r[2:], keys)
	return r
}

func TestTrackerPressRelease(t *testing.T) {
	var tr Tracker

	r, changed := tr.Press(hid.KeyLeftShift)
	assert.True(t, changed)
	assert.Equal(t, raw(hid.ModLeftShift), r)

	r, changed = tr.Press(hid.KeyA)
	assert.True(t, changed)
	assert.Equal(t, raw(hid.ModLeftShift, hid.KeyA), r)

	_, changed = tr.Press(hid.KeyA)
	assert.False(t, changed, "auto-repeat is not a new report")

	r, _ = tr.Press(hid.KeyB)
	assert.Equal(t, raw(hid.ModLeftShift, hid.KeyA, hid.KeyB), r)

	r, changed = tr.Release(hid.KeyA)
	assert.True(t, changed)
	assert.Equal(t, raw(hid.ModLeftShift, hid.KeyB), r)

	_, changed = tr.Release(hid.KeyA)
	assert.False(t, changed)

	tr.Release(hid.KeyLeftShift)
	r, _ = tr.Release(hid.KeyB)
	assert.True(t, r.IsRelease())
}

func TestTrackerSixKeyLimit(t *testing.T) {
	var tr Tracker
	keys := []uint8{hid.KeyA, hid.KeyB, hid.KeyC, hid.KeyD, hid.KeyE, hid.KeyF}
	for _, k := range keys {
		tr.Press(k)
	}

	_, changed := tr.Press(hid.KeyG)
	assert.False(t, changed)
	assert.Equal(t, raw(0, keys...), tr.Report())

	tr.Release(hid.KeyA)
	r, changed := tr.Press(hid.KeyG)
	assert.True(t, changed)
	assert.Equal(t, raw(0, hid.KeyB, hid.KeyC, hid.KeyD, hid.KeyE, hid.KeyF, hid.KeyG), r)

	tr.Reset()
	assert.True(t, tr.Report().IsRelease())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []hid.RawReport
	}{
		{"letter", "a", []hid.RawReport{raw(0, hid.KeyA), {}}},
		{"shifted", "A", []hid.RawReport{raw(hid.ModLeftShift, hid.KeyA), {}}},
		{"enter", "\r", []hid.RawReport{raw(0, hid.KeyEnter), {}}},
		{"arrow", "\x1b[A", []hid.RawReport{raw(0, hid.KeyUp), {}}},
		{"delete", "\x1b[3~", []hid.RawReport{raw(0, hid.KeyDelete), {}}},
		{"escape", "\x1b", []hid.RawReport{raw(0, hid.KeyEscape), {}}},
		{"ctrl", "\x01", []hid.RawReport{raw(hid.ModLeftCtrl, hid.KeyA), {}}},
		{"two", "hi", []hid.RawReport{raw(0, hid.KeyH), {}, raw(0, hid.KeyI), {}}},
		{"unmapped", "\xff", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, interrupted := decode([]byte(tt.in))
			assert.False(t, interrupted)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInterrupt(t *testing.T) {
	got, interrupted := decode([]byte("a\x03b"))
	assert.True(t, interrupted)
	assert.Len(t, got, 2, "keys before Ctrl-C are kept")
}

func collect(t *testing.T, src Source) ([]hid.RawReport, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out := make(chan hid.RawReport, 64)
	err := src.Run(ctx, out)
	close(out)
	var got []hid.RawReport
	for r := range out {
		got = append(got, r)
	}
	return got, err
}

func TestTerminalRunUntilEOF(t *testing.T) {
	in := strings.NewReader("ok")
	got, err := collect(t, NewTerminalReader(in, -1, nil))

	require.NoError(t, err)
	assert.Equal(t, []hid.RawReport{raw(0, hid.KeyO), {}, raw(0, hid.KeyK), {}}, got)
}

func TestTerminalRunInterrupted(t *testing.T) {
	in := strings.NewReader("x\x03")
	got, err := collect(t, NewTerminalReader(in, -1, nil))

	assert.True(t, errors.Is(err, ErrInterrupted))
	assert.Len(t, got, 2)
}

type fakeFeed struct{ fn func(hook.Event) }

func (f *fakeFeed) OnKey(fn func(hook.Event)) { f.fn = fn }

func TestHookTracksKeys(t *testing.T) {
	codeA, okA := hook.Keycode["a"]
	codeShift, okShift := hook.Keycode["shift"]
	if !okA || !okShift {
		t.Skip("gohook key table lacks a or shift")
	}

	feed := &fakeFeed{}
	h := NewHook(feed, nil)
	require.NotNil(t, feed.fn)

	feed.fn(hook.Event{Kind: hook.KeyDown, Keycode: codeShift})
	feed.fn(hook.Event{Kind: hook.KeyDown, Keycode: codeA})
	feed.fn(hook.Event{Kind: hook.KeyHold, Keycode: codeA})
	feed.fn(hook.Event{Kind: hook.KeyUp, Keycode: codeA})
	feed.fn(hook.Event{Kind: hook.KeyUp, Keycode: codeShift})

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan hid.RawReport, 8)
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, out) }()

	var got []hid.RawReport
	for len(got) < 4 {
		select {
		case r := <-out:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d reports, want 4", len(got))
		}
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []hid.RawReport{
		raw(hid.ModLeftShift),
		raw(hid.ModLeftShift, hid.KeyA),
		raw(hid.ModLeftShift),
		{},
	}, got)
}
