package keysource

import (
	"context"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/chaz8081/blekbd/internal/hid"
)

// KeyFeed delivers every global key event. hotkey.Listener is one.
type KeyFeed interface {
	OnKey(fn func(hook.Event))
}

// hookNames maps gohook key names to usages.
var hookNames = map[string]uint8{
	"a": hid.KeyA, "b": hid.KeyB, "c": hid.KeyC, "d": hid.KeyD, "e": hid.KeyE,
	"f": hid.KeyF, "g": hid.KeyG, "h": hid.KeyH, "i": hid.KeyI, "j": hid.KeyJ,
	"k": hid.KeyK, "l": hid.KeyL, "m": hid.KeyM, "n": hid.KeyN, "o": hid.KeyO,
	"p": hid.KeyP, "q": hid.KeyQ, "r": hid.KeyR, "s": hid.KeyS, "t": hid.KeyT,
	"u": hid.KeyU, "v": hid.KeyV, "w": hid.KeyW, "x": hid.KeyX, "y": hid.KeyY,
	"z": hid.KeyZ,

	"1": hid.Key1, "2": hid.Key2, "3": hid.Key3, "4": hid.Key4, "5": hid.Key5,
	"6": hid.Key6, "7": hid.Key7, "8": hid.Key8, "9": hid.Key9, "0": hid.Key0,

	"enter": hid.KeyEnter, "esc": hid.KeyEscape, "backspace": hid.KeyBackspace,
	"tab": hid.KeyTab, "space": hid.KeySpace, "-": hid.KeyMinus, "=": hid.KeyEqual,
	"[": hid.KeyLeftBrace, "]": hid.KeyRightBrace, "\\": hid.KeyBackslash,
	";": hid.KeySemicolon, "'": hid.KeyApostrophe, "`": hid.KeyGrave,
	",": hid.KeyComma, ".": hid.KeyPeriod, "/": hid.KeySlash,
	"capslock": hid.KeyCapsLock,

	"f1": hid.KeyF1, "f2": hid.KeyF2, "f3": hid.KeyF3, "f4": hid.KeyF4,
	"f5": hid.KeyF5, "f6": hid.KeyF6, "f7": hid.KeyF7, "f8": hid.KeyF8,
	"f9": hid.KeyF9, "f10": hid.KeyF10, "f11": hid.KeyF11, "f12": hid.KeyF12,

	"insert": hid.KeyInsert, "delete": hid.KeyDelete, "home": hid.KeyHome,
	"end": hid.KeyEnd, "pageup": hid.KeyPageUp, "pagedown": hid.KeyPageDown,
	"up": hid.KeyUp, "down": hid.KeyDown, "left": hid.KeyLeft, "right": hid.KeyRight,

	"ctrl": hid.KeyLeftCtrl, "shift": hid.KeyLeftShift, "alt": hid.KeyLeftAlt,
	"cmd": hid.KeyLeftGUI, "rctrl": hid.KeyRightCtrl, "rshift": hid.KeyRightShift,
	"ralt": hid.KeyRightAlt, "rcmd": hid.KeyRightGUI,
}

// usageTable resolves gohook keycodes through its name table.
func usageTable() map[uint16]uint8 {
	t := make(map[uint16]uint8, len(hookNames))
	for name, usage := range hookNames {
		if code, ok := hook.Keycode[name]; ok {
			t[code] = usage
		}
	}
	return t
}

// Hook captures global key events from the desktop through gohook. Events
// arrive while the feed's hook session runs.
type Hook struct {
	usages map[uint16]uint8
	log    *slog.Logger

	mu      sync.Mutex
	tracker Tracker
	out     chan hid.RawReport
}

// NewHook subscribes to feed. Call it before the feed starts.
func NewHook(feed KeyFeed, logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hook{
		usages: usageTable(),
		log:    logger,
		out:    make(chan hid.RawReport, 64),
	}
	feed.OnKey(h.handle)
	return h
}

// handle runs on the hook goroutine and never blocks it.
func (h *Hook) handle(ev hook.Event) {
	usage, ok := h.usages[ev.Keycode]
	if !ok {
		h.log.Debug("[KEYS] unmapped key", "keycode", ev.Keycode, "rawcode", ev.Rawcode)
		return
	}

	h.mu.Lock()
	var r hid.RawReport
	var changed bool
	switch ev.Kind {
	case hook.KeyDown, hook.KeyHold:
		r, changed = h.tracker.Press(usage)
	case hook.KeyUp:
		r, changed = h.tracker.Release(usage)
	}
	h.mu.Unlock()
	if !changed {
		return
	}

	select {
	case h.out <- r:
	default:
		h.log.Warn("[KEYS] report dropped, consumer too slow", "report", r)
	}
}

func (h *Hook) Run(ctx context.Context, out chan<- hid.RawReport) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-h.out:
			if err := send(ctx, out, r); err != nil {
				return err
			}
		}
	}
}
