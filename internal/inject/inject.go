// Package inject moves keyboard reports between the keyboard and the local
// desktop: a Typer turns text into raw reports, and a Replayer presses the
// keys of received reports using robotgo.
package inject

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-vgo/robotgo"

	"github.com/chaz8081/blekbd/internal/gatt"
	"github.com/chaz8081/blekbd/internal/hid"
)

// robotgoNames maps usages to robotgo key names.
var robotgoNames = map[uint8]string{
	hid.KeyEnter: "enter", hid.KeyEscape: "esc", hid.KeyBackspace: "backspace",
	hid.KeyTab: "tab", hid.KeySpace: "space", hid.KeyMinus: "-", hid.KeyEqual: "=",
	hid.KeyLeftBrace: "[", hid.KeyRightBrace: "]", hid.KeyBackslash: "\\",
	hid.KeySemicolon: ";", hid.KeyApostrophe: "'", hid.KeyGrave: "`",
	hid.KeyComma: ",", hid.KeyPeriod: ".", hid.KeySlash: "/",
	hid.KeyCapsLock: "capslock",

	hid.KeyF1: "f1", hid.KeyF2: "f2", hid.KeyF3: "f3", hid.KeyF4: "f4",
	hid.KeyF5: "f5", hid.KeyF6: "f6", hid.KeyF7: "f7", hid.KeyF8: "f8",
	hid.KeyF9: "f9", hid.KeyF10: "f10", hid.KeyF11: "f11", hid.KeyF12: "f12",

	hid.KeyInsert: "insert", hid.KeyDelete: "delete", hid.KeyHome: "home",
	hid.KeyEnd: "end", hid.KeyPageUp: "pageup", hid.KeyPageDown: "pagedown",
	hid.KeyRight: "right", hid.KeyLeft: "left", hid.KeyDown: "down", hid.KeyUp: "up",
}

// modifierNames are indexed by report bit.
var modifierNames = [8]string{"lctrl", "lshift", "lalt", "lcmd", "rctrl", "rshift", "ralt", "rcmd"}

// consumerNames maps Consumer page usages to robotgo key names.
var consumerNames = map[uint16]string{
	0x00E2: "audio_mute",
	0x00EA: "audio_vol_down",
	0x00E9: "audio_vol_up",
}

func init() {
	for k := uint8(hid.KeyA); k <= hid.KeyZ; k++ {
		robotgoNames[k] = string(rune('a' + k - hid.KeyA))
	}
	for k := uint8(hid.Key1); k <= hid.Key9; k++ {
		robotgoNames[k] = string(rune('1' + k - hid.Key1))
	}
	robotgoNames[hid.Key0] = "0"
}

// KeyName returns robotgo's name for a keyboard usage.
func KeyName(usage uint8) (string, bool) {
	name, ok := robotgoNames[usage]
	return name, ok
}

// ToggleFunc presses (down) or releases a key by robotgo name.
type ToggleFunc func(key string, down bool) error

func robotgoToggle(key string, down bool) error {
	dir := "up"
	if down {
		dir = "down"
	}
	return robotgo.KeyToggle(key, dir)
}

// Replayer mirrors received keyboard reports on the local desktop.
type Replayer struct {
	toggle ToggleFunc
	log    *slog.Logger

	mu       sync.Mutex
	input    [hid.InputReportLen]byte
	consumer string
}

// NewReplayer presses keys through robotgo.
func NewReplayer(logger *slog.Logger) *Replayer {
	return NewReplayerFunc(robotgoToggle, logger)
}

// NewReplayerFunc presses keys through toggle.
func NewReplayerFunc(toggle ToggleFunc, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{toggle: toggle, log: logger}
}

// Replay applies a report notified on handle. Its signature matches
// ble.LoopbackOptions.OnNotify.
func (r *Replayer) Replay(handle uint16, value []byte) {
	var err error
	switch handle {
	case gatt.HandleHIDInputReport, gatt.HandleHIDBootInputReport, gatt.HandleBootReport:
		err = r.replayInput(value)
	case gatt.HandleHIDConsumerReport:
		err = r.replayConsumer(value)
	default:
		return
	}
	if err != nil {
		r.log.Warn("[INJECT] replay failed", "handle", fmt.Sprintf("0x%04X", handle), "error", err)
	}
}

func (r *Replayer) replayInput(value []byte) error {
	if len(value) != hid.InputReportLen {
		return fmt.Errorf("inject: input report of %d bytes", len(value))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var next [hid.InputReportLen]byte
	copy(next[:], value)
	prev := r.input
	r.input = next

	// Releases first so a held modifier never applies to the next key.
	for _, k := range prev[2:] {
		if k != hid.KeyNone && !contains(next[2:], k) {
			if err := r.key(k, false); err != nil {
				return err
			}
		}
	}
	for bit := 0; bit < 8; bit++ {
		mask := uint8(1) << bit
		was, is := prev[0]&mask != 0, next[0]&mask != 0
		if was != is {
			if err := r.toggle(modifierNames[bit], is); err != nil {
				return fmt.Errorf("inject: toggle %s: %w", modifierNames[bit], err)
			}
		}
	}
	for _, k := range next[2:] {
		if k != hid.KeyNone && !contains(prev[2:], k) {
			if err := r.key(k, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Replayer) key(usage uint8, down bool) error {
	name, ok := KeyName(usage)
	if !ok {
		r.log.Debug("[INJECT] no desktop key for usage", "usage", usage)
		return nil
	}
	if err := r.toggle(name, down); err != nil {
		return fmt.Errorf("inject: toggle %s: %w", name, err)
	}
	return nil
}

func (r *Replayer) replayConsumer(value []byte) error {
	if len(value) != hid.ConsumerReportLen {
		return fmt.Errorf("inject: consumer report of %d bytes", len(value))
	}
	usage := uint16(value[0]) | uint16(value[1])<<8

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumer != "" {
		if err := r.toggle(r.consumer, false); err != nil {
			return fmt.Errorf("inject: toggle %s: %w", r.consumer, err)
		}
		r.consumer = ""
	}
	if usage == 0 {
		return nil
	}
	name, ok := consumerNames[usage]
	if !ok {
		r.log.Debug("[INJECT] no desktop key for consumer usage", "usage", fmt.Sprintf("0x%04X", usage))
		return nil
	}
	if err := r.toggle(name, true); err != nil {
		return fmt.Errorf("inject: toggle %s: %w", name, err)
	}
	r.consumer = name
	return nil
}

func contains(keys []byte, k byte) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
