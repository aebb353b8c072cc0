package hotkey

import (
	"testing"

	hook "github.com/robotn/gohook"
	"github.com/stretchr/testify/assert"
)

func drain(l *Listener) []Event {
	var evs []Event
	for {
		select {
		case ev := <-l.ch:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestChordEdges(t *testing.T) {
	l := NewListener([]string{"ctrl", "shift", "p"})

	l.press()
	l.press()
	l.press()
	l.release()
	l.release()

	assert.Equal(t, []Event{{Pressed: true}, {Pressed: false}}, drain(l))
}

func TestChordDoesNotBlock(t *testing.T) {
	l := NewListener([]string{"f12"})
	for i := 0; i < 100; i++ {
		l.press()
		l.release()
	}
	assert.Len(t, drain(l), cap(l.ch))
}

func TestOnKeyDispatch(t *testing.T) {
	l := NewListener(nil)
	var a, b []uint16
	l.OnKey(func(ev hook.Event) { a = append(a, ev.Keycode) })
	l.OnKey(func(ev hook.Event) { b = append(b, ev.Keycode) })

	l.dispatch(hook.Event{Kind: hook.KeyDown, Keycode: 30})
	l.dispatch(hook.Event{Kind: hook.KeyUp, Keycode: 30})

	assert.Equal(t, []uint16{30, 30}, a)
	assert.Equal(t, a, b)
}

func TestStopTwice(t *testing.T) {
	l := NewListener(nil)
	l.Stop()
	l.Stop()
}
