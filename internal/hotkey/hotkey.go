// Package hotkey runs the global gohook session. It turns a key chord into
// pairing button presses and feeds every key event to a desktop key source.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// Event is emitted on the channel returned by Events.
type Event struct {
	// Pressed is true when the chord went down, false when it was released.
	Pressed bool
}

// Listener owns the gohook session. Only one may run per process.
type Listener struct {
	keys  []string
	ch    chan Event
	done  chan struct{}
	once  sync.Once
	onKey []func(hook.Event)

	mu   sync.Mutex
	down bool
}

// NewListener creates a Listener for the given chord. keys are gohook key
// names (e.g. ["ctrl", "shift", "p"]). An empty chord emits no events.
func NewListener(keys []string) *Listener {
	return &Listener{
		keys: keys,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the chord events. The channel is closed when Start returns.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// OnKey adds fn to the receivers of every key down, hold and up event. It
// must be called before Start.
func (l *Listener) OnKey(fn func(hook.Event)) {
	l.onKey = append(l.onKey, fn)
}

// press and release report chord edges; auto-repeat is swallowed.
func (l *Listener) press()   { l.edge(true) }
func (l *Listener) release() { l.edge(false) }

func (l *Listener) edge(pressed bool) {
	l.mu.Lock()
	if l.down == pressed {
		l.mu.Unlock()
		return
	}
	l.down = pressed
	l.mu.Unlock()

	select {
	case l.ch <- Event{Pressed: pressed}:
	default: // don't block the hook goroutine
	}
}

func (l *Listener) dispatch(ev hook.Event) {
	for _, fn := range l.onKey {
		fn(ev)
	}
}

// Start registers the callbacks and runs the hook. It blocks until Stop is
// called. Run it in a goroutine.
func (l *Listener) Start() {
	if len(l.keys) > 0 {
		hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.press() })
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.release() })
	}
	if len(l.onKey) > 0 {
		for _, kind := range []uint8{hook.KeyDown, hook.KeyHold, hook.KeyUp} {
			hook.Register(kind, []string{}, l.dispatch)
		}
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the listener. It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
