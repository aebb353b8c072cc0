package ble

import (
	"context"
	"sync"
)

// pump hands link events to post from its own goroutine. push never blocks,
// so a link may report results from inside the keyboard's event handler.
type pump struct {
	post func(any)

	mu    sync.Mutex
	queue []any
	wake  chan struct{}
}

func newPump(post func(any)) *pump {
	return &pump{post: post, wake: make(chan struct{}, 1)}
}

func (p *pump) push(evs ...any) {
	p.mu.Lock()
	p.queue = append(p.queue, evs...)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// take removes every queued event.
func (p *pump) take() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	evs := p.queue
	p.queue = nil
	return evs
}

// run forwards events in order until ctx is done.
func (p *pump) run(ctx context.Context) {
	for {
		for _, ev := range p.take() {
			if ctx.Err() != nil {
				return
			}
			p.post(ev)
		}
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
	}
}
