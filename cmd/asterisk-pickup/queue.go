package main

import (
	"context"
	"sync"

	"github.com/sweeney/asterisk-pickup/internal/ami"
)

// eventQueue sits between the AMI reader and the tracker. push never
// blocks, so action responses keep reaching the client while a pickup
// holds channel locks the tracker is waiting on.
type eventQueue struct {
	mu     sync.Mutex
	events []ami.Event
	closed bool
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(evt ami.Event) {
	q.mu.Lock()
	q.events = append(q.events, evt)
	q.mu.Unlock()
	q.wake()
}

// close lets run return once everything pushed so far is handled.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// run hands queued events to fn in arrival order until the queue is closed
// and drained, or ctx ends.
func (q *eventQueue) run(ctx context.Context, fn func(ami.Event)) {
	for {
		q.mu.Lock()
		batch, closed := q.events, q.closed
		q.events = nil
		q.mu.Unlock()

		for _, evt := range batch {
			fn(evt)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return
		}
	}
}
