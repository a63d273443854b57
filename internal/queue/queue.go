// Package queue holds pending events in send order.
package queue

import (
	"sync"

	"github.com/ppiankov/callwatch/internal/event"
)

// Queue is a mutex-guarded FIFO of events. Insertion order is send order.
// Each method is a single atomic step with respect to the others.
type Queue struct {
	mu     sync.Mutex
	events []event.Event
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Append adds ev to the tail and returns the new length.
func (q *Queue) Append(ev event.Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
	return len(q.events)
}

// TakeHead removes and returns up to n of the oldest events.
func (q *Queue) TakeHead(n int) []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.events) == 0 {
		return nil
	}
	if n > len(q.events) {
		n = len(q.events)
	}
	batch := make([]event.Event, n)
	copy(batch, q.events[:n])

	rest := make([]event.Event, len(q.events)-n)
	copy(rest, q.events[n:])
	q.events = rest
	return batch
}

// RestoreHead puts a previously taken batch back in front of everything
// queued since, keeping the batch's own order.
func (q *Queue) RestoreHead(batch []event.Event) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]event.Event, 0, len(batch)+len(q.events))
	merged = append(merged, batch...)
	merged = append(merged, q.events...)
	q.events = merged
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Snapshot returns a copy of the pending events, oldest first.
func (q *Queue) Snapshot() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]event.Event, len(q.events))
	copy(out, q.events)
	return out
}
