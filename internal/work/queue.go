package work

import (
	"sync/atomic"
)

// DefaultQueueSize is the event queue capacity when none is configured.
const DefaultQueueSize = 16

// Queue is the bounded multi-producer, single-consumer event queue feeding
// the state machine. Post never blocks: when the queue is full the event
// being posted is rejected (drop newest) and ErrQueueFull is returned.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
	onDrop  atomic.Pointer[func(Event)]
}

// NewQueue creates a queue holding at most size events. A non-positive size
// selects DefaultQueueSize.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Event, size)}
}

// Post enqueues ev without blocking. It is safe to call from any goroutine,
// including provider callbacks and timer functions.
func (q *Queue) Post(ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		q.dropped.Add(1)
		if fn := q.onDrop.Load(); fn != nil {
			(*fn)(ev)
		}
		return ErrQueueFull
	}
}

// SetOnDrop registers a callback invoked (on the posting goroutine) for
// every rejected event.
func (q *Queue) SetOnDrop(fn func(Event)) {
	q.onDrop.Store(&fn)
}

// Events exposes the receive side for the consumer's select loop.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Dropped returns how many events have been rejected since creation.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
