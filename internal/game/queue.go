package game

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KDT2006/defusedivision/internal/protocol"
)

// ErrQueueClosed is returned by GetState once a player's queue is torn down.
var ErrQueueClosed = errors.New("state queue closed")

// OverflowPolicy decides what a full Queue does with a new event.
type OverflowPolicy string

const (
	// DropOldest discards the oldest pending event to make room.
	DropOldest OverflowPolicy = "drop-oldest"
	// Disconnect closes the queue, which tears the session down.
	Disconnect OverflowPolicy = "disconnect"
)

// ParseOverflowPolicy validates a configured policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case DropOldest, Disconnect:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

const DefaultQueueSize = 256

// Queue is a bounded per-player outbox. The bout is the only writer; the
// player's session is the only reader. Push never blocks.
type Queue struct {
	mu      sync.Mutex
	events  chan protocol.Event
	closed  bool
	policy  OverflowPolicy
	dropped int
}

func NewQueue(size int, policy OverflowPolicy) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if policy == "" {
		policy = DropOldest
	}
	return &Queue{
		events: make(chan protocol.Event, size),
		policy: policy,
	}
}

// Push enqueues ev. It reports false if the event was not delivered: the
// queue is closed, or it overflowed under the Disconnect policy. Pushing to a
// closed queue is a silent drop.
func (q *Queue) Push(ev protocol.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	select {
	case q.events <- ev:
		return true
	default:
	}

	switch q.policy {
	case Disconnect:
		q.closeLocked()
		return false
	default:
		select {
		case <-q.events:
			q.dropped++
		default:
		}
		select {
		case q.events <- ev:
			return true
		default:
			q.dropped++
			return false
		}
	}
}

// Pop blocks for the next event. It reports false once the queue is closed
// and drained.
func (q *Queue) Pop() (protocol.Event, bool) {
	ev, ok := <-q.events
	return ev, ok
}

// Close is the sentinel that stops the reader. It is safe to call more than
// once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

func (q *Queue) closeLocked() {
	if !q.closed {
		q.closed = true
		close(q.events)
	}
}

// Closed reports whether Close ran or the queue overflowed into a disconnect.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Dropped counts events discarded by DropOldest.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Len is the number of events waiting.
func (q *Queue) Len() int {
	return len(q.events)
}
