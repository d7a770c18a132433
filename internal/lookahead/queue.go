// Package lookahead defers actions until the queue resolves a base execution
// time for them. Actions run on the reactor loop, in the order they were
// submitted, and every action in one flush sees the same base time.
package lookahead

import (
	"errors"
	"log"
	"time"

	"github.com/sweeney/vacuum-controller/internal/reactor"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("lookahead: queue closed")

	// ErrQueueFull is returned by Submit when MaxPending actions are waiting.
	ErrQueueFull = errors.New("lookahead: queue full")
)

// Action is a deferred unit of work. Run receives the resolved base time.
type Action interface {
	Run(base time.Time) error
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(base time.Time) error

// Run calls f(base).
func (f ActionFunc) Run(base time.Time) error {
	return f(base)
}

// Dispatch describes one action after it ran.
type Dispatch struct {
	Base   time.Time
	Action Action
	Err    error
}

// Config controls base time resolution.
type Config struct {
	// BufferTime is how far ahead of the flush the base time is placed, so
	// outputs have time to receive their transitions before they are due.
	BufferTime time.Duration
	// FlushDelay batches actions submitted close together into one flush.
	FlushDelay time.Duration
	// MaxPending caps waiting actions (0 = unlimited).
	MaxPending int
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	return Config{
		BufferTime: 250 * time.Millisecond,
		FlushDelay: 50 * time.Millisecond,
		MaxPending: 64,
	}
}

// Queue is the lookahead queue. All methods must be called from the reactor
// loop.
type Queue struct {
	loop     *reactor.Reactor
	cfg      Config
	pending  []Action
	lastBase time.Time
	flush    *reactor.Timer
	closed   bool
	observer func(Dispatch)
}

// New creates a Queue that flushes on the given reactor.
func New(loop *reactor.Reactor, cfg Config) *Queue {
	q := &Queue{loop: loop, cfg: cfg}
	q.flush = loop.RegisterTimer(reactor.HandlerFunc(q.onFlush), reactor.Never)
	return q
}

// SetObserver registers fn to be called after each action runs.
func (q *Queue) SetObserver(fn func(Dispatch)) {
	q.observer = fn
}

// Submit appends a to the pending list. It never runs a synchronously.
func (q *Queue) Submit(a Action) error {
	if q.closed {
		return ErrClosed
	}
	if q.cfg.MaxPending > 0 && len(q.pending) >= q.cfg.MaxPending {
		return ErrQueueFull
	}
	q.pending = append(q.pending, a)
	if len(q.pending) == 1 {
		q.loop.UpdateTimer(q.flush, q.loop.Now().Add(q.cfg.FlushDelay))
	}
	return nil
}

// Pending returns the number of actions waiting for a base time.
func (q *Queue) Pending() int {
	return len(q.pending)
}

// LastBase returns the most recently resolved base time.
func (q *Queue) LastBase() time.Time {
	return q.lastBase
}

func (q *Queue) onFlush(now time.Time) time.Time {
	q.Flush(now)
	// Actions submitted while flushing re-armed the timer.
	return q.flush.Waketime()
}

// Flush resolves a base time and runs every pending action in submission
// order. The base time never moves backwards. It returns the base time, or
// the zero time if nothing was pending.
func (q *Queue) Flush(now time.Time) time.Time {
	if len(q.pending) == 0 {
		return time.Time{}
	}

	base := now.Add(q.cfg.BufferTime)
	if base.Before(q.lastBase) {
		base = q.lastBase
	}
	q.lastBase = base

	actions := q.pending
	q.pending = nil
	q.loop.UpdateTimer(q.flush, reactor.Never)

	for _, a := range actions {
		err := a.Run(base)
		if err != nil {
			log.Printf("lookahead: action failed: %v", err)
		}
		if q.observer != nil {
			q.observer(Dispatch{Base: base, Action: a, Err: err})
		}
	}
	return base
}

// Close rejects further submissions and discards pending actions. It returns
// the number of actions discarded.
func (q *Queue) Close() int {
	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.loop.UnregisterTimer(q.flush)
	if dropped > 0 {
		log.Printf("lookahead: closed with %d pending actions discarded", dropped)
	}
	return dropped
}
