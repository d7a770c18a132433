// Package reactor provides the single-goroutine timer loop the daemon runs on.
// Timer callbacks and posted calls run to completion on the loop goroutine and
// never run concurrently with each other, so code driven only from the loop
// needs no locking.
package reactor

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"
)

// Never is the waketime of a timer that should not fire again.
var Never = time.Time{}

// maxIdle bounds how long the loop sleeps with no due timer.
const maxIdle = time.Second

// ErrStopped is returned by Do once Run has returned.
var ErrStopped = errors.New("reactor: stopped")

// Handler is invoked when a timer's waketime has passed.
// It returns the next waketime, or Never.
type Handler interface {
	OnFire(now time.Time) time.Time
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(now time.Time) time.Time

// OnFire calls f(now).
func (f HandlerFunc) OnFire(now time.Time) time.Time {
	return f(now)
}

// Timer is a registered alarm. The zero value is an unregistered timer.
type Timer struct {
	handler    Handler
	waketime   time.Time
	registered bool
}

// Waketime returns the next time the timer fires, or Never.
func (t *Timer) Waketime() time.Time {
	return t.waketime
}

// Registered reports whether the timer is still known to its reactor.
func (t *Timer) Registered() bool {
	return t.registered
}

// Reactor owns the registered timers and the loop that fires them.
// RegisterTimer, UpdateTimer, UnregisterTimer and Step must only be called
// from the loop goroutine (or before Run starts). Other goroutines use Call
// or Do.
type Reactor struct {
	clock    func() time.Time
	timers   []*Timer
	calls    chan func()
	done     chan struct{}
	shutdown atomic.Bool
}

// New creates a Reactor. A nil clock means time.Now.
func New(clock func() time.Time) *Reactor {
	if clock == nil {
		clock = time.Now
	}
	return &Reactor{
		clock: clock,
		calls: make(chan func(), 64),
		done:  make(chan struct{}),
	}
}

// Now returns the reactor's current time.
func (r *Reactor) Now() time.Time {
	return r.clock()
}

// RegisterTimer adds a timer that fires h at waketime (Never = dormant).
func (r *Reactor) RegisterTimer(h Handler, waketime time.Time) *Timer {
	t := &Timer{handler: h, waketime: waketime, registered: true}
	r.timers = append(r.timers, t)
	return t
}

// UpdateTimer moves a registered timer to a new waketime.
func (r *Reactor) UpdateTimer(t *Timer, waketime time.Time) {
	if t == nil || !t.registered {
		return
	}
	t.waketime = waketime
}

// UnregisterTimer removes a timer. Unregistering twice is a no-op.
func (r *Reactor) UnregisterTimer(t *Timer) {
	if t == nil || !t.registered {
		return
	}
	t.registered = false
	t.waketime = Never
	for i, x := range r.timers {
		if x == t {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
}

// Timers returns the number of registered timers.
func (r *Reactor) Timers() int {
	return len(r.timers)
}

// NextWaketime returns the earliest pending waketime, or Never.
func (r *Reactor) NextWaketime() time.Time {
	next := Never
	for _, t := range r.timers {
		if t.waketime.IsZero() {
			continue
		}
		if next.IsZero() || t.waketime.Before(next) {
			next = t.waketime
		}
	}
	return next
}

// Step fires every timer due at now, earliest first, and returns how many
// fired. A timer rescheduled to a time <= now fires on the next Step, not
// this one.
func (r *Reactor) Step(now time.Time) int {
	var due []*Timer
	for _, t := range r.timers {
		if !t.waketime.IsZero() && !t.waketime.After(now) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].waketime.Before(due[j].waketime)
	})

	fired := 0
	for _, t := range due {
		// An earlier callback may have unregistered or moved this one.
		if !t.registered || t.waketime.IsZero() || t.waketime.After(now) {
			continue
		}
		next := t.handler.OnFire(now)
		fired++
		if t.registered {
			t.waketime = next
		}
	}
	return fired
}

// Call posts fn to run on the loop goroutine without waiting for it. It may
// block while the call backlog is full, and returns ErrStopped once Run has
// returned.
func (r *Reactor) Call(fn func()) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.calls <- fn:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

// Do runs fn on the loop goroutine and waits for its result.
func (r *Reactor) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case r.calls <- func() { result <- fn() }:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown marks the host as shutting down. Timer handlers consult
// IsShutdown before doing new work.
func (r *Reactor) Shutdown() {
	r.shutdown.Store(true)
}

// IsShutdown reports whether Shutdown has been called.
func (r *Reactor) IsShutdown() bool {
	return r.shutdown.Load()
}

// Run fires timers and posted calls until ctx is cancelled. It returns nil on
// cancellation. Run must only be called once.
func (r *Reactor) Run(ctx context.Context) error {
	defer close(r.done)

	for {
		r.Step(r.Now())

		wait := maxIdle
		if next := r.NextWaketime(); !next.IsZero() {
			if d := next.Sub(r.Now()); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case fn := <-r.calls:
			timer.Stop()
			fn()
		case <-timer.C:
		}
	}
}
