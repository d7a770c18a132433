package gpio

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// TimedOutput applies scheduled transitions to a Line at their due time.
// Transitions are applied in time order; transitions sharing a time are
// applied in the order Set was called.
type TimedOutput struct {
	name     string
	line     Line
	shutdown bool
	onApply  func(name string, tr Transition)

	mu      sync.Mutex
	pending []Transition
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewTimedOutput starts a worker that drives line. shutdownValue is the level
// the line is left at by Close.
func NewTimedOutput(name string, line Line, shutdownValue bool) *TimedOutput {
	o := &TimedOutput{
		name:     name,
		line:     line,
		shutdown: shutdownValue,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go o.run()
	return o
}

// OnApply registers fn to be called from the worker after each transition is
// written to the line. It must be set before the first Set.
func (o *TimedOutput) OnApply(fn func(name string, tr Transition)) {
	o.onApply = fn
}

// Set schedules a transition.
func (o *TimedOutput) Set(at time.Time, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	i := sort.Search(len(o.pending), func(i int) bool {
		return o.pending[i].At.After(at)
	})
	o.pending = append(o.pending, Transition{})
	copy(o.pending[i+1:], o.pending[i:])
	o.pending[i] = Transition{At: at, On: on}

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of transitions not yet applied.
func (o *TimedOutput) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// due pops every transition due at now and returns them with the wait until
// the next one (negative when nothing is left).
func (o *TimedOutput) due(now time.Time) ([]Transition, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for n < len(o.pending) && !o.pending[n].At.After(now) {
		n++
	}
	ready := append([]Transition(nil), o.pending[:n]...)
	o.pending = o.pending[n:]

	if len(o.pending) == 0 {
		return ready, -1
	}
	return ready, o.pending[0].At.Sub(now)
}

func (o *TimedOutput) run() {
	defer close(o.done)
	for {
		ready, wait := o.due(time.Now())
		for _, tr := range ready {
			o.apply(tr)
		}

		if wait < 0 {
			select {
			case <-o.wake:
			case <-o.stop:
				return
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-o.wake:
			timer.Stop()
		case <-o.stop:
			timer.Stop()
			return
		}
	}
}

func (o *TimedOutput) apply(tr Transition) {
	if err := o.line.SetValue(level(tr.On)); err != nil {
		log.Printf("gpio: set %s=%d: %v", o.name, level(tr.On), err)
		return
	}
	if o.onApply != nil {
		o.onApply(o.name, tr)
	}
}

// Close discards pending transitions, drives the line to the shutdown level
// and releases it. Closing twice is a no-op.
func (o *TimedOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	dropped := len(o.pending)
	o.pending = nil
	o.mu.Unlock()

	close(o.stop)
	<-o.done

	if dropped > 0 {
		log.Printf("gpio: %s closed with %d pending transitions discarded", o.name, dropped)
	}

	var errs []error
	if err := o.line.SetValue(level(o.shutdown)); err != nil {
		errs = append(errs, fmt.Errorf("set %s to shutdown value: %w", o.name, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", o.name, err))
	}
	return errors.Join(errs...)
}
