package gpio

import (
	"sync"
	"time"
)

// FakeOutput is a test double that records scheduled transitions instead of
// applying them.
type FakeOutput struct {
	// Transitions contains every transition passed to Set, in call order.
	Transitions []Transition

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the transition.
func (f *FakeOutput) Set(at time.Time, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Transitions = append(f.Transitions, Transition{At: at, On: on})
	return nil
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// LevelAt returns the level the output would have at t, replaying recorded
// transitions in time order (ties in call order). known is false when no
// transition is due by t.
func (f *FakeOutput) LevelAt(t time.Time) (on bool, known bool) {
	var latest time.Time
	for _, tr := range f.Transitions {
		if tr.At.After(t) {
			continue
		}
		if !known || !tr.At.Before(latest) {
			on, latest, known = tr.On, tr.At, true
		}
	}
	return on, known
}

// Reset clears recorded transitions.
func (f *FakeOutput) Reset() {
	f.Transitions = nil
	f.SetError = nil
	f.Closed = false
}

// FakeLine is a Line that records written values. Safe for concurrent use,
// since TimedOutput writes from its own goroutine.
type FakeLine struct {
	mu       sync.Mutex
	values   []int
	closed   bool
	written  chan int
	SetError error
}

// NewFakeLine creates a FakeLine. Every written value is also sent on
// Written(), which buffers up to 64 values.
func NewFakeLine() *FakeLine {
	return &FakeLine{written: make(chan int, 64)}
}

// SetValue records value.
func (l *FakeLine) SetValue(value int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SetError != nil {
		return l.SetError
	}
	l.values = append(l.values, value)
	select {
	case l.written <- value:
	default:
	}
	return nil
}

// Close marks the line as closed.
func (l *FakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Values returns a copy of all written values.
func (l *FakeLine) Values() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.values...)
}

// Closed reports whether Close was called.
func (l *FakeLine) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Written returns the channel each written value is sent on.
func (l *FakeLine) Written() <-chan int {
	return l.written
}
