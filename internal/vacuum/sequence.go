package vacuum

import (
	"errors"
	"fmt"
	"time"
)

// Step is one output transition at Offset past a sequence's start.
type Step struct {
	Channel Channel
	Offset  time.Duration
	On      bool
}

// TurnOnSteps starts the pump, releases valve-close and opens the valve
// ValveOpenLead later.
func TurnOnSteps() []Step {
	return []Step{
		{Channel: Pump, Offset: 0, On: true},
		{Channel: ValveOpen, Offset: ValveOpenLead, On: true},
		{Channel: ValveClose, Offset: 0, On: false},
	}
}

// TurnOffSteps releases valve-open, closes the valve ValveSwitchDelay later,
// and stops the pump once the valve has had settle to close.
func TurnOffSteps(settle time.Duration) []Step {
	return []Step{
		{Channel: Pump, Offset: settle, On: false},
		{Channel: ValveOpen, Offset: 0, On: false},
		{Channel: ValveClose, Offset: ValveSwitchDelay, On: true},
	}
}

// ValveOpenSteps asserts valve-open one switch delay after valve-close is
// released.
func ValveOpenSteps() []Step {
	return []Step{
		{Channel: ValveOpen, Offset: ValveSwitchDelay, On: true},
		{Channel: ValveClose, Offset: 0, On: false},
	}
}

// ValveCloseSteps asserts valve-close one switch delay after valve-open is
// released.
func ValveCloseSteps() []Step {
	return []Step{
		{Channel: ValveOpen, Offset: 0, On: false},
		{Channel: ValveClose, Offset: ValveSwitchDelay, On: true},
	}
}

// PumpSteps switches the pump at the base time.
func PumpSteps(on bool) []Step {
	return []Step{{Channel: Pump, Offset: 0, On: on}}
}

// Sequence is a deferred action handed to the lookahead queue. When the queue
// resolves a base time, each step is scheduled at base+Delay+Offset in order,
// then the sequence's state effect is applied.
//
// A sequence never starts before the latest transition already scheduled on
// any output it drives. A valve release therefore lands at or after the
// previous assert, so both directions are never asserted together, and an
// earlier pump-off can never land after a later pump-on.
type Sequence struct {
	Name  string
	Delay time.Duration
	Steps []Step

	effect func(*State)
	c      *Controller
}

// Run schedules every step on its output. A failing step does not stop the
// remaining ones.
func (s *Sequence) Run(base time.Time) error {
	start := s.start(base)
	var errs []error
	scheduled := make([]Scheduled, 0, len(s.Steps))
	for _, st := range s.Steps {
		at := start.Add(st.Offset)
		scheduled = append(scheduled, Scheduled{Channel: st.Channel, At: at, On: st.On})
		out := s.c.outputs.port(st.Channel)
		if err := out.Set(at, st.On); err != nil {
			errs = append(errs, fmt.Errorf("%s: set %s: %w", s.Name, st.Channel, err))
		}
		if at.After(s.c.settled[st.Channel]) {
			s.c.settled[st.Channel] = at
		}
	}
	if s.effect != nil {
		s.effect(&s.c.state)
	}
	err := errors.Join(errs...)
	s.c.notify(Event{Kind: KindDispatch, Time: start, Name: s.Name, Err: err, Scheduled: scheduled})
	return err
}

func (s *Sequence) start(base time.Time) time.Time {
	start := base.Add(s.Delay)
	for _, st := range s.Steps {
		if last := s.c.settled[st.Channel]; last.After(start) {
			start = last
		}
	}
	return start
}

// At returns the absolute time of every step for the given base time,
// ignoring earlier scheduled transitions.
func (s *Sequence) At(base time.Time) []time.Time {
	start := base.Add(s.Delay)
	at := make([]time.Time, len(s.Steps))
	for i, st := range s.Steps {
		at[i] = start.Add(st.Offset)
	}
	return at
}

func turnedOn(st *State) {
	st.PumpRunning = true
	st.ValveOpen = true
}

func turnedOff(st *State) {
	st.PumpRunning = false
	st.ValveOpen = false
}
