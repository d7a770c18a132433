package vacuum

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/vacuum-controller/internal/lookahead"
	"github.com/sweeney/vacuum-controller/internal/reactor"
)

// Queue accepts deferred actions and runs them later, in submission order.
type Queue interface {
	Submit(a lookahead.Action) error
}

// Timers is the watchdog timer service.
type Timers interface {
	Now() time.Time
	RegisterTimer(h reactor.Handler, waketime time.Time) *reactor.Timer
	UnregisterTimer(t *reactor.Timer)
}

// Controller sequences the pump and valve outputs. All methods must be called
// from the reactor loop; the host serializes commands with timer callbacks.
type Controller struct {
	timing   Timing
	outputs  Outputs
	queue    Queue
	timers   Timers
	shutdown func() bool
	observer func(Event)

	state State
	timer *reactor.Timer

	// settled holds the latest transition handed to each output.
	settled map[Channel]time.Time
}

// NewController validates timing and returns an idle controller. shutdown may
// be nil when the host never shuts down.
func NewController(timing Timing, outputs Outputs, queue Queue, timers Timers, shutdown func() bool) (*Controller, error) {
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	if outputs.Pump == nil || outputs.ValveOpen == nil || outputs.ValveClose == nil {
		return nil, errors.New("vacuum: all three outputs are required")
	}
	if queue == nil || timers == nil {
		return nil, errors.New("vacuum: queue and timer service are required")
	}
	if shutdown == nil {
		shutdown = func() bool { return false }
	}
	return &Controller{
		timing:   timing,
		outputs:  outputs,
		queue:    queue,
		timers:   timers,
		shutdown: shutdown,
		settled:  make(map[Channel]time.Time, len(Channels)),
	}, nil
}

// SetObserver registers fn to be called after every command, cycle and
// dispatched sequence.
func (c *Controller) SetObserver(fn func(Event)) {
	c.observer = fn
}

// Timing returns the controller's timing.
func (c *Controller) Timing() Timing {
	return c.timing
}

// Status returns the public intent flags.
func (c *Controller) Status() Status {
	return Status{
		Watchdog:     c.state.WatchdogActive,
		ValveOpen:    c.state.ValveOpen,
		PumpRunning:  c.state.PumpRunning,
		ForcedVacuum: c.state.ForcedVacuum,
	}
}

// Armed reports whether the watchdog alarm is registered.
func (c *Controller) Armed() bool {
	return c.state.timerRegistered
}

// EnableAuto turns on automatic cycling. The first cycle is due immediately.
func (c *Controller) EnableAuto() error {
	c.state.WatchdogActive = true
	c.arm()
	c.notify(Event{Name: CmdEnableAuto})
	return nil
}

// DisableAuto stops automatic cycling. Sequences already queued by an earlier
// cycle still run.
func (c *Controller) DisableAuto() error {
	c.state.WatchdogActive = false
	c.disarm()
	c.notify(Event{Name: CmdDisableAuto})
	return nil
}

// ForceVacuumOn queues the turn-on sequence.
func (c *Controller) ForceVacuumOn() error {
	err := c.submit(c.sequence(SeqTurnOn, 0, TurnOnSteps(), turnedOn))
	c.state.ForcedVacuum = true
	return c.commandDone(CmdForceVacuumOn, err)
}

// ForceVacuumOff queues the turn-off sequence.
func (c *Controller) ForceVacuumOff() error {
	err := c.submit(c.sequence(SeqTurnOff, 0, TurnOffSteps(c.timing.ValveCloseSettle), turnedOff))
	c.state.ForcedVacuum = false
	return c.commandDone(CmdForceVacuumOff, err)
}

// ForcePumpOn queues the pump on.
func (c *Controller) ForcePumpOn() error {
	err := c.submit(c.sequence(CmdForcePumpOn, 0, PumpSteps(true), nil))
	c.state.PumpRunning = true
	return c.commandDone(CmdForcePumpOn, err)
}

// ForcePumpOff queues the pump off.
func (c *Controller) ForcePumpOff() error {
	err := c.submit(c.sequence(CmdForcePumpOff, 0, PumpSteps(false), nil))
	c.state.PumpRunning = false
	return c.commandDone(CmdForcePumpOff, err)
}

// ForceValveOpen queues valve-close released at t and valve-open asserted at
// t+ValveSwitchDelay.
func (c *Controller) ForceValveOpen() error {
	err := c.submit(c.sequence(CmdForceValveOpen, 0, ValveOpenSteps(), nil))
	c.state.ValveOpen = true
	return c.commandDone(CmdForceValveOpen, err)
}

// ForceValveClose queues valve-open released at t and valve-close asserted at
// t+ValveSwitchDelay.
func (c *Controller) ForceValveClose() error {
	err := c.submit(c.sequence(CmdForceValveClose, 0, ValveCloseSteps(), nil))
	c.state.ValveOpen = false
	return c.commandDone(CmdForceValveClose, err)
}

// OnFire runs one automatic cycle. It implements reactor.Handler.
//
// On shutdown it queues nothing and never fires again. While automatic
// cycling is disabled it queues nothing and asks to fire again immediately;
// DisableAuto unregisters the alarm, so that only matters if a firing races
// with it. Otherwise it queues a turn-on and a turn-off PumpLeadTime later,
// and reschedules CyclePeriod after now regardless of when the queue runs
// them.
func (c *Controller) OnFire(now time.Time) time.Time {
	if c.shutdown() {
		return reactor.Never
	}
	if !c.state.WatchdogActive {
		return now
	}

	err := c.submit(c.sequence(SeqTurnOn, 0, TurnOnSteps(), turnedOn))
	if err == nil {
		err = c.submit(c.sequence(SeqTurnOff, c.timing.PumpLeadTime, TurnOffSteps(c.timing.ValveCloseSettle), turnedOff))
	}
	if err != nil {
		log.Printf("vacuum: cycle not queued: %v", err)
	}
	c.notify(Event{Kind: KindCycle, Time: now, Name: EventCycle, Err: err})
	return now.Add(c.timing.CyclePeriod)
}

func (c *Controller) arm() {
	if c.state.timerRegistered {
		return
	}
	c.timer = c.timers.RegisterTimer(c, c.timers.Now())
	c.state.timerRegistered = true
}

func (c *Controller) disarm() {
	if !c.state.timerRegistered {
		return
	}
	c.timers.UnregisterTimer(c.timer)
	c.timer = nil
	c.state.timerRegistered = false
}

func (c *Controller) sequence(name string, delay time.Duration, steps []Step, effect func(*State)) *Sequence {
	return &Sequence{Name: name, Delay: delay, Steps: steps, effect: effect, c: c}
}

func (c *Controller) submit(s *Sequence) error {
	if err := c.queue.Submit(s); err != nil {
		return fmt.Errorf("queue %s: %w", s.Name, err)
	}
	return nil
}

func (c *Controller) commandDone(name string, err error) error {
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
	}
	c.notify(Event{Name: name, Err: err})
	return err
}

func (c *Controller) notify(ev Event) {
	if c.observer == nil {
		return
	}
	ev.Status = c.Status()
	c.observer(ev)
}
