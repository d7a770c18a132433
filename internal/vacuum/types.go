// Package vacuum contains the vacuum cycle controller: the pump and valve
// sequencing logic, the command handlers, and the watchdog-driven automatic
// cycle. It never blocks and never reads hardware; time only reaches it
// through the base time the lookahead queue resolves and the now passed to
// OnFire.
package vacuum

import (
	"time"

	"github.com/sweeney/vacuum-controller/internal/gpio"
)

// Channel identifies one of the three digital outputs.
type Channel string

const (
	Pump       Channel = "pump"
	ValveOpen  Channel = "valve_open"
	ValveClose Channel = "valve_close"
)

// Channels lists every output in a stable order.
var Channels = []Channel{Pump, ValveOpen, ValveClose}

// Command names as accepted on the MQTT, HTTP and CLI surfaces.
const (
	CmdEnableAuto      = "ENABLE_VACUUM"
	CmdDisableAuto     = "DISABLE_VACUUM"
	CmdForceVacuumOn   = "FORCE_VACUUM_ON"
	CmdForceVacuumOff  = "FORCE_VACUUM_OFF"
	CmdForcePumpOn     = "FORCE_PUMP_ON"
	CmdForcePumpOff    = "FORCE_PUMP_OFF"
	CmdForceValveOpen  = "FORCE_VALVE_OPEN"
	CmdForceValveClose = "FORCE_VALVE_CLOSE"
)

// Sequence names reported for dispatched actions.
const (
	SeqTurnOn  = "TURN_ON"
	SeqTurnOff = "TURN_OFF"
)

// EventCycle is the Event name used when the watchdog starts a cycle.
const EventCycle = "CYCLE"

// Outputs holds the three timed output ports.
type Outputs struct {
	Pump       gpio.Output
	ValveOpen  gpio.Output
	ValveClose gpio.Output
}

func (o Outputs) port(ch Channel) gpio.Output {
	switch ch {
	case Pump:
		return o.Pump
	case ValveOpen:
		return o.ValveOpen
	case ValveClose:
		return o.ValveClose
	}
	return nil
}

// State is the controller's intent state. The flags record the last
// requested or dispatched state, not anything read back from hardware.
type State struct {
	WatchdogActive bool
	ValveOpen      bool
	PumpRunning    bool
	ForcedVacuum   bool

	timerRegistered bool
}

// Status is a point-in-time copy of the public intent flags.
type Status struct {
	Watchdog     bool
	ValveOpen    bool
	PumpRunning  bool
	ForcedVacuum bool
}

// Map returns the status keyed the way it is reported to clients.
func (s Status) Map() map[string]bool {
	return map[string]bool{
		"watchdog":         s.Watchdog,
		"is_valve_open":    s.ValveOpen,
		"is_pump_running":  s.PumpRunning,
		"is_forced_vacuum": s.ForcedVacuum,
	}
}

// EventKind says what produced an Event.
type EventKind int

const (
	KindCommand EventKind = iota
	KindCycle
	KindDispatch
)

func (k EventKind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindCycle:
		return "cycle"
	case KindDispatch:
		return "dispatch"
	}
	return "unknown"
}

// Scheduled is one transition handed to an output port.
type Scheduled struct {
	Channel Channel
	At      time.Time
	On      bool
}

// Event is passed to the controller's observer after its state changes.
type Event struct {
	Kind   EventKind
	Time   time.Time // now for cycles, start time for dispatches, zero for commands
	Name   string    // command name, EventCycle, or the dispatched sequence name
	Err    error
	Status Status

	// Scheduled lists the transitions of a dispatch, in step order.
	Scheduled []Scheduled
}
