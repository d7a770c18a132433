package internal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/vacuum-controller/internal/command"
	"github.com/sweeney/vacuum-controller/internal/gpio"
	"github.com/sweeney/vacuum-controller/internal/lookahead"
	"github.com/sweeney/vacuum-controller/internal/mqtt"
	"github.com/sweeney/vacuum-controller/internal/reactor"
	"github.com/sweeney/vacuum-controller/internal/status"
	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// system wires the real reactor, queue, controller and tracker around fake
// outputs and a fake publisher, driven by a manual clock.
type system struct {
	now       time.Time
	loop      *reactor.Reactor
	queue     *lookahead.Queue
	ctrl      *vacuum.Controller
	reg       *command.Registry
	tracker   *status.Tracker
	publisher *mqtt.FakePublisher
	pump      *gpio.FakeOutput
	open      *gpio.FakeOutput
	close     *gpio.FakeOutput
}

func newSystem(t *testing.T) *system {
	t.Helper()
	s := &system{
		now:       t0,
		publisher: mqtt.NewFakePublisher(),
		pump:      gpio.NewFakeOutput(),
		open:      gpio.NewFakeOutput(),
		close:     gpio.NewFakeOutput(),
	}
	s.loop = reactor.New(func() time.Time { return s.now })
	s.queue = lookahead.New(s.loop, lookahead.Config{
		BufferTime: 250 * time.Millisecond,
		FlushDelay: 50 * time.Millisecond,
	})

	ctrl, err := vacuum.NewController(vacuum.DefaultTiming(), vacuum.Outputs{
		Pump: s.pump, ValveOpen: s.open, ValveClose: s.close,
	}, s.queue, s.loop, s.loop.IsShutdown)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	s.ctrl = ctrl
	s.reg = command.NewRegistry(ctrl)
	s.tracker = status.NewTracker(t0, status.Config{Name: "test"})

	ctrl.SetObserver(func(ev vacuum.Event) {
		s.tracker.Observe(ev)
		s.tracker.Update(ev.Status, ctrl.Armed())
		if ev.Kind == vacuum.KindDispatch {
			if err := s.publisher.Publish(ev); err != nil {
				t.Errorf("publish: %v", err)
			}
		}
	})
	return s
}

// advance moves the clock to at and fires every timer due on the way.
func (s *system) advance(at time.Time) {
	for {
		next := s.loop.NextWaketime()
		if next.IsZero() || next.After(at) {
			break
		}
		if next.After(s.now) {
			s.now = next
		}
		s.loop.Step(s.now)
	}
	s.now = at
}

func checkLevel(t *testing.T, name string, out *gpio.FakeOutput, at time.Time, want bool) {
	t.Helper()
	got, known := out.LevelAt(at)
	if !known || got != want {
		t.Errorf("%s at %v: got %v (known=%v), want %v", name, at.Sub(t0), got, known, want)
	}
}

// TestIntegrationAutomaticCycle runs two watchdog cycles end to end and checks
// the output timeline, the published payloads and the status snapshot.
func TestIntegrationAutomaticCycle(t *testing.T) {
	s := newSystem(t)

	if err := s.reg.Execute(vacuum.CmdEnableAuto); err != nil {
		t.Fatalf("enable: %v", err)
	}
	s.advance(t0.Add(time.Second))

	// cycle fires at t0, flush at +50ms, base at +300ms
	base := t0.Add(300 * time.Millisecond)
	checkLevel(t, "pump", s.pump, base, true)
	checkLevel(t, "valve_close", s.close, base, false)
	checkLevel(t, "valve_open", s.open, base.Add(2*time.Second), true)

	off := base.Add(8 * time.Second)
	checkLevel(t, "valve_open", s.open, off, false)
	checkLevel(t, "valve_close", s.close, off.Add(time.Second), true)
	checkLevel(t, "pump", s.pump, off.Add(5*time.Second), true)
	checkLevel(t, "pump", s.pump, off.Add(6*time.Second), false)

	names := s.publisher.EventNames()
	if len(names) != 2 || names[0] != vacuum.SeqTurnOn || names[1] != vacuum.SeqTurnOff {
		t.Fatalf("published: got %v, want [TURN_ON TURN_OFF]", names)
	}

	var payload mqtt.Payload
	if err := json.Unmarshal(s.publisher.Payloads[1], &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Vacuum.Transitions) != 3 {
		t.Fatalf("TURN_OFF transitions: got %d, want 3", len(payload.Vacuum.Transitions))
	}
	if payload.Vacuum.Status["is_pump_running"] || !payload.Vacuum.Status["watchdog"] {
		t.Errorf("TURN_OFF status: %v", payload.Vacuum.Status)
	}

	// second cycle
	s.advance(t0.Add(601 * time.Second))
	if n := len(s.publisher.EventNames()); n != 4 {
		t.Errorf("after second cycle: got %d published events, want 4", n)
	}
	base2 := t0.Add(600*time.Second + 300*time.Millisecond)
	checkLevel(t, "pump", s.pump, base2, true)

	snap := s.tracker.Snapshot()
	if snap.Counts.Cycles != 2 || snap.Counts.Dispatched != 4 {
		t.Errorf("counts: %+v", snap.Counts)
	}
	if !snap.Armed {
		t.Error("expected armed watchdog")
	}
}

// TestIntegrationDisableStopsCycling verifies no further cycle is queued once
// automatic cycling is disabled.
func TestIntegrationDisableStopsCycling(t *testing.T) {
	s := newSystem(t)

	s.reg.Execute(vacuum.CmdEnableAuto)
	s.advance(t0.Add(time.Second))
	s.reg.Execute("disable_vacuum")
	s.advance(t0.Add(2000 * time.Second))

	if n := len(s.publisher.EventNames()); n != 2 {
		t.Errorf("got %d published events, want 2 from the single cycle", n)
	}
	if s.loop.Timers() != 1 {
		t.Errorf("only the queue flush timer should remain, got %d timers", s.loop.Timers())
	}
	if s.tracker.Snapshot().Armed {
		t.Error("expected disarmed watchdog")
	}
}

// TestIntegrationForcedValveNeverOverlaps sends opposing valve commands in
// separate flushes and checks both coils are never asserted at once.
func TestIntegrationForcedValveNeverOverlaps(t *testing.T) {
	s := newSystem(t)

	s.reg.Execute(vacuum.CmdForceValveOpen)
	s.advance(t0.Add(100 * time.Millisecond))
	s.reg.Execute(vacuum.CmdForceValveClose)
	s.advance(t0.Add(time.Second))

	for ms := 0; ms <= 5000; ms += 10 {
		at := t0.Add(time.Duration(ms) * time.Millisecond)
		o, _ := s.open.LevelAt(at)
		c, _ := s.close.LevelAt(at)
		if o && c {
			t.Fatalf("both valve coils asserted at %v", at.Sub(t0))
		}
	}
	if on, _ := s.close.LevelAt(t0.Add(5 * time.Second)); !on {
		t.Error("valve should end closed")
	}
	if s.ctrl.Status().ValveOpen {
		t.Error("status should report the valve closed")
	}
}

// TestIntegrationShutdownStopsCycling verifies a due cycle queues nothing once
// the loop is shutting down, and that the queue discards pending work.
func TestIntegrationShutdownStopsCycling(t *testing.T) {
	s := newSystem(t)

	s.reg.Execute(vacuum.CmdEnableAuto)
	s.advance(t0.Add(time.Second))
	s.reg.Execute(vacuum.CmdForcePumpOff)

	s.loop.Shutdown()
	if dropped := s.queue.Close(); dropped != 1 {
		t.Errorf("dropped: got %d, want 1", dropped)
	}
	s.advance(t0.Add(700 * time.Second))

	if n := len(s.publisher.EventNames()); n != 2 {
		t.Errorf("got %d published events, want 2", n)
	}
	if err := s.reg.Execute(vacuum.CmdForcePumpOn); !errors.Is(err, lookahead.ErrClosed) {
		t.Errorf("command after close: got %v, want ErrClosed", err)
	}
}

// TestIntegrationPublishFailureKeepsActuating verifies a broker failure does
// not affect the outputs.
func TestIntegrationPublishFailureKeepsActuating(t *testing.T) {
	s := newSystem(t)
	s.publisher.PublishError = errors.New("broker gone")
	s.ctrl.SetObserver(func(ev vacuum.Event) {
		if ev.Kind == vacuum.KindDispatch {
			_ = s.publisher.Publish(ev)
		}
	})

	s.reg.Execute(vacuum.CmdForcePumpOn)
	s.advance(t0.Add(time.Second))

	checkLevel(t, "pump", s.pump, t0.Add(300*time.Millisecond), true)
	if len(s.publisher.Events) != 0 {
		t.Errorf("expected nothing recorded, got %d", len(s.publisher.Events))
	}
}
