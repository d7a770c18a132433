// Package status provides a thread-safe status tracker for the vacuum-controller daemon.
// The controller runs on the reactor loop; HTTP handlers and MQTT system
// events read from here instead.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

// Config contains daemon configuration for display.
type Config struct {
	Name             string
	Chip             string
	PumpPin          int
	ValveOpenPin     int
	ValveClosePin    int
	CyclePeriod      time.Duration
	PumpLeadTime     time.Duration
	ValveCloseSettle time.Duration
	ResendInterval   time.Duration
	HeartbeatMs      int64
	Broker           string
	TopicPrefix      string
	HTTPAddr         string
}

// Counts tallies controller activity since startup.
type Counts struct {
	Cycles         int
	Commands       int
	CommandErrors  int
	Dispatched     int
	DispatchErrors int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Vacuum        vacuum.Status
	Armed         bool
	Counts        Counts
	LastCommand   string
	LastCycle     time.Time
	LastError     string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the controller flags and whether the watchdog alarm is armed.
func (t *Tracker) Update(st vacuum.Status, armed bool) {
	t.mu.Lock()
	t.snap.Vacuum = st
	t.snap.Armed = armed
	t.mu.Unlock()
}

// Observe records a controller event. Called from the reactor loop through
// the controller's observer.
func (t *Tracker) Observe(ev vacuum.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Vacuum = ev.Status
	switch ev.Kind {
	case vacuum.KindCommand:
		t.snap.Counts.Commands++
		t.snap.LastCommand = ev.Name
		if ev.Err != nil {
			t.snap.Counts.CommandErrors++
		}
	case vacuum.KindCycle:
		t.snap.Counts.Cycles++
		t.snap.LastCycle = ev.Time
	case vacuum.KindDispatch:
		t.snap.Counts.Dispatched++
		if ev.Err != nil {
			t.snap.Counts.DispatchErrors++
		}
	}
	if ev.Err != nil {
		t.snap.LastError = ev.Err.Error()
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
