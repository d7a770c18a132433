// Package metrics exposes controller activity as Prometheus collectors on a
// private registry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/vacuum-controller/internal/gpio"
	"github.com/sweeney/vacuum-controller/internal/lookahead"
	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

const namespace = "vacuum"

// Metrics holds every collector. All methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	cycles         prometheus.Counter
	commands       *prometheus.CounterVec
	dispatched     prometheus.Counter
	dispatchErrors prometheus.Counter
	pending        prometheus.Gauge
	transitions    *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Automatic vacuum cycles started by the watchdog.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled, by command name and result.",
		}, []string{"command", "result"}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dispatched_total",
			Help:      "Deferred actions run by the lookahead queue.",
		}),
		dispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_errors_total",
			Help:      "Deferred actions that returned an error.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending",
			Help:      "Actions waiting in the lookahead queue.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_transitions_total",
			Help:      "Output level changes applied to the hardware lines.",
		}, []string{"channel", "value"}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.commands,
		m.dispatched,
		m.dispatchErrors,
		m.pending,
		m.transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent counts commands and cycles. Dispatch events are counted by
// ObserveDispatch.
func (m *Metrics) ObserveEvent(ev vacuum.Event) {
	switch ev.Kind {
	case vacuum.KindCycle:
		m.cycles.Inc()
	case vacuum.KindCommand:
		m.commands.WithLabelValues(ev.Name, result(ev.Err)).Inc()
	}
}

// ObserveDispatch counts one action run by the lookahead queue.
func (m *Metrics) ObserveDispatch(d lookahead.Dispatch) {
	m.dispatched.Inc()
	if d.Err != nil {
		m.dispatchErrors.Inc()
	}
}

// ObserveUnknownCommand counts a command name that was not recognised.
func (m *Metrics) ObserveUnknownCommand() {
	m.commands.WithLabelValues("unknown", "rejected").Inc()
}

// SetPending records the lookahead queue depth.
func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

// ObserveTransition counts a level change applied to an output line. It
// matches the gpio.TimedOutput OnApply signature.
func (m *Metrics) ObserveTransition(channel string, tr gpio.Transition) {
	m.transitions.WithLabelValues(channel, strconv.Itoa(level(tr.On))).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
