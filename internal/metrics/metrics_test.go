package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/vacuum-controller/internal/gpio"
	"github.com/sweeney/vacuum-controller/internal/lookahead"
	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

func TestObserveEvent(t *testing.T) {
	m := New()

	m.ObserveEvent(vacuum.Event{Kind: vacuum.KindCycle, Name: vacuum.EventCycle})
	m.ObserveEvent(vacuum.Event{Kind: vacuum.KindCycle, Name: vacuum.EventCycle})
	m.ObserveEvent(vacuum.Event{Kind: vacuum.KindCommand, Name: vacuum.CmdForcePumpOn})
	m.ObserveEvent(vacuum.Event{Kind: vacuum.KindCommand, Name: vacuum.CmdForcePumpOn, Err: errors.New("full")})
	m.ObserveEvent(vacuum.Event{Kind: vacuum.KindDispatch, Name: vacuum.SeqTurnOn})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues(vacuum.CmdForcePumpOn, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues(vacuum.CmdForcePumpOn, "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.dispatched), "dispatch events are counted from the queue")
}

func TestObserveDispatch(t *testing.T) {
	m := New()
	m.ObserveDispatch(lookahead.Dispatch{Base: time.Now()})
	m.ObserveDispatch(lookahead.Dispatch{Base: time.Now(), Err: errors.New("line gone")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchErrors))
}

func TestPendingAndTransitions(t *testing.T) {
	m := New()
	m.SetPending(3)
	m.ObserveTransition("pump", gpio.Transition{On: true})
	m.ObserveTransition("pump", gpio.Transition{On: false})
	m.ObserveTransition("pump", gpio.Transition{On: true})
	m.ObserveUnknownCommand()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("pump", "1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("pump", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("unknown", "rejected")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveEvent(vacuum.Event{Kind: vacuum.KindCycle})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "vacuum_cycles_total 1")
	assert.Contains(t, string(body), "vacuum_queue_pending 0")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRegistryGathersCycles(t *testing.T) {
	m := New()
	m.ObserveEvent(vacuum.Event{Kind: vacuum.KindCycle, Name: vacuum.EventCycle})

	expected := `
# HELP vacuum_cycles_total Automatic vacuum cycles started by the watchdog.
# TYPE vacuum_cycles_total counter
vacuum_cycles_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "vacuum_cycles_total"))

	n, err := testutil.GatherAndCount(m.Registry(), "vacuum_output_transitions_total")
	require.NoError(t, err)
	assert.Zero(t, n, "no transitions observed yet")
}
