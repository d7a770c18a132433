package reactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// countingHandler records fire times and returns a fixed reschedule period.
type countingHandler struct {
	fired  []time.Time
	period time.Duration
}

func (h *countingHandler) OnFire(now time.Time) time.Time {
	h.fired = append(h.fired, now)
	if h.period == 0 {
		return Never
	}
	return now.Add(h.period)
}

func TestRegisterAndStep(t *testing.T) {
	r := New(func() time.Time { return epoch })
	h := &countingHandler{period: 10 * time.Second}

	timer := r.RegisterTimer(h, epoch)
	require.True(t, timer.Registered())
	assert.Equal(t, 1, r.Timers())

	assert.Equal(t, 1, r.Step(epoch))
	assert.Equal(t, []time.Time{epoch}, h.fired)
	assert.Equal(t, epoch.Add(10*time.Second), timer.Waketime())

	// Not due yet.
	assert.Equal(t, 0, r.Step(epoch.Add(9*time.Second)))

	assert.Equal(t, 1, r.Step(epoch.Add(10*time.Second)))
	assert.Len(t, h.fired, 2)
}

func TestNeverStopsTimer(t *testing.T) {
	r := New(nil)
	h := &countingHandler{}
	timer := r.RegisterTimer(h, epoch)

	r.Step(epoch)
	assert.True(t, timer.Waketime().IsZero())
	assert.True(t, timer.Registered(), "returning Never keeps the timer registered")
	assert.Equal(t, 0, r.Step(epoch.Add(time.Hour)))
	assert.True(t, r.NextWaketime().IsZero())
}

func TestDormantTimerNeverFires(t *testing.T) {
	r := New(nil)
	h := &countingHandler{}
	r.RegisterTimer(h, Never)

	assert.Equal(t, 0, r.Step(epoch.Add(24*time.Hour)))
	assert.Empty(t, h.fired)
}

func TestUnregisterIdempotent(t *testing.T) {
	r := New(nil)
	h := &countingHandler{period: time.Second}
	timer := r.RegisterTimer(h, epoch)

	r.UnregisterTimer(timer)
	r.UnregisterTimer(timer)
	r.UnregisterTimer(nil)

	assert.False(t, timer.Registered())
	assert.Equal(t, 0, r.Timers())
	assert.Equal(t, 0, r.Step(epoch))

	// Updating an unregistered timer does not revive it.
	r.UpdateTimer(timer, epoch)
	assert.True(t, timer.Waketime().IsZero())
}

func TestStepFiresEarliestFirst(t *testing.T) {
	r := New(nil)
	var order []string
	r.RegisterTimer(HandlerFunc(func(time.Time) time.Time {
		order = append(order, "late")
		return Never
	}), epoch.Add(2*time.Second))
	r.RegisterTimer(HandlerFunc(func(time.Time) time.Time {
		order = append(order, "early")
		return Never
	}), epoch.Add(time.Second))

	r.Step(epoch.Add(3 * time.Second))
	assert.Equal(t, []string{"early", "late"}, order)
}

func TestHandlerUnregistersOtherTimer(t *testing.T) {
	r := New(nil)
	victim := &countingHandler{}
	var victimTimer *Timer
	r.RegisterTimer(HandlerFunc(func(time.Time) time.Time {
		r.UnregisterTimer(victimTimer)
		return Never
	}), epoch)
	victimTimer = r.RegisterTimer(victim, epoch.Add(time.Millisecond))

	r.Step(epoch.Add(time.Second))
	assert.Empty(t, victim.fired)
}

func TestImmediateRescheduleFiresNextStep(t *testing.T) {
	r := New(nil)
	calls := 0
	r.RegisterTimer(HandlerFunc(func(now time.Time) time.Time {
		calls++
		return now
	}), epoch)

	assert.Equal(t, 1, r.Step(epoch))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, r.Step(epoch))
	assert.Equal(t, 2, calls)
}

func TestNextWaketime(t *testing.T) {
	r := New(nil)
	assert.True(t, r.NextWaketime().IsZero())

	r.RegisterTimer(&countingHandler{}, epoch.Add(5*time.Second))
	r.RegisterTimer(&countingHandler{}, epoch.Add(3*time.Second))
	r.RegisterTimer(&countingHandler{}, Never)

	assert.Equal(t, epoch.Add(3*time.Second), r.NextWaketime())
}

func TestShutdownFlag(t *testing.T) {
	r := New(nil)
	assert.False(t, r.IsShutdown())
	r.Shutdown()
	assert.True(t, r.IsShutdown())
}

func TestRunFiresTimersAndCalls(t *testing.T) {
	r := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	fired := make(chan struct{}, 1)
	err := r.Do(ctx, func() error {
		r.RegisterTimer(HandlerFunc(func(time.Time) time.Time {
			fired <- struct{}{}
			return Never
		}), r.Now().Add(5*time.Millisecond))
		return nil
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	want := errors.New("boom")
	assert.Equal(t, want, r.Do(ctx, func() error { return want }))

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.ErrorIs(t, r.Do(context.Background(), func() error { return nil }), ErrStopped)
}

func TestCallRunsOnLoopAndFailsAfterStop(t *testing.T) {
	r := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	ran := make(chan struct{})
	require.NoError(t, r.Call(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("posted call did not run")
	}

	cancel()
	<-runDone
	assert.ErrorIs(t, r.Call(func() {}), ErrStopped)

	// With the backlog full only the stop case can proceed.
	for i := 0; i < cap(r.calls); i++ {
		r.calls <- func() {}
	}
	errCh := make(chan error, 1)
	go func() { errCh <- r.Call(func() {}) }()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("Call blocked after Run returned")
	}
}
