package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

// blockingPublisher waits on release before each publish.
type blockingPublisher struct {
	*FakePublisher
	release chan struct{}
}

func (b *blockingPublisher) Publish(ev vacuum.Event) error {
	<-b.release
	return b.FakePublisher.Publish(ev)
}

func TestAsyncDeliversInOrderBeforeClose(t *testing.T) {
	fake := NewFakePublisher()
	a := NewAsync(fake, 8)

	a.PublishSystem(SystemEvent{Event: EventStartup})
	for _, name := range []string{vacuum.SeqTurnOn, vacuum.SeqTurnOff} {
		if err := a.Publish(vacuum.Event{Name: name}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	a.PublishSystem(SystemEvent{Event: EventShutdown})

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	names := fake.EventNames()
	if len(names) != 2 || names[0] != vacuum.SeqTurnOn || names[1] != vacuum.SeqTurnOff {
		t.Errorf("events: got %v", names)
	}
	sys := fake.SystemEventNames()
	if len(sys) != 2 || sys[0] != EventStartup || sys[1] != EventShutdown {
		t.Errorf("system events: got %v", sys)
	}
	if !fake.IsClosed() {
		t.Error("inner publisher should be closed")
	}
}

func TestAsyncBacklogFull(t *testing.T) {
	inner := &blockingPublisher{FakePublisher: NewFakePublisher(), release: make(chan struct{})}
	a := NewAsync(inner, 1)

	// First job is taken by the worker and blocks; second fills the queue.
	a.Publish(vacuum.Event{Name: "a"})
	deadline := time.Now().Add(time.Second)
	var err error
	for time.Now().Before(deadline) {
		if err = a.Publish(vacuum.Event{Name: "b"}); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err != nil {
		t.Fatalf("queue never accepted a second job: %v", err)
	}

	if err := a.Publish(vacuum.Event{Name: "c"}); !errors.Is(err, ErrBacklog) {
		t.Errorf("expected ErrBacklog, got %v", err)
	}

	close(inner.release)
	a.Close()
	if got := inner.EventNames(); len(got) != 2 {
		t.Errorf("delivered: got %v, want [a b]", got)
	}
}

func TestAsyncPublishAfterClose(t *testing.T) {
	a := NewAsync(NewFakePublisher(), 4)
	a.Close()

	if err := a.Publish(vacuum.Event{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestAsyncIsConnected(t *testing.T) {
	fake := NewFakePublisher()
	a := NewAsync(fake, 4)
	defer a.Close()

	if a.IsConnected() {
		t.Error("expected disconnected")
	}
	fake.mu.Lock()
	fake.Connected = true
	fake.mu.Unlock()
	if !a.IsConnected() {
		t.Error("expected connected")
	}
}
