package mqtt

import (
	"errors"
	"log"
	"sync"

	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

// ErrBacklog is returned when the async queue is full and a message is dropped.
var ErrBacklog = errors.New("mqtt: publish backlog full")

// ErrClosed is returned for publishes after Close.
var ErrClosed = errors.New("mqtt: publisher closed")

// Async hands publishes to a background goroutine so callers on the reactor
// loop never wait on the broker. Messages are delivered in order.
type Async struct {
	inner Publisher

	mu     sync.Mutex
	closed bool
	jobs   chan func() error
	done   chan struct{}
}

// NewAsync wraps inner with a queue of the given depth.
func NewAsync(inner Publisher, depth int) *Async {
	if depth <= 0 {
		depth = defaultBuffer
	}
	a := &Async{
		inner: inner,
		jobs:  make(chan func() error, depth),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for job := range a.jobs {
		if err := job(); err != nil {
			log.Printf("mqtt: async publish: %v", err)
		}
	}
}

func (a *Async) enqueue(job func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.jobs <- job:
		return nil
	default:
		return ErrBacklog
	}
}

// Publish queues an actuation event.
func (a *Async) Publish(event vacuum.Event) error {
	return a.enqueue(func() error { return a.inner.Publish(event) })
}

// PublishSystem queues a system event.
func (a *Async) PublishSystem(event SystemEvent) error {
	return a.enqueue(func() error { return a.inner.PublishSystem(event) })
}

// IsConnected reports the inner publisher's connection state, or false when
// it does not track one.
func (a *Async) IsConnected() bool {
	if cs, ok := a.inner.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Close delivers everything already queued, then closes the inner publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.jobs)
	a.mu.Unlock()

	<-a.done
	return a.inner.Close()
}
