package main

import (
	"context"
	"errors"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/vacuum-controller/internal/command"
	"github.com/sweeney/vacuum-controller/internal/config"
	"github.com/sweeney/vacuum-controller/internal/lookahead"
	"github.com/sweeney/vacuum-controller/internal/metrics"
	"github.com/sweeney/vacuum-controller/internal/mqtt"
	"github.com/sweeney/vacuum-controller/internal/reactor"
	"github.com/sweeney/vacuum-controller/internal/status"
	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

// daemon owns every long-lived component. The controller, queue and
// heartbeat all live on the reactor loop; everything else reaches them
// through runner or loop.Do.
type daemon struct {
	cfg     config.Config
	loop    *reactor.Reactor
	queue   *lookahead.Queue
	ctrl    *vacuum.Controller
	runner  *command.Runner
	tracker *status.Tracker
	metrics *metrics.Metrics

	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus

	closeOutputs func() error
}

// newDaemon wires the reactor, queue and controller around outputs.
// closeOutputs drives the outputs to their shutdown level.
func newDaemon(cfg config.Config, outputs vacuum.Outputs, closeOutputs func() error, m *metrics.Metrics, clock func() time.Time) (*daemon, error) {
	if clock == nil {
		clock = time.Now
	}
	loop := reactor.New(clock)
	queue := lookahead.New(loop, cfg.QueueConfig())

	ctrl, err := vacuum.NewController(cfg.Timing(), outputs, queue, loop, loop.IsShutdown)
	if err != nil {
		queue.Close()
		return nil, err
	}

	d := &daemon{
		cfg:          cfg,
		loop:         loop,
		queue:        queue,
		ctrl:         ctrl,
		runner:       command.NewRunner(loop, command.NewRegistry(ctrl)),
		tracker:      status.NewTracker(clock(), statusConfig(cfg)),
		metrics:      m,
		publisher:    nopPublisher{},
		closeOutputs: closeOutputs,
	}
	ctrl.SetObserver(d.onEvent)
	queue.SetObserver(d.onDispatch)
	return d, nil
}

// attach sets the MQTT publisher. It must be called before serve.
func (d *daemon) attach(p mqtt.Publisher) {
	d.publisher = p
	if cs, ok := p.(mqtt.ConnectionStatus); ok {
		d.mqttStatus = cs
	}
}

func statusConfig(cfg config.Config) status.Config {
	t := cfg.Timing()
	return status.Config{
		Name:             cfg.Name,
		Chip:             cfg.GPIOChip,
		PumpPin:          cfg.PumpPin,
		ValveOpenPin:     cfg.ValveOpenPin,
		ValveClosePin:    cfg.ValveClosePin,
		CyclePeriod:      t.CyclePeriod,
		PumpLeadTime:     t.PumpLeadTime,
		ValveCloseSettle: t.ValveCloseSettle,
		ResendInterval:   t.ResendInterval(),
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		Broker:           cfg.MQTT.Broker,
		TopicPrefix:      cfg.MQTT.TopicPrefix,
		HTTPAddr:         cfg.HTTPAddr,
	}
}

// onEvent runs on the loop after every command, cycle and dispatch.
func (d *daemon) onEvent(ev vacuum.Event) {
	d.tracker.Observe(ev)
	d.tracker.Update(ev.Status, d.ctrl.Armed())
	d.metrics.ObserveEvent(ev)
	d.metrics.SetPending(d.queue.Pending())

	switch ev.Kind {
	case vacuum.KindDispatch:
		log.Printf("dispatch: %s at %s", ev.Name, ev.Time.Format(time.RFC3339Nano))
		if err := d.publisher.Publish(ev); err != nil {
			log.Printf("publish error: %v", err)
		}
	case vacuum.KindCommand:
		log.Printf("command: %s", ev.Name)
	}
}

func (d *daemon) onDispatch(dispatch lookahead.Dispatch) {
	d.metrics.ObserveDispatch(dispatch)
	d.metrics.SetPending(d.queue.Pending())
}

// runCommand executes a command from any goroutine.
func (d *daemon) runCommand(ctx context.Context, name string) error {
	err := d.runner.Run(ctx, name)
	if errors.Is(err, command.ErrUnknownCommand) {
		d.metrics.ObserveUnknownCommand()
	}
	if err != nil {
		log.Printf("command %s: %v", name, err)
	}
	return err
}

// onMQTTCommand handles a command name received on the command topic.
func (d *daemon) onMQTTCommand(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.runCommand(ctx, name)
}

// onHeartbeat publishes a status snapshot and reschedules itself.
func (d *daemon) onHeartbeat(now time.Time) time.Time {
	if d.loop.IsShutdown() {
		return reactor.Never
	}
	d.publishSystem(now, mqtt.EventHeartbeat, "", false)
	return now.Add(d.cfg.Heartbeat)
}

func (d *daemon) publishSystem(now time.Time, event, reason string, retained bool) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	} else {
		log.Printf("published %s event", event)
	}
}

// serve runs the loop until ctx is cancelled or a signal arrives, then shuts
// down in order: shutdown predicate, SHUTDOWN event, queue closed, loop
// stopped, outputs driven to their shutdown level, publisher closed.
func (d *daemon) serve(ctx context.Context, sig <-chan os.Signal) error {
	d.tracker.Update(d.ctrl.Status(), d.ctrl.Armed())
	d.publishSystem(d.loop.Now(), mqtt.EventStartup, "", true)

	// The loop is not running yet, so the controller may be used directly.
	if d.cfg.EnableOnStart {
		if err := d.ctrl.EnableAuto(); err != nil {
			log.Printf("enable on start: %v", err)
		}
	}
	if d.cfg.Heartbeat > 0 {
		d.loop.RegisterTimer(reactor.HandlerFunc(d.onHeartbeat), d.loop.Now().Add(d.cfg.Heartbeat))
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- d.loop.Run(loopCtx) }()

	reason := "CONTEXT"
	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
		reason = signalName(s)
	case <-ctx.Done():
		log.Printf("context done, shutting down")
	case err := <-loopDone:
		// Run only returns on cancellation, so this is unexpected.
		log.Printf("reactor exited: %v", err)
		return d.finish(err)
	}

	err := d.loop.Do(context.Background(), func() error {
		d.loop.Shutdown()
		d.publishSystem(d.loop.Now(), mqtt.EventShutdown, reason, true)
		if dropped := d.queue.Close(); dropped > 0 {
			log.Printf("discarded %d queued actions", dropped)
		}
		return nil
	})
	if err != nil {
		log.Printf("shutdown on loop: %v", err)
	}
	stopLoop()
	<-loopDone

	return d.finish(nil)
}

func (d *daemon) finish(err error) error {
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	if d.closeOutputs != nil {
		if cerr := d.closeOutputs(); cerr != nil {
			errs = append(errs, cerr)
		}
	}
	if cerr := d.publisher.Close(); cerr != nil {
		errs = append(errs, cerr)
	}
	return errors.Join(errs...)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// nopPublisher is used when MQTT is disabled.
type nopPublisher struct{}

func (nopPublisher) Publish(vacuum.Event) error           { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }
