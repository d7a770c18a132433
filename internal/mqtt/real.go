package mqtt

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

const (
	connectTimeout  = 10 * time.Second
	publishTimeout  = 5 * time.Second
	disconnectQuiet = 1000 // ms
	defaultBuffer   = 256
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics

	// BufferSize bounds the messages kept while disconnected.
	BufferSize int

	// MaxConnectTime bounds the initial connection attempts. Zero retries
	// until the context is cancelled.
	MaxConnectTime time.Duration

	// OnCommand is called with each payload received on the command topic.
	// It runs on a paho goroutine.
	OnCommand func(name string)

	// OnConnectionChange is called when the connection goes up or down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are held in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	opts   Options

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher connects to the broker, retrying with exponential backoff
// until it succeeds, MaxConnectTime passes or ctx is cancelled.
func NewRealPublisher(ctx context.Context, opts Options) (*RealPublisher, error) {
	p := newPublisher(opts)

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline})
	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectTimeout(connectTimeout).
		SetWill(opts.Topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
	p.client = paho.NewClient(clientOpts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = opts.MaxConnectTime

	err := backoff.Retry(func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			log.Printf("mqtt: connect to %s timed out", opts.Broker)
			return fmt.Errorf("connection timeout")
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: connect to %s: %v", opts.Broker, err)
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	log.Printf("mqtt: connected to %s as %s", opts.Broker, opts.ClientID)
	return p, nil
}

func newPublisher(opts Options) *RealPublisher {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBuffer
	}
	return &RealPublisher{
		opts: opts,
		buf:  newRingBuffer(size),
	}
}

// onConnect runs on every successful (re)connection.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.everUp = true
	p.connected = true
	pending, dropped := p.buf.drain()
	p.mu.Unlock()

	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(true)
	}

	if p.opts.OnCommand != nil {
		token := c.Subscribe(p.opts.Topics.Command, 1, p.onMessage)
		go func() {
			if token.WaitTimeout(publishTimeout) && token.Error() != nil {
				log.Printf("mqtt: subscribe %s: %v", p.opts.Topics.Command, token.Error())
			}
		}()
	}

	go func() {
		if dropped > 0 {
			log.Printf("mqtt: %d messages dropped while disconnected", dropped)
		}
		if len(pending) > 0 {
			log.Printf("mqtt: replaying %d buffered messages", len(pending))
		}
		for _, msg := range pending {
			if err := p.publish(msg); err != nil {
				log.Printf("mqtt: replay to %s: %v", msg.topic, err)
			}
		}
		if reconnect {
			payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventReconnected})
			if err := p.publish(bufferedMsg{topic: p.opts.Topics.System, payload: payload, qos: 1, retained: true}); err != nil {
				log.Printf("mqtt: publish reconnected: %v", err)
			}
		}
	}()
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(false)
	}
}

func (p *RealPublisher) onMessage(_ paho.Client, msg paho.Message) {
	name := strings.TrimSpace(string(msg.Payload()))
	if name == "" {
		return
	}
	p.opts.OnCommand(name)
}

// Publish sends a dispatched actuation event to the MQTT broker.
func (p *RealPublisher) Publish(event vacuum.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.opts.Topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - we want to ensure delivery
	return p.publish(bufferedMsg{topic: p.opts.Topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// publish sends msg now or buffers it while disconnected. A failed send is
// buffered for replay and reported.
func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.bufferLocked(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(msg); err != nil {
		p.mu.Lock()
		p.bufferLocked(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

// bufferLocked holds msg for replay. Caller holds p.mu.
func (p *RealPublisher) bufferLocked(msg bufferedMsg) {
	if p.buf.push(msg) && p.buf.dropped == 1 {
		log.Printf("mqtt: buffer full (%d messages), dropping oldest", len(p.buf.slots))
	}
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		log.Printf("mqtt: closing with %d undelivered messages", n)
	}
	p.client.Disconnect(disconnectQuiet)
	return nil
}

// SendCommand publishes one command name to the command topic using a
// short-lived client with a unique ID.
func SendCommand(ctx context.Context, broker, clientID string, topics Topics, name string) error {
	id := fmt.Sprintf("%s-send-%s", clientID, uuid.NewString()[:8])
	client := paho.NewClient(paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(id).
		SetConnectTimeout(connectTimeout))

	token := client.Connect()
	if !waitToken(ctx, token, connectTimeout) {
		return fmt.Errorf("connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", broker, err)
	}
	defer client.Disconnect(250)

	token = client.Publish(topics.Command, 1, false, name)
	if !waitToken(ctx, token, publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topics.Command)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topics.Command, err)
	}
	return nil
}

func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
