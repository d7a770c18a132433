// Package mqtt provides MQTT publishing and command intake with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "vacuum"

// Topics are the MQTT topics under one prefix.
type Topics struct {
	Events  string // dispatched actuation events
	System  string // STARTUP, SHUTDOWN, HEARTBEAT, RECONNECTED, OFFLINE
	Command string // inbound command names
}

// NewTopics derives the topics from a prefix such as "workshop/vacuum".
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a dispatched actuation event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event vacuum.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Vacuum VacuumPayload `json:"vacuum"`
}

// VacuumPayload contains the actuation event details.
type VacuumPayload struct {
	Timestamp   string              `json:"timestamp"`
	Event       string              `json:"event"`
	Error       string              `json:"error,omitempty"`
	Status      map[string]bool     `json:"status"`
	Transitions []TransitionPayload `json:"transitions"`
}

// TransitionPayload is one scheduled output change.
type TransitionPayload struct {
	Channel string `json:"channel"`
	At      string `json:"at"`
	Value   int    `json:"value"`
}

// FormatPayload creates the JSON payload for a dispatched action.
func FormatPayload(event vacuum.Event) ([]byte, error) {
	payload := Payload{
		Vacuum: VacuumPayload{
			Timestamp:   event.Time.UTC().Format(time.RFC3339Nano),
			Event:       event.Name,
			Status:      event.Status.Map(),
			Transitions: make([]TransitionPayload, 0, len(event.Scheduled)),
		},
	}
	if event.Err != nil {
		payload.Vacuum.Error = event.Err.Error()
	}
	for _, s := range event.Scheduled {
		value := 0
		if s.On {
			value = 1
		}
		payload.Vacuum.Transitions = append(payload.Vacuum.Transitions, TransitionPayload{
			Channel: string(s.Channel),
			At:      s.At.UTC().Format(time.RFC3339Nano),
			Value:   value,
		})
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
