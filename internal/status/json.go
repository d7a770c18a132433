package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Name          string          `json:"name"`
	Vacuum        map[string]bool `json:"vacuum"`
	Armed         bool            `json:"armed"`
	LastCommand   string          `json:"last_command,omitempty"`
	LastCycle     string          `json:"last_cycle,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Counts        CountsJSON      `json:"counts"`
	Config        ConfigJSON      `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of activity counts.
type CountsJSON struct {
	Cycles         int `json:"cycles"`
	Commands       int `json:"commands"`
	CommandErrors  int `json:"command_errors"`
	Dispatched     int `json:"dispatched"`
	DispatchErrors int `json:"dispatch_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip             string  `json:"gpio_chip"`
	PumpPin          int     `json:"vacuum_pump_pin"`
	ValveOpenPin     int     `json:"valve_open_pin"`
	ValveClosePin    int     `json:"valve_close_pin"`
	VacuumTimer      float64 `json:"vacuum_timer"`
	PumpOnTime       float64 `json:"pump_on_time"`
	ValveCloseTime   float64 `json:"valve_close_time"`
	ResendIntervalMs int64   `json:"resend_interval_ms,omitempty"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	Broker           string  `json:"broker"`
	TopicPrefix      string  `json:"topic_prefix"`
	HTTPAddr         string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Name:          snap.Config.Name,
		Vacuum:        snap.Vacuum.Map(),
		Armed:         snap.Armed,
		LastCommand:   snap.LastCommand,
		LastError:     snap.LastError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Cycles:         snap.Counts.Cycles,
			Commands:       snap.Counts.Commands,
			CommandErrors:  snap.Counts.CommandErrors,
			Dispatched:     snap.Counts.Dispatched,
			DispatchErrors: snap.Counts.DispatchErrors,
		},
		Config: ConfigJSON{
			Chip:             snap.Config.Chip,
			PumpPin:          snap.Config.PumpPin,
			ValveOpenPin:     snap.Config.ValveOpenPin,
			ValveClosePin:    snap.Config.ValveClosePin,
			VacuumTimer:      snap.Config.CyclePeriod.Seconds(),
			PumpOnTime:       snap.Config.PumpLeadTime.Seconds(),
			ValveCloseTime:   snap.Config.ValveCloseSettle.Seconds(),
			ResendIntervalMs: snap.Config.ResendInterval.Milliseconds(),
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			TopicPrefix:      snap.Config.TopicPrefix,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
	if !snap.LastCycle.IsZero() {
		inner.LastCycle = snap.LastCycle.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
