// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/vacuum-controller/internal/gpio"
	"github.com/sweeney/vacuum-controller/internal/lookahead"
	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

// Config is the daemon configuration. Cycle timings are in seconds.
type Config struct {
	Name string `yaml:"name"`

	GPIOChip      string `yaml:"gpio_chip"`
	PumpPin       int    `yaml:"vacuum_pump_pin"`
	ValveOpenPin  int    `yaml:"valve_open_pin"`
	ValveClosePin int    `yaml:"valve_close_pin"`
	StartValue    bool   `yaml:"start_value"`
	ShutdownValue bool   `yaml:"shutdown_value"`

	VacuumTimer             float64 `yaml:"vacuum_timer"`
	PumpOnTime              float64 `yaml:"pump_on_time"`
	ValveCloseTime          float64 `yaml:"valve_close_time"`
	MaximumScheduleDuration float64 `yaml:"maximum_schedule_duration"`
	EnableOnStart           bool    `yaml:"enable_on_start"`

	MQTT      MQTT          `yaml:"mqtt"`
	HTTPAddr  string        `yaml:"http_addr"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	Queue     Queue         `yaml:"queue"`
}

// MQTT configures the broker connection. An empty broker disables MQTT.
type MQTT struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// Queue configures the lookahead queue.
type Queue struct {
	BufferTime time.Duration `yaml:"buffer_time"`
	FlushDelay time.Duration `yaml:"flush_delay"`
	MaxPending int           `yaml:"max_pending"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	t := vacuum.DefaultTiming()
	q := lookahead.DefaultConfig()
	return Config{
		Name:           "vacuum",
		GPIOChip:       gpio.DefaultChip,
		PumpPin:        gpio.DefaultPinPump,
		ValveOpenPin:   gpio.DefaultPinValveOpen,
		ValveClosePin:  gpio.DefaultPinValveClose,
		VacuumTimer:    t.CyclePeriod.Seconds(),
		PumpOnTime:     t.PumpLeadTime.Seconds(),
		ValveCloseTime: t.ValveCloseSettle.Seconds(),
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "vacuum",
			ClientID:    "vacuum-controller",
		},
		HTTPAddr:  ":8080",
		Heartbeat: 15 * time.Minute,
		Queue: Queue{
			BufferTime: q.BufferTime,
			FlushDelay: q.FlushDelay,
			MaxPending: q.MaxPending,
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults. An empty
// path or a missing file yields the defaults. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Timing converts the cycle settings to controller timing.
func (c Config) Timing() vacuum.Timing {
	return vacuum.Timing{
		CyclePeriod:         seconds(c.VacuumTimer),
		PumpLeadTime:        seconds(c.PumpOnTime),
		ValveCloseSettle:    seconds(c.ValveCloseTime),
		MaxScheduleDuration: seconds(c.MaximumScheduleDuration),
	}
}

// QueueConfig converts the queue settings.
func (c Config) QueueConfig() lookahead.Config {
	return lookahead.Config{
		BufferTime: c.Queue.BufferTime,
		FlushDelay: c.Queue.FlushDelay,
		MaxPending: c.Queue.MaxPending,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.Timing().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	pins := []struct {
		name string
		pin  int
	}{
		{"vacuum_pump_pin", c.PumpPin},
		{"valve_open_pin", c.ValveOpenPin},
		{"valve_close_pin", c.ValveClosePin},
	}
	seen := map[int]string{}
	for _, p := range pins {
		if p.pin < 0 {
			return fmt.Errorf("config: %s must be >= 0, got %d", p.name, p.pin)
		}
		if other, dup := seen[p.pin]; dup {
			return fmt.Errorf("config: %s and %s share pin %d", other, p.name, p.pin)
		}
		seen[p.pin] = p.name
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("config: heartbeat must be >= 0, got %v", c.Heartbeat)
	}
	if c.Queue.BufferTime < 0 || c.Queue.FlushDelay < 0 || c.Queue.MaxPending < 0 {
		return errors.New("config: queue settings must not be negative")
	}
	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		return errors.New("config: mqtt.topic_prefix is required when mqtt.broker is set")
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
