package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/vacuum-controller/internal/vacuum"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vacuum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	tm := cfg.Timing()
	assert.Equal(t, 600*time.Second, tm.CyclePeriod)
	assert.Equal(t, 8*time.Second, tm.PumpLeadTime)
	assert.Equal(t, 6*time.Second, tm.ValveCloseSettle)
	assert.Zero(t, tm.MaxScheduleDuration)
}

func TestLoadEmptyPathAndMissingFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
name: bed
vacuum_pump_pin: 5
valve_open_pin: 6
valve_close_pin: 13
shutdown_value: false
vacuum_timer: 300
pump_on_time: 10.5
valve_close_time: 4
maximum_schedule_duration: 2
enable_on_start: true
mqtt:
  broker: tcp://192.168.1.200:1883
  topic_prefix: workshop/vacuum
heartbeat: 5m
queue:
  buffer_time: 500ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bed", cfg.Name)
	assert.Equal(t, 5, cfg.PumpPin)
	assert.Equal(t, 13, cfg.ValveClosePin)
	assert.True(t, cfg.EnableOnStart)
	assert.Equal(t, "workshop/vacuum", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "vacuum-controller", cfg.MQTT.ClientID, "unset keys keep defaults")
	assert.Equal(t, 5*time.Minute, cfg.Heartbeat)
	assert.Equal(t, 500*time.Millisecond, cfg.QueueConfig().BufferTime)
	assert.Equal(t, 50*time.Millisecond, cfg.QueueConfig().FlushDelay)

	tm := cfg.Timing()
	assert.Equal(t, 300*time.Second, tm.CyclePeriod)
	assert.Equal(t, 10500*time.Millisecond, tm.PumpLeadTime)
	assert.Equal(t, 2*time.Second, tm.MaxScheduleDuration)
	assert.Equal(t, 1600*time.Millisecond, tm.ResendInterval())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero period", "vacuum_timer: 0\n"},
		{"negative lead", "pump_on_time: -1\n"},
		{"zero settle", "valve_close_time: 0\n"},
		{"max duration below range", "maximum_schedule_duration: 0.1\n"},
		{"max duration above range", "maximum_schedule_duration: 5.5\n"},
		{"shared pin", "vacuum_pump_pin: 4\nvalve_open_pin: 4\n"},
		{"negative pin", "valve_close_pin: -2\n"},
		{"negative heartbeat", "heartbeat: -1s\n"},
		{"negative queue", "queue:\n  max_pending: -1\n"},
		{"missing prefix", "mqtt:\n  topic_prefix: \"\"\n"},
		{"bad yaml", "vacuum_timer: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestTimingErrorsWrapSentinel(t *testing.T) {
	cfg := Default()
	cfg.VacuumTimer = 0
	assert.ErrorIs(t, cfg.Validate(), vacuum.ErrInvalidTiming)
}

func TestMQTTDisabledNeedsNoPrefix(t *testing.T) {
	cfg := Default()
	cfg.MQTT = MQTT{}
	assert.NoError(t, cfg.Validate())
}

func TestSharedPinErrorNamesPinsInOrder(t *testing.T) {
	cfg := Default()
	cfg.PumpPin, cfg.ValveOpenPin, cfg.ValveClosePin = 4, 5, 4

	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, "config: vacuum_pump_pin and valve_close_pin share pin 4", err.Error())
	}
}
