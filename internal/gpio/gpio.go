// Package gpio provides timed digital outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"time"
)

// ErrClosed is returned by Set after the output has been closed.
var ErrClosed = errors.New("gpio: output closed")

// Output is a timed digital output port. Outputs are write-only: callers keep
// their own notion of the current level.
type Output interface {
	// Set schedules the output to switch to on at the given time.
	// Transitions due in the past apply immediately.
	Set(at time.Time, on bool) error

	// Close drives the output to its shutdown level and releases it.
	Close() error
}

// Line is a raw output line that switches immediately.
type Line interface {
	SetValue(value int) error
	Close() error
}

// Transition is one scheduled level change.
type Transition struct {
	At time.Time
	On bool
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Default pin definitions (BCM numbering)
const (
	DefaultPinPump       = 17
	DefaultPinValveOpen  = 27
	DefaultPinValveClose = 22
)

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
