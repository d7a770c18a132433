//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// consumer labels requested lines in gpioinfo output.
const consumer = "vacuum-controller"

// RealChip opens output lines on actual hardware using the Linux GPIO
// character device.
type RealChip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named GPIO chip (e.g. "gpiochip0").
func OpenChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealChip{chip: chip}, nil
}

// RequestOutput requests pin as an output driven to startValue.
func (c *RealChip) RequestOutput(pin int, startValue bool) (Line, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(level(startValue)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return line, nil
}

// Close releases the chip. Lines requested from it are closed separately.
func (c *RealChip) Close() error {
	if c.chip == nil {
		return nil
	}
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}
