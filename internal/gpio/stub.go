//go:build !linux

package gpio

import "errors"

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*RealChip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// RequestOutput is not implemented on non-Linux platforms.
func (c *RealChip) RequestOutput(pin int, startValue bool) (Line, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
