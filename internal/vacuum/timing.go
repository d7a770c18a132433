package vacuum

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTiming is wrapped by every Timing validation failure.
var ErrInvalidTiming = errors.New("vacuum: invalid timing")

const (
	// ValveSwitchDelay separates the deassert of one valve direction from the
	// assert of the other.
	ValveSwitchDelay = 1 * time.Second

	// ValveOpenLead delays the valve-open assert after the pump starts so the
	// valve driver releases before pressure builds.
	ValveOpenLead = 2 * time.Second

	// MinScheduleDuration and MaxScheduleDuration bound the optional output
	// max-duration setting.
	MinScheduleDuration = 500 * time.Millisecond
	MaxScheduleDuration = 5 * time.Second

	// resendHostTime is subtracted from the max duration to get the resend
	// interval.
	resendHostTime = 400 * time.Millisecond
)

// Timing is the cycle configuration. It is fixed once the controller is built.
type Timing struct {
	// CyclePeriod is the interval between automatic cycles.
	CyclePeriod time.Duration
	// PumpLeadTime is how long the pump runs before the valve is told to close.
	PumpLeadTime time.Duration
	// ValveCloseSettle keeps the pump running after the valve-close command
	// while the valve is still closing.
	ValveCloseSettle time.Duration
	// MaxScheduleDuration is the largest delta any output transition may be
	// scheduled ahead. Zero means unset. The controller does not use it for
	// sequencing; it only configures the output ports.
	MaxScheduleDuration time.Duration
}

// DefaultTiming returns the stock timing.
func DefaultTiming() Timing {
	return Timing{
		CyclePeriod:      600 * time.Second,
		PumpLeadTime:     8 * time.Second,
		ValveCloseSettle: 6 * time.Second,
	}
}

// Validate reports the first out-of-range value.
func (t Timing) Validate() error {
	if t.CyclePeriod <= 0 {
		return fmt.Errorf("%w: cycle period must be > 0, got %v", ErrInvalidTiming, t.CyclePeriod)
	}
	if t.PumpLeadTime <= 0 {
		return fmt.Errorf("%w: pump lead time must be > 0, got %v", ErrInvalidTiming, t.PumpLeadTime)
	}
	if t.ValveCloseSettle <= 0 {
		return fmt.Errorf("%w: valve close settle time must be > 0, got %v", ErrInvalidTiming, t.ValveCloseSettle)
	}
	if t.MaxScheduleDuration != 0 &&
		(t.MaxScheduleDuration < MinScheduleDuration || t.MaxScheduleDuration > MaxScheduleDuration) {
		return fmt.Errorf("%w: max schedule duration must be 0 or within %v..%v, got %v",
			ErrInvalidTiming, MinScheduleDuration, MaxScheduleDuration, t.MaxScheduleDuration)
	}
	return nil
}

// ResendInterval is how often an output with a max duration would need its
// level resent. Zero when MaxScheduleDuration is unset.
// TODO: wire into TimedOutput once an output driver with a hardware
// max-duration watchdog exists; gpiocdev lines hold their level indefinitely.
func (t Timing) ResendInterval() time.Duration {
	if t.MaxScheduleDuration == 0 {
		return 0
	}
	return t.MaxScheduleDuration - resendHostTime
}
