package robot

import (
	"errors"
	"fmt"
	"time"

	"github.com/sparques/beetle/reaction"
	"github.com/sparques/beetle/stepper"
)

var (
	ErrConfig   = errors.New("invalid config")
	ErrShutdown = errors.New("battery low, shut down")
)

// Config holds the robot's tunables.
type Config struct {
	// PollInterval paces Run's cooperative loop.
	PollInterval time.Duration
	// SampleInterval is how often the next collision module is sampled.
	SampleInterval time.Duration
	// SoftStartTicks is the deferred-start countdown in slow motor ticks.
	SoftStartTicks int
	EscapeSteps    uint32
	DemoSteps      uint32
	// ButtonWindow and ButtonStep shape the master button debounce.
	ButtonWindow time.Duration
	ButtonStep   time.Duration
	// SpikeWindow is how long the battery comparator must stay high.
	SpikeWindow time.Duration
	// RotationDivider is the number of motor ticks between rotation samples.
	RotationDivider uint32
	// Seed preloads the PRBS register; 0 seeds from the free-running counter.
	Seed uint16
}

// DefaultConfig returns the firmware's calibrated values.
func DefaultConfig() Config {
	return Config{
		PollInterval:    100 * time.Microsecond,
		SampleInterval:  520 * time.Microsecond,
		SoftStartTicks:  stepper.DefaultSoftStartTicks,
		EscapeSteps:     reaction.DefaultEscapeSteps,
		DemoSteps:       reaction.DefaultDemoSteps,
		ButtonWindow:    8160 * time.Microsecond,
		ButtonStep:      160 * time.Microsecond,
		SpikeWindow:     32 * time.Microsecond,
		RotationDivider: 3,
	}
}

// Validate reports the first unusable field.
func (c Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval %s", ErrConfig, c.PollInterval)
	case c.SampleInterval <= 0:
		return fmt.Errorf("%w: sample interval %s", ErrConfig, c.SampleInterval)
	case c.SoftStartTicks <= 0:
		return fmt.Errorf("%w: soft start %d ticks", ErrConfig, c.SoftStartTicks)
	case c.EscapeSteps == 0:
		return fmt.Errorf("%w: escape steps must be positive", ErrConfig)
	case c.DemoSteps == 0:
		return fmt.Errorf("%w: demo steps must be positive", ErrConfig)
	case c.ButtonStep <= 0 || c.ButtonWindow < c.ButtonStep:
		return fmt.Errorf("%w: button window %s step %s", ErrConfig, c.ButtonWindow, c.ButtonStep)
	case c.SpikeWindow <= 0:
		return fmt.Errorf("%w: spike window %s", ErrConfig, c.SpikeWindow)
	case c.RotationDivider == 0:
		return fmt.Errorf("%w: rotation divider must be positive", ErrConfig)
	}
	return nil
}
