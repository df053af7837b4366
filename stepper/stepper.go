/*
Package stepper sequences the two stepper motors through half-steps from the
periodic motor callback.

# Drive

Each motor has an L6219-style driver with two phase inputs. Both drivers
share two current-limit inputs (L0, L1) and an output-stage enable. One
electrical cycle is eight half-steps:

	| phase | L0 | L1 | ph1       | ph2              |
	|^^^^^^^|^^^^|^^^^|^^^^^^^^^^^|^^^^^^^^^^^^^^^^^^|
	|     0 |    |  0 | on        |                  |
	|     1 |  0 |    |           |                  |
	|     2 |  1 |    |           | forward ? 1 : 0  |
	|     3 |    |  1 |           |                  |
	|     4 |    |  0 | 0         |                  |
	|     5 |  0 |    |           |                  |
	|     6 |  1 |    |           | reverse ? 1 : 0  |
	|     7 |    |  1 |           |                  |

Blank cells keep their previous level. A motor that is off in the current
mode holds both phase inputs low.

# Soft start

Reversing abruptly at full speed draws a current surge, so a maneuver may be
Deferred: the mode is configured at once but the callback runs at the slow
interval with the output stage off, counting down SoftStartTicks before
switching to the fast interval and enabling the output stage. Immediate
maneuvers skip the countdown.

# Sharing

Tick runs in the periodic callback; everything else runs in the cooperative
loop. Move holds the same lock as Tick for its whole update, so the callback
never sees a half-configured maneuver. Steps, Done and Mode are atomic
snapshots the loop may read at any time.
*/
package stepper

import (
	"sync"
	"sync/atomic"

	"github.com/sparques/beetle"
)

// Mode is a motion mode. The numbering matches the driver's mode table.
type Mode uint8

const (
	Stop Mode = iota
	Forward
	Reverse
	PivotClockwise
	PivotCounterClockwise
	TurnForwardRight
	TurnForwardLeft
	TurnBackwardRight
	TurnBackwardLeft

	NumModes
)

func (m Mode) String() string {
	switch m {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	case PivotClockwise:
		return "pivot-cw"
	case PivotCounterClockwise:
		return "pivot-ccw"
	case TurnForwardRight:
		return "turn-forward-right"
	case TurnForwardLeft:
		return "turn-forward-left"
	case TurnBackwardRight:
		return "turn-backward-right"
	case TurnBackwardLeft:
		return "turn-backward-left"
	}
	return "unknown"
}

// Spin is one motor's part in a mode.
type Spin int8

const (
	Hold     Spin = 0
	Ahead    Spin = 1
	Backward Spin = -1
)

// spins lists motor 1 and motor 2 per mode.
var spins = [NumModes][2]Spin{
	Stop:                  {Hold, Hold},
	Forward:               {Ahead, Ahead},
	Reverse:               {Backward, Backward},
	PivotClockwise:        {Ahead, Backward},
	PivotCounterClockwise: {Backward, Ahead},
	TurnForwardRight:      {Ahead, Hold},
	TurnForwardLeft:       {Hold, Ahead},
	TurnBackwardRight:     {Backward, Hold},
	TurnBackwardLeft:      {Hold, Backward},
}

// Spins returns what each motor does in m.
func (m Mode) Spins() (m1, m2 Spin) {
	if m >= NumModes {
		return Hold, Hold
	}
	return spins[m][0], spins[m][1]
}

// Start selects how a maneuver engages.
type Start uint8

const (
	Immediate Start = iota
	Deferred
)

func (s Start) String() string {
	if s == Deferred {
		return "deferred"
	}
	return "immediate"
}

// DefaultSoftStartTicks is ~500ms of slow-interval ticks.
const DefaultSoftStartTicks = 61

// Driver is the part of beetle.IO the sequencer drives.
type Driver interface {
	WriteDigital(beetle.Pin, bool)
	StartPeriodic(beetle.Interval, func())
	StopPeriodic()
}

// Sequencer owns the motion state.
type Sequencer struct {
	lck sync.Mutex
	drv Driver

	softStart int

	// owned by Tick once a maneuver is engaged
	phase   uint8
	waiting int
	stopAt  uint32
	m1, m2  Spin

	prev  Mode
	mode  atomic.Uint32
	steps atomic.Uint32
	done  atomic.Bool
}

// New returns a stopped Sequencer. softStart is the deferred countdown in
// slow ticks; 0 means DefaultSoftStartTicks.
func New(drv Driver, softStart int) *Sequencer {
	if softStart <= 0 {
		softStart = DefaultSoftStartTicks
	}
	return &Sequencer{drv: drv, softStart: softStart}
}

// Steps returns the half-steps taken in the current maneuver.
func (s *Sequencer) Steps() uint32 {
	return s.steps.Load()
}

// Done reports whether the current maneuver reached its stop threshold.
func (s *Sequencer) Done() bool {
	return s.done.Load()
}

// Mode returns the active mode.
func (s *Sequencer) Mode() Mode {
	return Mode(s.mode.Load())
}

// Previous returns the mode active before the current one.
func (s *Sequencer) Previous() Mode {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.prev
}

// Phase returns the index of the next half-step.
func (s *Sequencer) Phase() uint8 {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.phase
}

// Threshold returns the step count at which the current maneuver ends; 0
// means it runs until replaced.
func (s *Sequencer) Threshold() uint32 {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.stopAt
}

// Waiting reports whether a deferred maneuver is still counting down.
func (s *Sequencer) Waiting() bool {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.waiting > 0
}

// Move replaces the current maneuver. stopAt is the step count at which it
// ends and reports Done; 0 runs it until the next Move. Stop ignores start
// and stopAt and parks the outputs.
func (s *Sequencer) Move(m Mode, start Start, stopAt uint32) {
	if m >= NumModes {
		return
	}
	s.lck.Lock()
	defer s.lck.Unlock()

	s.prev = s.Mode()
	s.mode.Store(uint32(m))
	s.steps.Store(0)
	s.done.Store(false)
	s.phase = 0
	s.waiting = 0

	if m == Stop {
		s.stopAt = 0
		s.park()
		return
	}

	s.stopAt = stopAt
	s.m1, s.m2 = m.Spins()
	for _, p := range []beetle.Pin{beetle.PinM1Ph2, beetle.PinM2Ph2, beetle.PinM1Ph1, beetle.PinM2Ph1} {
		s.drv.WriteDigital(p, false)
	}
	s.drv.WriteDigital(beetle.PinL0, true)
	s.drv.WriteDigital(beetle.PinL1, true)

	if start == Deferred {
		s.waiting = s.softStart
		s.drv.WriteDigital(beetle.PinEnable, false)
		s.drv.StartPeriodic(beetle.IntervalSlow, s.Tick)
		return
	}
	s.drv.StartPeriodic(beetle.IntervalFast, s.Tick)
	s.drv.WriteDigital(beetle.PinEnable, true)
}

// Halt stops all motion; it is Move(Stop, Immediate, 0).
func (s *Sequencer) Halt() {
	s.Move(Stop, Immediate, 0)
}

// park disables the callback and leaves the outputs at the safe-idle
// pattern: phases low, output stage off, both current limits high.
func (s *Sequencer) park() {
	s.drv.StopPeriodic()
	for _, p := range []beetle.Pin{beetle.PinM1Ph2, beetle.PinM2Ph2, beetle.PinM1Ph1, beetle.PinM2Ph1} {
		s.drv.WriteDigital(p, false)
	}
	s.drv.WriteDigital(beetle.PinEnable, false)
	s.drv.WriteDigital(beetle.PinL0, true)
	s.drv.WriteDigital(beetle.PinL1, true)
}

func phaseLevel(on Spin, want Spin) bool {
	return on != Hold && on == want
}

// Tick is the periodic callback.
func (s *Sequencer) Tick() {
	s.lck.Lock()
	defer s.lck.Unlock()

	if s.Mode() == Stop {
		return
	}
	if s.waiting > 0 {
		s.waiting--
		if s.waiting == 0 {
			s.drv.StartPeriodic(beetle.IntervalFast, s.Tick)
			s.drv.WriteDigital(beetle.PinEnable, true)
		}
		return
	}

	d := s.drv
	switch s.phase {
	case 0:
		d.WriteDigital(beetle.PinL1, false)
		d.WriteDigital(beetle.PinM1Ph1, s.m1 != Hold)
		d.WriteDigital(beetle.PinM2Ph1, s.m2 != Hold)
	case 1:
		d.WriteDigital(beetle.PinL0, false)
	case 2:
		d.WriteDigital(beetle.PinL0, true)
		d.WriteDigital(beetle.PinM1Ph2, phaseLevel(s.m1, Ahead))
		d.WriteDigital(beetle.PinM2Ph2, phaseLevel(s.m2, Ahead))
	case 3:
		d.WriteDigital(beetle.PinL1, true)
	case 4:
		d.WriteDigital(beetle.PinL1, false)
		d.WriteDigital(beetle.PinM1Ph1, false)
		d.WriteDigital(beetle.PinM2Ph1, false)
	case 5:
		d.WriteDigital(beetle.PinL0, false)
	case 6:
		d.WriteDigital(beetle.PinL0, true)
		d.WriteDigital(beetle.PinM1Ph2, phaseLevel(s.m1, Backward))
		d.WriteDigital(beetle.PinM2Ph2, phaseLevel(s.m2, Backward))
	case 7:
		d.WriteDigital(beetle.PinL1, true)
	}
	s.phase = (s.phase + 1) % 8

	n := s.steps.Add(1)
	if s.stopAt != 0 && n == s.stopAt {
		s.mode.Store(uint32(Stop))
		s.park()
		s.done.Store(true)
	}
}
