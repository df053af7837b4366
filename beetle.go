// Package beetle holds the hardware vocabulary shared by the Beetle robot's
// subsystems: which pins and analog channels exist, the two motor callback
// rates, and the IO capability every subsystem drives the hardware through.
//
// The subsystems themselves live in subpackages (ldr, debounce, stepper,
// reaction, prbs) and are tied together by package robot.
package beetle

import "time"

// Interval selects the rate of the periodic motor callback.
type Interval uint8

const (
	// IntervalFast is the half-step rate while a maneuver is running.
	IntervalFast Interval = iota
	// IntervalSlow paces the soft-start countdown with the output stage disabled.
	IntervalSlow
)

// Duration returns the callback period for iv.
func (iv Interval) Duration() time.Duration {
	if iv == IntervalSlow {
		return 8160 * time.Microsecond
	}
	return 1920 * time.Microsecond
}

func (iv Interval) String() string {
	if iv == IntervalSlow {
		return "slow"
	}
	return "fast"
}

// Pin identifies a digital line.
type Pin uint8

const (
	// stepper driver latches
	PinL0 Pin = iota // current limit 0
	PinL1            // current limit 1
	PinM1Ph1         // motor 1 phase 1
	PinM1Ph2         // motor 1 phase 2
	PinM2Ph1         // motor 2 phase 1
	PinM2Ph2         // motor 2 phase 2
	PinEnable        // output stage (logic inverter) enable

	PinLamp // status lamp

	// bumper push buttons
	PinBumper1
	PinBumper2
	PinBumper3
	PinBumper4

	// master push buttons
	PinButton1 // start / stop
	PinButton2 // demo / stop

	// battery comparator output, high when the battery is low
	PinBatteryLow

	NumPins
)

// Outputs lists the pins the core writes, in latch order.
var Outputs = [...]Pin{PinL0, PinL1, PinM1Ph1, PinM1Ph2, PinM2Ph1, PinM2Ph2, PinEnable, PinLamp}

// SafeLevel is the static level each output is parked at before sleeping.
// The stepper drivers sink no current with both current-limit inputs high.
func SafeLevel(p Pin) bool {
	return p == PinL0 || p == PinL1
}

// Channel is an analog input; channels 1-8 carry photosensor modules 1-8.
type Channel uint8

// NumChannels is the number of photosensor channels.
const NumChannels = 8

// Song is a chime the IO plays on request.
type Song uint8

const (
	SongOn Song = iota
	SongOff
	SongStart
	SongStop
)

func (s Song) String() string {
	switch s {
	case SongOn:
		return "on"
	case SongOff:
		return "off"
	case SongStart:
		return "start"
	case SongStop:
		return "stop"
	}
	return "unknown"
}

// IO is the hardware capability the core calls into. Implementations live
// outside the core: Board on TinyGo targets, beetletest.IO in tests.
type IO interface {
	ReadDigital(Pin) bool
	WriteDigital(Pin, bool)
	// ReadSample returns the most recent conversion for ch.
	ReadSample(ch Channel) uint16
	// StartPeriodic (re)arms fn to be called every iv. Calling it again
	// while running only changes the rate and callback.
	StartPeriodic(iv Interval, fn func())
	StopPeriodic()
	// Emit starts or stops the signal LEDs' square wave.
	Emit(on bool)
	Chime(Song)
	// Counter reads a free-running hardware counter, used as entropy.
	Counter() uint16
	// Sleep enters low-power sleep. Real hardware never returns.
	Sleep()
}

// Line is a single digital input read through an IO.
type Line struct {
	IO  IO
	Pin Pin
}

// Get implements debounce.Input.
func (l Line) Get() bool {
	return l.IO.ReadDigital(l.Pin)
}
