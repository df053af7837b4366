/*
Package reaction is the event/reaction state machine. It turns changes of
the observation vector into multi-phase maneuvers on the stepper sequencer.

# Phases

A sensor trigger records a reaction code, switches the status lamp off,
stops and then starts a soft-started escape: reverse for front obstacles and
a stuck wheel, forward for rear obstacles. When the escape reports Done the
engine dispatches on the code:

	| code                                  | follow-up                 |
	|^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^|^^^^^^^^^^^^^^^^^^^^^^^^^^^|
	| bumpers, front/back middle, wheel     | pivot, random direction   |
	| front left, back right obstacle       | pivot clockwise           |
	| front right, back left obstacle       | pivot counter-clockwise   |
	| ResumeDriving                         | drive forward, re-arm turn|
	| Halt                                  | stop                      |
	| Demo                                  | next mode of the tour     |

Every pivot angle comes from the PRBS generator. After dispatch any pending
code other than Demo becomes ResumeDriving, so the following completion
returns the robot to normal driving.

While driving with nothing pending the engine also turns on its own once the
step counter reaches a random target, marking the turn as ResumeDriving.
*/
package reaction

import (
	"log/slog"

	"github.com/sparques/beetle"
	"github.com/sparques/beetle/prbs"
	"github.com/sparques/beetle/stepper"
)

const (
	// DefaultEscapeSteps is the length of the escape maneuver in half-steps.
	DefaultEscapeSteps = 255
	// DefaultDemoSteps is how long each mode of the demo tour runs.
	DefaultDemoSteps = 410
)

// State is the engine's coarse state, derived from the activity flag and the
// pending reaction code.
type State uint8

const (
	Idle State = iota
	Driving
	Reacting
	Touring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Driving:
		return "driving"
	case Reacting:
		return "reacting"
	case Touring:
		return "demo"
	}
	return "unknown"
}

// Motor is the part of the stepper sequencer the engine commands.
type Motor interface {
	Move(m stepper.Mode, start stepper.Start, stopAt uint32)
	Steps() uint32
	Threshold() uint32
}

// Random supplies the randomized maneuver parameters.
type Random interface {
	Direction() prbs.Direction
	Move() prbs.Move
	Degree() uint16
	Time() uint16
}

// Sensors is the detector hook the engine uses after a stuck wheel or a
// hanging completion.
type Sensors interface {
	ResetRotation()
}

// Panel is the user-facing output: status lamp, signal emitter and chime.
// beetle.IO satisfies it.
type Panel interface {
	WriteDigital(beetle.Pin, bool)
	Emit(on bool)
	Chime(beetle.Song)
}

// Config holds the engine's maneuver lengths.
type Config struct {
	EscapeSteps uint32
	DemoSteps   uint32
}

// Engine owns EventState. All methods run in the cooperative loop.
type Engine struct {
	motor   Motor
	rng     Random
	sensors Sensors
	panel   Panel
	log     *slog.Logger
	cfg     Config

	active bool
	code   Code
	prev   Observation
	turnAt uint32
	tour   stepper.Mode
}

// New returns an idle engine. A zero field in cfg takes its default; a nil
// logger logs to slog.Default().
func New(motor Motor, rng Random, sensors Sensors, panel Panel, cfg Config, log *slog.Logger) *Engine {
	if cfg.EscapeSteps == 0 {
		cfg.EscapeSteps = DefaultEscapeSteps
	}
	if cfg.DemoSteps == 0 {
		cfg.DemoSteps = DefaultDemoSteps
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		motor:   motor,
		rng:     rng,
		sensors: sensors,
		panel:   panel,
		log:     log,
		cfg:     cfg,
	}
}

// State returns the engine's coarse state.
func (e *Engine) State() State {
	switch {
	case !e.active:
		return Idle
	case e.code == Demo:
		return Touring
	case e.code != None:
		return Reacting
	}
	return Driving
}

// Code returns the pending reaction code.
func (e *Engine) Code() Code { return e.code }

// Active reports whether the robot is driving, reacting or touring.
func (e *Engine) Active() bool { return e.active }

// TurnAt returns the step count at which the next autonomous turn fires; 0
// means none is armed.
func (e *Engine) TurnAt() uint32 { return e.turnAt }

// Previous returns the last observation Step saw.
func (e *Engine) Previous() Observation { return e.prev }

// Step evaluates one loop iteration's observation.
func (e *Engine) Step(o Observation) {
	o &= ObservationMask
	changed := o != e.prev
	e.prev = o
	if !e.active {
		return
	}
	if changed {
		e.transition(o)
	}
	e.autoTurn()
}

func (e *Engine) transition(o Observation) {
	if e.code == Demo {
		if o&Done != 0 {
			e.complete()
		}
		return
	}
	switch {
	case o == Done:
		e.complete()
	case Hanging(o):
		e.hang(o)
	default:
		c := Classify(o)
		if c == None {
			return
		}
		e.trigger(c)
	}
}

// trigger starts the escape phase of c.
func (e *Engine) trigger(c Code) {
	e.log.Info("reaction triggered", "code", c)
	e.code = c
	e.panel.WriteDigital(beetle.PinLamp, false)
	e.motor.Move(stepper.Stop, stepper.Immediate, 0)
	if c.Rear() {
		e.motor.Move(stepper.Forward, stepper.Deferred, e.cfg.EscapeSteps)
	} else {
		e.motor.Move(stepper.Reverse, stepper.Deferred, e.cfg.EscapeSteps)
	}
	if c == WheelStuck {
		e.sensors.ResetRotation()
	}
}

// hang backs off from a completion that found a hardware flag still raised.
// The reverse reuses the last threshold so it completes like the maneuver it
// replaces.
func (e *Engine) hang(o Observation) {
	stopAt := e.motor.Threshold()
	if stopAt == 0 {
		stopAt = e.cfg.EscapeSteps
	}
	e.log.Warn("hanging, backing off", "observation", uint16(o), "code", e.code)
	e.motor.Move(stepper.Reverse, stepper.Deferred, stopAt)
	e.sensors.ResetRotation()
}

func (e *Engine) pivot(d prbs.Direction) {
	deg := uint32(e.rng.Degree())
	m := stepper.PivotClockwise
	if d == prbs.Left {
		m = stepper.PivotCounterClockwise
	}
	e.log.Debug("pivot", "mode", m, "steps", deg)
	e.motor.Move(m, stepper.Deferred, deg)
}

// complete dispatches on the pending code once a maneuver reports Done.
func (e *Engine) complete() {
	e.log.Debug("maneuver complete", "code", e.code)
	switch e.code {
	case BumpFrontRight, ObstacleFrontMid, BumpFrontLeft, BumpBackLeft, ObstacleBackMid, BumpBackRight, WheelStuck:
		e.pivot(e.rng.Direction())
	case ObstacleFrontLeft, ObstacleBackRight:
		e.pivot(prbs.Right)
	case ObstacleFrontRight, ObstacleBackLeft:
		e.pivot(prbs.Left)
	case ResumeDriving:
		e.panel.WriteDigital(beetle.PinLamp, true)
		e.motor.Move(stepper.Forward, stepper.Immediate, 0)
		e.code = None
		e.turnAt = uint32(e.rng.Time())
		e.log.Info("driving", "turn_at", e.turnAt)
	case Halt:
		e.halt()
	case Demo:
		e.nextTourMode()
	}
	if e.code != None && e.code != Demo {
		e.code = ResumeDriving
	}
}

// nextTourMode runs the demo tour: every moving mode in table order for
// DemoSteps each, then stop.
func (e *Engine) nextTourMode() {
	if e.tour == stepper.Stop {
		e.motor.Move(stepper.Stop, stepper.Immediate, 0)
		e.panel.Chime(beetle.SongStop)
		e.code = None
		e.active = false
		e.log.Info("demo finished")
		return
	}
	e.log.Debug("demo", "mode", e.tour)
	e.motor.Move(e.tour, stepper.Deferred, e.cfg.DemoSteps)
	e.tour = (e.tour + 1) % stepper.NumModes
}

// autoTurn fires the randomized turn once the step counter reaches turnAt.
func (e *Engine) autoTurn() {
	if e.code != None || e.turnAt == 0 || e.motor.Steps() < e.turnAt {
		return
	}
	var m stepper.Mode
	switch e.rng.Move() {
	case prbs.PivotClockwise:
		m = stepper.PivotClockwise
	case prbs.PivotCounterClockwise:
		m = stepper.PivotCounterClockwise
	case prbs.TurnRight:
		m = stepper.TurnForwardRight
	case prbs.TurnLeft:
		m = stepper.TurnForwardLeft
	}
	deg := uint32(e.rng.Degree())
	e.log.Info("autonomous turn", "mode", m, "steps", deg)
	e.motor.Move(m, stepper.Immediate, deg)
	e.code = ResumeDriving
	e.turnAt = 0
}

// Start begins autonomous driving from idle: emitter and lamp on, start
// chime, forward at once, first turn armed. It is a no-op while active.
func (e *Engine) Start() {
	if e.active {
		return
	}
	e.log.Info("start")
	e.panel.Emit(true)
	e.panel.WriteDigital(beetle.PinLamp, true)
	e.panel.Chime(beetle.SongStart)
	e.motor.Move(stepper.Forward, stepper.Immediate, 0)
	e.active = true
	e.code = None
	e.turnAt = uint32(e.rng.Time())
}

// Stop halts everything and returns to idle. It is a no-op while idle.
func (e *Engine) Stop() {
	if !e.active {
		return
	}
	e.log.Info("stop", "state", e.State())
	e.motor.Move(stepper.Stop, stepper.Immediate, 0)
	e.panel.Emit(false)
	e.panel.WriteDigital(beetle.PinLamp, false)
	e.panel.Chime(beetle.SongStop)
	e.code = None
	e.active = false
	e.turnAt = 0
}

// StartDemo begins the demo tour from idle. The emitter stays off so no
// obstacle interrupts it.
func (e *Engine) StartDemo() {
	if e.active {
		return
	}
	e.log.Info("demo")
	e.panel.Chime(beetle.SongStart)
	e.active = true
	e.code = Demo
	e.turnAt = 0
	e.tour = stepper.Forward
	e.complete()
}

// RequestHalt makes the next completion stop the robot instead of resuming.
// With no maneuver pending it halts at once.
func (e *Engine) RequestHalt() {
	switch {
	case !e.active || e.code == Demo:
	case e.code == None:
		e.halt()
	default:
		e.code = Halt
	}
}

// halt is Stop without the chime.
func (e *Engine) halt() {
	e.log.Info("halted")
	e.motor.Move(stepper.Stop, stepper.Immediate, 0)
	e.panel.Emit(false)
	e.panel.WriteDigital(beetle.PinLamp, false)
	e.code = None
	e.active = false
	e.turnAt = 0
}
