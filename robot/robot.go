// Package robot runs the Beetle's cooperative loop. Each Poll samples the
// photosensor modules on their schedule, builds the observation vector for
// the reaction engine, handles the two master buttons and watches the
// battery comparator. The motor sequencer advances on its own in the IO's
// periodic callback.
package robot

import (
	"context"
	"log/slog"
	"time"

	"github.com/sparques/beetle"
	"github.com/sparques/beetle/debounce"
	"github.com/sparques/beetle/ldr"
	"github.com/sparques/beetle/prbs"
	"github.com/sparques/beetle/reaction"
	"github.com/sparques/beetle/stepper"
)

// Robot wires the subsystems to one IO.
type Robot struct {
	Motor    *stepper.Sequencer
	Detector *ldr.Detector
	Random   *prbs.Generator
	Engine   *reaction.Engine

	io    beetle.IO
	clock debounce.Clock
	timer *debounce.Timer
	cfg   Config
	log   *slog.Logger

	emitting   bool
	next       ldr.Module
	lastSample time.Time
	rotTick    uint32
	pendingW2  bool

	buttons [2]bool
	session *debounce.Session

	down bool
}

// panel tracks the emitter for the collision schedule.
type panel struct {
	beetle.IO
	r *Robot
}

func (p panel) Emit(on bool) {
	p.r.emitting = on
	p.IO.Emit(on)
}

// New builds a stopped robot on io. clock times the sample schedule and the
// debounce windows; nil means debounce.SystemClock. A nil logger logs to
// slog.Default().
func New(io beetle.IO, clock debounce.Clock, cfg Config, log *slog.Logger) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = debounce.SystemClock
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Robot{
		io:    io,
		clock: clock,
		timer: debounce.NewTimer(clock),
		cfg:   cfg,
		log:   log,
		next:  ldr.FrontRight,
	}
	r.Motor = stepper.New(io, cfg.SoftStartTicks)
	r.Detector = ldr.New(r.Motor)
	r.Random = prbs.New(io)
	if cfg.Seed != 0 {
		r.Random.Seed(cfg.Seed)
	}
	r.Engine = reaction.New(r.Motor, r.Random, r.Detector, panel{io, r}, reaction.Config{
		EscapeSteps: cfg.EscapeSteps,
		DemoSteps:   cfg.DemoSteps,
	}, log)
	return r, nil
}

// Emitting reports whether the signal LEDs are running.
func (r *Robot) Emitting() bool { return r.emitting }

// Run plays the power-on chime and polls until ctx is done or the battery
// runs low. It stops the motors before returning ctx's error.
func (r *Robot) Run(ctx context.Context) error {
	r.io.Chime(beetle.SongOn)
	r.log.Info("beetle ready")

	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Motor.Halt()
			return ctx.Err()
		case <-t.C:
		}
		if err := r.Poll(); err != nil {
			return err
		}
	}
}

// Poll runs one iteration of the cooperative loop. After the battery
// shutdown it only returns ErrShutdown.
func (r *Robot) Poll() error {
	if r.down {
		return ErrShutdown
	}
	if r.batteryLow() {
		r.shutdown()
		return ErrShutdown
	}

	r.sample()
	r.Engine.Step(reaction.Observe(r.inputs()))
	r.pollButtons()
	return nil
}

// sample feeds the detector. Collision modules take turns every
// SampleInterval while the emitter runs. The wheel modules are sampled every
// RotationDivider motor ticks while driving, right wheel first and the left
// one on the following iteration.
func (r *Robot) sample() {
	if now := r.clock.Now(); r.emitting && now.Sub(r.lastSample) >= r.cfg.SampleInterval {
		r.lastSample = now
		r.update(r.next)
		r.next++
		if !r.next.Collision() {
			r.next = ldr.FrontRight
		}
	}

	if r.pendingW2 {
		r.update(ldr.WheelLeft)
		r.pendingW2 = false
	}
	tick := r.Motor.Steps() / r.cfg.RotationDivider
	if tick != r.rotTick {
		r.rotTick = tick
		if r.Engine.State() == reaction.Driving {
			r.update(ldr.WheelRight)
			r.pendingW2 = true
		}
	}
}

func (r *Robot) update(m ldr.Module) {
	r.Detector.Update(m, r.io.ReadSample(beetle.Channel(m)))
}

func (r *Robot) inputs() reaction.Inputs {
	var in reaction.Inputs
	for m := ldr.FrontRight; m <= ldr.WheelLeft; m++ {
		in.Signals[m-1] = r.Detector.Signal(m)
	}
	for i, p := range []beetle.Pin{beetle.PinBumper1, beetle.PinBumper2, beetle.PinBumper3, beetle.PinBumper4} {
		in.Bumpers[i] = r.io.ReadDigital(p)
	}
	in.Done = r.Motor.Done()
	return in
}

// pollButtons starts a debounce session when a master button changes and
// runs the command once the session succeeds. A change while a session runs
// is dropped, and so is one that leaves both buttons high.
func (r *Robot) pollButtons() {
	levels := [2]bool{r.io.ReadDigital(beetle.PinButton1), r.io.ReadDigital(beetle.PinButton2)}
	changed := levels != r.buttons
	r.buttons = levels

	if r.session != nil {
		st := r.session.Advance()
		if st == debounce.Succeeded {
			r.command(r.session.Input().(beetle.Line).Pin)
		}
		if st.Done() {
			r.session = nil
		}
		return
	}
	if !changed {
		return
	}

	var pin beetle.Pin
	switch levels {
	case [2]bool{true, false}:
		pin = beetle.PinButton1
	case [2]bool{false, true}:
		pin = beetle.PinButton2
	default:
		return
	}
	s, err := r.timer.Begin(beetle.Line{IO: r.io, Pin: pin}, r.cfg.ButtonWindow, r.cfg.ButtonStep)
	if err != nil {
		r.log.Debug("button dropped", "pin", pin, "err", err)
		return
	}
	r.session = s
}

// command runs a confirmed button press. Button 1 toggles driving, button 2
// starts the demo from idle and stops anything else.
func (r *Robot) command(pin beetle.Pin) {
	active := r.Engine.Active()
	switch {
	case active:
		r.Engine.Stop()
	case pin == beetle.PinButton1:
		r.Engine.Start()
	case pin == beetle.PinButton2:
		r.Engine.StartDemo()
	}
}

// batteryLow confirms the comparator reading with a blocking debounce. While
// a button session owns the timer the check is skipped until the next poll.
func (r *Robot) batteryLow() bool {
	in := beetle.Line{IO: r.io, Pin: beetle.PinBatteryLow}
	return in.Get() && r.timer.Stable(in, r.cfg.SpikeWindow)
}

// shutdown parks everything and sleeps. There is no way back short of a
// reset.
func (r *Robot) shutdown() {
	r.log.Warn("battery low, shutting down", "state", r.Engine.State())
	r.Motor.Halt()
	r.io.Emit(false)
	r.emitting = false
	r.io.Chime(beetle.SongOff)
	for _, p := range beetle.Outputs {
		r.io.WriteDigital(p, beetle.SafeLevel(p))
	}
	r.down = true
	r.io.Sleep()
}
