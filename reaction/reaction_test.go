package reaction

import (
	"io"
	"log/slog"
	"testing"

	"github.com/sparques/beetle"
	"github.com/sparques/beetle/beetletest"
	"github.com/sparques/beetle/ldr"
	"github.com/sparques/beetle/prbs"
	"github.com/sparques/beetle/stepper"
)

type move struct {
	mode   stepper.Mode
	start  stepper.Start
	stopAt uint32
}

type motor struct {
	moves     []move
	steps     uint32
	threshold uint32
}

func (m *motor) Move(mode stepper.Mode, start stepper.Start, stopAt uint32) {
	m.moves = append(m.moves, move{mode, start, stopAt})
	m.steps = 0
	m.threshold = stopAt
	if mode == stepper.Stop {
		m.threshold = 0
	}
}

func (m *motor) Steps() uint32     { return m.steps }
func (m *motor) Threshold() uint32 { return m.threshold }

func (m *motor) last() move {
	if len(m.moves) == 0 {
		return move{}
	}
	return m.moves[len(m.moves)-1]
}

type random struct {
	dir  prbs.Direction
	mv   prbs.Move
	deg  uint16
	time uint16
}

func (r *random) Direction() prbs.Direction { return r.dir }
func (r *random) Move() prbs.Move           { return r.mv }
func (r *random) Degree() uint16            { return r.deg }
func (r *random) Time() uint16              { return r.time }

type sensors struct{ resets int }

func (s *sensors) ResetRotation() { s.resets++ }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type rig struct {
	eng *Engine
	mot *motor
	rng *random
	sen *sensors
	hw  *beetletest.IO
}

func newRig() *rig {
	r := &rig{
		mot: &motor{},
		rng: &random{dir: prbs.Right, mv: prbs.TurnLeft, deg: 300, time: 5000},
		sen: &sensors{},
		hw:  beetletest.New(),
	}
	r.eng = New(r.mot, r.rng, r.sen, r.hw, Config{}, quiet())
	return r
}

// finish reports completion of the current maneuver as a fresh transition.
func (r *rig) finish() {
	r.eng.Step(0)
	r.eng.Step(Done)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		obs  Observation
		want Code
	}{
		{0, None},
		{FrontRightSeen, ObstacleFrontRight},
		{Bumper1, BumpFrontRight},
		{Bumper1 | FrontRightSeen | FrontMiddleSeen, BumpFrontRight},
		{23, BumpFrontRight},
		{FrontMiddleSeen, ObstacleFrontMid},
		{21, ObstacleFrontMid},
		{Bumper2 | FrontMiddleSeen, BumpFrontLeft},
		{FrontLeftSeen, ObstacleFrontLeft},
		{BackLeftSeen, ObstacleBackLeft},
		{736, BumpBackLeft},
		{BackMiddleSeen | BackRightSeen, BumpBackRight},
		{672, ObstacleBackMid},
		{928, BumpBackRight},
		{BackRightSeen, ObstacleBackRight},
		{WheelRightStuck, WheelStuck},
		{WheelLeftStuck, WheelStuck},
		{WheelRightStuck | WheelLeftStuck, WheelStuck},
		{FrontRightSeen | Bumper2, None},
		{Done, None},
		{1<<14 | FrontRightSeen, ObstacleFrontRight},
	}
	for _, tt := range tests {
		if got := Classify(tt.obs); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.obs, got, tt.want)
		}
	}
}

func TestHanging(t *testing.T) {
	for _, o := range []Observation{Done | FrontRightSeen, Done | Bumper4, Done | WheelLeftStuck, 7168} {
		if !Hanging(o) {
			t.Errorf("%d not hanging", o)
		}
	}
	for _, o := range []Observation{Done, FrontRightSeen, Done | BackRightSeen | BackLeftSeen} {
		if Hanging(o) {
			t.Errorf("%d hanging", o)
		}
	}
}

func TestObserve(t *testing.T) {
	in := Inputs{
		Signals: [ldr.NumModules]uint16{0, 170, 0, 0, 0, 3, 1, 0},
		Bumpers: [4]bool{false, false, true, false},
		Done:    true,
	}
	want := FrontMiddleSeen | BackRightSeen | Bumper3 | WheelLeftStuck | Done
	if got := Observe(in); got != want {
		t.Fatalf("got %013b want %013b", got, want)
	}

	turning := Inputs{Signals: [ldr.NumModules]uint16{6: 1, 7: 1}}
	if got := Observe(turning); got != 0 {
		t.Fatalf("turning wheels flagged: %013b", got)
	}
}

func TestStartStop(t *testing.T) {
	r := newRig()
	if r.eng.State() != Idle {
		t.Fatalf("new engine %s", r.eng.State())
	}
	r.eng.Start()
	if r.eng.State() != Driving {
		t.Fatalf("after Start: %s", r.eng.State())
	}
	if got := r.mot.last(); got != (move{stepper.Forward, stepper.Immediate, 0}) {
		t.Fatalf("start move %+v", got)
	}
	if !r.hw.Emitting || !r.hw.Level(beetle.PinLamp) {
		t.Fatalf("emitter %v lamp %v after Start", r.hw.Emitting, r.hw.Level(beetle.PinLamp))
	}
	if r.eng.TurnAt() != 5000 {
		t.Fatalf("turn armed at %d", r.eng.TurnAt())
	}

	r.eng.Start()
	if len(r.mot.moves) != 1 {
		t.Fatalf("second Start moved again")
	}

	r.eng.Stop()
	if r.eng.State() != Idle || r.mot.last().mode != stepper.Stop {
		t.Fatalf("after Stop: %s, %s", r.eng.State(), r.mot.last().mode)
	}
	if r.hw.Emitting || r.hw.Level(beetle.PinLamp) {
		t.Fatalf("emitter or lamp left on")
	}
	want := []beetle.Song{beetle.SongStart, beetle.SongStop}
	if len(r.hw.Songs) != 2 || r.hw.Songs[0] != want[0] || r.hw.Songs[1] != want[1] {
		t.Fatalf("songs %v", r.hw.Songs)
	}
}

func TestIgnoredWhileIdle(t *testing.T) {
	r := newRig()
	r.eng.Step(FrontRightSeen)
	r.eng.Step(Done)
	if len(r.mot.moves) != 0 {
		t.Fatalf("idle engine moved: %+v", r.mot.moves)
	}
}

func TestTriggerEscape(t *testing.T) {
	tests := []struct {
		obs  Observation
		code Code
		mode stepper.Mode
	}{
		{FrontRightSeen, ObstacleFrontRight, stepper.Reverse},
		{Bumper2, BumpFrontLeft, stepper.Reverse},
		{WheelLeftStuck, WheelStuck, stepper.Reverse},
		{BackMiddleSeen, ObstacleBackMid, stepper.Forward},
		{Bumper4, BumpBackRight, stepper.Forward},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			r := newRig()
			r.eng.Start()
			r.eng.Step(tt.obs)
			if r.eng.State() != Reacting || r.eng.Code() != tt.code {
				t.Fatalf("state %s code %s", r.eng.State(), r.eng.Code())
			}
			n := len(r.mot.moves)
			if n != 3 {
				t.Fatalf("%d moves, want start, stop, escape", n)
			}
			if r.mot.moves[1].mode != stepper.Stop {
				t.Fatalf("escape not preceded by a stop: %+v", r.mot.moves[1])
			}
			if got := r.mot.last(); got != (move{tt.mode, stepper.Deferred, DefaultEscapeSteps}) {
				t.Fatalf("escape %+v", got)
			}
			if r.hw.Level(beetle.PinLamp) {
				t.Fatalf("lamp on during the escape")
			}
		})
	}
}

func TestOnlyChangesCount(t *testing.T) {
	r := newRig()
	r.eng.Start()
	r.eng.Step(FrontRightSeen)
	r.eng.Step(FrontRightSeen)
	r.eng.Step(FrontRightSeen)
	if len(r.mot.moves) != 3 {
		t.Fatalf("a held observation retriggered: %d moves", len(r.mot.moves))
	}
}

func TestDistractionIgnored(t *testing.T) {
	r := newRig()
	r.eng.Start()
	r.eng.Step(FrontRightSeen | Bumper2)
	if len(r.mot.moves) != 1 || r.eng.State() != Driving {
		t.Fatalf("distraction changed state: %s, %d moves", r.eng.State(), len(r.mot.moves))
	}
}

func TestCompletionDispatch(t *testing.T) {
	tests := []struct {
		obs  Observation
		dir  prbs.Direction
		want stepper.Mode
	}{
		{Bumper1, prbs.Left, stepper.PivotCounterClockwise},
		{FrontMiddleSeen, prbs.Right, stepper.PivotClockwise},
		{BackMiddleSeen, prbs.Left, stepper.PivotCounterClockwise},
		{WheelRightStuck, prbs.Right, stepper.PivotClockwise},
		{FrontLeftSeen, prbs.Left, stepper.PivotClockwise},
		{BackRightSeen, prbs.Left, stepper.PivotClockwise},
		{FrontRightSeen, prbs.Right, stepper.PivotCounterClockwise},
		{BackLeftSeen, prbs.Right, stepper.PivotCounterClockwise},
	}
	for _, tt := range tests {
		t.Run(Classify(tt.obs).String(), func(t *testing.T) {
			r := newRig()
			r.rng.dir = tt.dir
			r.eng.Start()
			r.eng.Step(tt.obs)
			r.finish()
			if got := r.mot.last(); got != (move{tt.want, stepper.Deferred, 300}) {
				t.Fatalf("pivot %+v", got)
			}
			if r.eng.Code() != ResumeDriving {
				t.Fatalf("code after pivot %s", r.eng.Code())
			}

			r.rng.time = 2000
			r.finish()
			if got := r.mot.last(); got != (move{stepper.Forward, stepper.Immediate, 0}) {
				t.Fatalf("resume %+v", got)
			}
			if r.eng.State() != Driving || r.eng.TurnAt() != 2000 {
				t.Fatalf("state %s turn at %d", r.eng.State(), r.eng.TurnAt())
			}
			if !r.hw.Level(beetle.PinLamp) {
				t.Fatalf("lamp off after resuming")
			}
		})
	}
}

func TestHangingBacksOff(t *testing.T) {
	r := newRig()
	r.eng.Start()
	r.eng.Step(Bumper1)
	r.eng.Step(Done | Bumper1)
	if got := r.mot.last(); got != (move{stepper.Reverse, stepper.Deferred, DefaultEscapeSteps}) {
		t.Fatalf("back-off %+v", got)
	}
	if r.sen.resets != 1 {
		t.Fatalf("rotation reset %d times", r.sen.resets)
	}
	if r.eng.Code() != BumpFrontRight {
		t.Fatalf("back-off changed the code to %s", r.eng.Code())
	}
}

func TestWheelStuckResetsRotation(t *testing.T) {
	r := newRig()
	r.eng.Start()
	r.eng.Step(WheelRightStuck | WheelLeftStuck)
	if r.sen.resets != 1 {
		t.Fatalf("rotation reset %d times", r.sen.resets)
	}
}

func TestAutonomousTurn(t *testing.T) {
	r := newRig()
	r.rng.time = 100
	r.rng.mv = prbs.TurnRight
	r.rng.deg = 250
	r.eng.Start()

	r.mot.steps = 99
	r.eng.Step(0)
	if len(r.mot.moves) != 1 {
		t.Fatalf("turned early")
	}
	r.mot.steps = 100
	r.eng.Step(0)
	if got := r.mot.last(); got != (move{stepper.TurnForwardRight, stepper.Immediate, 250}) {
		t.Fatalf("turn %+v", got)
	}
	if r.eng.Code() != ResumeDriving || r.eng.TurnAt() != 0 {
		t.Fatalf("code %s turn at %d", r.eng.Code(), r.eng.TurnAt())
	}

	r.mot.steps = 5000
	r.eng.Step(0)
	if len(r.mot.moves) != 2 {
		t.Fatalf("turned twice")
	}
	r.eng.Step(Done)
	if r.mot.last().mode != stepper.Forward || r.eng.State() != Driving {
		t.Fatalf("did not resume after the turn")
	}
}

func TestDemoTour(t *testing.T) {
	r := newRig()
	r.eng.StartDemo()
	if r.eng.State() != Touring {
		t.Fatalf("state %s", r.eng.State())
	}
	if r.hw.Emitting {
		t.Fatalf("emitter on during the demo")
	}
	tour := []stepper.Mode{
		stepper.Forward, stepper.Reverse,
		stepper.PivotClockwise, stepper.PivotCounterClockwise,
		stepper.TurnForwardRight, stepper.TurnForwardLeft,
		stepper.TurnBackwardRight, stepper.TurnBackwardLeft,
	}
	for i, m := range tour {
		if i > 0 {
			r.eng.Step(FrontRightSeen)
			r.finish()
		}
		if got := r.mot.last(); got != (move{m, stepper.Deferred, DefaultDemoSteps}) {
			t.Fatalf("tour step %d: %+v", i, got)
		}
	}
	if len(r.mot.moves) != len(tour) {
		t.Fatalf("sensors interrupted the tour: %d moves", len(r.mot.moves))
	}
	r.finish()
	if r.mot.last().mode != stepper.Stop || r.eng.State() != Idle {
		t.Fatalf("tour did not end: %s, %s", r.mot.last().mode, r.eng.State())
	}
	if s := r.hw.Songs; len(s) != 2 || s[1] != beetle.SongStop {
		t.Fatalf("songs %v", s)
	}
}

func TestRequestHalt(t *testing.T) {
	r := newRig()
	r.eng.Start()
	r.eng.Step(FrontLeftSeen)
	r.eng.RequestHalt()
	if r.eng.Code() != Halt {
		t.Fatalf("code %s", r.eng.Code())
	}
	r.finish()
	if r.mot.last().mode != stepper.Stop || r.eng.State() != Idle || r.hw.Emitting {
		t.Fatalf("halt: %s, %s, emitting %v", r.mot.last().mode, r.eng.State(), r.hw.Emitting)
	}

	r = newRig()
	r.eng.Start()
	r.eng.RequestHalt()
	if r.mot.last().mode != stepper.Stop || r.eng.State() != Idle {
		t.Fatalf("halt while driving: %s, %s", r.mot.last().mode, r.eng.State())
	}
}

func TestFrontObstacleEndToEnd(t *testing.T) {
	hw := beetletest.New()
	seq := stepper.New(hw, 0)
	gen := prbs.New(hw)
	gen.Seed(0x2A55)
	twin := prbs.New(hw)
	twin.Seed(0x2A55)
	det := ldr.New(seq)
	eng := New(seq, gen, det, hw, Config{}, quiet())

	eng.Start()
	twin.Time()
	eng.Step(0)

	in := Inputs{Signals: [ldr.NumModules]uint16{1: 170, 6: 1, 7: 1}}
	obs := Observe(in)
	if obs != FrontMiddleSeen {
		t.Fatalf("observation %013b", obs)
	}
	eng.Step(obs)
	if eng.State() != Reacting || eng.Code() != ObstacleFrontMid {
		t.Fatalf("state %s code %s", eng.State(), eng.Code())
	}
	if seq.Mode() != stepper.Reverse || seq.Threshold() != DefaultEscapeSteps || !seq.Waiting() {
		t.Fatalf("escape: mode %s threshold %d waiting %v", seq.Mode(), seq.Threshold(), seq.Waiting())
	}

	hw.Tick(stepper.DefaultSoftStartTicks + DefaultEscapeSteps)
	if !seq.Done() {
		t.Fatalf("escape not done after %d steps", seq.Steps())
	}
	eng.Step(Observe(Inputs{Signals: [ldr.NumModules]uint16{6: 1, 7: 1}, Done: seq.Done()}))

	want := stepper.PivotClockwise
	if twin.Direction() == prbs.Left {
		want = stepper.PivotCounterClockwise
	}
	deg := twin.Degree()
	if seq.Mode() != want || seq.Threshold() != uint32(deg) {
		t.Fatalf("pivot: mode %s threshold %d, want %s %d", seq.Mode(), seq.Threshold(), want, deg)
	}
	if deg < prbs.DegreeMin || deg > prbs.DegreeMax {
		t.Fatalf("degree %d out of range", deg)
	}
}
