package reaction

import "github.com/sparques/beetle/ldr"

// Observation is the snapshot of every event flag taken once per loop
// iteration. Bits, LSB first:
//
//	 12   11   10    9    8    7    6    5    4    3    2    1    0
//	done  W2   W1   C6   B4   C5   B3   C4   C3   B2   C2   B1   C1
//
// C is a collision module seeing the LED wave, B a bumper button pressed,
// W a wheel rotation module reporting a stuck wheel.
type Observation uint16

const (
	FrontRightSeen  Observation = 1 << 0
	Bumper1         Observation = 1 << 1
	FrontMiddleSeen Observation = 1 << 2
	Bumper2         Observation = 1 << 3
	FrontLeftSeen   Observation = 1 << 4
	BackLeftSeen    Observation = 1 << 5
	Bumper3         Observation = 1 << 6
	BackMiddleSeen  Observation = 1 << 7
	Bumper4         Observation = 1 << 8
	BackRightSeen   Observation = 1 << 9
	WheelRightStuck Observation = 1 << 10
	WheelLeftStuck  Observation = 1 << 11
	Done            Observation = 1 << 12

	ObservationMask Observation = 1<<13 - 1
)

var moduleBits = [ldr.NumModules]Observation{
	FrontRightSeen, FrontMiddleSeen, FrontLeftSeen,
	BackLeftSeen, BackMiddleSeen, BackRightSeen,
	WheelRightStuck, WheelLeftStuck,
}

var bumperBits = [4]Observation{Bumper1, Bumper2, Bumper3, Bumper4}

// Inputs are the raw readings an Observation is built from.
type Inputs struct {
	// Signals are the detector results for modules 1-8.
	Signals [ldr.NumModules]uint16
	Bumpers [4]bool
	Done    bool
}

// Observe builds the observation vector. Collision modules flag any nonzero
// signal; rotation modules flag a signal that is not 1 (wheel not turning).
func Observe(in Inputs) Observation {
	var o Observation
	for i, sig := range in.Signals {
		m := ldr.Module(i + 1)
		switch {
		case m.Collision() && sig != 0:
			o |= moduleBits[i]
		case m.Rotation() && sig != 1:
			o |= moduleBits[i]
		}
	}
	for i, pressed := range in.Bumpers {
		if pressed {
			o |= bumperBits[i]
		}
	}
	if in.Done {
		o |= Done
	}
	return o
}

// Code tags the multi-phase maneuver in progress. The obstacle codes carry
// the observation bit that set them off.
type Code uint16

const (
	None               Code = 0
	ObstacleFrontRight      = Code(FrontRightSeen)
	BumpFrontRight          = Code(Bumper1)
	ObstacleFrontMid        = Code(FrontMiddleSeen)
	BumpFrontLeft           = Code(Bumper2)
	ObstacleFrontLeft       = Code(FrontLeftSeen)
	ObstacleBackLeft        = Code(BackLeftSeen)
	BumpBackLeft            = Code(Bumper3)
	ObstacleBackMid         = Code(BackMiddleSeen)
	BumpBackRight           = Code(Bumper4)
	ObstacleBackRight       = Code(BackRightSeen)
	WheelStuck              = Code(WheelRightStuck)

	ResumeDriving Code = 'g'
	Halt          Code = 's'
	Demo          Code = 'f'
)

func (c Code) String() string {
	switch c {
	case None:
		return "none"
	case ObstacleFrontRight:
		return "obstacle-front-right"
	case BumpFrontRight:
		return "bump-front-right"
	case ObstacleFrontMid:
		return "obstacle-front-middle"
	case BumpFrontLeft:
		return "bump-front-left"
	case ObstacleFrontLeft:
		return "obstacle-front-left"
	case ObstacleBackLeft:
		return "obstacle-back-left"
	case BumpBackLeft:
		return "bump-back-left"
	case ObstacleBackMid:
		return "obstacle-back-middle"
	case BumpBackRight:
		return "bump-back-right"
	case ObstacleBackRight:
		return "obstacle-back-right"
	case WheelStuck:
		return "wheel-stuck"
	case ResumeDriving:
		return "resume-driving"
	case Halt:
		return "halt"
	case Demo:
		return "demo"
	}
	return "unknown"
}

// Front reports whether c was triggered at the front (or by a stuck wheel),
// meaning the escape runs in reverse.
func (c Code) Front() bool {
	switch c {
	case ObstacleFrontRight, BumpFrontRight, ObstacleFrontMid, BumpFrontLeft, ObstacleFrontLeft, WheelStuck:
		return true
	}
	return false
}

// Rear reports whether c was triggered at the back; the escape runs forward.
func (c Code) Rear() bool {
	switch c {
	case ObstacleBackLeft, BumpBackLeft, ObstacleBackMid, BumpBackRight, ObstacleBackRight:
		return true
	}
	return false
}

// triggers maps an observation, including the noisy variants seen in the
// field, to the reaction it sets off.
var triggers = map[Observation]Code{
	1: ObstacleFrontRight,

	2: BumpFrontRight, 3: BumpFrontRight, 5: BumpFrontRight,
	6: BumpFrontRight, 7: BumpFrontRight, 23: BumpFrontRight,

	4: ObstacleFrontMid, 21: ObstacleFrontMid,

	8: BumpFrontLeft, 12: BumpFrontLeft, 20: BumpFrontLeft,
	24: BumpFrontLeft, 28: BumpFrontLeft, 29: BumpFrontLeft,

	16: ObstacleFrontLeft,

	32: ObstacleBackLeft,

	64: BumpBackLeft, 98: BumpBackLeft, 160: BumpBackLeft,
	192: BumpBackLeft, 224: BumpBackLeft, 736: BumpBackLeft,

	128: ObstacleBackMid, 672: ObstacleBackMid,

	256: BumpBackRight, 384: BumpBackRight, 640: BumpBackRight,
	768: BumpBackRight, 896: BumpBackRight, 928: BumpBackRight,

	512: ObstacleBackRight,

	1024: WheelStuck, 2048: WheelStuck, 3072: WheelStuck,
}

// hanging lists the completion flag seen together with a hardware flag.
// Pivoting from there would stall against whatever is still there.
var hanging = map[Observation]bool{
	4097: true, 4098: true, 4099: true, 4100: true, 4101: true,
	4102: true, 4103: true, 4104: true, 4119: true, 4117: true,
	4108: true, 4116: true, 4120: true, 4124: true, 4125: true,
	4112: true, 4128: true, 4160: true, 4194: true, 4256: true,
	4288: true, 4320: true, 4832: true, 4224: true, 4768: true,
	4352: true, 4480: true, 4736: true, 4864: true, 4992: true,
	5024: true, 4608: true, 5120: true, 6144: true, 7168: true,
}

// Classify returns the reaction o triggers, or None for a distraction.
func Classify(o Observation) Code {
	return triggers[o&ObservationMask]
}

// Hanging reports whether o is a completion stuck against a hardware flag.
func Hanging(o Observation) bool {
	return hanging[o&ObservationMask]
}
