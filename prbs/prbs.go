/*
Package prbs implements the pseudo-random bit sequence generator the robot uses
to pick recovery directions, angles and driving times.

# How it works

The generator is a 15-bit maximal-length feedback shift register with taps on
the two oldest bits, giving 32767 bits before the sequence repeats. Rather than
shifting every bit on each step, the register is a 16-slot circular buffer: a
rotating pointer marks the slot to overwrite, and the slot just past it is a
spacer holding the bit that is about to fall off the end.

	s[k] = s[k-15] ^ s[k-14]

Generation is on demand: each request produces only as many fresh bits as it
needs (1 for a direction, 3 for a move, 15 for a degree or time).

An all-zero register is a fixed point of the feedback and never escapes, so the
register is reseeded from a free-running counter whenever a request finds it
all zero. If the counter also reads zero, 0xFF is used.
*/
package prbs

const (
	slots   = 16
	liveMax = 15
)

// Direction is a binary left/right choice.
type Direction uint8

const (
	Right Direction = iota // clockwise
	Left                   // counter-clockwise
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// Move is one of the four randomized maneuvers.
type Move uint8

const (
	PivotClockwise Move = iota
	PivotCounterClockwise
	TurnRight
	TurnLeft
)

func (m Move) String() string {
	switch m {
	case PivotClockwise:
		return "pivot-cw"
	case PivotCounterClockwise:
		return "pivot-ccw"
	case TurnRight:
		return "turn-right"
	case TurnLeft:
		return "turn-left"
	}
	return "unknown"
}

const (
	// DegreeMin and DegreeMax bound Degree.
	DegreeMin = 192
	DegreeMax = 511
	// TimeMin and TimeMax bound Time.
	TimeMin = 1536
	TimeMax = 8191
)

// Counter supplies reseed entropy.
type Counter interface {
	Counter() uint16
}

// Generator is a PRBS generator. The zero value reseeds from the fallback on
// first use.
type Generator struct {
	reg     uint16
	ptr     uint8
	last    uint8
	counter Counter
}

// New returns a generator that reseeds from c. A nil c always reseeds with
// the fallback value.
func New(c Counter) *Generator {
	return &Generator{counter: c}
}

// Seed loads the raw 16-slot register.
func (g *Generator) Seed(v uint16) {
	g.reg = v
}

// Register returns the raw 16-slot register.
func (g *Generator) Register() uint16 {
	return g.reg
}

func (g *Generator) bit(slot uint8) uint8 {
	return uint8(g.reg>>(slot%slots)) & 1
}

// State returns the 15 live bits, newest in bit 0.
func (g *Generator) State() uint16 {
	var s uint16
	for i := uint8(0); i < liveMax; i++ {
		s |= uint16(g.bit(g.ptr+slots-i)) << i
	}
	return s
}

func (g *Generator) reseed() {
	if g.State() != 0 {
		return
	}
	var v uint16
	if g.counter != nil {
		v = g.counter.Counter()
	}
	if v == 0 {
		v = 0xFF
	}
	g.reg = v
	if g.State() == 0 {
		// the counter's only set bit landed in the spacer slot
		g.reg |= 1 << g.ptr
	}
}

// Step generates one fresh bit and returns it.
func (g *Generator) Step() uint8 {
	g.ptr = (g.ptr + 1) % slots
	d := g.bit(g.ptr+1) ^ g.bit(g.ptr+2)
	g.reg = g.reg&^(1<<g.ptr) | uint16(d)<<g.ptr
	g.last = d
	return d
}

func (g *Generator) generate(n int) {
	g.reseed()
	for i := 0; i < n; i++ {
		g.Step()
	}
}

// Direction draws one fresh bit: 0 is Right, 1 is Left.
func (g *Generator) Direction() Direction {
	g.generate(1)
	if g.last == 0 {
		return Right
	}
	return Left
}

// Move draws three fresh bits and selects a maneuver from the two newest.
func (g *Generator) Move() Move {
	g.generate(3)
	sel := g.bit(g.ptr+slots-1) | g.bit(g.ptr)<<1
	return Move(sel)
}

// Degree refreshes the whole register and returns a value in
// [DegreeMin, DegreeMax].
func (g *Generator) Degree() uint16 {
	g.generate(liveMax)
	v := g.reg & 0x01FF
	if g.reg&(1<<8) == 0 {
		v |= 0x00C0
	}
	return v
}

// Time refreshes the whole register and returns a value in [TimeMin, TimeMax].
func (g *Generator) Time() uint16 {
	g.generate(liveMax)
	v := g.reg & 0x1FFF
	if g.reg&(1<<11) == 0 {
		v |= 0x0600
	}
	return v
}
