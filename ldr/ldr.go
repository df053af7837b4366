/*
Package ldr finds the signal LEDs' square wave in the light-dependent resistor
(LDR) photosensor readings.

# Hardware

A single square wave (~7.63 Hz) drives six LEDs on the front and rear bumpers.
Next to each LED sits an LDR in a potential divider, so the voltage on its
analog channel follows the ambient light. When the robot nears something
reflective, light from the LED bounces into the LDR and the channel starts
carrying a wave at the LED frequency. These are the collision modules, 1-6.

Modules 7 and 8 are physically the same, but watch the hexagonal bolt heads
that serve as the wheel axles. Each face of a turning bolt head reflects light
into the LDR, so a steady wave means the wheel turns freely.

# Detection

Each module keeps the last 21 samples in a circular buffer plus the slope sign
leaving each sample. The midpoint, 10 samples behind the newest, is tested as
a stationary point (peak or trough): the 10 slopes before it must sum past +5
and the 10 from it onward past -5, or the other way around. A confirmed point
is logged along with how many samples have passed since the previous one.

Collision modules report a signal only when the last two logged points are both
18-25 samples apart, a half-period of the LED wave at one module every ~3 ms.
The reported value is the level difference between them, a strength proxy.
Rotation modules report 1 for any stationary point.

No stationary point for 42 samples (a full period) clears the log and the
signal. A rotation module keeps reporting "turning" until the motors have
taken more than 300 steps in the current maneuver, so a direction change
doesn't read as a stuck wheel.
*/
package ldr

// Module identifies a photosensor module, 1-8.
type Module uint8

const (
	FrontRight  Module = iota + 1 // collision
	FrontMiddle                   // collision
	FrontLeft                     // collision
	BackLeft                      // collision
	BackMiddle                    // collision
	BackRight                     // collision
	WheelRight                    // rotation, motor 1
	WheelLeft                     // rotation, motor 2
)

// NumModules is the number of photosensor modules.
const NumModules = 8

// Collision reports whether m is one of the six bumper modules.
func (m Module) Collision() bool {
	return m >= FrontRight && m <= BackRight
}

// Rotation reports whether m watches a wheel.
func (m Module) Rotation() bool {
	return m == WheelRight || m == WheelLeft
}

func (m Module) valid() bool {
	return m >= FrontRight && m <= WheelLeft
}

const (
	window     = 21
	half       = 10
	refractory = 12 // samples after a stationary point before the next is considered
	slopeMin   = 5
	periodMin  = 18
	periodMax  = 25
	timeout    = 42

	// RotationGrace is the step count a maneuver must pass before a
	// rotation module may report a stuck wheel.
	RotationGrace = 300
)

// Extremum is a logged stationary point.
type Extremum struct {
	Level uint16
	// Age is the number of samples since the previous logged point.
	Age uint16
}

// State is one module's detector state.
type State struct {
	samples [window]uint16
	// slopes[i] is the sign of samples[i+1]-samples[i]; the slot under the
	// newest sample is stale.
	slopes  [window]int8
	mid     int
	idle    uint16
	extrema [2]Extremum
	signal  uint16
}

// Extrema returns the two most recent stationary points, oldest first.
func (s *State) Extrema() [2]Extremum {
	return s.extrema
}

// Idle returns the number of samples since the last stationary point.
func (s *State) Idle() uint16 {
	return s.idle
}

// Signal returns the module's current result.
func (s *State) Signal() uint16 {
	return s.signal
}

func wrap(i int) int {
	return (i%window + window) % window
}

func sign(a, b uint16) int8 {
	switch {
	case b > a:
		return 1
	case b < a:
		return -1
	}
	return 0
}

// push stores v over the oldest sample and records the slope into it.
func (s *State) push(v uint16) {
	s.mid = wrap(s.mid + 1)
	head := wrap(s.mid + half)
	prev := wrap(head - 1)
	s.samples[head] = v
	s.slopes[prev] = sign(s.samples[prev], v)
}

// sums returns the slope sums either side of the midpoint.
func (s *State) sums() (left, right int) {
	for i := 1; i <= half; i++ {
		left += int(s.slopes[wrap(s.mid-i)])
		right += int(s.slopes[wrap(s.mid+i-1)])
	}
	return left, right
}

func (s *State) stationary() bool {
	l, r := s.sums()
	return (l > slopeMin && r < -slopeMin) || (l < -slopeMin && r > slopeMin)
}

func (s *State) log(e Extremum) {
	s.extrema[0] = s.extrema[1]
	s.extrema[1] = e
}

func inPeriod(e Extremum) bool {
	return e.Age >= periodMin && e.Age <= periodMax
}

func absDiff(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}

// StepCounter reports motor progress in the current maneuver.
type StepCounter interface {
	Steps() uint32
}

// Detector holds the state for all eight modules.
type Detector struct {
	modules [NumModules]State
	steps   StepCounter
}

// New returns a Detector whose rotation modules start out reporting a
// turning wheel. steps gates the stuck-wheel timeout; if nil the timeout
// is never suppressed.
func New(steps StepCounter) *Detector {
	d := &Detector{steps: steps}
	for i := range d.modules {
		d.modules[i].mid = half
	}
	d.ResetRotation()
	return d
}

// ResetRotation presumes both wheels are turning.
func (d *Detector) ResetRotation() {
	d.modules[WheelRight-1].signal = 1
	d.modules[WheelLeft-1].signal = 1
}

// State returns the detector state of m, or nil for an unknown module.
func (d *Detector) State(m Module) *State {
	if !m.valid() {
		return nil
	}
	return &d.modules[m-1]
}

// Signal returns the current result of m; 0 for an unknown module.
func (d *Detector) Signal(m Module) uint16 {
	if !m.valid() {
		return 0
	}
	return d.modules[m-1].signal
}

func (d *Detector) graceOver() bool {
	return d.steps == nil || d.steps.Steps() > RotationGrace
}

// Update feeds one sample to module m and returns its result. An unknown
// module is ignored.
func (d *Detector) Update(m Module, sample uint16) uint16 {
	if !m.valid() {
		return 0
	}
	s := &d.modules[m-1]
	s.push(sample)

	if s.idle < refractory || !s.stationary() {
		s.idle++
	} else {
		s.log(Extremum{Level: s.samples[s.mid], Age: s.idle})
		s.idle = 0
		if m.Rotation() {
			s.signal = 1
		} else if inPeriod(s.extrema[0]) && inPeriod(s.extrema[1]) {
			s.signal = absDiff(s.extrema[0].Level, s.extrema[1].Level)
		} else {
			s.signal = 0
		}
	}

	if s.idle >= timeout {
		s.extrema = [2]Extremum{}
		s.idle = 0
		if !m.Rotation() || d.graceOver() {
			s.signal = 0
		}
	}
	return s.signal
}
