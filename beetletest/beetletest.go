// Package beetletest provides a scripted beetle.IO and a manual clock for
// testing the robot's subsystems without hardware.
package beetletest

import (
	"sync"
	"time"

	"github.com/sparques/beetle"
)

// Write records one WriteDigital call.
type Write struct {
	Pin   beetle.Pin
	Level bool
}

// IO is a deterministic beetle.IO. Inputs are set directly or scripted per
// channel; every output is captured. The periodic callback only runs when the
// test calls Tick.
type IO struct {
	mu sync.Mutex

	levels  [beetle.NumPins]bool
	scripts [beetle.NumChannels + 1][]uint16
	cursor  [beetle.NumChannels + 1]int
	hold    [beetle.NumChannels + 1]uint16

	Writes   []Write
	Songs    []beetle.Song
	Emitting bool
	Slept    bool
	Count    uint16

	running  bool
	interval beetle.Interval
	fn       func()
	// Starts counts StartPeriodic calls per interval.
	Starts map[beetle.Interval]int
	Stops  int
}

// New returns an IO with every input low.
func New() *IO {
	return &IO{Starts: make(map[beetle.Interval]int)}
}

// Set drives an input pin.
func (f *IO) Set(p beetle.Pin, level bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[p] = level
}

// Level returns the last level written to or set on p.
func (f *IO) Level(p beetle.Pin) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[p]
}

// Script queues samples for ch. Each ReadSample consumes one; once the
// script runs out the last sample repeats.
func (f *IO) Script(ch beetle.Channel, samples ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[ch] = append(f.scripts[ch], samples...)
}

// Reset drops whatever is left of ch's script.
func (f *IO) Reset(ch beetle.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[ch] = nil
	f.cursor[ch] = 0
}

// Hold makes ch read v once its script is exhausted.
func (f *IO) Hold(ch beetle.Channel, v uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold[ch] = v
}

func (f *IO) ReadDigital(p beetle.Pin) bool {
	return f.Level(p)
}

func (f *IO) WriteDigital(p beetle.Pin, level bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[p] = level
	f.Writes = append(f.Writes, Write{p, level})
}

func (f *IO) ReadSample(ch beetle.Channel) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(ch) >= len(f.scripts) {
		return 0
	}
	if c := f.cursor[ch]; c < len(f.scripts[ch]) {
		f.cursor[ch]++
		f.hold[ch] = f.scripts[ch][c]
	}
	return f.hold[ch]
}

func (f *IO) StartPeriodic(iv beetle.Interval, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.interval = iv
	f.fn = fn
	f.Starts[iv]++
}

func (f *IO) StopPeriodic() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.Stops++
}

// Periodic reports whether the callback is armed and at which rate.
func (f *IO) Periodic() (bool, beetle.Interval) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.interval
}

// Tick fires the periodic callback n times, skipping any tick that finds it
// disarmed. It returns how many ticks actually ran.
func (f *IO) Tick(n int) int {
	ran := 0
	for i := 0; i < n; i++ {
		f.mu.Lock()
		fn, running := f.fn, f.running
		f.mu.Unlock()
		if !running || fn == nil {
			continue
		}
		fn()
		ran++
	}
	return ran
}

func (f *IO) Emit(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Emitting = on
}

func (f *IO) Chime(s beetle.Song) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Songs = append(f.Songs, s)
}

func (f *IO) Counter() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Count
}

func (f *IO) Sleep() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Slept = true
}

// ResetWrites clears the captured writes.
func (f *IO) ResetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = nil
}

// Clock is a manual clock. Every Now call advances it by Step after
// reading, so busy-polling loops make progress.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewClock returns a clock at a fixed epoch advancing step per read.
func NewClock(step time.Duration) *Clock {
	return &Clock{now: time.Unix(0, 0), Step: step}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
