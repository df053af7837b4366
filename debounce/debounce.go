// Package debounce confirms that a logic level which just went high is a real
// transition and not noise.
//
// Two modes share one Timer, which only one caller may own at a time:
//
//   - Stable busy-polls for a short window and is meant for sub-millisecond
//     spikes on safety-critical inputs, such as the battery comparator.
//   - Begin starts a Session that the cooperative loop advances once per
//     iteration. It samples on a schedule spread over a longer window and is
//     meant for mechanical bounce on buttons.
//
// Acquiring the Timer never waits: a second caller is turned away at once.
package debounce

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrBusy is returned when the timer is already owned by another session.
	ErrBusy = errors.New("debounce timer currently in use")
)

// Input is a single logic level. machine.Pin and beetle.Line satisfy it.
type Input interface {
	Get() bool
}

// Clock is the time base the Timer measures windows against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Timer is the shared timing resource.
type Timer struct {
	lck   sync.Mutex
	inuse bool
	clock Clock
}

// NewTimer returns a Timer measuring against c; nil means SystemClock.
func NewTimer(c Clock) *Timer {
	if c == nil {
		c = SystemClock
	}
	return &Timer{clock: c}
}

func (t *Timer) acquire() error {
	t.lck.Lock()
	defer t.lck.Unlock()
	if t.inuse {
		return ErrBusy
	}
	t.inuse = true
	return nil
}

func (t *Timer) release() {
	t.lck.Lock()
	defer t.lck.Unlock()
	t.inuse = false
}

// Busy reports whether a session currently owns the timer.
func (t *Timer) Busy() bool {
	t.lck.Lock()
	defer t.lck.Unlock()
	return t.inuse
}

// Stable polls in until it reads low (false) or stays high for the whole
// window (true). It returns false straight away, without waiting, if the
// timer is owned by someone else.
func (t *Timer) Stable(in Input, window time.Duration) bool {
	if t.acquire() != nil {
		return false
	}
	defer t.release()

	start := t.clock.Now()
	for {
		if !in.Get() {
			return false
		}
		if t.clock.Now().Sub(start) >= window {
			return true
		}
	}
}

// Status is the state of a Session.
type Status uint8

const (
	Idle Status = iota
	Running
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Done reports whether s is terminal.
func (s Status) Done() bool {
	return s == Succeeded || s == Failed
}

// Session is a non-blocking debounce in progress.
type Session struct {
	t      *Timer
	in     Input
	window time.Duration
	step   time.Duration
	start  time.Time
	next   time.Duration
	status Status
}

// Begin takes the timer and starts watching in. The first sample is taken on
// the first Advance; each one that reads high pushes the next sample step
// further out. Begin returns ErrBusy, and leaves the active session alone,
// if the timer is owned.
func (t *Timer) Begin(in Input, window, step time.Duration) (*Session, error) {
	if err := t.acquire(); err != nil {
		return nil, err
	}
	return &Session{
		t:      t,
		in:     in,
		window: window,
		step:   step,
		start:  t.clock.Now(),
		status: Running,
	}, nil
}

// Input returns the input the session watches.
func (s *Session) Input() Input {
	return s.in
}

// Status returns the current state without advancing.
func (s *Session) Status() Status {
	return s.status
}

// Advance moves the session forward and returns its state. A session that
// has finished keeps its result and has released the timer.
func (s *Session) Advance() Status {
	if s.status != Running {
		return s.status
	}
	elapsed := s.t.clock.Now().Sub(s.start)
	switch {
	case elapsed >= s.window:
		s.finish(Succeeded)
	case elapsed >= s.next:
		if !s.in.Get() {
			s.finish(Failed)
			break
		}
		s.next += s.step
	}
	return s.status
}

func (s *Session) finish(st Status) {
	s.status = st
	s.t.release()
}
