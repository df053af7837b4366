//go:build tinygo && cortexm

package beetle

import (
	"device/arm"
	"machine"
	"sync"
	"time"

	"github.com/sparques/pwm"
)

// PeriodEmitter is the signal LEDs' square wave, 7.63Hz. The collision
// detector looks for extrema spaced 18-25 samples of 520us apart.
const PeriodEmitter = 131063 * time.Microsecond

// PinMap assigns MCU pins to the robot's lines.
type PinMap struct {
	Digital [NumPins]machine.Pin
	// Mux selects one of the eight photosensor channels onto Analog.
	Mux     [3]machine.Pin
	Analog  machine.Pin
	Emitter machine.Pin
	Buzzer  machine.Pin
}

type note struct {
	freq uint32
	dur  time.Duration
}

var songs = map[Song][]note{
	SongOn:    {{1047, 80 * time.Millisecond}, {1319, 80 * time.Millisecond}, {1568, 120 * time.Millisecond}},
	SongOff:   {{1568, 80 * time.Millisecond}, {1319, 80 * time.Millisecond}, {1047, 200 * time.Millisecond}},
	SongStart: {{1319, 60 * time.Millisecond}, {1760, 100 * time.Millisecond}},
	SongStop:  {{1760, 60 * time.Millisecond}, {1319, 100 * time.Millisecond}},
}

// Board is the IO of the real robot.
type Board struct {
	pins PinMap
	adc  machine.ADC

	emitter pwm.Group
	emitCh  uint8
	buzzer  pwm.Group
	buzzCh  uint8

	lck    sync.Mutex
	fn     func()
	period time.Duration
	wake   chan struct{}

	boot time.Time
}

// NewBoard configures every pin in pm and starts the periodic callback
// goroutine, disarmed. Outputs start at their safe level.
func NewBoard(pm PinMap) *Board {
	b := &Board{
		pins: pm,
		wake: make(chan struct{}, 1),
		boot: time.Now(),
	}

	for p := Pin(0); p < NumPins; p++ {
		b.pins.Digital[p].Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	for _, p := range Outputs {
		b.pins.Digital[p].Configure(machine.PinConfig{Mode: machine.PinOutput})
		b.pins.Digital[p].Set(SafeLevel(p))
	}
	for _, p := range pm.Mux {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}

	machine.InitADC()
	pm.Analog.Configure(machine.PinConfig{Mode: machine.PinAnalog})
	b.adc = machine.ADC{Pin: pm.Analog}
	b.adc.Configure(machine.ADCConfig{})

	pm.Emitter.Configure(machine.PinConfig{Mode: machine.PinPWM})
	b.emitter = pwm.Get(pm.Emitter)
	b.emitter.Configure(machine.PWMConfig{Period: uint64(PeriodEmitter)})
	b.emitCh, _ = b.emitter.Channel(pm.Emitter)
	b.emitter.Set(b.emitCh, 0)

	pm.Buzzer.Configure(machine.PinConfig{Mode: machine.PinPWM})
	b.buzzer = pwm.Get(pm.Buzzer)
	b.buzzer.Configure(machine.PWMConfig{Period: uint64(1e9) / 1000})
	b.buzzCh, _ = b.buzzer.Channel(pm.Buzzer)
	b.buzzer.Set(b.buzzCh, 0)

	go b.periodic()
	return b
}

func (b *Board) ReadDigital(p Pin) bool {
	if p >= NumPins {
		return false
	}
	return b.pins.Digital[p].Get()
}

func (b *Board) WriteDigital(p Pin, level bool) {
	if p >= NumPins {
		return
	}
	b.pins.Digital[p].Set(level)
}

// ReadSample switches the mux to ch and converts. The result is scaled to
// 10 bits.
func (b *Board) ReadSample(ch Channel) uint16 {
	if ch < 1 || ch > NumChannels {
		return 0
	}
	sel := uint8(ch - 1)
	for i, p := range b.pins.Mux {
		p.Set(sel&(1<<i) != 0)
	}
	return b.adc.Get() >> 6
}

func (b *Board) StartPeriodic(iv Interval, fn func()) {
	b.lck.Lock()
	b.fn, b.period = fn, iv.Duration()
	b.lck.Unlock()
	b.poke()
}

func (b *Board) StopPeriodic() {
	b.lck.Lock()
	b.fn = nil
	b.lck.Unlock()
	b.poke()
}

func (b *Board) poke() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// periodic calls the armed callback once per period. Re-arming restarts the
// period; fn is called without the lock held so it may re-arm itself.
func (b *Board) periodic() {
	t := time.NewTicker(time.Hour)
	for {
		b.lck.Lock()
		fn, d := b.fn, b.period
		b.lck.Unlock()

		if fn == nil {
			t.Stop()
			<-b.wake
			continue
		}
		t.Reset(d)
		for armed := true; armed; {
			select {
			case <-t.C:
				fn()
			case <-b.wake:
				armed = false
			}
		}
	}
}

func (b *Board) Emit(on bool) {
	if on {
		b.emitter.Set(b.emitCh, b.emitter.Top()/2)
		return
	}
	b.emitter.Set(b.emitCh, 0)
}

// Chime plays s on the buzzer and returns when it is done.
func (b *Board) Chime(s Song) {
	for _, n := range songs[s] {
		b.buzzer.Configure(machine.PWMConfig{Period: uint64(1e9) / uint64(n.freq)})
		b.buzzer.Set(b.buzzCh, b.buzzer.Top()/2)
		time.Sleep(n.dur)
	}
	b.buzzer.Set(b.buzzCh, 0)
}

// Counter returns the free-running microsecond count since boot.
func (b *Board) Counter() uint16 {
	return uint16(time.Since(b.boot) / time.Microsecond)
}

// Sleep disarms the callback and waits for interrupts forever.
func (b *Board) Sleep() {
	b.StopPeriodic()
	b.buzzer.Set(b.buzzCh, 0)
	b.emitter.Set(b.emitCh, 0)
	for {
		arm.Asm("wfi")
	}
}
