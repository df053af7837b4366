// Command beetlesim runs the robot against a simulated board: it presses a
// master button, lets the robot drive, puts an obstacle in front of one
// photosensor module and logs every reaction.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/sparques/beetle"
	"github.com/sparques/beetle/beetletest"
	"github.com/sparques/beetle/ldr"
	"github.com/sparques/beetle/reaction"
	"github.com/sparques/beetle/robot"
)

// simStep is the simulated time between two polls.
const simStep = 100 * time.Microsecond

// wave is a triangle of the given half-period in samples.
func wave(halfPeriod, n int, low, step uint16) []uint16 {
	out := make([]uint16, n)
	v, dir, run := int(low), 1, 0
	for i := range out {
		out[i] = uint16(v)
		run++
		if run == halfPeriod {
			dir, run = -dir, 0
		}
		v += dir * int(step)
	}
	return out
}

type scenario struct {
	duration      time.Duration
	demo          bool
	module        ldr.Module
	obstacleAfter time.Duration
	stallAfter    time.Duration
}

func simulate(sc scenario, cfg robot.Config, log *slog.Logger) error {
	hw := beetletest.New()
	clock := beetletest.NewClock(0)
	r, err := robot.New(hw, clock, cfg, log)
	if err != nil {
		return err
	}

	// turning wheels reflect a stripe pattern back to the rotation modules
	for _, m := range []ldr.Module{ldr.WheelRight, ldr.WheelLeft} {
		hw.Script(beetle.Channel(m), wave(15, 1<<16, 200, 20)...)
	}
	button := beetle.PinButton1
	if sc.demo {
		button = beetle.PinButton2
	}

	var (
		now, sinceTick time.Duration
		obstacle       bool
		stalled        bool
		lastCode       = reaction.None
		lastState      = reaction.Idle
	)
	for ; now < sc.duration; now += simStep {
		clock.Advance(simStep)

		switch {
		case now == 10*time.Millisecond:
			hw.Set(button, true)
		case now == 30*time.Millisecond:
			hw.Set(button, false)
		}
		if !obstacle && sc.obstacleAfter > 0 && now >= sc.obstacleAfter {
			obstacle = true
			log.Info("obstacle", "module", sc.module, "t", now)
			hw.Script(beetle.Channel(sc.module), wave(21, 400, 100, 10)...)
		}
		if !stalled && sc.stallAfter > 0 && now >= sc.stallAfter {
			stalled = true
			log.Info("wheels stalled", "t", now)
			hw.Reset(beetle.Channel(ldr.WheelRight))
			hw.Hold(beetle.Channel(ldr.WheelRight), 0)
		}

		if running, iv := hw.Periodic(); running {
			sinceTick += simStep
			if sinceTick >= iv.Duration() {
				sinceTick = 0
				hw.Tick(1)
			}
		} else {
			sinceTick = 0
		}

		if err := r.Poll(); err != nil {
			return err
		}

		if c, s := r.Engine.Code(), r.Engine.State(); c != lastCode || s != lastState {
			log.Info("transition", "t", now, "state", s, "code", c, "mode", r.Motor.Mode(), "steps", r.Motor.Steps())
			lastCode, lastState = c, s
		}
	}

	fmt.Printf("after %s: state %s, mode %s, songs %v\n", sc.duration, r.Engine.State(), r.Motor.Mode(), hw.Songs)
	return nil
}

func main() {
	def := robot.DefaultConfig()

	app := cli.NewApp()
	app.Name = "beetlesim"
	app.Usage = "run the beetle robot against a simulated board"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "debug, info, warn or error",
		},
		cli.DurationFlag{
			Name:  "duration",
			Value: 10 * time.Second,
			Usage: "simulated run time",
		},
		cli.BoolFlag{
			Name:  "demo",
			Usage: "press the demo button instead of start",
		},
		cli.IntFlag{
			Name:  "module",
			Value: int(ldr.FrontMiddle),
			Usage: "collision module (1-6) the obstacle appears in front of",
		},
		cli.DurationFlag{
			Name:  "obstacle-after",
			Value: 2 * time.Second,
			Usage: "when the obstacle appears; 0 for never",
		},
		cli.DurationFlag{
			Name:  "stall-after",
			Usage: "when the right wheel stops turning; 0 for never",
		},
		cli.UintFlag{
			Name:  "seed",
			Usage: "PRBS seed; 0 seeds from the board counter",
		},
		cli.IntFlag{
			Name:  "soft-start",
			Value: def.SoftStartTicks,
			Usage: "soft start countdown in slow motor ticks",
		},
		cli.UintFlag{
			Name:  "escape-steps",
			Value: uint(def.EscapeSteps),
			Usage: "half-steps of the escape maneuver",
		},
		cli.UintFlag{
			Name:  "demo-steps",
			Value: uint(def.DemoSteps),
			Usage: "half-steps per demo mode",
		},
	}
	app.Action = func(c *cli.Context) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
			return err
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		m := ldr.Module(c.Int("module"))
		if !m.Collision() {
			return fmt.Errorf("module %d is not a collision module", m)
		}

		cfg := def
		cfg.Seed = uint16(c.Uint("seed"))
		cfg.SoftStartTicks = c.Int("soft-start")
		cfg.EscapeSteps = uint32(c.Uint("escape-steps"))
		cfg.DemoSteps = uint32(c.Uint("demo-steps"))

		return simulate(scenario{
			duration:      c.Duration("duration"),
			demo:          c.Bool("demo"),
			module:        m,
			obstacleAfter: c.Duration("obstacle-after"),
			stallAfter:    c.Duration("stall-after"),
		}, cfg, log)
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
