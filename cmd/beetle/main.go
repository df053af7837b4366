//go:build tinygo && cortexm

// Command beetle is the robot firmware for a Raspberry Pi Pico carrier
// board.
package main

import (
	"context"
	"log/slog"
	"machine"

	"github.com/sparques/beetle"
	"github.com/sparques/beetle/robot"
)

// pins is the carrier board wiring. The emitter and buzzer sit on separate
// PWM slices so each can run its own period.
var pins = beetle.PinMap{
	Digital: [beetle.NumPins]machine.Pin{
		beetle.PinL0:         machine.GP0,
		beetle.PinL1:         machine.GP1,
		beetle.PinM1Ph1:      machine.GP2,
		beetle.PinM1Ph2:      machine.GP3,
		beetle.PinM2Ph1:      machine.GP4,
		beetle.PinM2Ph2:      machine.GP5,
		beetle.PinEnable:     machine.GP6,
		beetle.PinLamp:       machine.GP7,
		beetle.PinBumper1:    machine.GP8,
		beetle.PinBumper2:    machine.GP9,
		beetle.PinBumper3:    machine.GP10,
		beetle.PinBumper4:    machine.GP11,
		beetle.PinButton1:    machine.GP12,
		beetle.PinButton2:    machine.GP13,
		beetle.PinBatteryLow: machine.GP14,
	},
	Mux:     [3]machine.Pin{machine.GP20, machine.GP21, machine.GP22},
	Analog:  machine.ADC0,
	Emitter: machine.GP15,
	Buzzer:  machine.GP16,
}

func main() {
	log := slog.New(slog.NewTextHandler(machine.Serial, nil))

	board := beetle.NewBoard(pins)
	r, err := robot.New(board, nil, robot.DefaultConfig(), log)
	if err != nil {
		log.Error("bad config", "err", err)
		return
	}
	err = r.Run(context.Background())
	log.Error("beetle stopped", "err", err)
}
