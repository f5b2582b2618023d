// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpiopin adapts a periph.io/x/conn/v3/gpio.PinIO into the
// narrow swd.Pin contract, so any periph-compatible driver — the
// gpiochip chardev ioctl driver, the legacy sysfsgpio driver, or a
// future board-specific one — can back an swd.Session without the swd
// package importing periph directly.
package gpiopin

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Adapter narrows a gpio.PinIO to swd.Pin's four primitives.
type Adapter struct {
	pin gpio.PinIO
}

// New wraps pin as an swd.Pin.
func New(pin gpio.PinIO) *Adapter {
	return &Adapter{pin: pin}
}

// SetDirection configures the pin as an output (true) or input (false),
// implementing swd.Pin.
func (a *Adapter) SetDirection(output bool) error {
	if output {
		return a.pin.Out(gpio.Low)
	}
	return a.pin.In(gpio.PullNoChange, gpio.NoEdge)
}

// Set drives the pin to level, implementing swd.Pin.
func (a *Adapter) Set(level bool) error {
	if level {
		return a.pin.Out(gpio.High)
	}
	return a.pin.Out(gpio.Low)
}

// Get samples the pin's current level, implementing swd.Pin.
func (a *Adapter) Get() (bool, error) {
	return bool(a.pin.Read()), nil
}

// DisablePulls turns off the pin's internal pull resistor and switches
// it to a floating input, implementing swd.Pin.
func (a *Adapter) DisablePulls() error {
	if err := a.pin.In(gpio.Float, gpio.NoEdge); err != nil {
		return fmt.Errorf("gpiopin: disable pulls on %s: %w", a.pin.Name(), err)
	}
	return nil
}
