// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

import "time"

// Pin is the GPIO collaborator contract (one physical line) the engine
// needs. A Session owns exactly two of these — clock and data — for its
// whole lifetime and never swaps them out.
//
// Implementations live outside this package (see gpiochip, sysfsgpio and
// gpiopin); swd never imports a GPIO library directly so that it stays
// allocation-free and testable with a bare struct.
type Pin interface {
	// SetDirection configures the pin as an output (true) or a high-Z
	// input (false).
	SetDirection(output bool) error
	// Set drives the pin to the given level. Only meaningful while the
	// pin is configured as an output.
	Set(level bool) error
	// Get samples the pin's current level. Only meaningful while the pin
	// is configured as an input.
	Get() (bool, error)
	// DisablePulls turns off any internal pull-up/pull-down so a
	// released DIO floats to whatever the target drives.
	DisablePulls() error
}

// Delayer is the microsecond busy-sleep collaborator. SWD bit timing is a
// few microseconds per edge, which is below what cooperative scheduling
// (time.Sleep) can reliably hit on a general-purpose OS, so implementations
// are expected to busy-spin rather than yield.
type Delayer interface {
	DelayMicroseconds(us uint32)
}

// BusyDelayer is a Delayer that busy-spins on the monotonic clock. It is
// the default used when no other Delayer is supplied; slower or
// tracing-friendly speeds are reached by increasing HalfPeriodUs on the
// Session, not by replacing this type.
type BusyDelayer struct{}

// DelayMicroseconds implements Delayer.
func (BusyDelayer) DelayMicroseconds(us uint32) {
	if us == 0 {
		return
	}
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}
