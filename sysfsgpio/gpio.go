// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sysfsgpio drives a GPIO pin through the kernel's legacy
// /sys/class/gpio interface, for hosts where the hardware-specific
// memory-mapped GPIO driver isn't available or isn't worth building.
// It's intentionally narrow: two pins (clock and data), no edge
// detection, no pull-resistor control beyond what the kernel exposes.
package sysfsgpio

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

const gpioRoot = "/sys/class/gpio/"

// Pin represents one GPIO pin exported through sysfs.
type Pin struct {
	number int
	name   string
	root   string // /sys/class/gpio/gpio%d/

	mu        sync.Mutex
	fValue    *os.File
	fDir      *os.File
	direction direction
	buf       [4]byte
}

type direction int

const (
	dUnknown direction = iota
	dIn
	dOut
)

// Open exports GPIO pin number via sysfs and returns a handle to it.
// The caller is responsible for calling Halt to unexport it.
func Open(number int) (*Pin, error) {
	p := &Pin{
		number: number,
		name:   fmt.Sprintf("GPIO%d", number),
		root:   fmt.Sprintf("%sgpio%d/", gpioRoot, number),
	}
	if err := p.export(); err != nil {
		return nil, p.wrap(err)
	}
	if err := p.open(); err != nil {
		return nil, p.wrap(err)
	}
	return p, nil
}

// String implements conn.Resource.
func (p *Pin) String() string { return p.name }

// Name implements pin.Pin.
func (p *Pin) Name() string { return p.name }

// Number implements pin.Pin.
func (p *Pin) Number() int { return p.number }

// Halt implements conn.Resource. It closes the open file handles and
// unexports the pin.
func (p *Pin) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fValue != nil {
		_ = p.fValue.Close()
		p.fValue = nil
	}
	if p.fDir != nil {
		_ = p.fDir.Close()
		p.fDir = nil
	}
	f, err := os.OpenFile(gpioRoot+"unexport", os.O_WRONLY, 0)
	if err != nil {
		return p.wrap(err)
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(p.number))
	return err
}

// In implements gpio.PinIn. sysfs gpio has no pull-resistor control, so
// pull must be Float or PullNoChange.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull != gpio.PullNoChange && pull != gpio.Float {
		return p.wrap(errors.New("sysfs gpio does not support pull-up/pull-down"))
	}
	if edge != gpio.NoEdge {
		return p.wrap(errors.New("edge detection is not supported"))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.direction == dIn {
		return nil
	}
	if _, err := p.fDir.WriteAt([]byte("in"), 0); err != nil {
		return p.wrap(err)
	}
	p.direction = dIn
	return nil
}

// Read implements gpio.PinIn.
func (p *Pin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fValue == nil {
		return gpio.Low
	}
	n, err := p.fValue.ReadAt(p.buf[:1], 0)
	if err != nil || n == 0 {
		return gpio.Low
	}
	return p.buf[0] == '1'
}

// WaitForEdge implements gpio.PinIn. Edge detection isn't supported; it
// always returns false immediately.
func (p *Pin) WaitForEdge(time.Duration) bool { return false }

// Pull implements gpio.PinIn.
func (p *Pin) Pull() gpio.Pull { return gpio.PullNoChange }

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull { return gpio.PullNoChange }

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.direction != dOut {
		// Writing "low"/"high" to /direction switches to output with that
		// initial value glitch-free in one syscall.
		v := []byte("low")
		if l {
			v = []byte("high")
		}
		if _, err := p.fDir.WriteAt(v, 0); err != nil {
			return p.wrap(err)
		}
		p.direction = dOut
		return nil
	}
	v := []byte("0")
	if l {
		v = []byte("1")
	}
	_, err := p.fValue.WriteAt(v, 0)
	return p.wrap(err)
}

func (p *Pin) export() error {
	f, err := os.OpenFile(gpioRoot+"export", os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(p.number)); err != nil && !isErrBusy(err) {
		return err
	}
	// The kernel creates the gpioN/ directory synchronously but udev may
	// still be applying permission rules; retry briefly.
	var lastErr error
	for start := time.Now(); time.Since(start) < time.Second; {
		if _, lastErr = os.Stat(p.root + "value"); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p *Pin) open() error {
	var err error
	if p.fValue, err = os.OpenFile(p.root+"value", os.O_RDWR, 0); err != nil {
		return err
	}
	if p.fDir, err = os.OpenFile(p.root+"direction", os.O_RDWR, 0); err != nil {
		_ = p.fValue.Close()
		p.fValue = nil
		return err
	}
	return nil
}

func (p *Pin) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("sysfsgpio(%s): %w", p.name, err)
}

func isErrBusy(err error) bool {
	return err != nil && os.IsExist(err)
}

var (
	_ gpio.PinIn  = &Pin{}
	_ gpio.PinOut = &Pin{}
	_ gpio.PinIO  = &Pin{}
)
