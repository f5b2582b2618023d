package gpiochip

// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// lineDir is the configured direction of a GPIOLine.
type lineDir uint32

const (
	dirNotSet lineDir = 0
	dirInput  lineDir = 1
	dirOutput lineDir = 2
)

// consumer identifies line requests to tools like gpioinfo. Set in init().
var consumer string

func init() {
	s := fmt.Sprintf("%s@%d", filepath.Base(os.Args[0]), os.Getpid())
	if len(s) >= _GPIO_MAX_NAME_SIZE {
		s = s[:_GPIO_MAX_NAME_SIZE-1]
	}
	consumer = s
}

// GPIOLine is a single line of a GPIOChip, requested and driven through
// the Linux v2 chardev ioctl API. It implements gpio.PinIO, so it can
// back an swd.Pin through gpiopin.Adapter. A line is obtained via
// GPIOChip.ByName().
//
// This is deliberately narrow: it knows how to configure a direction
// and drive or sample a level, which is all a bit-banged SWD link
// needs from a pin. It does not support edge-triggered waiting,
// PWM, or the teacher driver's atomic multi-line LineSet requests.
type GPIOLine struct {
	// number is this line's offset on its chip. It has no relationship
	// to any pin numbering scheme a board may document.
	number uint32
	name   string

	mu        sync.Mutex
	chipFd    uintptr
	fd        int32
	direction lineDir
	pull      gpio.Pull
}

func newGPIOLine(lineNum uint32, name string, chipFd uintptr) *GPIOLine {
	return &GPIOLine{
		number: lineNum,
		name:   strings.Trim(name, "\x00"),
		chipFd: chipFd,
	}
}

// String implements conn.Resource.
func (line *GPIOLine) String() string {
	return fmt.Sprintf("gpiochip line %d (%s)", line.number, line.name)
}

// Name implements pin.Pin.
func (line *GPIOLine) Name() string {
	return line.name
}

// Number returns the line's offset on its chip. Implements pin.Pin.
func (line *GPIOLine) Number() int {
	return int(line.number)
}

// Halt releases the line's request, if one was made. Implements
// conn.Resource.
func (line *GPIOLine) Halt() error {
	line.mu.Lock()
	defer line.mu.Unlock()
	return line.releaseLocked()
}

func (line *GPIOLine) releaseLocked() error {
	if line.fd == 0 {
		return nil
	}
	err := syscall_close_wrapper(int(line.fd))
	line.fd = 0
	line.direction = dirNotSet
	line.pull = gpio.PullNoChange
	return err
}

// In configures the line as an input. Implements gpio.PinIn. Edge
// detection isn't supported by this package; edge must be gpio.NoEdge.
func (line *GPIOLine) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		return fmt.Errorf("gpiochip: %s: edge detection not supported", line.name)
	}
	line.mu.Lock()
	defer line.mu.Unlock()
	line.direction = dirInput
	line.pull = pull
	return line.setLine(getFlags(dirInput, pull))
}

// Out drives the line to level l. Implements gpio.PinOut.
func (line *GPIOLine) Out(l gpio.Level) error {
	line.mu.Lock()
	defer line.mu.Unlock()
	if line.direction != dirOutput {
		line.direction = dirOutput
		line.pull = gpio.PullNoChange
		if err := line.setLine(getFlags(dirOutput, gpio.PullNoChange)); err != nil {
			return fmt.Errorf("gpiochip: %s: out: %w", line.name, err)
		}
	}
	var data gpio_v2_line_values
	data.mask = 0x01
	if l {
		data.bits = 0x01
	}
	return ioctl_set_gpio_v2_line_values(uintptr(line.fd), &data)
}

// Pull returns the line's configured bias. Implements gpio.PinIn.
func (line *GPIOLine) Pull() gpio.Pull {
	return line.pull
}

// DefaultPull implements gpio.PinIn. The v2 chardev ioctl API has no
// way to report a line's power-on bias, so this always reports
// PullNoChange.
func (line *GPIOLine) DefaultPull() gpio.Pull {
	return gpio.PullNoChange
}

// Read samples the line's current level. Implements gpio.PinIn.
func (line *GPIOLine) Read() gpio.Level {
	line.mu.Lock()
	needsIn := line.direction != dirInput
	line.mu.Unlock()
	if needsIn {
		if err := line.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			log.Println("gpiochip: Read:", err)
			return gpio.Low
		}
	}
	line.mu.Lock()
	defer line.mu.Unlock()
	var data gpio_v2_line_values
	data.mask = 0x01
	if err := ioctl_get_gpio_v2_line_values(uintptr(line.fd), &data); err != nil {
		log.Println("gpiochip: Read:", err)
		return gpio.Low
	}
	return data.bits&0x01 == 0x01
}

// WaitForEdge implements gpio.PinIn. Edge-triggered waiting isn't part
// of this package's bit-banged-SWD role; it always returns false.
func (line *GPIOLine) WaitForEdge(timeout time.Duration) bool {
	return false
}

// getLineFd lazily requests the line from the chip and returns its fd.
func (line *GPIOLine) getLineFd() (int32, error) {
	if line.fd != 0 {
		return line.fd, nil
	}
	var req gpio_v2_line_request
	req.offsets[0] = line.number
	req.num_lines = 1
	copy(req.consumer[:], consumer)
	if err := ioctl_gpio_v2_line_request(line.chipFd, &req); err != nil {
		return 0, fmt.Errorf("line_request ioctl: %w", err)
	}
	line.fd = req.fd
	return line.fd, nil
}

func (line *GPIOLine) setLine(flags uint64) error {
	fd, err := line.getLineFd()
	if err != nil {
		return err
	}
	var req gpio_v2_line_config
	req.flags = flags
	return ioctl_gpio_v2_line_config(uintptr(fd), &req)
}

// getFlags translates a direction/pull pair into the v2 chardev flag
// bitmask.
func getFlags(dir lineDir, pull gpio.Pull) uint64 {
	var flags uint64
	if dir == dirInput {
		flags |= _GPIO_V2_LINE_FLAG_INPUT
	} else {
		flags |= _GPIO_V2_LINE_FLAG_OUTPUT
	}
	switch pull {
	case gpio.PullUp:
		flags |= _GPIO_V2_LINE_FLAG_BIAS_PULL_UP
	case gpio.PullDown:
		flags |= _GPIO_V2_LINE_FLAG_BIAS_PULL_DOWN
	case gpio.Float:
		flags |= _GPIO_V2_LINE_FLAG_BIAS_DISABLED
	}
	return flags
}

// GPIOChip represents one Linux /dev/gpiochipN character device.
type GPIOChip struct {
	name  string
	path  string
	label string
	lines []*GPIOLine

	fd     uintptr
	file   *os.File
	osfile *os.File
}

func (chip *GPIOChip) Name() string  { return chip.name }
func (chip *GPIOChip) Path() string  { return chip.path }
func (chip *GPIOChip) Label() string { return chip.label }

// Lines returns every line the chip exposes.
func (chip *GPIOChip) Lines() []*GPIOLine {
	return chip.lines
}

// newGPIOChip opens path and reads the chip's and its lines' info via
// ioctl.
func newGPIOChip(path string) (*GPIOChip, error) {
	chip := GPIOChip{path: path}
	f, err := os.OpenFile(path, os.O_RDONLY, 0400)
	if err != nil {
		return nil, fmt.Errorf("gpiochip: open %s: %w", path, err)
	}
	chip.file = f
	chip.fd = chip.file.Fd()
	// A reference must be kept or the *os.File is garbage collected and
	// the descriptor closed out from under us.
	chip.osfile = os.NewFile(chip.fd, "gpiochip "+path)

	var info gpiochip_info
	if err := ioctl_gpiochip_info(chip.fd, &info); err != nil {
		_ = chip.file.Close()
		return nil, fmt.Errorf("gpiochip: %s: chip info: %w", path, err)
	}
	chip.name = strings.Trim(string(info.name[:]), "\x00")
	chip.label = strings.Trim(string(info.label[:]), "\x00")
	if chip.label == "" {
		chip.label = chip.name
	}

	var lineInfo gpio_v2_line_info
	for i := 0; i < int(info.lines); i++ {
		lineInfo.offset = uint32(i)
		if err := ioctl_gpio_v2_line_info(chip.fd, &lineInfo); err != nil {
			_ = chip.file.Close()
			return nil, fmt.Errorf("gpiochip: %s: line %d info: %w", path, i, err)
		}
		chip.lines = append(chip.lines, newGPIOLine(uint32(i), string(lineInfo.name[:]), chip.fd))
	}
	return &chip, nil
}

// Close releases the chip's file descriptor along with any lines that
// were requested from it.
func (chip *GPIOChip) Close() {
	for _, line := range chip.lines {
		_ = line.Halt()
	}
	_ = chip.file.Close()
	_ = chip.osfile.Close()
	chip.fd = 0
}

// ByName returns the line named name, or nil if the chip has none by
// that name.
func (chip *GPIOChip) ByName(name string) *GPIOLine {
	for _, line := range chip.lines {
		if line.name == name {
			return line
		}
	}
	return nil
}

var (
	_ gpio.PinIO  = &GPIOLine{}
	_ gpio.PinIn  = &GPIOLine{}
	_ gpio.PinOut = &GPIOLine{}
)
