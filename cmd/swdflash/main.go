// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command swdflash erases and programs an RP2040's flash over a
// bit-banged Serial Wire Debug link, using a host's GPIO pins as the
// CLK/DIO wires.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/periph-rp2040/swdflash/boardpins"
	"github.com/periph-rp2040/swdflash/flash"
	"github.com/periph-rp2040/swdflash/gpiochip"
	"github.com/periph-rp2040/swdflash/gpiopin"
	"github.com/periph-rp2040/swdflash/swd"
	"github.com/periph-rp2040/swdflash/sysfsgpio"
)

func main() {
	var (
		transport      = flag.String("transport", "gpiochip", "GPIO transport: gpiochip or sysfsgpio")
		chipPath       = flag.String("chip", "/dev/gpiochip0", "chardev path (gpiochip transport only)")
		clkName        = flag.String("clk", "", "CLK line name (gpiochip) or header pin name/number (sysfsgpio)")
		dioName        = flag.String("dio", "", "DIO line name (gpiochip) or header pin name/number (sysfsgpio)")
		halfPeriodUs   = flag.Uint("half-period-us", uint(swd.DefaultHalfPeriodUs), "SWD half-clock-period in microseconds")
		imagePath      = flag.String("image", "", "path to the raw binary image to program")
		flashOffset    = flag.Uint("offset", 0, "byte offset within flash to program the image at")
		eraseBlockSize = flag.Uint("erase-block-size", flash.DefaultEraseBlockSize, "flash erase block size in bytes")
		dumpStatus     = flag.Bool("dump-status", false, "dump core/fault register state before programming (no dump is taken afterwards)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "swdflash: ", 0)

	if *imagePath == "" {
		logger.Fatal("-image is required")
	}
	image, err := os.ReadFile(*imagePath)
	if err != nil {
		logger.Fatalf("read image: %v", err)
	}

	clk, dio, cleanup, err := openLines(*transport, *chipPath, *clkName, *dioName)
	if err != nil {
		logger.Fatalf("open GPIO lines: %v", err)
	}
	defer cleanup()

	s := swd.NewSession(clk, dio, uint32(*halfPeriodUs))
	if err := s.Connect(swd.TargetRP2040Core0); err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()

	logger.Printf("connected: AP IDR=%#08x", s.ApID())

	if *dumpStatus {
		if err := s.Halt(false); err != nil {
			logger.Fatalf("halt: %v", err)
		}
		cs, err := flash.DumpCoreState(s)
		if err != nil {
			logger.Fatalf("dump core state: %v", err)
		}
		logger.Printf("before programming:\n%s", cs)
	}

	r := flash.Recipe{
		Image:          image,
		FlashOffset:    uint32(*flashOffset),
		EraseBlockSize: uint32(*eraseBlockSize),
	}
	logger.Printf("programming %d bytes at flash offset %#x", len(image), r.FlashOffset)
	if err := r.Run(s); err != nil {
		logger.Fatalf("program: %v", err)
	}
	logger.Printf("done")
}

// openLines resolves clkName/dioName against the chosen transport and
// returns the two gpio.PinIO-backed swd.Pin adapters plus a cleanup
// func that releases the underlying chip/files.
func openLines(transport, chipPath, clkName, dioName string) (clk, dio swd.Pin, cleanup func(), err error) {
	switch transport {
	case "gpiochip":
		clkLine, dioLine, chipCleanup, err := gpiochip.OpenLines(chipPath, clkName, dioName)
		if err != nil {
			return nil, nil, nil, err
		}
		return gpiopin.New(clkLine), gpiopin.New(dioLine), chipCleanup, nil

	case "sysfsgpio":
		// A plain number is a sysfs GPIO number; anything else is a
		// header pin name for boardpins.
		clkNum, err := strconv.Atoi(clkName)
		if err != nil {
			if clkNum, err = boardpins.Resolve(clkName); err != nil {
				return nil, nil, nil, fmt.Errorf("resolve clk pin %q: %w", clkName, err)
			}
		}
		dioNum, err := strconv.Atoi(dioName)
		if err != nil {
			if dioNum, err = boardpins.Resolve(dioName); err != nil {
				return nil, nil, nil, fmt.Errorf("resolve dio pin %q: %w", dioName, err)
			}
		}
		clkPin, err := sysfsgpio.Open(clkNum)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open clk line %d: %w", clkNum, err)
		}
		dioPin, err := sysfsgpio.Open(dioNum)
		if err != nil {
			clkPin.Halt()
			return nil, nil, nil, fmt.Errorf("open dio line %d: %w", dioNum, err)
		}
		cleanup := func() {
			dioPin.Halt()
			clkPin.Halt()
		}
		return gpiopin.New(clkPin), gpiopin.New(dioPin), cleanup, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown -transport %q (want gpiochip or sysfsgpio)", transport)
	}
}
