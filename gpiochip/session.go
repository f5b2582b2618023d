// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpiochip

import "fmt"

// OpenLines opens chipPath (e.g. "/dev/gpiochip0") and returns the two
// named lines a Serial Wire Debug session drives: clk and dio. The
// caller must call the returned cleanup func to release the chip and
// its lines once done.
func OpenLines(chipPath, clkName, dioName string) (clk, dio *GPIOLine, cleanup func(), err error) {
	chip, err := newGPIOChip(chipPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gpiochip: open %s: %w", chipPath, err)
	}
	clk = chip.ByName(clkName)
	if clk == nil {
		chip.Close()
		return nil, nil, nil, fmt.Errorf("gpiochip: line %q not found on %s", clkName, chipPath)
	}
	dio = chip.ByName(dioName)
	if dio == nil {
		chip.Close()
		return nil, nil, nil, fmt.Errorf("gpiochip: line %q not found on %s", dioName, chipPath)
	}
	return clk, dio, chip.Close, nil
}
