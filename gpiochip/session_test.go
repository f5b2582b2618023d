// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpiochip

import "testing"

// OpenLines' success path needs a real chardev (newGPIOChip issues
// kernel ioctls), so only its error path not exercised by basic_test.go
// is covered here: a chip path that doesn't exist at all.
func TestOpenLinesMissingChipErrors(t *testing.T) {
	_, _, _, err := OpenLines("/dev/gpiochip-does-not-exist", "CLK", "DIO")
	if err == nil {
		t.Fatal("expected an error opening a nonexistent chardev, got nil")
	}
}
