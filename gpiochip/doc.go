// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.
//
// Package gpiochip drives the CLK/DIO lines of a bit-banged Serial
// Wire Debug link through the Linux v2 chardev GPIO ioctl interface.
//
// https://docs.kernel.org/userspace-api/gpio/index.html
//
// Call OpenLines to open a chardev (e.g. /dev/gpiochip0) and request
// the two named lines an swd.Session drives.
package gpiochip
