// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package boardpins resolves an Allwinner-style header pin name (e.g.
// "PA12") to the Linux GPIO line number sysfsgpio/gpiochip need to open
// it, so a command-line flag can name a pin the way the board's
// datasheet does instead of an opaque kernel line number.
package boardpins

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// pinsPerPort is the sunxi convention: port A starts at offset 0, port
// B at offset 32, and so on, with up to 32 pins per port.
const pinsPerPort = 32

var namePattern = regexp.MustCompile(`^P([A-Z])(\d{1,2})$`)

// Resolve turns a header pin name like "PA12" into the Linux GPIO
// number sysfsgpio.Open or gpiochip's line lookup expects.
func Resolve(name string) (int, error) {
	m := namePattern.FindStringSubmatch(strings.ToUpper(name))
	if m == nil {
		return 0, fmt.Errorf("boardpins: %q is not a PORT+PIN name like \"PA12\"", name)
	}
	port := int(m[1][0] - 'A')
	pin, err := strconv.Atoi(m[2])
	if err != nil || pin >= pinsPerPort {
		return 0, fmt.Errorf("boardpins: invalid pin number in %q", name)
	}
	base, err := portBase()
	if err != nil {
		return 0, fmt.Errorf("boardpins: %w", err)
	}
	return base + port*pinsPerPort + pin, nil
}

// portBase queries the kernel driver-model symlink for the pin
// controller's GPIO base offset, defaulting to 0 (no offset, the
// common case for a single-pinctrl-driver board) if it can't be
// determined.
func portBase() (int, error) {
	const driverDir = "/sys/bus/platform/drivers"
	if base, ok := baseFromSymlink(driverDir, "sun50i-pinctrl/driver"); ok {
		return base, nil
	}
	if base, ok := baseFromH6Glob(driverDir); ok {
		return base, nil
	}
	return 0, nil
}

// baseFromSymlink follows driverDir/rel, a driver binding symlink whose
// target's basename is "<hexaddr>.<suffix>", and returns the gpiochip
// base registered under that address, if any.
func baseFromSymlink(driverDir, rel string) (int, bool) {
	link, err := os.Readlink(path.Join(driverDir, rel))
	if err != nil {
		return 0, false
	}
	parts := strings.SplitN(path.Base(link), ".", 2)
	if len(parts) != 2 {
		return 0, false
	}
	return gpiochipBaseForAddress(parts[0])
}

// baseFromH6Glob scans driverDir for an H6-family pinctrl driver
// directory (whose name varies by SoC revision) and resolves its
// address the same way.
func baseFromH6Glob(driverDir string) (int, bool) {
	items, err := os.ReadDir(driverDir)
	if err != nil {
		return 0, false
	}
	h6Name := regexp.MustCompile(`^sun50i-h6\d*-pinctrl$`)
	for _, item := range items {
		if !item.IsDir() || !h6Name.MatchString(item.Name()) {
			continue
		}
		if addr, ok := addressFromDriverDir(path.Join(driverDir, item.Name())); ok {
			return gpiochipBaseForAddress(addr)
		}
	}
	return 0, false
}

// addressFromDriverDir finds the "<hexaddr>.pinctrl" device entry bound
// under a driver directory and returns its hex address string.
func addressFromDriverDir(dir string) (string, bool) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), ".pinctrl") {
			continue
		}
		return item.Name()[:len(item.Name())-len(".pinctrl")], true
	}
	return "", false
}

// gpiochipBaseForAddress finds the /sys/class/gpio/gpiochipN whose
// device symlink contains hexAddr and returns its "base" file. The
// chip's label is not consulted.
func gpiochipBaseForAddress(hexAddr string) (int, bool) {
	if _, err := strconv.ParseUint(hexAddr, 16, 64); err != nil {
		return 0, false
	}
	entries, err := os.ReadDir("/sys/class/gpio")
	if err != nil {
		return 0, false
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "gpiochip") {
			continue
		}
		dir := path.Join("/sys/class/gpio", e.Name())
		link, err := os.Readlink(path.Join(dir, "device"))
		if err != nil || !strings.Contains(link, hexAddr) {
			continue
		}
		base, err := readInt(path.Join(dir, "base"))
		if err != nil {
			continue
		}
		return base, true
	}
	return 0, false
}

func readInt(p string) (int, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, errors.New("empty")
	}
	return strconv.Atoi(s)
}
