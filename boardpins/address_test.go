// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package boardpins

import (
	"os"
	"path"
	"testing"
)

func createDirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		if err := os.MkdirAll(path.Join(root, dir), os.ModePerm); err != nil {
			t.Fatal(err)
		}
	}
}

func createFiles(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		f, err := os.Create(path.Join(root, p))
		if err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
}

func TestResolveRejectsMalformedNames(t *testing.T) {
	for _, name := range []string{"", "A12", "PZZ", "P1A"} {
		if _, err := Resolve(name); err == nil {
			t.Errorf("Resolve(%q): expected error, got nil", name)
		}
	}
}

func TestResolveAcceptsLowercase(t *testing.T) {
	got, err := Resolve("pa5")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != 5 {
		t.Errorf("pa5 = %d, want 5", got)
	}
}

func TestResolveWithNoBaseOffset(t *testing.T) {
	// portBase() finds nothing under a nonexistent driver tree and
	// falls back to offset 0, so PA0 -> 0, PB0 -> 32, PA5 -> 5.
	got, err := Resolve("PA5")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != 5 {
		t.Errorf("PA5 = %d, want 5", got)
	}
	got, err = Resolve("PB0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != pinsPerPort {
		t.Errorf("PB0 = %d, want %d", got, pinsPerPort)
	}
}

func TestAddressFromDriverDir(t *testing.T) {
	root := t.TempDir()
	createDirs(t, root, "sun50i-h616-pinctrl")
	createFiles(t, root, "sun50i-h616-pinctrl/300b000.pinctrl")
	addr, ok := addressFromDriverDir(path.Join(root, "sun50i-h616-pinctrl"))
	if !ok {
		t.Fatal("expected to find an address")
	}
	if addr != "300b000" {
		t.Errorf("address = %q, want \"300b000\"", addr)
	}
}

func TestAddressFromDriverDirMissing(t *testing.T) {
	root := t.TempDir()
	createDirs(t, root, "sun50i-h6-pinctrl")
	if _, ok := addressFromDriverDir(path.Join(root, "sun50i-h6-pinctrl")); ok {
		t.Fatal("expected no address to be found")
	}
}

func TestBaseFromH6Glob(t *testing.T) {
	root := t.TempDir()
	createDirs(t, root, "sun50i-h6-pinctrl", "sun50i-h616-pinctrl", "sun50i-a64-unrelated")
	createFiles(t, root, "sun50i-h616-pinctrl/300b000.pinctrl")
	// No matching /sys/class/gpio tree exists in the test environment,
	// so even with a resolved address the base lookup fails closed.
	if _, ok := baseFromH6Glob(root); ok {
		t.Fatal("expected lookup to fail without a /sys/class/gpio gpiochip entry")
	}
}
