// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

import "testing"

// TestConnectCore0IDCodeReadback exercises scenario S1: a target that
// answers TARGETSEL for RP2040 core 0 and returns a plausible Cortex-M0+
// IDCODE must leave connect() successful and ApID populated from the AP
// IDR readback.
func TestConnectCore0IDCodeReadback(t *testing.T) {
	ft := NewFakeTarget(0x0BC12477, 0x04770021)
	lk := newLink(ft)
	if err := lk.connect(TargetRP2040Core0); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if lk.ApID() != 0x04770021 {
		t.Errorf("ApID = %#x, want %#x", lk.ApID(), 0x04770021)
	}
}

// TestConnectPowerUpFailureSurfacesLinkError exercises scenario S2's
// failure path: a target whose CTRL/STAT readback never reports
// CDBGPWRUPACK must surface a *LinkError naming the power-up step.
func TestConnectPowerUpFailureSurfacesLinkError(t *testing.T) {
	ft := NewFakeTarget(0x0BC12477, 0x04770021)
	ft.CtrlStatRead = 0x50000000 // request bits 30 and 28 only; neither ack bit (31, 29) set
	lk := newLink(ft)
	err := lk.connect(TargetRP2040Core0)
	if err == nil {
		t.Fatal("expected connect to fail, got nil")
	}
	lerr, ok := err.(*LinkError)
	if !ok {
		t.Fatalf("expected *LinkError, got %v (%T)", err, err)
	}
	if lerr.Step != 12 {
		t.Errorf("LinkError.Step = %d, want 12 (power-up poll)", lerr.Step)
	}
}

// TestConnectPowerUpSuccessBothAcksSet exercises scenario S2's happy
// path explicitly (0xF0000000 on the first poll).
func TestConnectPowerUpSuccessBothAcksSet(t *testing.T) {
	ft := NewFakeTarget(0x0BC12477, 0x04770021)
	ft.CtrlStatRead = 0xF0000000
	lk := newLink(ft)
	if err := lk.connect(TargetRP2040Core0); err != nil {
		t.Fatalf("connect: %v", err)
	}
}
