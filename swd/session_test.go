// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

import "testing"

func connectedSession(t *testing.T) (*FakeTarget, *Session) {
	t.Helper()
	ft := NewFakeTarget(0x0BC12477, 0x04770021)
	s := NewSessionWithLine(ft)
	if err := s.Connect(TargetRP2040Core0); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return ft, s
}

// TestCallFunctionTrampolineReturnsR0 exercises scenario S5: injecting
// the "movs r0,#8; bx lr" pattern at a RAM address and calling it
// through the fallback trampoline must re-halt the core on its bkpt and
// yield r0 == 8.
func TestCallFunctionTrampolineReturnsR0(t *testing.T) {
	ft, s := connectedSession(t)
	const calleeAddr = 0x20000010
	ft.Mem[calleeAddr] = 0x47702008 // movs r0,#8 ; bx lr

	const trampolineRAM = 0x20000100
	trampolineCall, err := s.InjectTrampoline(trampolineRAM)
	if err != nil {
		t.Fatalf("InjectTrampoline: %v", err)
	}

	if err := s.Halt(false); err != nil {
		t.Fatalf("Halt: %v", err)
	}

	res, err := s.CallFunction([4]uint32{}, calleeAddr, trampolineCall, 0x20001000, 50_000)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if res.R0 != 8 {
		t.Errorf("R0 = %d, want 8", res.R0)
	}
	halted, err := s.debug.IsHalted()
	if err != nil {
		t.Fatalf("IsHalted: %v", err)
	}
	if !halted {
		t.Error("expected core to be re-halted at the trampoline's bkpt")
	}
}

// TestWriteCoreRegTimesOutWithoutRegRdy exercises testable property 6:
// if S_REGRDY never sets, WriteCoreReg must surface a
// *DebugTimeoutError rather than spin forever or silently succeed.
func TestWriteCoreRegTimesOutWithoutRegRdy(t *testing.T) {
	ft, s := connectedSession(t)
	// Force every DCRSR write to not set S_REGRDY, simulating a target
	// that never completes the register transfer.
	ft.JammedRegRdy = true

	err := s.WriteCoreReg(RegR0, 0x12345678, 2000)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if _, ok := err.(*DebugTimeoutError); !ok {
		t.Fatalf("expected *DebugTimeoutError, got %v (%T)", err, err)
	}
}

// TestPostedReadRoundTrip exercises testable property 4 directly
// against transact(): scripting three successive AP reads {A, B, C}
// must surface B then C on the second and third calls — Session/link
// do no hidden re-shifting beyond what the wire itself returns.
func TestPostedReadRoundTrip(t *testing.T) {
	fl := newFakeLine(
		fakeResponse{ack: AckOK, data: 0xAAAAAAAA},
		fakeResponse{ack: AckOK, data: 0xBBBBBBBB},
		fakeResponse{ack: AckOK, data: 0xCCCCCCCC},
	)
	r := request{ap: true, rnw: true, addr: apDRW}

	first, _, err := transact(fl, r, 0, false)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if first != 0xAAAAAAAA {
		t.Errorf("first read = %#x, want 0xAAAAAAAA (the wire's own, possibly-stale, value)", first)
	}

	second, _, err := transact(fl, r, 0, false)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if second != 0xBBBBBBBB {
		t.Errorf("second read = %#x, want 0xBBBBBBBB", second)
	}

	third, _, err := transact(fl, r, 0, false)
	if err != nil {
		t.Fatalf("third read: %v", err)
	}
	if third != 0xCCCCCCCC {
		t.Errorf("third read = %#x, want 0xCCCCCCCC", third)
	}
}
