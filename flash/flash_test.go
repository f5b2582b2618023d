// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"testing"

	"github.com/periph-rp2040/swdflash/swd"
)

// connectedSession builds a Session over a FakeTarget and runs Connect,
// the common setup every test in this file needs.
func connectedSession(t *testing.T) (*swd.FakeTarget, *swd.Session) {
	t.Helper()
	ft := swd.NewFakeTarget(0x0BC12477, 0x04770021)
	s := swd.NewSessionWithLine(ft)
	if err := s.Connect(swd.TargetRP2040Core0); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return ft, s
}

// seedFunctionTable writes a synthetic bootrom function table at
// tableAddr, with one entry per code/addr pair, terminated by a
// zero-code entry, and points the fixed table-pointer address at it.
func seedFunctionTable(ft *swd.FakeTarget, tableAddr uint32, entries map[uint16]uint32) {
	ft.Mem[romFuncTablePtrAddr] = uint32(tableAddr)
	addr := tableAddr
	for code, fn := range entries {
		ft.Mem[addr] = uint32(code) | fn<<16
		addr += 4
	}
	ft.Mem[addr] = 0 // terminator
}

func TestLookupFunctionTableWalksBootromTable(t *testing.T) {
	ft, s := connectedSession(t)
	const tableAddr = 0x00000100
	seedFunctionTable(ft, tableAddr, map[uint16]uint32{
		codeDebugTrampoline: 0x00000200,
		codeConnectInternal: 0x00000210,
		codeFlashExitXIP:    0x00000220,
		codeFlashRangeErase: 0x00000230,
		codeFlashRangeProg:  0x00000240,
		codeFlashFlushCache: 0x00000250,
	})

	got, err := LookupFunctionTable(s)
	if err != nil {
		t.Fatalf("LookupFunctionTable: %v", err)
	}
	want := FunctionTable{
		DebugTrampoline:      0x00000200,
		ConnectInternalFlash: 0x00000210,
		FlashExitXIP:         0x00000220,
		FlashRangeErase:      0x00000230,
		FlashRangeProgram:    0x00000240,
		FlashFlushCache:      0x00000250,
	}
	if got != want {
		t.Errorf("LookupFunctionTable = %+v, want %+v", got, want)
	}
}

func TestLookupFunctionTableMissingCodeErrors(t *testing.T) {
	ft, s := connectedSession(t)
	const tableAddr = 0x00000100
	seedFunctionTable(ft, tableAddr, map[uint16]uint32{
		codeDebugTrampoline: 0x00000200,
	})

	if _, err := LookupFunctionTable(s); err == nil {
		t.Fatal("expected an error for a table missing most required codes, got nil")
	}
}

func TestDumpCoreStateReadsRegistersAndMemoryMappedFaultRegs(t *testing.T) {
	_, s := connectedSession(t)
	if err := s.Halt(false); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if err := s.WriteCoreReg(swd.RegPC, 0x2000ABCD, 50_000); err != nil {
		t.Fatalf("WriteCoreReg(PC): %v", err)
	}
	if err := s.WriteCoreReg(swd.RegLR, 0xFFFFFFFF, 50_000); err != nil {
		t.Fatalf("WriteCoreReg(LR): %v", err)
	}

	cs, err := DumpCoreState(s)
	if err != nil {
		t.Fatalf("DumpCoreState: %v", err)
	}
	if cs.PC != 0x2000ABCD {
		t.Errorf("PC = %#x, want 0x2000abcd", cs.PC)
	}
	if cs.LR != 0xFFFFFFFF {
		t.Errorf("LR = %#x, want 0xffffffff", cs.LR)
	}
}

func TestRecipeRunErasesProgramsAndVerifies(t *testing.T) {
	ft, s := connectedSession(t)
	const tableAddr = 0x00000100
	seedFunctionTable(ft, tableAddr, map[uint16]uint32{
		codeDebugTrampoline: 0x00000200,
		codeConnectInternal: returnZeroStubAddr(ft, 0x00000600),
		codeFlashExitXIP:    returnZeroStubAddr(ft, 0x00000610),
		codeFlashRangeErase: eraseStubAddr(ft, 0x00000620),
		codeFlashRangeProg:  programStubAddr(ft, 0x00000630),
		codeFlashFlushCache: returnZeroStubAddr(ft, 0x00000640),
	})

	image := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03}
	r := Recipe{
		Image:       image,
		FlashOffset: 0x1000,
	}

	// The fake target can "execute" only the single movs/bx stub
	// pattern FakeTarget.simulateRun decodes, so it can't run a real
	// flash_range_program copy loop. Pre-seed the flash XIP window with
	// the already-programmed content, as if flash_range_program had run
	// for real, so Run's own readback-verify step has something correct
	// to check against.
	seedFlashWindow(ft, flashXIPBase+r.FlashOffset, image)

	if err := r.Run(s); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// seedFlashWindow packs data into little-endian words starting at addr
// (rounded down to a word boundary) in the fake's memory map.
func seedFlashWindow(ft *swd.FakeTarget, addr uint32, data []byte) {
	base := addr &^ 3
	words := packWords(data)
	for i, w := range words {
		ft.Mem[base+uint32(i)*4] = w
	}
}

// returnZeroStubAddr installs a `movs r0,#0 ; bx lr` stub at addr and
// returns addr, for bootrom entry points the recipe calls but ignores
// the result of (connect_internal_flash, flash_exit_xip,
// flash_flush_cache, flash_range_erase, flash_range_program).
func returnZeroStubAddr(ft *swd.FakeTarget, addr uint32) uint32 {
	ft.Mem[addr] = 0x47702000 // movs r0,#0 ; bx lr
	return addr
}

func eraseStubAddr(ft *swd.FakeTarget, addr uint32) uint32 {
	return returnZeroStubAddr(ft, addr)
}

func programStubAddr(ft *swd.FakeTarget, addr uint32) uint32 {
	return returnZeroStubAddr(ft, addr)
}
