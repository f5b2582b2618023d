// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package flash reproduces the RP2040 bootrom's flash-programming
// recipe from the host side of a halted Serial Wire Debug session:
// resolving the bootrom's ROM function table, calling
// flash_range_erase/flash_range_program through the debug trampoline,
// and verifying the write by reading it back.
package flash

import (
	"fmt"

	"github.com/periph-rp2040/swdflash/swd"
)

// romFuncTablePtrAddr is the fixed RP2040 bootrom address holding a
// 16-bit pointer to the function lookup table (RP2040 datasheet
// §2.8.3.1.3), the same address pico-sdk's rom_func_lookup reads.
const romFuncTablePtrAddr = 0x00000014

// maxTableEntries bounds the function-table walk so a malformed or
// unresponsive target can't hang the host in an infinite read loop.
const maxTableEntries = 256

// rom_table_code packs two ASCII identifier bytes into the 16-bit code
// rom_func_lookup matches against, exactly as pico-sdk's
// rom_table_code(c1, c2) does.
func romTableCode(c1, c2 byte) uint16 {
	return uint16(c1) | uint16(c2)<<8
}

// Well-known RP2040 bootrom function codes (RP2040 datasheet §2.8.3),
// named the way original_source's flash-test-3a.c names them.
var (
	codeDebugTrampoline = romTableCode('D', 'T')
	codeConnectInternal = romTableCode('I', 'F')
	codeFlashExitXIP    = romTableCode('E', 'X')
	codeFlashRangeErase = romTableCode('R', 'E')
	codeFlashRangeProg  = romTableCode('R', 'P')
	codeFlashFlushCache = romTableCode('F', 'C')
)

// FunctionTable holds the bootrom entry points flash_range_erase and
// flash_range_program need, resolved once per session.
type FunctionTable struct {
	DebugTrampoline      uint32
	ConnectInternalFlash uint32
	FlashExitXIP         uint32
	FlashRangeErase      uint32
	FlashRangeProgram    uint32
	FlashFlushCache      uint32
}

// LookupFunctionTable walks the bootrom's function table over the
// halted target's memory, exactly reproducing the host-side portion of
// rom_func_lookup for each entry flash_range_erase/flash_range_program
// needs.
func LookupFunctionTable(s *swd.Session) (FunctionTable, error) {
	base, err := tableBase(s)
	if err != nil {
		return FunctionTable{}, err
	}
	lookup := func(code uint16) (uint32, error) {
		addr, err := findCode(s, base, code)
		if err != nil {
			return 0, err
		}
		return addr, nil
	}

	var ft FunctionTable
	var lerr error
	assign := func(dst *uint32, code uint16, name string) {
		if lerr != nil {
			return
		}
		v, err := lookup(code)
		if err != nil {
			lerr = fmt.Errorf("flash: bootrom lookup %q: %w", name, err)
			return
		}
		*dst = v
	}
	assign(&ft.DebugTrampoline, codeDebugTrampoline, "DT")
	assign(&ft.ConnectInternalFlash, codeConnectInternal, "IF")
	assign(&ft.FlashExitXIP, codeFlashExitXIP, "EX")
	assign(&ft.FlashRangeErase, codeFlashRangeErase, "RE")
	assign(&ft.FlashRangeProgram, codeFlashRangeProg, "RP")
	assign(&ft.FlashFlushCache, codeFlashFlushCache, "FC")
	if lerr != nil {
		return FunctionTable{}, lerr
	}
	return ft, nil
}

// tableBase reads the 16-bit pointer at romFuncTablePtrAddr and returns
// it zero-extended to a full address.
func tableBase(s *swd.Session) (uint32, error) {
	ptr, err := s.ReadHalfWord(romFuncTablePtrAddr)
	if err != nil {
		return 0, fmt.Errorf("flash: read bootrom function table pointer: %w", err)
	}
	return uint32(ptr), nil
}

// findCode walks the (code uint16, addr uint16) pairs starting at base
// until it finds code, hits the zero-code terminator, or exceeds
// maxTableEntries.
func findCode(s *swd.Session, base uint32, code uint16) (uint32, error) {
	for i := 0; i < maxTableEntries; i++ {
		entryAddr := base + uint32(i)*4
		gotCode, err := s.ReadHalfWord(entryAddr)
		if err != nil {
			return 0, fmt.Errorf("read table entry at %#x: %w", entryAddr, err)
		}
		if gotCode == 0 {
			return 0, fmt.Errorf("bootrom function table terminated before code %#04x was found", code)
		}
		if gotCode == code {
			addr, err := s.ReadHalfWord(entryAddr + 2)
			if err != nil {
				return 0, fmt.Errorf("read table entry address at %#x: %w", entryAddr+2, err)
			}
			return uint32(addr), nil
		}
	}
	return 0, fmt.Errorf("bootrom function table: code %#04x not found within %d entries", code, maxTableEntries)
}
