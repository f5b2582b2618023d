// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"fmt"
	"time"

	"github.com/periph-rp2040/swdflash/swd"
)

// Default layout constants for the RAM scratch space the recipe uses to
// stage image bytes and host the call trampoline, chosen well clear of
// the bootrom's own stack and of SRAM bank boundaries on an RP2040.
const (
	DefaultRAMScratchAddr  = 0x20001000
	DefaultTrampolineAddr  = 0x20000FE0
	DefaultStackTop        = 0x20041000
	DefaultEraseBlockSize  = 4096
	defaultCallTimeoutUs   = 1_000_000
	flashRangeEraseBlkCmd  = 0xD8 // pico-sdk's block-erase command for flash_range_erase
	resetSettleDelay       = 10 * time.Millisecond
)

// Recipe describes one program-and-verify pass over a target's flash,
// reproducing prog_1()'s reset_into_debug / flash_and_verify / reset
// sequence.
type Recipe struct {
	// Image is the raw binary to write.
	Image []byte
	// FlashOffset is the byte offset within the target's flash (XIP
	// base relative) to write Image at.
	FlashOffset uint32

	// RAMScratchAddr is where Image is staged in target RAM before
	// flash_range_program copies it into flash. Must be large enough to
	// hold Image.
	RAMScratchAddr uint32
	// TrampolineAddr is where the call trampoline stub is injected.
	TrampolineAddr uint32
	// StackTop is the stack pointer handed to each trampoline call.
	StackTop uint32
	// EraseBlockSize is the erase granularity passed to
	// flash_range_erase; Image is erased in units of this size.
	EraseBlockSize uint32
	// CallTimeoutUs bounds each individual trampoline call.
	CallTimeoutUs uint32
}

// normalized returns a copy of r with zero fields replaced by their
// defaults.
func (r Recipe) normalized() Recipe {
	if r.RAMScratchAddr == 0 {
		r.RAMScratchAddr = DefaultRAMScratchAddr
	}
	if r.TrampolineAddr == 0 {
		r.TrampolineAddr = DefaultTrampolineAddr
	}
	if r.StackTop == 0 {
		r.StackTop = DefaultStackTop
	}
	if r.EraseBlockSize == 0 {
		r.EraseBlockSize = DefaultEraseBlockSize
	}
	if r.CallTimeoutUs == 0 {
		r.CallTimeoutUs = defaultCallTimeoutUs
	}
	return r
}

// eraseLength rounds Image's length up to a whole number of erase
// blocks, since flash_range_erase operates on block-aligned extents.
func (r Recipe) eraseLength() uint32 {
	n := uint32(len(r.Image))
	rem := n % r.EraseBlockSize
	if rem == 0 {
		return n
	}
	return n + (r.EraseBlockSize - rem)
}

// Run halts the target, resets it into debug mode, erases and
// programs Image at FlashOffset, verifies the write by reading it
// back, then releases the target to run normally — the host-side
// equivalent of prog_1()'s reset_into_debug(swd) followed by
// flash_and_verify(swd, 0, blinky_bin, blinky_bin_len) followed by a
// plain reset.
func (r Recipe) Run(s *swd.Session) error {
	r = r.normalized()

	if err := s.ResetIntoDebug(resetSettleDelay); err != nil {
		return fmt.Errorf("flash: reset into debug: %w", err)
	}

	ft, err := LookupFunctionTable(s)
	if err != nil {
		return err
	}

	trampolineCall, err := s.InjectTrampoline(r.TrampolineAddr)
	if err != nil {
		return fmt.Errorf("flash: inject call trampoline: %w", err)
	}

	call := func(name string, calleeAddr uint32, args [4]uint32) (swd.CallResult, error) {
		res, err := s.CallFunction(args, calleeAddr, trampolineCall, r.StackTop, r.CallTimeoutUs)
		if err != nil {
			return swd.CallResult{}, fmt.Errorf("flash: call %s: %w", name, err)
		}
		return res, nil
	}

	if _, err := call("connect_internal_flash", ft.ConnectInternalFlash, [4]uint32{}); err != nil {
		return err
	}
	if _, err := call("flash_exit_xip", ft.FlashExitXIP, [4]uint32{}); err != nil {
		return err
	}

	eraseLen := r.eraseLength()
	if _, err := call("flash_range_erase", ft.FlashRangeErase, [4]uint32{
		r.FlashOffset, eraseLen, r.EraseBlockSize, flashRangeEraseBlkCmd,
	}); err != nil {
		return err
	}

	if err := r.stageAndProgram(s, ft, call); err != nil {
		return err
	}

	if _, err := call("flash_flush_cache", ft.FlashFlushCache, [4]uint32{}); err != nil {
		return err
	}

	if err := r.verify(s); err != nil {
		return err
	}

	if err := s.ResetRun(); err != nil {
		return fmt.Errorf("flash: reset to run: %w", err)
	}
	return nil
}

// stageAndProgram writes Image into the RAM scratch buffer a word at a
// time, padding the final partial word with zero bytes so
// flash_range_program always receives a whole number of words, then
// calls flash_range_program to copy it into flash.
func (r Recipe) stageAndProgram(s *swd.Session, ft FunctionTable, call func(string, uint32, [4]uint32) (swd.CallResult, error)) error {
	words := packWords(r.Image)
	if err := s.WriteMultiWord(r.RAMScratchAddr, words); err != nil {
		return fmt.Errorf("flash: stage image into RAM at %#x: %w", r.RAMScratchAddr, err)
	}
	_, err := call("flash_range_program", ft.FlashRangeProgram, [4]uint32{
		r.FlashOffset, r.RAMScratchAddr, uint32(len(words)) * 4,
	})
	return err
}

// verify reads back the programmed bytes and compares them against
// Image, catching a silently-failed program operation before the
// target is released to run.
func (r Recipe) verify(s *swd.Session) error {
	n := len(r.Image)
	if n == 0 {
		return nil
	}
	words, err := s.ReadMultiWord(flashXIPBase+r.FlashOffset, (n+3)/4)
	if err != nil {
		return fmt.Errorf("flash: read back programmed flash: %w", err)
	}
	got := unpackWords(words)[:n]
	for i := range r.Image {
		if got[i] != r.Image[i] {
			return fmt.Errorf("flash: verify mismatch at offset %#x: got %#02x, want %#02x", i, got[i], r.Image[i])
		}
	}
	return nil
}

// flashXIPBase is the RP2040's memory-mapped flash window base address,
// where the just-programmed bytes become readable once flush_cache has
// run.
const flashXIPBase = 0x10000000

// packWords packs b into little-endian 32-bit words, zero-padding the
// final word if b's length isn't a multiple of 4.
func packWords(b []byte) []uint32 {
	n := (len(b) + 3) / 4
	words := make([]uint32, n)
	for i := 0; i < len(b); i++ {
		words[i/4] |= uint32(b[i]) << (8 * uint(i%4))
	}
	return words
}

// unpackWords is packWords's inverse, producing len(words)*4 bytes.
func unpackWords(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		b[4*i+0] = byte(w)
		b[4*i+1] = byte(w >> 8)
		b[4*i+2] = byte(w >> 16)
		b[4*i+3] = byte(w >> 24)
	}
	return b
}
