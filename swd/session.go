// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swd drives a bit-banged Serial Wire Debug link to an ARM
// Cortex-M target of the RP2040 family: multi-drop bring-up, DP/AP
// register transactions, MEM-AP memory access, and Cortex-M debug-core
// orchestration (halt/resume, core registers, on-target function calls
// via a trampoline, reset-into-debug).
package swd

import "time"

// Posture is the debug-core state a Session tracks (spec §3).
type Posture int

const (
	// PostureUnknown is the posture before any Halt/ResetIntoDebug
	// call has run.
	PostureUnknown Posture = iota
	// PostureHalted means the core is stopped at a known point and
	// core-register access is safe.
	PostureHalted
	// PostureRunning means the core is executing normally.
	PostureRunning
)

// DefaultHalfPeriodUs is the default L1 half-clock-period delay (spec
// §4.1); raise it for slower, tracing-friendly speeds.
const DefaultHalfPeriodUs uint32 = 1

// Session is one live SWD attachment: the clock/data pin pair, the
// layered L1-L5 collaborators built on top of them, and the small
// session-scoped state spec §3 names (bank selection, cached AP IDR,
// debug posture).
type Session struct {
	line    Line
	link    *link
	mem     *memAP
	debug   *debug
	posture Posture
}

// NewSession builds a Session over a clock/data Pin pair using the
// default bit-banged Line and busy-wait Delayer. halfPeriodUs selects
// the L1 half-clock-period; 0 selects DefaultHalfPeriodUs.
func NewSession(clk, dio Pin, halfPeriodUs uint32) *Session {
	if halfPeriodUs == 0 {
		halfPeriodUs = DefaultHalfPeriodUs
	}
	return NewSessionWithLine(newBitbangLine(clk, dio, BusyDelayer{}, halfPeriodUs))
}

// NewSessionWithLine builds a Session directly over a Line, bypassing
// Pin/Delayer entirely. This is the seam unit tests use to substitute a
// scripted fake target.
func NewSessionWithLine(l Line) *Session {
	lk := newLink(l)
	mem := newMemAP(lk)
	return &Session{
		line:  l,
		link:  lk,
		mem:   mem,
		debug: newDebug(mem),
	}
}

// Connect runs the L3 multi-drop bring-up sequence against the given
// target and configures AP.CSW for 32-bit auto-incrementing access.
func (s *Session) Connect(target TargetID) error {
	return s.link.connect(target)
}

// ApID returns the AP IDR cached during Connect.
func (s *Session) ApID() uint32 { return s.link.ApID() }

// Disconnect parks the line: DIO driven high, CLK low, with a short
// idle flush (spec §3's Lifecycles).
func (s *Session) Disconnect() {
	s.line.HoldDIO()
	s.line.WritePattern("11111111")
}

// WriteDP issues a DP register write. ignoreAck is only ever needed for
// the multi-drop TARGETSEL write performed internally by Connect;
// callers normally pass false.
func (s *Session) WriteDP(addr4 uint8, data uint32, ignoreAck bool) error {
	return s.link.writeDP(addr4, data, ignoreAck)
}

// ReadDP issues a DP register read.
func (s *Session) ReadDP(addr4 uint8) (uint32, error) {
	return s.link.readDP(addr4)
}

// WriteAP issues an AP register write in the currently selected bank.
func (s *Session) WriteAP(addr4 uint8, data uint32) error {
	return s.link.writeAP(addr4, data)
}

// ReadAP issues an AP register read in the currently selected bank,
// returning the *stale* value per the posted-read rule (spec §4.3).
func (s *Session) ReadAP(addr4 uint8) (uint32, error) {
	return s.link.readAP(addr4)
}

// WriteWord writes one 32-bit word through the MEM-AP.
func (s *Session) WriteWord(addr, data uint32) error {
	return s.mem.writeWord(addr, data)
}

// ReadWord reads one 32-bit word through the MEM-AP, handling the
// posted-read/RDBUFF drain internally.
func (s *Session) ReadWord(addr uint32) (uint32, error) {
	return s.mem.readWord(addr)
}

// ReadHalfWord reads the 16-bit half addressed by addr.
func (s *Session) ReadHalfWord(addr uint32) (uint16, error) {
	return s.mem.readHalfWord(addr)
}

// WriteMultiWord streams data[] starting at startAddr, relying on (and
// correctly re-arming) the MEM-AP's auto-increment.
func (s *Session) WriteMultiWord(startAddr uint32, data []uint32) error {
	return s.mem.writeMultiWord(startAddr, data)
}

// ReadMultiWord reads n words starting at startAddr.
func (s *Session) ReadMultiWord(startAddr uint32, n int) ([]uint32, error) {
	return s.mem.readMultiWord(startAddr, n)
}

// Halt enables debug and halts the core, moving posture to
// PostureHalted.
func (s *Session) Halt(maskInts bool) error {
	if err := s.debug.Halt(maskInts); err != nil {
		return err
	}
	s.posture = PostureHalted
	return nil
}

// Resume clears C_HALT, moving posture to PostureRunning.
func (s *Session) Resume(maskInts bool) error {
	if err := s.debug.Resume(maskInts); err != nil {
		return err
	}
	s.posture = PostureRunning
	return nil
}

// Posture reports the Session's current debug posture.
func (s *Session) Posture() Posture { return s.posture }

// WriteCoreReg writes a Cortex-M core register (see RegR0 etc.),
// polling S_REGRDY up to timeoutUs.
func (s *Session) WriteCoreReg(reg, value, timeoutUs uint32) error {
	return s.debug.WriteCoreReg(reg, value, timeoutUs)
}

// ReadCoreReg reads a Cortex-M core register, polling S_REGRDY up to
// timeoutUs.
func (s *Session) ReadCoreReg(reg, timeoutUs uint32) (uint32, error) {
	return s.debug.ReadCoreReg(reg, timeoutUs)
}

// ResetIntoDebug halts, arms a reset-triggered re-entry into debug,
// triggers the reset, and restores the DP/AP bank and CSW that the
// reset clears. Posture ends as PostureHalted.
func (s *Session) ResetIntoDebug(settleDelay time.Duration) error {
	if err := s.debug.ResetIntoDebug(s.link, settleDelay); err != nil {
		return err
	}
	s.posture = PostureHalted
	return nil
}

// ResetRun triggers a plain system reset and releases the target to
// run. Posture ends as PostureRunning (the reset vector always runs).
func (s *Session) ResetRun() error {
	if err := s.debug.ResetRun(); err != nil {
		return err
	}
	s.posture = PostureRunning
	return nil
}

// RelocateVTOR moves the vector table base to addr.
func (s *Session) RelocateVTOR(addr uint32) error {
	return s.debug.RelocateVTOR(addr)
}

// InjectTrampoline writes the fallback call-trampoline stub at addr and
// returns its Thumb call address.
func (s *Session) InjectTrampoline(addr uint32) (uint32, error) {
	return s.debug.InjectTrampoline(addr)
}

// CallFunction invokes an on-target function with up to four arguments
// via the trampoline technique (spec §4.5) and returns its r0 result.
func (s *Session) CallFunction(args [4]uint32, calleeAddr, trampolineAddr, stackTop uint32, timeoutUs uint32) (CallResult, error) {
	return s.debug.CallFunction(s.link, args, calleeAddr, trampolineAddr, stackTop, timeoutUs)
}
