// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

import "time"

// Cortex-M debug register addresses (spec §4.5).
const (
	regDHCSR uint32 = 0xE000EDF0
	regDCRSR uint32 = 0xE000EDF4
	regDCRDR uint32 = 0xE000EDF8
	regDEMCR uint32 = 0xE000EDFC
	regAIRCR uint32 = 0xE000ED0C
	regVTOR  uint32 = 0xE000ED08
	regICSR  uint32 = 0xE000ED04
	regICPR  uint32 = 0xE000E280
	regDFSR  uint32 = 0xE000ED30
)

// Core register selectors for DCRSR[6:0] (ARMv6-M debug register map).
const (
	RegR0 uint32 = 0
	RegR1 uint32 = 1
	RegR2 uint32 = 2
	RegR3 uint32 = 3
	RegR7 uint32 = 7
	RegLR uint32 = 14
	RegPC uint32 = 15 // DebugReturnAddress
	RegXPSR uint32 = 16
	RegMSP uint32 = 17
	RegPSP uint32 = 18
	// RegCtrlPrimask reads/writes the packed CONTROL/FAULTMASK/
	// BASEPRI/PRIMASK word.
	RegCtrlPrimask uint32 = 20
)

const (
	dhcsrKey        uint32 = 0xA05F0000
	dhcsrDebugen    uint32 = 1 << 0
	dhcsrHalt       uint32 = 1 << 1
	dhcsrMaskints   uint32 = 1 << 3
	dhcsrSRegRdy    uint32 = 1 << 16
	dhcsrSHalt      uint32 = 1 << 17
	demcrVCCoreReset uint32 = 1 << 0
	aircrSysResetReq uint32 = 0x05FA0004
)

// debug implements L5: halt/resume, core-register access, the
// trampoline function call, and reset-into-debug, layered on top of the
// memAP.
type debug struct {
	mem *memAP
}

func newDebug(mem *memAP) *debug {
	return &debug{mem: mem}
}

// pollRegRdy spins reading DHCSR until S_REGRDY is set or timeoutUs
// elapses.
func (d *debug) pollRegRdy(timeoutUs uint32) error {
	deadline := time.Now().Add(time.Duration(timeoutUs) * time.Microsecond)
	for {
		v, err := d.mem.readWord(regDHCSR)
		if err != nil {
			return err
		}
		if v&dhcsrSRegRdy != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return &DebugTimeoutError{Op: "REGRDY poll", TimeoutUs: timeoutUs}
		}
	}
}

// WriteCoreReg writes a Cortex-M core register via DCRDR/DCRSR.
func (d *debug) WriteCoreReg(reg, value, timeoutUs uint32) error {
	if err := d.mem.writeWord(regDCRDR, value); err != nil {
		return err
	}
	if err := d.mem.writeWord(regDCRSR, 0x00010000|reg); err != nil {
		return err
	}
	return d.pollRegRdy(timeoutUs)
}

// ReadCoreReg reads a Cortex-M core register via DCRSR/DCRDR.
func (d *debug) ReadCoreReg(reg, timeoutUs uint32) (uint32, error) {
	if err := d.mem.writeWord(regDCRSR, reg); err != nil {
		return 0, err
	}
	if err := d.pollRegRdy(timeoutUs); err != nil {
		return 0, err
	}
	return d.mem.readWord(regDCRDR)
}

// Halt enables debug and halts the core. maskInts also sets
// DHCSR.C_MASKINTS.
func (d *debug) Halt(maskInts bool) error {
	v := dhcsrKey | dhcsrDebugen | dhcsrHalt
	if maskInts {
		v |= dhcsrMaskints
	}
	return d.mem.writeWord(regDHCSR, v)
}

// Resume clears DHCSR.C_HALT, releasing the core to run.
func (d *debug) Resume(maskInts bool) error {
	v := dhcsrKey
	if maskInts {
		v |= dhcsrMaskints
	}
	return d.mem.writeWord(regDHCSR, v)
}

// IsHalted reports whether DHCSR.S_HALT is currently set.
func (d *debug) IsHalted() (bool, error) {
	v, err := d.mem.readWord(regDHCSR)
	if err != nil {
		return false, err
	}
	return v&dhcsrSHalt != 0, nil
}

// ResetIntoDebug halts the core, arms VC_CORERESET, triggers a system
// reset, waits for it to settle, then re-initializes the DP/AP bank and
// CSW that the reset clears (spec §4.5).
func (d *debug) ResetIntoDebug(lk *link, settleDelay time.Duration) error {
	if err := d.Halt(false); err != nil {
		return err
	}
	if err := d.mem.writeWord(regDEMCR, demcrVCCoreReset); err != nil {
		return err
	}
	if err := d.mem.writeWord(regAIRCR, aircrSysResetReq); err != nil {
		return err
	}
	if settleDelay <= 0 {
		settleDelay = 10 * time.Millisecond
	}
	time.Sleep(settleDelay)

	lk.dpBank, lk.apBank = 0xFF, 0xFF // force a re-select after reset
	if err := lk.selectBank(0, 0); err != nil {
		return err
	}
	return lk.writeAP(apCSW, 0x22000012)
}

// ResetRun triggers a plain system reset without re-entering debug
// (spec's "reset" step: release the target to run normally).
func (d *debug) ResetRun() error {
	// Disarm the VC_CORERESET catch ResetIntoDebug may have left set.
	if err := d.mem.writeWord(regDEMCR, 0); err != nil {
		return err
	}
	return d.mem.writeWord(regAIRCR, aircrSysResetReq)
}

// RelocateVTOR moves the vector table base to addr, typically SRAM
// holding freshly injected code.
func (d *debug) RelocateVTOR(addr uint32) error {
	return d.mem.writeWord(regVTOR, addr)
}

// CallResult is the outcome of CallFunction.
type CallResult struct {
	// R0 is the callee's return value, valid only when CallFunction
	// returned a nil error (no timeout and no target fault).
	R0 uint32
}

// trampolineStub is the 3-word "blx r7; bkpt 0" stub injected when the
// bootrom's published debug trampoline isn't usable (spec §4.5 step 5).
var trampolineStub = [3]uint32{0x43372601, 0xBE0047B8, 0x46C0E7FA}

// CallFunction invokes a target function with up to four arguments by
// injecting core-register state and a trampoline return address, then
// resuming and waiting for the trampoline's bkpt to re-halt the core
// (spec §4.5's numbered steps 1-9). trampolineAddr is the Thumb address
// (bit 0 already set) of the trampoline entry point; stackTop is MSP.
func (d *debug) CallFunction(lk *link, args [4]uint32, calleeAddr, trampolineAddr, stackTop uint32, timeoutUs uint32) (CallResult, error) {
	const settleTimeoutUs = 200_000

	for i, a := range args {
		if err := d.WriteCoreReg(uint32(i), a, settleTimeoutUs); err != nil {
			return CallResult{}, err
		}
	}
	if err := d.WriteCoreReg(RegR7, calleeAddr|1, settleTimeoutUs); err != nil {
		return CallResult{}, err
	}
	if err := d.WriteCoreReg(RegMSP, stackTop, settleTimeoutUs); err != nil {
		return CallResult{}, err
	}
	if err := d.WriteCoreReg(RegXPSR, 0x01000000, settleTimeoutUs); err != nil {
		return CallResult{}, err
	}
	if err := d.WriteCoreReg(RegPC, trampolineAddr, settleTimeoutUs); err != nil {
		return CallResult{}, err
	}
	// PRIMASK is bit 0 of the packed CONTROL/PRIMASK register.
	if err := d.WriteCoreReg(RegCtrlPrimask, 1, settleTimeoutUs); err != nil {
		return CallResult{}, err
	}
	if err := d.mem.writeWord(regICPR, 0xFFFFFFFF); err != nil {
		return CallResult{}, err
	}
	if dfsr, err := d.mem.readWord(regDFSR); err == nil {
		if err := d.mem.writeWord(regDFSR, dfsr); err != nil {
			return CallResult{}, err
		}
	} else {
		return CallResult{}, err
	}

	if err := d.Resume(false); err != nil {
		return CallResult{}, err
	}

	deadline := time.Now().Add(time.Duration(timeoutUs) * time.Microsecond)
	for {
		halted, err := d.IsHalted()
		if err != nil {
			return CallResult{}, err
		}
		if halted {
			break
		}
		if time.Now().After(deadline) {
			return CallResult{}, &DebugTimeoutError{Op: "call-function resume", TimeoutUs: timeoutUs}
		}
	}

	dfsr, err := d.mem.readWord(regDFSR)
	if err != nil {
		return CallResult{}, err
	}
	icsr, err := d.mem.readWord(regICSR)
	if err != nil {
		return CallResult{}, err
	}
	// A clean breakpoint hit leaves DFSR.BKPT (bit1) set and no other
	// sticky fault bits; anything else indicates a fault vector was
	// taken instead of returning through the trampoline.
	const dfsrBkpt = 1 << 1
	if dfsr&^uint32(dfsrBkpt) != 0 {
		return CallResult{}, &TargetFaultError{DFSR: dfsr, ICSR: icsr}
	}

	r0, err := d.ReadCoreReg(RegR0, settleTimeoutUs)
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{R0: r0}, nil
}

// InjectTrampoline writes the fallback trampoline stub at addr and
// returns its Thumb call address (addr+1).
func (d *debug) InjectTrampoline(addr uint32) (uint32, error) {
	for i, word := range trampolineStub {
		if err := d.mem.writeWord(addr+uint32(i)*4, word); err != nil {
			return 0, err
		}
	}
	return addr | 1, nil
}
