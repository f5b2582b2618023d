// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"fmt"

	"github.com/periph-rp2040/swdflash/swd"
)

// coreRegTimeoutUs bounds each individual core-register poll while
// dumping status; it's generous since this is a diagnostic path, not
// the hot loop.
const coreRegTimeoutUs = 100_000

// CoreState is a one-shot snapshot of a halted core's registers and
// fault-related memory-mapped registers, mirroring what a developer
// would want printed when a flash operation misbehaves.
type CoreState struct {
	PC, LR, MSP        uint32
	XPSR               uint32
	CtrlPrimask        uint32
	R0, R7             uint32
	AIRCR, ICSR, ICPR  uint32
	DHCSR, DFSR, DEMCR uint32
}

// DumpCoreState reads the full register set display_status's manual
// sequence covers: PC/LR/MSP via DCRSR/DCRDR, then XPSR and the packed
// CONTROL/PRIMASK word, then r0/r7, then the fault/control registers
// read directly through the MEM-AP (AIRCR, ICSR, ICPR, DHCSR, DFSR,
// DEMCR). The target must already be halted.
func DumpCoreState(s *swd.Session) (CoreState, error) {
	var cs CoreState
	var err error

	if cs.PC, err = s.ReadCoreReg(swd.RegPC, coreRegTimeoutUs); err != nil {
		return CoreState{}, fmt.Errorf("flash: read PC: %w", err)
	}
	if cs.LR, err = s.ReadCoreReg(swd.RegLR, coreRegTimeoutUs); err != nil {
		return CoreState{}, fmt.Errorf("flash: read LR: %w", err)
	}
	if cs.MSP, err = s.ReadCoreReg(swd.RegMSP, coreRegTimeoutUs); err != nil {
		return CoreState{}, fmt.Errorf("flash: read MSP: %w", err)
	}
	if cs.XPSR, err = s.ReadCoreReg(swd.RegXPSR, coreRegTimeoutUs); err != nil {
		return CoreState{}, fmt.Errorf("flash: read XPSR: %w", err)
	}
	if cs.CtrlPrimask, err = s.ReadCoreReg(swd.RegCtrlPrimask, coreRegTimeoutUs); err != nil {
		return CoreState{}, fmt.Errorf("flash: read CONTROL/PRIMASK: %w", err)
	}
	if cs.R0, err = s.ReadCoreReg(swd.RegR0, coreRegTimeoutUs); err != nil {
		return CoreState{}, fmt.Errorf("flash: read R0: %w", err)
	}
	if cs.R7, err = s.ReadCoreReg(swd.RegR7, coreRegTimeoutUs); err != nil {
		return CoreState{}, fmt.Errorf("flash: read R7: %w", err)
	}

	const (
		regAIRCR = 0xE000ED0C
		regICSR  = 0xE000ED04
		regICPR  = 0xE000E280
		regDHCSR = 0xE000EDF0
		regDFSR  = 0xE000ED30
		regDEMCR = 0xE000EDFC
	)
	if cs.AIRCR, err = s.ReadWord(regAIRCR); err != nil {
		return CoreState{}, fmt.Errorf("flash: read AIRCR: %w", err)
	}
	if cs.ICSR, err = s.ReadWord(regICSR); err != nil {
		return CoreState{}, fmt.Errorf("flash: read ICSR: %w", err)
	}
	if cs.ICPR, err = s.ReadWord(regICPR); err != nil {
		return CoreState{}, fmt.Errorf("flash: read ICPR: %w", err)
	}
	if cs.DHCSR, err = s.ReadWord(regDHCSR); err != nil {
		return CoreState{}, fmt.Errorf("flash: read DHCSR: %w", err)
	}
	if cs.DFSR, err = s.ReadWord(regDFSR); err != nil {
		return CoreState{}, fmt.Errorf("flash: read DFSR: %w", err)
	}
	if cs.DEMCR, err = s.ReadWord(regDEMCR); err != nil {
		return CoreState{}, fmt.Errorf("flash: read DEMCR: %w", err)
	}
	return cs, nil
}

// String formats a CoreState the way display_status prints it, for use
// in CLI diagnostics.
func (cs CoreState) String() string {
	s := fmt.Sprintf("PC=%08X, LR=%08X, MSP=%08X\n", cs.PC, cs.LR, cs.MSP)
	s += fmt.Sprintf("XPSR  %08X\n", cs.XPSR)
	s += fmt.Sprintf("CTL/PRIMASK  %08X\n", cs.CtrlPrimask)
	s += fmt.Sprintf("r0=%08X, r7=%08X\n", cs.R0, cs.R7)
	s += fmt.Sprintf("AIRCR %08X\n", cs.AIRCR)
	s += fmt.Sprintf("ICSR  %08X\n", cs.ICSR)
	if cs.ICSR&0x00400000 != 0 {
		s += "  ISRPENDING set\n"
	}
	s += fmt.Sprintf("ICPR  %08X\n", cs.ICPR)
	s += fmt.Sprintf("DHCSR %08X\n", cs.DHCSR)
	s += fmt.Sprintf("DFSR  %08X\n", cs.DFSR)
	s += fmt.Sprintf("DEMCR %08X\n", cs.DEMCR)
	return s
}
