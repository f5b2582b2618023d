// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

// Multi-drop bring-up constants (spec §4.3, §6), given MSB-first exactly
// as the wire expects them.
const (
	// dormantExitPattern is the low 30 bits of 0xAEEE_EEE6, the
	// JTAG-to-SWD dormant-state exit sequence.
	dormantExitPattern = "101110111011101110111011100110"

	// selectionAlert is the 128-bit multi-drop selection alert
	// (49CF9046 A9B4A161 97F5BBC7 4570 3D98, MSB-first).
	selectionAlert = "01001001110011111001000001000110" +
		"10101001101101001010000101100001" +
		"10010111111101011011101111000111" +
		"0100010101110000" +
		"0011110110011000"

	// activationCode is the ARM CoreSight "SWD" activation code that
	// follows the selection alert on the wire.
	activationCode = "0000_0101_1000_1111"
)

// DP register addresses (4-bit, spec §4.3).
const (
	dpABORT    uint8 = 0x0
	dpIDCODE   uint8 = 0x0
	dpCTRLSTAT uint8 = 0x4
	dpSELECT   uint8 = 0x8
	dpTARGETID uint8 = 0x4 // bank 2
	dpTARGETSEL uint8 = 0xC
	dpRDBUFF   uint8 = 0xC
)

// AP register addresses (4-bit, spec §4.4) within the active bank.
const (
	apCSW uint8 = 0x0
	apTAR uint8 = 0x4
	apDRW uint8 = 0xC
	apIDR uint8 = 0xC // bank 0xF
)

// TargetID selects which DAP instance answers TARGETSEL on a multi-drop
// bus (spec §4.3 step 8).
type TargetID uint32

const (
	// TargetRP2040Core0 addresses core 0 of an RP2040.
	TargetRP2040Core0 TargetID = 0x01002927
	// TargetRP2040Core1 addresses core 1 of an RP2040.
	TargetRP2040Core1 TargetID = 0x11002927
	// TargetRP2040Rescue addresses the RP2040's rescue DP.
	TargetRP2040Rescue TargetID = 0xF1002927
)

// link implements L3: bring-up and raw DP/AP register access. A link
// owns no state beyond the currently selected DP/AP bank, which it
// tracks to avoid redundant SELECT writes, and the AP IDR cached by
// connect.
type link struct {
	line Line

	dpBank uint8
	apBank uint8
	apID   uint32
}

func newLink(l Line) *link {
	return &link{line: l}
}

// connect runs the exactly-ordered bring-up sequence of spec §4.3. It
// returns a *LinkError naming the step that failed.
func (k *link) connect(target TargetID) error {
	// 1. Idle: DIO high, >=8 clocks.
	k.line.WritePattern("11111111")

	// 2. JTAG-to-SWD dormant conversion.
	k.line.WritePattern(dormantExitPattern)
	k.line.WritePattern("0")

	// 3. Brief low idle, then 8 ones.
	k.line.WritePattern("00000000_11111111")

	// 4. 128-bit selection alert.
	k.line.WritePattern(selectionAlert)

	// 5. Activation code (16 bits on the wire).
	k.line.WritePattern(activationCode)

	// 6. Line reset.
	k.line.WriteLineReset()

	// 7. Eight zeros, short idle.
	k.line.WritePattern("00000000_00")

	// 8. TARGETSEL write; ack explicitly ignored.
	if _, _, err := transact(k.line, request{ap: false, rnw: false, addr: dpTARGETSEL}, uint32(target), true); err != nil {
		return &LinkError{Step: 8, Msg: "TARGETSEL write", Err: err}
	}

	// 9. IDCODE read to verify the selected target answers.
	if _, err := k.readDP(dpIDCODE); err != nil {
		return &LinkError{Step: 9, Msg: "IDCODE read", Err: err}
	}

	// 10. Clear sticky errors.
	if err := k.writeDP(dpABORT, 0x1E, false); err != nil {
		return &LinkError{Step: 10, Msg: "ABORT write", Err: err}
	}

	// 11. SELECT bank 0.
	if err := k.writeDP(dpSELECT, 0, false); err != nil {
		return &LinkError{Step: 11, Msg: "SELECT bank 0", Err: err}
	}

	// 12. Power up, then poll for both acks.
	if err := k.writeDP(dpCTRLSTAT, 0x50000001, false); err != nil {
		return &LinkError{Step: 12, Msg: "CTRL/STAT power-up request", Err: err}
	}
	const (
		csyspwrupack = 1 << 31
		cdbgpwrupack = 1 << 29
	)
	for i := 0; ; i++ {
		v, err := k.readDP(dpCTRLSTAT)
		if err != nil {
			return &LinkError{Step: 12, Msg: "CTRL/STAT power-up poll", Err: err}
		}
		if v&csyspwrupack != 0 && v&cdbgpwrupack != 0 {
			break
		}
		if i >= 64 {
			return &LinkError{Step: 12, Msg: "CTRL/STAT power-up ack timeout"}
		}
	}

	// 13. Select AP bank F, read IDR (posted), drain via RDBUFF.
	if err := k.selectBank(0, 0xF); err != nil {
		return &LinkError{Step: 13, Msg: "select AP bank F", Err: err}
	}
	if _, err := k.readAP(apIDR); err != nil {
		return &LinkError{Step: 13, Msg: "AP IDR read (posted)", Err: err}
	}
	id, err := k.readDP(dpRDBUFF)
	if err != nil {
		return &LinkError{Step: 13, Msg: "RDBUFF drain of AP IDR", Err: err}
	}
	k.apID = id

	// 14. Restore AP+DP bank 0, configure CSW.
	if err := k.selectBank(0, 0); err != nil {
		return &LinkError{Step: 14, Msg: "restore bank 0", Err: err}
	}
	if err := k.writeAP(apCSW, 0x22000012); err != nil {
		return &LinkError{Step: 14, Msg: "CSW configure", Err: err}
	}
	return nil
}

// ApID returns the AP IDR value cached during Connect.
func (k *link) ApID() uint32 { return k.apID }

// selectBank issues DP.SELECT with the given AP bank (APBANKSEL, bits
// [7:4]) and DP bank (DPBANKSEL, bits [3:0]) if they differ from what's
// already selected.
func (k *link) selectBank(dpBank, apBank uint8) error {
	if k.dpBank == dpBank && k.apBank == apBank {
		return nil
	}
	// SELECT: APBANKSEL occupies bits [7:4], DPBANKSEL bits [3:0] (spec
	// §4.3; APSEL itself is fixed at 0 here since the RP2040 only has one
	// AP).
	sel := uint32(apBank)<<4 | uint32(dpBank)
	if err := k.writeDP(dpSELECT, sel, false); err != nil {
		return err
	}
	k.dpBank, k.apBank = dpBank, apBank
	return nil
}

func (k *link) writeDP(addr uint8, data uint32, ignoreAck bool) error {
	_, _, err := transact(k.line, request{ap: false, rnw: false, addr: addr}, data, ignoreAck)
	return err
}

func (k *link) writeAP(addr uint8, data uint32) error {
	_, _, err := transact(k.line, request{ap: true, rnw: false, addr: addr}, data, false)
	return err
}

// readDP returns the current value of the addressed DP register. Unlike
// readAP, DP reads (other than RDBUFF itself) are not subject to the
// posted-read pipeline.
func (k *link) readDP(addr uint8) (uint32, error) {
	v, _, err := transact(k.line, request{ap: false, rnw: true, addr: addr}, 0, false)
	return v, err
}

// readAP returns the *stale* value of the addressed AP register per the
// posted-read rule (spec §4.3): the caller chains another readAP or
// reads DP.RDBUFF to get the value this call actually latched.
func (k *link) readAP(addr uint8) (uint32, error) {
	v, _, err := transact(k.line, request{ap: true, rnw: true, addr: addr}, 0, false)
	return v, err
}
