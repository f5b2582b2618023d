// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

// FakeTarget is a Line that models enough of a real RP2040 DAP (DP/AP
// register file, SELECT bank tracking, the AP posted-read pipeline, a
// byte-addressed memory backing MEM-AP DRW access, and the Cortex-M
// debug-core registers) to drive end-to-end scenarios without a real
// chip. It's exported so packages built on top of swd (flash, cmd/...)
// can exercise their own code against a scripted target without a
// real link. It complements fakeLine, which only replays a flat
// ACK/data script; FakeTarget computes its responses from actual
// register state.
type FakeTarget struct {
	idcode uint32
	apID   uint32

	dpSelect uint32 // raw last SELECT write (APBANKSEL<<4 | DPBANKSEL)
	ctrlStat uint32
	// CtrlStatRead is what DP.CTRL/STAT reads back as; defaults to the
	// "both acks set" value (0xF0000000) and can be overridden to
	// script a debug power-up failure.
	CtrlStatRead uint32

	// AP bank 0 registers.
	csw uint32
	tar uint32

	// Mem is the byte-addressed target memory backing MEM-AP DRW
	// access, keyed by word address. Tests may read/write it directly
	// to seed or inspect target state.
	Mem map[uint32]uint32

	// Posted-read pipeline.
	pending uint32

	// tarWrites counts AP.TAR writes, so tests can check when TAR is
	// re-armed.
	tarWrites int

	// Core debug registers.
	dhcsr    uint32
	dcrsr    uint32
	dcrdr    uint32
	demcr    uint32
	aircr    uint32
	icsr     uint32
	icpr     uint32
	dfsr     uint32
	vtor     uint32
	coreRegs [32]uint32 // indexed by DCRSR[6:0] selector

	// JammedRegRdy simulates a target that never completes a
	// core-register transfer, to exercise the REGRDY poll timeout.
	JammedRegRdy bool

	// bit-level framing state, mirroring fakeLine's state machine.
	headerBits      []bool
	readQueue       []bool
	readPos         int
	collectingWrite bool
	writeBits       []bool
	wantWriteBits   int
}

// NewFakeTarget builds a target that, by default, acknowledges the
// debug power-up request on the first CTRL/STAT readback (both
// CSYSPWRUPACK and CDBGPWRUPACK set). Tests exercising a power-up
// failure path overwrite CtrlStatRead directly.
func NewFakeTarget(idcode, apID uint32) *FakeTarget {
	return &FakeTarget{
		idcode:       idcode,
		apID:         apID,
		Mem:          make(map[uint32]uint32),
		CtrlStatRead: 0xF0000000,
	}
}

func (f *FakeTarget) apBank() uint8 { return uint8((f.dpSelect >> 4) & 0xF) }
func (f *FakeTarget) dpBank() uint8 { return uint8(f.dpSelect & 0xF) }

// computeAPRead returns the value a read of the given AP address (in
// the currently selected bank) would latch.
func (f *FakeTarget) computeAPRead(addr uint8) uint32 {
	if f.apBank() == 0xF && addr == apIDR {
		return f.apID
	}
	switch addr {
	case apDRW:
		v := f.readMemory(f.tar)
		f.tar += 4
		return v
	case apTAR:
		return f.tar
	case apCSW:
		return f.csw
	}
	return 0
}

func (f *FakeTarget) WriteBit(b bool) {
	if f.collectingWrite {
		f.writeBits = append(f.writeBits, b)
		if len(f.writeBits) == f.wantWriteBits {
			f.finishWrite()
		}
		return
	}
	f.headerBits = append(f.headerBits, b)
}

func (f *FakeTarget) ReadBit() bool {
	if f.readPos < len(f.readQueue) {
		v := f.readQueue[f.readPos]
		f.readPos++
		return v
	}
	return false
}

func (f *FakeTarget) ReleaseDIO() {
	if len(f.headerBits) != 8 {
		return
	}
	r := decodeRequestHeader(f.headerBits)

	queue := []bool{false} // turnaround dummy
	for i := 0; i < 3; i++ {
		queue = append(queue, 0b001&(1<<uint(i)) != 0) // always ACK OK
	}
	if r.rnw {
		data := f.readValue(r)
		count := 0
		for i := 0; i < 32; i++ {
			bit := data&(1<<uint(i)) != 0
			if bit {
				count++
			}
			queue = append(queue, bit)
		}
		queue = append(queue, count%2 != 0)
	}
	f.readQueue = queue
	f.readPos = 0
}

// readValue resolves one DP/AP read's data, applying the posted-read
// pipeline for AP reads.
func (f *FakeTarget) readValue(r request) uint32 {
	if !r.ap {
		switch r.addr {
		case dpIDCODE:
			return f.idcode
		case dpCTRLSTAT:
			return f.CtrlStatRead
		case dpRDBUFF:
			return f.pending
		}
		return 0
	}
	v := f.pending
	f.pending = f.computeAPRead(r.addr)
	return v
}

func (f *FakeTarget) HoldDIO() {
	if len(f.headerBits) != 8 {
		return
	}
	r := decodeRequestHeader(f.headerBits)
	if r.rnw {
		f.collectingWrite = true
		f.writeBits = nil
		f.wantWriteBits = 1 // OK ack: only the trailing filler bit remains
		return
	}
	f.collectingWrite = true
	f.writeBits = nil
	f.wantWriteBits = 1 + 33 // OK ack: filler + 32 data + parity
}

func (f *FakeTarget) finishWrite() {
	if len(f.writeBits) > 1 {
		var data uint32
		for i, b := range f.writeBits[1:33] {
			if b {
				data |= 1 << uint(i)
			}
		}
		f.applyWrite(data)
	}
	f.collectingWrite = false
	f.writeBits = nil
	f.headerBits = nil
	f.readQueue = nil
	f.readPos = 0
}

func (f *FakeTarget) applyWrite(data uint32) {
	r := decodeRequestHeader(f.headerBits)
	if !r.ap {
		switch r.addr {
		case dpABORT:
		case dpSELECT:
			f.dpSelect = data
		case dpCTRLSTAT:
			f.ctrlStat = data
		case dpTARGETSEL:
		}
		return
	}
	switch r.addr {
	case apCSW:
		f.csw = data
	case apTAR:
		f.tar = data
		f.tarWrites++
	case apDRW:
		f.writeMemory(f.tar, data)
		f.tar += 4
	}
}

// readMemory and writeMemory route accesses either to the generic
// byte-addressed memory map (MEM-AP target RAM/flash) or to the
// simulated Cortex-M debug-core registers, whichever addr falls in.
func (f *FakeTarget) readMemory(addr uint32) uint32 {
	switch addr {
	case regDHCSR:
		return f.dhcsr
	case regDCRDR:
		return f.dcrdr
	case regICSR:
		return f.icsr
	case regICPR:
		return f.icpr
	case regDFSR:
		return f.dfsr
	case regDEMCR:
		return f.demcr
	case regAIRCR:
		return f.aircr
	case regVTOR:
		return f.vtor
	}
	return f.Mem[addr]
}

func (f *FakeTarget) writeMemory(addr, data uint32) {
	switch addr {
	case regDCRDR:
		f.dcrdr = data
	case regDCRSR:
		f.dcrsr = data
		sel := data & 0x7F
		if data&0x00010000 != 0 {
			f.coreRegs[sel] = f.dcrdr
		} else {
			f.dcrdr = f.coreRegs[sel]
		}
		if !f.JammedRegRdy {
			f.dhcsr |= dhcsrSRegRdy
		}
	case regDHCSR:
		wasHalted := f.dhcsr&dhcsrSHalt != 0
		f.dhcsr = data &^ 0xFFFF0000 // drop the write-only key field
		if data&dhcsrHalt != 0 {
			f.dhcsr |= dhcsrSHalt
		} else if wasHalted {
			f.simulateRun()
		}
	case regDEMCR:
		f.demcr = data
	case regAIRCR:
		f.aircr = data
	case regICPR:
		f.icpr = 0
	case regDFSR:
		f.dfsr &^= data // write-1-to-clear sticky bits
	case regVTOR:
		f.vtor = data
	default:
		f.Mem[addr] = data
	}
}

// simulateRun "executes" the callee addressed by R7 when it matches the
// Thumb `movs r0,#imm; bx lr` encoding used by call-trampoline tests,
// then re-halts as if the trampoline's bkpt had fired.
func (f *FakeTarget) simulateRun() {
	callee := f.coreRegs[RegR7] &^ 1
	word := f.Mem[callee]
	if word>>16 == 0x4770 && word&0xF800 == 0x2000 {
		f.coreRegs[RegR0] = word & 0xFF
		f.dhcsr |= dhcsrSHalt | dhcsrSRegRdy
		f.dfsr |= 1 << 1 // DFSR.BKPT
	}
}

// WritePattern and WriteLineReset carry bring-up and idle bits, not a
// transaction header, so they leave no bits behind for the next header.
func (f *FakeTarget) WritePattern(bits string) {
	for _, r := range bits {
		switch r {
		case '0':
			f.WriteBit(false)
		case '1':
			f.WriteBit(true)
		}
	}
	f.headerBits = nil
}

func (f *FakeTarget) WriteLineReset() {
	for i := 0; i < 64; i++ {
		f.WriteBit(true)
	}
	f.headerBits = nil
}

// decodeRequestHeader recovers the request from the eight header bits
// request.header emits.
func decodeRequestHeader(bits []bool) request {
	// bits: Start, APnDP, RnW, A2, A3, Parity, Stop, Park
	ap := bits[1]
	rnw := bits[2]
	var addr uint8
	if bits[3] {
		addr |= 0x4
	}
	if bits[4] {
		addr |= 0x8
	}
	return request{ap: ap, rnw: rnw, addr: addr}
}
