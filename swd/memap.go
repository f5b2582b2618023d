// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

// tarWindowMask is the low-10-bits window within which the MEM-AP is
// guaranteed to auto-increment TAR on successive DRW accesses (spec
// §4.4); crossing a 1024-byte boundary requires rewriting TAR.
const tarWindowMask = 0x3FF

// memAP implements L4: word/half-word/multi-word access through the
// MEM-AP's TAR/DRW pair. It assumes AP+DP bank 0 and CSW are already
// configured by link.connect.
type memAP struct {
	lk *link
}

func newMemAP(lk *link) *memAP {
	return &memAP{lk: lk}
}

func (m *memAP) writeWord(addr, data uint32) error {
	if err := m.lk.selectBank(0, 0); err != nil {
		return &MemApError{Op: "write_word", Addr: addr, Err: err}
	}
	if err := m.lk.writeAP(apTAR, addr); err != nil {
		return &MemApError{Op: "write_word.TAR", Addr: addr, Err: err}
	}
	if err := m.lk.writeAP(apDRW, data); err != nil {
		return &MemApError{Op: "write_word.DRW", Addr: addr, Err: err}
	}
	return nil
}

func (m *memAP) readWord(addr uint32) (uint32, error) {
	if err := m.lk.selectBank(0, 0); err != nil {
		return 0, &MemApError{Op: "read_word", Addr: addr, Err: err}
	}
	if err := m.lk.writeAP(apTAR, addr); err != nil {
		return 0, &MemApError{Op: "read_word.TAR", Addr: addr, Err: err}
	}
	if _, err := m.lk.readAP(apDRW); err != nil {
		return 0, &MemApError{Op: "read_word.DRW", Addr: addr, Err: err}
	}
	v, err := m.lk.readDP(dpRDBUFF)
	if err != nil {
		return 0, &MemApError{Op: "read_word.RDBUFF", Addr: addr, Err: err}
	}
	return v, nil
}

// readHalfWord forces TAR to the containing word and extracts the
// addressed half, per spec §4.4.
func (m *memAP) readHalfWord(addr uint32) (uint16, error) {
	wordAddr := addr &^ 3
	v, err := m.readWord(wordAddr)
	if err != nil {
		return 0, err
	}
	if addr&2 == 0 {
		return uint16(v & 0xFFFF), nil
	}
	return uint16(v >> 16), nil
}

// writeMultiWord writes data[] starting at startAddr, relying on the
// AP's auto-increment and rewriting TAR whenever the running address
// crosses a 1024-byte boundary (spec §4.4).
func (m *memAP) writeMultiWord(startAddr uint32, data []uint32) error {
	if len(data) == 0 {
		return nil
	}
	if err := m.lk.selectBank(0, 0); err != nil {
		return &MemApError{Op: "write_multi_word", Addr: startAddr, Err: err}
	}
	addr := startAddr
	if err := m.lk.writeAP(apTAR, addr); err != nil {
		return &MemApError{Op: "write_multi_word.TAR", Addr: addr, Err: err}
	}
	tarLow := addr & tarWindowMask
	for i, word := range data {
		cur := startAddr + uint32(i)*4
		if cur&tarWindowMask < tarLow {
			// Wrapped past the low-10-bit window: rewrite TAR.
			if err := m.lk.writeAP(apTAR, cur); err != nil {
				return &MemApError{Op: "write_multi_word.TAR", Addr: cur, Err: err}
			}
		}
		tarLow = cur & tarWindowMask
		if err := m.lk.writeAP(apDRW, word); err != nil {
			return &MemApError{Op: "write_multi_word.DRW", Addr: cur, Err: err}
		}
	}
	return nil
}

// readMultiWord reads n words starting at startAddr, used by the flash
// package's verify-by-readback step.
func (m *memAP) readMultiWord(startAddr uint32, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]uint32, n)
	if err := m.lk.selectBank(0, 0); err != nil {
		return nil, &MemApError{Op: "read_multi_word", Addr: startAddr, Err: err}
	}
	addr := startAddr
	if err := m.lk.writeAP(apTAR, addr); err != nil {
		return nil, &MemApError{Op: "read_multi_word.TAR", Addr: addr, Err: err}
	}
	tarLow := addr & tarWindowMask

	// Posted-read pipeline: the first AP.DRW read returns stale data,
	// so issue n reads and one trailing RDBUFF drain, shifting results
	// back by one.
	for i := 0; i < n; i++ {
		cur := startAddr + uint32(i)*4
		if cur&tarWindowMask < tarLow {
			if err := m.lk.writeAP(apTAR, cur); err != nil {
				return nil, &MemApError{Op: "read_multi_word.TAR", Addr: cur, Err: err}
			}
		}
		tarLow = cur & tarWindowMask

		v, err := m.lk.readAP(apDRW)
		if err != nil {
			return nil, &MemApError{Op: "read_multi_word.DRW", Addr: cur, Err: err}
		}
		if i > 0 {
			out[i-1] = v
		}
	}
	final, err := m.lk.readDP(dpRDBUFF)
	if err != nil {
		return nil, &MemApError{Op: "read_multi_word.RDBUFF", Addr: startAddr, Err: err}
	}
	out[n-1] = final
	return out, nil
}
