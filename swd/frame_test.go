// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

import (
	"math/bits"
	"testing"
)

// TestHeaderParityAllCombinations enumerates all 16 combinations of
// {APnDP, RnW, A2, A3} and verifies the emitted parity bit always makes
// the five-bit set {APnDP, RnW, A2, A3, Parity} have an even popcount
// (spec §8 property 1).
func TestHeaderParityAllCombinations(t *testing.T) {
	for combo := 0; combo < 16; combo++ {
		ap := combo&0x1 != 0
		rnw := combo&0x2 != 0
		a2 := combo&0x4 != 0
		a3 := combo&0x8 != 0
		var addr uint8
		if a2 {
			addr |= 0x4
		}
		if a3 {
			addr |= 0x8
		}
		r := request{ap: ap, rnw: rnw, addr: addr}
		h := r.header()

		count := 0
		for _, b := range []bool{h[1], h[2], h[3], h[4], h[5]} {
			if b {
				count++
			}
		}
		if count%2 != 0 {
			t.Errorf("combo %04b: header %v has odd popcount %d", combo, h, count)
		}
		if h[0] != true || h[6] != false || h[7] != true {
			t.Errorf("combo %04b: Start/Stop/Park malformed: %v", combo, h)
		}
	}
}

// TestDataParityWrite verifies every write's data+parity has even
// popcount, for a spread of data values (spec §8 property 2, write
// half).
func TestDataParityWrite(t *testing.T) {
	cases := []uint32{0, 1, 0xFFFFFFFF, 0xDEADBEEF, 0x80000000, 0x00000001, 0xAAAAAAAA}
	for _, data := range cases {
		fl := newFakeLine(fakeResponse{ack: AckOK})
		_, _, err := transact(fl, request{ap: false, rnw: false, addr: 0x8}, data, false)
		if err != nil {
			t.Fatalf("data %#x: transact: %v", data, err)
		}
		if len(fl.writtenData) != 1 || fl.writtenData[0] != data {
			t.Fatalf("data %#x: fake captured %v", data, fl.writtenData)
		}
		ones := bits.OnesCount32(data)
		if fl.writtenParity[0] {
			ones++
		}
		if ones%2 != 0 {
			t.Errorf("data %#x: data+parity popcount %d is odd", data, ones)
		}
	}
}

// TestDataParityMismatchOnRead verifies a read whose data parity bit is
// deliberately wrong surfaces ProtocolError{Kind: ProtoParityMismatch}
// (spec §8 property 2, read half).
func TestDataParityMismatchOnRead(t *testing.T) {
	fl := newFakeLine(fakeResponse{ack: AckOK, data: 0x12345678, badParity: true})
	_, _, err := transact(fl, request{ap: false, rnw: true, addr: 0x0}, 0, false)
	var perr *ProtocolError
	if !asProtocolError(err, &perr) {
		t.Fatalf("expected *ProtocolError, got %v (%T)", err, err)
	}
	if perr.Kind != ProtoParityMismatch {
		t.Errorf("expected ProtoParityMismatch, got %v", perr.Kind)
	}
}

func asProtocolError(err error, target **ProtocolError) bool {
	pe, ok := err.(*ProtocolError)
	if !ok {
		return false
	}
	*target = pe
	return true
}

// TestWaitRetrySucceedsWithinBound exercises scenario S6's happy path:
// WAIT twice, then OK.
func TestWaitRetrySucceedsWithinBound(t *testing.T) {
	fl := newFakeLine(
		fakeResponse{ack: AckWait},
		fakeResponse{ack: AckWait},
		fakeResponse{ack: AckOK},
	)
	_, ack, err := transact(fl, request{ap: false, rnw: false, addr: 0x8}, 0xCAFEF00D, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack != AckOK {
		t.Errorf("expected final ack OK, got %v", ack)
	}
	if len(fl.writtenData) != 1 || fl.writtenData[0] != 0xCAFEF00D {
		t.Errorf("expected the retried write to land exactly once, got %v", fl.writtenData)
	}
}

// TestWaitRetryExhaustsBound exercises scenario S6's failure path: more
// than 8 WAITs surfaces a ProtocolError.
func TestWaitRetryExhaustsBound(t *testing.T) {
	responses := make([]fakeResponse, 0, 9)
	for i := 0; i < 9; i++ {
		responses = append(responses, fakeResponse{ack: AckWait})
	}
	fl := newFakeLine(responses...)
	_, _, err := transact(fl, request{ap: false, rnw: false, addr: 0x8}, 0, false)
	var perr *ProtocolError
	if !asProtocolError(err, &perr) {
		t.Fatalf("expected *ProtocolError, got %v (%T)", err, err)
	}
	if perr.Kind != ProtoWait {
		t.Errorf("expected ProtoWait, got %v", perr.Kind)
	}
}

// TestFaultAckIsNeverRetried verifies FAULT surfaces immediately
// without consuming further scripted responses.
func TestFaultAckIsNeverRetried(t *testing.T) {
	fl := newFakeLine(fakeResponse{ack: AckFault}, fakeResponse{ack: AckOK})
	_, ack, err := transact(fl, request{ap: true, rnw: true, addr: 0xC}, 0, false)
	if ack != AckFault {
		t.Errorf("expected AckFault, got %v", ack)
	}
	var perr *ProtocolError
	if !asProtocolError(err, &perr) || perr.Kind != ProtoFault {
		t.Fatalf("expected ProtoFault, got %v", err)
	}
	if fl.respIdx != 1 {
		t.Errorf("FAULT must not be retried: respIdx = %d, want 1", fl.respIdx)
	}
}
