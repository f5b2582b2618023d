// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

// fakeResponse scripts how the fake target answers one transaction.
type fakeResponse struct {
	ack       Ack
	data      uint32 // meaningful for reads
	badParity bool   // flip the sent data-parity bit (reads only)
}

// fakeLine is a hand-written Line that records every bit the host
// drives and replays a scripted ACK/data sequence, standing in for the
// physical wire in unit tests (spec §8: "simulate the target with a
// pluggable Line collaborator that records bits and replays scripted
// ACK/data").
//
// It understands the exact bit shape transact() produces (header,
// turnaround, ack, data, turnaround) so it can validate framing without
// needing a full DP/AP register model; FakeTarget (fake_target.go)
// builds a real register model on top of this for link/mem-ap/debug
// level tests.
type fakeLine struct {
	responses []fakeResponse
	respIdx   int

	// captured per completed transaction, in order.
	headers       []request
	writtenData   []uint32
	writtenParity []bool

	released bool

	// header collection
	headerBits []bool

	// read-phase queue (turnaround dummy + ack bits [+ data+parity]).
	readQueue []bool
	readPos   int

	// write-phase collection (turnaround filler [+ data+parity]).
	collectingWrite bool
	writeBits       []bool
	wantWriteBits   int
}

func newFakeLine(responses ...fakeResponse) *fakeLine {
	return &fakeLine{responses: responses}
}

func (f *fakeLine) currentAck() Ack {
	if f.respIdx < len(f.responses) {
		return f.responses[f.respIdx].ack
	}
	return AckOK
}

func (f *fakeLine) WriteBit(b bool) {
	if f.collectingWrite {
		f.writeBits = append(f.writeBits, b)
		if len(f.writeBits) == f.wantWriteBits {
			f.finishWrite()
		}
		return
	}
	f.headerBits = append(f.headerBits, b)
}

func (f *fakeLine) ReadBit() bool {
	if f.readPos < len(f.readQueue) {
		v := f.readQueue[f.readPos]
		f.readPos++
		return v
	}
	return false
}

func (f *fakeLine) ReleaseDIO() {
	f.released = true
	if len(f.headerBits) != 8 {
		return
	}
	r := decodeHeader(f.headerBits)
	f.headers = append(f.headers, r)

	resp := fakeResponse{ack: AckOK}
	if f.respIdx < len(f.responses) {
		resp = f.responses[f.respIdx]
	}

	queue := []bool{false} // turnaround dummy bit
	var ackBits uint8
	if resp.ack == AckOK {
		ackBits = 0b001
	} else if resp.ack == AckWait {
		ackBits = 0b010
	} else if resp.ack == AckFault {
		ackBits = 0b100
	} else {
		ackBits = 0b011 // any malformed pattern
	}
	for i := 0; i < 3; i++ {
		queue = append(queue, ackBits&(1<<uint(i)) != 0)
	}
	if resp.ack == AckOK && r.rnw {
		count := 0
		for i := 0; i < 32; i++ {
			b := resp.data&(1<<uint(i)) != 0
			if b {
				count++
			}
			queue = append(queue, b)
		}
		parity := count%2 != 0
		if resp.badParity {
			parity = !parity
		}
		queue = append(queue, parity)
	}
	f.readQueue = queue
	f.readPos = 0
}

func (f *fakeLine) HoldDIO() {
	f.released = false
	if len(f.headerBits) != 8 {
		return
	}
	r := decodeHeader(f.headerBits)
	ack := f.currentAck()

	if r.rnw {
		if ack != AckOK {
			// Non-OK read: the transaction is over, no filler bit.
			f.endTransaction()
			return
		}
		// OK read: the caller still owes one filler WriteBit before
		// the transaction is complete.
		f.collectingWrite = true
		f.writeBits = nil
		f.wantWriteBits = 1
		return
	}
	// Write: always one filler bit, plus 32+1 data bits if ack is OK.
	f.collectingWrite = true
	f.writeBits = nil
	if ack == AckOK {
		f.wantWriteBits = 1 + 33
	} else {
		f.wantWriteBits = 1
	}
}

func (f *fakeLine) finishWrite() {
	if len(f.writeBits) > 1 {
		var data uint32
		for i, b := range f.writeBits[1:33] {
			if b {
				data |= 1 << uint(i)
			}
		}
		f.writtenData = append(f.writtenData, data)
		f.writtenParity = append(f.writtenParity, f.writeBits[33])
	}
	f.endTransaction()
}

func (f *fakeLine) endTransaction() {
	f.collectingWrite = false
	f.writeBits = nil
	f.headerBits = nil
	f.readQueue = nil
	f.readPos = 0
	f.respIdx++
}

func (f *fakeLine) WritePattern(bits string) {
	for _, r := range bits {
		switch r {
		case '0':
			f.WriteBit(false)
		case '1':
			f.WriteBit(true)
		}
	}
}

func (f *fakeLine) WriteLineReset() {
	for i := 0; i < 64; i++ {
		f.WriteBit(true)
	}
}

func decodeHeader(bits []bool) request {
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
