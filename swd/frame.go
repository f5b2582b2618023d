// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

// maxWaitRetries bounds how many times a WAIT ack is retried before the
// framer gives up and surfaces a ProtocolError (spec §5: "a bounded
// number of attempts before surfacing as an error").
const maxWaitRetries = 8

// request describes one L2 transaction header (spec §4.2).
type request struct {
	ap   bool  // APnDP
	rnw  bool  // RnW; true = read
	addr uint8 // A[3:2], i.e. the register's 4-bit address with bits 0-1 zero
}

// header returns the Start/APnDP/RnW/A2/A3/Parity/Stop/Park bits in
// wire order.
func (r request) header() [8]bool {
	a2 := r.addr&0x4 != 0
	a3 := r.addr&0x8 != 0
	parity := evenParityBits(r.ap, r.rnw, a2, a3)
	return [8]bool{
		true,   // Start
		r.ap,   // APnDP
		r.rnw,  // RnW
		a2,     // A2
		a3,     // A3
		parity, // Parity
		false,  // Stop
		true,   // Park
	}
}

func evenParityBits(bits ...bool) bool {
	count := 0
	for _, b := range bits {
		if b {
			count++
		}
	}
	return count%2 != 0
}

// transact runs one L2 transaction: emits the header, turns the bus
// around, reads ACK, then either streams write data or captures read
// data. Turnaround bracketing matches the reference driver exactly:
// a write unconditionally reclaims DIO and clocks one filler bit right
// after the ACK field, before the data phase (or instead of it, if ACK
// isn't OK); a read only reclaims DIO (no filler clock) on a non-OK
// ACK, and clocks the filler bit after the data+parity phase on OK.
//
// For writes wdata is the 32-bit payload to send; for reads wdata is
// ignored. ignoreAck suppresses ACK-derived errors (used only for the
// multi-drop TARGETSEL write).
func transact(l Line, r request, wdata uint32, ignoreAck bool) (rdata uint32, ack Ack, err error) {
	for attempt := 0; attempt <= maxWaitRetries; attempt++ {
		for _, b := range r.header() {
			l.WriteBit(b)
		}

		l.ReleaseDIO()
		l.ReadBit() // turnaround: target takes over DIO

		var ackBits uint8
		for i := 0; i < 3; i++ {
			if l.ReadBit() {
				ackBits |= 1 << uint(i)
			}
		}
		ack = ackFromBits(ackBits)

		if !r.rnw {
			// Writes reclaim DIO and clock the write-side turnaround
			// bit unconditionally, whether or not ACK was OK.
			l.HoldDIO()
			l.WriteBit(false)
		}

		if ignoreAck {
			writeData(l, wdata)
			return 0, ack, nil
		}

		switch ack {
		case AckOK:
			if r.rnw {
				data, perr := readDataChecked(l)
				l.HoldDIO()
				l.WriteBit(false) // turnaround filler clock
				if perr != nil {
					return 0, ack, perr
				}
				return data, ack, nil
			}
			writeData(l, wdata)
			return 0, ack, nil

		case AckWait:
			if r.rnw {
				l.HoldDIO()
			}
			continue

		case AckFault:
			if r.rnw {
				l.HoldDIO()
			}
			return 0, ack, &ProtocolError{Kind: ProtoFault, AP: r.ap, Addr: r.addr}

		default:
			if r.rnw {
				l.HoldDIO()
			}
			return 0, ack, &ProtocolError{Kind: ProtoMalformedAck, AP: r.ap, Addr: r.addr}
		}
	}
	return 0, AckWait, &ProtocolError{Kind: ProtoWait, AP: r.ap, Addr: r.addr}
}

func writeData(l Line, data uint32) {
	count := 0
	for i := 0; i < 32; i++ {
		b := data&(1<<uint(i)) != 0
		if b {
			count++
		}
		l.WriteBit(b)
	}
	l.WriteBit(count%2 != 0)
}

// readDataChecked reads the 32 LSB-first data bits plus their parity bit
// and verifies it, per spec §4.2's data-parity invariant.
func readDataChecked(l Line) (uint32, error) {
	var data uint32
	count := 0
	for i := 0; i < 32; i++ {
		if l.ReadBit() {
			data |= 1 << uint(i)
			count++
		}
	}
	gotParity := l.ReadBit()
	wantParity := count%2 != 0
	if gotParity != wantParity {
		return data, &ProtocolError{Kind: ProtoParityMismatch}
	}
	return data, nil
}
