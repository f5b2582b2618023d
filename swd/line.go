// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swd

// Line is the single swap point for testing (spec's only dynamic seam):
// every layer above L1 talks to the wire exclusively through this
// interface, so unit tests substitute a scripted fake that understands
// SWD bit framing instead of real GPIO pins.
type Line interface {
	// WriteBit drives DIO to b, then raises and lowers CLK around it.
	WriteBit(b bool)
	// ReadBit samples DIO, then raises and lowers CLK around it.
	ReadBit() bool
	// ReleaseDIO tri-states the host's drive on DIO (and disables
	// pulls) so a subsequent ReadBit samples whatever the target
	// drives.
	ReleaseDIO()
	// HoldDIO re-enables the host's drive on DIO.
	HoldDIO()
	// WritePattern emits a literal ASCII bit string: '0' and '1'
	// produce bits; any other rune (commonly '_' as a nibble
	// separator) is skipped.
	WritePattern(bits string)
	// WriteLineReset emits 64 consecutive ones with DIO driven.
	WriteLineReset()
}

// bitbangLine is the default Line, bit-banging a clock/data Pin pair
// through a Delayer. It performs no protocol-level interpretation; it
// is pure I/O, matching spec §4.1's "failure: none at this layer".
type bitbangLine struct {
	clk, dio  Pin
	delay     Delayer
	halfPerUs uint32
}

func newBitbangLine(clk, dio Pin, delay Delayer, halfPeriodUs uint32) *bitbangLine {
	return &bitbangLine{clk: clk, dio: dio, delay: delay, halfPerUs: halfPeriodUs}
}

func (l *bitbangLine) WriteBit(b bool) {
	l.dio.Set(b)
	l.delay.DelayMicroseconds(l.halfPerUs)
	l.clk.Set(true)
	l.delay.DelayMicroseconds(l.halfPerUs)
	l.clk.Set(false)
}

func (l *bitbangLine) ReadBit() bool {
	l.delay.DelayMicroseconds(l.halfPerUs)
	v, _ := l.dio.Get()
	l.clk.Set(true)
	l.delay.DelayMicroseconds(l.halfPerUs)
	l.clk.Set(false)
	return v
}

func (l *bitbangLine) ReleaseDIO() {
	l.dio.DisablePulls()
	l.dio.SetDirection(false)
}

func (l *bitbangLine) HoldDIO() {
	l.dio.SetDirection(true)
}

func (l *bitbangLine) WritePattern(bits string) {
	for _, r := range bits {
		switch r {
		case '0':
			l.WriteBit(false)
		case '1':
			l.WriteBit(true)
		default:
			// nibble separators such as '_' are ignored.
		}
	}
}

func (l *bitbangLine) WriteLineReset() {
	for i := 0; i < 64; i++ {
		l.WriteBit(true)
	}
}
