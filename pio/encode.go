// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package pio

// SrcDest names an instruction operand: a register or pin group. The values
// match the 3-bit operand fields of the native encoding.
type SrcDest uint8

const (
	Pins SrcDest = iota
	X
	Y
	Null
	PinDirs
	PC
	ISR
	OSR
)

// The encoders below cover the instructions drivers execute directly through
// Block.Exec. Complete programs are assembled offline and carried as
// Program.Instructions.

// EncodeSet encodes a SET instruction. Valid destinations are Pins, X, Y and
// PinDirs; value is truncated to 5 bits.
func EncodeSet(dest SrcDest, value uint8) uint16 {
	return 0xe000 | uint16(dest)<<5 | uint16(value&0x1f)
}

// EncodePull encodes a PULL instruction moving a word from the input queue to
// the output shift register.
func EncodePull(ifEmpty, block bool) uint16 {
	instr := uint16(0x8080)
	if ifEmpty {
		instr |= 1 << 6
	}
	if block {
		instr |= 1 << 5
	}
	return instr
}

// EncodeMov encodes a MOV instruction copying src to dest without inversion
// or bit reversal.
func EncodeMov(dest, src SrcDest) uint16 {
	return 0xa000 | uint16(dest)<<5 | uint16(src)
}
