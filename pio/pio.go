// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package pio defines the contract between device drivers and a programmable
// I/O block: a small hardware engine, such as the RP2040's PIO, whose state
// machines execute fixed microprograms with single-clock-cycle determinism.
//
// Drivers use a Block to load their microprogram, claim a state machine, feed
// its input queue and drain its output queue. The package deliberately mirrors
// the narrow call surface such hardware exposes (claim/release, configure,
// push, exec, enable) rather than any particular vendor SDK, so a Block can be
// backed by real silicon on an embedded target or by piotest's in-memory
// implementation on a development host.
//
// All methods take the state machine index explicitly; a Block is a shared
// resource and the claim calls are what establish exclusive ownership of an
// index.
package pio

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Program is a microprogram in the block's native 16-bit instruction encoding.
//
// Jump targets are encoded relative to the program start; implementations
// relocate them when loading at a nonzero offset.
type Program struct {
	// Name identifies the program in diagnostics.
	Name string
	// Origin is the required load offset, or -1 when the program can be
	// loaded anywhere.
	Origin int
	// Instructions holds the assembled program, at most 32 words.
	Instructions []uint16
	// WrapTarget and Wrap are the program-relative bounds of the implicit
	// wrap loop.
	WrapTarget, Wrap uint8
}

// StateMachineConfig carries the per-state-machine settings applied by
// Block.InitStateMachine.
type StateMachineConfig struct {
	// ClockDiv divides the block clock down to the state machine clock.
	ClockDiv float32
	// WrapTarget and Wrap are absolute instruction offsets after relocation.
	WrapTarget, Wrap uint8
	// SetPinBase and SetPinCount select the pin group driven by SET
	// instructions.
	SetPinBase, SetPinCount uint8
	// JmpPin is the pin sampled by JMP-on-pin instructions.
	JmpPin uint8
	// InShiftRight selects the input shift direction; false shifts left so
	// bits arrive most significant first.
	InShiftRight bool
	// AutoPush pushes the input shift register to the output queue every
	// PushThreshold bits.
	AutoPush      bool
	PushThreshold uint8
}

// RXQueue drains a state machine's output queue.
//
// Values pushed by the program are full shift-register words; consumers that
// transfer narrower units take the low bits of each word.
type RXQueue interface {
	// TryPop removes and returns the oldest queued word. It returns false
	// without removing anything when the queue is empty.
	TryPop() (uint32, bool)
}

// Block is a programmable I/O block with shared instruction memory and a
// small set of state machines.
type Block interface {
	// ClockFreq returns the frequency feeding the state machine clock
	// dividers.
	ClockFreq() physic.Frequency

	// AddProgram loads prog into free instruction memory and returns its
	// offset. It fails when the remaining space cannot hold the program or
	// a fixed-origin load conflicts with already-loaded code.
	AddProgram(prog *Program) (uint8, error)
	// RemoveProgram frees the instruction memory previously assigned to
	// prog at offset.
	RemoveProgram(prog *Program, offset uint8)

	// ClaimStateMachine reserves a free state machine for the caller. It
	// returns false when all state machines are claimed.
	ClaimStateMachine() (uint8, bool)
	// UnclaimStateMachine releases a claimed state machine. The state
	// machine must be disabled first.
	UnclaimStateMachine(sm uint8)

	// InitPin hands a pin over to the block's output function and sets its
	// pad pulls. The previous pin function is not saved.
	InitPin(pin uint8, pull gpio.Pull)

	// InitStateMachine resets the state machine: applies cfg, clears both
	// queues, sets the program counter to initialPC and leaves the state
	// machine disabled.
	InitStateMachine(sm uint8, initialPC uint8, cfg StateMachineConfig)
	// SetEnabled starts or stops execution.
	SetEnabled(sm uint8, enabled bool)
	// IsEnabled reports whether the state machine is executing.
	IsEnabled(sm uint8) bool

	// Put appends one word to the state machine's input queue, blocking
	// while the queue is full.
	Put(sm uint8, data uint32)
	// Exec makes the state machine execute a single instruction in place
	// of its next fetch. The state machine may be disabled.
	Exec(sm uint8, instr uint16)
	// SetPinDirs forces the direction of count consecutive pins starting
	// at base, using the state machine's pin mapping machinery.
	SetPinDirs(sm uint8, base, count uint8, output bool)

	// RXQueue returns the state machine's output queue. The returned
	// handle stays valid for the lifetime of the claim.
	RXQueue(sm uint8) RXQueue
}
