// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package piotest implements pio.Block in memory for driver tests and
// hardware-free demos.
//
// The fake mirrors the reference hardware's geometry: 4 state machines and 32
// instruction slots per block. It records every configuration call for test
// assertions and panics on claim or lifecycle misuse, since those are bugs in
// the driver under test rather than conditions to report.
//
// Sensor behavior is scripted: Respond queues a Response for a state machine,
// and the next SetEnabled(true) arms it. Once armed, the response's bytes
// become poppable on the state machine's RX queue after Delay microseconds of
// block time have passed. Block time comes from the Now field, typically a
// manual Clock in tests; when Now is nil the host monotonic clock is used,
// which is what the demos run on.
//
// State machines are claimed in ascending index order, so a caller creating
// devices one by one can rely on the claim sequence.
package piotest

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/pio"
)

// Block geometry, matching the reference hardware.
const (
	NumStateMachines = 4
	ProgramMemSize   = 32
)

// Clock is a manually advanced microsecond clock.
type Clock struct {
	mu  sync.Mutex
	now uint32
}

// Now returns the current time in microseconds. It wraps at 2³².
func (c *Clock) Now() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d microseconds.
func (c *Clock) Advance(d uint32) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Set jumps the clock to t. Useful for placing a test close to the wrap
// boundary.
func (c *Clock) Set(t uint32) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Response is a scripted frame the fake sensor returns after the state
// machine is enabled.
type Response struct {
	// Delay is the block time in microseconds between enable and the data
	// becoming available.
	Delay uint32
	// Data holds the bytes pushed to the RX queue, oldest first. A short
	// frame models a sensor that stops answering mid-measurement.
	Data []byte
}

// PinDirForce records one SetPinDirs call.
type PinDirForce struct {
	Base, Count uint8
	Output      bool
}

// Recording is a snapshot of everything a driver did to one state machine
// since it was claimed.
type Recording struct {
	InitialPC uint8
	Config    pio.StateMachineConfig
	Tx        []uint32
	Exec      []uint16
	PinDirs   []PinDirForce
	Enables   int
}

type stateMachine struct {
	claimed   bool
	enabled   bool
	enabledAt uint32
	rec       Recording
	pending   []Response
	armed     *Response
	served    int
}

// Block is an in-memory pio.Block. The zero value is ready to use.
type Block struct {
	// Freq is the block clock; 125MHz when zero.
	Freq physic.Frequency
	// Now supplies block time in microseconds; host monotonic when nil.
	Now func() uint32

	mu       sync.Mutex
	sms      [NumStateMachines]stateMachine
	slots    [ProgramMemSize]bool
	loaded   map[uint8]*pio.Program
	pinPulls map[uint8]gpio.Pull
}

var _ pio.Block = &Block{}

var epoch = time.Now()

func hostMicros() uint32 {
	return uint32(time.Since(epoch).Microseconds())
}

func (b *Block) now() uint32 {
	if b.Now != nil {
		return b.Now()
	}
	return hostMicros()
}

func (b *Block) sm(sm uint8) *stateMachine {
	if int(sm) >= NumStateMachines {
		panic(fmt.Sprintf("piotest: no state machine %d", sm))
	}
	s := &b.sms[sm]
	if !s.claimed {
		panic(fmt.Sprintf("piotest: state machine %d not claimed", sm))
	}
	return s
}

// ClockFreq implements pio.Block.
func (b *Block) ClockFreq() physic.Frequency {
	if b.Freq == 0 {
		return 125 * physic.MegaHertz
	}
	return b.Freq
}

// AddProgram implements pio.Block with a first-fit slot allocator.
func (b *Block) AddProgram(prog *pio.Program) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(prog.Instructions)
	if n == 0 || n > ProgramMemSize {
		return 0, fmt.Errorf("piotest: program %q has %d instructions", prog.Name, n)
	}
	lo, hi := 0, ProgramMemSize-n
	if prog.Origin >= 0 {
		lo, hi = prog.Origin, prog.Origin
	}
	for off := lo; off <= hi; off++ {
		if b.slotsFree(off, n) {
			b.markSlots(off, n, true)
			if b.loaded == nil {
				b.loaded = map[uint8]*pio.Program{}
			}
			b.loaded[uint8(off)] = prog
			return uint8(off), nil
		}
	}
	return 0, fmt.Errorf("piotest: no room for program %q", prog.Name)
}

// RemoveProgram implements pio.Block.
func (b *Block) RemoveProgram(prog *pio.Program, offset uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded[offset] != prog {
		panic(fmt.Sprintf("piotest: program %q not loaded at offset %d", prog.Name, offset))
	}
	b.markSlots(int(offset), len(prog.Instructions), false)
	delete(b.loaded, offset)
}

func (b *Block) slotsFree(off, n int) bool {
	for i := off; i < off+n; i++ {
		if b.slots[i] {
			return false
		}
	}
	return true
}

func (b *Block) markSlots(off, n int, used bool) {
	for i := off; i < off+n; i++ {
		b.slots[i] = used
	}
}

// ClaimStateMachine implements pio.Block. Indexes are handed out in
// ascending order.
func (b *Block) ClaimStateMachine() (uint8, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.sms {
		if !b.sms[i].claimed {
			b.sms[i] = stateMachine{claimed: true}
			return uint8(i), true
		}
	}
	return 0, false
}

// UnclaimStateMachine implements pio.Block.
func (b *Block) UnclaimStateMachine(sm uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sm(sm)
	if s.enabled {
		panic(fmt.Sprintf("piotest: releasing enabled state machine %d", sm))
	}
	s.claimed = false
}

// InitPin implements pio.Block.
func (b *Block) InitPin(pin uint8, pull gpio.Pull) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pinPulls == nil {
		b.pinPulls = map[uint8]gpio.Pull{}
	}
	b.pinPulls[pin] = pull
}

// PinPull returns the pull configured for pin by InitPin, or
// gpio.PullNoChange when the pin was never handed over.
func (b *Block) PinPull(pin uint8) gpio.Pull {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pull, ok := b.pinPulls[pin]; ok {
		return pull
	}
	return gpio.PullNoChange
}

// InitStateMachine implements pio.Block.
func (b *Block) InitStateMachine(sm uint8, initialPC uint8, cfg pio.StateMachineConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sm(sm)
	if s.enabled {
		panic(fmt.Sprintf("piotest: init of enabled state machine %d", sm))
	}
	s.rec.InitialPC = initialPC
	s.rec.Config = cfg
	s.armed = nil
	s.served = 0
}

// SetEnabled implements pio.Block. Enabling arms the next scripted Response.
func (b *Block) SetEnabled(sm uint8, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sm(sm)
	if enabled && !s.enabled {
		s.rec.Enables++
		s.enabledAt = b.now()
		s.served = 0
		if len(s.pending) > 0 {
			r := s.pending[0]
			s.pending = s.pending[1:]
			s.armed = &r
		} else {
			s.armed = nil
		}
	}
	s.enabled = enabled
}

// IsEnabled implements pio.Block.
func (b *Block) IsEnabled(sm uint8) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sm(sm).enabled
}

// Put implements pio.Block. The fake's input queue is unbounded, so Put
// never blocks.
func (b *Block) Put(sm uint8, data uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sm(sm)
	s.rec.Tx = append(s.rec.Tx, data)
}

// Exec implements pio.Block.
func (b *Block) Exec(sm uint8, instr uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sm(sm)
	s.rec.Exec = append(s.rec.Exec, instr)
}

// SetPinDirs implements pio.Block.
func (b *Block) SetPinDirs(sm uint8, base, count uint8, output bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sm(sm)
	s.rec.PinDirs = append(s.rec.PinDirs, PinDirForce{Base: base, Count: count, Output: output})
}

// RXQueue implements pio.Block.
func (b *Block) RXQueue(sm uint8) pio.RXQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sm(sm)
	return &rxQueue{b: b, sm: sm}
}

// Respond queues a scripted response for the state machine's next enable.
func (b *Block) Respond(sm uint8, r Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sm(sm)
	s.pending = append(s.pending, r)
}

// Recording returns a snapshot of the driver's interactions with the state
// machine since it was last claimed. It keeps working after the state
// machine is released, so a test can inspect a completed teardown.
func (b *Block) Recording(sm uint8) Recording {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(sm) >= NumStateMachines {
		panic(fmt.Sprintf("piotest: no state machine %d", sm))
	}
	s := &b.sms[sm]
	rec := s.rec
	rec.Tx = append([]uint32(nil), s.rec.Tx...)
	rec.Exec = append([]uint16(nil), s.rec.Exec...)
	rec.PinDirs = append([]PinDirForce(nil), s.rec.PinDirs...)
	return rec
}

// ClaimedStateMachines returns how many state machines are currently
// claimed.
func (b *Block) ClaimedStateMachines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := range b.sms {
		if b.sms[i].claimed {
			n++
		}
	}
	return n
}

// LoadedPrograms returns how many programs are currently loaded.
func (b *Block) LoadedPrograms() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.loaded)
}

type rxQueue struct {
	b  *Block
	sm uint8
}

// TryPop implements pio.RXQueue against the armed scripted response.
func (q *rxQueue) TryPop() (uint32, bool) {
	b := q.b
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.sms[q.sm]
	if !s.claimed || !s.enabled || s.armed == nil {
		return 0, false
	}
	if b.now()-s.enabledAt < s.armed.Delay {
		return 0, false
	}
	if s.served >= len(s.armed.Data) {
		return 0, false
	}
	w := uint32(s.armed.Data[s.served])
	s.served++
	return w, true
}
