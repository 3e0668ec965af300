// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package piotest

import (
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/pio"
)

func TestClaimOrder(t *testing.T) {
	b := &Block{}
	for i := 0; i < NumStateMachines; i++ {
		sm, ok := b.ClaimStateMachine()
		if !ok {
			t.Fatalf("claim %d failed", i)
		}
		if sm != uint8(i) {
			t.Fatalf("claim %d: got state machine %d", i, sm)
		}
	}
	if _, ok := b.ClaimStateMachine(); ok {
		t.Fatal("claimed a fifth state machine")
	}
	b.UnclaimStateMachine(2)
	if n := b.ClaimedStateMachines(); n != 3 {
		t.Fatalf("claimed count: got %d", n)
	}
	if sm, ok := b.ClaimStateMachine(); !ok || sm != 2 {
		t.Fatalf("reclaim: got %d, %t", sm, ok)
	}
}

func TestAddProgram(t *testing.T) {
	b := &Block{}
	big := &pio.Program{Name: "big", Origin: -1, Instructions: make([]uint16, 20)}
	off, err := b.AddProgram(big)
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 {
		t.Fatalf("offset: got %d", off)
	}
	if _, err := b.AddProgram(big); err == nil {
		t.Fatal("expected no room for a second copy")
	}
	small := &pio.Program{Name: "small", Origin: -1, Instructions: make([]uint16, 12)}
	off2, err := b.AddProgram(small)
	if err != nil {
		t.Fatal(err)
	}
	if off2 != 20 {
		t.Fatalf("offset: got %d", off2)
	}
	if n := b.LoadedPrograms(); n != 2 {
		t.Fatalf("loaded count: got %d", n)
	}
	b.RemoveProgram(big, off)
	if _, err := b.AddProgram(big); err != nil {
		t.Fatal(err)
	}
}

func TestAddProgramFixedOrigin(t *testing.T) {
	b := &Block{}
	pinned := &pio.Program{Name: "pinned", Origin: 8, Instructions: make([]uint16, 4)}
	off, err := b.AddProgram(pinned)
	if err != nil {
		t.Fatal(err)
	}
	if off != 8 {
		t.Fatalf("offset: got %d", off)
	}
	clash := &pio.Program{Name: "clash", Origin: 10, Instructions: make([]uint16, 4)}
	if _, err := b.AddProgram(clash); err == nil {
		t.Fatal("expected origin clash to fail")
	}
}

func TestRespondScheduling(t *testing.T) {
	clk := &Clock{}
	b := &Block{Now: clk.Now}
	sm, ok := b.ClaimStateMachine()
	if !ok {
		t.Fatal("claim failed")
	}
	b.Respond(sm, Response{Delay: 100, Data: []byte{0xaa, 0xbb}})
	rx := b.RXQueue(sm)

	if _, ok := rx.TryPop(); ok {
		t.Fatal("popped before enable")
	}
	b.SetEnabled(sm, true)
	if _, ok := rx.TryPop(); ok {
		t.Fatal("popped before delay elapsed")
	}
	clk.Advance(99)
	if _, ok := rx.TryPop(); ok {
		t.Fatal("popped one microsecond early")
	}
	clk.Advance(1)
	for i, want := range []uint32{0xaa, 0xbb} {
		got, ok := rx.TryPop()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if got != want {
			t.Fatalf("pop %d: got %#x, want %#x", i, got, want)
		}
	}
	if _, ok := rx.TryPop(); ok {
		t.Fatal("popped past the end of the response")
	}
}

func TestRespondPerEnable(t *testing.T) {
	clk := &Clock{}
	b := &Block{Now: clk.Now}
	sm, _ := b.ClaimStateMachine()
	b.Respond(sm, Response{Data: []byte{1}})
	b.Respond(sm, Response{Data: []byte{2}})
	rx := b.RXQueue(sm)

	b.SetEnabled(sm, true)
	if got, ok := rx.TryPop(); !ok || got != 1 {
		t.Fatalf("first enable: got %d, %t", got, ok)
	}
	b.SetEnabled(sm, false)
	b.SetEnabled(sm, true)
	if got, ok := rx.TryPop(); !ok || got != 2 {
		t.Fatalf("second enable: got %d, %t", got, ok)
	}
	b.SetEnabled(sm, false)
	b.SetEnabled(sm, true)
	if _, ok := rx.TryPop(); ok {
		t.Fatal("third enable should have no response")
	}
}

func TestRecording(t *testing.T) {
	b := &Block{}
	sm, _ := b.ClaimStateMachine()
	cfg := pio.StateMachineConfig{ClockDiv: 125, JmpPin: 7, AutoPush: true, PushThreshold: 8}
	b.InitStateMachine(sm, 3, cfg)
	b.Put(sm, 9000)
	b.Put(sm, 25)
	b.Exec(sm, pio.EncodeSet(pio.PinDirs, 1))
	b.SetPinDirs(sm, 7, 1, false)
	b.SetEnabled(sm, true)

	rec := b.Recording(sm)
	if rec.InitialPC != 3 {
		t.Fatalf("initial pc: got %d", rec.InitialPC)
	}
	if rec.Config != cfg {
		t.Fatalf("config: got %#v", rec.Config)
	}
	if len(rec.Tx) != 2 || rec.Tx[0] != 9000 || rec.Tx[1] != 25 {
		t.Fatalf("tx: got %v", rec.Tx)
	}
	if len(rec.Exec) != 1 || rec.Exec[0] != 0xe081 {
		t.Fatalf("exec: got %#v", rec.Exec)
	}
	if len(rec.PinDirs) != 1 || rec.PinDirs[0] != (PinDirForce{Base: 7, Count: 1}) {
		t.Fatalf("pindirs: got %#v", rec.PinDirs)
	}
	if rec.Enables != 1 {
		t.Fatalf("enables: got %d", rec.Enables)
	}
	if !b.IsEnabled(sm) {
		t.Fatal("state machine should be enabled")
	}
}

func TestClockFreq(t *testing.T) {
	b := &Block{}
	if f := b.ClockFreq(); f != 125*physic.MegaHertz {
		t.Fatalf("default freq: got %s", f)
	}
	b = &Block{Freq: 48 * physic.MegaHertz}
	if f := b.ClockFreq(); f != 48*physic.MegaHertz {
		t.Fatalf("freq: got %s", f)
	}
}

func TestPinPull(t *testing.T) {
	b := &Block{}
	if pull := b.PinPull(5); pull != gpio.PullNoChange {
		t.Fatalf("pull before init: got %s", pull)
	}
	b.InitPin(5, gpio.PullUp)
	if pull := b.PinPull(5); pull != gpio.PullUp {
		t.Fatalf("pull: got %s", pull)
	}
}

func TestMisusePanics(t *testing.T) {
	expectPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			t.Helper()
			if recover() == nil {
				t.Fatalf("%s did not panic", name)
			}
		}()
		f()
	}

	b := &Block{}
	expectPanic("Put on unclaimed", func() { b.Put(0, 0) })
	expectPanic("out of range", func() { b.IsEnabled(NumStateMachines) })

	sm, _ := b.ClaimStateMachine()
	b.SetEnabled(sm, true)
	expectPanic("unclaim while enabled", func() { b.UnclaimStateMachine(sm) })
	expectPanic("init while enabled", func() { b.InitStateMachine(sm, 0, pio.StateMachineConfig{}) })
	b.SetEnabled(sm, false)

	prog := &pio.Program{Name: "p", Origin: -1, Instructions: make([]uint16, 4)}
	expectPanic("remove unloaded program", func() { b.RemoveProgram(prog, 0) })
}
