// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package dht

import "github.com/vmilea/pico-dht/pio"

// The sequencer program runs at 1MHz and handles the whole single-wire
// exchange: it holds the line low to request a measurement, skips the
// sensor's response preamble, then classifies each data pulse as a 0 or 1 by
// how long the line stays high, shifting bits into the ISR MSB-first with
// autopush after every 8.
//
// The program is started with the line driven low (set pindirs, 1), Y
// preloaded with the start pulse loop count and OSR holding the threshold
// loop count, which is reloaded into X for every bit. Both loops cost 2
// cycles per count. After the last bit the line idles high and the program
// parks in the wait-out loop until the state machine is disabled.
const (
	startLoopCycles   = 2
	measureLoopCycles = 2
)

// thresholdMicros separates short pulses (a 0 bit, 26-28µs) from long ones
// (a 1 bit, 70µs).
const thresholdMicros = 50

var sequencerProgram = &pio.Program{
	Name:   "dht",
	Origin: -1,
	Instructions: []uint16{
		//                          ; start_signal:
		0x0180, //  0: jmp y--, 0 [1]    ; hold the line low, 2 cycles per count
		0xe080, //  1: set pindirs, 0    ; release the line to the pull-up
		0x00c4, //  2: jmp pin, 4        ; wait for the line to rise
		0x0002, //  3: jmp 2
		0x00c4, //  4: jmp pin, 4        ; wait for the response low
		0x00d1, //  5: jmp pin, 17       ; response high found, wait out its tail
		0x0005, //  6: jmp 5
		//                          ; bit_loop (wrap target):
		0x00c9, //  7: jmp pin, 9        ; wait for the data pulse high
		0x0007, //  8: jmp 7
		0xa027, //  9: mov x, osr        ; reload the threshold count
		0x004c, // 10: jmp x--, 12       ; threshold spent, the pulse is long
		0x000f, // 11: jmp 15
		0x00ca, // 12: jmp pin, 10       ; 2 cycles per count while the line is high
		0x4061, // 13: in null, 1        ; short pulse, shift in a 0
		0x0007, // 14: jmp 7
		0xe021, // 15: set x, 1          ; long pulse, shift in a 1
		0x4021, // 16: in x, 1
		0x00d1, // 17: jmp pin, 17       ; wait out the rest of the pulse, wrap to bit_loop
	},
	WrapTarget: 7,
	Wrap:       17,
}
