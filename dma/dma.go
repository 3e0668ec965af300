// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package dma defines the contract for the transfer-channel engine that moves
// data from a peripheral's output queue into memory without processor
// involvement.
//
// A driver claims a Channel from a Controller once, then configures it anew
// for every transfer. The channel runs on its own: after Configure with
// Trigger set, the driver only watches Busy and, on timeout, calls Abort.
// Implementations are backed by real hardware on an embedded target or by
// dmatest's in-memory engine on a development host.
package dma

// Size selects the per-transfer width. Every transfer pops one source word
// and stores its low bits.
type Size uint8

const (
	Size8 Size = iota
	Size16
	Size32
)

// Source supplies words on demand; a sequencer's RX queue implements it.
type Source interface {
	// TryPop removes and returns the oldest available word, or returns
	// false when no data is ready yet.
	TryPop() (uint32, bool)
}

// Config describes one transfer run.
type Config struct {
	// Src paces the channel: one transfer happens each time Src has data.
	Src Source
	// Dst receives the transferred units.
	Dst []byte
	// Count is the number of transfers in the run.
	Count int
	// Size is the per-transfer width.
	Size Size
	// ReadIncrement advances the source position after each transfer;
	// false reads a fixed peripheral location, which is the only mode that
	// makes sense with a queue Source.
	ReadIncrement bool
	// WriteIncrement advances the destination position after each
	// transfer.
	WriteIncrement bool
	// IRQQuiet suppresses the completion interrupt; completion is observed
	// by polling Busy instead.
	IRQQuiet bool
	// Trigger starts the run immediately on Configure.
	Trigger bool
}

// Controller allocates transfer channels.
type Controller interface {
	// ClaimChannel reserves a free channel for the caller. It returns
	// false when all channels are claimed.
	ClaimChannel() (Channel, bool)
}

// Channel is one claimed transfer channel.
type Channel interface {
	// Configure arms the channel for a new run, starting it immediately
	// when cfg.Trigger is set.
	Configure(cfg Config)
	// Busy reports whether a run is still in progress.
	Busy() bool
	// Abort stops the current run, abandoning any partial transfer. It is
	// idempotent and leaves the channel claimed and reconfigurable.
	Abort()
	// Unclaim returns the channel to its controller. The channel must be
	// idle.
	Unclaim()
}
