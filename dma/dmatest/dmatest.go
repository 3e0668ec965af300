// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package dmatest implements dma.Controller in memory for driver tests and
// hardware-free demos.
//
// A triggered channel moves data lazily: each Busy call drains whatever the
// source can supply before answering, so a test advances a transfer simply by
// making data poppable and polling Busy, the same loop a driver runs against
// real hardware. Misuse panics, since a bad claim or release is a bug in the
// driver under test.
package dmatest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/vmilea/pico-dht/dma"
)

// DefaultChannels is the number of channels on the reference hardware.
const DefaultChannels = 12

// Controller is an in-memory dma.Controller. The zero value is ready to use.
type Controller struct {
	// Channels is the number of DMA channels; DefaultChannels when zero.
	Channels int

	mu  sync.Mutex
	chs []*Channel
}

var _ dma.Controller = &Controller{}

// ClaimChannel implements dma.Controller. Channels are handed out in
// ascending index order.
func (c *Controller) ClaimChannel() (dma.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chs == nil {
		n := c.Channels
		if n == 0 {
			n = DefaultChannels
		}
		c.chs = make([]*Channel, n)
		for i := range c.chs {
			c.chs[i] = &Channel{index: i}
		}
	}
	for _, ch := range c.chs {
		ch.mu.Lock()
		if !ch.claimed {
			ch.claimed = true
			ch.cfg = dma.Config{}
			ch.started = false
			ch.remaining = 0
			ch.writeIdx = 0
			ch.aborts = 0
			ch.mu.Unlock()
			return ch, true
		}
		ch.mu.Unlock()
	}
	return nil, false
}

// ClaimedChannels returns how many channels are currently claimed.
func (c *Controller) ClaimedChannels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ch := range c.chs {
		ch.mu.Lock()
		if ch.claimed {
			n++
		}
		ch.mu.Unlock()
	}
	return n
}

// Channel returns channel i for test inspection.
func (c *Controller) Channel(i int) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chs[i]
}

// Channel is an in-memory dma.Channel.
type Channel struct {
	index int

	mu        sync.Mutex
	claimed   bool
	cfg       dma.Config
	started   bool
	remaining int
	writeIdx  int
	aborts    int
}

var _ dma.Channel = &Channel{}

// Configure implements dma.Channel and validates the transfer up front.
func (ch *Channel) Configure(cfg dma.Config) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.checkClaimed()
	ch.pump()
	if ch.started && ch.remaining > 0 {
		panic(fmt.Sprintf("dmatest: reconfiguring busy channel %d", ch.index))
	}
	if cfg.Src == nil {
		panic(fmt.Sprintf("dmatest: channel %d has no source", ch.index))
	}
	if cfg.Count <= 0 {
		panic(fmt.Sprintf("dmatest: channel %d transfer count %d", ch.index, cfg.Count))
	}
	need := sizeBytes(cfg.Size)
	if cfg.WriteIncrement {
		need *= cfg.Count
	}
	if need > len(cfg.Dst) {
		panic(fmt.Sprintf("dmatest: channel %d destination holds %d of %d bytes", ch.index, len(cfg.Dst), need))
	}
	ch.cfg = cfg
	ch.started = cfg.Trigger
	ch.remaining = cfg.Count
	ch.writeIdx = 0
}

// Busy implements dma.Channel. It first moves whatever the source can
// supply.
func (ch *Channel) Busy() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.checkClaimed()
	ch.pump()
	return ch.started && ch.remaining > 0
}

// Abort implements dma.Channel. It is idempotent and leaves the channel
// claimed.
func (ch *Channel) Abort() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.checkClaimed()
	ch.started = false
	ch.remaining = 0
	ch.aborts++
}

// Unclaim implements dma.Channel.
func (ch *Channel) Unclaim() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.checkClaimed()
	ch.pump()
	if ch.started && ch.remaining > 0 {
		panic(fmt.Sprintf("dmatest: releasing busy channel %d", ch.index))
	}
	ch.claimed = false
}

// Index returns the channel's index within its controller.
func (ch *Channel) Index() int {
	return ch.index
}

// LastConfig returns the most recent Configure argument.
func (ch *Channel) LastConfig() dma.Config {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.cfg
}

// Aborts returns how many times the channel was aborted.
func (ch *Channel) Aborts() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.aborts
}

// Remaining returns how many transfers are left, without pumping.
func (ch *Channel) Remaining() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.remaining
}

func (ch *Channel) checkClaimed() {
	if !ch.claimed {
		panic(fmt.Sprintf("dmatest: channel %d not claimed", ch.index))
	}
}

func (ch *Channel) pump() {
	if !ch.started {
		return
	}
	for ch.remaining > 0 {
		w, ok := ch.cfg.Src.TryPop()
		if !ok {
			return
		}
		n := sizeBytes(ch.cfg.Size)
		switch ch.cfg.Size {
		case dma.Size8:
			ch.cfg.Dst[ch.writeIdx] = byte(w)
		case dma.Size16:
			binary.LittleEndian.PutUint16(ch.cfg.Dst[ch.writeIdx:], uint16(w))
		case dma.Size32:
			binary.LittleEndian.PutUint32(ch.cfg.Dst[ch.writeIdx:], w)
		}
		if ch.cfg.WriteIncrement {
			ch.writeIdx += n
		}
		ch.remaining--
	}
}

func sizeBytes(s dma.Size) int {
	switch s {
	case dma.Size8:
		return 1
	case dma.Size16:
		return 2
	case dma.Size32:
		return 4
	default:
		panic(fmt.Sprintf("dmatest: transfer size %d", s))
	}
}
