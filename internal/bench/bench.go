// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package bench provides dht.Dev instances wired to simulated sensors, so
// the commands in this module run on any host.
package bench

import (
	"math"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/dht"
	"github.com/vmilea/pico-dht/dma/dmatest"
	"github.com/vmilea/pico-dht/pio/piotest"
)

const (
	// Frames become available this long after an exchange starts, roughly
	// the time a real sensor takes to answer.
	responseDelayMicros = 4000

	// Every corruptEvery-th frame arrives with a bad checksum, like a real
	// sensor on a long noisy wire.
	corruptEvery = 13
)

// Sensor is a dht.Dev wired to a simulated sensor. Each sensor gets its own
// sequencer block, the driver loads one program copy per block.
type Sensor struct {
	Name string

	model dht.Model
	blk   *piotest.Block
	dev   *dht.Dev
	phase float64
	reads int
}

// New returns a simulated sensor. phase separates the readings of multiple
// sensors on the same bench.
func New(name string, model dht.Model, pin uint8, pullUp bool, phase float64) (*Sensor, error) {
	blk := &piotest.Block{}
	dev, err := dht.New(blk, &dmatest.Controller{}, model, pin, &dht.Opts{
		ExternalPullUp: !pullUp,
	})
	if err != nil {
		return nil, err
	}
	return &Sensor{
		Name:  name,
		model: model,
		blk:   blk,
		dev:   dev,
		phase: phase,
	}, nil
}

// Read queues a synthetic frame on the simulated sensor and measures it.
func (s *Sensor) Read(e *physic.Env) error {
	env := s.environment(time.Now())
	frame := dht.EncodeFrame(s.model, env.Humidity, env.Temperature)
	s.reads++
	if s.reads%corruptEvery == 0 {
		frame[4]++
	}
	s.blk.Respond(0, piotest.Response{Delay: responseDelayMicros, Data: frame[:]})
	return s.dev.Sense(e)
}

// Close releases the simulated hardware.
func (s *Sensor) Close() {
	s.dev.Deinit()
}

// environment synthesizes a plausible reading: temperature swings slowly
// around 21°C, humidity drifts around 55% on its own period.
func (s *Sensor) environment(now time.Time) physic.Env {
	h := float64(now.UnixNano()) / float64(time.Hour.Nanoseconds())
	celsius := 21 + 4*math.Sin(2*math.Pi*h/3+s.phase)
	pct := 55 + 15*math.Sin(2*math.Pi*h/7+1.3*s.phase)

	var e physic.Env
	e.Temperature = physic.ZeroCelsius + (physic.Celsius/10)*physic.Temperature(math.Round(celsius*10))
	e.Humidity = physic.RelativeHumidity(math.Round(pct*10)) * physic.MilliRH
	return e
}
