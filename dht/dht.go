// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package dht provides a driver for the AOSONG DHT11 / DHT12 / DHT21 / DHT22
// family of temperature and humidity sensors.
//
// These sensors speak a timing-based single-wire protocol that general
// purpose I/O cannot follow reliably, so the driver offloads the entire
// exchange to a programmable I/O state machine and collects the resulting
// frame over a DMA channel. The CPU is only involved to start a measurement
// and to decode the 5 bytes at the end.
//
// Readings should be at least 2 seconds apart, which is a limitation of the
// sensors themselves.
//
// # Datasheet
//
// DHT11: https://www.mouser.com/datasheet/2/758/DHT11-Technical-Data-Sheet-Translated-Version-1143054.pdf
//
// DHT22: https://www.sparkfun.com/datasheets/Sensors/Temperature/DHT22.pdf
package dht

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/common"
	"github.com/vmilea/pico-dht/dma"
	"github.com/vmilea/pico-dht/pio"
)

// The state machine runs at this rate, so loop counts pushed to the program
// are microseconds divided by the cycles per loop iteration.
const smClockHz = 1000000

// timeoutMarginMicros is added to the start pulse length to form the
// measurement window. The exchange itself takes under 5ms.
const timeoutMarginMicros = 6000

const minInterval = 2 * time.Second

// Opts holds the configuration options.
type Opts struct {
	// ExternalPullUp skips enabling the internal pull-up on the data line,
	// for boards that wire their own resistor.
	ExternalPullUp bool
	// NowMicros overrides the microsecond timestamp source used to time
	// out measurements. Mainly for tests.
	NowMicros func() uint32
}

// Dev is a handle to a DHT sensor driven by a programmable I/O state machine
// and a DMA channel.
//
// StartMeasurement and FinishMeasurement expose the raw two-phase cycle for
// callers that want to do other work while the sensor answers. Sense wraps
// the two in a single blocking call.
type Dev struct {
	blk       pio.Block
	ch        dma.Channel
	model     Model
	pin       uint8
	sm        uint8
	offset    uint8
	now       func() uint32
	startTime uint32
	buf       [5]byte

	mu       sync.Mutex
	shutdown chan struct{}
}

// New claims a state machine, a DMA channel and program space on blk to
// drive the sensor connected to dataPin.
//
// The internal pull-up on the data line is enabled unless opts says
// otherwise. A nil opts selects the defaults. Call Deinit to release the
// claimed resources.
func New(blk pio.Block, dmac dma.Controller, model Model, dataPin uint8, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{}
	}
	switch model {
	case DHT11, DHT12, DHT21, DHT22:
	default:
		return nil, fmt.Errorf("dht: unknown model %d", model)
	}
	offset, err := blk.AddProgram(sequencerProgram)
	if err != nil {
		return nil, fmt.Errorf("dht: %w", err)
	}
	sm, ok := blk.ClaimStateMachine()
	if !ok {
		blk.RemoveProgram(sequencerProgram, offset)
		return nil, errors.New("dht: no free state machine")
	}
	ch, ok := dmac.ClaimChannel()
	if !ok {
		blk.UnclaimStateMachine(sm)
		blk.RemoveProgram(sequencerProgram, offset)
		return nil, errors.New("dht: no free DMA channel")
	}
	pull := gpio.PullUp
	if opts.ExternalPullUp {
		pull = gpio.Float
	}
	blk.InitPin(dataPin, pull)
	now := opts.NowMicros
	if now == nil {
		now = micros
	}
	return &Dev{blk: blk, ch: ch, model: model, pin: dataPin, sm: sm, offset: offset, now: now}, nil
}

// Model returns the sensor model the device was created for.
func (d *Dev) Model() Model {
	return d.model
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{pin %d}", d.model, d.pin)
}

// StartMeasurement triggers a measurement and returns without waiting for
// the sensor's answer. The exchange takes about 5ms plus the model's start
// pulse, during which the caller is free to do other work before calling
// FinishMeasurement.
//
// It panics if the device was deinitialized or a measurement is already
// running.
func (d *Dev) StartMeasurement() {
	d.checkInit()
	if d.blk.IsEnabled(d.sm) {
		panic("dht: measurement already started")
	}
	d.buf = [5]byte{}
	d.ch.Configure(dma.Config{
		Src:            d.blk.RXQueue(d.sm),
		Dst:            d.buf[:],
		Count:          len(d.buf),
		Size:           dma.Size8,
		WriteIncrement: true,
		IRQQuiet:       true,
		Trigger:        true,
	})
	d.startSequencer()
	d.startTime = d.now()
}

// FinishMeasurement waits for the measurement started by StartMeasurement
// and decodes it into e, overwriting the humidity and temperature fields and
// zeroing the pressure. It returns ErrTimeout if the sensor did not answer
// and ErrBadChecksum if the frame arrived corrupted.
//
// It panics if no measurement is running.
func (d *Dev) FinishMeasurement(e *physic.Env) error {
	d.checkInit()
	if !d.blk.IsEnabled(d.sm) {
		panic("dht: measurement not started")
	}
	timeout := d.model.startPulseMicros() + timeoutMarginMicros
	for d.ch.Busy() && d.now()-d.startTime < timeout {
		yield()
	}
	d.blk.SetEnabled(d.sm, false)
	// The program may have parked with the line driven, give it back to the
	// pull-up.
	d.blk.Exec(d.sm, pio.EncodeSet(pio.PinDirs, 0))
	if d.ch.Busy() {
		d.ch.Abort()
		return ErrTimeout
	}

	e.Temperature = 0
	e.Pressure = 0
	e.Humidity = 0
	if common.Sum8(d.buf[:4]) != d.buf[4] {
		return ErrBadChecksum
	}
	e.Humidity = decodeHumidity(d.model, d.buf[0], d.buf[1])
	e.Temperature = decodeTemperature(d.model, d.buf[2], d.buf[3])
	return nil
}

// startSequencer configures the state machine for a fresh run, seeds the
// loop counts and starts the program.
func (d *Dev) startSequencer() {
	hz := uint32(d.blk.ClockFreq() / physic.Hertz)
	cfg := pio.StateMachineConfig{
		ClockDiv:      float32(hz) / smClockHz,
		WrapTarget:    d.offset + sequencerProgram.WrapTarget,
		Wrap:          d.offset + sequencerProgram.Wrap,
		SetPinBase:    d.pin,
		SetPinCount:   1,
		JmpPin:        d.pin,
		AutoPush:      true,
		PushThreshold: 8,
	}
	d.blk.InitStateMachine(d.sm, d.offset, cfg)

	d.blk.Put(d.sm, d.model.startPulseMicros()/startLoopCycles)
	d.blk.Put(d.sm, thresholdMicros/measureLoopCycles)

	// Drive the line low, then latch the two loop counts before the program
	// runs: Y holds the start pulse count while OSR keeps the threshold
	// count for reloading into X on every bit.
	d.blk.Exec(d.sm, pio.EncodeSet(pio.PinDirs, 1))
	d.blk.Exec(d.sm, pio.EncodePull(false, true))
	d.blk.Exec(d.sm, pio.EncodeMov(pio.Y, pio.OSR))
	d.blk.Exec(d.sm, pio.EncodePull(false, true))

	d.blk.SetEnabled(d.sm, true)
}

// Sense implements physic.SenseEnv. It runs a full measurement cycle,
// blocking for its duration.
//
// The sensors cannot keep up with more than one reading every 2 seconds.
// Sense does not pace callers, reading too often yields ErrTimeout.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.senseLocked(e)
}

func (d *Dev) senseLocked(e *physic.Env) error {
	d.StartMeasurement()
	return d.FinishMeasurement(e)
}

// SenseContinuous implements physic.SenseEnv. The minimum interval is 2
// seconds. To end the readings, call Halt.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < minInterval {
		return nil, fmt.Errorf("dht: invalid interval, minimum %s", minInterval)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		return nil, errors.New("dht: sense continuous already running")
	}

	d.shutdown = make(chan struct{})
	shutdown := d.shutdown
	ch := make(chan physic.Env, 16)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				d.mu.Lock()
				select {
				case <-shutdown:
					// Halted while waiting for the lock, the device may
					// already be deinitialized.
					d.mu.Unlock()
					return
				default:
				}
				e := physic.Env{}
				err := d.senseLocked(&e)
				d.mu.Unlock()
				if err == nil {
					select {
					case ch <- e:
					default:
						// Nobody is reading, drop the sample.
					}
				}
			}
		}
	}()
	return ch, nil
}

// Halt implements conn.Resource. It interrupts a running SenseContinuous
// operation and is safe to call repeatedly.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.haltLocked()
	return nil
}

func (d *Dev) haltLocked() {
	if d.shutdown != nil {
		close(d.shutdown)
		d.shutdown = nil
	}
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	if d.model == DHT11 {
		e.Temperature = physic.Celsius
		e.Humidity = physic.PercentRH
	} else {
		e.Temperature = physic.Celsius / 10
		e.Humidity = physic.MilliRH
	}
	e.Pressure = 0
}

// Deinit stops any running measurement and releases the state machine, the
// DMA channel and the program space claimed by New. The data line is left as
// an input.
//
// The device cannot be used afterwards. Deinit panics if called twice.
func (d *Dev) Deinit() {
	d.checkInit()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.haltLocked()
	d.ch.Abort()
	d.ch.Unclaim()
	d.blk.SetEnabled(d.sm, false)
	d.blk.SetPinDirs(d.sm, d.pin, 1, false)
	d.blk.UnclaimStateMachine(d.sm)
	d.blk.RemoveProgram(sequencerProgram, d.offset)
	d.blk = nil
}

func (d *Dev) checkInit() {
	if d.blk == nil {
		panic("dht: device not initialized")
	}
}

var bootTime = time.Now()

// micros mimics a hardware microsecond timer, wrapping at 2³².
func micros() uint32 {
	return uint32(time.Since(bootTime).Microseconds())
}

// yield lets the busy wait in FinishMeasurement share the processor.
var yield = runtime.Gosched

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
