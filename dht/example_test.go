// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package dht_test

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/vmilea/pico-dht/dht"
	"github.com/vmilea/pico-dht/dma/dmatest"
	"github.com/vmilea/pico-dht/pio/piotest"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// The simulated programmable I/O block and DMA controller stand in for
	// the silicon implementations.
	blk := &piotest.Block{}
	dmac := &dmatest.Controller{}

	d, err := dht.New(blk, dmac, dht.DHT22, 15, nil)
	if err != nil {
		log.Fatalf("failed to initialize dht: %v", err)
	}
	defer d.Deinit()

	// Script the frame the simulated sensor answers with.
	frame := dht.EncodeFrame(dht.DHT22, 52*physic.PercentRH, physic.ZeroCelsius+23_400*physic.MilliKelvin)
	blk.Respond(0, piotest.Response{Data: frame[:]})

	// Read temperature and humidity from the sensor.
	e := physic.Env{}
	if err := d.Sense(&e); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%8s %9s\n", e.Temperature, e.Humidity)
}

func ExampleDev_StartMeasurement() {
	blk := &piotest.Block{}
	dmac := &dmatest.Controller{}

	d, err := dht.New(blk, dmac, dht.DHT21, 15, nil)
	if err != nil {
		log.Fatalf("failed to initialize dht: %v", err)
	}
	defer d.Deinit()

	frame := dht.EncodeFrame(dht.DHT21, 48*physic.PercentRH, physic.ZeroCelsius+19_800*physic.MilliKelvin)
	blk.Respond(0, piotest.Response{Data: frame[:]})

	// Kick off the exchange, then do other work while the sensor answers.
	d.StartMeasurement()

	e := physic.Env{}
	if err := d.FinishMeasurement(&e); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%8s %9s\n", e.Temperature, e.Humidity)
}
