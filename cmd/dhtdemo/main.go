// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// dhtdemo reads a bench of simulated DHT sensors and displays the readings
// as terminal meters, a rolling chart served over HTTP and a PNG written on
// shutdown.
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/chartsink"
	"github.com/vmilea/pico-dht/envchart"
	"github.com/vmilea/pico-dht/envmeter"
	"github.com/vmilea/pico-dht/internal/bench"
)

func main() {
	cfg := defaultConfig()
	switch len(os.Args) {
	case 1:
	case 2:
		var err error
		if cfg, err = loadConfig(os.Args[1]); err != nil {
			log.Fatalf("config load failed: %v", err)
		}
	default:
		log.Fatal("usage: dhtdemo [config.yaml]")
	}

	if err := cfg.validate(); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	cfg.normalize()

	sensors := make([]*bench.Sensor, len(cfg.Sensors))
	for i, sc := range cfg.Sensors {
		model, err := sc.model()
		if err != nil {
			log.Fatalf("sensor setup failed (%s): %v", sc.Name, err)
		}
		s, err := bench.New(sc.Name, model, sc.Pin, *sc.PullUp, float64(i))
		if err != nil {
			log.Fatalf("sensor setup failed (%s): %v", sc.Name, err)
		}
		defer s.Close()
		sensors[i] = s
	}

	chart := envchart.New(&envchart.Opts{Title: "DHT bench"})
	sink := chartsink.New(chart, nil)
	if cfg.Listen != "" {
		go func() {
			log.Printf("live chart on http://%s", cfg.Listen)
			if err := http.ListenAndServe(cfg.Listen, sink); err != nil {
				log.Fatalf("http server failed: %v", err)
			}
		}()
	}

	meter := envmeter.New(&envmeter.Opts{Fahrenheit: cfg.Fahrenheit})
	defer meter.Halt()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.interval())
	defer ticker.Stop()

	readings := make([]envmeter.Reading, len(sensors))
loop:
	for n := 0; cfg.Count == 0 || n < cfg.Count; n++ {
		if n > 0 {
			select {
			case <-sig:
				break loop
			case <-ticker.C:
			}
		}

		now := time.Now()
		for i, s := range sensors {
			var e physic.Env
			err := s.Read(&e)
			readings[i] = envmeter.Reading{Name: s.Name, Env: e, Err: err}
			if err == nil {
				sink.Add(s.Name, now, e)
			}
		}
		if err := meter.Update(readings); err != nil {
			log.Fatalf("meter update failed: %v", err)
		}
	}

	_ = sink.Halt()
	if cfg.ChartPNG != "" {
		if err := chart.WritePNG(cfg.ChartPNG); err != nil {
			log.Fatalf("chart write failed: %v", err)
		}
		log.Printf("chart written to %s", cfg.ChartPNG)
	}
}
