// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// dht2modbus polls a DHT sensor and replicates the readings into Modbus
// holding registers, where a PLC or SCADA system picks them up.
package main

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goburrow/modbus"
	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/internal/bench"
)

type clientHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

func buildHandler(cfg *Config) (clientHandler, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return nil, errors.New("tcp endpoint requires host:port")
		}
		h := modbus.NewTCPClientHandler(u.Host)
		h.Timeout = cfg.timeout()
		h.SlaveId = cfg.UnitID
		return h, nil
	case "rtu":
		if u.Path == "" {
			return nil, errors.New("rtu endpoint requires a device path")
		}
		h := modbus.NewRTUClientHandler(u.Path)
		h.Timeout = cfg.timeout()
		h.SlaveId = cfg.UnitID
		if cfg.BaudRate != 0 {
			h.BaudRate = cfg.BaudRate
		}
		return h, nil
	}
	return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
}

func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: dht2modbus <config.yaml>")
	}
	cfg, err := loadConfig(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := cfg.validate(); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	cfg.normalize()

	model, err := cfg.Sensor.model()
	if err != nil {
		log.Fatalf("sensor setup failed: %v", err)
	}
	sensor, err := bench.New("dht", model, cfg.Sensor.Pin, *cfg.Sensor.PullUp, 0)
	if err != nil {
		log.Fatalf("sensor setup failed: %v", err)
	}
	defer sensor.Close()

	handler, err := buildHandler(cfg)
	if err != nil {
		log.Fatalf("modbus setup failed: %v", err)
	}
	if err := handler.Connect(); err != nil {
		log.Fatalf("modbus connect failed: %v", err)
	}
	defer handler.Close()
	client := modbus.NewClient(handler)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.interval())
	defer ticker.Stop()

	log.Printf("publishing %s readings to %s unit %d registers %d-%d",
		model, cfg.Endpoint, cfg.UnitID, cfg.Register, cfg.Register+registerCount-1)

	for {
		var e physic.Env
		err := sensor.Read(&e)
		if err != nil {
			log.Printf("read failed: %v", err)
		}
		regs := buildRegisters(e, statusCode(err))
		if _, err := client.WriteMultipleRegisters(cfg.Register, registerCount, packRegisters(regs[:])); err != nil {
			log.Printf("register write failed: %v", err)
		}

		select {
		case <-sig:
			return
		case <-ticker.C:
		}
	}
}
