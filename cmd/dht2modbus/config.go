// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vmilea/pico-dht/dht"
)

type Config struct {
	Sensor     SensorConfig `yaml:"sensor"`
	IntervalMs int          `yaml:"interval_ms"`
	// Endpoint is "tcp://host:port" or "rtu:///dev/ttyX".
	Endpoint string `yaml:"endpoint"`
	UnitID   uint8  `yaml:"unit_id"`
	// Register is the base of the three-register block.
	Register  uint16 `yaml:"register"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// BaudRate applies to rtu endpoints, 0 keeping the transport default.
	BaudRate int `yaml:"baud_rate"`
}

type SensorConfig struct {
	Model string `yaml:"model"`
	Pin   uint8  `yaml:"pin"`
	// PullUp enables the internal pull-up on the data line. Defaults to true.
	PullUp *bool `yaml:"pull_up"`
}

func (sc *SensorConfig) model() (dht.Model, error) {
	var m dht.Model
	err := m.Set(sc.Model)
	return m, err
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// validate checks configuration correctness without mutating it.
func (cfg *Config) validate() error {
	if _, err := cfg.Sensor.model(); err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	if cfg.Endpoint == "" {
		return errors.New("endpoint required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return errors.New("endpoint: tcp requires host:port")
		}
	case "rtu":
		if u.Path == "" {
			return errors.New("endpoint: rtu requires a device path")
		}
	default:
		return fmt.Errorf("endpoint: unsupported scheme %q", u.Scheme)
	}
	if cfg.IntervalMs != 0 && cfg.IntervalMs < 2000 {
		return fmt.Errorf("interval_ms %d too short, sensors need 2s between readings", cfg.IntervalMs)
	}
	if cfg.TimeoutMs < 0 {
		return errors.New("timeout_ms must not be negative")
	}
	if cfg.BaudRate < 0 {
		return errors.New("baud_rate must not be negative")
	}
	if cfg.Register > 0xffff-(registerCount-1) {
		return fmt.Errorf("register %d leaves no room for the %d-register block", cfg.Register, registerCount)
	}
	return nil
}

// normalize fills in defaults. It must be called after validate.
func (cfg *Config) normalize() {
	if cfg.IntervalMs == 0 {
		cfg.IntervalMs = 2000
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = 1000
	}
	if cfg.Sensor.PullUp == nil {
		pullUp := true
		cfg.Sensor.PullUp = &pullUp
	}
}

func (cfg *Config) interval() time.Duration {
	return time.Duration(cfg.IntervalMs) * time.Millisecond
}

func (cfg *Config) timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}
