// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vmilea/pico-dht/dht"
)

type Config struct {
	Sensors    []SensorConfig `yaml:"sensors"`
	IntervalMs int            `yaml:"interval_ms"`
	// Count is how many readings to take, 0 meaning until interrupted.
	Count      int    `yaml:"count"`
	Fahrenheit bool   `yaml:"fahrenheit"`
	ChartPNG   string `yaml:"chart_png"`
	// Listen serves the live chart over HTTP when set, e.g. "localhost:8080".
	Listen string `yaml:"listen"`
}

type SensorConfig struct {
	Name  string `yaml:"name"`
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

func defaultConfig() *Config {
	return &Config{
		Sensors: []SensorConfig{
			{Name: "garage", Model: "DHT22", Pin: 15},
			{Name: "attic", Model: "DHT11", Pin: 16},
		},
		IntervalMs: 2000,
	}
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
	if len(cfg.Sensors) == 0 {
		return errors.New("at least one sensor required")
	}
	seen := map[string]bool{}
	for i := range cfg.Sensors {
		sc := &cfg.Sensors[i]
		if sc.Name == "" {
			return fmt.Errorf("sensor %d: name required", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("sensor %q: duplicate name", sc.Name)
		}
		seen[sc.Name] = true
		if _, err := sc.model(); err != nil {
			return fmt.Errorf("sensor %q: %w", sc.Name, err)
		}
	}
	if cfg.IntervalMs != 0 && cfg.IntervalMs < 2000 {
		return fmt.Errorf("interval_ms %d too short, sensors need 2s between readings", cfg.IntervalMs)
	}
	if cfg.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

// normalize fills in defaults. It must be called after validate.
func (cfg *Config) normalize() {
	if cfg.IntervalMs == 0 {
		cfg.IntervalMs = 2000
	}
	for i := range cfg.Sensors {
		if cfg.Sensors[i].PullUp == nil {
			pullUp := true
			cfg.Sensors[i].PullUp = &pullUp
		}
	}
}

func (cfg *Config) interval() time.Duration {
	return time.Duration(cfg.IntervalMs) * time.Millisecond
}
