// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package bench

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/dht"
)

func TestRead(t *testing.T) {
	s, err := New("bench", dht.DHT22, 15, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	good, corrupt := 0, 0
	for range 2 * corruptEvery {
		var e physic.Env
		if err := s.Read(&e); err != nil {
			if !errors.Is(err, dht.ErrBadChecksum) {
				t.Fatalf("unexpected error: %v", err)
			}
			corrupt++
			continue
		}
		good++
		if c := e.Temperature.Celsius(); c < 15 || c > 27 {
			t.Errorf("temperature out of range: %.1f°C", c)
		}
		if h := float64(e.Humidity) / float64(physic.PercentRH); h < 35 || h > 75 {
			t.Errorf("humidity out of range: %.1f%%", h)
		}
	}
	if corrupt != 2 {
		t.Errorf("corrupt frames: got %d, want 2", corrupt)
	}
	if good != 2*corruptEvery-2 {
		t.Errorf("good frames: got %d", good)
	}
}

func TestEnvironmentPhases(t *testing.T) {
	a, err := New("a", dht.DHT22, 15, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New("b", dht.DHT22, 15, true, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	at := time.Unix(1700000000, 0)
	if a.environment(at) == b.environment(at) {
		t.Error("phases must separate the sensors")
	}
}

func TestModels(t *testing.T) {
	for _, m := range []dht.Model{dht.DHT11, dht.DHT12, dht.DHT21, dht.DHT22} {
		s, err := New("bench", m, 15, true, 0)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		var e physic.Env
		if err := s.Read(&e); err != nil {
			t.Errorf("%s: %v", m, err)
		}
		s.Close()
	}
}
