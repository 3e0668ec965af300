// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package dht

import "fmt"

// Model selects the wire format and timing of the sensor.
type Model uint8

// Supported sensors.
const (
	DHT11 Model = iota
	DHT12
	DHT21 // also sold as AM2301
	DHT22 // also sold as AM2302
)

func (m Model) String() string {
	switch m {
	case DHT11:
		return "DHT11"
	case DHT12:
		return "DHT12"
	case DHT21:
		return "DHT21"
	case DHT22:
		return "DHT22"
	default:
		return "unknown"
	}
}

// Set sets the Model to a value represented by the string s. Set implements
// the flag.Value interface.
func (m *Model) Set(s string) error {
	switch s {
	case "DHT11":
		*m = DHT11
	case "DHT12":
		*m = DHT12
	case "DHT21", "AM2301":
		*m = DHT21
	case "DHT22", "AM2302":
		*m = DHT22
	default:
		return fmt.Errorf("unknown model %q: expected DHT11, DHT12, DHT21 or DHT22", s)
	}
	return nil
}

// startPulseMicros returns how long the data line is held low to request a
// measurement. The older sensors need a much longer wake-up pulse.
func (m Model) startPulseMicros() uint32 {
	switch m {
	case DHT11, DHT12:
		return 18000
	default:
		return 1000
	}
}
