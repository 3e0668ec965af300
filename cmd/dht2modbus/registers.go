// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package main

import (
	"errors"

	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/dht"
)

// Register block layout, relative to the configured base.
const (
	regHumidity    = 0 // relative humidity ×10
	regTemperature = 1 // temperature in °C ×10, two's complement
	regStatus      = 2 // status of the last reading

	registerCount = 3
)

// Status register values.
const (
	statusOK          = 0
	statusTimeout     = 1
	statusBadChecksum = 2
	statusError       = 3
)

// buildRegisters packs a reading into the register block. Readings are
// zeroed unless the status is OK.
func buildRegisters(e physic.Env, status uint16) [registerCount]uint16 {
	if status != statusOK {
		return [registerCount]uint16{regStatus: status}
	}
	deciRH := uint16(e.Humidity / physic.MilliRH)
	deciT := int16((e.Temperature - physic.ZeroCelsius) / (physic.Celsius / 10))
	return [registerCount]uint16{
		regHumidity:    deciRH,
		regTemperature: uint16(deciT),
		regStatus:      status,
	}
}

// packRegisters encodes registers big-endian, the payload layout of
// WriteMultipleRegisters.
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func statusCode(err error) uint16 {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, dht.ErrTimeout):
		return statusTimeout
	case errors.Is(err, dht.ErrBadChecksum):
		return statusBadChecksum
	default:
		return statusError
	}
}
