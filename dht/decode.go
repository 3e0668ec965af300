// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package dht

import (
	"errors"

	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/common"
)

var (
	// ErrTimeout means the sensor did not push a complete frame within the
	// measurement window. The usual causes are a missing sensor, a wrong
	// data pin, or reading faster than once every 2 seconds.
	ErrTimeout = errors.New("dht: timeout")
	// ErrBadChecksum means a complete frame arrived but its checksum didn't
	// match, typically from noise on a long wire.
	ErrBadChecksum = errors.New("dht: bad checksum")
)

// decodeHumidity converts the first two frame bytes.
//
// DHT11 and DHT12 split the value into integral and decimal bytes, the
// others use a 16-bit count of 0.1%RH steps.
func decodeHumidity(model Model, b0, b1 byte) physic.RelativeHumidity {
	var tenths int32
	switch model {
	case DHT11, DHT12:
		tenths = 10*int32(b0) + int32(b1)
	case DHT21, DHT22:
		tenths = int32(b0)<<8 | int32(b1)
	default:
		panic("dht: unknown model")
	}
	return physic.RelativeHumidity(tenths) * physic.MilliRH
}

// decodeTemperature converts the third and fourth frame bytes.
//
// DHT11 and DHT12 split the value into integral and decimal bytes with a
// sign flag in the decimal byte, the others use a 16-bit count of 0.1°C
// steps with the sign in the high bit. The DHT11 cannot report below
// freezing, so a set sign flag clamps to zero.
func decodeTemperature(model Model, b0, b1 byte) physic.Temperature {
	var tenths int32
	switch model {
	case DHT11:
		if b1&0x80 == 0 {
			tenths = 10*int32(b0) + int32(b1)
		}
	case DHT12:
		tenths = 10*int32(b0) + int32(b1&0x7f)
		if b1&0x80 != 0 {
			tenths = -tenths
		}
	case DHT21, DHT22:
		tenths = int32(b0&0x7f)<<8 | int32(b1)
		if b0&0x80 != 0 {
			tenths = -tenths
		}
	default:
		panic("dht: unknown model")
	}
	return physic.ZeroCelsius + (physic.Celsius/10)*physic.Temperature(tenths)
}

// EncodeFrame builds the 5-byte frame a sensor of the given model would send
// for the readings, including the checksum. It is the inverse of the decoding
// performed by FinishMeasurement and is meant for simulated sensors.
//
// Values are truncated to the model's wire resolution. A DHT11 cannot
// represent temperatures below freezing, so those encode as zero.
func EncodeFrame(model Model, humidity physic.RelativeHumidity, temperature physic.Temperature) [5]byte {
	dh := int32(humidity / physic.MilliRH)
	dt := int32((temperature - physic.ZeroCelsius) / (physic.Celsius / 10))
	neg := dt < 0
	if neg {
		dt = -dt
	}

	var f [5]byte
	switch model {
	case DHT11:
		if neg {
			dt = 0
			neg = false
		}
		fallthrough
	case DHT12:
		f[0] = byte(dh / 10)
		f[1] = byte(dh % 10)
		f[2] = byte(dt / 10)
		f[3] = byte(dt % 10)
		if neg {
			f[3] |= 0x80
		}
	case DHT21, DHT22:
		f[0] = byte(dh >> 8)
		f[1] = byte(dh)
		f[2] = byte(dt>>8) & 0x7f
		f[3] = byte(dt)
		if neg {
			f[2] |= 0x80
		}
	default:
		panic("dht: unknown model")
	}
	f[4] = common.Sum8(f[:4])
	return f
}
