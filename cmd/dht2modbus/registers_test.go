// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/dht"
)

func TestBuildRegisters(t *testing.T) {
	e := physic.Env{
		Temperature: physic.ZeroCelsius + 27_300*physic.MilliKelvin,
		Humidity:    65*physic.PercentRH + 2*physic.MilliRH,
	}
	if got, want := buildRegisters(e, statusOK), [registerCount]uint16{652, 273, 0}; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	e.Temperature = physic.ZeroCelsius - 10_300*physic.MilliKelvin
	if got, want := buildRegisters(e, statusOK), [registerCount]uint16{652, 0xff99, 0}; got != want {
		t.Errorf("negative temperature: got %v, want %v", got, want)
	}

	// Errors zero the readings so consumers never see stale values.
	if got, want := buildRegisters(e, statusTimeout), [registerCount]uint16{0, 0, 1}; got != want {
		t.Errorf("timeout: got %v, want %v", got, want)
	}
}

func TestPackRegisters(t *testing.T) {
	got := packRegisters([]uint16{0x0102, 0xff99, 3})
	want := []byte{0x01, 0x02, 0xff, 0x99, 0x00, 0x03}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestStatusCode(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want uint16
	}{
		{nil, statusOK},
		{dht.ErrTimeout, statusTimeout},
		{fmt.Errorf("sense: %w", dht.ErrBadChecksum), statusBadChecksum},
		{errors.New("broken wire"), statusError},
	} {
		if got := statusCode(tc.err); got != tc.want {
			t.Errorf("statusCode(%v): got %d, want %d", tc.err, got, tc.want)
		}
	}
}
