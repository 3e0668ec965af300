// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package envmeter renders environment readings as colored bars on the
// terminal (stdout) using ANSI color codes.
//
// Useful to keep an eye on a bench full of sensors without a graphical
// session. Every update redraws in place, one row per sensor.
package envmeter

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// Reading is one row of the meter.
type Reading struct {
	Name string
	Env  physic.Env
	// Err replaces the bars when a sensor did not answer.
	Err error
}

// Opts represents the options available for the meter.
type Opts struct {
	// Width is the bar length in character cells. Defaults to 20.
	Width int
	// MinTemp and MaxTemp bound the temperature scale. Both zero selects
	// -10°C to 40°C.
	MinTemp, MaxTemp physic.Temperature
	// Fahrenheit adds a °F column to the readout.
	Fahrenheit bool
	Palette    *ansi256.Palette
	// Writer overrides the output, which is the colorable stdout wrapper by
	// default.
	Writer io.Writer

	_ struct{}
}

// Dev draws sensor readings at the console.
type Dev struct {
	w                io.Writer
	width            int
	minTemp, maxTemp physic.Temperature
	fahrenheit       bool
	palette          ansi256.Palette

	rows int
	buf  bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.Writer
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	width := opts.Width
	if width < 2 {
		width = 20
	}
	minTemp, maxTemp := opts.MinTemp, opts.MaxTemp
	if minTemp == 0 && maxTemp == 0 {
		minTemp = physic.ZeroCelsius - 10*physic.Celsius
		maxTemp = physic.ZeroCelsius + 40*physic.Celsius
	}
	return &Dev{
		w:          w,
		width:      width,
		minTemp:    minTemp,
		maxTemp:    maxTemp,
		fahrenheit: opts.Fahrenheit,
		palette:    *p,
	}
}

func (d *Dev) String() string {
	return "EnvMeter"
}

// Halt implements conn.Resource.
//
// It resets the terminal colors so the shell is not corrupted.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Update redraws the meter with the given readings, overwriting the
// previous frame.
func (d *Dev) Update(readings []Reading) error {
	// Single buffer, single write: avoids flicker and per-call allocations.
	d.buf.Reset()
	if d.rows > 0 {
		fmt.Fprintf(&d.buf, "\033[%dA", d.rows)
	}
	for _, r := range readings {
		d.buf.WriteString("\r\033[0m\033[K")
		fmt.Fprintf(&d.buf, "%-10s ", r.Name)
		if r.Err != nil {
			fmt.Fprintf(&d.buf, "\033[31m%v", r.Err)
		} else {
			d.drawRow(r.Env)
		}
		d.buf.WriteString("\033[0m\n")
	}
	d.rows = len(readings)
	_, err := d.buf.WriteTo(d.w)
	return err
}

func (d *Dev) drawRow(e physic.Env) {
	span := int64(d.maxTemp - d.minTemp)
	filled := clamp(int(int64(e.Temperature-d.minTemp)*int64(d.width)/span), d.width)
	for i := 0; i < d.width; i++ {
		_, _ = io.WriteString(&d.buf, d.palette.Block(d.tempColor(i, i < filled)))
	}

	d.buf.WriteString("\033[0m ")
	filled = clamp(int(int64(e.Humidity)*int64(d.width)/int64(100*physic.PercentRH)), d.width)
	for i := 0; i < d.width; i++ {
		c := color.NRGBA{16, 16, 24, 255}
		if i < filled {
			c = color.NRGBA{0, 160, 255, 255}
		}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}

	pct := float64(e.Humidity) / float64(physic.PercentRH)
	fmt.Fprintf(&d.buf, "\033[0m %6.1f°C", e.Temperature.Celsius())
	if d.fahrenheit {
		fmt.Fprintf(&d.buf, " %6.1f°F", e.Temperature.Fahrenheit())
	}
	fmt.Fprintf(&d.buf, " %5.1f%%", pct)
}

// tempColor fades the scale from blue to red. Cells past the reading stay
// dark.
func (d *Dev) tempColor(i int, filled bool) color.NRGBA {
	r := byte(255 * i / (d.width - 1))
	b := 255 - r
	if !filled {
		return color.NRGBA{r / 8, 0, b / 8, 255}
	}
	return color.NRGBA{r, 0, b, 255}
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

var _ conn.Resource = &Dev{}
var _ fmt.Stringer = &Dev{}
