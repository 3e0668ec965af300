// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package envchart draws rolling temperature and humidity series as a chart
// image.
//
// Samples are kept in a bounded window per sensor, so a chart that runs for
// days keeps a constant memory footprint. Temperature is drawn solid against
// the left axis, humidity dashed against the right one.
package envchart

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options available for the chart.
type Opts struct {
	// Width and Height of the rendered image in pixels. Defaults to
	// 800x400.
	Width, Height int
	// Window is how many samples are kept per sensor. Defaults to 180.
	Window int
	Title  string

	_ struct{}
}

type sample struct {
	at  time.Time
	env physic.Env
}

type series struct {
	name    string
	samples []sample
}

// Chart accumulates readings and renders them. It is safe for concurrent
// use.
type Chart struct {
	mu     sync.Mutex
	width  int
	height int
	window int
	title  string
	series []*series
	byName map[string]*series
}

// New returns an empty chart.
func New(opts *Opts) *Chart {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 400
	}
	window := opts.Window
	if window < 2 {
		window = 180
	}
	return &Chart{
		width:  width,
		height: height,
		window: window,
		title:  opts.Title,
		byName: map[string]*series{},
	}
}

// Add appends a reading to the named sensor's series, dropping the oldest
// sample once the window is full. Series appear in the order their names are
// first seen.
func (c *Chart) Add(name string, at time.Time, e physic.Env) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.byName[name]
	if s == nil {
		s = &series{name: name}
		c.byName[name] = s
		c.series = append(c.series, s)
	}
	s.samples = append(s.samples, sample{at: at, env: e})
	if n := len(s.samples) - c.window; n > 0 {
		s.samples = append(s.samples[:0], s.samples[n:]...)
	}
}

// Samples returns how many samples the named sensor currently holds.
func (c *Chart) Samples(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.byName[name]
	if s == nil {
		return 0
	}
	return len(s.samples)
}

// WritePNG renders the chart and writes it to path.
func (c *Chart) WritePNG(path string) error {
	return gg.SavePNG(path, c.Render())
}

var palette = [][3]float64{
	{0.86, 0.20, 0.27},
	{0.27, 0.51, 0.71},
	{0.18, 0.55, 0.34},
	{0.85, 0.55, 0.13},
	{0.46, 0.32, 0.64},
	{0.17, 0.63, 0.60},
}

var (
	fontOnce  sync.Once
	labelFace font.Face
	titleFace font.Face
)

func faces() (font.Face, font.Face) {
	fontOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			labelFace = basicfont.Face7x13
			titleFace = basicfont.Face7x13
			return
		}
		labelFace = truetype.NewFace(f, &truetype.Options{Size: 13})
		titleFace = truetype.NewFace(f, &truetype.Options{Size: 18})
	})
	return labelFace, titleFace
}

// Render draws the current state of the chart at the configured size.
func (c *Chart) Render() image.Image {
	return c.RenderSize(0, 0)
}

// RenderSize draws the current state of the chart at the given size in
// pixels. A width or height of 0 falls back to the configured one.
func (c *Chart) RenderSize(width, height int) image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	if width <= 0 {
		width = c.width
	}
	if height <= 0 {
		height = c.height
	}

	const (
		marginLeft   = 56.0
		marginRight  = 56.0
		marginTop    = 40.0
		marginBottom = 32.0
		ticks        = 5
	)
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	label, title := faces()

	plotW := float64(width) - marginLeft - marginRight
	plotH := float64(height) - marginTop - marginBottom

	if c.title != "" {
		dc.SetFontFace(title)
		dc.SetRGB(0.1, 0.1, 0.1)
		dc.DrawString(c.title, marginLeft, marginTop-14)
	}

	minT, maxT := c.tempScale()

	// Grid and the two scales.
	dc.SetFontFace(label)
	for i := 0; i <= ticks; i++ {
		y := marginTop + plotH*float64(i)/ticks
		dc.SetRGB(0.85, 0.85, 0.85)
		dc.SetLineWidth(1)
		dc.DrawLine(marginLeft, y, marginLeft+plotW, y)
		dc.Stroke()

		dc.SetRGB(0.35, 0.35, 0.35)
		t := maxT - (maxT-minT)*float64(i)/ticks
		dc.DrawStringAnchored(fmt.Sprintf("%.0f°C", t), marginLeft-6, y, 1, 0.35)
		dc.DrawStringAnchored(fmt.Sprintf("%d%%", 100-100*i/ticks), marginLeft+plotW+6, y, 0, 0.35)
	}

	tempY := func(e physic.Env) float64 {
		return marginTop + plotH*(maxT-e.Temperature.Celsius())/(maxT-minT)
	}
	humidityY := func(e physic.Env) float64 {
		pct := float64(e.Humidity) / float64(physic.PercentRH)
		return marginTop + plotH*(100-pct)/100
	}
	sampleX := func(s *series, i int) float64 {
		step := plotW / float64(c.window-1)
		return marginLeft + plotW - float64(len(s.samples)-1-i)*step
	}

	for si, s := range c.series {
		col := palette[si%len(palette)]
		dc.SetRGB(col[0], col[1], col[2])

		dc.SetLineWidth(2)
		for i := range s.samples {
			if i == 0 {
				dc.MoveTo(sampleX(s, i), tempY(s.samples[i].env))
			} else {
				dc.LineTo(sampleX(s, i), tempY(s.samples[i].env))
			}
		}
		dc.Stroke()

		dc.SetDash(4, 3)
		dc.SetLineWidth(1.5)
		for i := range s.samples {
			if i == 0 {
				dc.MoveTo(sampleX(s, i), humidityY(s.samples[i].env))
			} else {
				dc.LineTo(sampleX(s, i), humidityY(s.samples[i].env))
			}
		}
		dc.Stroke()
		dc.SetDash()

		if n := len(s.samples); n > 0 {
			dc.DrawCircle(sampleX(s, n-1), tempY(s.samples[n-1].env), 3)
			dc.Fill()
		}
	}

	// Legend on the title line, right aligned.
	legendW := 0.0
	for _, s := range c.series {
		w, _ := dc.MeasureString(s.name)
		legendW += 14 + w + 18
	}
	legendX := math.Max(marginLeft+plotW-legendW, marginLeft)
	for si, s := range c.series {
		col := palette[si%len(palette)]
		dc.SetRGB(col[0], col[1], col[2])
		dc.DrawRectangle(legendX, marginTop-23, 10, 10)
		dc.Fill()
		dc.SetRGB(0.2, 0.2, 0.2)
		dc.DrawString(s.name, legendX+14, marginTop-14)
		w, _ := dc.MeasureString(s.name)
		legendX += 14 + w + 18
	}

	if first, last, ok := c.timeSpan(); ok {
		dc.SetRGB(0.35, 0.35, 0.35)
		dc.DrawStringAnchored(first.Format("15:04:05"), marginLeft, marginTop+plotH+6, 0, 1)
		dc.DrawStringAnchored(last.Format("15:04:05"), marginLeft+plotW, marginTop+plotH+6, 1, 1)
	} else {
		dc.SetRGB(0.55, 0.55, 0.55)
		dc.DrawStringAnchored("waiting for data", marginLeft+plotW/2, marginTop+plotH/2, 0.5, 0.5)
	}

	return dc.Image()
}

// tempScale returns the temperature axis bounds in °C, padded to multiples
// of 5.
func (c *Chart) tempScale() (float64, float64) {
	minT, maxT := math.Inf(1), math.Inf(-1)
	for _, s := range c.series {
		for _, smp := range s.samples {
			v := smp.env.Temperature.Celsius()
			minT = math.Min(minT, v)
			maxT = math.Max(maxT, v)
		}
	}
	if minT > maxT {
		return -10, 40
	}
	minT = math.Floor(minT/5) * 5
	maxT = math.Ceil(maxT/5) * 5
	if maxT-minT < 5 {
		maxT = minT + 5
	}
	return minT, maxT
}

func (c *Chart) timeSpan() (time.Time, time.Time, bool) {
	var first, last time.Time
	ok := false
	for _, s := range c.series {
		if len(s.samples) == 0 {
			continue
		}
		if !ok || s.samples[0].at.Before(first) {
			first = s.samples[0].at
		}
		if !ok || s.samples[len(s.samples)-1].at.After(last) {
			last = s.samples[len(s.samples)-1].at
		}
		ok = true
	}
	return first, last, ok
}
