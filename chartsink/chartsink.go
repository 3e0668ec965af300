// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package chartsink publishes a live environment chart over HTTP. Client
// requests get an initial render of the chart and an updated one every time
// a sample is added.
//
// The protocol used is "MJPEG" (https://en.wikipedia.org/wiki/Motion_JPEG)
// which is often used by IP cameras; browsers display the stream like a
// moving image. Because of its better suitability for computer-drawn
// graphics the PNG image format is used by default. JPEG can be selected via
// Options.Format or using the "format" URL parameter, and clients may
// request a custom render size with the "width" and "height" parameters.
package chartsink

import (
	"image/png"
	"net/http"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/vmilea/pico-dht/envchart"
)

// Options for chartsink devices.
type Options struct {
	// Format specifies the image format to send to clients.
	Format ImageFormat

	// Compression is the level passed to the PNG encoder.
	Compression png.CompressionLevel

	// JPEGQuality ranges from 1 to 100. Defaults to 90.
	JPEGQuality int
}

// Sink streams renders of an envchart.Chart to HTTP clients.
type Sink struct {
	chart         *envchart.Chart
	defaultFormat ImageFormat
	compression   png.CompressionLevel
	jpegQuality   int

	mu       sync.Mutex
	clients  map[*client]struct{}
	snapshot map[imageConfig][]byte
}

var _ conn.Resource = (*Sink)(nil)
var _ http.Handler = (*Sink)(nil)

// New creates a sink streaming renders of the given chart. opts may be nil.
func New(chart *envchart.Chart, opts *Options) *Sink {
	if chart == nil {
		panic("chartsink: nil chart")
	}
	if opts == nil {
		opts = &Options{}
	}
	quality := opts.JPEGQuality
	if quality == 0 {
		quality = 90
	}

	return &Sink{
		chart:         chart,
		defaultFormat: opts.Format,
		compression:   opts.Compression,
		jpegQuality:   quality,
		clients:       map[*client]struct{}{},
		snapshot:      map[imageConfig][]byte{},
	}
}

// String returns the name of the device.
func (s *Sink) String() string {
	return "ChartSink"
}

// Halt implements conn.Resource and terminates all running client requests
// asynchronously.
func (s *Sink) Halt() error {
	s.mu.Lock()
	s.terminateClientsLocked()
	s.mu.Unlock()

	return nil
}

// Add records a sample for the named sensor and pushes a fresh render to the
// connected clients.
func (s *Sink) Add(name string, at time.Time, e physic.Env) {
	s.chart.Add(name, at, e)
	s.Invalidate()
}

// Invalidate drops cached renders and wakes up the connected clients. Call
// it after modifying the chart directly.
func (s *Sink) Invalidate() {
	s.mu.Lock()
	s.chartChangedLocked()
	s.mu.Unlock()
}
