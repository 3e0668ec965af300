// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package chartsink

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log"
	"mime"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"sync"
)

// Render sizes requestable through URL parameters.
const (
	minRenderSize = 64
	maxRenderSize = 4096
)

// bufferPool stores reusable []byte instances.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return []byte(nil)
	},
}

type imageConfig struct {
	format ImageFormat

	// Render size in pixels, 0 meaning the chart's own.
	width  int
	height int
}

func (s *Sink) configFromQuery(values url.Values) (imageConfig, error) {
	cfg := imageConfig{
		format: s.defaultFormat,
	}

	if value := values.Get("format"); value != "" {
		format, err := ParseImageFormat(value)
		if err != nil {
			return imageConfig{}, err
		}
		cfg.format = format
	}

	var err error
	if cfg.width, err = sizeFromQuery(values, "width"); err != nil {
		return imageConfig{}, err
	}
	if cfg.height, err = sizeFromQuery(values, "height"); err != nil {
		return imageConfig{}, err
	}

	return cfg, nil
}

func sizeFromQuery(values url.Values, key string) (int, error) {
	value := values.Get(key)
	if value == "" {
		return 0, nil
	}

	size, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, value)
	}
	if size < minRenderSize || size > maxRenderSize {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", key, minRenderSize, maxRenderSize, size)
	}

	return size, nil
}

type client struct {
	refresh   chan struct{}
	terminate chan struct{}
}

func (s *Sink) chartChangedLocked() {
	for cfg, buffer := range s.snapshot {
		if buffer != nil {
			//lint:ignore SA6002 buffer is []byte and thus pointer-like
			bufferPool.Put(buffer)
		}

		delete(s.snapshot, cfg)
	}

	for c := range s.clients {
		select {
		case c.refresh <- struct{}{}:
		default:
		}
	}
}

func (s *Sink) terminateClientsLocked() {
	for c := range s.clients {
		select {
		case c.terminate <- struct{}{}:
		default:
		}
	}
}

func (s *Sink) encodeChartLocked(cfg imageConfig) ([]byte, error) {
	img := s.chart.RenderSize(cfg.width, cfg.height)
	buf := bytes.NewBuffer(bufferPool.Get().([]byte)[:0])

	switch cfg.format {
	case PNG:
		if err := pngEncoder.get(s.compression).Encode(buf, img); err != nil {
			return nil, err
		}

	case JPEG:
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: s.jpegQuality}); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unhandled image format %s", cfg.format)
	}

	return buf.Bytes(), nil
}

func (s *Sink) grabSnapshot(cfg imageConfig) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, ok := s.snapshot[cfg]
	if !ok {
		var err error

		encoded, err = s.encodeChartLocked(cfg)
		if err != nil {
			panic(fmt.Sprintf("encoding chart failed: %v", err))
		}
		s.snapshot[cfg] = encoded
	}

	return append(bufferPool.Get().([]byte)[:0], encoded...)
}

// ServeHTTP handles HTTP GET requests and sends a stream of chart renders in
// response. The sink options control the default format and clients can
// explicitly request PNG or JPEG images using the "format" parameter
// ("?format=png", "?format=jpeg") and a render size using the "width" and
// "height" parameters.
func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.Body.Close(); err != nil {
		log.Printf("Closing request body failed: %v", err)
	}

	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	cfg, err := s.configFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pw := makePartWriter(w)

	w.Header().Set("Content-Type",
		mime.FormatMediaType("multipart/x-mixed-replace", map[string]string{
			"boundary": pw.boundary,
		}))

	c := &client{
		refresh:   make(chan struct{}, 1),
		terminate: make(chan struct{}, 1),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	partHeaders := make(textproto.MIMEHeader)
	partHeaders.Set("Content-Type", mime.FormatMediaType(cfg.format.mimeType(), nil))
	partHeaders.Set("Content-Transfer-Encoding", "binary")

	for {
		payload := s.grabSnapshot(cfg)
		err := pw.writeFrame(partHeaders, payload)

		if payload != nil {
			//lint:ignore SA6002 buffer is []byte and thus pointer-like
			bufferPool.Put(payload)
		}

		if err != nil {
			// Errors cause the request to be silently terminated. There's no
			// good way to deliver an error message to the client within an
			// image stream.
			return
		}

		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		select {
		case <-c.refresh:
		case <-c.terminate:
			return
		case <-r.Context().Done():
			return
		}
	}
}
