// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package picodht is a container for the DHT sensor driver and its
// supporting packages.
//
// The driver itself lives in dht, on top of the pio and dma hardware
// contracts. piotest and dmatest implement those contracts in software so
// everything above them runs on any host.
package picodht
