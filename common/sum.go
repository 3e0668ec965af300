// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package common contains functions used across multiple packages. For
// example, the modular checksum used by DHT sensor frames.
package common

// Sum8 returns the truncated mod-256 sum of the byte slice parameter. DHT
// sensors append this sum to every frame as the integrity check byte.
func Sum8(bytes []byte) byte {
	var sum byte
	for _, val := range bytes {
		sum += val
	}
	return sum
}
