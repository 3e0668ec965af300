// Copyright (c) 2021 Valentin Milea <valentin.milea@gmail.com>
//
// SPDX-License-Identifier: MIT

package chartsink

import (
	"regexp"
	"testing"
)

var boundaryRe = regexp.MustCompile(`^[a-f0-9]{60,70}$`)

func TestRandomBoundary(t *testing.T) {
	for range 100 {
		if got := randomBoundary(); !boundaryRe.MatchString(got) {
			t.Errorf("Boundary must match the expression %q: %s", boundaryRe.String(), got)
		}
	}
}
