// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package usage_tracker

import "testing"

func TestBlurSizeBoundaries(t *testing.T) {
	cases := []struct {
		in, want uint64
	}{
		{0, 0},
		{1, 10000},
		{10000, 10000},
		{10001, 20000},
		{999999, 1000000},
		{1000000, 1000000},
		{1000001, 2000000},
		{999999999, 1000000000},
		{1000000000, 1000000000},
		{1050000000, 1100000000},
		{1150000000, 1200000000},
	}
	for _, c := range cases {
		if got := BlurSize(c.in); got != c.want {
			t.Errorf("BlurSize(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
