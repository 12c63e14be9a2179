// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.12
//

package gorloc

import (
	"errors"
	"testing"
)

func TestNewReadingValidation(t *testing.T) {
	if _, err := NewRangingReading(Point{0, 0}, 5, 0.1); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRangingReading(Point{0, 0}, -1, 0.1); err == nil {
		t.Fatal("negative distance does not fail")
	}
	if _, err := NewRangingReading(Point{0, 0}, 5, 0); err == nil {
		t.Fatal("zero distance sd does not fail")
	}
	if _, err := NewRssiReading(Point{0, 0}, -60, -1); err == nil {
		t.Fatal("negative rssi sd does not fail")
	}
	if _, err := NewRssiReading(Point{0}, -60, 1); err == nil {
		t.Fatal("1D anchor does not fail")
	}
	if _, err := NewRangingAndRssiReading(Point{0, 0, 0}, 5, 0.1, -60, 1); err != nil {
		t.Fatal(err)
	}
}

func TestReadingKind(t *testing.T) {
	rg, _ := NewRangingReading(Point{0, 0}, 5, 0.1)
	rs, _ := NewRssiReading(Point{0, 0}, -60, 1)
	du, _ := NewRangingAndRssiReading(Point{0, 0}, 5, 0.1, -60, 1)

	if rg.Kind() != RANGING_ONLY {
		t.Fatalf("kind=%v, want RANGING_ONLY", rg.Kind())
	}
	if rs.Kind() != RSSI_ONLY {
		t.Fatalf("kind=%v, want RSSI_ONLY", rs.Kind())
	}
	if du.Kind() != RANGING_AND_RSSI {
		t.Fatalf("kind=%v, want RANGING_AND_RSSI", du.Kind())
	}
}

func TestClassifyReadings(t *testing.T) {
	rg, _ := NewRangingReading(Point{0, 0}, 5, 0.1)
	rs, _ := NewRssiReading(Point{1, 0}, -60, 1)
	du, _ := NewRangingAndRssiReading(Point{0, 1}, 5, 0.1, -60, 1)

	split, err := classifyReadings([]*Reading{rg, rs, du}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if split.rangingCount != 2 || split.rssiCount != 2 {
		t.Fatalf("counts ranging=%d rssi=%d, want 2 and 2", split.rangingCount, split.rssiCount)
	}
	// The dual reading appears in both partitions, at its original index
	if len(split.rangingIdx) != 2 || split.rangingIdx[0] != 0 || split.rangingIdx[1] != 2 {
		t.Fatalf("ranging indices=%v", split.rangingIdx)
	}
	if len(split.rssiIdx) != 2 || split.rssiIdx[0] != 1 || split.rssiIdx[1] != 2 {
		t.Fatalf("rssi indices=%v", split.rssiIdx)
	}

	// Dimension mismatch is rejected
	bad, _ := NewRangingReading(Point{0, 0, 0}, 5, 0.1)
	if _, err := classifyReadings([]*Reading{rg, bad}, 2); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("mixed dimensionality error=%v", err)
	}

	// An empty batch classifies fine (sufficiency is judged later)
	empty, err := classifyReadings(nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if empty.rangingCount != 0 || empty.rssiCount != 0 {
		t.Fatal("empty split has nonzero counts")
	}
}

func TestRssiFallbackRule(t *testing.T) {
	mk := func(nRanging, nRssi int) *readingSplit {
		var readings []*Reading
		for i := 0; i < nRanging; i++ {
			r, _ := NewRangingReading(Point{float64(i), 0}, 5, 0.1)
			readings = append(readings, r)
		}
		for i := 0; i < nRssi; i++ {
			r, _ := NewRssiReading(Point{float64(i), 1}, -60, 1)
			readings = append(readings, r)
		}
		split, err := classifyReadings(readings, 2)
		if err != nil {
			t.Fatal(err)
		}
		return split
	}

	// 2D: dims+1 = 3 ranging readings resolve the position
	if !mk(2, 5).rssiFallback() {
		t.Fatal("2 ranging readings should fall back to rssi positioning")
	}
	if mk(3, 0).rssiFallback() {
		t.Fatal("3 ranging readings should not fall back")
	}
}

func TestMinRssiReadings(t *testing.T) {
	for _, tc := range []struct {
		withPos, withPower, withPathLoss bool
		want                             int
	}{
		{false, false, false, 0},
		{false, true, false, 1},
		{false, true, true, 2},
		{true, false, false, 2},
		{true, true, false, 3},
		{true, true, true, 4},
	} {
		got := minRssiReadings(2, tc.withPos, tc.withPower, tc.withPathLoss)
		if got != tc.want {
			t.Fatalf("minRssiReadings(2, %v, %v, %v)=%d, want %d",
				tc.withPos, tc.withPower, tc.withPathLoss, got, tc.want)
		}
	}
}

func TestValidReadingsRule(t *testing.T) {
	mk := func(nRanging, nRssi int) *readingSplit {
		var readings []*Reading
		for i := 0; i < nRanging; i++ {
			r, _ := NewRangingReading(Point{float64(i), 0}, 5, 0.1)
			readings = append(readings, r)
		}
		for i := 0; i < nRssi; i++ {
			r, _ := NewRssiReading(Point{float64(i), 1}, -60, 1)
			readings = append(readings, r)
		}
		split, err := classifyReadings(readings, 2)
		if err != nil {
			t.Fatal(err)
		}
		return split
	}

	for _, tc := range []struct {
		nRanging, nRssi        int
		estPower, estPathLoss  bool
		want                   bool
	}{
		// Enough ranging, nothing needed from rssi
		{3, 0, false, false, true},
		// Power estimation needs one rssi reading
		{3, 0, true, false, false},
		{3, 1, true, false, true},
		// Power and path loss need two
		{3, 1, true, true, false},
		{3, 2, true, true, true},
		// Fallback: position, power come from the rssi data alone
		{0, 2, false, false, true},
		{0, 1, false, false, false},
		{2, 3, true, false, true},
		{2, 2, true, false, false},
		// Fallback with everything estimated: dims + 2
		{0, 4, true, true, true},
		{0, 3, true, true, false},
	} {
		got := mk(tc.nRanging, tc.nRssi).validReadings(tc.estPower, tc.estPathLoss)
		if got != tc.want {
			t.Fatalf("validReadings ranging=%d rssi=%d power=%v pathloss=%v: got %v, want %v",
				tc.nRanging, tc.nRssi, tc.estPower, tc.estPathLoss, got, tc.want)
		}
	}
}
