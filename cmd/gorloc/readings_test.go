// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.14
//

package main

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/mkhts/gorloc"
)

func TestParseReadingsFormats(t *testing.T) {
	input := `
# survey of 2026-08-02
ranging 0.0 0.0  5.0 0.1
rssi    10.0 0.0 -62.5 1.0   # weak corner
dual    0.0 10.0 7.07 0.1 -58.0 1.0
`
	readings, err := parseReadings(strings.NewReader(input), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 3 {
		t.Fatalf("parsed %d readings, want 3", len(readings))
	}

	if readings[0].Kind() != gorloc.RANGING_ONLY {
		t.Fatalf("kind[0]=%v", readings[0].Kind())
	}
	if readings[1].Kind() != gorloc.RSSI_ONLY {
		t.Fatalf("kind[1]=%v", readings[1].Kind())
	}
	if readings[2].Kind() != gorloc.RANGING_AND_RSSI {
		t.Fatalf("kind[2]=%v", readings[2].Kind())
	}

	if *readings[0].Distance != 5.0 || *readings[0].DistanceSd != 0.1 {
		t.Fatalf("ranging values: %f %f", *readings[0].Distance, *readings[0].DistanceSd)
	}
	if *readings[1].Rssi != -62.5 {
		t.Fatalf("rssi level=%f", *readings[1].Rssi)
	}
	if readings[1].Anchor[0] != 10.0 || readings[1].Anchor[1] != 0.0 {
		t.Fatalf("rssi anchor=%v", readings[1].Anchor)
	}
	if *readings[2].Distance != 7.07 || *readings[2].Rssi != -58.0 {
		t.Fatalf("dual values: %f %f", *readings[2].Distance, *readings[2].Rssi)
	}
}

func TestParseReadingsErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"unknown kind", "sonar 0 0 5 0.1\n"},
		{"bad number", "ranging 0 zero 5 0.1\n"},
		{"missing field", "ranging 0 0 5\n"},
		{"extra field", "rssi 0 0 -60 1 1\n"},
		{"invalid reading", "ranging 0 0 -5 0.1\n"},
	}
	for _, c := range cases {
		if _, err := parseReadings(strings.NewReader(c.input), 2); err == nil {
			t.Fatalf("%s does not fail", c.name)
		} else if !strings.Contains(err.Error(), "line 1") {
			t.Fatalf("%s error lacks the line number: %v", c.name, err)
		}
	}

	if _, err := parseReadings(strings.NewReader("# comments only\n\n"), 2); err == nil {
		t.Fatal("empty input does not fail")
	}
}

func TestWriteReadingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	anchor := gorloc.Point{1.5, -2.25}
	if err := writeReading(&buf, "ranging", anchor, 5.5, 0.1); err != nil {
		t.Fatal(err)
	}
	if err := writeReading(&buf, "dual", anchor, 5.5, 0.1, -60.5, 1.0); err != nil {
		t.Fatal(err)
	}

	readings, err := parseReadings(&buf, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 2 {
		t.Fatalf("parsed %d readings, want 2", len(readings))
	}
	for i, r := range readings {
		for j := range anchor {
			if math.Abs(r.Anchor[j]-anchor[j]) > 1e-6 {
				t.Fatalf("reading %d anchor=%v", i, r.Anchor)
			}
		}
		if math.Abs(*r.Distance-5.5) > 1e-6 {
			t.Fatalf("reading %d distance=%f", i, *r.Distance)
		}
	}
	if math.Abs(*readings[1].Rssi+60.5) > 1e-6 {
		t.Fatalf("dual level=%f", *readings[1].Rssi)
	}
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("1.5, -2.0", 2)
	if err != nil {
		t.Fatal(err)
	}
	if p[0] != 1.5 || p[1] != -2.0 {
		t.Fatalf("point=%v", p)
	}

	if _, err := parsePoint("1,2,3", 2); err == nil {
		t.Fatal("coordinate count mismatch does not fail")
	}
	if _, err := parsePoint("1,up", 2); err == nil {
		t.Fatal("bad coordinate does not fail")
	}

	q, err := parsePoint("0,0,-1.25", 3)
	if err != nil {
		t.Fatal(err)
	}
	if q[2] != -1.25 {
		t.Fatalf("point=%v", q)
	}
}

func TestParseScores(t *testing.T) {
	scores, err := parseScores("0.9, 0.5,0.1")
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.9, 0.5, 0.1}
	for i := range want {
		if scores[i] != want[i] {
			t.Fatalf("scores=%v, want %v", scores, want)
		}
	}

	if _, err := parseScores("0.9,high"); err == nil {
		t.Fatal("bad score does not fail")
	}
}

func TestRingAnchor(t *testing.T) {
	for _, dims := range []int{2, 3} {
		for k := 0; k < 7; k++ {
			p := ringAnchor(dims, k, 7, 12.5)
			if p.Dims() != dims {
				t.Fatalf("dims=%d anchor=%v", dims, p)
			}
			norm := 0.0
			for _, c := range p {
				norm += c * c
			}
			norm = math.Sqrt(norm)
			if math.Abs(norm-12.5) > 1e-9 {
				t.Fatalf("dims=%d k=%d norm=%f, want 12.5", dims, k, norm)
			}
		}
	}

	a, b := ringAnchor(2, 0, 8, 10), ringAnchor(2, 1, 8, 10)
	if a.DistanceTo(b) < 1e-3 {
		t.Fatal("consecutive anchors coincide")
	}
}
