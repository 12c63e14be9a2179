// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.12
//

package gorloc

import (
	"math"
	"testing"
)

func TestValidDims(t *testing.T) {
	for _, dims := range []int{2, 3} {
		if !ValidDims(dims) {
			t.Fatalf("dims=%d reported invalid", dims)
		}
	}
	for _, dims := range []int{-1, 0, 1, 4} {
		if ValidDims(dims) {
			t.Fatalf("dims=%d reported valid", dims)
		}
	}
}

func TestPointDistanceTo(t *testing.T) {
	p := Point{0, 0}
	q := Point{3, 4}
	if d := p.DistanceTo(q); math.Abs(d-5) > 1e-12 {
		t.Fatalf("distance=%f, want 5", d)
	}
	if d := q.DistanceTo(q); d != 0 {
		t.Fatalf("distance to itself=%f", d)
	}
	r := Point{1, 2, 2}
	if d := r.DistanceTo(Point{0, 0, 0}); math.Abs(d-3) > 1e-12 {
		t.Fatalf("3D distance=%f, want 3", d)
	}
}

func TestPointSubUnit(t *testing.T) {
	p := Point{3, 4}
	q := Point{1, 1}
	d := p.Sub(q)
	if d[0] != 2 || d[1] != 3 {
		t.Fatalf("sub=%v, want [2 3]", d)
	}

	u := Point{3, 4}.Unit(Point{0, 0})
	if math.Abs(u[0]-0.6) > 1e-12 || math.Abs(u[1]-0.8) > 1e-12 {
		t.Fatalf("unit=%v, want [0.6 0.8]", u)
	}

	z := Point{1, 1}.Unit(Point{1, 1})
	if z[0] != 0 || z[1] != 0 {
		t.Fatalf("unit of coincident points=%v, want zero", z)
	}
}

func TestPointClone(t *testing.T) {
	p := Point{1, 2}
	q := p.Clone()
	q[0] = 9
	if p[0] != 1 {
		t.Fatal("clone aliases the original")
	}
	var nilPoint Point
	if nilPoint.Clone() != nil {
		t.Fatal("clone of nil is not nil")
	}
}

func TestPointSetString(t *testing.T) {
	var p Point
	if err := p.Set("1.5, 2.0"); err != nil {
		t.Fatal(err)
	}
	if p.Dims() != 2 || p[0] != 1.5 || p[1] != 2.0 {
		t.Fatalf("parsed point=%v", p)
	}
	if err := p.Set("1"); err == nil {
		t.Fatal("single coordinate does not fail")
	}
	if err := p.Set("a,b"); err == nil {
		t.Fatal("non numeric coordinates do not fail")
	}

	if s := (Point{3, 4}).String(); s != "3.0000 4.0000" {
		t.Fatalf("string=%q", s)
	}
}
