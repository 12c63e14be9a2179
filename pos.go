// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.15
//

package gorloc

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

//-------------------------------------------------------------------
// Point
//-------------------------------------------------------------------

// Point is a 2D or 3D position in an arbitrary linear unit.
// Anchor positions, estimated positions and initial guesses all share
// the same unit; distances are expressed in it as well.
type Point []float64

func NewPoint2D(x, y float64) Point {
	return Point{x, y}
}

func NewPoint3D(x, y, z float64) Point {
	return Point{x, y, z}
}

// Dims returns the dimensionality of the point (2 or 3).
func (p Point) Dims() int {
	return len(p)
}

// Check validity of point dimensionality
func ValidDims(dims int) bool {
	return dims == 2 || dims == 3
}

func (p Point) Clone() Point {
	if p == nil {
		return nil
	}
	q := make(Point, len(p))
	copy(q, p)
	return q
}

// DistanceTo returns the Euclidean distance between p and q.
func (p Point) DistanceTo(q Point) float64 {
	return floats.Distance(p, q, 2)
}

// Sub returns p - q as a new point.
func (p Point) Sub(q Point) Point {
	d := make(Point, len(p))
	for i := range p {
		d[i] = p[i] - q[i]
	}
	return d
}

// Unit returns the unit vector pointing from q towards p, or the zero
// vector when the two points coincide.
func (p Point) Unit(q Point) Point {
	d := p.Sub(q)
	n := floats.Norm(d, 2)
	if n == 0 {
		return d
	}
	floats.Scale(1/n, d)
	return d
}

// Read from string ("x,y" or "x,y,z")
func (p *Point) Set(s string) error {
	f := strings.Split(s, ",")
	if len(f) != 2 && len(f) != 3 {
		return fmt.Errorf("invalid point %q: need 2 or 3 comma separated coordinates", s)
	}
	q := make(Point, 0, len(f))
	for _, a := range f {
		v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return err
		}
		q = append(q, v)
	}
	*p = q
	return nil
}

// Convert to string
func (p Point) String() string {
	f := make([]string, len(p))
	for i, v := range p {
		f[i] = fmt.Sprintf("%.4f", v)
	}
	return strings.Join(f, " ")
}
