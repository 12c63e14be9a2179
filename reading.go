// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

package gorloc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// Reading
//-------------------------------------------------------------------

// Reading kind
type ReadingKind int

const (
	RANGING_ONLY = iota
	RSSI_ONLY
	RANGING_AND_RSSI
)

func (k ReadingKind) String() string {
	switch k {
	case RANGING_ONLY:
		return "ranging"
	case RSSI_ONLY:
		return "rssi"
	case RANGING_AND_RSSI:
		return "ranging+rssi"
	default:
		return "UNKNOWN!"
	}
}

// Reading is one observation of the radio source taken at an anchor
// with known position. A reading carries a distance estimate, a
// received power, or both; absent measurements are nil. All readings
// of one estimation batch refer to the same source and share the same
// anchor dimensionality.
type Reading struct {
	Anchor     Point
	AnchorCov  *mat.SymDense // anchor position covariance (optional)
	Distance   *float64      // distance estimate [unit]
	DistanceSd *float64      // distance standard deviation [unit]
	Rssi       *float64      // received power [dBm]
	RssiSd     *float64      // received power standard deviation [dBm]
}

func NewRangingReading(anchor Point, distance, distanceSd float64) (*Reading, error) {
	r := &Reading{Anchor: anchor, Distance: &distance, DistanceSd: &distanceSd}
	if err := r.check(anchor.Dims()); err != nil {
		return nil, err
	}
	return r, nil
}

func NewRssiReading(anchor Point, rssi, rssiSd float64) (*Reading, error) {
	r := &Reading{Anchor: anchor, Rssi: &rssi, RssiSd: &rssiSd}
	if err := r.check(anchor.Dims()); err != nil {
		return nil, err
	}
	return r, nil
}

func NewRangingAndRssiReading(anchor Point, distance, distanceSd, rssi, rssiSd float64) (*Reading, error) {
	r := &Reading{Anchor: anchor, Distance: &distance, DistanceSd: &distanceSd, Rssi: &rssi, RssiSd: &rssiSd}
	if err := r.check(anchor.Dims()); err != nil {
		return nil, err
	}
	return r, nil
}

// Kind reports which measurements the reading carries.
func (r *Reading) Kind() ReadingKind {
	switch {
	case r.hasRanging() && r.hasRssi():
		return RANGING_AND_RSSI
	case r.hasRanging():
		return RANGING_ONLY
	default:
		return RSSI_ONLY
	}
}

func (r *Reading) hasRanging() bool {
	return r.Distance != nil && r.DistanceSd != nil
}

func (r *Reading) hasRssi() bool {
	return r.Rssi != nil && r.RssiSd != nil
}

func (r *Reading) check(dims int) error {
	if !ValidDims(dims) || r.Anchor.Dims() != dims {
		return fmt.Errorf("%w: anchor dimensionality %d (want %d)", ErrInvalidArgument, r.Anchor.Dims(), dims)
	}
	if !r.hasRanging() && !r.hasRssi() {
		return fmt.Errorf("%w: reading carries no measurement", ErrInvalidArgument)
	}
	if r.hasRanging() {
		if *r.Distance < 0 {
			return fmt.Errorf("%w: negative distance %f", ErrInvalidArgument, *r.Distance)
		}
		if *r.DistanceSd <= 0 {
			return fmt.Errorf("%w: distance standard deviation %f", ErrInvalidArgument, *r.DistanceSd)
		}
	}
	if r.hasRssi() {
		if *r.RssiSd <= 0 {
			return fmt.Errorf("%w: rssi standard deviation %f", ErrInvalidArgument, *r.RssiSd)
		}
	}
	if r.AnchorCov != nil && r.AnchorCov.SymmetricDim() != dims {
		return fmt.Errorf("%w: anchor covariance is %d x %d (want %d x %d)",
			ErrInvalidArgument, r.AnchorCov.SymmetricDim(), r.AnchorCov.SymmetricDim(), dims, dims)
	}
	return nil
}

//-------------------------------------------------------------------
// Homogeneous sample views
//-------------------------------------------------------------------

// RangingSample is the ranging view of a reading, as consumed by the
// ranging model solver.
type RangingSample struct {
	Anchor    Point
	AnchorCov *mat.SymDense
	Distance  float64
	Sd        float64
}

// RssiSample is the received power view of a reading, as consumed by
// the rssi model solver.
type RssiSample struct {
	Anchor    Point
	AnchorCov *mat.SymDense
	Rssi      float64
	Sd        float64
}

//-------------------------------------------------------------------
// Reading classifier
//-------------------------------------------------------------------

// readingSplit is the outcome of classifying one heterogeneous batch:
// homogeneous sample views plus the index of each sample in the
// original reading list.
type readingSplit struct {
	dims         int
	rangingCount int
	rssiCount    int
	ranging      []RangingSample
	rssi         []RssiSample
	rangingIdx   []int
	rssiIdx      []int
}

// classifyReadings splits a heterogeneous reading list into ranging
// and rssi sample views. Dual readings contribute to both views.
func classifyReadings(readings []*Reading, dims int) (*readingSplit, error) {
	if !ValidDims(dims) {
		return nil, fmt.Errorf("%w: dimensionality %d", ErrInvalidArgument, dims)
	}
	s := &readingSplit{dims: dims}
	for i, r := range readings {
		if r == nil {
			return nil, fmt.Errorf("%w: reading %d is nil", ErrInvalidArgument, i)
		}
		if err := r.check(dims); err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		if r.hasRanging() {
			s.ranging = append(s.ranging, RangingSample{
				Anchor:    r.Anchor,
				AnchorCov: r.AnchorCov,
				Distance:  *r.Distance,
				Sd:        *r.DistanceSd,
			})
			s.rangingIdx = append(s.rangingIdx, i)
			s.rangingCount++
		}
		if r.hasRssi() {
			s.rssi = append(s.rssi, RssiSample{
				Anchor:    r.Anchor,
				AnchorCov: r.AnchorCov,
				Rssi:      *r.Rssi,
				Sd:        *r.RssiSd,
			})
			s.rssiIdx = append(s.rssiIdx, i)
			s.rssiCount++
		}
	}
	return s, nil
}

// rssiFallback reports whether position must come from the rssi data
// because too few ranging-capable readings exist.
func (s *readingSplit) rssiFallback() bool {
	return s.rangingCount < s.dims+1
}

// minRssiReadings is the number of rssi readings needed to solve for
// the enabled subset of {position, power, path loss}.
func minRssiReadings(dims int, withPos, withPower, withPathLoss bool) int {
	n := 0
	if withPos {
		n += dims
	}
	if withPower {
		n++
	}
	if withPathLoss {
		n++
	}
	return n
}

// validReadings is the readiness rule for one batch: ranging and rssi
// both sufficient, or rssi alone when the fallback is active, or
// ranging alone when neither power nor path loss is requested.
func (s *readingSplit) validReadings(estPower, estPathLoss bool) bool {
	if s.rssiFallback() {
		return s.rssiCount >= minRssiReadings(s.dims, true, estPower, estPathLoss)
	}
	if !estPower && !estPathLoss {
		return true
	}
	return s.rssiCount >= minRssiReadings(s.dims, false, estPower, estPathLoss)
}
