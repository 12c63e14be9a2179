// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

// Implements the non-robust mixed estimator: reading classification,
// one ranging solve, one rssi solve and covariance assembly, with no
// outlier rejection.

package gorloc

import (
	"fmt"
)

// MixedEstimator estimates position, transmitted power and path loss
// exponent from a heterogeneous reading batch in a single pass. It is
// the baseline pipeline and the refinement target of the robust
// estimators.
type MixedEstimator struct {
	estimatorCore
}

// NewMixedEstimator creates a mixed estimator for the given
// dimensionality (2 or 3)
func NewMixedEstimator(dims int) (*MixedEstimator, error) {
	core, err := newEstimatorCore(dims)
	if err != nil {
		return nil, err
	}
	return &MixedEstimator{estimatorCore: *core}, nil
}

// IsReady reports whether the current readings satisfy the validity
// rule for the enabled estimations
func (e *MixedEstimator) IsReady() bool {
	return e.validReadings()
}

// Estimate runs the pipeline over the current readings: position from
// the ranging view (or from the rssi view when the fallback is
// active), then power and path loss from the rssi view, then the
// combined covariance. The estimator stays locked for the duration of
// the call.
func (e *MixedEstimator) Estimate() (*Estimate, error) {
	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.unlock()

	if !e.validReadings() {
		return nil, fmt.Errorf("%w: %d ranging and %d rssi readings", ErrNotReady,
			e.split.rangingCount, e.split.rssiCount)
	}

	est, estPower, estPathLoss, err := solveMixed(e.split, &mixedParams{
		dims:         e.dims,
		initPos:      e.initPos,
		initPower:    e.initPower,
		initPathLoss: e.initPathLoss,
		estPower:     e.estPower,
		estPathLoss:  e.estPathLoss,
		useAnchorCov: e.useAnchorCov,
		homogeneous:  e.homogeneous,
	})
	if err != nil {
		return nil, err
	}

	e.storeEstimate(est, estPower, estPathLoss)
	return est, nil
}

// mixedParams bundles the inputs of one mixed solve so the robust
// estimators can reuse the pipeline with their own values.
type mixedParams struct {
	dims         int
	initPos      Point
	initPower    *float64
	initPathLoss float64
	estPower     bool
	estPathLoss  bool
	useAnchorCov bool
	homogeneous  bool
}

// solveMixed runs the two inner solvers over a classified batch and
// assembles the combined estimate. The returned flags report which
// trailing blocks the combined covariance carries.
func solveMixed(split *readingSplit, p *mixedParams) (*Estimate, bool, bool, error) {

	fallback := split.rssiFallback()

	est := &Estimate{
		PathLoss: p.initPathLoss,
		Fallback: fallback,
	}
	if p.initPower != nil {
		v := *p.initPower
		est.Power = &v
	}

	// ---------------------------------
	// Ranging stage (position)
	// ---------------------------------

	var rangingSol *RangingSol
	if !fallback {
		opt := NewRangingOpt()
		opt.Dims = p.dims
		opt.InitPos = p.initPos
		opt.Homogeneous = p.homogeneous
		opt.UseAnchorCov = p.useAnchorCov
		sol, err := CalcRanging(split.ranging, opt)
		if err != nil {
			return nil, false, false, fmt.Errorf("ranging stage: %w", err)
		}
		rangingSol = sol
		est.Pos = sol.Pos.Clone()
	}

	// ---------------------------------
	// Rssi stage (power, path loss, position on fallback)
	// ---------------------------------

	runRssi := fallback || p.estPower || p.estPathLoss
	var rssiSol *RssiSol
	if runRssi {
		opt := NewRssiOpt()
		opt.Dims = p.dims
		opt.EstPos = fallback
		opt.EstPower = p.estPower
		opt.EstPathLoss = p.estPathLoss
		opt.InitPower = p.initPower
		opt.InitPathLoss = p.initPathLoss
		opt.UseAnchorCov = p.useAnchorCov
		if fallback {
			opt.InitPos = p.initPos
		} else {
			opt.InitPos = est.Pos
		}
		sol, err := CalcRssi(split.rssi, opt)
		if err != nil {
			return nil, false, false, fmt.Errorf("rssi stage: %w", err)
		}
		rssiSol = sol
		if fallback {
			est.Pos = sol.Pos.Clone()
		}
		v := sol.Power
		est.Power = &v
		est.PathLoss = sol.PathLoss
	}

	// ---------------------------------
	// Covariance assembly
	// ---------------------------------

	switch {
	case fallback:
		// The rssi covariance already spans [position, power, path loss]
		est.Cov = rssiSol.Cov
	case rssiSol != nil:
		// Block diagonal of the ranging position block and the rssi
		// trailing block. Either block missing drops the whole matrix.
		est.Cov = composeBlockCov(rangingSol.Cov, rssiSol.Cov)
	default:
		est.Cov = rangingSol.Cov
	}

	return est, runRssi && p.estPower, runRssi && p.estPathLoss, nil
}
