// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.16
//

// Implements the sequential robust estimator: a consensus search over
// the ranging view resolves the position first, then seeds a second
// search over the rssi view for power and path loss, and the phase
// covariances are assembled into one block matrix.

package gorloc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SequentialEstimator chains two consensus searches: the ranging phase
// resolves the position (skipped when the rssi fallback is active),
// the rssi phase resolves power and path loss seeded with that
// position (and the position itself on fallback). Each phase may use
// its own consensus strategy; both share one progress scale, the
// ranging phase reporting in [0, 0.5] and the rssi phase in [0.5, 1]
// whenever both run.
type SequentialEstimator struct {
	robustCore
	rssiMethod Method

	// Lazily built phase configurations
	rangingSub *seqSubConfig
	rssiSub    *seqSubConfig

	rangingInliers *InliersData
	rssiInliers    *InliersData
}

// seqSubConfig is the lazily built configuration of one phase's
// consensus search
type seqSubConfig struct {
	method Method
	count  int       // readings available to the phase
	min    int       // smallest reading count the phase can work with
	scores []float64 // quality scores projected onto the phase readings
}

// ready reports whether the phase has enough readings and, for the
// progressive methods, matching quality scores
func (c *seqSubConfig) ready() bool {
	if c.count < c.min {
		return false
	}
	if c.method.needsQualityScores() && len(c.scores) != c.count {
		return false
	}
	return true
}

// NewSequentialEstimator creates a sequential estimator for the given
// dimensionality (2 or 3). Both phases start with the given consensus
// strategy; SetRssiRobust switches the rssi phase independently.
func NewSequentialEstimator(dims int, method Method) (*SequentialEstimator, error) {
	core, err := newRobustCore(dims, method)
	if err != nil {
		return nil, err
	}
	return &SequentialEstimator{
		robustCore: *core,
		rssiMethod: method,
	}, nil
}

// RssiRobust returns the consensus strategy of the rssi phase
func (e *SequentialEstimator) RssiRobust() Method {
	return e.rssiMethod
}

// SetRssiRobust selects the consensus strategy of the rssi phase. The
// ranging phase follows SetRobust.
func (e *SequentialEstimator) SetRssiRobust(m Method) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !m.valid() {
		return fmt.Errorf("%w: robust method %d", ErrInvalidArgument, int(m))
	}
	e.rssiMethod = m
	return nil
}

// RangingInliers returns the inlier data of the ranging phase, nil
// when the phase did not run
func (e *SequentialEstimator) RangingInliers() *InliersData {
	return e.rangingInliers
}

// RssiInliers returns the inlier data of the rssi phase, nil when the
// phase did not run
func (e *SequentialEstimator) RssiInliers() *InliersData {
	return e.rssiInliers
}

// Inliers returns the phase inlier data combined over the original
// reading list
func (e *SequentialEstimator) Inliers() *InliersData {
	return combineInliers(e.split, len(e.readings), e.rangingInliers, e.rssiInliers)
}

// build configures both phase sub-estimators from the current
// readings and settings. Runs on every readiness check, so the checks
// see the latest readings even though they are nominally read only.
func (e *SequentialEstimator) build() {
	fallback := e.split.rssiFallback()
	e.rangingSub = &seqSubConfig{
		method: e.method,
		count:  e.split.rangingCount,
		min:    e.dims + 1,
		scores: partitionScores(e.qualityScores, e.split.rangingIdx),
	}
	e.rssiSub = &seqSubConfig{
		method: e.rssiMethod,
		count:  e.split.rssiCount,
		min:    minRssiReadings(e.dims, fallback, e.estPower, e.estPathLoss),
		scores: partitionScores(e.qualityScores, e.split.rssiIdx),
	}
}

// IsReady rebuilds the phase configurations and reports whether the
// phases that will run can run: on fallback only the rssi phase
// matters, otherwise the ranging phase must be ready and the rssi
// phase too when power or path loss estimation is requested.
func (e *SequentialEstimator) IsReady() bool {
	e.build()
	if e.split.rssiFallback() {
		return e.rssiSub.ready()
	}
	if !e.rangingSub.ready() {
		return false
	}
	if !e.estPower && !e.estPathLoss {
		return true
	}
	return e.rssiSub.ready()
}

// Estimate runs the two phases in order and assembles the combined
// estimate. The estimator stays locked for the duration of the call
// and always unlocks, also on failure.
func (e *SequentialEstimator) Estimate() (*Estimate, error) {
	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.unlock()

	if !e.IsReady() {
		return nil, fmt.Errorf("%w: %d ranging and %d rssi readings", ErrNotReady,
			e.split.rangingCount, e.split.rssiCount)
	}

	fallback := e.split.rssiFallback()
	runRanging := !fallback
	runRssi := fallback || e.estPower || e.estPathLoss

	if runRssi && !e.estPower && e.initPower == nil {
		return nil, fmt.Errorf("%w: transmitted power must be given when not estimated", ErrInvalidArgument)
	}

	est := &Estimate{
		PathLoss: e.initPathLoss,
		Fallback: fallback,
	}
	if e.initPower != nil {
		v := *e.initPower
		est.Power = &v
	}

	span := 1.0
	if runRanging && runRssi {
		span = 0.5
	}

	// ---------------------------------
	// Ranging phase
	// ---------------------------------

	var rangingInliers *InliersData
	var posCov *mat.SymDense
	if runRanging {
		tpl := NewRangingOpt()
		tpl.Dims = e.dims
		tpl.InitPos = e.initPos
		tpl.Homogeneous = e.homogeneous
		tpl.UseAnchorCov = e.useAnchorCov
		tpl.LinearOnly = e.initPos == nil
		tpl.NoChiTest = true

		prob := newRangingProblem(e.split.ranging, tpl, e.subsetSize)
		ropt := e.consensusOpt(e.rangingSub.method, e.rangingThreshold, e.rangingConfidence,
			e.rangingMaxIterations, e.rangingSub.scores, 0.0, span)
		rsol, err := CalcRobust(prob, ropt)
		if err != nil {
			return nil, fmt.Errorf("ranging phase: %w", err)
		}
		rangingInliers = rsol.Inliers

		pos, cov := refineRangingSol(e.split.ranging, rsol, tpl, e.refine, e.keepCovariance)
		est.Pos = pos
		posCov = cov
	}

	// ---------------------------------
	// Rssi phase
	// ---------------------------------

	var rssiInliers *InliersData
	var rssiCov *mat.SymDense
	if runRssi {
		tpl := NewRssiOpt()
		tpl.Dims = e.dims
		tpl.EstPos = fallback
		tpl.EstPower = e.estPower
		tpl.EstPathLoss = e.estPathLoss
		tpl.InitPower = e.initPower
		tpl.InitPathLoss = e.initPathLoss
		tpl.UseAnchorCov = e.useAnchorCov
		if fallback {
			tpl.InitPos = e.initPos
		} else {
			tpl.InitPos = est.Pos
		}
		tpl.LinearOnly = tpl.EstPos && tpl.InitPos == nil
		tpl.NoChiTest = true

		prob := newRssiProblem(e.split.rssi, tpl, e.subsetSize)
		ropt := e.consensusOpt(e.rssiSub.method, e.rssiThreshold, e.rssiConfidence,
			e.rssiMaxIterations, e.rssiSub.scores, 1.0-span, span)
		rsol, err := CalcRobust(prob, ropt)
		if err != nil {
			return nil, fmt.Errorf("rssi phase: %w", err)
		}
		rssiInliers = rsol.Inliers

		pos, power, pathLoss, cov := refineRssiSol(e.split.rssi, rsol, tpl, e.refine, e.keepCovariance)
		if fallback {
			est.Pos = pos
		}
		est.Power = &power
		est.PathLoss = pathLoss
		rssiCov = cov
	}

	// ---------------------------------
	// Covariance assembly
	// ---------------------------------

	switch {
	case fallback:
		est.Cov = rssiCov
	case runRssi:
		est.Cov = composeBlockCov(posCov, rssiCov)
	default:
		est.Cov = posCov
	}
	if est.Cov != nil {
		want := e.dims
		if runRssi && e.estPower {
			want++
		}
		if runRssi && e.estPathLoss {
			want++
		}
		if est.Cov.SymmetricDim() != want {
			return nil, fmt.Errorf("%w: assembled covariance is %d x %d (want %d x %d)",
				ErrNumerical, est.Cov.SymmetricDim(), est.Cov.SymmetricDim(), want, want)
		}
	}

	e.rangingInliers = rangingInliers
	e.rssiInliers = rssiInliers
	e.storeEstimate(est, runRssi && e.estPower, runRssi && e.estPathLoss)
	return est, nil
}
