// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

// Implements source position estimation from ranging observations.

package gorloc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// CalcRanging estimates the source position from ranging samples.
// It runs a linear initializer (unless an initial position is given)
// followed by iterative least squares over the full distance model.
//
// Parameters:
//   - samples: Ranging samples, all with the same anchor dimensionality
//   - opt: Calculation options
//
// Returns:
//   - RangingSol: Position, covariance and quality metrics
//   - error: Any error encountered during processing
func CalcRanging(samples []RangingSample, opt *RangingOpt) (*RangingSol, error) {

	// Initialize result structure
	rslt := NewRangingSol()

	// Check inputs
	if err := checkRangingInput(samples, opt); err != nil {
		return nil, err
	}

	// Initial position (given, or from the linear stage)
	if err := initRangingPosition(samples, opt, rslt); err != nil {
		return nil, fmt.Errorf("%w: initRangingPosition() failed, err=%v", ErrNumerical, err)
	}

	// Linear-only mode stops here (no covariance)
	if opt.LinearOnly {
		return rslt, nil
	}

	// Solve observation equations iteratively
	if err := solveRangingEquations(samples, opt, rslt); err != nil {
		return nil, fmt.Errorf("%w: solveRangingEquations() failed, err=%v", ErrNumerical, err)
	}

	// Validate solution quality
	if err := validateRangingSol(rslt, opt); err != nil {
		return nil, fmt.Errorf("%w: validateRangingSol() failed, err=%v", ErrNumerical, err)
	}

	return rslt, nil
}

// Calculation constants for the iterative solvers
const (
	MAX_LOOP_COUNT        = 30    // Maximum number of iteration loops
	CONVERGENCE_THRESHOLD = 1e-8  // Convergence threshold [unit]
	MIN_WEIGHT            = 1e-9  // Minimum weight value
	MIN_HOMOGENEOUS_SCALE = 1e-12 // Smallest usable scale component of a homogeneous solution
)

// RangingOpt contains options and parameters for the ranging solver
type RangingOpt struct {
	Dims         int     // Problem dimensionality (2 or 3)
	InitPos      Point   // Initial position. If nil, run the linear initializer
	Homogeneous  bool    // If true, use the homogeneous (lifted) linear initializer
	LinearOnly   bool    // If true, stop after the linear stage (no covariance)
	UseAnchorCov bool    // If true, fold anchor position covariance into the weights
	NoChiTest    bool    // If true, skip the chi-square test on the final residuals
	ChiAlpha     float64 // Significance level of the chi-square test
}

// NewRangingOpt creates a new RangingOpt with default values
func NewRangingOpt() *RangingOpt {
	return &RangingOpt{
		Dims:         2,     // 2D problem
		InitPos:      nil,   // Run the linear initializer
		Homogeneous:  false, // Inhomogeneous (reference anchor) linearization
		LinearOnly:   false, // Run the non-linear stage
		UseAnchorCov: false, // Ignore anchor position covariance
		NoChiTest:    false, // Perform the chi-square test
		ChiAlpha:     0.001, // Significance level
	}
}

// RangingSol contains the results of the ranging position calculation
type RangingSol struct {
	Pos    Point         // Estimated source position
	Cov    *mat.SymDense // Position covariance ((G^T W G)^-1), nil in linear-only mode
	Res    []float64     // Final residuals at convergence [unit]
	Rms    float64       // Weighted residual RMS
	Loops  int           // Number of iterations used
	DesMat mat.Matrix    // Design matrix
	ResVec mat.Vector    // Residual vector
	WghMat mat.Matrix    // Weight matrix
}

// NewRangingSol creates a new empty RangingSol structure
func NewRangingSol() *RangingSol {
	return &RangingSol{}
}

// checkRangingInput verifies sample and option consistency
func checkRangingInput(samples []RangingSample, opt *RangingOpt) error {
	if opt == nil {
		return fmt.Errorf("%w: nil options", ErrInvalidArgument)
	}
	if !ValidDims(opt.Dims) {
		return fmt.Errorf("%w: dimensionality %d", ErrInvalidArgument, opt.Dims)
	}
	if opt.InitPos != nil && opt.InitPos.Dims() != opt.Dims {
		return fmt.Errorf("%w: initial position dimensionality %d (want %d)", ErrInvalidArgument, opt.InitPos.Dims(), opt.Dims)
	}
	min := opt.Dims
	if opt.InitPos == nil {
		min = opt.Dims + 1 // The linear initializer consumes one equation
	}
	if len(samples) < min {
		return fmt.Errorf("%w: %d ranging samples (want >= %d)", ErrInvalidArgument, len(samples), min)
	}
	for i, s := range samples {
		if s.Anchor.Dims() != opt.Dims {
			return fmt.Errorf("%w: sample %d anchor dimensionality %d (want %d)", ErrInvalidArgument, i, s.Anchor.Dims(), opt.Dims)
		}
		if s.Sd <= 0 {
			return fmt.Errorf("%w: sample %d standard deviation %f", ErrInvalidArgument, i, s.Sd)
		}
		if s.Distance < 0 {
			return fmt.Errorf("%w: sample %d negative distance %f", ErrInvalidArgument, i, s.Distance)
		}
	}
	return nil
}

// initRangingPosition sets the starting position for the iterative
// stage: the caller-supplied initial position when present, otherwise
// the solution of the linearized multilateration system.
func initRangingPosition(samples []RangingSample, opt *RangingOpt, rslt *RangingSol) error {

	if opt.InitPos != nil {
		rslt.Pos = opt.InitPos.Clone()
		return nil
	}

	anchors := make([]Point, len(samples))
	dists := make([]float64, len(samples))
	for i, s := range samples {
		anchors[i] = s.Anchor
		dists[i] = s.Distance
	}

	// Lifted homogeneous form, when requested and enough rows exist
	if opt.Homogeneous && len(samples) >= opt.Dims+2 {
		pos, err := homogeneousInit(anchors, dists, opt.Dims)
		if err == nil {
			rslt.Pos = pos
			return nil
		}
		log.Debugf("homogeneous init failed (%v), falling back to inhomogeneous", err)
	}

	pos, err := inhomogeneousInit(anchors, dists, opt.Dims)
	if err != nil {
		return err
	}
	rslt.Pos = pos
	return nil
}

// inhomogeneousInit solves the linearized multilateration system in
// reference-anchor form: the last anchor is the reference, each
// remaining anchor contributes one equation
//
//	2 (S_k - S_i) p = d_i^2 - d_k^2 - |S_i|^2 + |S_k|^2
func inhomogeneousInit(anchors []Point, dists []float64, dims int) (Point, error) {
	n := len(anchors)
	if n < dims+1 {
		return nil, fmt.Errorf("%d anchors (want >= %d)", n, dims+1)
	}
	ref := anchors[n-1]
	refNormSq := 0.0
	for j := 0; j < dims; j++ {
		refNormSq += SQ(ref[j])
	}
	A := mat.NewDense(n-1, dims, nil)
	b := mat.NewVecDense(n-1, nil)
	for i := 0; i < n-1; i++ {
		normSq := 0.0
		for j := 0; j < dims; j++ {
			A.Set(i, j, 2.0*(ref[j]-anchors[i][j]))
			normSq += SQ(anchors[i][j])
		}
		b.SetVec(i, SQ(dists[i])-SQ(dists[n-1])-normSq+refNormSq)
	}

	x, err := SolveQR(A, b)
	if err != nil {
		return nil, err
	}
	pos := make(Point, dims)
	for j := 0; j < dims; j++ {
		pos[j] = x.AtVec(j)
	}
	return pos, nil
}

// homogeneousInit solves the lifted formulation: with y = [p, |p|^2, 1],
// every anchor gives 2 S_i p - |p|^2 + d_i^2 - |S_i|^2 = 0, and y spans
// the null space of the stacked system.
func homogeneousInit(anchors []Point, dists []float64, dims int) (Point, error) {
	n := len(anchors)
	A := mat.NewDense(n, dims+2, nil)
	for i, a := range anchors {
		normSq := 0.0
		for j := 0; j < dims; j++ {
			A.Set(i, j, 2.0*a[j])
			normSq += SQ(a[j])
		}
		A.Set(i, dims, -1.0)
		A.Set(i, dims+1, SQ(dists[i])-normSq)
	}
	y, err := SolveNullSpace(A)
	if err != nil {
		return nil, err
	}
	scale := y[dims+1]
	if math.Abs(scale) < MIN_HOMOGENEOUS_SCALE {
		return nil, fmt.Errorf("degenerate homogeneous solution, scale=%g", scale)
	}
	pos := make(Point, dims)
	for j := 0; j < dims; j++ {
		pos[j] = y[j] / scale
	}
	return pos, nil
}

// solveRangingEquations refines the position iteratively over the full
// distance model with per-sample weights 1/sigma^2.
func solveRangingEquations(samples []RangingSample, opt *RangingOpt, rslt *RangingSol) (err error) {

	n := len(samples)
	dims := opt.Dims
	pos := rslt.Pos.Clone()
	rslt.Res = make([]float64, n)

	// Covariance matrix
	var cov mat.Matrix

	// Design matrix
	var G2 mat.Matrix

	// Residual vector
	var dr2 mat.Vector

	// Weight matrix
	var W mat.Matrix

	// Flag to exit iteration loop
	exitLoop := false

	for loop := 0; loop < MAX_LOOP_COUNT; loop++ {

		// ---------------------------------
		// Setup equations
		// ---------------------------------

		G := mat.NewDense(n, dims, nil)
		dr := mat.NewVecDense(n, nil)
		w := make([]float64, 0, n)

		for i, s := range samples {
			d := pos.DistanceTo(s.Anchor)
			if d < MIN_DISTANCE {
				d = MIN_DISTANCE
			}

			// Design matrix row: d(dist)/d(pos) = (pos - anchor) / d
			los := pos.Unit(s.Anchor)
			for j := 0; j < dims; j++ {
				G.Set(i, j, los[j])
			}

			// Residual: observed minus modeled distance
			dr.SetVec(i, s.Distance-d)
			rslt.Res[i] = dr.AtVec(i)

			w = append(w, rangingWeight(&samples[i], pos, opt))
		}

		// Exit loop if already converged (values above were refreshed
		// at the converged position)
		if exitLoop {
			break
		}

		// ---------------------------------
		// Solve equations (least squares)
		// ---------------------------------

		var dx mat.Vector
		W = mat.NewDiagDense(len(w), w)
		G2 = G
		dr2 = dr
		dx, cov, err = SolveLS(G2, dr2, W)
		if err != nil {
			log.Debugf("ranging SolveLS() failed, err=%v", err)
			return err
		}

		// Update position
		for j := 0; j < dims; j++ {
			pos[j] += dx.AtVec(j)
		}
		rslt.Loops = loop + 1

		log.Tracef("ranging loop %d: pos=%v, |dx|=%g", loop+1, pos, mat.Norm(dx, 2))

		// Check convergence
		if mat.Norm(dx, 2) < CONVERGENCE_THRESHOLD {
			exitLoop = true // Run one more loop to refresh residuals
		}

		// Error if maximum loop count reached
		if !exitLoop && loop+1 == MAX_LOOP_COUNT {
			return fmt.Errorf("number of loops reached max")
		}

	} // for LOOP

	// Set values in result structure
	rslt.Pos = pos
	rslt.Cov = toSymmetric(cov)
	rslt.DesMat = G2
	rslt.ResVec = dr2
	rslt.WghMat = W
	rslt.Rms = weightedRms(dr2, W)

	return nil
}

// rangingWeight computes a sample weight as the inverse effective
// variance. With UseAnchorCov, the anchor position covariance is
// projected along the line of sight and added to the reading variance.
func rangingWeight(s *RangingSample, pos Point, opt *RangingOpt) float64 {
	v := SQ(s.Sd)
	if opt.UseAnchorCov && s.AnchorCov != nil {
		g := pos.Unit(s.Anchor)
		v += projectCov(s.AnchorCov, g)
	}
	w := 1.0 / v
	if w < MIN_WEIGHT {
		w = MIN_WEIGHT
	}
	return w
}

// validateRangingSol validates the solution quality using a chi-square
// test on the weighted residuals.
func validateRangingSol(rslt *RangingSol, opt *RangingOpt) error {
	if opt.NoChiTest {
		return nil
	}
	return chiSquareTest(rslt.ResVec, rslt.WghMat, opt.Dims, opt.ChiAlpha)
}
