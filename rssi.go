// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

// Implements transmitted power, path loss exponent and position
// estimation from received power observations.

package gorloc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// CalcRssi estimates the enabled subset of {position, transmitted
// power, path loss exponent} from received power samples under the
// log-distance model. Disabled parameters are taken from the initial
// values and passed through to the solution.
//
// Parameters:
//   - samples: Received power samples, all with the same anchor dimensionality
//   - opt: Calculation options
//
// Returns:
//   - RssiSol: Parameters, covariance and quality metrics
//   - error: Any error encountered during processing
func CalcRssi(samples []RssiSample, opt *RssiOpt) (*RssiSol, error) {

	// Initialize result structure
	rslt := NewRssiSol()

	// Check inputs
	if err := checkRssiInput(samples, opt); err != nil {
		return nil, err
	}

	// Initial values (given, or from the linear stage)
	if err := initRssiValues(samples, opt, rslt); err != nil {
		return nil, fmt.Errorf("%w: initRssiValues() failed, err=%v", ErrNumerical, err)
	}

	// Linear-only mode stops here (no covariance)
	if opt.LinearOnly {
		return rslt, nil
	}

	// Solve observation equations iteratively
	if err := solveRssiEquations(samples, opt, rslt); err != nil {
		return nil, fmt.Errorf("%w: solveRssiEquations() failed, err=%v", ErrNumerical, err)
	}

	// Validate solution quality
	if err := validateRssiSol(rslt, opt); err != nil {
		return nil, fmt.Errorf("%w: validateRssiSol() failed, err=%v", ErrNumerical, err)
	}

	return rslt, nil
}

// RssiOpt contains options and parameters for the rssi solver
type RssiOpt struct {
	Dims         int      // Problem dimensionality (2 or 3)
	EstPos       bool     // Estimate the source position
	EstPower     bool     // Estimate the transmitted power
	EstPathLoss  bool     // Estimate the path loss exponent
	InitPos      Point    // Initial position. Required when EstPos is false
	InitPower    *float64 // Initial transmitted power [dBm]. Required when EstPower is false
	InitPathLoss float64  // Initial path loss exponent
	LinearOnly   bool     // If true, stop after the initializer (no covariance)
	UseAnchorCov bool     // If true, fold anchor position covariance into the weights
	NoChiTest    bool     // If true, skip the chi-square test on the final residuals
	ChiAlpha     float64  // Significance level of the chi-square test
}

// NewRssiOpt creates a new RssiOpt with default values
func NewRssiOpt() *RssiOpt {
	return &RssiOpt{
		Dims:         2,             // 2D problem
		EstPos:       false,         // Position is known
		EstPower:     true,          // Estimate the transmitted power
		EstPathLoss:  false,         // Path loss exponent is known
		InitPos:      nil,           // No position seed
		InitPower:    nil,           // Derive the power seed from the samples
		InitPathLoss: DEF_PATH_LOSS, // Free space
		LinearOnly:   false,         // Run the non-linear stage
		UseAnchorCov: false,         // Ignore anchor position covariance
		NoChiTest:    false,         // Perform the chi-square test
		ChiAlpha:     0.001,         // Significance level
	}
}

// numParams is the number of estimated parameters. The parameter
// vector is ordered [position, power, path loss].
func (o *RssiOpt) numParams() int {
	n := 0
	if o.EstPos {
		n += o.Dims
	}
	if o.EstPower {
		n++
	}
	if o.EstPathLoss {
		n++
	}
	return n
}

// minRssiSamples is the smallest sample count the options can solve.
// The linear position stage needs extra rows beyond the parameter
// count.
func minRssiSamples(opt *RssiOpt) int {
	min := opt.numParams()
	if opt.LinearOnly && opt.EstPos && opt.InitPos == nil {
		lin := opt.Dims + 1
		if opt.EstPower {
			lin = opt.Dims + 2
		}
		if lin > min {
			min = lin
		}
	}
	return min
}

// RssiSol contains the results of the rssi calculation
type RssiSol struct {
	Pos      Point         // Estimated (or pass-through) source position
	Power    float64       // Estimated (or pass-through) transmitted power [dBm]
	PathLoss float64       // Estimated (or pass-through) path loss exponent
	Cov      *mat.SymDense // Covariance over the estimated parameters, nil in linear-only mode
	Res      []float64     // Final residuals at convergence [dBm]
	Rms      float64       // Weighted residual RMS
	Loops    int           // Number of iterations used
	DesMat   mat.Matrix    // Design matrix
	ResVec   mat.Vector    // Residual vector
	WghMat   mat.Matrix    // Weight matrix
}

// NewRssiSol creates a new empty RssiSol structure
func NewRssiSol() *RssiSol {
	return &RssiSol{}
}

// checkRssiInput verifies sample and option consistency
func checkRssiInput(samples []RssiSample, opt *RssiOpt) error {
	if opt == nil {
		return fmt.Errorf("%w: nil options", ErrInvalidArgument)
	}
	if !ValidDims(opt.Dims) {
		return fmt.Errorf("%w: dimensionality %d", ErrInvalidArgument, opt.Dims)
	}
	if opt.numParams() == 0 {
		return fmt.Errorf("%w: nothing to estimate", ErrInvalidArgument)
	}
	if !opt.EstPos && opt.InitPos == nil {
		return fmt.Errorf("%w: position must be given when not estimated", ErrInvalidArgument)
	}
	if opt.InitPos != nil && opt.InitPos.Dims() != opt.Dims {
		return fmt.Errorf("%w: initial position dimensionality %d (want %d)", ErrInvalidArgument, opt.InitPos.Dims(), opt.Dims)
	}
	if !opt.EstPower && opt.InitPower == nil {
		return fmt.Errorf("%w: transmitted power must be given when not estimated", ErrInvalidArgument)
	}
	if opt.InitPathLoss < MIN_PATH_LOSS || opt.InitPathLoss > MAX_PATH_LOSS {
		return fmt.Errorf("%w: initial path loss exponent %f", ErrInvalidArgument, opt.InitPathLoss)
	}
	if min := minRssiSamples(opt); len(samples) < min {
		return fmt.Errorf("%w: %d rssi samples (want >= %d)", ErrInvalidArgument, len(samples), min)
	}
	for i, s := range samples {
		if s.Anchor.Dims() != opt.Dims {
			return fmt.Errorf("%w: sample %d anchor dimensionality %d (want %d)", ErrInvalidArgument, i, s.Anchor.Dims(), opt.Dims)
		}
		if s.Sd <= 0 {
			return fmt.Errorf("%w: sample %d standard deviation %f", ErrInvalidArgument, i, s.Sd)
		}
	}
	return nil
}

// initRssiValues seeds position, power and path loss for the iterative
// stage. Position comes from the caller, from a linear stage, or from
// the anchor centroid; power from the caller, the linear stage, or the
// inverted model at the seed position.
func initRssiValues(samples []RssiSample, opt *RssiOpt, rslt *RssiSol) error {

	rslt.PathLoss = opt.InitPathLoss
	powerSet := false

	// Position
	if !opt.EstPos || opt.InitPos != nil {
		rslt.Pos = opt.InitPos.Clone()
	} else {
		pos, power, err := linearRssiPosition(samples, opt)
		if err != nil {
			if opt.LinearOnly {
				return err
			}
			log.Debugf("linear rssi init failed (%v), falling back to anchor centroid", err)
			rslt.Pos = anchorCentroid(samples, opt.Dims)
		} else {
			rslt.Pos = pos
			if power != nil {
				rslt.Power = *power
				powerSet = true
			}
		}
	}

	// Transmitted power
	switch {
	case !opt.EstPower:
		rslt.Power = *opt.InitPower
	case powerSet:
		// Taken from the linear stage
	case opt.InitPower != nil:
		rslt.Power = *opt.InitPower
	default:
		rslt.Power = derivePower(samples, rslt.Pos, rslt.PathLoss)
	}

	return nil
}

// linearRssiPosition resolves the position seed without iteration.
// With known transmitted power every sample converts to a model
// distance and the problem reduces to linearized multilateration; with
// unknown power the lifted form solves position and power jointly.
func linearRssiPosition(samples []RssiSample, opt *RssiOpt) (Point, *float64, error) {
	dims := opt.Dims
	n := len(samples)
	if !opt.EstPower {
		if n < dims+1 {
			return nil, nil, fmt.Errorf("%d rssi samples (want >= %d)", n, dims+1)
		}
		anchors := make([]Point, n)
		dists := make([]float64, n)
		for i, s := range samples {
			anchors[i] = s.Anchor
			dists[i] = PathLossDistance(*opt.InitPower, opt.InitPathLoss, s.Rssi)
		}
		pos, err := inhomogeneousInit(anchors, dists, dims)
		return pos, nil, err
	}
	if n < dims+2 {
		return nil, nil, fmt.Errorf("%d rssi samples (want >= %d)", n, dims+2)
	}
	return liftedRssiInit(samples, opt.InitPathLoss, dims)
}

// liftedRssiInit solves position and transmitted power jointly for a
// known path loss exponent. With q_i = D0 10^(-rssi_i/(10 n)), each
// model distance is d_i = k q_i for the common scale k = 10^(power/(10 n)),
// and y = [p, |p|^2, k^2, 1] spans the null space of the stacked rows
// [-2 S_i, 1, -q_i^2, |S_i|^2].
func liftedRssiInit(samples []RssiSample, pathLoss float64, dims int) (Point, *float64, error) {
	n := len(samples)
	A := mat.NewDense(n, dims+3, nil)
	for i, s := range samples {
		q := D0 * math.Pow(10.0, -s.Rssi/(10.0*pathLoss))
		normSq := 0.0
		for j := 0; j < dims; j++ {
			A.Set(i, j, -2.0*s.Anchor[j])
			normSq += SQ(s.Anchor[j])
		}
		A.Set(i, dims, 1.0)
		A.Set(i, dims+1, -SQ(q))
		A.Set(i, dims+2, normSq)
	}
	y, err := SolveNullSpace(A)
	if err != nil {
		return nil, nil, err
	}
	scale := y[dims+2]
	if math.Abs(scale) < MIN_HOMOGENEOUS_SCALE {
		return nil, nil, fmt.Errorf("degenerate lifted solution, scale=%g", scale)
	}
	k2 := y[dims+1] / scale
	if k2 <= 0 {
		return nil, nil, fmt.Errorf("non-positive squared power scale %g", k2)
	}
	pos := make(Point, dims)
	for j := 0; j < dims; j++ {
		pos[j] = y[j] / scale
	}
	power := 10.0 * pathLoss * math.Log10(math.Sqrt(k2))
	return pos, &power, nil
}

// anchorCentroid is the last-resort position seed
func anchorCentroid(samples []RssiSample, dims int) Point {
	c := make(Point, dims)
	if len(samples) == 0 {
		return c
	}
	for _, s := range samples {
		for j := 0; j < dims; j++ {
			c[j] += s.Anchor[j]
		}
	}
	for j := 0; j < dims; j++ {
		c[j] /= float64(len(samples))
	}
	return c
}

// derivePower inverts the model at the seed position and averages over
// the samples.
func derivePower(samples []RssiSample, pos Point, pathLoss float64) float64 {
	if len(samples) == 0 || pos == nil {
		return DEF_TX_POWER
	}
	sum := 0.0
	for _, s := range samples {
		d := pos.DistanceTo(s.Anchor)
		if d < MIN_DISTANCE {
			d = MIN_DISTANCE
		}
		sum += s.Rssi + 10.0*pathLoss*math.Log10(d/D0)
	}
	return sum / float64(len(samples))
}

// solveRssiEquations refines the enabled parameters iteratively over
// the log-distance model with per-sample weights 1/sigma^2.
func solveRssiEquations(samples []RssiSample, opt *RssiOpt, rslt *RssiSol) (err error) {

	n := len(samples)
	dims := opt.Dims
	nx := opt.numParams()
	pos := rslt.Pos.Clone()
	power := rslt.Power
	pathLoss := rslt.PathLoss
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

		G := mat.NewDense(n, nx, nil)
		dr := mat.NewVecDense(n, nil)
		w := make([]float64, 0, n)

		for i, s := range samples {
			d := pos.DistanceTo(s.Anchor)
			if d < MIN_DISTANCE {
				d = MIN_DISTANCE
			}

			// Design matrix row over the enabled parameters
			col := 0
			if opt.EstPos {
				for j := 0; j < dims; j++ {
					G.Set(i, col, RssiDPos(pathLoss, pos, s.Anchor, j))
					col++
				}
			}
			if opt.EstPower {
				G.Set(i, col, 1.0)
				col++
			}
			if opt.EstPathLoss {
				G.Set(i, col, RssiDPathLoss(d))
			}

			// Residual: observed minus modeled received power
			dr.SetVec(i, s.Rssi-PathLossRssi(power, pathLoss, d))
			rslt.Res[i] = dr.AtVec(i)

			w = append(w, rssiWeight(&samples[i], pos, pathLoss, opt))
		}

		// Exit loop if already converged (values above were refreshed
		// at the converged parameters)
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
			log.Debugf("rssi SolveLS() failed, err=%v", err)
			return err
		}

		// Update parameters
		col := 0
		if opt.EstPos {
			for j := 0; j < dims; j++ {
				pos[j] += dx.AtVec(col)
				col++
			}
		}
		if opt.EstPower {
			power += dx.AtVec(col)
			col++
		}
		if opt.EstPathLoss {
			pathLoss += dx.AtVec(col)
			if pathLoss < MIN_PATH_LOSS {
				pathLoss = MIN_PATH_LOSS
			}
			if pathLoss > MAX_PATH_LOSS {
				pathLoss = MAX_PATH_LOSS
			}
		}
		rslt.Loops = loop + 1

		log.Tracef("rssi loop %d: pos=%v, power=%.3f, exponent=%.3f, |dx|=%g",
			loop+1, pos, power, pathLoss, mat.Norm(dx, 2))

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
	rslt.Power = power
	rslt.PathLoss = pathLoss
	rslt.Cov = toSymmetric(cov)
	rslt.DesMat = G2
	rslt.ResVec = dr2
	rslt.WghMat = W
	rslt.Rms = weightedRms(dr2, W)

	return nil
}

// rssiWeight computes a sample weight as the inverse effective
// variance. With UseAnchorCov, the anchor position covariance is
// projected along the model gradient and added to the reading
// variance.
func rssiWeight(s *RssiSample, pos Point, pathLoss float64, opt *RssiOpt) float64 {
	v := SQ(s.Sd)
	if opt.UseAnchorCov && s.AnchorCov != nil && pos != nil {
		g := make(Point, len(pos))
		for j := range g {
			g[j] = RssiDPos(pathLoss, pos, s.Anchor, j)
		}
		v += projectCov(s.AnchorCov, g)
	}
	w := 1.0 / v
	if w < MIN_WEIGHT {
		w = MIN_WEIGHT
	}
	return w
}

// validateRssiSol validates the solution quality using a chi-square
// test on the weighted residuals.
func validateRssiSol(rslt *RssiSol, opt *RssiOpt) error {
	if opt.NoChiTest {
		return nil
	}
	return chiSquareTest(rslt.ResVec, rslt.WghMat, opt.numParams(), opt.ChiAlpha)
}
