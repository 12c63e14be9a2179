// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.16
//

// Implements the robust mixed estimator: two independent consensus
// searches wrapped around the ranging and rssi sub-problems, each
// followed by an inlier refinement stage.

package gorloc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	DEF_RANGING_THRESHOLD = 0.1 // Inlier boundary on distance residuals, in anchor position units
	DEF_RSSI_THRESHOLD    = 6.0 // Inlier boundary on received power residuals [dBm], one distance doubling at free space
)

// robustCore extends the estimator state with the consensus
// configuration shared by the robust estimator flavors.
type robustCore struct {
	estimatorCore
	method               Method
	rangingThreshold     float64
	rssiThreshold        float64
	rangingConfidence    float64
	rssiConfidence       float64
	rangingMaxIterations int
	rssiMaxIterations    int
	progressDelta        float64
	subsetSize           int // preliminary subset size, raised to the sub-problem minimum
	refine               bool
	keepCovariance       bool
	qualityScores        []float64
	seed                 int64
}

func newRobustCore(dims int, method Method) (*robustCore, error) {
	core, err := newEstimatorCore(dims)
	if err != nil {
		return nil, err
	}
	if !method.valid() {
		return nil, fmt.Errorf("%w: robust method %d", ErrInvalidArgument, int(method))
	}
	return &robustCore{
		estimatorCore:        *core,
		method:               method,
		rangingThreshold:     DEF_RANGING_THRESHOLD,
		rssiThreshold:        DEF_RSSI_THRESHOLD,
		rangingConfidence:    DEF_CONFIDENCE,
		rssiConfidence:       DEF_CONFIDENCE,
		rangingMaxIterations: DEF_MAX_ITERATIONS,
		rssiMaxIterations:    DEF_MAX_ITERATIONS,
		progressDelta:        DEF_PROGRESS_DELTA,
		refine:               true,
		keepCovariance:       true,
	}, nil
}

//-------------------------------------------------------------------
// Consensus configuration
//-------------------------------------------------------------------

// Robust returns the consensus strategy
func (e *robustCore) Robust() Method {
	return e.method
}

// SetRobust selects the consensus strategy
func (e *robustCore) SetRobust(m Method) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !m.valid() {
		return fmt.Errorf("%w: robust method %d", ErrInvalidArgument, int(m))
	}
	e.method = m
	return nil
}

// RangingThreshold returns the inlier boundary on distance residuals
func (e *robustCore) RangingThreshold() float64 {
	return e.rangingThreshold
}

// SetRangingThreshold sets the inlier boundary on distance residuals
func (e *robustCore) SetRangingThreshold(t float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if t <= 0 {
		return fmt.Errorf("%w: ranging threshold %f", ErrInvalidArgument, t)
	}
	e.rangingThreshold = t
	return nil
}

// RssiThreshold returns the inlier boundary on received power
// residuals
func (e *robustCore) RssiThreshold() float64 {
	return e.rssiThreshold
}

// SetRssiThreshold sets the inlier boundary on received power
// residuals
func (e *robustCore) SetRssiThreshold(t float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if t <= 0 {
		return fmt.Errorf("%w: rssi threshold %f", ErrInvalidArgument, t)
	}
	e.rssiThreshold = t
	return nil
}

// RangingConfidence returns the consensus confidence of the ranging
// search
func (e *robustCore) RangingConfidence() float64 {
	return e.rangingConfidence
}

// RssiConfidence returns the consensus confidence of the rssi search
func (e *robustCore) RssiConfidence() float64 {
	return e.rssiConfidence
}

// SetConfidence sets the probability that at least one sampled subset
// is outlier free, for both searches at once
func (e *robustCore) SetConfidence(c float64) error {
	if err := e.checkConfidence(c); err != nil {
		return err
	}
	e.rangingConfidence = c
	e.rssiConfidence = c
	return nil
}

// SetRangingConfidence sets the confidence of the ranging search only
func (e *robustCore) SetRangingConfidence(c float64) error {
	if err := e.checkConfidence(c); err != nil {
		return err
	}
	e.rangingConfidence = c
	return nil
}

// SetRssiConfidence sets the confidence of the rssi search only
func (e *robustCore) SetRssiConfidence(c float64) error {
	if err := e.checkConfidence(c); err != nil {
		return err
	}
	e.rssiConfidence = c
	return nil
}

func (e *robustCore) checkConfidence(c float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if c < 0 || c > 1 {
		return fmt.Errorf("%w: confidence %f outside [0,1]", ErrInvalidArgument, c)
	}
	return nil
}

// RangingMaxIterations returns the subset cap of the ranging search
func (e *robustCore) RangingMaxIterations() int {
	return e.rangingMaxIterations
}

// RssiMaxIterations returns the subset cap of the rssi search
func (e *robustCore) RssiMaxIterations() int {
	return e.rssiMaxIterations
}

// SetMaxIterations sets the subset cap of both searches at once
func (e *robustCore) SetMaxIterations(n int) error {
	if err := e.checkMaxIterations(n); err != nil {
		return err
	}
	e.rangingMaxIterations = n
	e.rssiMaxIterations = n
	return nil
}

// SetRangingMaxIterations sets the subset cap of the ranging search
// only
func (e *robustCore) SetRangingMaxIterations(n int) error {
	if err := e.checkMaxIterations(n); err != nil {
		return err
	}
	e.rangingMaxIterations = n
	return nil
}

// SetRssiMaxIterations sets the subset cap of the rssi search only
func (e *robustCore) SetRssiMaxIterations(n int) error {
	if err := e.checkMaxIterations(n); err != nil {
		return err
	}
	e.rssiMaxIterations = n
	return nil
}

func (e *robustCore) checkMaxIterations(n int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("%w: max iterations %d", ErrInvalidArgument, n)
	}
	return nil
}

// ProgressDelta returns the minimum progress change per notification
func (e *robustCore) ProgressDelta() float64 {
	return e.progressDelta
}

// SetProgressDelta sets the minimum progress change per notification
func (e *robustCore) SetProgressDelta(d float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if d < 0 || d > 1 {
		return fmt.Errorf("%w: progress delta %f outside [0,1]", ErrInvalidArgument, d)
	}
	e.progressDelta = d
	return nil
}

// SubsetSize returns the configured preliminary subset size
func (e *robustCore) SubsetSize() int {
	return e.subsetSize
}

// SetSubsetSize sets the preliminary subset size. Values below the
// sub-problem minimum are raised to it at search time; zero keeps the
// minimum.
func (e *robustCore) SetSubsetSize(n int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: subset size %d", ErrInvalidArgument, n)
	}
	e.subsetSize = n
	return nil
}

// RefineResult reports whether inliers are refit after the consensus
// search
func (e *robustCore) RefineResult() bool {
	return e.refine
}

// SetRefineResult selects whether inliers are refit after the
// consensus search
func (e *robustCore) SetRefineResult(enabled bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.refine = enabled
	return nil
}

// KeepCovariance reports whether the refinement covariance is kept
func (e *robustCore) KeepCovariance() bool {
	return e.keepCovariance
}

// SetKeepCovariance selects whether the refinement covariance is kept
func (e *robustCore) SetKeepCovariance(enabled bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.keepCovariance = enabled
	return nil
}

// QualityScores returns the per-reading quality scores
func (e *robustCore) QualityScores() []float64 {
	return e.qualityScores
}

// SetQualityScores sets per-reading quality scores, higher is more
// trustworthy. Required by the progressive methods; nil clears.
func (e *robustCore) SetQualityScores(scores []float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if scores != nil && len(scores) < e.minReadings() {
		return fmt.Errorf("%w: %d quality scores (want >= %d)", ErrInvalidArgument, len(scores), e.minReadings())
	}
	e.qualityScores = scores
	return nil
}

// Seed returns the random source seed of the consensus searches
func (e *robustCore) Seed() int64 {
	return e.seed
}

// SetSeed fixes the random source seed of the consensus searches.
// Zero seeds from the clock.
func (e *robustCore) SetSeed(seed int64) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.seed = seed
	return nil
}

// scoresReady reports whether the quality scores satisfy the selected
// method over the current readings
func (e *robustCore) scoresReady() bool {
	if !e.method.needsQualityScores() {
		return true
	}
	return e.qualityScores != nil && len(e.qualityScores) == len(e.readings)
}

// consensusOpt builds the engine options for one phase. base and span
// map the phase's own progress onto the shared scale.
func (e *robustCore) consensusOpt(method Method, threshold, confidence float64,
	maxIterations int, scores []float64, base, span float64) *RobustOpt {

	opt := NewRobustOpt()
	opt.Method = method
	opt.Threshold = threshold
	opt.Confidence = confidence
	opt.MaxIterations = maxIterations
	opt.QualityScores = scores
	opt.Seed = e.seed
	delta := e.progressDelta
	if span > 0 && span < 1 {
		// Each phase covers only a slice of the shared progress scale
		delta /= span
		if delta > 1 {
			delta = 1
		}
	}
	opt.ProgressDelta = delta
	opt.OnIteration = e.notifyIteration
	opt.OnProgress = func(frac float64) {
		e.notifyProgress(base + span*frac)
	}
	return opt
}

//-------------------------------------------------------------------
// Consensus sub-problems
//-------------------------------------------------------------------

// rangingProblem adapts the ranging position sub-problem to the
// consensus engine. Candidate vectors are positions.
type rangingProblem struct {
	samples []RangingSample
	opt     *RangingOpt
	subset  int
}

func newRangingProblem(samples []RangingSample, opt *RangingOpt, subsetSize int) *rangingProblem {
	min := opt.Dims + 1
	if subsetSize < min {
		subsetSize = min
	}
	return &rangingProblem{samples: samples, opt: opt, subset: subsetSize}
}

func (p *rangingProblem) NumReadings() int {
	return len(p.samples)
}

func (p *rangingProblem) SubsetSize() int {
	return p.subset
}

func (p *rangingProblem) Fit(idx []int) [][]float64 {
	sub := make([]RangingSample, len(idx))
	for k, i := range idx {
		sub[k] = p.samples[i]
	}
	sol, err := CalcRanging(sub, p.opt)
	if err != nil {
		log.Tracef("preliminary ranging fit discarded, err=%v", err)
		return nil
	}
	return [][]float64{sol.Pos}
}

func (p *rangingProblem) Residuals(v []float64) []float64 {
	pos := Point(v)
	res := make([]float64, len(p.samples))
	for i, s := range p.samples {
		res[i] = s.Distance - pos.DistanceTo(s.Anchor)
	}
	return res
}

// rssiProblem adapts the rssi sub-problem to the consensus engine.
// Candidate vectors carry the estimated parameters in the order
// [position, power, path loss]; pass-through parameters come from the
// option template.
type rssiProblem struct {
	samples []RssiSample
	opt     *RssiOpt
	subset  int
}

func newRssiProblem(samples []RssiSample, opt *RssiOpt, subsetSize int) *rssiProblem {
	min := minRssiSamples(opt)
	if subsetSize < min {
		subsetSize = min
	}
	return &rssiProblem{samples: samples, opt: opt, subset: subsetSize}
}

func (p *rssiProblem) NumReadings() int {
	return len(p.samples)
}

func (p *rssiProblem) SubsetSize() int {
	return p.subset
}

func (p *rssiProblem) Fit(idx []int) [][]float64 {
	sub := make([]RssiSample, len(idx))
	for k, i := range idx {
		sub[k] = p.samples[i]
	}
	sol, err := CalcRssi(sub, p.opt)
	if err != nil {
		log.Tracef("preliminary rssi fit discarded, err=%v", err)
		return nil
	}
	return [][]float64{encodeRssiParams(sol, p.opt)}
}

func (p *rssiProblem) Residuals(v []float64) []float64 {
	pos, power, pathLoss := decodeRssiParams(v, p.opt)
	res := make([]float64, len(p.samples))
	for i, s := range p.samples {
		d := pos.DistanceTo(s.Anchor)
		res[i] = s.Rssi - PathLossRssi(power, pathLoss, d)
	}
	return res
}

// encodeRssiParams packs the estimated parameters of a solution into
// a candidate vector
func encodeRssiParams(sol *RssiSol, opt *RssiOpt) []float64 {
	v := make([]float64, 0, opt.numParams())
	if opt.EstPos {
		v = append(v, sol.Pos...)
	}
	if opt.EstPower {
		v = append(v, sol.Power)
	}
	if opt.EstPathLoss {
		v = append(v, sol.PathLoss)
	}
	return v
}

// decodeRssiParams unpacks a candidate vector, falling back to the
// option template for pass-through parameters
func decodeRssiParams(v []float64, opt *RssiOpt) (Point, float64, float64) {
	pos := opt.InitPos.Clone()
	power := 0.0
	if opt.InitPower != nil {
		power = *opt.InitPower
	}
	pathLoss := opt.InitPathLoss
	k := 0
	if opt.EstPos {
		pos = Point(v[k : k+opt.Dims]).Clone()
		k += opt.Dims
	}
	if opt.EstPower {
		power = v[k]
		k++
	}
	if opt.EstPathLoss {
		pathLoss = v[k]
	}
	return pos, power, pathLoss
}

// partitionScores projects per-reading quality scores onto one
// sub-problem's samples
func partitionScores(scores []float64, idx []int) []float64 {
	if scores == nil {
		return nil
	}
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = scores[i]
	}
	return out
}

//-------------------------------------------------------------------
// Refinement stage
//-------------------------------------------------------------------

// refineRangingSol refits the position over the inlier samples with
// the consensus estimate as seed. Refinement failure of any kind falls
// back to the unrefined estimate with no covariance; it never aborts
// the estimation.
func refineRangingSol(samples []RangingSample, rsol *RobustSol, tpl *RangingOpt, refine, keepCov bool) (Point, *mat.SymDense) {
	pos := Point(rsol.Sol).Clone()
	if !refine || rsol.Inliers.NumInliers() == 0 {
		return pos, nil
	}
	sub := make([]RangingSample, 0, rsol.Inliers.NumInliers())
	for i, in := range rsol.Inliers.Mask {
		if in {
			sub = append(sub, samples[i])
		}
	}
	opt := *tpl
	opt.InitPos = pos
	opt.LinearOnly = false
	opt.NoChiTest = false
	sol, err := CalcRanging(sub, &opt)
	if err != nil {
		log.Debugf("ranging refinement failed, keeping consensus estimate, err=%v", err)
		return pos, nil
	}
	if !keepCov {
		return sol.Pos, nil
	}
	return sol.Pos, sol.Cov
}

// refineRssiSol refits the rssi parameters over the inlier samples
// with the consensus estimate as seed, with the same hard fallback as
// refineRangingSol.
func refineRssiSol(samples []RssiSample, rsol *RobustSol, tpl *RssiOpt, refine, keepCov bool) (Point, float64, float64, *mat.SymDense) {
	pos, power, pathLoss := decodeRssiParams(rsol.Sol, tpl)
	if !refine || rsol.Inliers.NumInliers() == 0 {
		return pos, power, pathLoss, nil
	}
	sub := make([]RssiSample, 0, rsol.Inliers.NumInliers())
	for i, in := range rsol.Inliers.Mask {
		if in {
			sub = append(sub, samples[i])
		}
	}
	opt := *tpl
	opt.InitPos = pos
	opt.InitPower = &power
	opt.InitPathLoss = pathLoss
	opt.LinearOnly = false
	opt.NoChiTest = false
	sol, err := CalcRssi(sub, &opt)
	if err != nil {
		log.Debugf("rssi refinement failed, keeping consensus estimate, err=%v", err)
		return pos, power, pathLoss, nil
	}
	if !keepCov {
		return sol.Pos, sol.Power, sol.PathLoss, nil
	}
	return sol.Pos, sol.Power, sol.PathLoss, sol.Cov
}

// combineInliers lifts the per-phase inlier data back onto the
// original reading list. A dual reading is an inlier only when both
// phases agree; its residual is the ranging one. Readings that no
// phase judged stay marked as outliers.
func combineInliers(split *readingSplit, total int, ranging, rssi *InliersData) *InliersData {
	if ranging == nil && rssi == nil {
		return nil
	}
	mask := make([]bool, total)
	res := make([]float64, total)
	seen := make([]bool, total)
	if ranging != nil {
		for k, i := range split.rangingIdx {
			mask[i] = ranging.Mask[k]
			res[i] = ranging.Residuals[k]
			seen[i] = true
		}
	}
	if rssi != nil {
		for k, i := range split.rssiIdx {
			if seen[i] {
				mask[i] = mask[i] && rssi.Mask[k]
			} else {
				mask[i] = rssi.Mask[k]
				res[i] = rssi.Residuals[k]
				seen[i] = true
			}
		}
	}
	return &InliersData{Mask: mask, Residuals: res}
}

//-------------------------------------------------------------------
// Robust mixed estimator
//-------------------------------------------------------------------

// RobustMixedEstimator estimates position, transmitted power and path
// loss exponent from a heterogeneous reading batch with outlier
// rejection: one consensus search over the ranging view for position,
// one over the rssi view for power and path loss (and position when
// the fallback is active), each refined over its inliers.
type RobustMixedEstimator struct {
	robustCore
	rangingInliers *InliersData
	rssiInliers    *InliersData
}

// NewRobustMixedEstimator creates a robust mixed estimator for the
// given dimensionality (2 or 3) and consensus strategy
func NewRobustMixedEstimator(dims int, method Method) (*RobustMixedEstimator, error) {
	core, err := newRobustCore(dims, method)
	if err != nil {
		return nil, err
	}
	return &RobustMixedEstimator{robustCore: *core}, nil
}

// IsReady reports whether the readings satisfy the validity rule and
// the selected method has the quality scores it needs
func (e *RobustMixedEstimator) IsReady() bool {
	return e.validReadings() && e.scoresReady()
}

// RangingInliers returns the inlier data of the ranging phase, nil
// when the phase did not run
func (e *RobustMixedEstimator) RangingInliers() *InliersData {
	return e.rangingInliers
}

// RssiInliers returns the inlier data of the rssi phase, nil when the
// phase did not run
func (e *RobustMixedEstimator) RssiInliers() *InliersData {
	return e.rssiInliers
}

// Inliers returns the phase inlier data combined over the original
// reading list
func (e *RobustMixedEstimator) Inliers() *InliersData {
	return combineInliers(e.split, len(e.readings), e.rangingInliers, e.rssiInliers)
}

// Estimate runs both consensus searches and assembles the combined
// estimate. The estimator stays locked for the duration of the call.
func (e *RobustMixedEstimator) Estimate() (*Estimate, error) {
	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.unlock()

	if !e.validReadings() {
		return nil, fmt.Errorf("%w: %d ranging and %d rssi readings", ErrNotReady,
			e.split.rangingCount, e.split.rssiCount)
	}
	if !e.scoresReady() {
		return nil, fmt.Errorf("%w: %v requires one quality score per reading", ErrNotReady, e.method)
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

	// Both phases share the progress scale
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
		ropt := e.consensusOpt(e.method, e.rangingThreshold, e.rangingConfidence,
			e.rangingMaxIterations, partitionScores(e.qualityScores, e.split.rangingIdx), 0.0, span)
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
		ropt := e.consensusOpt(e.method, e.rssiThreshold, e.rssiConfidence,
			e.rssiMaxIterations, partitionScores(e.qualityScores, e.split.rssiIdx), 1.0-span, span)
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

	e.rangingInliers = rangingInliers
	e.rssiInliers = rssiInliers
	e.storeEstimate(est, runRssi && e.estPower, runRssi && e.estPathLoss)
	return est, nil
}
