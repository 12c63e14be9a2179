// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.15
//

// Implements the robust minimal-subset consensus engine shared by the
// ranging and rssi sub-problems.

package gorloc

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/slices"
)

// CalcRobust runs a hypothesize-and-score consensus search over the
// problem's readings: minimal subsets are drawn, fitted into candidate
// parameter vectors, and scored against all readings until further
// improvement becomes statistically implausible at the requested
// confidence, the iteration cap is reached, or the sample space is
// depleted.
//
// Parameters:
//   - prob: Adapter exposing the reading count, subset size, subset fitting and residual evaluation
//   - opt: Calculation options
//
// Returns:
//   - RobustSol: Best parameter vector, inlier data and iteration count
//   - error: Any error encountered during processing
func CalcRobust(prob ConsensusProblem, opt *RobustOpt) (*RobustSol, error) {

	// Check inputs
	if err := checkRobustInput(prob, opt); err != nil {
		return nil, err
	}

	n := prob.NumReadings()
	m := prob.SubsetSize()

	// Random source (fixed seed gives reproducible searches)
	seed := opt.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))

	// Subset sampler
	var sampler subsetSampler
	if opt.Method.progressiveSampling() {
		sampler = newProgressiveSampler(opt.QualityScores, m, rnd)
	} else {
		sampler = newUniformSampler(n, m, rnd)
	}

	progress := newProgressReporter(opt.ProgressDelta, opt.OnProgress)

	// ---------------------------------
	// Sampling loop
	// ---------------------------------

	var best *robustCandidate
	bound := opt.MaxIterations
	iter := 0

	for ; iter < opt.MaxIterations && iter < bound; iter++ {

		idx, ok := sampler.next()
		if !ok {
			log.Debugf("robust sample space depleted after %d iterations", iter)
			break
		}

		if opt.OnIteration != nil {
			opt.OnIteration(iter + 1)
		}

		// A numerical failure inside the preliminary fit yields no
		// candidates for this subset and is not a global failure
		for _, sol := range prob.Fit(idx) {
			cand := scoreCandidate(prob, sol, n, m, opt)
			if cand == nil {
				continue
			}
			if best == nil || cand.score < best.score {
				best = cand
				bound = adaptiveIterBound(cand.numInliers, n, m, opt.Confidence, opt.MaxIterations)
				log.Tracef("robust iter %d: new best, inliers=%d/%d, score=%g, bound=%d",
					iter+1, cand.numInliers, n, cand.score, bound)
			}
		}

		limit := bound
		if opt.MaxIterations < limit {
			limit = opt.MaxIterations
		}
		progress.update(float64(iter+1) / float64(limit))
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no candidate converged after %d iterations", ErrRobustEstimation, iter)
	}

	progress.update(1.0)

	// Set values in result structure
	rslt := NewRobustSol()
	rslt.Sol = best.sol
	rslt.Method = opt.Method
	rslt.Iterations = iter
	rslt.Inliers = &InliersData{
		Mask:      best.mask,
		Residuals: best.residuals,
	}

	return rslt, nil
}

const (
	DEF_CONFIDENCE     = 0.99   // Probability that at least one subset is outlier free
	DEF_MAX_ITERATIONS = 5000   // Hard cap on the number of subsets per search
	DEF_PROGRESS_DELTA = 0.05   // Minimum progress change per notification
	MEDIAN_SIGMA_SCALE = 1.4826 // Consistency factor relating MAD-style medians to a Gaussian sigma
	MEDIAN_INLIER_BAND = 2.5    // Inlier boundary in sigmas for the median scoring methods
	MIN_MEDIAN_SIGMA   = 1e-6   // Floor on the median-derived sigma, in residual units
)

// Method identifies the consensus strategy of a robust search
type Method int

const (
	RANSAC  Method = iota // Maximize the inlier count
	MSAC                  // Minimize the truncated quadratic loss
	LMEDS                 // Minimize the median squared residual
	PROSAC                // RANSAC scoring with quality-ordered progressive sampling
	PROMEDS               // Median scoring with quality-ordered progressive sampling
)

// String returns the method name
func (m Method) String() string {
	switch m {
	case RANSAC:
		return "RANSAC"
	case MSAC:
		return "MSAC"
	case LMEDS:
		return "LMedS"
	case PROSAC:
		return "PROSAC"
	case PROMEDS:
		return "PROMedS"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod converts a method name (case sensitive as printed by
// String, or upper case) into a Method value
func ParseMethod(s string) (Method, error) {
	switch s {
	case "RANSAC", "ransac":
		return RANSAC, nil
	case "MSAC", "msac":
		return MSAC, nil
	case "LMedS", "LMEDS", "lmeds":
		return LMEDS, nil
	case "PROSAC", "prosac":
		return PROSAC, nil
	case "PROMedS", "PROMEDS", "promeds":
		return PROMEDS, nil
	}
	return 0, fmt.Errorf("%w: unknown robust method %q", ErrInvalidArgument, s)
}

// valid reports whether the value names a known method
func (m Method) valid() bool {
	return m >= RANSAC && m <= PROMEDS
}

// needsQualityScores reports whether the method samples in
// quality-ordered fashion and therefore requires per-reading scores
func (m Method) needsQualityScores() bool {
	return m == PROSAC || m == PROMEDS
}

// usesMedianScoring reports whether candidates are ranked by median
// squared residual instead of a threshold-based consensus
func (m Method) usesMedianScoring() bool {
	return m == LMEDS || m == PROMEDS
}

func (m Method) progressiveSampling() bool {
	return m == PROSAC || m == PROMEDS
}

// ConsensusProblem adapts a concrete estimation sub-problem to the
// consensus engine. Fit turns the readings at the given indices into
// zero or more candidate parameter vectors (zero when the fit fails
// numerically), and Residuals evaluates a candidate against every
// reading in the problem's domain units.
type ConsensusProblem interface {
	NumReadings() int
	SubsetSize() int
	Fit(idx []int) [][]float64
	Residuals(sol []float64) []float64
}

// RobustOpt contains options and parameters for the consensus engine
type RobustOpt struct {
	Method        Method        // Consensus strategy
	Threshold     float64       // Inlier boundary in residual units. Ignored by the median scoring methods
	Confidence    float64       // Probability that at least one sampled subset is outlier free
	MaxIterations int           // Hard cap on the number of subsets
	QualityScores []float64     // Per-reading scores, higher is better. Required by PROSAC and PROMedS
	ProgressDelta float64       // Minimum progress change per notification
	Seed          int64         // Random source seed. Zero seeds from the clock
	OnProgress    func(float64) // Progress callback in [0,1], may be nil
	OnIteration   func(int)     // Per-subset callback with the iteration number, may be nil
}

// NewRobustOpt creates a new RobustOpt with default values
func NewRobustOpt() *RobustOpt {
	return &RobustOpt{
		Method:        RANSAC,             // Inlier count consensus
		Threshold:     1.0,                // Callers override per domain
		Confidence:    DEF_CONFIDENCE,     // 99 percent
		MaxIterations: DEF_MAX_ITERATIONS, // Subset cap
		QualityScores: nil,                // Only the progressive methods need scores
		ProgressDelta: DEF_PROGRESS_DELTA, // Notify per 5 percent
		Seed:          0,                  // Clock seeded
		OnProgress:    nil,                // No notifications
		OnIteration:   nil,                // No notifications
	}
}

// RobustSol contains the results of the consensus search
type RobustSol struct {
	Sol        []float64    // Best candidate parameter vector
	Method     Method       // Strategy that produced the solution
	Inliers    *InliersData // Consensus membership and residuals for the best candidate
	Iterations int          // Number of subsets drawn
}

// NewRobustSol creates a new empty RobustSol structure
func NewRobustSol() *RobustSol {
	return &RobustSol{}
}

// InliersData records consensus membership over all readings of a
// robust search together with the raw residuals against the best
// candidate.
type InliersData struct {
	Mask      []bool    // True where the reading belongs to the consensus set
	Residuals []float64 // Per-reading residuals in domain units
}

// NumInliers counts the readings inside the consensus set
func (d *InliersData) NumInliers() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, in := range d.Mask {
		if in {
			n++
		}
	}
	return n
}

// checkRobustInput verifies problem and option consistency
func checkRobustInput(prob ConsensusProblem, opt *RobustOpt) error {
	if prob == nil || opt == nil {
		return fmt.Errorf("%w: nil problem or options", ErrInvalidArgument)
	}
	n := prob.NumReadings()
	m := prob.SubsetSize()
	if m < 1 {
		return fmt.Errorf("%w: subset size %d", ErrInvalidArgument, m)
	}
	if n < m {
		return fmt.Errorf("%w: %d readings (want >= %d)", ErrNotReady, n, m)
	}
	if opt.Confidence < 0 || opt.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f outside [0,1]", ErrInvalidArgument, opt.Confidence)
	}
	if opt.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations %d", ErrInvalidArgument, opt.MaxIterations)
	}
	if opt.ProgressDelta < 0 || opt.ProgressDelta > 1 {
		return fmt.Errorf("%w: progress delta %f outside [0,1]", ErrInvalidArgument, opt.ProgressDelta)
	}
	if !opt.Method.usesMedianScoring() && opt.Threshold <= 0 {
		return fmt.Errorf("%w: threshold %f", ErrInvalidArgument, opt.Threshold)
	}
	if opt.Method.needsQualityScores() {
		if opt.QualityScores == nil {
			return fmt.Errorf("%w: %v requires quality scores", ErrNotReady, opt.Method)
		}
		if len(opt.QualityScores) != n {
			return fmt.Errorf("%w: %d quality scores for %d readings", ErrNotReady, len(opt.QualityScores), n)
		}
	}
	return nil
}

// robustCandidate is one scored hypothesis. Lower score is better for
// every method (inlier counts enter negated).
type robustCandidate struct {
	sol        []float64
	residuals  []float64
	mask       []bool
	numInliers int
	score      float64
}

// scoreCandidate evaluates a candidate parameter vector against all
// readings under the method's scoring rule. Returns nil when the
// candidate produces unusable residuals.
func scoreCandidate(prob ConsensusProblem, sol []float64, n, m int, opt *RobustOpt) *robustCandidate {

	res := prob.Residuals(sol)
	if len(res) != n {
		return nil
	}
	for _, r := range res {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil
		}
	}

	cand := &robustCandidate{
		sol:       sol,
		residuals: res,
		mask:      make([]bool, n),
	}

	if opt.Method.usesMedianScoring() {

		// Median of squared residuals ranks the candidate; the inlier
		// band derives from the median as a robust sigma estimate
		sq := make([]float64, n)
		for i, r := range res {
			sq[i] = SQ(r)
		}
		med := Median(sq)
		sigma := MEDIAN_SIGMA_SCALE * math.Sqrt(med)
		if n > m {
			sigma *= 1.0 + 5.0/float64(n-m)
		}
		if sigma < MIN_MEDIAN_SIGMA {
			sigma = MIN_MEDIAN_SIGMA
		}
		band := MEDIAN_INLIER_BAND * sigma
		for i, r := range res {
			if math.Abs(r) <= band {
				cand.mask[i] = true
				cand.numInliers++
			}
		}
		cand.score = med
		return cand
	}

	// Threshold based consensus
	loss := 0.0
	thrSq := SQ(opt.Threshold)
	for i, r := range res {
		rsq := SQ(r)
		if math.Abs(r) <= opt.Threshold {
			cand.mask[i] = true
			cand.numInliers++
			loss += rsq
		} else {
			loss += thrSq
		}
	}
	if opt.Method == MSAC {
		cand.score = loss
	} else {
		cand.score = -float64(cand.numInliers)
	}
	if cand.numInliers == 0 {
		return nil
	}
	return cand
}

// adaptiveIterBound is the standard adaptive iteration count: the
// number of subsets needed so that one of them is outlier free with
// the requested confidence, given the observed inlier ratio.
func adaptiveIterBound(numInliers, n, m int, confidence float64, max int) int {
	w := float64(numInliers) / float64(n)
	p := math.Pow(w, float64(m))
	if p <= 0 {
		return max
	}
	if p >= 1 || confidence <= 0 {
		return 1
	}
	if confidence >= 1 {
		return max
	}
	b := math.Log(1.0-confidence) / math.Log(1.0-p)
	if math.IsNaN(b) || b >= float64(max) {
		return max
	}
	if b < 1 {
		return 1
	}
	return int(math.Ceil(b))
}

// ---------------------------------
// Subset samplers
// ---------------------------------

type subsetSampler interface {
	// next returns reading indices for one subset, or false when the
	// sample space is depleted
	next() ([]int, bool)
}

// uniformSampler draws subsets uniformly at random and never depletes
type uniformSampler struct {
	n, m int
	rnd  *rand.Rand
}

func newUniformSampler(n, m int, rnd *rand.Rand) *uniformSampler {
	return &uniformSampler{n: n, m: m, rnd: rnd}
}

func (s *uniformSampler) next() ([]int, bool) {
	idx := make([]int, s.m)
	copy(idx, s.rnd.Perm(s.n)[:s.m])
	return idx, true
}

// progressiveSampler draws subsets in quality-ordered fashion: the
// sampling pool starts with the best-scored readings and grows by one
// reading whenever the hypothesis count passes the pool's growth
// value, so early subsets concentrate on trusted readings.
type progressiveSampler struct {
	order []int // reading indices, best quality first
	m     int
	rnd   *rand.Rand
	t     int     // hypotheses drawn so far
	pool  int     // current pool size over order
	tn    float64 // growth value of the current pool size
}

func newProgressiveSampler(scores []float64, m int, rnd *rand.Rand) *progressiveSampler {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	// Highest quality first, ties keep the reading order
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})
	return &progressiveSampler{
		order: order,
		m:     m,
		rnd:   rnd,
		pool:  m,
		tn:    1.0,
	}
}

func (s *progressiveSampler) next() ([]int, bool) {
	total := len(s.order)
	s.t++

	// Grow the pool once the hypothesis count passes the growth value
	for s.pool < total && float64(s.t) > s.tn {
		s.pool++
		s.tn *= float64(s.pool) / float64(s.pool-s.m)
	}

	// Depleted once more subsets were drawn than distinct
	// combinations exist
	if float64(s.t) > binomial(total, s.m) {
		return nil, false
	}

	if s.pool >= total && float64(s.t) > s.tn {
		// Fully grown pool degenerates to uniform sampling
		idx := make([]int, s.m)
		perm := s.rnd.Perm(total)
		for j := 0; j < s.m; j++ {
			idx[j] = s.order[perm[j]]
		}
		return idx, true
	}

	// Pair the newest pool reading with random picks among the
	// better-ranked ones
	idx := make([]int, 0, s.m)
	perm := s.rnd.Perm(s.pool - 1)
	for _, k := range perm[:s.m-1] {
		idx = append(idx, s.order[k])
	}
	idx = append(idx, s.order[s.pool-1])
	return idx, true
}

// binomial computes n choose m in floating point, saturating at
// infinity for large values
func binomial(n, m int) float64 {
	if m < 0 || m > n {
		return 0
	}
	b := 1.0
	for i := 0; i < m; i++ {
		b *= float64(n-i) / float64(i+1)
		if b > 1e18 {
			return math.Inf(1)
		}
	}
	return b
}

// ---------------------------------
// Progress reporting
// ---------------------------------

// progressReporter rate-limits monotonic progress callbacks
type progressReporter struct {
	delta float64
	cb    func(float64)
	last  float64
}

func newProgressReporter(delta float64, cb func(float64)) *progressReporter {
	return &progressReporter{delta: delta, cb: cb}
}

func (p *progressReporter) update(frac float64) {
	if p.cb == nil {
		return
	}
	if frac > 1 {
		frac = 1
	}
	if frac < p.last {
		return
	}
	if frac-p.last < p.delta && frac < 1 {
		return
	}
	p.last = frac
	p.cb(frac)
}
