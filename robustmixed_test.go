// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.16
//

package gorloc

import (
	"errors"
	"math"
	"testing"
)

// circleAnchors places n anchors evenly on a circle of the given
// radius around the origin
func circleAnchors(n int, radius float64) []Point {
	anchors := make([]Point, n)
	for k := 0; k < n; k++ {
		az := 2 * math.Pi * float64(k) / float64(n)
		anchors[k] = Point{radius * math.Cos(az), radius * math.Sin(az)}
	}
	return anchors
}

// corruptDistance scales the distance of one ranging reading
func corruptDistance(t *testing.T, r *Reading, scale float64) {
	t.Helper()
	if r.Distance == nil {
		t.Fatal("reading carries no distance")
	}
	*r.Distance *= scale
}

// corruptLevel offsets the level of one rssi reading
func corruptLevel(t *testing.T, r *Reading, offset float64) {
	t.Helper()
	if r.Rssi == nil {
		t.Fatal("reading carries no level")
	}
	*r.Rssi += offset
}

func TestRobustMixedRansacOutlierRejection(t *testing.T) {
	truth := Point{2, 1}
	readings := rangingReadings(t, truth, circleAnchors(10, 10))
	corruptDistance(t, readings[0], 3)
	corruptDistance(t, readings[1], 3)

	e, err := NewRobustMixedEstimator(2, RANSAC)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetReadings(readings); err != nil {
		t.Fatal(err)
	}
	if err := e.SetPowerEstimationEnabled(false); err != nil {
		t.Fatal(err)
	}
	if err := e.SetSeed(7); err != nil {
		t.Fatal(err)
	}
	if !e.IsReady() {
		t.Fatal("not ready")
	}

	est, err := e.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	for j := range truth {
		if math.Abs(est.Pos[j]-truth[j]) > 1e-6 {
			t.Fatalf("pos=%v, want %v", est.Pos, truth)
		}
	}

	inl := e.Inliers()
	if inl == nil {
		t.Fatal("no inlier data")
	}
	if inl.NumInliers() != 8 {
		t.Fatalf("inliers=%d, want 8", inl.NumInliers())
	}
	if inl.Mask[0] || inl.Mask[1] {
		t.Fatal("corrupted readings judged inliers")
	}
	for i := 2; i < 10; i++ {
		if !inl.Mask[i] {
			t.Fatalf("clean reading %d judged outlier", i)
		}
	}
	if e.RangingInliers() == nil || e.RangingInliers().NumInliers() != 8 {
		t.Fatal("ranging inliers missing")
	}
	if e.RssiInliers() != nil {
		t.Fatal("rssi inliers present without an rssi phase")
	}

	// Refined estimate keeps its covariance by default
	if pc := e.PositionCovariance(); pc == nil || pc.SymmetricDim() != 2 {
		t.Fatalf("position covariance=%v", pc)
	}
	if e.PowerDBm() != nil {
		t.Fatal("power present without the rssi phase")
	}
}

func TestRobustMixedMethodsAgree(t *testing.T) {
	truth := Point{2, 1}
	for _, method := range []Method{RANSAC, MSAC, LMEDS} {
		readings := rangingReadings(t, truth, circleAnchors(10, 10))
		corruptDistance(t, readings[3], 4)

		e, err := NewRobustMixedEstimator(2, method)
		if err != nil {
			t.Fatal(err)
		}
		if err := e.SetReadings(readings); err != nil {
			t.Fatal(err)
		}
		_ = e.SetPowerEstimationEnabled(false)
		_ = e.SetSeed(21)

		est, err := e.Estimate()
		if err != nil {
			t.Fatalf("%v: %v", method, err)
		}
		for j := range truth {
			if math.Abs(est.Pos[j]-truth[j]) > 1e-6 {
				t.Fatalf("%v: pos=%v, want %v", method, est.Pos, truth)
			}
		}
		if e.Inliers().Mask[3] {
			t.Fatalf("%v: corrupted reading judged inlier", method)
		}
	}
}

func TestRobustMixedRefineDisabled(t *testing.T) {
	truth := Point{2, 1}
	readings := rangingReadings(t, truth, circleAnchors(10, 10))
	corruptDistance(t, readings[0], 3)

	e, _ := NewRobustMixedEstimator(2, RANSAC)
	_ = e.SetReadings(readings)
	_ = e.SetPowerEstimationEnabled(false)
	_ = e.SetSeed(7)
	if err := e.SetRefineResult(false); err != nil {
		t.Fatal(err)
	}

	est, err := e.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	// The raw consensus candidate is exact on clean subsets, but
	// carries no covariance
	for j := range truth {
		if math.Abs(est.Pos[j]-truth[j]) > 1e-6 {
			t.Fatalf("pos=%v, want %v", est.Pos, truth)
		}
	}
	if est.Cov != nil || e.PositionCovariance() != nil {
		t.Fatal("covariance present without refinement")
	}
}

func TestRobustMixedCovarianceDropped(t *testing.T) {
	truth := Point{2, 1}
	readings := rangingReadings(t, truth, circleAnchors(10, 10))

	e, _ := NewRobustMixedEstimator(2, RANSAC)
	_ = e.SetReadings(readings)
	_ = e.SetPowerEstimationEnabled(false)
	_ = e.SetSeed(7)
	if err := e.SetKeepCovariance(false); err != nil {
		t.Fatal(err)
	}

	est, err := e.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	for j := range truth {
		if math.Abs(est.Pos[j]-truth[j]) > 1e-6 {
			t.Fatalf("pos=%v, want %v", est.Pos, truth)
		}
	}
	if est.Cov != nil {
		t.Fatal("covariance kept despite the setting")
	}
}

func TestRefineEmptyInlierSet(t *testing.T) {
	truth := Point{2, 1}
	anchors := circleAnchors(6, 10)

	samples := make([]RangingSample, len(anchors))
	for i, a := range anchors {
		samples[i] = RangingSample{Anchor: a, Distance: truth.DistanceTo(a), Sd: 0.1}
	}
	rsol := NewRobustSol()
	rsol.Sol = []float64{2, 1}
	rsol.Inliers = &InliersData{
		Mask:      make([]bool, len(samples)),
		Residuals: make([]float64, len(samples)),
	}

	// An empty consensus set passes the candidate through unrefined
	// with no covariance
	pos, cov := refineRangingSol(samples, rsol, NewRangingOpt(), true, true)
	if pos[0] != rsol.Sol[0] || pos[1] != rsol.Sol[1] {
		t.Fatalf("pos=%v, want %v", pos, rsol.Sol)
	}
	if cov != nil {
		t.Fatal("covariance present with an empty inlier set")
	}

	rssiSamples := make([]RssiSample, len(anchors))
	for i, a := range anchors {
		rssiSamples[i] = RssiSample{Anchor: a, Rssi: PathLossRssi(-50, DEF_PATH_LOSS, truth.DistanceTo(a)), Sd: 1}
	}
	tpl := NewRssiOpt()
	tpl.InitPos = truth.Clone()
	rsol2 := NewRobustSol()
	rsol2.Sol = []float64{-50}
	rsol2.Inliers = &InliersData{
		Mask:      make([]bool, len(rssiSamples)),
		Residuals: make([]float64, len(rssiSamples)),
	}
	pos2, power, pathLoss, cov2 := refineRssiSol(rssiSamples, rsol2, tpl, true, true)
	if pos2[0] != truth[0] || pos2[1] != truth[1] || power != -50 || pathLoss != DEF_PATH_LOSS {
		t.Fatalf("passthrough pos=%v power=%f exponent=%f", pos2, power, pathLoss)
	}
	if cov2 != nil {
		t.Fatal("covariance present with an empty inlier set")
	}
}

func TestRobustMixedQualityScoreValidation(t *testing.T) {
	truth := Point{2, 1}
	readings := rangingReadings(t, truth, circleAnchors(10, 10))

	e, _ := NewRobustMixedEstimator(2, PROSAC)
	if err := e.SetReadings(readings); err != nil {
		t.Fatal(err)
	}
	_ = e.SetPowerEstimationEnabled(false)

	// Shorter than any usable batch: rejected by the setter
	if err := e.SetQualityScores([]float64{0.5, 0.5}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("short scores error=%v", err)
	}

	// Nil clears
	if err := e.SetQualityScores(nil); err != nil {
		t.Fatal(err)
	}

	// Plausible length passes the setter; per-reading agreement is
	// checked at estimation time
	if err := e.SetQualityScores([]float64{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if e.IsReady() {
		t.Fatal("ready with mismatched quality scores")
	}
	if _, err := e.Estimate(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("mismatched scores error=%v", err)
	}
}

func TestRobustMixedProsac(t *testing.T) {
	truth := Point{2, 1}
	readings := rangingReadings(t, truth, circleAnchors(10, 10))
	corruptDistance(t, readings[0], 3)
	corruptDistance(t, readings[1], 3)

	scores := make([]float64, len(readings))
	for i := range scores {
		scores[i] = 1.0 - 0.05*float64(i)
	}
	scores[0], scores[1] = 0.1, 0.05

	e, _ := NewRobustMixedEstimator(2, PROSAC)
	_ = e.SetReadings(readings)
	_ = e.SetPowerEstimationEnabled(false)
	_ = e.SetSeed(13)
	if err := e.SetQualityScores(scores); err != nil {
		t.Fatal(err)
	}
	if !e.IsReady() {
		t.Fatal("not ready")
	}

	est, err := e.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	for j := range truth {
		if math.Abs(est.Pos[j]-truth[j]) > 1e-6 {
			t.Fatalf("pos=%v, want %v", est.Pos, truth)
		}
	}
	if e.Inliers().NumInliers() != 8 {
		t.Fatalf("inliers=%d, want 8", e.Inliers().NumInliers())
	}
}

func TestRobustMixedProsacRequiresScores(t *testing.T) {
	truth := Point{2, 1}
	readings := rangingReadings(t, truth, circleAnchors(10, 10))

	e, _ := NewRobustMixedEstimator(2, PROSAC)
	_ = e.SetReadings(readings)
	_ = e.SetPowerEstimationEnabled(false)

	if e.IsReady() {
		t.Fatal("ready without quality scores")
	}
	if _, err := e.Estimate(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("missing scores error=%v", err)
	}
}

func TestRobustMixedDualPhase(t *testing.T) {
	truth := Point{3, 4}
	power := -50.0
	readings := dualReadings(t, truth, power, DEF_PATH_LOSS, circleAnchors(8, 12))
	corruptDistance(t, readings[0], 3)
	corruptLevel(t, readings[0], -30)

	e, _ := NewRobustMixedEstimator(2, RANSAC)
	if err := e.SetReadings(readings); err != nil {
		t.Fatal(err)
	}
	_ = e.SetSeed(11)

	est, err := e.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	for j := range truth {
		if math.Abs(est.Pos[j]-truth[j]) > 1e-6 {
			t.Fatalf("pos=%v, want %v", est.Pos, truth)
		}
	}
	if est.Power == nil || math.Abs(*est.Power-power) > 1e-6 {
		t.Fatalf("power=%v, want %f", est.Power, power)
	}

	// The corrupted dual reading fails both phases
	inl := e.Inliers()
	if inl.Mask[0] {
		t.Fatal("corrupted dual reading judged inlier")
	}
	if inl.NumInliers() != 7 {
		t.Fatalf("inliers=%d, want 7", inl.NumInliers())
	}
	if e.RangingInliers().NumInliers() != 7 || e.RssiInliers().NumInliers() != 7 {
		t.Fatalf("phase inliers ranging=%d rssi=%d, want 7 and 7",
			e.RangingInliers().NumInliers(), e.RssiInliers().NumInliers())
	}

	// Position, power blocks assemble into one covariance
	if est.Cov == nil || est.Cov.SymmetricDim() != 3 {
		t.Fatalf("covariance=%v", est.Cov)
	}
	if v := e.PowerVariance(); v == nil || *v <= 0 {
		t.Fatalf("power variance=%v", v)
	}
}

func TestRobustMixedRssiFallback(t *testing.T) {
	truth := Point{3, 4}
	power := -50.0
	readings := rssiReadings(t, truth, power, DEF_PATH_LOSS, circleAnchors(6, 10))
	corruptLevel(t, readings[2], -30)

	e, _ := NewRobustMixedEstimator(2, RANSAC)
	if err := e.SetReadings(readings); err != nil {
		t.Fatal(err)
	}
	_ = e.SetPowerEstimationEnabled(false)
	if err := e.SetInitialPowerDBm(power); err != nil {
		t.Fatal(err)
	}
	_ = e.SetSeed(17)

	est, err := e.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	if !est.Fallback {
		t.Fatal("fallback not recorded")
	}
	for j := range truth {
		if math.Abs(est.Pos[j]-truth[j]) > 1e-6 {
			t.Fatalf("pos=%v, want %v", est.Pos, truth)
		}
	}
	if e.RangingInliers() != nil {
		t.Fatal("ranging inliers present in fallback")
	}
	if e.RssiInliers().NumInliers() != 5 {
		t.Fatalf("rssi inliers=%d, want 5", e.RssiInliers().NumInliers())
	}
	if e.Inliers().Mask[2] {
		t.Fatal("corrupted reading judged inlier")
	}
}

func TestRobustMixedMissingPower(t *testing.T) {
	truth := Point{3, 4}
	readings := rssiReadings(t, truth, -50, DEF_PATH_LOSS, circleAnchors(6, 10))

	e, _ := NewRobustMixedEstimator(2, RANSAC)
	_ = e.SetReadings(readings)
	_ = e.SetPowerEstimationEnabled(false)

	if _, err := e.Estimate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing power error=%v", err)
	}
}

func TestRobustMixedDeterminism(t *testing.T) {
	truth := Point{2, 1}

	run := func() Point {
		readings := rangingReadings(t, truth, circleAnchors(10, 10))
		corruptDistance(t, readings[0], 3)
		corruptDistance(t, readings[4], 2)

		e, _ := NewRobustMixedEstimator(2, RANSAC)
		_ = e.SetReadings(readings)
		_ = e.SetPowerEstimationEnabled(false)
		_ = e.SetSeed(99)
		est, err := e.Estimate()
		if err != nil {
			t.Fatal(err)
		}
		return est.Pos
	}

	a, b := run(), run()
	for j := range a {
		if a[j] != b[j] {
			t.Fatalf("same seed, different estimates: %v vs %v", a, b)
		}
	}
}

func TestRobustCoreSetterValidation(t *testing.T) {
	e, _ := NewRobustMixedEstimator(2, RANSAC)

	if err := e.SetRobust(Method(9)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad method error=%v", err)
	}
	if err := e.SetRobust(MSAC); err != nil || e.Robust() != MSAC {
		t.Fatalf("method not stored: %v %v", err, e.Robust())
	}
	if err := e.SetRangingThreshold(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero ranging threshold error=%v", err)
	}
	if err := e.SetRssiThreshold(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("negative rssi threshold error=%v", err)
	}
	if err := e.SetConfidence(1.5); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("confidence error=%v", err)
	}
	if err := e.SetMaxIterations(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("max iterations error=%v", err)
	}
	if err := e.SetProgressDelta(2); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("progress delta error=%v", err)
	}
	if err := e.SetSubsetSize(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("subset size error=%v", err)
	}

	// Defaults carry the documented values
	if e.RangingThreshold() != DEF_RANGING_THRESHOLD {
		t.Fatalf("ranging threshold default=%f", e.RangingThreshold())
	}
	if e.RssiThreshold() != DEF_RSSI_THRESHOLD {
		t.Fatalf("rssi threshold default=%f", e.RssiThreshold())
	}
	if e.RangingConfidence() != DEF_CONFIDENCE || e.RssiConfidence() != DEF_CONFIDENCE {
		t.Fatalf("confidence defaults=%f %f", e.RangingConfidence(), e.RssiConfidence())
	}
	if e.RangingMaxIterations() != DEF_MAX_ITERATIONS || e.RssiMaxIterations() != DEF_MAX_ITERATIONS {
		t.Fatalf("max iteration defaults=%d %d", e.RangingMaxIterations(), e.RssiMaxIterations())
	}
	if !e.RefineResult() || !e.KeepCovariance() {
		t.Fatal("refinement defaults changed")
	}
}

func TestRobustCorePerPhaseSettings(t *testing.T) {
	e, _ := NewRobustMixedEstimator(2, RANSAC)

	if err := e.SetRssiConfidence(0.9); err != nil {
		t.Fatal(err)
	}
	if e.RangingConfidence() != DEF_CONFIDENCE {
		t.Fatal("rssi confidence leaked into the ranging search")
	}
	if e.RssiConfidence() != 0.9 {
		t.Fatalf("rssi confidence=%f", e.RssiConfidence())
	}

	if err := e.SetRangingMaxIterations(100); err != nil {
		t.Fatal(err)
	}
	if e.RssiMaxIterations() != DEF_MAX_ITERATIONS {
		t.Fatal("ranging cap leaked into the rssi search")
	}
	if e.RangingMaxIterations() != 100 {
		t.Fatalf("ranging cap=%d", e.RangingMaxIterations())
	}

	// The plain setters drive both searches
	if err := e.SetConfidence(0.95); err != nil {
		t.Fatal(err)
	}
	if e.RangingConfidence() != 0.95 || e.RssiConfidence() != 0.95 {
		t.Fatalf("confidences=%f %f", e.RangingConfidence(), e.RssiConfidence())
	}
	if err := e.SetMaxIterations(250); err != nil {
		t.Fatal(err)
	}
	if e.RangingMaxIterations() != 250 || e.RssiMaxIterations() != 250 {
		t.Fatalf("caps=%d %d", e.RangingMaxIterations(), e.RssiMaxIterations())
	}

	if err := e.SetRangingConfidence(-0.1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad ranging confidence error=%v", err)
	}
	if err := e.SetRssiMaxIterations(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad rssi cap error=%v", err)
	}
}
