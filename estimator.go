// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

// Implements the state and lifecycle shared by every estimator flavor:
// readings, initial values, estimation flags, the re-entrancy lock and
// the listener plumbing.

package gorloc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// EstimationListener receives synchronous notifications fired from
// within Estimate. Implementations must not call back into the
// estimator: every mutator fails while the estimation runs.
type EstimationListener interface {
	// EstimateStart fires after the estimator locks
	EstimateStart()
	// EstimateEnd fires before the estimator unlocks, on success and on failure
	EstimateEnd()
	// EstimateIteration reports robust sampling iterations
	EstimateIteration(iter int)
	// EstimateProgress reports the monotonic progress fraction in [0,1]
	EstimateProgress(frac float64)
}

// LogListener is an EstimationListener that writes every notification
// through the package logger.
type LogListener struct {
	Name string // Label included in every log line
}

func (l *LogListener) label() string {
	if l.Name == "" {
		return "estimator"
	}
	return l.Name
}

func (l *LogListener) EstimateStart() {
	log.Debugf("%s: estimation started", l.label())
}

func (l *LogListener) EstimateEnd() {
	log.Debugf("%s: estimation finished", l.label())
}

func (l *LogListener) EstimateIteration(iter int) {
	log.Tracef("%s: iteration %d", l.label(), iter)
}

func (l *LogListener) EstimateProgress(frac float64) {
	log.Tracef("%s: progress %.0f%%", l.label(), frac*100.0)
}

// Estimate is the assembled output of one estimation call. The fields
// persist on the estimator until the next successful call overwrites
// them.
type Estimate struct {
	Pos      Point         // Estimated source position
	Power    *float64      // Transmitted power [dBm]. Initial value passed through when not estimated, nil when never given
	PathLoss float64       // Path loss exponent. Initial value passed through when not estimated
	Cov      *mat.SymDense // Combined covariance, block layout [position, power, path loss], nil when unavailable
	Fallback bool          // Position came from the rssi data
}

// estimatorCore carries the state shared by every estimator flavor
type estimatorCore struct {
	dims     int
	readings []*Reading
	split    *readingSplit

	initPos      Point
	initPower    *float64 // dBm
	initPathLoss float64

	estPower    bool
	estPathLoss bool

	useAnchorCov bool
	homogeneous  bool

	listener EstimationListener
	locked   bool

	// Results of the last successful estimation
	est         *Estimate
	posCov      *mat.SymDense
	powerVar    *float64
	pathLossVar *float64
}

func newEstimatorCore(dims int) (*estimatorCore, error) {
	if !ValidDims(dims) {
		return nil, fmt.Errorf("%w: dimensionality %d", ErrInvalidArgument, dims)
	}
	split, _ := classifyReadings(nil, dims)
	return &estimatorCore{
		dims:         dims,
		split:        split,
		initPathLoss: DEF_PATH_LOSS,
		estPower:     true,
	}, nil
}

// guard rejects mutation while an estimation is running
func (e *estimatorCore) guard() error {
	if e.locked {
		return ErrLocked
	}
	return nil
}

// lock engages the re-entrancy guard and notifies the listener
func (e *estimatorCore) lock() error {
	if e.locked {
		return ErrLocked
	}
	e.locked = true
	if e.listener != nil {
		e.listener.EstimateStart()
	}
	return nil
}

// unlock is the guaranteed cleanup path of every Estimate call
func (e *estimatorCore) unlock() {
	if e.listener != nil {
		e.listener.EstimateEnd()
	}
	e.locked = false
}

func (e *estimatorCore) notifyIteration(iter int) {
	if e.listener != nil {
		e.listener.EstimateIteration(iter)
	}
}

func (e *estimatorCore) notifyProgress(frac float64) {
	if e.listener != nil {
		e.listener.EstimateProgress(frac)
	}
}

// minReadings is the smallest overall reading count the estimator can
// work with, used to validate quality score lengths.
func (e *estimatorCore) minReadings() int {
	n := e.dims + 1
	if e.estPower {
		n++
	}
	if e.estPathLoss {
		n++
	}
	return n
}

//-------------------------------------------------------------------
// Mutators (all fail while locked)
//-------------------------------------------------------------------

// SetReadings replaces the reading batch. Malformed readings (mixed
// dimensionality, missing values, bad deviations) are rejected as a
// whole; sufficiency is not checked here but at Estimate time.
func (e *estimatorCore) SetReadings(readings []*Reading) error {
	if err := e.guard(); err != nil {
		return err
	}
	split, err := classifyReadings(readings, e.dims)
	if err != nil {
		return err
	}
	e.readings = readings
	e.split = split
	return nil
}

// SetInitialPosition sets the position seed, nil to clear
func (e *estimatorCore) SetInitialPosition(p Point) error {
	if err := e.guard(); err != nil {
		return err
	}
	if p != nil && p.Dims() != e.dims {
		return fmt.Errorf("%w: initial position dimensionality %d (want %d)", ErrInvalidArgument, p.Dims(), e.dims)
	}
	e.initPos = p.Clone()
	return nil
}

// SetInitialPowerDBm sets the transmitted power seed in dBm
func (e *estimatorCore) SetInitialPowerDBm(dbm float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.initPower = &dbm
	return nil
}

// SetInitialPowerMW sets the transmitted power seed in milliwatts
func (e *estimatorCore) SetInitialPowerMW(mw float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if mw <= 0 {
		return fmt.Errorf("%w: transmitted power %f mW", ErrInvalidArgument, mw)
	}
	dbm := MWToDBm(mw)
	e.initPower = &dbm
	return nil
}

// ClearInitialPower removes the transmitted power seed
func (e *estimatorCore) ClearInitialPower() error {
	if err := e.guard(); err != nil {
		return err
	}
	e.initPower = nil
	return nil
}

// SetInitialPathLoss sets the path loss exponent seed
func (e *estimatorCore) SetInitialPathLoss(exponent float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if exponent < MIN_PATH_LOSS || exponent > MAX_PATH_LOSS {
		return fmt.Errorf("%w: path loss exponent %f", ErrInvalidArgument, exponent)
	}
	e.initPathLoss = exponent
	return nil
}

// SetPowerEstimationEnabled selects whether the transmitted power is
// estimated or passed through from the initial value
func (e *estimatorCore) SetPowerEstimationEnabled(enabled bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.estPower = enabled
	return nil
}

// SetPathLossEstimationEnabled selects whether the path loss exponent
// is estimated or passed through from the initial value
func (e *estimatorCore) SetPathLossEstimationEnabled(enabled bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.estPathLoss = enabled
	return nil
}

// SetUseAnchorCovariance folds anchor position covariance into the
// reading weights of the model solvers
func (e *estimatorCore) SetUseAnchorCovariance(enabled bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.useAnchorCov = enabled
	return nil
}

// SetHomogeneousInit selects the homogeneous linear initializer for
// the ranging position stage
func (e *estimatorCore) SetHomogeneousInit(enabled bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.homogeneous = enabled
	return nil
}

// SetListener installs the notification sink, nil to remove
func (e *estimatorCore) SetListener(l EstimationListener) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.listener = l
	return nil
}

//-------------------------------------------------------------------
// Accessors
//-------------------------------------------------------------------

// Dims returns the problem dimensionality
func (e *estimatorCore) Dims() int {
	return e.dims
}

// Readings returns the current reading batch
func (e *estimatorCore) Readings() []*Reading {
	return e.readings
}

// InitialPosition returns the position seed, nil when unset
func (e *estimatorCore) InitialPosition() Point {
	return e.initPos.Clone()
}

// InitialPowerDBm returns the transmitted power seed in dBm, nil when
// unset
func (e *estimatorCore) InitialPowerDBm() *float64 {
	if e.initPower == nil {
		return nil
	}
	v := *e.initPower
	return &v
}

// InitialPowerMW returns the transmitted power seed in milliwatts,
// nil when unset
func (e *estimatorCore) InitialPowerMW() *float64 {
	if e.initPower == nil {
		return nil
	}
	v := DBmToMW(*e.initPower)
	return &v
}

// InitialPathLoss returns the path loss exponent seed
func (e *estimatorCore) InitialPathLoss() float64 {
	return e.initPathLoss
}

// PowerEstimationEnabled reports whether the transmitted power is
// estimated
func (e *estimatorCore) PowerEstimationEnabled() bool {
	return e.estPower
}

// PathLossEstimationEnabled reports whether the path loss exponent is
// estimated
func (e *estimatorCore) PathLossEstimationEnabled() bool {
	return e.estPathLoss
}

// UseAnchorCovariance reports whether anchor position covariance is
// folded into the reading weights
func (e *estimatorCore) UseAnchorCovariance() bool {
	return e.useAnchorCov
}

// HomogeneousInit reports whether the homogeneous linear initializer
// is selected
func (e *estimatorCore) HomogeneousInit() bool {
	return e.homogeneous
}

// Listener returns the installed notification sink
func (e *estimatorCore) Listener() EstimationListener {
	return e.listener
}

// Locked reports whether an estimation is running
func (e *estimatorCore) Locked() bool {
	return e.locked
}

// RssiFallback reports whether the current readings force the position
// to be estimated from the rssi data
func (e *estimatorCore) RssiFallback() bool {
	return e.split.rssiFallback()
}

// validReadings applies the readiness rule to the current batch
func (e *estimatorCore) validReadings() bool {
	return e.split.validReadings(e.estPower, e.estPathLoss)
}

// LastEstimate returns the output of the last successful estimation,
// nil before the first one
func (e *estimatorCore) LastEstimate() *Estimate {
	return e.est
}

// Position returns the estimated source position, nil before the
// first successful estimation
func (e *estimatorCore) Position() Point {
	if e.est == nil {
		return nil
	}
	return e.est.Pos.Clone()
}

// PowerDBm returns the estimated transmitted power in dBm
func (e *estimatorCore) PowerDBm() *float64 {
	if e.est == nil || e.est.Power == nil {
		return nil
	}
	v := *e.est.Power
	return &v
}

// PowerMW returns the estimated transmitted power in milliwatts
func (e *estimatorCore) PowerMW() *float64 {
	if e.est == nil || e.est.Power == nil {
		return nil
	}
	v := DBmToMW(*e.est.Power)
	return &v
}

// PathLossExponent returns the estimated path loss exponent, nil
// before the first successful estimation
func (e *estimatorCore) PathLossExponent() *float64 {
	if e.est == nil {
		return nil
	}
	v := e.est.PathLoss
	return &v
}

// Covariance returns the combined covariance of the last estimation
// with block layout [position, power, path loss], nil when dropped
func (e *estimatorCore) Covariance() *mat.SymDense {
	if e.est == nil {
		return nil
	}
	return e.est.Cov
}

// PositionCovariance returns the position block of the combined
// covariance
func (e *estimatorCore) PositionCovariance() *mat.SymDense {
	return e.posCov
}

// PowerVariance returns the variance of the estimated transmitted
// power, nil when power was not estimated or covariance was dropped
func (e *estimatorCore) PowerVariance() *float64 {
	if e.powerVar == nil {
		return nil
	}
	v := *e.powerVar
	return &v
}

// PathLossVariance returns the variance of the estimated path loss
// exponent, nil when it was not estimated or covariance was dropped
func (e *estimatorCore) PathLossVariance() *float64 {
	if e.pathLossVar == nil {
		return nil
	}
	v := *e.pathLossVar
	return &v
}

// storeEstimate publishes the estimation output and derives the
// per-parameter covariance views. estPower and estPathLoss describe
// which trailing blocks the covariance carries.
func (e *estimatorCore) storeEstimate(est *Estimate, estPower, estPathLoss bool) {
	e.est = est
	e.posCov = nil
	e.powerVar = nil
	e.pathLossVar = nil
	if est == nil || est.Cov == nil {
		return
	}
	cov := est.Cov
	dims := e.dims
	want := dims
	if estPower {
		want++
	}
	if estPathLoss {
		want++
	}
	if cov.SymmetricDim() != want {
		log.Debugf("combined covariance is %d x %d (want %d x %d), views dropped",
			cov.SymmetricDim(), cov.SymmetricDim(), want, want)
		return
	}
	pc := mat.NewSymDense(dims, nil)
	for i := 0; i < dims; i++ {
		for j := i; j < dims; j++ {
			pc.SetSym(i, j, cov.At(i, j))
		}
	}
	e.posCov = pc
	k := dims
	if estPower {
		v := cov.At(k, k)
		e.powerVar = &v
		k++
	}
	if estPathLoss {
		v := cov.At(k, k)
		e.pathLossVar = &v
	}
}
