// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

package gorloc

import "errors"

// Error kinds returned by estimators and solvers. Details are wrapped
// with fmt.Errorf("%w: ..."), so callers branch with errors.Is.
var (
	// A mutating call (setter or a second Estimate) was made while an
	// estimation is in progress.
	ErrLocked = errors.New("gorloc: estimator is locked")

	// Estimate was called without a valid reading set, or a method that
	// needs quality scores has none.
	ErrNotReady = errors.New("gorloc: estimator is not ready")

	// Malformed setter or constructor input.
	ErrInvalidArgument = errors.New("gorloc: invalid argument")

	// Linear algebra or non-linear solve failure in a model solver.
	ErrNumerical = errors.New("gorloc: numerical failure")

	// The robust engine exhausted its iterations or sample space without
	// converging to any usable candidate.
	ErrRobustEstimation = errors.New("gorloc: robust estimation failed")
)
