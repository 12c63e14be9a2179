// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

package gorloc

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

// Median of the values (the input slice is not modified)
func Median(v []float64) float64 {
	n := len(v)
	if n == 0 {
		return math.NaN()
	}
	s := make([]float64, n)
	copy(s, v)
	slices.Sort(s)
	return stat.Quantile(0.5, stat.Empirical, s, nil)
}

// ------------------------------------
// Logging
// ------------------------------------

// Package logger. Solvers and estimators write Debug/Trace records here.
var log = logrus.StandardLogger()

// SetLogger redirects the package logger
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// FormatMat renders a matrix for log output
func FormatMat(X mat.Matrix) string {
	r, c := X.Dims()
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	return fmt.Sprintf("(%d x %d) %v", r, c, fa)
}
