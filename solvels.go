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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Solve the observation equation using weighted least squares
// - dx = (G^t W G)^-1 G^t W dr
// - Return the error covariance matrix (G^t W G)^-1 as cov
func SolveLS(G mat.Matrix, dr mat.Vector, W mat.Matrix) (dx mat.Vector, cov mat.Matrix, err error) {

	n1, m1 := G.Dims()
	n2, m2 := W.Dims()
	if n1 != n2 {
		return nil, nil, fmt.Errorf("invalid matrix size. G^T(%d x %d), W(%d x %d)", m1, n1, n2, m2)
	}
	l1 := dr.Len()
	if l1 != m2 {
		return nil, nil, fmt.Errorf("invalid matrix size. W(%d x %d), dr(%d x 1)", n2, m2, l1)
	}

	// A（G^t W G)
	var WG mat.Dense
	WG.Mul(W, G)
	var A mat.Dense
	A.Mul(G.T(), &WG)

	// b（G^t W dr）
	var GtW mat.Dense
	GtW.Mul(G.T(), W)
	var b mat.VecDense
	b.MulVec(&GtW, dr)

	// Solve for x (x = A^-1 b)
	var x mat.VecDense
	err = x.SolveVec(&A, &b)
	if err != nil {
		return nil, nil, err
	}
	dx = &x

	// Set (G^T W G)^-1 as the covariance matrix
	var c mat.Dense
	err = c.Inverse(&A)
	if err != nil {
		return nil, nil, err
	}
	cov = &c

	return
}

// Solve the overdetermined system A x = b in the least squares sense
// using a QR factorization (better conditioned than forming A^t A)
func SolveQR(A *mat.Dense, b *mat.VecDense) (mat.Vector, error) {
	n, m := A.Dims()
	if n < m {
		return nil, fmt.Errorf("underdetermined system. A(%d x %d)", n, m)
	}
	var qr mat.QR
	qr.Factorize(A)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, err
	}
	return &x, nil
}

// Solve the homogeneous system A y = 0 by taking the right singular
// vector of the smallest singular value
func SolveNullSpace(A *mat.Dense) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD factorization did not converge")
	}
	var V mat.Dense
	svd.VTo(&V)
	r, c := V.Dims()
	y := make([]float64, r)
	for i := 0; i < r; i++ {
		y[i] = V.At(i, c-1)
	}
	return y, nil
}

// ------------------------------------
// Covariance helpers
// ------------------------------------

// toSymmetric copies a square matrix into symmetric storage, averaging
// the off-diagonal pairs. Returns nil for nil or non-square input.
func toSymmetric(m mat.Matrix) *mat.SymDense {
	if m == nil {
		return nil
	}
	n, c := m.Dims()
	if n != c {
		return nil
	}
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2.0)
		}
	}
	return s
}

// projectCov projects a covariance onto a direction (g^T C g)
func projectCov(C *mat.SymDense, g Point) float64 {
	gv := mat.NewVecDense(len(g), g)
	return mat.Inner(gv, C, gv)
}

// composeBlockCov builds the block-diagonal matrix [A 0; 0 B].
// Returns nil unless both blocks are present (all-or-nothing rule).
func composeBlockCov(a, b *mat.SymDense) *mat.SymDense {
	if a == nil || b == nil {
		return nil
	}
	na := a.SymmetricDim()
	nb := b.SymmetricDim()
	c := mat.NewSymDense(na+nb, nil)
	for i := 0; i < na; i++ {
		for j := i; j < na; j++ {
			c.SetSym(i, j, a.At(i, j))
		}
	}
	for i := 0; i < nb; i++ {
		for j := i; j < nb; j++ {
			c.SetSym(na+i, na+j, b.At(i, j))
		}
	}
	return c
}

// weightedRms is the root mean square of the weighted residuals
func weightedRms(dr mat.Vector, W mat.Matrix) float64 {
	if dr == nil || W == nil || dr.Len() == 0 {
		return 0
	}
	vv := 0.0
	for k := 0; k < dr.Len(); k++ {
		vv += W.At(k, k) * SQ(dr.AtVec(k))
	}
	return math.Sqrt(vv / float64(dr.Len()))
}

// chiSquareTest checks the weighted residual sum of squares against
// the chi-squared quantile at significance alpha with nM-nX degrees of
// freedom. Skipped when the system is not overdetermined or alpha is
// outside (0, 1).
func chiSquareTest(dr mat.Vector, W mat.Matrix, nx int, alpha float64) error {
	if dr == nil || W == nil || alpha <= 0 || alpha >= 1 {
		return nil
	}
	nM := dr.Len()
	if nM <= nx {
		log.Tracef("chi-square test: undone. nM=%d <= nX=%d", nM, nx)
		return nil
	}
	vv := 0.0
	for k := 0; k < nM; k++ {
		vv += W.At(k, k) * SQ(dr.AtVec(k))
	}
	thr := distuv.ChiSquared{K: float64(nM - nx)}.Quantile(1.0 - alpha)
	if vv > thr {
		return fmt.Errorf("chi-square test failed: nM=%d, nX=%d, |W dr|^2=%f > %f", nM, nx, vv, thr)
	}
	log.Tracef("chi-square test: |W dr|^2=%.3f <= %f", vv, thr)
	return nil
}
