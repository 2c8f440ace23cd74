package clv

import (
	"errors"
	"math"
)

var errSingular = errors.New("matrix is singular")

// solve returns x such that A x = b using Gauss-Jordan elimination with
// partial pivoting. A and b are not modified.
func solve(A [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, n+1)
		copy(aug[i], A[i])
		aug[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		// Pick the largest pivot in this column for stability
		pivotRow := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivotRow][col]) {
				pivotRow = r
			}
		}
		if math.Abs(aug[pivotRow][col]) < 1e-12 {
			return nil, errSingular
		}
		aug[col], aug[pivotRow] = aug[pivotRow], aug[col]

		// Normalize pivot row
		pivot := aug[col][col]
		for j := col; j <= n; j++ {
			aug[col][j] /= pivot
		}

		// Eliminate other rows
		for i := 0; i < n; i++ {
			if i == col {
				continue
			}
			factor := aug[i][col]
			if factor == 0 {
				continue
			}
			for j := col; j <= n; j++ {
				aug[i][j] -= factor * aug[col][j]
			}
		}
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = aug[i][n]
	}
	return x, nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// quantile uses linear interpolation between closest ranks; sorted must be ascending
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
