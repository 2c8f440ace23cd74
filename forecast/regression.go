package forecast

import "math"

// Trend is a least-squares line fitted over month indices
type Trend struct {
	Slope     float64 `json:"slope"`     // Revenue change per month
	Intercept float64 `json:"intercept"` // Revenue at index 0
	R2        float64 `json:"r2"`

	n           float64
	meanX       float64
	sumSqDevX   float64
	stdErrorEst float64
}

// fitTrend computes slope and intercept with the closed-form least-squares formulas:
// a = (n*sum(xy) - sum(x)*sum(y)) / (n*sum(x^2) - sum(x)^2), b = (sum(y) - a*sum(x)) / n
func fitTrend(x, y []float64) Trend {
	n := float64(len(x))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}

	t := Trend{n: n, meanX: sumX / n}

	denominator := n*sumX2 - sumX*sumX
	if math.Abs(denominator) < 1e-12 {
		// All points at the same x: flat line through the mean
		t.Intercept = sumY / n
		return t
	}

	t.Slope = (n*sumXY - sumX*sumY) / denominator
	t.Intercept = (sumY - t.Slope*sumX) / n

	corrDen := math.Sqrt(denominator * (n*sumY2 - sumY*sumY))
	if corrDen > 1e-12 {
		r := (n*sumXY - sumX*sumY) / corrDen
		t.R2 = r * r
	}

	var sumSqResiduals float64
	for i := range x {
		d := x[i] - t.meanX
		t.sumSqDevX += d * d
		res := y[i] - t.At(x[i])
		sumSqResiduals += res * res
	}
	if n > 2 {
		t.stdErrorEst = math.Sqrt(sumSqResiduals / (n - 2))
	}
	return t
}

// At evaluates the trend line
func (t Trend) At(x float64) float64 {
	return t.Slope*x + t.Intercept
}

// intervalHalfWidth is the prediction-interval half width at x for a t statistic
func (t Trend) intervalHalfWidth(x, tStat float64) float64 {
	if t.sumSqDevX == 0 || t.n == 0 {
		return 0
	}
	d := x - t.meanX
	return tStat * t.stdErrorEst * math.Sqrt(1+1/t.n+d*d/t.sumSqDevX)
}
