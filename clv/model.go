package clv

import (
	"math"

	"retail-analytics/models"
)

// FeatureNames is the fixed training column order
var FeatureNames = []string{"Frequency", "AvgOrderValue", "Lifespan"}

// FeatureVector extracts one customer's inputs in FeatureNames order
func FeatureVector(r models.CustomerRFM) []float64 {
	return []float64{
		float64(r.Frequency),
		r.AvgOrderValue(),
		float64(r.LifespanDays()),
	}
}

// FeatureMatrix builds model inputs for many customers in training order
func FeatureMatrix(rows []models.CustomerRFM) [][]float64 {
	X := make([][]float64, len(rows))
	for i, r := range rows {
		X[i] = FeatureVector(r)
	}
	return X
}

// Scaler standardizes features to zero mean and unit variance
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler learns per-column mean and population standard deviation.
// Constant columns get Std 1 so they transform to zero.
func FitScaler(X [][]float64) *Scaler {
	if len(X) == 0 {
		return &Scaler{}
	}
	dim := len(X[0])
	s := &Scaler{Mean: make([]float64, dim), Std: make([]float64, dim)}
	n := float64(len(X))

	for _, row := range X {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		if s.Std[j] < 1e-12 {
			s.Std[j] = 1
		}
	}
	return s
}

// Transform standardizes one row
func (s *Scaler) Transform(x []float64) []float64 {
	z := make([]float64, len(x))
	for j, v := range x {
		z[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return z
}

// TransformAll standardizes many rows
func (s *Scaler) TransformAll(X [][]float64) [][]float64 {
	Z := make([][]float64, len(X))
	for i, x := range X {
		Z[i] = s.Transform(x)
	}
	return Z
}

// Model is a linear scorer over standardized features
type Model interface {
	Weights() []float64
	Intercept() float64
	Features() []string
}

// LinearModel is a ridge regression predicting customer value
type LinearModel struct {
	Coef         []float64 `json:"coef"`
	Bias         float64   `json:"bias"`
	FeatureNames []string  `json:"features"`
}

func (m *LinearModel) Weights() []float64 { return m.Coef }
func (m *LinearModel) Intercept() float64 { return m.Bias }
func (m *LinearModel) Features() []string { return m.FeatureNames }

// Predict returns the raw regression output for a standardized row
func (m *LinearModel) Predict(z []float64) float64 {
	return m.Bias + dot(m.Coef, z)
}

// fitLinear solves (ZᵀZ + λI) w = Zᵀ(y - ȳ). Columns of Z are centred by the
// scaler, so the intercept is the target mean.
func fitLinear(Z [][]float64, y []float64, lambda float64) (*LinearModel, error) {
	dim := len(Z[0])
	n := float64(len(y))

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= n

	A := make([][]float64, dim)
	for i := range A {
		A[i] = make([]float64, dim)
	}
	b := make([]float64, dim)

	for r, z := range Z {
		centred := y[r] - mean
		for i := 0; i < dim; i++ {
			b[i] += z[i] * centred
			for j := 0; j < dim; j++ {
				A[i][j] += z[i] * z[j]
			}
		}
	}
	for i := 0; i < dim; i++ {
		A[i][i] += lambda * n
	}

	w, err := solve(A, b)
	if err != nil {
		return nil, err
	}
	return &LinearModel{Coef: w, Bias: mean, FeatureNames: append([]string(nil), FeatureNames...)}, nil
}

// LogisticModel is a binary churn classifier
type LogisticModel struct {
	Coef         []float64 `json:"coef"`
	Bias         float64   `json:"bias"`
	FeatureNames []string  `json:"features"`
}

func (m *LogisticModel) Weights() []float64 { return m.Coef }
func (m *LogisticModel) Intercept() float64 { return m.Bias }
func (m *LogisticModel) Features() []string { return m.FeatureNames }

// LogOdds returns the raw linear score for a standardized row
func (m *LogisticModel) LogOdds(z []float64) float64 {
	return m.Bias + dot(m.Coef, z)
}

// Probability returns the churn probability for a standardized row
func (m *LogisticModel) Probability(z []float64) float64 {
	return sigmoid(m.LogOdds(z))
}

// fitLogistic runs full-batch gradient descent from zero weights; no randomness
func fitLogistic(Z [][]float64, labels []bool, lr float64, iterations int, l2 float64) *LogisticModel {
	dim := len(Z[0])
	n := float64(len(Z))
	w := make([]float64, dim)
	bias := 0.0
	grad := make([]float64, dim)

	for it := 0; it < iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		gradB := 0.0

		for i, z := range Z {
			target := 0.0
			if labels[i] {
				target = 1
			}
			diff := sigmoid(bias+dot(w, z)) - target
			for j := range grad {
				grad[j] += diff * z[j]
			}
			gradB += diff
		}

		for j := range w {
			w[j] -= lr * (grad[j]/n + l2*w[j])
		}
		bias -= lr * gradB / n
	}

	return &LogisticModel{Coef: w, Bias: bias, FeatureNames: append([]string(nil), FeatureNames...)}
}
