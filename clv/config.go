package clv

import (
	"math"

	"retail-analytics/models"
)

// Default policy constants. Churn risk thresholds are applied to the
// classifier's churn probability: p < LowRiskBelow is Low, p < HighRiskFrom
// is Medium, anything else is High.
const (
	DefaultMinTrainingRows  = 20
	DefaultChurnRecencyDays = 90
	DefaultTestFraction     = 0.2
	DefaultSeed             = 42
	DefaultRidgeLambda      = 1e-3
	DefaultLearningRate     = 0.1
	DefaultIterations       = 1000
	DefaultL2               = 1e-3
	DefaultLowRiskBelow     = 0.33
	DefaultHighRiskFrom     = 0.66
	DefaultTierLowQuantile  = 0.33
	DefaultTierHighQuantile = 0.66
)

// Config holds training hyperparameters and scoring policy
type Config struct {
	MinTrainingRows  int
	ChurnRecencyDays int // Customers silent for longer are labelled churned
	TestFraction     float64
	Seed             int64

	RidgeLambda  float64
	LearningRate float64
	Iterations   int
	L2           float64

	LowRiskBelow float64
	HighRiskFrom float64

	TierLowQuantile  float64
	TierHighQuantile float64
}

// DefaultConfig returns the default training config
func DefaultConfig() Config {
	return Config{
		MinTrainingRows:  DefaultMinTrainingRows,
		ChurnRecencyDays: DefaultChurnRecencyDays,
		TestFraction:     DefaultTestFraction,
		Seed:             DefaultSeed,
		RidgeLambda:      DefaultRidgeLambda,
		LearningRate:     DefaultLearningRate,
		Iterations:       DefaultIterations,
		L2:               DefaultL2,
		LowRiskBelow:     DefaultLowRiskBelow,
		HighRiskFrom:     DefaultHighRiskFrom,
		TierLowQuantile:  DefaultTierLowQuantile,
		TierHighQuantile: DefaultTierHighQuantile,
	}
}

// Validate checks every hyperparameter domain
func (c Config) Validate() error {
	switch {
	case c.MinTrainingRows < 3:
		return models.NewInvalidParameterError("min_training_rows", "must be >= 3", c.MinTrainingRows)
	case c.ChurnRecencyDays < 0:
		return models.NewInvalidParameterError("churn_recency_days", "must be >= 0", c.ChurnRecencyDays)
	case math.IsNaN(c.TestFraction) || c.TestFraction <= 0 || c.TestFraction >= 1:
		return models.NewInvalidParameterError("test_fraction", "must be within (0, 1)", c.TestFraction)
	case !finite(c.RidgeLambda) || c.RidgeLambda < 0:
		return models.NewInvalidParameterError("ridge_lambda", "must be a finite value >= 0", c.RidgeLambda)
	case !finite(c.L2) || c.L2 < 0:
		return models.NewInvalidParameterError("l2", "must be a finite value >= 0", c.L2)
	case !finite(c.LearningRate) || c.LearningRate <= 0:
		return models.NewInvalidParameterError("learning_rate", "must be a finite value > 0", c.LearningRate)
	case c.Iterations < 1:
		return models.NewInvalidParameterError("iterations", "must be >= 1", c.Iterations)
	case !inUnitOrder(c.LowRiskBelow, c.HighRiskFrom):
		return models.NewInvalidParameterError("risk_thresholds", "need 0 < low < high < 1", [2]float64{c.LowRiskBelow, c.HighRiskFrom})
	case !inUnitOrder(c.TierLowQuantile, c.TierHighQuantile):
		return models.NewInvalidParameterError("tier_quantiles", "need 0 < low < high < 1", [2]float64{c.TierLowQuantile, c.TierHighQuantile})
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// inUnitOrder holds when 0 < low < high < 1; NaN never satisfies it
func inUnitOrder(low, high float64) bool {
	return low > 0 && high < 1 && low < high
}

// RiskFor maps a churn probability to its ordinal category
func (c Config) RiskFor(probability float64) models.ChurnRisk {
	switch {
	case probability < c.LowRiskBelow:
		return models.ChurnLow
	case probability < c.HighRiskFrom:
		return models.ChurnMedium
	default:
		return models.ChurnHigh
	}
}
