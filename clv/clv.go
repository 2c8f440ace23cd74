// Package clv trains a customer lifetime value regression and a churn
// classifier over RFM-derived features and explains their outputs.
package clv

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"retail-analytics/models"
)

// ScoredCustomer is an RFM row with its model outputs attached
type ScoredCustomer struct {
	models.CustomerRFM
	PredictedCLV     float64          `json:"predicted_clv"`
	ChurnProbability float64          `json:"churn_probability"`
	ChurnRisk        models.ChurnRisk `json:"churn_risk"`
	CLVTier          models.ValueTier `json:"clv_tier"`
}

// Prediction returns the export row for the customer
func (s ScoredCustomer) Prediction() models.CLVPrediction {
	return models.CLVPrediction{
		CustomerID:       s.CustomerID,
		PredictedCLV:     s.PredictedCLV,
		ChurnProbability: s.ChurnProbability,
		ChurnRisk:        s.ChurnRisk,
		CLVTier:          s.CLVTier,
	}
}

// Result holds the trained models, their evaluation and every scored customer
type Result struct {
	Customers            []ScoredCustomer           `json:"customers"`
	Regression           *LinearModel               `json:"regression"`
	Classifier           *LogisticModel             `json:"classifier"`
	Scaler               *Scaler                    `json:"scaler"`
	RegressionImportance []models.FeatureImportance `json:"regression_importance"`
	ClassifierImportance []models.FeatureImportance `json:"classifier_importance"`
	MAE                  float64                    `json:"mae"`
	Accuracy             float64                    `json:"accuracy"`
	TrainSize            int                        `json:"train_size"`
	TestSize             int                        `json:"test_size"`
	Config               Config                     `json:"config"`
}

// TrainAndScore fits both models on a seeded split and scores every customer.
// CLV target is Monetary; churn label is Recency > ChurnRecencyDays.
func TrainAndScore(rows []models.CustomerRFM, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(rows) < cfg.MinTrainingRows {
		return nil, models.NewInsufficientDataError("clv training", cfg.MinTrainingRows, len(rows))
	}

	X := FeatureMatrix(rows)
	target := make([]float64, len(rows))
	churned := make([]bool, len(rows))
	positives := 0
	for i, r := range rows {
		target[i] = r.Monetary
		churned[i] = r.Recency > cfg.ChurnRecencyDays
		if churned[i] {
			positives++
		}
	}
	if positives == 0 || positives == len(rows) {
		return nil, models.NewInsufficientDataErrorWithReason("churn training",
			fmt.Sprintf("churn labels contain a single class (%d of %d churned)", positives, len(rows)))
	}

	trainIdx, testIdx := split(len(rows), cfg.TestFraction, cfg.Seed)

	trainX := pick(X, trainIdx)
	scaler := FitScaler(trainX)
	trainZ := scaler.TransformAll(trainX)

	trainY := make([]float64, len(trainIdx))
	trainLabels := make([]bool, len(trainIdx))
	for k, i := range trainIdx {
		trainY[k] = target[i]
		trainLabels[k] = churned[i]
	}

	regression, err := fitLinear(trainZ, trainY, cfg.RidgeLambda)
	if err != nil {
		return nil, fmt.Errorf("fit clv regression: %w", err)
	}
	classifier := fitLogistic(trainZ, trainLabels, cfg.LearningRate, cfg.Iterations, cfg.L2)

	// Evaluation on the held-out rows
	var absErr float64
	correct := 0
	for _, i := range testIdx {
		z := scaler.Transform(X[i])
		absErr += math.Abs(math.Max(0, regression.Predict(z)) - target[i])
		if (classifier.Probability(z) >= 0.5) == churned[i] {
			correct++
		}
	}

	result := &Result{
		Regression:           regression,
		Classifier:           classifier,
		Scaler:               scaler,
		RegressionImportance: Importance(regression),
		ClassifierImportance: Importance(classifier),
		MAE:                  absErr / float64(len(testIdx)),
		Accuracy:             float64(correct) / float64(len(testIdx)),
		TrainSize:            len(trainIdx),
		TestSize:             len(testIdx),
		Config:               cfg,
	}
	result.Customers = Score(rows, scaler, regression, classifier, cfg)
	return result, nil
}

// Score applies trained models to customers and assigns risk and value tiers
func Score(rows []models.CustomerRFM, scaler *Scaler, regression *LinearModel, classifier *LogisticModel, cfg Config) []ScoredCustomer {
	out := make([]ScoredCustomer, len(rows))
	values := make([]float64, len(rows))
	for i, r := range rows {
		z := scaler.Transform(FeatureVector(r))
		prob := classifier.Probability(z)
		out[i] = ScoredCustomer{
			CustomerRFM:      r,
			PredictedCLV:     math.Max(0, regression.Predict(z)),
			ChurnProbability: prob,
			ChurnRisk:        cfg.RiskFor(prob),
		}
		values[i] = out[i].PredictedCLV
	}

	sort.Float64s(values)
	low := quantile(values, cfg.TierLowQuantile)
	high := quantile(values, cfg.TierHighQuantile)
	for i := range out {
		switch v := out[i].PredictedCLV; {
		case v <= low:
			out[i].CLVTier = models.TierLow
		case v <= high:
			out[i].CLVTier = models.TierMedium
		default:
			out[i].CLVTier = models.TierHigh
		}
	}
	return out
}

// split shuffles row indices with a fixed seed; at least one row is held out
// and at least two remain for training
func split(n int, testFraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testN := int(math.Round(float64(n) * testFraction))
	if testN < 1 {
		testN = 1
	}
	if n-testN < 2 {
		testN = n - 2
	}
	test = append([]int(nil), perm[:testN]...)
	train = append([]int(nil), perm[testN:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test
}

func pick(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for k, i := range idx {
		out[k] = X[i]
	}
	return out
}

// Importance ranks features by absolute standardized coefficient
func Importance(m Model) []models.FeatureImportance {
	names := m.Features()
	out := make([]models.FeatureImportance, len(m.Weights()))
	for j, w := range m.Weights() {
		name := fmt.Sprintf("feature_%d", j)
		if j < len(names) {
			name = names[j]
		}
		out[j] = models.FeatureImportance{Feature: name, Importance: math.Abs(w)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// Explain returns additive per-feature contributions for each row, in model
// output units (CLV for the regression, log-odds for the classifier). For every
// row, Intercept() plus the sum of contributions equals the raw model output.
func Explain(m Model, scaler *Scaler, features [][]float64) ([][]float64, error) {
	weights := m.Weights()
	if scaler == nil || len(scaler.Mean) != len(weights) {
		return nil, models.NewInvalidParameterError("scaler", "does not match model feature count", len(weights))
	}

	out := make([][]float64, len(features))
	for i, x := range features {
		if len(x) != len(weights) {
			return nil, models.NewInvalidParameterError("features",
				fmt.Sprintf("row %d has %d values, model expects %d", i, len(x), len(weights)), len(x))
		}
		z := scaler.Transform(x)
		contrib := make([]float64, len(weights))
		for j := range weights {
			contrib[j] = weights[j] * z[j]
		}
		out[i] = contrib
	}
	return out, nil
}

// GlobalImportance averages absolute contributions per feature across rows
func GlobalImportance(m Model, attributions [][]float64) []models.FeatureImportance {
	names := m.Features()
	sums := make([]float64, len(names))
	for _, row := range attributions {
		for j := range sums {
			if j < len(row) {
				sums[j] += math.Abs(row[j])
			}
		}
	}

	out := make([]models.FeatureImportance, len(names))
	for j, name := range names {
		imp := 0.0
		if len(attributions) > 0 {
			imp = sums[j] / float64(len(attributions))
		}
		out[j] = models.FeatureImportance{Feature: name, Importance: imp}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}
