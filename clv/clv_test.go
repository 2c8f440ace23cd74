package clv

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-analytics/models"
)

var lastDay = time.Date(2011, 12, 9, 0, 0, 0, 0, time.UTC)

// syntheticRFM produces customers whose churn depends on frequency:
// infrequent buyers went quiet long ago, frequent buyers are recent.
func syntheticRFM(n int, seed int64) []models.CustomerRFM {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]models.CustomerRFM, n)
	for i := range rows {
		freq := 1 + rng.Intn(20)
		aov := 10 + rng.Float64()*90
		recency := 5 + rng.Intn(50)
		if freq <= 6 {
			recency = 120 + rng.Intn(200)
		}
		last := lastDay.AddDate(0, 0, -recency)
		first := last.AddDate(0, 0, -rng.Intn(300))
		rows[i] = models.CustomerRFM{
			CustomerID:    fmt.Sprintf("C%04d", i),
			Recency:       recency,
			Frequency:     freq,
			Monetary:      float64(freq) * aov,
			FirstPurchase: first,
			LastPurchase:  last,
		}
	}
	return rows
}

func TestTrainAndScore(t *testing.T) {
	rows := syntheticRFM(100, 1)

	result, err := TrainAndScore(rows, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 20, result.TestSize)
	assert.Equal(t, 80, result.TrainSize)
	require.Len(t, result.Customers, len(rows))

	assert.GreaterOrEqual(t, result.MAE, 0.0)
	assert.False(t, math.IsNaN(result.MAE))
	assert.GreaterOrEqual(t, result.Accuracy, 0.75)
	assert.LessOrEqual(t, result.Accuracy, 1.0)

	for i, c := range result.Customers {
		assert.Equal(t, rows[i].CustomerID, c.CustomerID)
		assert.GreaterOrEqual(t, c.PredictedCLV, 0.0)
		assert.Contains(t, []models.ChurnRisk{models.ChurnLow, models.ChurnMedium, models.ChurnHigh}, c.ChurnRisk)
		assert.Equal(t, DefaultConfig().RiskFor(c.ChurnProbability), c.ChurnRisk)
	}

	require.Len(t, result.RegressionImportance, 3)
	require.Len(t, result.ClassifierImportance, 3)
	for i := 1; i < 3; i++ {
		assert.GreaterOrEqual(t, result.RegressionImportance[i-1].Importance, result.RegressionImportance[i].Importance)
		assert.GreaterOrEqual(t, result.ClassifierImportance[i-1].Importance, result.ClassifierImportance[i].Importance)
	}
	// Frequency drives churn in the synthetic data
	assert.Equal(t, "Frequency", result.ClassifierImportance[0].Feature)
}

func TestTrainAndScoreIsDeterministic(t *testing.T) {
	rows := syntheticRFM(60, 5)

	a, err := TrainAndScore(rows, DefaultConfig())
	require.NoError(t, err)
	b, err := TrainAndScore(rows, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestTrainAndScoreInsufficientData(t *testing.T) {
	tests := []struct {
		name string
		rows []models.CustomerRFM
	}{
		{"empty", nil},
		{"below minimum", syntheticRFM(DefaultMinTrainingRows-1, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainAndScore(tt.rows, DefaultConfig())
			var dataErr *models.InsufficientDataError
			require.True(t, errors.As(err, &dataErr))
		})
	}
}

func TestTrainAndScoreSingleClass(t *testing.T) {
	rows := syntheticRFM(40, 3)
	for i := range rows {
		rows[i].Recency = 1
	}

	_, err := TrainAndScore(rows, DefaultConfig())
	var dataErr *models.InsufficientDataError
	require.True(t, errors.As(err, &dataErr))
	assert.Contains(t, err.Error(), "single class")
}

func TestTrainAndScoreInvalidConfig(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name      string
		mutate    func(c *Config)
		parameter string
	}{
		{"low risk above high", func(c *Config) { c.LowRiskBelow = 0.8 }, "risk_thresholds"},
		{"NaN low risk", func(c *Config) { c.LowRiskBelow = nan }, "risk_thresholds"},
		{"NaN high risk", func(c *Config) { c.HighRiskFrom = nan }, "risk_thresholds"},
		{"NaN tier quantile", func(c *Config) { c.TierHighQuantile = nan }, "tier_quantiles"},
		{"NaN learning rate", func(c *Config) { c.LearningRate = nan }, "learning_rate"},
		{"infinite learning rate", func(c *Config) { c.LearningRate = math.Inf(1) }, "learning_rate"},
		{"NaN ridge lambda", func(c *Config) { c.RidgeLambda = nan }, "ridge_lambda"},
		{"negative ridge lambda", func(c *Config) { c.RidgeLambda = -1 }, "ridge_lambda"},
		{"NaN l2", func(c *Config) { c.L2 = nan }, "l2"},
		{"negative l2", func(c *Config) { c.L2 = -0.5 }, "l2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := TrainAndScore(syntheticRFM(40, 3), cfg)
			var paramErr *models.InvalidParameterError
			require.True(t, errors.As(err, &paramErr), "got %v", err)
			assert.Equal(t, tt.parameter, paramErr.Parameter)
		})
	}
}

func TestExplainIsAdditive(t *testing.T) {
	rows := syntheticRFM(80, 11)
	result, err := TrainAndScore(rows, DefaultConfig())
	require.NoError(t, err)

	X := FeatureMatrix(rows)

	regAttr, err := Explain(result.Regression, result.Scaler, X)
	require.NoError(t, err)
	clfAttr, err := Explain(result.Classifier, result.Scaler, X)
	require.NoError(t, err)

	for i, x := range X {
		z := result.Scaler.Transform(x)

		sum := result.Regression.Intercept()
		for _, v := range regAttr[i] {
			sum += v
		}
		assert.InDelta(t, result.Regression.Predict(z), sum, 1e-9)

		logit := result.Classifier.Intercept()
		for _, v := range clfAttr[i] {
			logit += v
		}
		assert.InDelta(t, result.Classifier.LogOdds(z), logit, 1e-9)
	}

	global := GlobalImportance(result.Regression, regAttr)
	require.Len(t, global, 3)
	assert.GreaterOrEqual(t, global[0].Importance, global[2].Importance)
}

func TestExplainRejectsWrongWidth(t *testing.T) {
	result, err := TrainAndScore(syntheticRFM(40, 4), DefaultConfig())
	require.NoError(t, err)

	_, err = Explain(result.Regression, result.Scaler, [][]float64{{1, 2}})
	var paramErr *models.InvalidParameterError
	require.True(t, errors.As(err, &paramErr))

	_, err = Explain(result.Regression, &Scaler{Mean: []float64{0}, Std: []float64{1}}, [][]float64{{1, 2, 3}})
	require.True(t, errors.As(err, &paramErr))
}

func TestArtifactRoundTrip(t *testing.T) {
	rows := syntheticRFM(50, 8)
	result, err := TrainAndScore(rows, DefaultConfig())
	require.NoError(t, err)

	data, err := EncodeArtifact(ArtifactOf(result))
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := DecodeArtifact(data)
	require.NoError(t, err)

	rescored := restored.Score(rows)
	require.Len(t, rescored, len(result.Customers))
	for i := range rescored {
		assert.InDelta(t, result.Customers[i].PredictedCLV, rescored[i].PredictedCLV, 1e-9)
		assert.InDelta(t, result.Customers[i].ChurnProbability, rescored[i].ChurnProbability, 1e-12)
		assert.Equal(t, result.Customers[i].ChurnRisk, rescored[i].ChurnRisk)
		assert.Equal(t, result.Customers[i].CLVTier, rescored[i].CLVTier)
	}

	_, err = DecodeArtifact([]byte("not a protobuf"))
	assert.Error(t, err)

	_, err = EncodeArtifact(&Artifact{})
	assert.Error(t, err)
}

func TestRiskFor(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		p    float64
		want models.ChurnRisk
	}{
		{0.0, models.ChurnLow},
		{0.329, models.ChurnLow},
		{0.33, models.ChurnMedium},
		{0.659, models.ChurnMedium},
		{0.66, models.ChurnHigh},
		{1.0, models.ChurnHigh},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.3f", tt.p), func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.RiskFor(tt.p))
		})
	}
}

func TestStrategicMatrixAndLists(t *testing.T) {
	rows := syntheticRFM(90, 6)
	result, err := TrainAndScore(rows, DefaultConfig())
	require.NoError(t, err)

	cells := StrategicMatrix(result.Customers)
	require.Len(t, cells, 9)
	total := 0
	for _, c := range cells {
		total += c.Customers
	}
	assert.Equal(t, len(rows), total)

	tiers := make(map[models.ValueTier]int)
	for _, c := range result.Customers {
		tiers[c.CLVTier]++
	}
	assert.Positive(t, tiers[models.TierLow])
	assert.Positive(t, tiers[models.TierMedium])
	assert.Positive(t, tiers[models.TierHigh])

	top := TopByCLV(result.Customers, 10)
	require.Len(t, top, 10)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].PredictedCLV, top[i].PredictedCLV)
	}

	for _, c := range HighRisk(result.Customers, 50) {
		assert.Equal(t, models.ChurnHigh, c.ChurnRisk)
	}
}

func TestSolve(t *testing.T) {
	// 2x + y = 5, x + 3y = 10 -> x = 1, y = 3
	x, err := solve([][]float64{{2, 1}, {1, 3}}, []float64{5, 10})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, x[0], 1e-12)
	assert.InDelta(t, 3.0, x[1], 1e-12)

	_, err = solve([][]float64{{1, 2}, {2, 4}}, []float64{1, 2})
	assert.ErrorIs(t, err, errSingular)
}

func TestSplit(t *testing.T) {
	train, test := split(10, 0.2, 42)
	assert.Len(t, test, 2)
	assert.Len(t, train, 8)

	seen := make(map[int]bool)
	for _, i := range append(train, test...) {
		assert.False(t, seen[i])
		seen[i] = true
	}
	assert.Len(t, seen, 10)

	train, test = split(3, 0.9, 1)
	assert.Len(t, test, 1)
	assert.Len(t, train, 2)
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.0, quantile(sorted, 0), 1e-12)
	assert.InDelta(t, 3.0, quantile(sorted, 0.5), 1e-12)
	assert.InDelta(t, 2.32, quantile(sorted, 0.33), 1e-12)
	assert.Zero(t, quantile(nil, 0.5))
}
