package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-analytics/models"
)

func series(start time.Time, values ...float64) []models.MonthlyPoint {
	out := make([]models.MonthlyPoint, len(values))
	for i, v := range values {
		out[i] = models.MonthlyPoint{Month: start.AddDate(0, i, 0), Revenue: v}
	}
	return out
}

var jan2011 = time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)

func TestForecastSeriesLinearScenario(t *testing.T) {
	result, err := ForecastSeries(series(jan2011, 100, 110, 120, 130), 2, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Points, 2)

	for i, p := range result.Points {
		assert.Greater(t, p.Forecast, 0.0)
		assert.Less(t, p.LowerBound, p.Forecast)
		assert.Less(t, p.Forecast, p.UpperBound)
		assert.Equal(t, jan2011.AddDate(0, 4+i, 0), p.Date)
	}

	assert.InDelta(t, 140.0, result.Points[0].Forecast, 1e-9)
	assert.InDelta(t, 150.0, result.Points[1].Forecast, 1e-9)
	assert.InDelta(t, 140.0*0.85, result.Points[0].LowerBound, 1e-9)
	assert.InDelta(t, 140.0*1.15, result.Points[0].UpperBound, 1e-9)
	assert.InDelta(t, 10.0, result.Trend.Slope, 1e-9)
	assert.InDelta(t, 1.0, result.Trend.R2, 1e-9)
}

func TestForecastFromTable(t *testing.T) {
	var records []models.TransactionRecord
	for i, v := range []float64{100, 110, 120, 130} {
		at := jan2011.AddDate(0, i, 14)
		records = append(records,
			models.TransactionRecord{InvoiceNo: "A", Quantity: 1, UnitPrice: v, TotalAmount: v, InvoiceDate: at},
			models.TransactionRecord{InvoiceNo: "C1", Quantity: -1, UnitPrice: 50, TotalAmount: -50, InvoiceDate: at},
		)
	}

	result, err := Forecast(&models.TransactionTable{Records: records}, 2, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.History, 4)
	assert.InDelta(t, 100.0, result.History[0].Revenue, 1e-9) // Returns excluded
	assert.InDelta(t, 140.0, result.Points[0].Forecast, 1e-9)
}

func TestMonthlySeriesZeroFillsGaps(t *testing.T) {
	table := &models.TransactionTable{Records: []models.TransactionRecord{
		{InvoiceNo: "1", Quantity: 1, TotalAmount: 10, InvoiceDate: time.Date(2011, 1, 5, 0, 0, 0, 0, time.UTC)},
		{InvoiceNo: "2", Quantity: 1, TotalAmount: 20, InvoiceDate: time.Date(2011, 1, 20, 0, 0, 0, 0, time.UTC)},
		{InvoiceNo: "3", Quantity: 1, TotalAmount: 30, InvoiceDate: time.Date(2011, 4, 2, 0, 0, 0, 0, time.UTC)},
	}}

	s := MonthlySeries(table)
	require.Len(t, s, 4)
	assert.InDelta(t, 30.0, s[0].Revenue, 1e-9)
	assert.Equal(t, 2, s[0].Orders)
	assert.Zero(t, s[1].Revenue)
	assert.Zero(t, s[2].Revenue)
	assert.InDelta(t, 30.0, s[3].Revenue, 1e-9)

	for i := 1; i < len(s); i++ {
		assert.True(t, s[i].Month.After(s[i-1].Month))
	}
}

func TestForecastInsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		history []models.MonthlyPoint
	}{
		{"empty", nil},
		{"single month", series(jan2011, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ForecastSeries(tt.history, 3, DefaultConfig())
			var dataErr *models.InsufficientDataError
			require.True(t, errors.As(err, &dataErr))
		})
	}

	_, err := Forecast(&models.TransactionTable{}, 3, DefaultConfig())
	var dataErr *models.InsufficientDataError
	require.True(t, errors.As(err, &dataErr))
}

func TestForecastInvalidPeriods(t *testing.T) {
	for _, periods := range []int{-1, 0, 61} {
		_, err := ForecastSeries(series(jan2011, 1, 2, 3), periods, DefaultConfig())
		var paramErr *models.InvalidParameterError
		require.True(t, errors.As(err, &paramErr), "periods=%d", periods)
		assert.Equal(t, "periods", paramErr.Parameter)
	}
}

func TestForecastRejectsUnorderedHistory(t *testing.T) {
	h := series(jan2011, 1, 2, 3)
	h[1], h[2] = h[2], h[1]

	_, err := ForecastSeries(h, 1, DefaultConfig())
	var paramErr *models.InvalidParameterError
	require.True(t, errors.As(err, &paramErr))
}

func TestForecastBoundsWidenWithHorizon(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HorizonGrowth = 0.02
	cfg.MaxMargin = 0.25

	result, err := ForecastSeries(series(jan2011, 100, 120, 115, 140, 150, 160), 12, cfg)
	require.NoError(t, err)

	prev := 0.0
	for _, p := range result.Points {
		require.LessOrEqual(t, p.LowerBound, p.Forecast)
		require.LessOrEqual(t, p.Forecast, p.UpperBound)

		rel := (p.UpperBound - p.Forecast) / p.Forecast
		assert.GreaterOrEqual(t, rel+1e-12, prev)
		assert.LessOrEqual(t, rel, 0.25+1e-12)
		prev = rel
	}
}

func TestForecastPredictionInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PredictionInterval = true
	cfg.BaseMargin = 0

	result, err := ForecastSeries(series(jan2011, 100, 140, 90, 160, 120, 180), 4, cfg)
	require.NoError(t, err)

	prevWidth := 0.0
	for _, p := range result.Points {
		width := p.UpperBound - p.Forecast
		assert.Greater(t, width, 0.0)
		assert.GreaterOrEqual(t, width, prevWidth)
		prevWidth = width
	}
}

func TestForecastNeverNegative(t *testing.T) {
	result, err := ForecastSeries(series(jan2011, 500, 300, 100), 6, DefaultConfig())
	require.NoError(t, err)

	for _, p := range result.Points {
		assert.GreaterOrEqual(t, p.Forecast, 0.0)
		assert.GreaterOrEqual(t, p.LowerBound, 0.0)
		assert.LessOrEqual(t, p.LowerBound, p.Forecast)
		assert.LessOrEqual(t, p.Forecast, p.UpperBound)
	}
}

func TestForecastIsDeterministic(t *testing.T) {
	h := series(jan2011, 10, 30, 20, 50, 40, 70)

	a, err := ForecastSeries(h, 5, DefaultConfig())
	require.NoError(t, err)
	b, err := ForecastSeries(h, 5, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a.Points, b.Points)
}

func TestForecastSeasonality(t *testing.T) {
	// Two years of flat revenue with a December spike
	var values []float64
	for i := 0; i < 24; i++ {
		v := 100.0
		if i%12 == 11 {
			v = 300
		}
		values = append(values, v)
	}

	result, err := ForecastSeries(series(jan2011, values...), 12, DefaultConfig())
	require.NoError(t, err)
	require.True(t, result.Seasonal)

	var dec, jun models.ForecastPoint
	for _, p := range result.Points {
		switch p.Date.Month() {
		case time.December:
			dec = p
		case time.June:
			jun = p
		}
	}
	assert.Greater(t, dec.Forecast, 2*jun.Forecast)

	assert.InDelta(t, 300.0, result.Seasonality[11].AvgRevenue, 1e-9)
	assert.Equal(t, 2, result.Seasonality[11].Observations)

	cfg := DefaultConfig()
	cfg.Seasonal = false
	flat, err := ForecastSeries(series(jan2011, values...), 12, cfg)
	require.NoError(t, err)
	assert.False(t, flat.Seasonal)
}

func TestForecastSummary(t *testing.T) {
	result, err := ForecastSeries(series(jan2011, 100, 110, 120, 130), 2, DefaultConfig())
	require.NoError(t, err)

	s := result.Summary
	assert.InDelta(t, 115.0, s.HistoricalAvg, 1e-9)
	assert.InDelta(t, 145.0, s.ForecastAvg, 1e-9)
	assert.InDelta(t, 290.0, s.ForecastTotal, 1e-9)
	assert.InDelta(t, (145.0-115.0)/115.0*100, s.GrowthPct, 1e-9)
	assert.Equal(t, jan2011.AddDate(0, 3, 0), s.PeakMonth)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative margin", func(c *Config) { c.BaseMargin = -0.1 }},
		{"margin of one", func(c *Config) { c.BaseMargin = 1 }},
		{"nan growth", func(c *Config) { c.HorizonGrowth = math.NaN() }},
		{"max below base", func(c *Config) { c.MaxMargin = 0.1 }},
		{"bad confidence", func(c *Config) { c.PredictionInterval = true; c.ConfidenceLevel = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}
