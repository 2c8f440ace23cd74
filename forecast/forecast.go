// Package forecast aggregates revenue into a monthly series and projects it
// forward with a bounded uncertainty band.
package forecast

import (
	"math"
	"time"

	"retail-analytics/models"
)

// MinHistoryMonths is the shortest history a trend can be estimated from
const MinHistoryMonths = 2

// Summary condenses a forecast for display
type Summary struct {
	HistoricalAvg float64   `json:"historical_avg"`
	ForecastAvg   float64   `json:"forecast_avg"`
	GrowthPct     float64   `json:"growth_pct"`
	ForecastTotal float64   `json:"forecast_total"`
	PeakMonth     time.Time `json:"peak_month"`
	PeakRevenue   float64   `json:"peak_revenue"`
}

// SeasonalPoint is the average revenue seen in one calendar month
type SeasonalPoint struct {
	Month        time.Month `json:"month"`
	Name         string     `json:"name"`
	AvgRevenue   float64    `json:"avg_revenue"`
	Observations int        `json:"observations"`
	Index        float64    `json:"index"` // Seasonal multiplier, 1 when seasonality is off
}

// Result is the full forecast output
type Result struct {
	History     []models.MonthlyPoint  `json:"history"`
	Points      []models.ForecastPoint `json:"points"`
	Trend       Trend                  `json:"trend"`
	Summary     Summary                `json:"summary"`
	Seasonality []SeasonalPoint        `json:"seasonality"`
	Seasonal    bool                   `json:"seasonal"` // Whether seasonal indices were applied
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthIndex counts months between two month starts
func monthIndex(origin, m time.Time) int {
	return (m.Year()-origin.Year())*12 + int(m.Month()-origin.Month())
}

// MonthlySeries sums non-return revenue per calendar month. Months between the
// first and last observed month with no sales are present with zero revenue.
func MonthlySeries(table *models.TransactionTable) []models.MonthlyPoint {
	if table.Len() == 0 {
		return []models.MonthlyPoint{}
	}

	revenue := make(map[time.Time]float64)
	orders := make(map[time.Time]map[string]bool)
	var first, last time.Time
	seen := false

	for _, r := range table.Records {
		if r.IsReturn() {
			continue
		}
		m := monthStart(r.InvoiceDate)
		revenue[m] += r.TotalAmount
		if orders[m] == nil {
			orders[m] = make(map[string]bool)
		}
		orders[m][r.InvoiceNo] = true

		if !seen || m.Before(first) {
			first = m
		}
		if !seen || m.After(last) {
			last = m
		}
		seen = true
	}
	if !seen {
		return []models.MonthlyPoint{}
	}

	series := make([]models.MonthlyPoint, 0, monthIndex(first, last)+1)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		series = append(series, models.MonthlyPoint{
			Month:   m,
			Revenue: revenue[m],
			Orders:  len(orders[m]),
		})
	}
	return series
}

// Forecast aggregates the table and projects periods months ahead
func Forecast(table *models.TransactionTable, periods int, cfg Config) (*Result, error) {
	if err := validate(periods, cfg); err != nil {
		return nil, err
	}
	return project(MonthlySeries(table), periods, cfg)
}

// ForecastSeries projects an existing monthly series. Months must be strictly increasing.
func ForecastSeries(history []models.MonthlyPoint, periods int, cfg Config) (*Result, error) {
	if err := validate(periods, cfg); err != nil {
		return nil, err
	}
	for i := 1; i < len(history); i++ {
		if !monthStart(history[i].Month).After(monthStart(history[i-1].Month)) {
			return nil, models.NewInvalidParameterError("history", "months must be strictly increasing", history[i].Month.Format("2006-01"))
		}
	}
	return project(history, periods, cfg)
}

func validate(periods int, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if periods < 1 || periods > cfg.MaxPeriods {
		return models.NewInvalidParameterError("periods", "must be between 1 and max_periods", periods)
	}
	return nil
}

func project(history []models.MonthlyPoint, periods int, cfg Config) (*Result, error) {
	if len(history) < MinHistoryMonths {
		return nil, models.NewInsufficientDataError("forecast", MinHistoryMonths, len(history))
	}

	origin := monthStart(history[0].Month)
	x := make([]float64, len(history))
	y := make([]float64, len(history))
	for i, p := range history {
		x[i] = float64(monthIndex(origin, monthStart(p.Month)))
		y[i] = p.Revenue
	}

	trend := fitTrend(x, y)
	seasonality, seasonal := seasonalIndices(history, trend, x, cfg)

	lastMonth := monthStart(history[len(history)-1].Month)
	lastX := x[len(x)-1]
	tStat := tStatistics[cfg.ConfidenceLevel]

	points := make([]models.ForecastPoint, periods)
	for h := 1; h <= periods; h++ {
		date := lastMonth.AddDate(0, h, 0)
		xh := lastX + float64(h)

		index := 1.0
		if seasonal {
			index = seasonality[date.Month()-1].Index
		}
		value := math.Max(0, trend.At(xh)*index)

		half := value * cfg.margin(h)
		if cfg.PredictionInterval {
			half = math.Max(half, trend.intervalHalfWidth(xh, tStat)*index)
		}

		points[h-1] = models.ForecastPoint{
			Date:       date,
			Forecast:   value,
			LowerBound: math.Max(0, value-half),
			UpperBound: value + half,
		}
	}

	return &Result{
		History:     history,
		Points:      points,
		Trend:       trend,
		Summary:     summarize(history, points),
		Seasonality: seasonality,
		Seasonal:    seasonal,
	}, nil
}

// seasonalIndices averages revenue per calendar month and, with enough
// history, derives multiplicative indices from actual/trend ratios normalized to mean 1.
func seasonalIndices(history []models.MonthlyPoint, trend Trend, x []float64, cfg Config) ([]SeasonalPoint, bool) {
	points := make([]SeasonalPoint, 12)
	ratioSum := make([]float64, 12)
	ratioCount := make([]int, 12)

	for i := range points {
		m := time.Month(i + 1)
		points[i] = SeasonalPoint{Month: m, Name: m.String(), Index: 1}
	}

	for i, p := range history {
		k := int(p.Month.Month()) - 1
		points[k].AvgRevenue += p.Revenue
		points[k].Observations++

		if fitted := trend.At(x[i]); fitted > 0 {
			ratioSum[k] += p.Revenue / fitted
			ratioCount[k]++
		}
	}
	for i := range points {
		if points[i].Observations > 0 {
			points[i].AvgRevenue /= float64(points[i].Observations)
		}
	}

	if !cfg.Seasonal || len(history) < cfg.MinSeasonalMonths {
		return points, false
	}
	for _, c := range ratioCount {
		if c == 0 {
			return points, false
		}
	}

	var mean float64
	raw := make([]float64, 12)
	for i := range raw {
		raw[i] = ratioSum[i] / float64(ratioCount[i])
		mean += raw[i]
	}
	mean /= 12
	if mean <= 0 {
		return points, false
	}
	for i := range points {
		points[i].Index = raw[i] / mean
	}
	return points, true
}

func summarize(history []models.MonthlyPoint, points []models.ForecastPoint) Summary {
	var s Summary
	for i, p := range history {
		s.HistoricalAvg += p.Revenue
		if i == 0 || p.Revenue > s.PeakRevenue {
			s.PeakRevenue = p.Revenue
			s.PeakMonth = p.Month
		}
	}
	s.HistoricalAvg /= float64(len(history))

	for _, p := range points {
		s.ForecastTotal += p.Forecast
	}
	s.ForecastAvg = s.ForecastTotal / float64(len(points))

	if s.HistoricalAvg != 0 {
		s.GrowthPct = (s.ForecastAvg - s.HistoricalAvg) / math.Abs(s.HistoricalAvg) * 100
	}
	return s
}
