package forecast

import (
	"math"

	"retail-analytics/models"
)

const (
	// DefaultPeriods is the horizon used when the caller does not pick one
	DefaultPeriods = 12

	defaultBaseMargin        = 0.15
	defaultHorizonGrowth     = 0.0
	defaultMaxMargin         = 0.50
	defaultMaxPeriods        = 60
	defaultMinSeasonalMonths = 24
	defaultConfidenceLevel   = 0.95
)

// Config controls the projection and its uncertainty band
type Config struct {
	// Bounds are Forecast x (1 +/- margin) with margin growing per step ahead:
	// min(BaseMargin + HorizonGrowth*(h-1), MaxMargin)
	BaseMargin    float64
	HorizonGrowth float64
	MaxMargin     float64

	// When set, the band is widened to at least the regression prediction interval
	PredictionInterval bool
	ConfidenceLevel    float64 // 0.90, 0.95 or 0.99

	// Seasonal applies per-calendar-month indices once MinSeasonalMonths are available
	Seasonal          bool
	MinSeasonalMonths int

	MaxPeriods int
}

// DefaultConfig returns a constant ±15% band; seasonal indices apply once two
// years of history exist
func DefaultConfig() Config {
	return Config{
		BaseMargin:        defaultBaseMargin,
		HorizonGrowth:     defaultHorizonGrowth,
		MaxMargin:         defaultMaxMargin,
		ConfidenceLevel:   defaultConfidenceLevel,
		Seasonal:          true,
		MinSeasonalMonths: defaultMinSeasonalMonths,
		MaxPeriods:        defaultMaxPeriods,
	}
}

// Validate checks the band configuration
func (c Config) Validate() error {
	if math.IsNaN(c.BaseMargin) || c.BaseMargin < 0 || c.BaseMargin >= 1 {
		return models.NewInvalidParameterError("base_margin", "must be within [0, 1)", c.BaseMargin)
	}
	if math.IsNaN(c.HorizonGrowth) || c.HorizonGrowth < 0 {
		return models.NewInvalidParameterError("horizon_growth", "must be >= 0", c.HorizonGrowth)
	}
	if math.IsNaN(c.MaxMargin) || c.MaxMargin < c.BaseMargin {
		return models.NewInvalidParameterError("max_margin", "must be >= base_margin", c.MaxMargin)
	}
	if c.MaxPeriods < 1 {
		return models.NewInvalidParameterError("max_periods", "must be >= 1", c.MaxPeriods)
	}
	if c.PredictionInterval {
		if _, ok := tStatistics[c.ConfidenceLevel]; !ok {
			return models.NewInvalidParameterError("confidence_level", "must be 0.90, 0.95 or 0.99", c.ConfidenceLevel)
		}
	}
	return nil
}

// margin returns the relative half-width for the h-th step ahead (h starts at 1)
func (c Config) margin(h int) float64 {
	m := c.BaseMargin + c.HorizonGrowth*float64(h-1)
	if m > c.MaxMargin {
		m = c.MaxMargin
	}
	return m
}

// tStatistics approximates Student's t for common confidence levels
var tStatistics = map[float64]float64{
	0.90: 1.64,
	0.95: 2.0,
	0.99: 2.58,
}
