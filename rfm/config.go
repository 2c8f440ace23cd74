package rfm

import "retail-analytics/models"

// ScoreBins is the number of quantile buckets used for R, F and M scores
const ScoreBins = 5

// SegmentRule matches customers whose scores fall inside every inclusive range
type SegmentRule struct {
	Segment models.Segment `json:"segment"`
	RMin    int            `json:"r_min"`
	RMax    int            `json:"r_max"`
	FMin    int            `json:"f_min"`
	FMax    int            `json:"f_max"`
	MMin    int            `json:"m_min"`
	MMax    int            `json:"m_max"`
}

// Matches reports whether the scores fall inside the rule
func (r SegmentRule) Matches(rScore, fScore, mScore int) bool {
	return rScore >= r.RMin && rScore <= r.RMax &&
		fScore >= r.FMin && fScore <= r.FMax &&
		mScore >= r.MMin && mScore <= r.MMax
}

// Config holds segmentation policy. Rules are evaluated in order; first match wins
// and customers matching nothing fall back to Others.
type Config struct {
	Rules []SegmentRule
}

// DefaultRules is the segmentation policy used when none is configured
func DefaultRules() []SegmentRule {
	return []SegmentRule{
		{Segment: models.Champions, RMin: 4, RMax: 5, FMin: 4, FMax: 5, MMin: 4, MMax: 5},
		{Segment: models.LoyalCustomers, RMin: 3, RMax: 5, FMin: 4, FMax: 5, MMin: 1, MMax: 5},
		{Segment: models.NewCustomers, RMin: 5, RMax: 5, FMin: 1, FMax: 1, MMin: 1, MMax: 5},
		{Segment: models.PotentialLoyalists, RMin: 4, RMax: 5, FMin: 2, FMax: 3, MMin: 1, MMax: 5},
		{Segment: models.Promising, RMin: 3, RMax: 4, FMin: 1, FMax: 1, MMin: 1, MMax: 5},
		{Segment: models.AtRisk, RMin: 1, RMax: 2, FMin: 3, FMax: 5, MMin: 3, MMax: 5},
		{Segment: models.Hibernating, RMin: 2, RMax: 3, FMin: 1, FMax: 3, MMin: 1, MMax: 5},
		{Segment: models.Lost, RMin: 1, RMax: 1, FMin: 1, FMax: 2, MMin: 1, MMax: 5},
	}
}

// DefaultConfig returns the default segmentation config
func DefaultConfig() Config {
	return Config{Rules: DefaultRules()}
}

// Validate checks that every rule range is well formed
func (c Config) Validate() error {
	for i, r := range c.Rules {
		ranges := [][2]int{{r.RMin, r.RMax}, {r.FMin, r.FMax}, {r.MMin, r.MMax}}
		for _, rg := range ranges {
			if rg[0] < 1 || rg[1] > ScoreBins || rg[0] > rg[1] {
				return models.NewInvalidParameterError("rules", "score range must lie within 1..5", i)
			}
		}
	}
	return nil
}

// Classify applies the rule table; the result is always a valid segment
func (c Config) Classify(rScore, fScore, mScore int) models.Segment {
	for _, rule := range c.Rules {
		if rule.Matches(rScore, fScore, mScore) {
			return rule.Segment
		}
	}
	return models.Others
}
