package basket

import (
	"sort"

	"retail-analytics/models"
)

// Bundle is a frequently co-purchased pair
type Bundle struct {
	Items   [2]string `json:"items"`
	Count   int       `json:"count"`
	Support float64   `json:"support"`
	Lift    float64   `json:"lift"`
}

// TopBundles returns the n pairs bought together most often
func TopBundles(rules []models.AssociationRule, n int) []Bundle {
	sorted := append([]models.AssociationRule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		if sorted[i].ItemA != sorted[j].ItemA {
			return sorted[i].ItemA < sorted[j].ItemA
		}
		return sorted[i].ItemB < sorted[j].ItemB
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}

	bundles := make([]Bundle, len(sorted))
	for i, r := range sorted {
		bundles[i] = Bundle{
			Items:   [2]string{r.ItemA, r.ItemB},
			Count:   r.Count,
			Support: r.Support,
			Lift:    r.LiftAToB,
		}
	}
	return bundles
}

// CrossSell is a suggestion to show alongside an anchor item
type CrossSell struct {
	Anchor     string  `json:"anchor"`
	Suggest    string  `json:"suggest"`
	Confidence float64 `json:"confidence"`
	Lift       float64 `json:"lift"`
	Support    float64 `json:"support"`
}

// Recommend returns up to n items to cross-sell with anchor, using the rule
// direction that starts from the anchor. Ordered by lift, then confidence.
func Recommend(rules []models.AssociationRule, anchor string, n int) []CrossSell {
	out := make([]CrossSell, 0)
	for _, r := range rules {
		switch anchor {
		case r.ItemA:
			out = append(out, CrossSell{Anchor: anchor, Suggest: r.ItemB, Confidence: r.ConfidenceAToB, Lift: r.LiftAToB, Support: r.Support})
		case r.ItemB:
			out = append(out, CrossSell{Anchor: anchor, Suggest: r.ItemA, Confidence: r.ConfidenceBToA, Lift: r.LiftBToA, Support: r.Support})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Lift != out[j].Lift {
			return out[i].Lift > out[j].Lift
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Suggest < out[j].Suggest
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
