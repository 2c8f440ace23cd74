// Package basket mines pairwise association rules from invoice baskets.
package basket

import (
	"math"
	"sort"

	"retail-analytics/models"
)

// Params are the rule filters. Zero values disable a filter.
type Params struct {
	MinSupport    float64 `json:"min_support"`
	MinLift       float64 `json:"min_lift"`
	MinConfidence float64 `json:"min_confidence"`

	// MaxBasketItems caps pair counting: baskets with more distinct items still
	// count toward single-item support but contribute no pairs. 0 = unlimited.
	MaxBasketItems int `json:"max_basket_items"`
}

// Validate rejects thresholds outside their domain
func (p Params) Validate() error {
	if math.IsNaN(p.MinSupport) || p.MinSupport < 0 || p.MinSupport > 1 {
		return models.NewInvalidParameterError("min_support", "must be within [0, 1]", p.MinSupport)
	}
	if math.IsNaN(p.MinConfidence) || p.MinConfidence < 0 || p.MinConfidence > 1 {
		return models.NewInvalidParameterError("min_confidence", "must be within [0, 1]", p.MinConfidence)
	}
	if math.IsNaN(p.MinLift) || math.IsInf(p.MinLift, 0) || p.MinLift < 0 {
		return models.NewInvalidParameterError("min_lift", "must be a finite value >= 0", p.MinLift)
	}
	if p.MaxBasketItems < 0 {
		return models.NewInvalidParameterError("max_basket_items", "must be >= 0", p.MaxBasketItems)
	}
	return nil
}

// Stats describes the basket population
type Stats struct {
	Products       int     `json:"products"`
	Transactions   int     `json:"transactions"`
	AvgBasketSize  float64 `json:"avg_basket_size"`
	MaxBasketSize  int     `json:"max_basket_size"`
	PairBaskets    int     `json:"pair_baskets"`    // Baskets that contributed pairs
	SkippedBaskets int     `json:"skipped_baskets"` // Baskets over MaxBasketItems
}

// Result is the full mining output
type Result struct {
	Items   []models.ItemFrequency   `json:"items"`
	Rules   []models.AssociationRule `json:"rules"`
	Baskets int                      `json:"baskets"`
	Stats   Stats                    `json:"stats"`
}

type pairKey struct {
	a, b string
}

// Basket is the distinct item set of one invoice, sorted
type Basket struct {
	InvoiceNo string
	Items     []string
}

// BuildBaskets groups non-return lines by invoice and collapses items to presence.
// Anonymous rows are kept. Baskets are returned in invoice order.
func BuildBaskets(table *models.TransactionTable) []Basket {
	if table.Len() == 0 {
		return []Basket{}
	}

	sets := make(map[string]map[string]bool)
	for _, r := range table.Records {
		if r.IsReturn() || r.Description == "" {
			continue
		}
		items, ok := sets[r.InvoiceNo]
		if !ok {
			items = make(map[string]bool)
			sets[r.InvoiceNo] = items
		}
		items[r.Description] = true
	}

	baskets := make([]Basket, 0, len(sets))
	for invoice, items := range sets {
		b := Basket{InvoiceNo: invoice, Items: make([]string, 0, len(items))}
		for item := range items {
			b.Items = append(b.Items, item)
		}
		sort.Strings(b.Items)
		baskets = append(baskets, b)
	}
	sort.Slice(baskets, func(i, j int) bool { return baskets[i].InvoiceNo < baskets[j].InvoiceNo })
	return baskets
}

// Mine builds baskets from the table and derives item frequencies and rules
func Mine(table *models.TransactionTable, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return mine(BuildBaskets(table), p), nil
}

// MineBaskets runs the counting passes over prebuilt baskets
func MineBaskets(baskets []Basket, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return mine(baskets, p), nil
}

func mine(baskets []Basket, p Params) *Result {
	result := &Result{
		Items:   []models.ItemFrequency{},
		Rules:   []models.AssociationRule{},
		Baskets: len(baskets),
	}
	if len(baskets) == 0 {
		return result
	}

	// Pass 1: single-item counts
	itemCounts := make(map[string]int)
	totalItems := 0
	for _, b := range baskets {
		for _, item := range b.Items {
			itemCounts[item]++
		}
		totalItems += len(b.Items)
		if len(b.Items) > result.Stats.MaxBasketSize {
			result.Stats.MaxBasketSize = len(b.Items)
		}
	}

	// Pass 2: pair counts, once per basket per unordered pair
	pairCounts := make(map[pairKey]int)
	for _, b := range baskets {
		if len(b.Items) < 2 {
			continue
		}
		if p.MaxBasketItems > 0 && len(b.Items) > p.MaxBasketItems {
			result.Stats.SkippedBaskets++
			continue
		}
		result.Stats.PairBaskets++
		for i := 0; i < len(b.Items); i++ {
			for j := i + 1; j < len(b.Items); j++ {
				pairCounts[pairKey{a: b.Items[i], b: b.Items[j]}]++
			}
		}
	}

	n := float64(len(baskets))
	result.Stats.Products = len(itemCounts)
	result.Stats.Transactions = len(baskets)
	result.Stats.AvgBasketSize = float64(totalItems) / n

	for item, count := range itemCounts {
		result.Items = append(result.Items, models.ItemFrequency{
			Item:    item,
			Count:   count,
			Support: float64(count) / n,
		})
	}
	sort.Slice(result.Items, func(i, j int) bool {
		if result.Items[i].Count != result.Items[j].Count {
			return result.Items[i].Count > result.Items[j].Count
		}
		return result.Items[i].Item < result.Items[j].Item
	})

	// Pass 3: derive metrics
	rules := make([]models.AssociationRule, 0, len(pairCounts))
	for pair, count := range pairCounts {
		countA := float64(itemCounts[pair.a])
		countB := float64(itemCounts[pair.b])
		confAB := float64(count) / countA
		confBA := float64(count) / countB
		rules = append(rules, models.AssociationRule{
			ItemA:          pair.a,
			ItemB:          pair.b,
			Count:          count,
			Support:        float64(count) / n,
			ConfidenceAToB: confAB,
			ConfidenceBToA: confBA,
			LiftAToB:       confAB / (countB / n),
			LiftBToA:       confBA / (countA / n),
		})
	}

	result.Rules = FilterRules(rules, p)
	return result
}

// FilterRules applies the thresholds and the default ordering to an existing rule set.
// It never mutates its input.
func FilterRules(rules []models.AssociationRule, p Params) []models.AssociationRule {
	out := make([]models.AssociationRule, 0, len(rules))
	for _, r := range rules {
		if r.Support < p.MinSupport || r.LiftAToB < p.MinLift || r.ConfidenceAToB < p.MinConfidence {
			continue
		}
		out = append(out, r)
	}
	SortRules(out)
	return out
}

// SortRules orders by LiftAToB desc, then Support desc, then item names
func SortRules(rules []models.AssociationRule) {
	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.LiftAToB != b.LiftAToB {
			return a.LiftAToB > b.LiftAToB
		}
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		if a.ItemA != b.ItemA {
			return a.ItemA < b.ItemA
		}
		return a.ItemB < b.ItemB
	})
}
