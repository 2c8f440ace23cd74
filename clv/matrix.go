package clv

import (
	"sort"

	"retail-analytics/models"
)

// MatrixCell counts customers in one value tier x churn risk cell
type MatrixCell struct {
	Tier      models.ValueTier `json:"tier"`
	Risk      models.ChurnRisk `json:"risk"`
	Customers int              `json:"customers"`
	TotalCLV  float64          `json:"total_clv"`
}

// StrategicMatrix returns all nine tier x risk cells, high value first
func StrategicMatrix(customers []ScoredCustomer) []MatrixCell {
	tiers := []models.ValueTier{models.TierHigh, models.TierMedium, models.TierLow}
	risks := []models.ChurnRisk{models.ChurnLow, models.ChurnMedium, models.ChurnHigh}

	cells := make([]MatrixCell, 0, len(tiers)*len(risks))
	index := make(map[[2]int]int)
	for _, tier := range tiers {
		for _, risk := range risks {
			index[[2]int{int(tier), int(risk)}] = len(cells)
			cells = append(cells, MatrixCell{Tier: tier, Risk: risk})
		}
	}

	for _, c := range customers {
		k := index[[2]int{int(c.CLVTier), int(c.ChurnRisk)}]
		cells[k].Customers++
		cells[k].TotalCLV += c.PredictedCLV
	}
	return cells
}

// TopByCLV returns the n customers with the highest predicted CLV
func TopByCLV(customers []ScoredCustomer, n int) []ScoredCustomer {
	sorted := append([]ScoredCustomer(nil), customers...)
	sortByCLV(sorted)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// HighRisk returns up to n High churn-risk customers, most valuable first
func HighRisk(customers []ScoredCustomer, n int) []ScoredCustomer {
	out := make([]ScoredCustomer, 0)
	for _, c := range customers {
		if c.ChurnRisk == models.ChurnHigh {
			out = append(out, c)
		}
	}
	sortByCLV(out)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func sortByCLV(customers []ScoredCustomer) {
	sort.SliceStable(customers, func(i, j int) bool {
		if customers[i].PredictedCLV != customers[j].PredictedCLV {
			return customers[i].PredictedCLV > customers[j].PredictedCLV
		}
		return customers[i].CustomerID < customers[j].CustomerID
	})
}
