package rfm

import (
	"sort"

	"retail-analytics/models"
)

// SegmentStats summarizes one segment of an RFM snapshot
type SegmentStats struct {
	Segment        models.Segment        `json:"segment"`
	Customers      int                   `json:"customers"`
	Share          float64               `json:"share"` // Fraction of all customers
	AvgRecency     float64               `json:"avg_recency"`
	AvgFrequency   float64               `json:"avg_frequency"`
	AvgMonetary    float64               `json:"avg_monetary"`
	TotalMonetary  float64               `json:"total_monetary"`
	Recommendation models.Recommendation `json:"recommendation"`
}

// SegmentSummary aggregates the snapshot per segment in presentation order.
// Segments with no customers are omitted.
func SegmentSummary(rows []models.CustomerRFM) []SegmentStats {
	if len(rows) == 0 {
		return []SegmentStats{}
	}

	bySegment := make(map[models.Segment]*SegmentStats)
	for _, r := range rows {
		s, ok := bySegment[r.Segment]
		if !ok {
			s = &SegmentStats{Segment: r.Segment}
			bySegment[r.Segment] = s
		}
		s.Customers++
		s.AvgRecency += float64(r.Recency)
		s.AvgFrequency += float64(r.Frequency)
		s.TotalMonetary += r.Monetary
	}

	out := make([]SegmentStats, 0, len(bySegment))
	for _, seg := range models.AllSegments() {
		s, ok := bySegment[seg]
		if !ok {
			continue
		}
		n := float64(s.Customers)
		s.AvgRecency /= n
		s.AvgFrequency /= n
		s.AvgMonetary = s.TotalMonetary / n
		s.Share = n / float64(len(rows))
		s.Recommendation = models.RecommendationFor(seg)
		out = append(out, *s)
	}
	return out
}

// TopCustomers returns the n highest-Monetary customers, ties broken by CustomerID
func TopCustomers(rows []models.CustomerRFM, n int) []models.CustomerRFM {
	sorted := append([]models.CustomerRFM(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Monetary != sorted[j].Monetary {
			return sorted[i].Monetary > sorted[j].Monetary
		}
		return sorted[i].CustomerID < sorted[j].CustomerID
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// BySegment returns the customers assigned to one segment
func BySegment(rows []models.CustomerRFM, seg models.Segment) []models.CustomerRFM {
	out := make([]models.CustomerRFM, 0)
	for _, r := range rows {
		if r.Segment == seg {
			out = append(out, r)
		}
	}
	return out
}
