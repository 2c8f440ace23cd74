package export

import (
	"sort"

	"retail-analytics/models"
	"retail-analytics/rfm"
)

// Table names accepted by Build
const (
	TableRFM         = "rfm"
	TableSegments    = "segments"
	TableRules       = "rules"
	TableForecast    = "forecast"
	TablePredictions = "predictions"
	TableImportance  = "importance"
)

// Names lists every exportable table
func Names() []string {
	names := []string{TableRFM, TableSegments, TableRules, TableForecast, TablePredictions, TableImportance}
	sort.Strings(names)
	return names
}

var (
	RFMColumns = []Column{
		{"CustomerID", Text},
		{"Recency", Integer},
		{"Frequency", Integer},
		{"Monetary", Currency},
		{"R_Score", Integer},
		{"F_Score", Integer},
		{"M_Score", Integer},
		{"RFM_Score", Text},
		{"Segment", Text},
		{"Country", Text},
	}
	SegmentColumns = []Column{
		{"Segment", Text},
		{"Customers", Integer},
		{"Share", Ratio},
		{"AvgRecency", Ratio},
		{"AvgFrequency", Ratio},
		{"AvgMonetary", Currency},
		{"TotalMonetary", Currency},
		{"Priority", Text},
	}
	RuleColumns = []Column{
		{"ItemA", Text},
		{"ItemB", Text},
		{"Count", Integer},
		{"Support", Ratio},
		{"ConfidenceAToB", Ratio},
		{"ConfidenceBToA", Ratio},
		{"LiftAToB", Ratio},
		{"LiftBToA", Ratio},
	}
	ForecastColumns = []Column{
		{"Date", Date},
		{"Forecast", Currency},
		{"LowerBound", Currency},
		{"UpperBound", Currency},
	}
	PredictionColumns = []Column{
		{"CustomerID", Text},
		{"PredictedCLV", Currency},
		{"ChurnProbability", Ratio},
		{"ChurnRisk", Text},
		{"CLVTier", Text},
	}
	ImportanceColumns = []Column{
		{"Model", Text},
		{"Feature", Text},
		{"Importance", Ratio},
	}
)

// RFMTable renders per-customer RFM rows
func RFMTable(rows []models.CustomerRFM) Table {
	t := Table{Name: TableRFM, Columns: RFMColumns, Rows: make([][]interface{}, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{
			r.CustomerID, r.Recency, r.Frequency, r.Monetary,
			r.RScore, r.FScore, r.MScore, r.RFMScore, r.Segment, r.Country,
		})
	}
	return t
}

// SegmentTable renders the per-segment summary
func SegmentTable(stats []rfm.SegmentStats) Table {
	t := Table{Name: TableSegments, Columns: SegmentColumns, Rows: make([][]interface{}, 0, len(stats))}
	for _, s := range stats {
		t.Rows = append(t.Rows, []interface{}{
			s.Segment, s.Customers, s.Share, s.AvgRecency, s.AvgFrequency,
			s.AvgMonetary, s.TotalMonetary, string(s.Recommendation.Priority),
		})
	}
	return t
}

// RulesTable renders association rules
func RulesTable(rules []models.AssociationRule) Table {
	t := Table{Name: TableRules, Columns: RuleColumns, Rows: make([][]interface{}, 0, len(rules))}
	for _, r := range rules {
		t.Rows = append(t.Rows, []interface{}{
			r.ItemA, r.ItemB, r.Count, r.Support,
			r.ConfidenceAToB, r.ConfidenceBToA, r.LiftAToB, r.LiftBToA,
		})
	}
	return t
}

// ForecastTable renders projected months
func ForecastTable(points []models.ForecastPoint) Table {
	t := Table{Name: TableForecast, Columns: ForecastColumns, Rows: make([][]interface{}, 0, len(points))}
	for _, p := range points {
		t.Rows = append(t.Rows, []interface{}{p.Date, p.Forecast, p.LowerBound, p.UpperBound})
	}
	return t
}

// PredictionsTable renders CLV and churn scores
func PredictionsTable(predictions []models.CLVPrediction) Table {
	t := Table{Name: TablePredictions, Columns: PredictionColumns, Rows: make([][]interface{}, 0, len(predictions))}
	for _, p := range predictions {
		t.Rows = append(t.Rows, []interface{}{p.CustomerID, p.PredictedCLV, p.ChurnProbability, p.ChurnRisk, p.CLVTier})
	}
	return t
}

// Model labels in the importance table
const (
	ModelCLV   = "clv"
	ModelChurn = "churn"
)

// ImportanceTable renders the feature importances of both models, CLV first
func ImportanceTable(regression, classifier []models.FeatureImportance) Table {
	t := Table{Name: TableImportance, Columns: ImportanceColumns, Rows: make([][]interface{}, 0, len(regression)+len(classifier))}
	for _, f := range regression {
		t.Rows = append(t.Rows, []interface{}{ModelCLV, f.Feature, f.Importance})
	}
	for _, f := range classifier {
		t.Rows = append(t.Rows, []interface{}{ModelChurn, f.Feature, f.Importance})
	}
	return t
}
