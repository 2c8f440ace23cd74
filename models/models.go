// Package models holds the value types shared by the analytics engines.
//
// Every type here is a snapshot derived from a TransactionTable. Nothing holds
// a live reference to another entity; joins happen by CustomerID or InvoiceNo
// at call time.
package models

import (
	"strings"
	"time"
)

// RequiredColumns lists the columns every transaction source must provide
var RequiredColumns = []string{
	"InvoiceNo",
	"StockCode",
	"Description",
	"Quantity",
	"InvoiceDate",
	"UnitPrice",
	"CustomerID",
	"Country",
}

// TransactionRecord is one normalized invoice line
type TransactionRecord struct {
	InvoiceNo   string    `json:"invoice_no"`
	StockCode   string    `json:"stock_code"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"` // Negative = return
	UnitPrice   float64   `json:"unit_price"`
	InvoiceDate time.Time `json:"invoice_date"`
	CustomerID  string    `json:"customer_id,omitempty"` // Empty = anonymous
	Country     string    `json:"country"`

	// Derived fields
	TotalAmount float64      `json:"total_amount"`
	DayOfWeek   time.Weekday `json:"day_of_week"`
	Hour        int          `json:"hour"`
	YearMonth   string       `json:"year_month"`
}

// IsReturn reports whether the line is a cancellation or return
func (r TransactionRecord) IsReturn() bool {
	return r.Quantity < 0 || strings.HasPrefix(r.InvoiceNo, "C")
}

// HasCustomer reports whether the line is attributed to a known customer
func (r TransactionRecord) HasCustomer() bool {
	return r.CustomerID != ""
}

// TransactionTable is the canonical, read-only transaction set fed to every engine
type TransactionTable struct {
	Records     []TransactionRecord `json:"records"`
	Source      string              `json:"source"`
	Fingerprint string              `json:"fingerprint"`
	Dropped     int                 `json:"dropped"` // Rows rejected during coercion
}

// Len returns the number of records
func (t *TransactionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// WithCustomer returns the customer-scoped subset of the records
func (t *TransactionTable) WithCustomer() []TransactionRecord {
	if t == nil {
		return nil
	}
	out := make([]TransactionRecord, 0, len(t.Records))
	for _, r := range t.Records {
		if r.HasCustomer() {
			out = append(out, r)
		}
	}
	return out
}

// MinDate returns the earliest invoice timestamp, zero for an empty table
func (t *TransactionTable) MinDate() time.Time {
	var min time.Time
	if t == nil {
		return min
	}
	for i, r := range t.Records {
		if i == 0 || r.InvoiceDate.Before(min) {
			min = r.InvoiceDate
		}
	}
	return min
}

// MaxDate returns the latest invoice timestamp, zero for an empty table
func (t *TransactionTable) MaxDate() time.Time {
	var max time.Time
	if t == nil {
		return max
	}
	for i, r := range t.Records {
		if i == 0 || r.InvoiceDate.After(max) {
			max = r.InvoiceDate
		}
	}
	return max
}

// CustomerRFM is the per-customer Recency/Frequency/Monetary snapshot
type CustomerRFM struct {
	CustomerID    string    `json:"customer_id"`
	Recency       int       `json:"recency"`   // Days since last purchase
	Frequency     int       `json:"frequency"` // Distinct invoices
	Monetary      float64   `json:"monetary"`
	RScore        int       `json:"r_score"`
	FScore        int       `json:"f_score"`
	MScore        int       `json:"m_score"`
	RFMScore      string    `json:"rfm_score"`
	Segment       Segment   `json:"segment"`
	Country       string    `json:"country"`
	FirstPurchase time.Time `json:"first_purchase"`
	LastPurchase  time.Time `json:"last_purchase"`
}

// AvgOrderValue returns Monetary per invoice
func (c CustomerRFM) AvgOrderValue() float64 {
	if c.Frequency <= 0 {
		return 0
	}
	return c.Monetary / float64(c.Frequency)
}

// LifespanDays returns whole days between first and last purchase
func (c CustomerRFM) LifespanDays() int {
	if c.LastPurchase.Before(c.FirstPurchase) {
		return 0
	}
	return int(c.LastPurchase.Sub(c.FirstPurchase) / (24 * time.Hour))
}

// ItemFrequency is the support of a single item across baskets
type ItemFrequency struct {
	Item    string  `json:"item"`
	Count   int     `json:"count"`
	Support float64 `json:"support"`
}

// AssociationRule describes a co-occurring item pair; ItemA < ItemB
type AssociationRule struct {
	ItemA          string  `json:"item_a"`
	ItemB          string  `json:"item_b"`
	Count          int     `json:"count"`
	Support        float64 `json:"support"`
	ConfidenceAToB float64 `json:"confidence_a_to_b"`
	ConfidenceBToA float64 `json:"confidence_b_to_a"`
	LiftAToB       float64 `json:"lift_a_to_b"`
	LiftBToA       float64 `json:"lift_b_to_a"`
}

// MonthlyPoint is one month of aggregated revenue
type MonthlyPoint struct {
	Month   time.Time `json:"month"` // First day of month, UTC
	Revenue float64   `json:"revenue"`
	Orders  int       `json:"orders"`
}

// ForecastPoint is one projected month; LowerBound <= Forecast <= UpperBound
type ForecastPoint struct {
	Date       time.Time `json:"date"`
	Forecast   float64   `json:"forecast"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
}

// FeatureImportance ranks a model input; values are relative, not normalized
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// CLVPrediction is the scored output for a single customer
type CLVPrediction struct {
	CustomerID       string    `json:"customer_id"`
	PredictedCLV     float64   `json:"predicted_clv"`
	ChurnProbability float64   `json:"churn_probability"`
	ChurnRisk        ChurnRisk `json:"churn_risk"`
	CLVTier          ValueTier `json:"clv_tier"`
}
