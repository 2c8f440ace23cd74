package rfm

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-analytics/models"
)

var base = time.Date(2011, 6, 1, 12, 0, 0, 0, time.UTC)

func line(invoice, customer string, qty int, price float64, at time.Time) models.TransactionRecord {
	return models.TransactionRecord{
		InvoiceNo:   invoice,
		CustomerID:  customer,
		Description: "ITEM",
		Quantity:    qty,
		UnitPrice:   price,
		InvoiceDate: at,
		Country:     "United Kingdom",
		TotalAmount: float64(qty) * price,
	}
}

func syntheticTable(customers int, seed int64) *models.TransactionTable {
	rng := rand.New(rand.NewSource(seed))
	var records []models.TransactionRecord
	invoice := 0
	for c := 0; c < customers; c++ {
		id := fmt.Sprintf("C%03d", c)
		orders := 1 + rng.Intn(6)
		for o := 0; o < orders; o++ {
			invoice++
			at := base.Add(-time.Duration(rng.Intn(365*24)) * time.Hour)
			records = append(records, line(fmt.Sprintf("%d", invoice), id, 1+rng.Intn(10), float64(1+rng.Intn(50)), at))
		}
	}
	return &models.TransactionTable{Records: records}
}

func TestComputeSingleCustomerScenario(t *testing.T) {
	ref := base
	table := &models.TransactionTable{Records: []models.TransactionRecord{
		line("1001", "42", 1, 100, ref.Add(-10*day)),
	}}

	rows, err := Compute(table, &ref, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "42", r.CustomerID)
	assert.Equal(t, 10, r.Recency)
	assert.Equal(t, 1, r.Frequency)
	assert.InDelta(t, 100.0, r.Monetary, 1e-9)
	assert.Equal(t, models.NewCustomers, r.Segment)
}

func TestComputeDefaultReferenceDate(t *testing.T) {
	table := &models.TransactionTable{Records: []models.TransactionRecord{
		line("1", "A", 1, 10, base),
		line("2", "B", 1, 10, base.Add(-5*day)),
	}}

	rows, err := Compute(table, nil, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Recency) // max + 1 day
	assert.Equal(t, 6, rows[1].Recency)
}

func TestComputeProperties(t *testing.T) {
	table := syntheticTable(60, 7)

	rows, err := Compute(table, nil, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, rows, 60)

	seen := make(map[string]bool)
	for _, r := range rows {
		assert.False(t, seen[r.CustomerID], "duplicate customer %s", r.CustomerID)
		seen[r.CustomerID] = true
		assert.GreaterOrEqual(t, r.Recency, 0)
		assert.GreaterOrEqual(t, r.Frequency, 1)
		assert.GreaterOrEqual(t, r.Monetary, 0.0)
		assert.Contains(t, models.AllSegments(), r.Segment)
		assert.Len(t, r.RFMScore, 3)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	table := syntheticTable(40, 3)
	ref := base.Add(day)

	first, err := Compute(table, &ref, DefaultConfig())
	require.NoError(t, err)
	second, err := Compute(table, &ref, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Input order must not matter
	shuffled := append([]models.TransactionRecord(nil), table.Records...)
	rand.New(rand.NewSource(99)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	third, err := Compute(&models.TransactionTable{Records: shuffled}, &ref, DefaultConfig())
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].Segment, third[i].Segment)
		assert.Equal(t, first[i].RFMScore, third[i].RFMScore)
	}
}

func TestComputeReturnsOnlyCustomer(t *testing.T) {
	table := &models.TransactionTable{Records: []models.TransactionRecord{
		line("C9", "R1", -2, 5, base),
		line("1", "A", 3, 5, base),
	}}

	rows, err := Compute(table, nil, DefaultConfig())
	require.NoError(t, err)

	r, ok := Find(rows, "R1")
	require.True(t, ok)
	assert.Equal(t, 1, r.Frequency)
	assert.Zero(t, r.Monetary)
	assert.Contains(t, models.AllSegments(), r.Segment)
}

func TestComputeReturnReducesMonetary(t *testing.T) {
	table := &models.TransactionTable{Records: []models.TransactionRecord{
		line("1", "A", 4, 10, base.Add(-2*day)),
		line("C1", "A", -1, 10, base),
	}}

	rows, err := Compute(table, nil, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Frequency)
	assert.InDelta(t, 30.0, rows[0].Monetary, 1e-9)
}

func TestComputeRecencyIgnoresLaterReturns(t *testing.T) {
	ref := base
	bought := ref.Add(-100 * day)
	returned := line("C1002", "42", -5, 10, ref.Add(-2*day))
	returned.Country = "France"
	table := &models.TransactionTable{Records: []models.TransactionRecord{
		line("1001", "42", 5, 10, bought),
		returned,
		line("2001", "7", 1, 10, ref.Add(-50*day)),
	}}

	rows, err := Compute(table, &ref, DefaultConfig())
	require.NoError(t, err)

	r, ok := Find(rows, "42")
	require.True(t, ok)
	assert.Equal(t, 100, r.Recency)
	assert.Equal(t, bought, r.LastPurchase)
	assert.Equal(t, bought, r.FirstPurchase)
	assert.Equal(t, "United Kingdom", r.Country)
	assert.Equal(t, 1, r.Frequency)
	assert.Zero(t, r.Monetary)
	assert.NotEqual(t, models.NewCustomers, r.Segment)

	// The recent return does not raise the minimum reference date
	between := ref.Add(-10 * day)
	_, err = Compute(table, &between, DefaultConfig())
	assert.NoError(t, err)
}

func TestComputeRejectsEarlyReferenceDate(t *testing.T) {
	table := &models.TransactionTable{Records: []models.TransactionRecord{
		line("1", "A", 1, 10, base),
	}}
	early := base.Add(-day)

	_, err := Compute(table, &early, DefaultConfig())
	var paramErr *models.InvalidParameterError
	require.True(t, errors.As(err, &paramErr))
	assert.Equal(t, "reference_date", paramErr.Parameter)
}

func TestComputeEmptyInput(t *testing.T) {
	tests := []struct {
		name  string
		table *models.TransactionTable
	}{
		{"nil table", nil},
		{"no records", &models.TransactionTable{}},
		{"anonymous only", &models.TransactionTable{Records: []models.TransactionRecord{line("1", "", 1, 1, base)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Compute(tt.table, nil, DefaultConfig())
			require.NoError(t, err)
			assert.NotNil(t, rows)
			assert.Empty(t, rows)
		})
	}
}

func TestQuantileScoresShareTies(t *testing.T) {
	scores := quantileScores([]float64{5, 1, 5, 3, 5, 2, 4, 5, 1, 9})

	// The four 5s must all share one score
	assert.Equal(t, scores[0], scores[2])
	assert.Equal(t, scores[0], scores[4])
	assert.Equal(t, scores[0], scores[7])
	assert.Equal(t, scores[1], scores[8])

	assert.Equal(t, 1, scores[1])
	assert.Equal(t, 5, scores[9])
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 1)
		assert.LessOrEqual(t, s, ScoreBins)
	}
}

func TestClassifyFallsBackToOthers(t *testing.T) {
	cfg := Config{Rules: []SegmentRule{
		{Segment: models.Champions, RMin: 5, RMax: 5, FMin: 5, FMax: 5, MMin: 5, MMax: 5},
	}}

	assert.Equal(t, models.Champions, cfg.Classify(5, 5, 5))
	assert.Equal(t, models.Others, cfg.Classify(1, 1, 1))
}

func TestDefaultRulesCoverFullGrid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	counts := make(map[models.Segment]int)
	for r := 1; r <= ScoreBins; r++ {
		for f := 1; f <= ScoreBins; f++ {
			for m := 1; m <= ScoreBins; m++ {
				counts[cfg.Classify(r, f, m)]++
			}
		}
	}
	assert.Positive(t, counts[models.Champions])
	assert.Positive(t, counts[models.Lost])
	assert.Positive(t, counts[models.AtRisk])
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Rules: []SegmentRule{
		{Segment: models.Champions, RMin: 0, RMax: 5, FMin: 1, FMax: 5, MMin: 1, MMax: 5},
	}}

	_, err := Compute(syntheticTable(3, 1), nil, cfg)
	var paramErr *models.InvalidParameterError
	require.True(t, errors.As(err, &paramErr))
}

func TestSegmentSummary(t *testing.T) {
	rows := []models.CustomerRFM{
		{CustomerID: "1", Recency: 2, Frequency: 10, Monetary: 500, Segment: models.Champions},
		{CustomerID: "2", Recency: 4, Frequency: 6, Monetary: 300, Segment: models.Champions},
		{CustomerID: "3", Recency: 200, Frequency: 1, Monetary: 10, Segment: models.Lost},
	}

	stats := SegmentSummary(rows)
	require.Len(t, stats, 2)

	assert.Equal(t, models.Champions, stats[0].Segment)
	assert.Equal(t, 2, stats[0].Customers)
	assert.InDelta(t, 3.0, stats[0].AvgRecency, 1e-9)
	assert.InDelta(t, 400.0, stats[0].AvgMonetary, 1e-9)
	assert.InDelta(t, 800.0, stats[0].TotalMonetary, 1e-9)
	assert.InDelta(t, 2.0/3.0, stats[0].Share, 1e-9)
	assert.Equal(t, models.PriorityHighest, stats[0].Recommendation.Priority)

	assert.Equal(t, models.Lost, stats[1].Segment)
	assert.Empty(t, SegmentSummary(nil))
}

func TestTopCustomers(t *testing.T) {
	rows := []models.CustomerRFM{
		{CustomerID: "b", Monetary: 10},
		{CustomerID: "a", Monetary: 10},
		{CustomerID: "c", Monetary: 50},
	}

	top := TopCustomers(rows, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "c", top[0].CustomerID)
	assert.Equal(t, "a", top[1].CustomerID)
	assert.Len(t, TopCustomers(rows, 10), 3)
}
