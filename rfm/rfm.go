// Package rfm computes per-customer Recency/Frequency/Monetary features and
// assigns each customer exactly one segment.
package rfm

import (
	"fmt"
	"math"
	"sort"
	"time"

	"retail-analytics/models"
)

const day = 24 * time.Hour

// customerAggregate is the per-customer accumulator built in a single pass
type customerAggregate struct {
	id          string
	purchases   map[string]bool // Non-return invoices
	allInvoices map[string]bool
	monetary    float64
	bought      activity // Non-return lines only
	all         activity // Every line, used when there are no purchases
}

// activity tracks the first and last timestamp of a set of lines
type activity struct {
	first   time.Time
	last    time.Time
	country string
	seen    bool
}

func (a *activity) observe(r models.TransactionRecord) {
	if !a.seen || r.InvoiceDate.Before(a.first) {
		a.first = r.InvoiceDate
	}
	if !a.seen || r.InvoiceDate.After(a.last) {
		a.last = r.InvoiceDate
		a.country = r.Country
	}
	a.seen = true
}

// span is the purchase window; a customer with only returns falls back to them
func (c *customerAggregate) span() activity {
	if c.bought.seen {
		return c.bought
	}
	return c.all
}

// aggregate groups customer-scoped rows by CustomerID
func aggregate(records []models.TransactionRecord) map[string]*customerAggregate {
	customers := make(map[string]*customerAggregate)
	for _, r := range records {
		if !r.HasCustomer() {
			continue
		}
		agg, ok := customers[r.CustomerID]
		if !ok {
			agg = &customerAggregate{
				id:          r.CustomerID,
				purchases:   make(map[string]bool),
				allInvoices: make(map[string]bool),
			}
			customers[r.CustomerID] = agg
		}

		agg.all.observe(r)
		agg.allInvoices[r.InvoiceNo] = true
		if !r.IsReturn() {
			agg.purchases[r.InvoiceNo] = true
			agg.bought.observe(r)
		}
		agg.monetary += r.TotalAmount
	}
	return customers
}

// DefaultReferenceDate is one day after the latest transaction in the table
func DefaultReferenceDate(table *models.TransactionTable) time.Time {
	return table.MaxDate().Add(day)
}

// Compute builds the RFM snapshot. referenceDate may be nil, in which case
// DefaultReferenceDate is used. Output is sorted by CustomerID.
func Compute(table *models.TransactionTable, referenceDate *time.Time, cfg Config) ([]models.CustomerRFM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return []models.CustomerRFM{}, nil
	}

	customers := aggregate(table.Records)
	if len(customers) == 0 {
		return []models.CustomerRFM{}, nil
	}

	ref := DefaultReferenceDate(table)
	if referenceDate != nil {
		ref = *referenceDate
		for _, c := range customers {
			if ref.Before(c.span().last) {
				return nil, models.NewInvalidParameterError("reference_date",
					fmt.Sprintf("precedes last purchase of customer %s", c.id), ref.Format(time.RFC3339))
			}
		}
	}

	ids := make([]string, 0, len(customers))
	for id := range customers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]models.CustomerRFM, len(ids))
	recency := make([]float64, len(ids))
	frequency := make([]float64, len(ids))
	monetary := make([]float64, len(ids))

	for i, id := range ids {
		c := customers[id]
		span := c.span()

		freq := len(c.purchases)
		if freq == 0 {
			// Only returns on record: count the originating invoices once
			freq = len(c.allInvoices)
		}

		rows[i] = models.CustomerRFM{
			CustomerID:    id,
			Recency:       int(math.Floor(ref.Sub(span.last).Hours() / 24)),
			Frequency:     freq,
			Monetary:      math.Max(0, c.monetary),
			Country:       span.country,
			FirstPurchase: span.first,
			LastPurchase:  span.last,
		}
		recency[i] = float64(rows[i].Recency)
		frequency[i] = float64(rows[i].Frequency)
		monetary[i] = rows[i].Monetary
	}

	rScores := invertScores(quantileScores(recency))
	fScores := quantileScores(frequency)
	mScores := quantileScores(monetary)

	for i := range rows {
		rows[i].RScore = rScores[i]
		rows[i].FScore = fScores[i]
		rows[i].MScore = mScores[i]
		rows[i].RFMScore = fmt.Sprintf("%d%d%d", rScores[i], fScores[i], mScores[i])
		rows[i].Segment = cfg.Classify(rScores[i], fScores[i], mScores[i])
	}

	return rows, nil
}

// Find returns the row for a customer
func Find(rows []models.CustomerRFM, customerID string) (models.CustomerRFM, bool) {
	i := sort.Search(len(rows), func(i int) bool { return rows[i].CustomerID >= customerID })
	if i < len(rows) && rows[i].CustomerID == customerID {
		return rows[i], true
	}
	// Fall back to a scan for callers that re-sorted the slice
	for _, r := range rows {
		if r.CustomerID == customerID {
			return r, true
		}
	}
	return models.CustomerRFM{}, false
}
