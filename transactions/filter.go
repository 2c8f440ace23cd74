package transactions

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"retail-analytics/models"
)

// Criteria narrows a table; zero values mean "no restriction"
type Criteria struct {
	Countries   []string
	From        time.Time // Inclusive
	To          time.Time // Inclusive
	CustomerIDs []string
}

// IsZero reports whether the criteria restrict nothing
func (c Criteria) IsZero() bool {
	return len(c.Countries) == 0 && c.From.IsZero() && c.To.IsZero() && len(c.CustomerIDs) == 0
}

// Validate rejects inverted date ranges
func (c Criteria) Validate() error {
	if !c.From.IsZero() && !c.To.IsZero() && c.To.Before(c.From) {
		return models.NewInvalidParameterError("to", "end date is before start date", c.To.Format("2006-01-02"))
	}
	return nil
}

// key renders the criteria canonically so it can be mixed into a fingerprint
func (c Criteria) key() string {
	countries := append([]string(nil), c.Countries...)
	sort.Strings(countries)
	customers := append([]string(nil), c.CustomerIDs...)
	sort.Strings(customers)

	var from, to int64
	if !c.From.IsZero() {
		from = c.From.Unix()
	}
	if !c.To.IsZero() {
		to = c.To.Unix()
	}
	return fmt.Sprintf("c=%s|f=%d|t=%d|u=%s",
		strings.Join(countries, ","), from, to, strings.Join(customers, ","))
}

// Filter returns a new table holding only rows matching the criteria
func Filter(table *models.TransactionTable, c Criteria) (*models.TransactionTable, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if table == nil {
		return &models.TransactionTable{}, nil
	}
	if c.IsZero() {
		return table, nil
	}

	countries := toSet(c.Countries)
	customers := toSet(c.CustomerIDs)

	out := &models.TransactionTable{Source: table.Source}
	for _, r := range table.Records {
		if len(countries) > 0 && !countries[strings.ToLower(r.Country)] {
			continue
		}
		if len(customers) > 0 && !customers[strings.ToLower(r.CustomerID)] {
			continue
		}
		if !c.From.IsZero() && r.InvoiceDate.Before(c.From) {
			continue
		}
		if !c.To.IsZero() && r.InvoiceDate.After(c.To) {
			continue
		}
		out.Records = append(out.Records, r)
	}

	sum := sha256.Sum256([]byte(table.Fingerprint + "|" + c.key()))
	out.Fingerprint = fmt.Sprintf("%x", sum[:16])
	return out, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
	return set
}

// Countries returns the distinct countries in a table, sorted
func Countries(table *models.TransactionTable) []string {
	if table == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range table.Records {
		if r.Country != "" && !seen[r.Country] {
			seen[r.Country] = true
			out = append(out, r.Country)
		}
	}
	sort.Strings(out)
	return out
}
