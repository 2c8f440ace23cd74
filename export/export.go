// Package export renders engine outputs as CSV with exact currency formatting.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retail-analytics/models"
)

// Kind controls how a column is formatted and parsed
type Kind int

const (
	Text Kind = iota
	Integer
	Currency // fixed 2 decimal places
	Ratio    // fixed 6 decimal places
	Date     // YYYY-MM-DD
)

const (
	currencyPlaces = 2
	ratioPlaces    = 6
	dateLayout     = "2006-01-02"
)

// Column is one typed CSV column
type Column struct {
	Name string
	Kind Kind
}

// Table is a named, typed set of rows. Cell values are string, int,
// float64, decimal.Decimal or time.Time depending on the column kind.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]interface{}
}

// Header returns the column names in order
func (t Table) Header() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// WriteCSV writes the header and every row, formatting each cell by its column kind
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write %s header: %w", t.Name, err)
	}

	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return models.NewInvalidParameterError("row",
				fmt.Sprintf("%s row %d has %d cells, want %d", t.Name, i, len(row), len(t.Columns)), len(row))
		}
		for j, cell := range row {
			s, err := formatCell(t.Columns[j], cell)
			if err != nil {
				return fmt.Errorf("%s row %d: %w", t.Name, i, err)
			}
			record[j] = s
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write %s row %d: %w", t.Name, i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a CSV written by WriteCSV back into typed cells. The header
// must match the given columns.
func ReadCSV(r io.Reader, name string, columns []Column) (Table, error) {
	t := Table{Name: name, Columns: columns}
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return t, models.NewDataLoadError(name, err)
	}
	var missing []string
	for i, c := range columns {
		if i >= len(header) || !strings.EqualFold(strings.TrimSpace(header[i]), c.Name) {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		return t, models.NewMissingColumnsError(name, missing)
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return t, models.NewDataLoadError(name, err)
		}
		row := make([]interface{}, len(columns))
		for j, c := range columns {
			v, err := parseCell(c, record[j])
			if err != nil {
				return t, models.NewDataLoadError(name, fmt.Errorf("line %d column %s: %w", line, c.Name, err))
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func formatCell(c Column, cell interface{}) (string, error) {
	switch c.Kind {
	case Currency, Ratio:
		places := int32(currencyPlaces)
		if c.Kind == Ratio {
			places = ratioPlaces
		}
		switch v := cell.(type) {
		case decimal.Decimal:
			return v.StringFixed(places), nil
		case float64:
			return decimal.NewFromFloat(v).StringFixed(places), nil
		case int:
			return decimal.NewFromInt(int64(v)).StringFixed(places), nil
		}
	case Integer:
		if v, ok := cell.(int); ok {
			return strconv.Itoa(v), nil
		}
	case Date:
		if v, ok := cell.(time.Time); ok {
			return v.UTC().Format(dateLayout), nil
		}
	case Text:
		switch v := cell.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		}
	}
	return "", fmt.Errorf("column %s: unsupported value %T", c.Name, cell)
}

func parseCell(c Column, s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	switch c.Kind {
	case Currency:
		return decimal.NewFromString(s)
	case Ratio:
		return strconv.ParseFloat(s, 64)
	case Integer:
		return strconv.Atoi(s)
	case Date:
		return time.Parse(dateLayout, s)
	default:
		return s, nil
	}
}
