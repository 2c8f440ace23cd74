// Package transactions normalizes raw invoice lines into the canonical
// TransactionTable consumed by every analytics engine.
package transactions

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"retail-analytics/models"
)

// Source yields raw rows with a header; CSV files and SQL queries both implement it
type Source interface {
	Name() string
	Rows(ctx context.Context) (header []string, rows [][]string, err error)
}

// timestampLayouts are tried in order when parsing InvoiceDate
var timestampLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Load reads a CSV file from disk
func Load(ctx context.Context, path string) (*models.TransactionTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewDataLoadError(path, err)
	}
	defer f.Close()

	return Read(ctx, f, path)
}

// Read parses CSV content from any reader
func Read(ctx context.Context, r io.Reader, source string) (*models.TransactionTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, models.NewDataLoadError(source, fmt.Errorf("empty source: no header row"))
		}
		return nil, models.NewDataLoadError(source, err)
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// Malformed line: keep going, it is counted as dropped below
				rows = append(rows, nil)
				continue
			}
			return nil, models.NewDataLoadError(source, err)
		}
		rows = append(rows, row)
	}

	return Normalize(source, header, rows)
}

// LoadFromSource pulls rows from a Source and normalizes them
func LoadFromSource(ctx context.Context, src Source) (*models.TransactionTable, error) {
	header, rows, err := src.Rows(ctx)
	if err != nil {
		var loadErr *models.DataLoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, models.NewDataLoadError(src.Name(), err)
	}
	return Normalize(src.Name(), header, rows)
}

// Normalize validates the header, coerces every row and computes derived fields
func Normalize(source string, header []string, rows [][]string) (*models.TransactionTable, error) {
	index, err := columnIndex(source, header)
	if err != nil {
		return nil, err
	}

	table := &models.TransactionTable{
		Source:  source,
		Records: make([]models.TransactionRecord, 0, len(rows)),
	}

	for _, row := range rows {
		rec, ok := parseRow(index, row)
		if !ok {
			table.Dropped++
			continue
		}
		table.Records = append(table.Records, rec)
	}

	table.Fingerprint = Fingerprint(table.Records)

	if table.Dropped > 0 {
		log.Printf("⚠️  %s: dropped %d malformed rows (kept %d)", source, table.Dropped, len(table.Records))
	}
	log.Printf("✅ Loaded %d transactions from %s", len(table.Records), source)

	return table, nil
}

// columnIndex maps required columns to positions, reporting every missing one
func columnIndex(source string, header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, exists := positions[name]; !exists {
			positions[name] = i
		}
	}

	index := make(map[string]int, len(models.RequiredColumns))
	var missing []string
	for _, col := range models.RequiredColumns {
		pos, ok := positions[strings.ToLower(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		index[col] = pos
	}

	if len(missing) > 0 {
		return nil, models.NewMissingColumnsError(source, missing)
	}
	return index, nil
}

func parseRow(index map[string]int, row []string) (models.TransactionRecord, bool) {
	var rec models.TransactionRecord
	if row == nil {
		return rec, false
	}

	field := func(col string) string {
		pos := index[col]
		if pos >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[pos])
	}

	rec.InvoiceNo = field("InvoiceNo")
	if rec.InvoiceNo == "" {
		return rec, false
	}

	qty, err := parseQuantity(field("Quantity"))
	if err != nil {
		return rec, false
	}
	rec.Quantity = qty

	price, err := strconv.ParseFloat(field("UnitPrice"), 64)
	if err != nil || price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return rec, false
	}
	rec.UnitPrice = price

	ts, err := parseTimestamp(field("InvoiceDate"))
	if err != nil {
		return rec, false
	}
	rec.InvoiceDate = ts

	rec.StockCode = field("StockCode")
	rec.Description = field("Description")
	rec.CustomerID = normalizeCustomerID(field("CustomerID"))
	rec.Country = field("Country")

	rec.TotalAmount = float64(rec.Quantity) * rec.UnitPrice
	rec.DayOfWeek = ts.Weekday()
	rec.Hour = ts.Hour()
	rec.YearMonth = ts.Format("2006-01")

	return rec, true
}

// parseQuantity accepts "6" and "6.0" but rejects fractional quantities
func parseQuantity(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("quantity %q is not an integer", s)
	}
	return int(f), nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// normalizeCustomerID turns spreadsheet floats like "17850.0" into "17850"
func normalizeCustomerID(s string) string {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return ""
	}
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}

// Fingerprint hashes the canonical form of the records; identical input gives identical output
func Fingerprint(records []models.TransactionRecord) string {
	h := sha256.New()
	for _, r := range records {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%d\x1f%s\x1f%d\x1f%s\x1f%s\n",
			r.InvoiceNo,
			r.StockCode,
			r.Description,
			r.Quantity,
			strconv.FormatFloat(r.UnitPrice, 'g', -1, 64),
			r.InvoiceDate.Unix(),
			r.CustomerID,
			r.Country,
		)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}
