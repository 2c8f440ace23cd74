package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"retail-analytics/export"
	"retail-analytics/models"
	"retail-analytics/service"
	"retail-analytics/transactions"
)

// ReportResult lists the files a batch report wrote and the tables it skipped
type ReportResult struct {
	Files   []string          `json:"files"`
	Skipped map[string]string `json:"skipped"` // Table name -> reason
}

// reportTables is the batch order; predictions need training first
var reportTables = []string{
	export.TableRFM,
	export.TableSegments,
	export.TableRules,
	export.TableForecast,
	export.TablePredictions,
	export.TableImportance,
}

// RunReport computes every engine over the loaded table and writes one CSV per
// result set into dir. Tables whose engine lacks enough data are skipped.
func RunReport(ctx context.Context, svc *service.AnalyticsService, dir string, c transactions.Criteria, progress io.Writer) (*ReportResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	if progress == nil {
		progress = io.Discard
	}

	bar := progressbar.NewOptions(len(reportTables)+1,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("report"),
		progressbar.OptionShowCount(),
	)

	result := &ReportResult{Skipped: make(map[string]string)}

	_, trainErr := svc.Train(ctx, c)
	_ = bar.Add(1)
	if trainErr != nil && !skippable(trainErr) {
		return nil, trainErr
	}

	for _, name := range reportTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if trainErr != nil && (name == export.TablePredictions || name == export.TableImportance) {
			result.Skipped[name] = trainErr.Error()
			_ = bar.Add(1)
			continue
		}

		table, err := svc.Export(ctx, name, c)
		if err != nil {
			if !skippable(err) {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			result.Skipped[name] = err.Error()
			_ = bar.Add(1)
			continue
		}

		path := filepath.Join(dir, name+".csv")
		if err := writeTable(path, table); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, path)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	for name, reason := range result.Skipped {
		log.Printf("⚠️  Skipped %s: %s", name, reason)
	}
	log.Printf("✅ Report written to %s (%d files)", dir, len(result.Files))
	return result, nil
}

// skippable reports errors that mean "not enough data" rather than a failure
func skippable(err error) bool {
	var insufficient *models.InsufficientDataError
	return errors.As(err, &insufficient)
}

func writeTable(path string, table export.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteCSV(f, table); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
