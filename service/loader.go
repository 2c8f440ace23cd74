package service

import (
	"context"
	"log"

	"retail-analytics/config"
	"retail-analytics/database"
	"retail-analytics/models"
	"retail-analytics/transactions"
)

// SourceLoader returns the loader for the configured source: a SQL query when
// a source driver is set, the CSV file otherwise
func SourceLoader(cfg *config.Config) LoadFunc {
	if cfg.Source.Driver == "" {
		return func(ctx context.Context) (*models.TransactionTable, error) {
			return transactions.Load(ctx, cfg.DataPath)
		}
	}

	return func(ctx context.Context) (*models.TransactionTable, error) {
		src, err := database.OpenTransactionSource(cfg.Source)
		if err != nil {
			return nil, models.NewDataLoadError(cfg.Source.Driver, err)
		}
		defer func() {
			if err := src.Close(); err != nil {
				log.Printf("⚠️  Error closing transaction source: %v", err)
			}
		}()
		return transactions.LoadFromSource(ctx, src)
	}
}
