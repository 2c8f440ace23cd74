package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-analytics/basket"
	"retail-analytics/clv"
	"retail-analytics/config"
	"retail-analytics/export"
	"retail-analytics/forecast"
	"retail-analytics/jobs"
	"retail-analytics/rfm"
	"retail-analytics/service"
	"retail-analytics/transactions"
)

// writeSampleCSV writes 60 customers over 14 months; every third customer
// bought once and lapsed
func writeSampleCSV(t *testing.T) string {
	t.Helper()
	items := []string{"MUG", "TEAPOT", "CANDLE", "LANTERN", "JAR"}
	start := time.Date(2010, 1, 1, 10, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString("InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n")
	invoice := 500000
	for c := 0; c < 60; c++ {
		visits, lastMonth := 2+c%5, 13
		if c%3 == 0 {
			visits, lastMonth = 1, 6
		}
		for v := 0; v < visits; v++ {
			invoice++
			at := start.AddDate(0, lastMonth-v, c%27).Format("2006-01-02 15:04:05")
			for k := 0; k < 2; k++ {
				item := items[(c+v+k)%5]
				fmt.Fprintf(&b, "%d,%s,%s,%d,%s,%.2f,%d,United Kingdom\n",
					invoice, item, item, 1+c%4, at, 2.5+float64(c%7), 12000+c)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func testConfig(dataPath string) *config.Config {
	return &config.Config{
		DataPath: dataPath,
		RFM:      rfm.DefaultConfig(),
		Basket:   basket.Params{MinSupport: 0.01, MinLift: 1},
		Forecast: config.ForecastConfig{Config: forecast.DefaultConfig(), Periods: 3},
		CLV:      clv.DefaultConfig(),
	}
}

func TestRunReportWritesEveryTable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(writeSampleCSV(t))
	svc := service.NewAnalyticsService(cfg, service.SourceLoader(cfg), nil, nil, jobs.NewManager(ctx), nil)
	_, err := svc.Reload(ctx)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	result, err := RunReport(ctx, svc, dir, transactions.Criteria{}, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Skipped)
	assert.Len(t, result.Files, 6)

	f, err := os.Open(filepath.Join(dir, export.TableRFM+".csv"))
	require.NoError(t, err)
	defer f.Close()
	table, err := export.ReadCSV(f, export.TableRFM, export.RFMColumns)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 60)
}

func TestRunReportSkipsThinData(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(writeSampleCSV(t))
	svc := service.NewAnalyticsService(cfg, service.SourceLoader(cfg), nil, nil, jobs.NewManager(ctx), nil)
	_, err := svc.Reload(ctx)
	require.NoError(t, err)

	// Two customers in a single month: too few to train or forecast
	c := transactions.Criteria{
		CustomerIDs: []string{"12001", "12002"},
		From:        time.Date(2011, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	result, err := RunReport(ctx, svc, t.TempDir(), c, nil)
	require.NoError(t, err)

	assert.Contains(t, result.Skipped, export.TablePredictions)
	assert.Contains(t, result.Skipped, export.TableImportance)
	assert.Contains(t, result.Skipped, export.TableForecast)
	assert.Len(t, result.Files, 3)
}

func TestRefresherReloadsOnSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	r := NewRefresher(ReloaderFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}), 50*time.Millisecond)

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&calls) < 2 {
		require.True(t, time.Now().Before(deadline), "refresher did not run")
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRefresherDisabled(t *testing.T) {
	var calls int32
	r := NewRefresher(ReloaderFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}), 0)

	require.NoError(t, r.Start(context.Background()))
	r.Stop()
	assert.Zero(t, atomic.LoadInt32(&calls))
}
