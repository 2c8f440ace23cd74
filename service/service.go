package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"retail-analytics/basket"
	"retail-analytics/cache"
	"retail-analytics/clv"
	"retail-analytics/config"
	"retail-analytics/database"
	"retail-analytics/export"
	"retail-analytics/forecast"
	"retail-analytics/helpers"
	"retail-analytics/jobs"
	"retail-analytics/metrics"
	"retail-analytics/models"
	"retail-analytics/notifications"
	"retail-analytics/realtime"
	"retail-analytics/rfm"
	"retail-analytics/transactions"
)

// Engine names used for cache keys, metrics labels and snapshot runs
const (
	EngineOverview = "overview"
	EngineRFM      = database.EngineRFM
	EngineBasket   = database.EngineBasket
	EngineForecast = database.EngineForecast
	EngineCLV      = database.EngineCLV

	jobKindTrain = "clv.train"
)

// LoadFunc produces a fresh transaction table from the configured source
type LoadFunc func(ctx context.Context) (*models.TransactionTable, error)

// SnapshotStore is the subset of the snapshot repository the service writes to
type SnapshotStore interface {
	SaveRFM(ctx context.Context, meta database.RunMeta, rows []models.CustomerRFM) (string, error)
	SaveRules(ctx context.Context, meta database.RunMeta, rules []models.AssociationRule) (string, error)
	SaveForecast(ctx context.Context, meta database.RunMeta, points []models.ForecastPoint) (string, error)
	SavePredictions(ctx context.Context, meta database.RunMeta, predictions []models.CLVPrediction) (string, error)
	SaveModelArtifact(ctx context.Context, artifact *database.ModelArtifact) error
	LatestModelArtifact(ctx context.Context, fingerprint string) (*database.ModelArtifact, error)
	LatestRun(ctx context.Context, engine, fingerprint string) (*database.AnalysisRun, error)
}

// RFMQuery scopes an RFM computation
type RFMQuery struct {
	Criteria      transactions.Criteria
	ReferenceDate *time.Time
}

// CustomerProfile is one customer's RFM row with the segment playbook and,
// when a model has been trained, the CLV/churn prediction
type CustomerProfile struct {
	RFM            models.CustomerRFM    `json:"rfm"`
	Recommendation models.Recommendation `json:"recommendation"`
	Prediction     *models.CLVPrediction `json:"prediction,omitempty"`
	Explanation    *Explanation          `json:"explanation,omitempty"`
}

// Contribution is one feature's additive share of a model output
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Explanation splits a customer's raw model outputs into feature contributions.
// Base plus the contributions gives the raw output: CLV for the regression,
// log-odds for the churn classifier.
type Explanation struct {
	CLVBase   float64        `json:"clv_base"`
	CLV       []Contribution `json:"clv"`
	ChurnBase float64        `json:"churn_base"`
	Churn     []Contribution `json:"churn"`
}

// ModelReport is the outcome of a training run, or of re-scoring a stored model
type ModelReport struct {
	Fingerprint          string                     `json:"fingerprint"`
	Customers            []clv.ScoredCustomer       `json:"customers"`
	RegressionImportance []models.FeatureImportance `json:"regression_importance"`
	ClassifierImportance []models.FeatureImportance `json:"classifier_importance"`
	Matrix               []clv.MatrixCell           `json:"matrix"`
	MAE                  float64                    `json:"mae"`
	Accuracy             float64                    `json:"accuracy"`
	TrainSize            int                        `json:"train_size"`
	TestSize             int                        `json:"test_size"`
	TrainedAt            time.Time                  `json:"trained_at"`
	FromArtifact         bool                       `json:"from_artifact"`
	// Mean absolute CLV contribution per feature
	Attribution          []models.FeatureImportance `json:"attribution"`

	artifact *clv.Artifact
}

// TrainingSummary is the job result reported to pollers
type TrainingSummary struct {
	Fingerprint string  `json:"fingerprint"`
	Customers   int     `json:"customers"`
	HighRisk    int     `json:"high_risk"`
	MAE         float64 `json:"mae"`
	Accuracy    float64 `json:"accuracy"`
	RunID       string  `json:"run_id,omitempty"`
}

// AnalyticsService runs the engines over the active transaction table
type AnalyticsService struct {
	cfg       *config.Config
	load      LoadFunc
	cache     *cache.EngineCache
	store     SnapshotStore
	jobs      *jobs.Manager
	publisher realtime.Publisher

	mu    sync.RWMutex
	table *models.TransactionTable

	modelMu sync.RWMutex
	reports map[string]*ModelReport // By scoped table fingerprint
}

// NewAnalyticsService creates the service. store and publisher may be nil.
func NewAnalyticsService(cfg *config.Config, load LoadFunc, engineCache *cache.EngineCache, store SnapshotStore, jobManager *jobs.Manager, publisher realtime.Publisher) *AnalyticsService {
	return &AnalyticsService{
		cfg:       cfg,
		load:      load,
		cache:     engineCache,
		store:     store,
		jobs:      jobManager,
		publisher: publisher,
		reports:   make(map[string]*ModelReport),
	}
}

// Table returns the active transaction table
func (s *AnalyticsService) Table() *models.TransactionTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Reload reads the source again. When the data changed, cached results for
// the previous fingerprint are dropped and data.refreshed is broadcast.
func (s *AnalyticsService) Reload(ctx context.Context) (*models.TransactionTable, error) {
	start := time.Now()
	table, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	previous := s.table
	s.table = table
	s.mu.Unlock()

	if previous != nil && previous.Fingerprint == table.Fingerprint {
		log.Printf("🔄 Source unchanged (%s), keeping cached results", table.Fingerprint)
		return table, nil
	}

	if previous != nil {
		if err := s.cache.Invalidate(ctx, previous.Fingerprint); err != nil {
			log.Printf("⚠️  Failed to invalidate cache for %s: %v", previous.Fingerprint, err)
		}
		s.modelMu.Lock()
		s.reports = make(map[string]*ModelReport)
		s.modelMu.Unlock()
	}

	log.Printf("✅ Loaded %d transactions from %s in %v (fingerprint %s)",
		table.Len(), table.Source, time.Since(start).Round(time.Millisecond), table.Fingerprint)

	s.broadcast(realtime.EventDataRefreshed, map[string]interface{}{
		"fingerprint": table.Fingerprint,
		"source":      table.Source,
		"rows":        table.Len(),
		"dropped":     table.Dropped,
	})
	return table, nil
}

// scoped returns the active table narrowed by the criteria
func (s *AnalyticsService) scoped(c transactions.Criteria) (*models.TransactionTable, error) {
	table := s.Table()
	if table == nil {
		return nil, models.NewDataLoadError("transactions", errors.New("no data loaded"))
	}
	return transactions.Filter(table, c)
}

// cached serves an engine result from the cache or computes, records and stores it
func cached[T any](ctx context.Context, s *AnalyticsService, engine, fingerprint string, params interface{}, compute func() (T, error)) (T, bool, error) {
	var out T
	if s.cache.Get(ctx, engine, fingerprint, params, &out) {
		return out, true, nil
	}

	start := time.Now()
	out, err := compute()
	metrics.ObserveRun(engine, start, err)
	if err != nil {
		return out, false, err
	}

	s.cache.Set(ctx, engine, fingerprint, params, out)
	return out, false, nil
}

// Overview computes the dashboard KPIs
func (s *AnalyticsService) Overview(ctx context.Context, c transactions.Criteria) (transactions.Overview, error) {
	table, err := s.scoped(c)
	if err != nil {
		return transactions.Overview{}, err
	}

	ov, _, err := cached(ctx, s, EngineOverview, table.Fingerprint, nil, func() (transactions.Overview, error) {
		return transactions.Summarize(table), nil
	})
	return ov, err
}

// Countries lists the countries present in the active table
func (s *AnalyticsService) Countries() []string {
	return transactions.Countries(s.Table())
}

// RFM computes the customer snapshot
func (s *AnalyticsService) RFM(ctx context.Context, q RFMQuery) ([]models.CustomerRFM, error) {
	table, err := s.scoped(q.Criteria)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{"reference_date": q.ReferenceDate, "rules": s.cfg.RFM.Rules}
	rows, hit, err := cached(ctx, s, EngineRFM, table.Fingerprint, params, func() ([]models.CustomerRFM, error) {
		return rfm.Compute(table, q.ReferenceDate, s.cfg.RFM)
	})
	if err != nil {
		return nil, err
	}

	if !hit && s.store != nil {
		meta := database.RunMeta{Fingerprint: table.Fingerprint, Source: table.Source, Params: params}
		if _, err := s.store.SaveRFM(ctx, meta, rows); err != nil {
			log.Printf("⚠️  Failed to persist RFM snapshot: %v", err)
		}
	}
	return rows, nil
}

// Segments aggregates the RFM snapshot per segment
func (s *AnalyticsService) Segments(ctx context.Context, q RFMQuery) ([]rfm.SegmentStats, error) {
	rows, err := s.RFM(ctx, q)
	if err != nil {
		return nil, err
	}
	return rfm.SegmentSummary(rows), nil
}

// TopCustomers returns the n highest-spending customers
func (s *AnalyticsService) TopCustomers(ctx context.Context, q RFMQuery, n int) ([]models.CustomerRFM, error) {
	rows, err := s.RFM(ctx, q)
	if err != nil {
		return nil, err
	}
	return rfm.TopCustomers(rows, n), nil
}

// Customer looks up one customer's profile
func (s *AnalyticsService) Customer(ctx context.Context, q RFMQuery, customerID string) (*CustomerProfile, error) {
	rows, err := s.RFM(ctx, q)
	if err != nil {
		return nil, err
	}

	row, ok := rfm.Find(rows, customerID)
	if !ok {
		return nil, database.NewNotFoundErrorWithID("customer", customerID)
	}

	profile := &CustomerProfile{
		RFM:            row,
		Recommendation: models.RecommendationFor(row.Segment),
	}

	table, err := s.scoped(q.Criteria)
	if err != nil {
		return nil, err
	}
	if report := s.report(table.Fingerprint); report != nil {
		for _, c := range report.Customers {
			if c.CustomerID == row.CustomerID {
				p := c.Prediction()
				profile.Prediction = &p
				break
			}
		}
		if profile.Prediction != nil {
			profile.Explanation = explain(report.artifact, row)
		}
	}
	return profile, nil
}

// explain attributes one customer's predictions to the model features
func explain(a *clv.Artifact, row models.CustomerRFM) *Explanation {
	if a == nil {
		return nil
	}
	x := [][]float64{clv.FeatureVector(row)}
	clvParts, err := clv.Explain(a.Regression, a.Scaler, x)
	if err != nil {
		log.Printf("⚠️  Failed to explain CLV for %s: %v", row.CustomerID, err)
		return nil
	}
	churnParts, err := clv.Explain(a.Classifier, a.Scaler, x)
	if err != nil {
		log.Printf("⚠️  Failed to explain churn for %s: %v", row.CustomerID, err)
		return nil
	}
	return &Explanation{
		CLVBase:   a.Regression.Intercept(),
		CLV:       contributions(a.Regression, clvParts[0]),
		ChurnBase: a.Classifier.Intercept(),
		Churn:     contributions(a.Classifier, churnParts[0]),
	}
}

func contributions(m clv.Model, values []float64) []Contribution {
	names := m.Features()
	out := make([]Contribution, len(values))
	for j, v := range values {
		out[j] = Contribution{Value: v}
		if j < len(names) {
			out[j].Feature = names[j]
		}
	}
	return out
}

// attribution averages absolute CLV contributions over the scored rows
func attribution(a *clv.Artifact, rows []models.CustomerRFM) []models.FeatureImportance {
	parts, err := clv.Explain(a.Regression, a.Scaler, clv.FeatureMatrix(rows))
	if err != nil {
		log.Printf("⚠️  Failed to compute CLV attribution: %v", err)
		return nil
	}
	return clv.GlobalImportance(a.Regression, parts)
}

// Rules mines association rules over the scoped table. Params apply as given,
// so MaxBasketItems 0 means no cap.
func (s *AnalyticsService) Rules(ctx context.Context, c transactions.Criteria, p basket.Params) (*basket.Result, error) {
	table, err := s.scoped(c)
	if err != nil {
		return nil, err
	}
	result, hit, err := cached(ctx, s, EngineBasket, table.Fingerprint, p, func() (*basket.Result, error) {
		return basket.Mine(table, p)
	})
	if err != nil {
		return nil, err
	}

	if !hit && s.store != nil {
		meta := database.RunMeta{Fingerprint: table.Fingerprint, Source: table.Source, Params: p}
		if _, err := s.store.SaveRules(ctx, meta, result.Rules); err != nil {
			log.Printf("⚠️  Failed to persist association rules: %v", err)
		}
	}
	return result, nil
}

// Recommend suggests items to sell alongside anchor
func (s *AnalyticsService) Recommend(ctx context.Context, c transactions.Criteria, p basket.Params, anchor string, n int) ([]basket.CrossSell, error) {
	result, err := s.Rules(ctx, c, p)
	if err != nil {
		return nil, err
	}
	return basket.Recommend(result.Rules, anchor, n), nil
}

// Forecast projects monthly revenue
func (s *AnalyticsService) Forecast(ctx context.Context, c transactions.Criteria, periods int) (*forecast.Result, error) {
	table, err := s.scoped(c)
	if err != nil {
		return nil, err
	}
	if periods == 0 {
		periods = s.cfg.Forecast.Periods
	}

	params := map[string]interface{}{"periods": periods, "config": s.cfg.Forecast.Config}
	result, hit, err := cached(ctx, s, EngineForecast, table.Fingerprint, params, func() (*forecast.Result, error) {
		return forecast.Forecast(table, periods, s.cfg.Forecast.Config)
	})
	if err != nil {
		return nil, err
	}

	if !hit && s.store != nil {
		meta := database.RunMeta{Fingerprint: table.Fingerprint, Source: table.Source, Params: params}
		if _, err := s.store.SaveForecast(ctx, meta, result.Points); err != nil {
			log.Printf("⚠️  Failed to persist forecast: %v", err)
		}
	}
	return result, nil
}

// TrainAsync starts CLV/churn training as a background job and returns its handle
func (s *AnalyticsService) TrainAsync(ctx context.Context, c transactions.Criteria) (string, error) {
	table, err := s.scoped(c)
	if err != nil {
		return "", err
	}

	id := s.jobs.Submit(jobKindTrain, func(jobCtx context.Context) (interface{}, error) {
		return s.train(jobCtx, table)
	})
	log.Printf("🚀 Training job %s submitted for %s", id, table.Fingerprint)
	return id, nil
}

// Train runs CLV/churn training synchronously
func (s *AnalyticsService) Train(ctx context.Context, c transactions.Criteria) (*TrainingSummary, error) {
	table, err := s.scoped(c)
	if err != nil {
		return nil, err
	}
	return s.train(ctx, table)
}

func (s *AnalyticsService) train(ctx context.Context, table *models.TransactionTable) (*TrainingSummary, error) {
	rows, err := rfm.Compute(table, nil, s.cfg.RFM)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := clv.TrainAndScore(rows, s.cfg.CLV)
	metrics.ObserveRun(EngineCLV, start, err)
	if err != nil {
		return nil, err
	}
	// A discarded job must not publish partial results
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &ModelReport{
		Fingerprint:          table.Fingerprint,
		Customers:            result.Customers,
		RegressionImportance: result.RegressionImportance,
		ClassifierImportance: result.ClassifierImportance,
		Matrix:               clv.StrategicMatrix(result.Customers),
		MAE:                  result.MAE,
		Accuracy:             result.Accuracy,
		TrainSize:            result.TrainSize,
		TestSize:             result.TestSize,
		TrainedAt:            time.Now(),
		artifact:             clv.ArtifactOf(result),
	}
	report.Attribution = attribution(report.artifact, rows)

	summary := &TrainingSummary{
		Fingerprint: table.Fingerprint,
		Customers:   len(result.Customers),
		MAE:         result.MAE,
		Accuracy:    result.Accuracy,
	}
	highRisk := clv.HighRisk(result.Customers, -1)
	summary.HighRisk = len(highRisk)

	if s.store != nil {
		runID, err := s.persistModel(ctx, table, result)
		if err != nil {
			log.Printf("⚠️  Failed to persist CLV model: %v", err)
		} else {
			summary.RunID = runID
		}
	}
	// Discard may arrive while the model is being persisted
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.modelMu.Lock()
	s.reports[table.Fingerprint] = report
	s.modelMu.Unlock()

	log.Printf("📊 CLV model trained on %d customers (MAE %s, accuracy %s, %d high risk)",
		summary.Customers, helpers.FormatCurrency(summary.MAE, "£"), helpers.FormatPercent(summary.Accuracy, 1), summary.HighRisk)

	if s.cfg.ChurnAlertEnabled && len(highRisk) > 0 {
		s.broadcast(notifications.EventChurnAlert, churnAlert(table.Fingerprint, highRisk, s.cfg.ChurnAlertTopN))
	}
	return summary, nil
}

func (s *AnalyticsService) persistModel(ctx context.Context, table *models.TransactionTable, result *clv.Result) (string, error) {
	predictions := make([]models.CLVPrediction, len(result.Customers))
	for i, c := range result.Customers {
		predictions[i] = c.Prediction()
	}

	meta := database.RunMeta{Fingerprint: table.Fingerprint, Source: table.Source, Params: result.Config}
	runID, err := s.store.SavePredictions(ctx, meta, predictions)
	if err != nil {
		return "", err
	}

	payload, err := clv.EncodeArtifact(clv.ArtifactOf(result))
	if err != nil {
		return runID, err
	}
	artifact := &database.ModelArtifact{
		RunID:       runID,
		Fingerprint: table.Fingerprint,
		Version:     clv.ArtifactVersion,
		Payload:     payload,
		MAE:         result.MAE,
		Accuracy:    result.Accuracy,
	}
	return runID, s.store.SaveModelArtifact(ctx, artifact)
}

// churnAlert builds the webhook payload for the riskiest customers
func churnAlert(fingerprint string, highRisk []clv.ScoredCustomer, topN int) notifications.ChurnAlert {
	alert := notifications.ChurnAlert{Fingerprint: fingerprint, HighRisk: len(highRisk)}
	for _, c := range highRisk {
		alert.ValueAtRisk += c.PredictedCLV
	}
	for _, c := range clv.TopByCLV(highRisk, topN) {
		alert.TopCustomerIDs = append(alert.TopCustomerIDs, c.CustomerID)
	}
	return alert
}

// Predictions returns the latest model report for the scoped table. Without an
// in-memory model, the newest stored artifact for the fingerprint is re-scored.
func (s *AnalyticsService) Predictions(ctx context.Context, c transactions.Criteria) (*ModelReport, error) {
	table, err := s.scoped(c)
	if err != nil {
		return nil, err
	}
	if report := s.report(table.Fingerprint); report != nil {
		return report, nil
	}
	if s.store == nil {
		return nil, database.NewNotFoundErrorWithID("model", table.Fingerprint)
	}

	stored, err := s.store.LatestModelArtifact(ctx, table.Fingerprint)
	if err != nil {
		return nil, err
	}
	artifact, err := clv.DecodeArtifact(stored.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode model artifact %d: %w", stored.ID, err)
	}

	rows, err := rfm.Compute(table, nil, s.cfg.RFM)
	if err != nil {
		return nil, err
	}
	customers := artifact.Score(rows)

	report := &ModelReport{
		Fingerprint:          table.Fingerprint,
		Customers:            customers,
		RegressionImportance: clv.Importance(artifact.Regression),
		ClassifierImportance: clv.Importance(artifact.Classifier),
		Matrix:               clv.StrategicMatrix(customers),
		MAE:                  stored.MAE,
		Accuracy:             stored.Accuracy,
		TrainedAt:            stored.CreatedAt,
		FromArtifact:         true,
		artifact:             artifact,
	}
	report.Attribution = attribution(artifact, rows)
	s.modelMu.Lock()
	s.reports[table.Fingerprint] = report
	s.modelMu.Unlock()

	log.Printf("🔄 Restored CLV model from artifact %d for %s", stored.ID, table.Fingerprint)
	return report, nil
}

func (s *AnalyticsService) report(fingerprint string) *ModelReport {
	s.modelMu.RLock()
	defer s.modelMu.RUnlock()
	return s.reports[fingerprint]
}

// LatestRun returns the newest persisted snapshot run of an engine for the scoped table
func (s *AnalyticsService) LatestRun(ctx context.Context, engine string, c transactions.Criteria) (*database.AnalysisRun, error) {
	switch engine {
	case EngineRFM, EngineBasket, EngineForecast, EngineCLV:
	default:
		return nil, models.NewInvalidParameterError("engine", "unknown engine", engine)
	}
	table, err := s.scoped(c)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, database.NewNotFoundErrorWithID(engine+" run", table.Fingerprint)
	}
	return s.store.LatestRun(ctx, engine, table.Fingerprint)
}

// Job reports the state of a background job
func (s *AnalyticsService) Job(id string) (jobs.Status, bool) {
	return s.jobs.Status(id)
}

// DiscardJob cancels a job and forgets its handle
func (s *AnalyticsService) DiscardJob(id string) bool {
	return s.jobs.Discard(id)
}

// Export renders one named result set as an export table
func (s *AnalyticsService) Export(ctx context.Context, name string, c transactions.Criteria) (export.Table, error) {
	q := RFMQuery{Criteria: c}
	switch name {
	case export.TableRFM:
		rows, err := s.RFM(ctx, q)
		if err != nil {
			return export.Table{}, err
		}
		return export.RFMTable(rows), nil
	case export.TableSegments:
		stats, err := s.Segments(ctx, q)
		if err != nil {
			return export.Table{}, err
		}
		return export.SegmentTable(stats), nil
	case export.TableRules:
		result, err := s.Rules(ctx, c, s.cfg.Basket)
		if err != nil {
			return export.Table{}, err
		}
		return export.RulesTable(result.Rules), nil
	case export.TableForecast:
		result, err := s.Forecast(ctx, c, 0)
		if err != nil {
			return export.Table{}, err
		}
		return export.ForecastTable(result.Points), nil
	case export.TablePredictions, export.TableImportance:
		report, err := s.Predictions(ctx, c)
		if err != nil {
			return export.Table{}, err
		}
		if name == export.TableImportance {
			return export.ImportanceTable(report.RegressionImportance, report.ClassifierImportance), nil
		}
		predictions := make([]models.CLVPrediction, len(report.Customers))
		for i, sc := range report.Customers {
			predictions[i] = sc.Prediction()
		}
		return export.PredictionsTable(predictions), nil
	}
	return export.Table{}, models.NewInvalidParameterError("table", "unknown export table", name)
}

func (s *AnalyticsService) broadcast(event string, payload interface{}) {
	if s.publisher != nil {
		s.publisher.Broadcast(event, payload)
	}
}
