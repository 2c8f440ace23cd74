package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"retail-analytics/models"
)

const insertBatchSize = 500

// Engine names recorded on AnalysisRun
const (
	EngineRFM      = "rfm"
	EngineBasket   = "basket"
	EngineForecast = "forecast"
	EngineCLV      = "clv"
)

// RunMeta describes the dataset and parameters a snapshot was computed from
type RunMeta struct {
	Fingerprint string
	Source      string
	Params      interface{}
}

// SnapshotRepository persists engine outputs and webhook configuration
type SnapshotRepository struct {
	db *Database
}

// NewSnapshotRepository creates a new repository instance
func NewSnapshotRepository(db *Database) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// InitSchema creates or migrates every table
func (r *SnapshotRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&AnalysisRun{},
		&RFMSnapshot{},
		&RuleSnapshot{},
		&ForecastSnapshot{},
		&PredictionSnapshot{},
		&ModelArtifact{},
		&Webhook{},
		&WebhookLog{},
	)
	if err != nil {
		return WrapDBError("auto migrate", err)
	}

	fmt.Println("✅ Database schema initialized")
	return nil
}

// saveRun writes the run header and its rows in one transaction and returns the run ID
func (r *SnapshotRepository) saveRun(ctx context.Context, engine string, meta RunMeta, count int, rows func(runID string) interface{}) (string, error) {
	params, err := json.Marshal(meta.Params)
	if err != nil {
		return "", fmt.Errorf("encode %s params: %w", engine, err)
	}

	run := AnalysisRun{
		ID:          uuid.NewString(),
		Engine:      engine,
		Fingerprint: meta.Fingerprint,
		Source:      meta.Source,
		Params:      string(params),
		Rows:        count,
	}

	err = r.db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		return tx.CreateInBatches(rows(run.ID), insertBatchSize).Error
	})
	if err != nil {
		return "", WrapDBError("save "+engine+" snapshot", err)
	}
	return run.ID, nil
}

// SaveRFM stores a per-customer RFM snapshot
func (r *SnapshotRepository) SaveRFM(ctx context.Context, meta RunMeta, rows []models.CustomerRFM) (string, error) {
	return r.saveRun(ctx, EngineRFM, meta, len(rows), func(runID string) interface{} {
		return ToRFMSnapshots(runID, meta.Fingerprint, rows)
	})
}

// SaveRules stores mined association rules
func (r *SnapshotRepository) SaveRules(ctx context.Context, meta RunMeta, rules []models.AssociationRule) (string, error) {
	return r.saveRun(ctx, EngineBasket, meta, len(rules), func(runID string) interface{} {
		return ToRuleSnapshots(runID, meta.Fingerprint, rules)
	})
}

// SaveForecast stores projected months
func (r *SnapshotRepository) SaveForecast(ctx context.Context, meta RunMeta, points []models.ForecastPoint) (string, error) {
	return r.saveRun(ctx, EngineForecast, meta, len(points), func(runID string) interface{} {
		return ToForecastSnapshots(runID, meta.Fingerprint, points)
	})
}

// SavePredictions stores CLV and churn scores
func (r *SnapshotRepository) SavePredictions(ctx context.Context, meta RunMeta, predictions []models.CLVPrediction) (string, error) {
	return r.saveRun(ctx, EngineCLV, meta, len(predictions), func(runID string) interface{} {
		return ToPredictionSnapshots(runID, meta.Fingerprint, predictions)
	})
}

// SaveModelArtifact stores an encoded model for a training run
func (r *SnapshotRepository) SaveModelArtifact(ctx context.Context, artifact *ModelArtifact) error {
	if len(artifact.Payload) == 0 {
		return NewValidationError("payload", "artifact payload is empty")
	}
	return WrapDBError("save model artifact", r.db.db.WithContext(ctx).Create(artifact).Error)
}

// LatestModelArtifact returns the newest artifact, restricted to a fingerprint when one is given
func (r *SnapshotRepository) LatestModelArtifact(ctx context.Context, fingerprint string) (*ModelArtifact, error) {
	query := r.db.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if fingerprint != "" {
		query = query.Where("fingerprint = ?", fingerprint)
	}

	var artifact ModelArtifact
	if err := query.First(&artifact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundErrorWithID("model artifact", fingerprint)
		}
		return nil, WrapDBError("latest model artifact", err)
	}
	return &artifact, nil
}

// LatestRun returns the newest run of an engine for a fingerprint
func (r *SnapshotRepository) LatestRun(ctx context.Context, engine, fingerprint string) (*AnalysisRun, error) {
	var run AnalysisRun
	err := r.db.db.WithContext(ctx).
		Where("engine = ? AND fingerprint = ?", engine, fingerprint).
		Order("created_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundErrorWithID(engine+" run", fingerprint)
		}
		return nil, WrapDBError("latest run", err)
	}
	return &run, nil
}

// Webhook Management methods

// GetWebhooks retrieves all webhooks (active and inactive)
func (r *SnapshotRepository) GetWebhooks(ctx context.Context) ([]Webhook, error) {
	var webhooks []Webhook
	err := r.db.db.WithContext(ctx).Order("id ASC").Find(&webhooks).Error
	return webhooks, WrapDBError("get webhooks", err)
}

// GetActiveWebhooks retrieves active webhooks subscribed to an event
func (r *SnapshotRepository) GetActiveWebhooks(ctx context.Context, event string) ([]Webhook, error) {
	var webhooks []Webhook
	if err := r.db.db.WithContext(ctx).Where("is_active = ?", true).Find(&webhooks).Error; err != nil {
		return nil, WrapDBError("get active webhooks", err)
	}

	out := webhooks[:0]
	for _, w := range webhooks {
		if w.Subscribes(event) {
			out = append(out, w)
		}
	}
	return out, nil
}

// GetWebhookByID retrieves a specific webhook
func (r *SnapshotRepository) GetWebhookByID(ctx context.Context, id int) (*Webhook, error) {
	var webhook Webhook
	err := r.db.db.WithContext(ctx).First(&webhook, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFoundErrorWithID("webhook", id)
	}
	if err != nil {
		return nil, WrapDBError("get webhook", err)
	}
	return &webhook, nil
}

// SaveWebhook validates and creates or updates a webhook
func (r *SnapshotRepository) SaveWebhook(ctx context.Context, webhook *Webhook) error {
	if err := webhook.Validate(); err != nil {
		return err
	}
	return WrapDBError("save webhook", r.db.db.WithContext(ctx).Save(webhook).Error)
}

// UpdateWebhookStats persists delivery counters after a notification
func (r *SnapshotRepository) UpdateWebhookStats(ctx context.Context, webhook *Webhook) error {
	err := r.db.db.WithContext(ctx).Model(webhook).Select(
		"LastTriggeredAt", "LastSuccessAt", "LastError", "TotalSent", "TotalFailed",
	).Updates(webhook).Error
	return WrapDBError("update webhook stats", err)
}

// DeleteWebhook deletes a webhook
func (r *SnapshotRepository) DeleteWebhook(ctx context.Context, id int) error {
	result := r.db.db.WithContext(ctx).Delete(&Webhook{}, id)
	if result.Error != nil {
		return WrapDBError("delete webhook", result.Error)
	}
	if result.RowsAffected == 0 {
		return NewNotFoundErrorWithID("webhook", id)
	}
	return nil
}

// SaveWebhookLog saves a webhook delivery log
func (r *SnapshotRepository) SaveWebhookLog(ctx context.Context, log *WebhookLog) error {
	return WrapDBError("save webhook log", r.db.db.WithContext(ctx).Create(log).Error)
}

// Validate checks the fields a delivery needs
func (w *Webhook) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return NewValidationError("name", "is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationErrorWithValue("url", "must be an absolute http(s) URL", w.URL)
	}
	if w.Method == "" {
		w.Method = "POST"
	}
	return nil
}

// Subscribes reports whether the webhook wants an event; no filter means every event
func (w Webhook) Subscribes(event string) bool {
	if strings.TrimSpace(w.Events) == "" {
		return true
	}
	for _, e := range strings.Split(w.Events, ",") {
		if strings.EqualFold(strings.TrimSpace(e), event) {
			return true
		}
	}
	return false
}

// ToRFMSnapshots converts engine rows to table rows
func ToRFMSnapshots(runID, fingerprint string, rows []models.CustomerRFM) []RFMSnapshot {
	out := make([]RFMSnapshot, len(rows))
	for i, c := range rows {
		out[i] = RFMSnapshot{
			RunID:       runID,
			Fingerprint: fingerprint,
			CustomerID:  c.CustomerID,
			Recency:     c.Recency,
			Frequency:   c.Frequency,
			Monetary:    c.Monetary,
			RScore:      c.RScore,
			FScore:      c.FScore,
			MScore:      c.MScore,
			RFMScore:    c.RFMScore,
			Segment:     c.Segment.String(),
			Country:     c.Country,
		}
	}
	return out
}

// ToRuleSnapshots converts association rules to table rows
func ToRuleSnapshots(runID, fingerprint string, rules []models.AssociationRule) []RuleSnapshot {
	out := make([]RuleSnapshot, len(rules))
	for i, r := range rules {
		out[i] = RuleSnapshot{
			RunID:          runID,
			Fingerprint:    fingerprint,
			ItemA:          r.ItemA,
			ItemB:          r.ItemB,
			Count:          r.Count,
			Support:        r.Support,
			ConfidenceAToB: r.ConfidenceAToB,
			ConfidenceBToA: r.ConfidenceBToA,
			LiftAToB:       r.LiftAToB,
			LiftBToA:       r.LiftBToA,
		}
	}
	return out
}

// ToForecastSnapshots converts forecast points to table rows
func ToForecastSnapshots(runID, fingerprint string, points []models.ForecastPoint) []ForecastSnapshot {
	out := make([]ForecastSnapshot, len(points))
	for i, p := range points {
		out[i] = ForecastSnapshot{
			RunID:       runID,
			Fingerprint: fingerprint,
			Month:       p.Date,
			Forecast:    p.Forecast,
			LowerBound:  p.LowerBound,
			UpperBound:  p.UpperBound,
		}
	}
	return out
}

// ToPredictionSnapshots converts CLV predictions to table rows
func ToPredictionSnapshots(runID, fingerprint string, predictions []models.CLVPrediction) []PredictionSnapshot {
	out := make([]PredictionSnapshot, len(predictions))
	for i, p := range predictions {
		out[i] = PredictionSnapshot{
			RunID:            runID,
			Fingerprint:      fingerprint,
			CustomerID:       p.CustomerID,
			PredictedCLV:     p.PredictedCLV,
			ChurnProbability: p.ChurnProbability,
			ChurnRisk:        p.ChurnRisk.String(),
			CLVTier:          p.CLVTier.String(),
		}
	}
	return out
}
