// Package database persists analytics snapshots and reads SQL-backed
// transaction sources.
//
// This package includes:
//   - Snapshot storage using GORM and PostgreSQL (RFM rows, association rules,
//     forecasts, CLV predictions and model artifacts)
//   - Webhook registrations and delivery logs
//   - A database/sql transaction source for PostgreSQL or MySQL
//
// Every snapshot row carries the dataset fingerprint and the run it belongs to,
// so results can be traced back to the exact input they were computed from.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the GORM connection shared by the repositories
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM instance
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes the snapshot store connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// NewDatabase wraps an existing GORM instance
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AnalysisRun records one engine execution over a dataset
type AnalysisRun struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Engine      string    `gorm:"size:20;index;not null" json:"engine"`
	Fingerprint string    `gorm:"size:32;index;not null" json:"fingerprint"`
	Source      string    `json:"source"`
	Params      string    `json:"params"` // JSON
	Rows        int       `json:"rows"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for AnalysisRun
func (AnalysisRun) TableName() string {
	return "analysis_runs"
}

// RFMSnapshot is one customer's RFM row within a run
type RFMSnapshot struct {
	ID          int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       string  `gorm:"size:36;index;not null" json:"run_id"`
	Fingerprint string  `gorm:"size:32;index" json:"fingerprint"`
	CustomerID  string  `gorm:"size:32;index" json:"customer_id"`
	Recency     int     `json:"recency"`
	Frequency   int     `json:"frequency"`
	Monetary    float64 `gorm:"type:decimal(20,2)" json:"monetary"`
	RScore      int     `json:"r_score"`
	FScore      int     `json:"f_score"`
	MScore      int     `json:"m_score"`
	RFMScore    string  `gorm:"size:3" json:"rfm_score"`
	Segment     string  `gorm:"size:32;index" json:"segment"`
	Country     string  `gorm:"size:64" json:"country"`
}

// TableName specifies the table name for RFMSnapshot
func (RFMSnapshot) TableName() string {
	return "rfm_snapshots"
}

// RuleSnapshot is one association rule within a run
type RuleSnapshot struct {
	ID             int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID          string  `gorm:"size:36;index;not null" json:"run_id"`
	Fingerprint    string  `gorm:"size:32;index" json:"fingerprint"`
	ItemA          string  `json:"item_a"`
	ItemB          string  `json:"item_b"`
	Count          int     `json:"count"`
	Support        float64 `json:"support"`
	ConfidenceAToB float64 `json:"confidence_a_to_b"`
	ConfidenceBToA float64 `json:"confidence_b_to_a"`
	LiftAToB       float64 `json:"lift_a_to_b"`
	LiftBToA       float64 `json:"lift_b_to_a"`
}

// TableName specifies the table name for RuleSnapshot
func (RuleSnapshot) TableName() string {
	return "rule_snapshots"
}

// ForecastSnapshot is one projected month within a run
type ForecastSnapshot struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       string    `gorm:"size:36;index;not null" json:"run_id"`
	Fingerprint string    `gorm:"size:32;index" json:"fingerprint"`
	Month       time.Time `json:"month"`
	Forecast    float64   `gorm:"type:decimal(20,2)" json:"forecast"`
	LowerBound  float64   `gorm:"type:decimal(20,2)" json:"lower_bound"`
	UpperBound  float64   `gorm:"type:decimal(20,2)" json:"upper_bound"`
}

// TableName specifies the table name for ForecastSnapshot
func (ForecastSnapshot) TableName() string {
	return "forecast_snapshots"
}

// PredictionSnapshot is one customer's CLV and churn score within a run
type PredictionSnapshot struct {
	ID               int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID            string  `gorm:"size:36;index;not null" json:"run_id"`
	Fingerprint      string  `gorm:"size:32;index" json:"fingerprint"`
	CustomerID       string  `gorm:"size:32;index" json:"customer_id"`
	PredictedCLV     float64 `gorm:"type:decimal(20,2)" json:"predicted_clv"`
	ChurnProbability float64 `json:"churn_probability"`
	ChurnRisk        string  `gorm:"size:10" json:"churn_risk"`
	CLVTier          string  `gorm:"size:16" json:"clv_tier"`
}

// TableName specifies the table name for PredictionSnapshot
func (PredictionSnapshot) TableName() string {
	return "prediction_snapshots"
}

// ModelArtifact stores an encoded CLV/churn model for reuse without retraining
type ModelArtifact struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       string    `gorm:"size:36;index;not null" json:"run_id"`
	Fingerprint string    `gorm:"size:32;index" json:"fingerprint"`
	Version     int       `json:"version"`
	Payload     []byte    `json:"-"`
	MAE         float64   `json:"mae"`
	Accuracy    float64   `json:"accuracy"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for ModelArtifact
func (ModelArtifact) TableName() string {
	return "model_artifacts"
}

// Webhook holds a webhook registration for job and churn notifications
type Webhook struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string     `gorm:"size:100;not null" json:"name"`
	URL               string     `gorm:"not null" json:"url"`
	Method            string     `gorm:"size:10;default:POST" json:"method"`
	AuthHeader        string     `gorm:"size:100" json:"auth_header,omitempty"`
	AuthValue         string     `json:"auth_value,omitempty"`
	Events            string     `json:"events"` // Comma separated; empty means every event
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	RetryCount        int        `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds int        `gorm:"default:5" json:"retry_delay_seconds"`
	TimeoutSeconds    int        `gorm:"default:10" json:"timeout_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	TotalSent         int        `gorm:"default:0" json:"total_sent"`
	TotalFailed       int        `gorm:"default:0" json:"total_failed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Webhook
func (Webhook) TableName() string {
	return "webhooks"
}

// WebhookLog holds one delivery attempt
type WebhookLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID      int       `gorm:"index;not null" json:"webhook_id"`
	Event          string    `gorm:"size:32" json:"event"`
	TriggeredAt    time.Time `gorm:"index;not null" json:"triggered_at"`
	Status         string    `gorm:"size:16" json:"status"` // SUCCESS, FAILED
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	RetryAttempt   int       `gorm:"default:0" json:"retry_attempt"`
}

// TableName specifies the table name for WebhookLog
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
