package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"retail-analytics/basket"
	"retail-analytics/clv"
	"retail-analytics/database"
	"retail-analytics/forecast"
	"retail-analytics/rfm"
)

// Config holds application configuration
type Config struct {
	// Transaction source: a CSV file, or a SQL query when Source.Driver is set
	DataPath string
	Source   database.SourceConfig

	// Snapshot database configuration
	DatabaseEnabled  bool
	DatabaseHost     string
	DatabasePort     int
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// HTTP server
	Port string

	// Scheduled reload of the transaction source; 0 disables it
	RefreshInterval time.Duration

	// How long finished jobs stay queryable
	JobRetention time.Duration

	// Batch report output directory
	ReportDir string

	// Engine policies
	RFM      rfm.Config
	Basket   basket.Params
	Forecast ForecastConfig
	CLV      clv.Config

	// Churn alert sent after training when High-risk customers are found
	ChurnAlertEnabled bool
	ChurnAlertTopN    int
}

// ForecastConfig pairs the engine policy with the default horizon
type ForecastConfig struct {
	forecast.Config
	Periods int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		DataPath: getEnvOrDefault("DATA_PATH", "data/online_retail.csv"),
		Source: database.SourceConfig{
			Driver:   getEnvOrDefault("SOURCE_DRIVER", ""),
			Host:     getEnvOrDefault("SOURCE_HOST", "localhost"),
			Port:     getEnvOrDefault("SOURCE_PORT", "5432"),
			User:     getEnvOrDefault("SOURCE_USER", "retail"),
			Password: getEnvOrDefault("SOURCE_PASSWORD", ""),
			DBName:   getEnvOrDefault("SOURCE_DB", "retail"),
			Query:    getEnvOrDefault("SOURCE_QUERY", ""),
		},

		DatabaseEnabled:  getEnvBool("DB_ENABLED", false),
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvInt("DB_PORT", 5432),
		DatabaseName:     getEnvOrDefault("DB_NAME", "retail_analytics"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "analytics"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", ""),

		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", time.Hour),

		Port:            getEnvOrDefault("PORT", "8080"),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 0),
		JobRetention:    getEnvDuration("JOB_RETENTION", time.Hour),
		ReportDir:       getEnvOrDefault("REPORT_DIR", "reports"),

		Basket: basket.Params{
			MinSupport:     getEnvFloat("BASKET_MIN_SUPPORT", 0.01),
			MinLift:        getEnvFloat("BASKET_MIN_LIFT", 1.0),
			MinConfidence:  getEnvFloat("BASKET_MIN_CONFIDENCE", 0),
			MaxBasketItems: getEnvInt("BASKET_MAX_ITEMS", 0),
		},

		ChurnAlertEnabled: getEnvBool("CHURN_ALERT_ENABLED", true),
		ChurnAlertTopN:    getEnvInt("CHURN_ALERT_TOP_N", 10),
	}

	rfmCfg, err := loadRFMConfig(getEnvOrDefault("RFM_RULES_FILE", ""))
	if err != nil {
		return nil, err
	}
	cfg.RFM = rfmCfg

	fc := forecast.DefaultConfig()
	fc.BaseMargin = getEnvFloat("FORECAST_MARGIN", fc.BaseMargin)
	fc.HorizonGrowth = getEnvFloat("FORECAST_HORIZON_GROWTH", fc.HorizonGrowth)
	fc.MaxMargin = getEnvFloat("FORECAST_MAX_MARGIN", fc.MaxMargin)
	fc.PredictionInterval = getEnvBool("FORECAST_PREDICTION_INTERVAL", fc.PredictionInterval)
	fc.ConfidenceLevel = getEnvFloat("FORECAST_CONFIDENCE_LEVEL", fc.ConfidenceLevel)
	fc.Seasonal = getEnvBool("FORECAST_SEASONAL", fc.Seasonal)
	cfg.Forecast = ForecastConfig{Config: fc, Periods: getEnvInt("FORECAST_PERIODS", forecast.DefaultPeriods)}

	cc := clv.DefaultConfig()
	cc.MinTrainingRows = getEnvInt("CLV_MIN_TRAINING_ROWS", cc.MinTrainingRows)
	cc.ChurnRecencyDays = getEnvInt("CHURN_RECENCY_DAYS", cc.ChurnRecencyDays)
	cc.LowRiskBelow = getEnvFloat("CHURN_LOW_RISK_BELOW", cc.LowRiskBelow)
	cc.HighRiskFrom = getEnvFloat("CHURN_HIGH_RISK_FROM", cc.HighRiskFrom)
	cc.Seed = int64(getEnvInt("CLV_SEED", int(cc.Seed)))
	cfg.CLV = cc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every engine policy so bad settings fail at startup
func (c *Config) Validate() error {
	if err := c.RFM.Validate(); err != nil {
		return fmt.Errorf("rfm config: %w", err)
	}
	if err := c.Basket.Validate(); err != nil {
		return fmt.Errorf("basket config: %w", err)
	}
	if err := c.Forecast.Validate(); err != nil {
		return fmt.Errorf("forecast config: %w", err)
	}
	if c.Forecast.Periods < 1 || c.Forecast.Periods > c.Forecast.MaxPeriods {
		return fmt.Errorf("forecast config: periods must be within 1..%d", c.Forecast.MaxPeriods)
	}
	if err := c.CLV.Validate(); err != nil {
		return fmt.Errorf("clv config: %w", err)
	}
	switch c.Source.Driver {
	case "", database.DriverPostgres, database.DriverMySQL:
	default:
		return fmt.Errorf("unsupported SOURCE_DRIVER %q", c.Source.Driver)
	}
	return nil
}

// RedisEnabled reports whether a Redis host is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// loadRFMConfig reads a JSON rule table, or returns the default rules when path is empty
func loadRFMConfig(path string) (rfm.Config, error) {
	if path == "" {
		return rfm.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rfm.Config{}, fmt.Errorf("read RFM rules: %w", err)
	}
	var rules []rfm.SegmentRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return rfm.Config{}, fmt.Errorf("parse RFM rules: %w", err)
	}
	log.Printf("📊 Loaded %d RFM segment rules from %s", len(rules), path)
	return rfm.Config{Rules: rules}, nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvBool accepts true/false, 1/0, yes/no
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

// getEnvDuration parses Go durations such as "30m" or "6h"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("⚠️  Invalid duration for %s: %q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
