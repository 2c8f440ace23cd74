package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"retail-analytics/basket"
	"retail-analytics/database"
	"retail-analytics/export"
	"retail-analytics/forecast"
	"retail-analytics/jobs"
	"retail-analytics/metrics"
	"retail-analytics/models"
	"retail-analytics/rfm"
	"retail-analytics/service"
	"retail-analytics/transactions"
)

// Analytics is the service surface the HTTP layer needs
type Analytics interface {
	Table() *models.TransactionTable
	Countries() []string
	Reload(ctx context.Context) (*models.TransactionTable, error)
	Overview(ctx context.Context, c transactions.Criteria) (transactions.Overview, error)
	RFM(ctx context.Context, q service.RFMQuery) ([]models.CustomerRFM, error)
	Segments(ctx context.Context, q service.RFMQuery) ([]rfm.SegmentStats, error)
	TopCustomers(ctx context.Context, q service.RFMQuery, n int) ([]models.CustomerRFM, error)
	Customer(ctx context.Context, q service.RFMQuery, customerID string) (*service.CustomerProfile, error)
	Rules(ctx context.Context, c transactions.Criteria, p basket.Params) (*basket.Result, error)
	Recommend(ctx context.Context, c transactions.Criteria, p basket.Params, anchor string, n int) ([]basket.CrossSell, error)
	Forecast(ctx context.Context, c transactions.Criteria, periods int) (*forecast.Result, error)
	TrainAsync(ctx context.Context, c transactions.Criteria) (string, error)
	Job(id string) (jobs.Status, bool)
	DiscardJob(id string) bool
	Predictions(ctx context.Context, c transactions.Criteria) (*service.ModelReport, error)
	LatestRun(ctx context.Context, engine string, c transactions.Criteria) (*database.AnalysisRun, error)
	Export(ctx context.Context, name string, c transactions.Criteria) (export.Table, error)
}

// WebhookStore manages webhook configuration
type WebhookStore interface {
	GetWebhooks(ctx context.Context) ([]database.Webhook, error)
	GetWebhookByID(ctx context.Context, id int) (*database.Webhook, error)
	SaveWebhook(ctx context.Context, webhook *database.Webhook) error
	DeleteWebhook(ctx context.Context, id int) error
}

// CacheRefresher is notified when webhook configuration changes
type CacheRefresher interface {
	RefreshCache(ctx context.Context)
}

// Server handles HTTP API requests
type Server struct {
	svc       Analytics
	webhooks  WebhookStore
	refresher CacheRefresher
	broker    http.Handler
	hub       http.Handler
	basket    basket.Params
	validate  *validator.Validate
	http      *http.Server
}

// NewServer creates a new API server instance. webhooks, refresher, broker and
// hub may be nil; the matching routes then report the feature as unavailable.
func NewServer(svc Analytics, webhooks WebhookStore, refresher CacheRefresher, broker, hub http.Handler, basketDefaults basket.Params) *Server {
	return &Server{
		svc:       svc,
		webhooks:  webhooks,
		refresher: refresher,
		broker:    broker,
		hub:       hub,
		basket:    basketDefaults,
		validate:  validator.New(),
	}
}

// Handler builds the routed and wrapped handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Live updates
	if s.broker != nil {
		mux.Handle("GET /api/events", s.broker) // SSE Endpoint
	}
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}

	// Data
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("POST /api/data/reload", s.handleReload)

	// Customers
	mux.HandleFunc("GET /api/customers/rfm", s.handleGetRFM)
	mux.HandleFunc("GET /api/customers/segments", s.handleGetSegments)
	mux.HandleFunc("GET /api/customers/top", s.handleGetTopCustomers)
	mux.HandleFunc("GET /api/customers/{id}", s.handleGetCustomer)

	// Market basket
	mux.HandleFunc("GET /api/basket/rules", s.handleGetRules)
	mux.HandleFunc("GET /api/basket/items", s.handleGetItems)
	mux.HandleFunc("GET /api/basket/recommendations", s.handleGetRecommendations)

	// Forecast
	mux.HandleFunc("GET /api/forecast", s.handleGetForecast)

	// CLV / churn models
	mux.HandleFunc("POST /api/models/train", s.handleTrain)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDiscardJob)
	mux.HandleFunc("GET /api/models/predictions", s.handleGetPredictions)
	mux.HandleFunc("GET /api/models/importance", s.handleGetImportance)
	mux.HandleFunc("GET /api/runs/{engine}", s.handleGetLatestRun)

	// CSV export
	mux.HandleFunc("GET /api/export/{table}", s.handleExport)

	// Webhook Management Routes
	mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server on the specified port and blocks until it stops
func (s *Server) Start(port string) error {
	serverAddr := fmt.Sprintf("0.0.0.0:%s", port)
	s.http = &http.Server{
		Addr:              serverAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🚀 API Server starting on %s", serverAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// statusRecorder captures the response code while keeping streaming and
// connection upgrades working
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Handlers are distributed across multiple files:
// - handlers_customers.go: Overview, RFM and segments
// - handlers_basket.go: Association rules and cross-sell
// - handlers_forecast.go: Revenue forecast
// - handlers_models.go: CLV/churn training, jobs and predictions
// - handlers_export.go: CSV downloads
// - handlers_config.go: Health, reload, webhooks
