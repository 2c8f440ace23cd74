package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retail-analytics/api"
	"retail-analytics/cache"
	"retail-analytics/config"
	"retail-analytics/database"
	"retail-analytics/jobs"
	"retail-analytics/metrics"
	"retail-analytics/notifications"
	"retail-analytics/realtime"
	"retail-analytics/service"
	"retail-analytics/transactions"
)

// App represents the main application
type App struct {
	config         *config.Config
	db             *database.Database
	redis          *cache.RedisClient
	repo           *database.SnapshotRepository
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	hub            *realtime.Hub
	jobs           *jobs.Manager
	service        *service.AnalyticsService
	refresher      *Refresher
	server         *api.Server
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
		db:     nil, // Will be initialized in Start()
		redis:  nil, // Will be initialized in Start()
	}
}

// connect opens the optional snapshot database and Redis cache
func (a *App) connect() error {
	if a.config.DatabaseEnabled {
		fmt.Println("🗄️  Connecting to database...")
		db, err := database.Connect(
			a.config.DatabaseHost,
			a.config.DatabasePort,
			a.config.DatabaseName,
			a.config.DatabaseUser,
			a.config.DatabasePassword,
		)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		a.db = db

		// Initialize schema (AutoMigrate)
		a.repo = database.NewSnapshotRepository(a.db)
		if err := a.repo.InitSchema(); err != nil {
			return fmt.Errorf("schema initialization failed: %w", err)
		}
	} else {
		fmt.Println("ℹ️  Snapshot database disabled")
	}

	if a.config.RedisEnabled() {
		fmt.Println("🧠 Connecting to Redis...")
		a.redis = cache.NewRedisClient(
			a.config.RedisHost,
			a.config.RedisPort,
			a.config.RedisPassword,
			a.config.RedisDB,
		)
		if a.redis == nil {
			fmt.Println("⚠️  Redis connection failed. Caching disabled.")
		}
	}
	return nil
}

// build wires the analytics service over the connected stores
func (a *App) build(ctx context.Context) {
	metrics.Init()

	var store service.SnapshotStore
	if a.repo != nil {
		store = a.repo
		// Initialize Webhook Manager (with Redis)
		a.webhookManager = notifications.NewWebhookManager(a.repo, a.redis)
	}

	// Initialize Realtime Broker and WebSocket hub
	a.broker = realtime.NewBroker()
	go a.broker.Run(ctx)
	a.hub = realtime.NewHub(ctx)

	publishers := realtime.Multi{a.broker, a.hub}
	if a.webhookManager != nil {
		publishers = append(publishers, a.webhookManager)
	}

	a.jobs = jobs.NewManager(ctx)
	a.jobs.SetRetention(a.config.JobRetention)
	a.jobs.OnDone(func(s jobs.Status) {
		event := realtime.EventJobCompleted
		if s.State == jobs.StateFailed {
			event = realtime.EventJobFailed
		}
		publishers.Broadcast(event, map[string]interface{}{
			"job_id": s.ID,
			"kind":   s.Kind,
			"state":  s.State,
			"error":  s.Error,
			"result": s.Result,
		})
	})

	engineCache := cache.NewEngineCache(a.redis, a.config.CacheTTL)
	a.service = service.NewAnalyticsService(a.config, service.SourceLoader(a.config), engineCache, store, a.jobs, publishers)
}

// Start starts the application and blocks until a shutdown signal
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.connect(); err != nil {
		return err
	}
	a.build(ctx)

	// Initial load; the server still starts so a later reload can recover
	if _, err := a.service.Reload(ctx); err != nil {
		log.Printf("❌ Initial load failed: %v", err)
	}

	var webhooks api.WebhookStore
	var refresher api.CacheRefresher
	if a.repo != nil {
		webhooks = a.repo
		refresher = a.webhookManager
	}
	a.server = api.NewServer(a.service, webhooks, refresher, a.broker, a.hub, a.config.Basket)

	go func() {
		if err := a.server.Start(a.config.Port); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	a.refresher = NewRefresher(ReloaderFunc(func(ctx context.Context) error {
		_, err := a.service.Reload(ctx)
		return err
	}), a.config.RefreshInterval)
	if err := a.refresher.Start(ctx); err != nil {
		log.Printf("⚠️  %v", err)
	}

	return a.gracefulShutdown(cancel)
}

// Report loads the source once, writes every export into the report directory and exits
func (a *App) Report(c transactions.Criteria) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.connect(); err != nil {
		return err
	}
	defer a.close()
	a.build(ctx)

	if _, err := a.service.Reload(ctx); err != nil {
		return err
	}

	_, err := RunReport(ctx, a.service, a.config.ReportDir, c, os.Stderr)
	a.jobs.Wait()
	if a.webhookManager != nil {
		a.webhookManager.Wait()
	}
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown tasks with timeout
	shutdownComplete := make(chan struct{})
	go func() {
		if a.refresher != nil {
			a.refresher.Stop()
		}

		// Cancel context to end live streams and running jobs
		cancel()

		if a.server != nil {
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error stopping API server: %v", err)
			}
		}

		if a.jobs != nil {
			fmt.Println("📊 Waiting for running jobs...")
			a.jobs.Wait()
		}
		if a.webhookManager != nil {
			a.webhookManager.Wait()
		}

		a.close()
		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// close releases the database and Redis connections
func (a *App) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		} else {
			fmt.Println("✅ Database connection closed")
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("Error closing redis: %v", err)
		} else {
			fmt.Println("✅ Redis connection closed")
		}
	}
}
