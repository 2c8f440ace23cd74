package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Reloader is anything that can re-read the transaction source
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc adapts a function to Reloader
type ReloaderFunc func(ctx context.Context) error

// Reload calls f
func (f ReloaderFunc) Reload(ctx context.Context) error {
	return f(ctx)
}

// Refresher periodically reloads the transaction source
type Refresher struct {
	target    Reloader
	interval  time.Duration
	scheduler *gocron.Scheduler
}

// NewRefresher creates a refresher; Start is a no-op when interval is 0
func NewRefresher(target Reloader, interval time.Duration) *Refresher {
	return &Refresher{
		target:    target,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the reload job and returns immediately
func (r *Refresher) Start(ctx context.Context) error {
	if r.interval <= 0 {
		log.Println("ℹ️  Scheduled refresh disabled")
		return nil
	}

	_, err := r.scheduler.Every(r.interval).SingletonMode().WaitForSchedule().Do(func() {
		r.refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	r.scheduler.StartAsync()
	log.Printf("🔄 Refresher started (every %v)", r.interval)
	return nil
}

// refresh runs one reload, bounded by the interval so a stuck source cannot pile up
func (r *Refresher) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	log.Println("🔄 Scheduled refresh of transaction source...")
	if err := r.target.Reload(runCtx); err != nil {
		log.Printf("⚠️  Scheduled refresh failed: %v", err)
	}
}

// Stop stops the scheduler
func (r *Refresher) Stop() {
	if r.scheduler.IsRunning() {
		r.scheduler.Stop()
		log.Println("🔄 Refresher stopped")
	}
}
