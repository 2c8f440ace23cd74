package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine runs by engine name and outcome (ok, error)
	EngineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_runs_total",
		Help: "Total number of analytics engine runs",
	}, []string{"engine", "status"})

	// Wall time of engine computations, cache hits excluded
	EngineDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_duration_seconds",
		Help:    "Duration of analytics engine runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine"})

	// Cache lookups by engine and result (hit, miss)
	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Total number of engine cache lookups",
	}, []string{"engine", "result"})

	// Background jobs currently running
	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobs_in_flight",
		Help: "Number of background jobs currently running",
	})
)

var once sync.Once

// Init registers every collector with the default registry; safe to call twice
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			EngineRuns,
			EngineDuration,
			CacheRequests,
			JobsInFlight,
		)
	})
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records one engine run started at start
func ObserveRun(engine string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EngineRuns.WithLabelValues(engine, status).Inc()
	EngineDuration.WithLabelValues(engine).Observe(time.Since(start).Seconds())
}

// CacheResult records a cache hit or miss
func CacheResult(engine string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(engine, result).Inc()
}
