package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	Init()
	Init()

	okBefore := testutil.ToFloat64(EngineRuns.WithLabelValues("rfm", "ok"))
	errBefore := testutil.ToFloat64(EngineRuns.WithLabelValues("rfm", "error"))

	ObserveRun("rfm", time.Now(), nil)
	ObserveRun("rfm", time.Now(), errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(EngineRuns.WithLabelValues("rfm", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(EngineRuns.WithLabelValues("rfm", "error")))
}

func TestCacheResult(t *testing.T) {
	hits := testutil.ToFloat64(CacheRequests.WithLabelValues("basket", "hit"))
	CacheResult("basket", true)
	assert.Equal(t, hits+1, testutil.ToFloat64(CacheRequests.WithLabelValues("basket", "hit")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	Init()
	ObserveRun("forecast", time.Now(), nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine_runs_total")
	assert.Contains(t, rec.Body.String(), "jobs_in_flight")
}
