package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_NilConfig(t *testing.T) {
	c, err := NewMetrics(nil)

	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestNewMetrics_Success(t *testing.T) {
	cfg := &Config{
		Namespace: "test",
		Path:      "/metrics",
	}

	c, err := NewMetrics(cfg)

	require.NoError(t, err)
	assert.IsType(t, &PrometheusCollector{}, c)
}

func TestMustNewMetrics_NilConfig(t *testing.T) {
	assert.Panics(t, func() {
		MustNewMetrics(nil)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "/metrics", cfg.Path)
	assert.Equal(t, "fetchqueue", cfg.Namespace)
}

func TestCollector_SchedulerMetrics(t *testing.T) {
	c := MustNewMetrics(&Config{Namespace: "test"})

	c.RecordSubmitted()
	c.RecordMerged()
	c.RecordCacheHit()
	c.RecordRun(OutcomeCompleted, 25*time.Millisecond)
	c.RecordRun(OutcomeFailed, time.Second)
	c.RecordPanic()
	c.SetPending(3)
	c.SetRunning(2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.GetHandler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "test_scheduler_jobs_submitted_total 1")
	assert.Contains(t, body, "test_scheduler_jobs_merged_total 1")
	assert.Contains(t, body, "test_scheduler_cache_hits_total 1")
	assert.Contains(t, body, `test_scheduler_job_runs_total{outcome="completed"} 1`)
	assert.Contains(t, body, `test_scheduler_job_runs_total{outcome="failed"} 1`)
	assert.Contains(t, body, "test_scheduler_pending_jobs 3")
	assert.Contains(t, body, "test_scheduler_running_jobs 2")
}

func TestCollector_CustomMetrics(t *testing.T) {
	c := MustNewMetrics(&Config{Namespace: "test"})

	c.Counter("decode_failed_total", map[string]string{"format": "webp"})
	c.Counter("decode_failed_total", map[string]string{"format": "webp"})
	c.Histogram("decode_duration_seconds", 0.5, map[string]string{"format": "webp"})
	c.Gauge("decoder_workers", 4, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.GetHandler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `test_decode_failed_total{format="webp"} 2`)
	assert.Contains(t, body, "test_decoder_workers 4")
}

func TestGetPath(t *testing.T) {
	c := MustNewMetrics(&Config{Namespace: "test", Path: "/custom"})
	assert.Equal(t, "/custom", c.GetPath())

	c2 := MustNewMetrics(&Config{Namespace: "test2"})
	assert.Equal(t, "/metrics", c2.GetPath())
}
