// Package metrics 提供 Prometheus 指标收集功能.
package metrics

import (
	"net/http"
	"time"
)

// 任务结果常量，作为 job_runs_total 的 outcome 标签值.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Collector 指标收集器接口.
type Collector interface {
	// 调度指标
	RecordSubmitted()
	RecordMerged()
	RecordCacheHit()
	RecordRun(outcome string, duration time.Duration)
	RecordPanic()
	SetPending(count int)
	SetRunning(count int)

	// 自定义指标
	Counter(name string, labels map[string]string)
	Histogram(name string, value float64, labels map[string]string)
	Gauge(name string, value float64, labels map[string]string)

	// Handler
	GetHandler() http.Handler
	GetPath() string
}

// NewMetrics 创建指标收集器.
func NewMetrics(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	return NewPrometheus(cfg)
}

// MustNewMetrics 创建指标收集器，失败时 panic.
func MustNewMetrics(cfg *Config) *PrometheusCollector {
	c, err := NewMetrics(cfg)
	if err != nil {
		panic(err)
	}
	return c
}
