package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector Prometheus 指标收集器实现.
type PrometheusCollector struct {
	config *Config

	// 调度指标
	submittedTotal prometheus.Counter
	mergedTotal    prometheus.Counter
	cacheHitsTotal prometheus.Counter
	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	panicTotal     prometheus.Counter
	pendingJobs    prometheus.Gauge
	runningJobs    prometheus.Gauge

	// 自定义指标注册表
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	mu         sync.RWMutex

	registry *prometheus.Registry
}

// NewPrometheus 创建 Prometheus 指标收集器.
func NewPrometheus(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "fetchqueue"
	}

	// 创建新的注册表，避免与默认注册表冲突
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		config:     cfg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		registry:   registry,
	}

	c.submittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "jobs_submitted_total",
		Help:      "Total number of jobs submitted to the scheduler",
	})

	c.mergedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "jobs_merged_total",
		Help:      "Total number of jobs merged onto an existing entry",
	})

	c.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "cache_hits_total",
		Help:      "Total number of jobs served from cache without running",
	})

	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of job executions by outcome",
		},
		[]string{"outcome"},
	)

	c.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Job execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	c.panicTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "panics_total",
		Help:      "Total number of panics recovered during job execution",
	})

	c.pendingJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "pending_jobs",
		Help:      "Number of jobs waiting in the pending registry",
	})

	c.runningJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "running_jobs",
		Help:      "Number of jobs currently executing",
	})

	// 注册所有指标
	collectors := []prometheus.Collector{
		c.submittedTotal,
		c.mergedTotal,
		c.cacheHitsTotal,
		c.runsTotal,
		c.runDuration,
		c.panicTotal,
		c.pendingJobs,
		c.runningJobs,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegisterMetric, err)
		}
	}

	return c, nil
}

// RecordSubmitted 记录任务提交.
func (c *PrometheusCollector) RecordSubmitted() {
	c.submittedTotal.Inc()
}

// RecordMerged 记录任务合并.
func (c *PrometheusCollector) RecordMerged() {
	c.mergedTotal.Inc()
}

// RecordCacheHit 记录缓存命中.
func (c *PrometheusCollector) RecordCacheHit() {
	c.cacheHitsTotal.Inc()
}

// RecordRun 记录任务执行结果.
func (c *PrometheusCollector) RecordRun(outcome string, duration time.Duration) {
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordPanic 记录 panic 事件.
func (c *PrometheusCollector) RecordPanic() {
	c.panicTotal.Inc()
}

// SetPending 更新待运行任务数.
func (c *PrometheusCollector) SetPending(count int) {
	c.pendingJobs.Set(float64(count))
}

// SetRunning 更新运行中任务数.
func (c *PrometheusCollector) SetRunning(count int) {
	c.runningJobs.Set(float64(count))
}

// Counter 增加自定义计数器.
//
// 使用示例:
//
//	collector.Counter("decode_failed_total", map[string]string{"format": "webp"})
func (c *PrometheusCollector) Counter(name string, labels map[string]string) {
	c.mu.RLock()
	counter, exists := c.counters[name]
	c.mu.RUnlock()

	// 提取 label 名称和值（保持顺序一致）
	labelNames, labelValues := extractLabels(labels)

	if !exists {
		c.mu.Lock()
		// 双重检查
		if counter, exists = c.counters[name]; !exists {
			counter = prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: c.config.Namespace,
					Name:      name,
					Help:      "Custom counter: " + name,
				},
				labelNames,
			)

			if err := c.registry.Register(counter); err == nil {
				c.counters[name] = counter
			}
		}
		c.mu.Unlock()
	}

	if counter != nil {
		counter.WithLabelValues(labelValues...).Inc()
	}
}

// Histogram 观察自定义直方图.
func (c *PrometheusCollector) Histogram(name string, value float64, labels map[string]string) {
	c.mu.RLock()
	histogram, exists := c.histograms[name]
	c.mu.RUnlock()

	labelNames, labelValues := extractLabels(labels)

	if !exists {
		c.mu.Lock()
		// 双重检查
		if histogram, exists = c.histograms[name]; !exists {
			histogram = prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: c.config.Namespace,
					Name:      name,
					Help:      "Custom histogram: " + name,
					Buckets:   prometheus.DefBuckets,
				},
				labelNames,
			)

			if err := c.registry.Register(histogram); err == nil {
				c.histograms[name] = histogram
			}
		}
		c.mu.Unlock()
	}

	if histogram != nil {
		histogram.WithLabelValues(labelValues...).Observe(value)
	}
}

// Gauge 设置自定义仪表盘.
func (c *PrometheusCollector) Gauge(name string, value float64, labels map[string]string) {
	c.mu.RLock()
	gauge, exists := c.gauges[name]
	c.mu.RUnlock()

	labelNames, labelValues := extractLabels(labels)

	if !exists {
		c.mu.Lock()
		// 双重检查
		if gauge, exists = c.gauges[name]; !exists {
			gauge = prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: c.config.Namespace,
					Name:      name,
					Help:      "Custom gauge: " + name,
				},
				labelNames,
			)

			if err := c.registry.Register(gauge); err == nil {
				c.gauges[name] = gauge
			}
		}
		c.mu.Unlock()
	}

	if gauge != nil {
		gauge.WithLabelValues(labelValues...).Set(value)
	}
}

// extractLabels 从 map 中提取 label 名称和值，确保顺序一致.
// 通过排序 key 来保证每次调用的顺序稳定.
func extractLabels(labels map[string]string) ([]string, []string) {
	labelNames := make([]string, 0, len(labels))
	for k := range labels {
		labelNames = append(labelNames, k)
	}
	sort.Strings(labelNames)

	labelValues := make([]string, 0, len(labels))
	for _, k := range labelNames {
		labelValues = append(labelValues, labels[k])
	}

	return labelNames, labelValues
}

// GetHandler 返回 metrics 的 HTTP 处理器.
func (c *PrometheusCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GetPath 返回 metrics 路径.
func (c *PrometheusCollector) GetPath() string {
	if c.config.Path == "" {
		return "/metrics"
	}
	return c.config.Path
}
