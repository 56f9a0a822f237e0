package scheduler

import (
	"github.com/Tsukikage7/fetchqueue/logger"
	"github.com/Tsukikage7/fetchqueue/metrics"
)

// Option 调度器配置选项.
type Option func(*options)

// options 调度器内部配置.
type options struct {
	logger      logger.Logger
	probe       CacheProbe
	collector   metrics.Collector
	hooks       *Hooks
	maxParallel int
	queueSize   int
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		probe:       NewNopProbe(),
		maxParallel: defaultMaxParallel(),
		queueSize:   DefaultQueueSize,
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithProbe 设置缓存探测器.
//
// 快速探测命中的任务会被直接完成，不占用执行槽位.
//
// 示例:
//
//	store, _ := cache.NewCache(cache.NewMemoryConfig(), log)
//	s, _ := scheduler.New(scheduler.WithProbe(scheduler.NewCacheProbe(store)))
func WithProbe(probe CacheProbe) Option {
	return func(o *options) {
		if probe != nil {
			o.probe = probe
		}
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(collector metrics.Collector) Option {
	return func(o *options) {
		o.collector = collector
	}
}

// WithHooks 设置全局钩子.
//
// 对所有任务生效.
func WithHooks(hooks *Hooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithMaxParallel 设置最大并发执行数.
//
// 默认: max(2, NumCPU/2).
func WithMaxParallel(n int) Option {
	return func(o *options) {
		o.maxParallel = n
	}
}

// WithQueueSize 设置准入管道容量.
//
// 仅影响突发提交的缓冲，超出容量的提交会阻塞提交协程，不会丢弃.
// 默认: 256.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// WithConfig 从配置结构应用并发与队列设置.
//
// 便于与 config 包加载的配置文件对接:
//
//	cfg, _ := config.Load[scheduler.Config]("scheduler.yaml")
//	s, _ := scheduler.New(scheduler.WithConfig(cfg))
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		cfg.ApplyDefaults()
		o.maxParallel = cfg.MaxParallel
		o.queueSize = cfg.QueueSize
	}
}
