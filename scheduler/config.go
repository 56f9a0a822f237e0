package scheduler

import "runtime"

// 默认配置值.
const (
	// DefaultQueueSize 准入管道默认容量.
	DefaultQueueSize = 256
)

// Config 调度器配置.
//
// 可通过 config 包从配置文件加载:
//
//	cfg, err := config.Load[scheduler.Config]("scheduler.yaml")
type Config struct {
	// MaxParallel 最大并发执行数，0 表示按可用并行度推导（max(2, NumCPU/2)）.
	MaxParallel int `json:"max_parallel" toml:"max_parallel" yaml:"max_parallel" mapstructure:"max_parallel"`

	// QueueSize 准入管道容量，仅影响突发提交的缓冲，不会丢弃任务.
	QueueSize int `json:"queue_size" toml:"queue_size" yaml:"queue_size" mapstructure:"queue_size"`
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.MaxParallel < 0 {
		return ErrInvalidMaxParallel
	}
	if c.QueueSize < 0 {
		return ErrInvalidQueueSize
	}
	return nil
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.MaxParallel <= 0 {
		c.MaxParallel = defaultMaxParallel()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// defaultMaxParallel 按可用并行度推导最大并发数.
func defaultMaxParallel() int {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	return n
}
