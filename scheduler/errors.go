package scheduler

import "errors"

// 预定义错误.
var (
	// ErrShutdownTimeout 优雅关闭超时.
	ErrShutdownTimeout = errors.New("scheduler: shutdown timed out")

	// ErrInvalidMaxParallel 最大并发数无效.
	ErrInvalidMaxParallel = errors.New("scheduler: max parallel must not be negative")

	// ErrInvalidQueueSize 准入队列容量无效.
	ErrInvalidQueueSize = errors.New("scheduler: queue size must not be negative")
)
