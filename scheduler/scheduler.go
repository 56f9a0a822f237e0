// Package scheduler 提供有界并发、按键去重的异步获取任务调度.
//
// 特性：
//   - 有界并发：同时执行的任务数不超过 MaxParallel
//   - 键互斥：规范键和原始键相同的任务不会并发执行
//   - 请求折叠：重复提交合并到同一在途执行
//   - 相似等待：原始键命中在途任务时等待其完成后重探缓存
//   - 优先级 + 先进先出排序
//   - 协作式取消、暂停与提前退出
//   - 缓存探测短路（复用 cache 包）
//   - Hook 机制：BeforeRun/AfterRun/OnError/OnSkip/OnMerge/OnCacheHit
//   - Prometheus 指标（复用 metrics 包）
//   - 优雅关闭
//
// 示例：
//
//	store := cache.MustNewCache(cache.NewMemoryConfig(), log)
//	s, err := scheduler.New(
//	    scheduler.WithLogger(log),
//	    scheduler.WithProbe(scheduler.NewCacheProbe(store)),
//	    scheduler.WithMaxParallel(4),
//	)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	s.Submit(job)
package scheduler

import "context"

// Scheduler 调度器接口.
type Scheduler interface {
	// Submit 提交任务.
	// job 为 nil 或调度器已关闭时不做任何事。
	// 提交立即返回，任务异步调度执行。
	Submit(job Job)

	// Cancel 取消任务并移除其所有待执行条目.
	// 已在运行的任务不会被强制中断，由其自行观察取消标志。
	Cancel(job Job)

	// RemovePending 移除任务的待执行条目，不设置取消标志.
	RemovePending(job Job)

	// SetPaused 设置暂停标志.
	// 置为 true 时取消并清空全部待执行条目，运行中的任务不受影响；
	// 重复设置相同状态是空操作。
	SetPaused(paused bool)

	// Paused 返回暂停标志.
	Paused() bool

	// SetExitEarly 设置提前退出标志.
	// 置为 true 时同时清除暂停标志；任务实现应自行检查该标志尽早中止。
	SetExitEarly(exit bool)

	// ExitEarly 返回提前退出标志.
	ExitEarly() bool

	// MaxParallel 返回最大并发执行数.
	MaxParallel() int

	// Stats 返回执行统计快照.
	Stats() Stats

	// Shutdown 优雅关闭：停止接受新提交，等待在途任务结束.
	// ctx 先到期时返回 ErrShutdownTimeout。
	Shutdown(ctx context.Context) error

	// Close 关闭调度器并取消在途任务的执行上下文.
	Close() error
}

// New 创建调度器.
func New(opts ...Option) (Scheduler, error) {
	return newDispatchScheduler(opts...)
}

// MustNew 创建调度器，失败时 panic.
func MustNew(opts ...Option) Scheduler {
	s, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return s
}
