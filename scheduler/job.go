package scheduler

import (
	"context"
	"sync/atomic"
	"time"
)

// Priority 任务优先级，数值越大越紧急.
type Priority int

const (
	// PriorityLow 低优先级.
	PriorityLow Priority = iota
	// PriorityNormal 普通优先级.
	PriorityNormal
	// PriorityHigh 高优先级.
	PriorityHigh
)

// String 返回优先级字符串.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Job 异步获取/生产任务.
//
// 调度器只依赖此接口，不关心任务产物是什么.
// 任务由调用方创建并持有，调度器在调度期间借用，
// 终态后调用 Dispose 释放闭包引用.
type Job interface {
	// Key 返回任务键.
	// raw 为 false 时返回规范键（包含影响最终产物的全部参数）；
	// raw 为 true 时返回宽松键（仅标识基础资源，忽略变换/缩放等后处理参数）.
	Key(raw bool) string

	// Priority 返回任务优先级.
	Priority() Priority

	// IsCancelled 任务是否已取消.
	IsCancelled() bool

	// IsCompleted 任务是否已完成.
	IsCompleted() bool

	// Cancel 协作式取消：只设置标志，正在执行的任务自行观察.
	Cancel()

	// Preload 是否为预载任务.
	// 非预载任务入队前会取消共享同一输出目标的其它任务.
	Preload() bool

	// StartDelay 提交后的人工启动延迟，0 表示立即.
	StartDelay() time.Duration

	// AllowCachedResult 是否允许直接复用缓存结果.
	// 为 false 时跳过提交阶段的快速缓存探测，重复提交也不会被
	// 排队中的同键条目直接吸收；命中在途执行时仍会等待其完成，
	// 再重探缓存或回退独立执行.
	AllowCachedResult() bool

	// UsesSameTarget 是否与另一任务共享同一物理输出目标.
	UsesSameTarget(other Job) bool

	// Run 执行任务.
	Run(ctx context.Context) error

	// Dispose 释放任务持有的参数/回调闭包.
	Dispose()
}

// Stats 调度器执行统计快照.
type Stats struct {
	Submitted int64 // 提交次数
	Merged    int64 // 合并到已有条目的次数
	CacheHits int64 // 未执行即由缓存命中的次数
	Completed int64 // 成功完成次数
	Failed    int64 // 失败次数
	Cancelled int64 // 取消次数
	Skipped   int64 // 跳过次数（暂停/前置钩子拒绝）
	Pending   int   // 当前待运行条目数
	Running   int   // 当前运行中条目数
}

// statCounters 内部原子计数器.
type statCounters struct {
	submitted atomic.Int64
	merged    atomic.Int64
	cacheHits atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	skipped   atomic.Int64
}

// snapshot 返回计数器快照.
func (c *statCounters) snapshot() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Merged:    c.merged.Load(),
		CacheHits: c.cacheHits.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Cancelled: c.cancelled.Load(),
		Skipped:   c.skipped.Load(),
	}
}
