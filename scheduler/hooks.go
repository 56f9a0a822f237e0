package scheduler

import (
	"context"
	"time"
)

// JobContext 任务执行上下文.
type JobContext struct {
	// Job 当前任务.
	Job Job

	// Key 任务规范键.
	Key string

	// StartTime 开始执行时间.
	StartTime time.Time

	// Error 执行错误（仅在 AfterRun/OnError 中有值）.
	Error error

	// Duration 执行耗时（仅在 AfterRun/OnError 中有值）.
	Duration time.Duration

	// SkipReason 跳过原因（仅在 OnSkip 中有值）.
	SkipReason string

	// MergedInto 合并目标任务的规范键（仅在 OnMerge 中有值）.
	MergedInto string
}

// BeforeRunHook 任务执行前回调.
// 返回 error 将阻止任务执行.
type BeforeRunHook func(ctx context.Context, jc *JobContext) error

// AfterRunHook 任务执行后回调.
type AfterRunHook func(ctx context.Context, jc *JobContext)

// OnErrorHook 任务错误回调.
type OnErrorHook func(ctx context.Context, jc *JobContext)

// OnSkipHook 任务跳过回调.
type OnSkipHook func(ctx context.Context, jc *JobContext)

// OnMergeHook 任务合并回调（重复提交被折叠到在途任务时触发）.
type OnMergeHook func(ctx context.Context, jc *JobContext)

// OnCacheHitHook 缓存命中回调（快速探测命中、任务被直接完成时触发）.
type OnCacheHitHook func(ctx context.Context, jc *JobContext)

// Hooks 任务钩子集合.
type Hooks struct {
	// BeforeRun 任务执行前回调列表.
	BeforeRun []BeforeRunHook

	// AfterRun 任务执行后回调列表（无论成功失败都会调用）.
	AfterRun []AfterRunHook

	// OnError 任务错误回调列表.
	OnError []OnErrorHook

	// OnSkip 任务跳过回调列表.
	OnSkip []OnSkipHook

	// OnMerge 任务合并回调列表.
	OnMerge []OnMergeHook

	// OnCacheHit 缓存命中回调列表.
	OnCacheHit []OnCacheHitHook
}

// runBeforeHooks 执行前置钩子.
func (h *Hooks) runBeforeHooks(ctx context.Context, jc *JobContext) error {
	if h == nil {
		return nil
	}
	for _, hook := range h.BeforeRun {
		if err := hook(ctx, jc); err != nil {
			return err
		}
	}
	return nil
}

// runAfterHooks 执行后置钩子.
func (h *Hooks) runAfterHooks(ctx context.Context, jc *JobContext) {
	if h == nil {
		return
	}
	for _, hook := range h.AfterRun {
		hook(ctx, jc)
	}
}

// runErrorHooks 执行错误钩子.
func (h *Hooks) runErrorHooks(ctx context.Context, jc *JobContext) {
	if h == nil {
		return
	}
	for _, hook := range h.OnError {
		hook(ctx, jc)
	}
}

// runSkipHooks 执行跳过钩子.
func (h *Hooks) runSkipHooks(ctx context.Context, jc *JobContext) {
	if h == nil {
		return
	}
	for _, hook := range h.OnSkip {
		hook(ctx, jc)
	}
}

// runMergeHooks 执行合并钩子.
func (h *Hooks) runMergeHooks(ctx context.Context, jc *JobContext) {
	if h == nil {
		return
	}
	for _, hook := range h.OnMerge {
		hook(ctx, jc)
	}
}

// runCacheHitHooks 执行缓存命中钩子.
func (h *Hooks) runCacheHitHooks(ctx context.Context, jc *JobContext) {
	if h == nil {
		return
	}
	for _, hook := range h.OnCacheHit {
		hook(ctx, jc)
	}
}

// HooksBuilder 钩子构建器.
type HooksBuilder struct {
	hooks *Hooks
}

// NewHooks 创建钩子构建器.
func NewHooks() *HooksBuilder {
	return &HooksBuilder{
		hooks: &Hooks{},
	}
}

// BeforeRun 添加前置钩子.
func (b *HooksBuilder) BeforeRun(hook BeforeRunHook) *HooksBuilder {
	b.hooks.BeforeRun = append(b.hooks.BeforeRun, hook)
	return b
}

// AfterRun 添加后置钩子.
func (b *HooksBuilder) AfterRun(hook AfterRunHook) *HooksBuilder {
	b.hooks.AfterRun = append(b.hooks.AfterRun, hook)
	return b
}

// OnError 添加错误钩子.
func (b *HooksBuilder) OnError(hook OnErrorHook) *HooksBuilder {
	b.hooks.OnError = append(b.hooks.OnError, hook)
	return b
}

// OnSkip 添加跳过钩子.
func (b *HooksBuilder) OnSkip(hook OnSkipHook) *HooksBuilder {
	b.hooks.OnSkip = append(b.hooks.OnSkip, hook)
	return b
}

// OnMerge 添加合并钩子.
func (b *HooksBuilder) OnMerge(hook OnMergeHook) *HooksBuilder {
	b.hooks.OnMerge = append(b.hooks.OnMerge, hook)
	return b
}

// OnCacheHit 添加缓存命中钩子.
func (b *HooksBuilder) OnCacheHit(hook OnCacheHitHook) *HooksBuilder {
	b.hooks.OnCacheHit = append(b.hooks.OnCacheHit, hook)
	return b
}

// Build 构建钩子.
func (b *HooksBuilder) Build() *Hooks {
	return b.hooks
}
