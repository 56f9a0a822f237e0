package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tsukikage7/fetchqueue/logger"
	"github.com/Tsukikage7/fetchqueue/metrics"
)

// dispatchScheduler 调度器实现.
//
// 提交经过准入闸门（延迟、取消检查、快速缓存探测）后进入
// 准入管道，由单一分发协程串行决定入队或合并；批次填充由
// 唤醒信号驱动，每次任务完成都会重新触发填充。
type dispatchScheduler struct {
	opts     *options
	registry *registry
	running  *runningSet
	stats    *statCounters

	// admitCh 准入管道，分发协程按到达顺序串行消费.
	admitCh chan Job

	// wakeCh 填充唤醒信号，容量为 1，多次唤醒合并.
	wakeCh chan struct{}

	stopCh   chan struct{}
	loopDone chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc

	closed    atomic.Bool
	paused    atomic.Bool
	exitEarly atomic.Bool

	wg sync.WaitGroup // 跟踪闸门协程、等待协程和在途任务
}

// newDispatchScheduler 创建调度器实现.
func newDispatchScheduler(opts ...Option) (*dispatchScheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.maxParallel <= 0 {
		return nil, ErrInvalidMaxParallel
	}
	if o.queueSize <= 0 {
		return nil, ErrInvalidQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &dispatchScheduler{
		opts:       o,
		registry:   newRegistry(),
		running:    newRunningSet(o.maxParallel),
		stats:      &statCounters{},
		admitCh:    make(chan Job, o.queueSize),
		wakeCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		loopDone:   make(chan struct{}),
		baseCtx:    ctx,
		baseCancel: cancel,
	}

	go s.dispatchLoop()
	s.logDebugf("调度器已启动 [maxParallel:%d, queueSize:%d]", o.maxParallel, o.queueSize)

	return s, nil
}

// Submit 提交任务.
func (s *dispatchScheduler) Submit(job Job) {
	if job == nil {
		return
	}
	if s.closed.Load() {
		s.logDebugf("调度器已关闭，拒绝提交 [key:%s]", job.Key(false))
		return
	}

	s.stats.submitted.Add(1)
	if c := s.opts.collector; c != nil {
		c.RecordSubmitted()
	}

	s.wg.Add(1)
	go s.gate(job)
}

// gate 准入闸门：廉价前置检查，在支付注册表成本之前短路常见情形.
//
// 延迟、探测都在各自协程内挂起，彼此不阻塞；
// 只有“决定入队”这一步通过准入管道串行化。
func (s *dispatchScheduler) gate(job Job) {
	defer s.wg.Done()

	if d := job.StartDelay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
			s.releaseCancelled(job)
			return
		}
	}

	if job.IsCancelled() {
		s.releaseCancelled(job)
		return
	}

	if job.AllowCachedResult() {
		result, err := s.opts.probe.TryLoad(s.baseCtx, job)
		if err != nil {
			// 探测错误由探测方自己的回调路径上报，这里只停止处理
			s.logDebugf("缓存探测失败 [key:%s] [error:%v]", job.Key(false), err)
			job.Dispose()
			return
		}
		if result == ProbeFound {
			s.completeFromCache(job)
			return
		}
	}

	select {
	case s.admitCh <- job:
	case <-s.stopCh:
		s.releaseCancelled(job)
	}
}

// releaseCancelled 以取消终态释放任务.
func (s *dispatchScheduler) releaseCancelled(job Job) {
	job.Cancel()
	s.stats.cancelled.Add(1)
	job.Dispose()
}

// completeFromCache 以缓存命中终态完成任务.
func (s *dispatchScheduler) completeFromCache(job Job) {
	s.stats.cacheHits.Add(1)
	if c := s.opts.collector; c != nil {
		c.RecordCacheHit()
	}
	jc := &JobContext{Job: job, Key: job.Key(false), StartTime: time.Now()}
	s.opts.hooks.runCacheHitHooks(s.baseCtx, jc)
	s.logDebugf("缓存命中 [key:%s]", job.Key(false))
	job.Dispose()
}

// Cancel 取消任务并移除其待执行条目.
func (s *dispatchScheduler) Cancel(job Job) {
	if job == nil {
		return
	}
	job.Cancel()
	removed := s.registry.removeJob(job)
	for _, e := range removed {
		e.complete()
	}
	if len(removed) > 0 {
		// 待执行条目被取消即离开系统；运行中的任务由其终态处理计数和释放
		s.stats.cancelled.Add(1)
		job.Dispose()
	}
	s.updateGauges()
	s.logDebugf("任务已取消 [key:%s]", job.Key(false))
}

// RemovePending 移除任务的待执行条目.
func (s *dispatchScheduler) RemovePending(job Job) {
	if job == nil {
		return
	}
	for _, e := range s.registry.removeJob(job) {
		e.complete()
	}
	s.updateGauges()
}

// SetPaused 设置暂停标志.
func (s *dispatchScheduler) SetPaused(paused bool) {
	if !s.paused.CompareAndSwap(!paused, paused) {
		return
	}

	if paused {
		cleared := s.registry.clearPending()
		for _, e := range cleared {
			e.job.Cancel()
			e.complete()
			e.job.Dispose()
			s.stats.cancelled.Add(1)
		}
		s.updateGauges()
		s.logDebugf("调度已暂停，清除待执行条目 [count:%d]", len(cleared))
		return
	}

	s.logDebug("调度已恢复")
	s.wake()
}

// Paused 返回暂停标志.
func (s *dispatchScheduler) Paused() bool {
	return s.paused.Load()
}

// SetExitEarly 设置提前退出标志.
func (s *dispatchScheduler) SetExitEarly(exit bool) {
	s.exitEarly.Store(exit)
	if exit {
		s.paused.Store(false)
		s.logDebug("已设置提前退出标志")
	}
}

// ExitEarly 返回提前退出标志.
func (s *dispatchScheduler) ExitEarly() bool {
	return s.exitEarly.Load()
}

// MaxParallel 返回最大并发执行数.
func (s *dispatchScheduler) MaxParallel() int {
	return s.opts.maxParallel
}

// Stats 返回执行统计快照.
func (s *dispatchScheduler) Stats() Stats {
	stats := s.stats.snapshot()
	stats.Pending = s.registry.pendingCount()
	stats.Running = s.running.count()
	return stats
}

// Shutdown 优雅关闭.
func (s *dispatchScheduler) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(s.stopCh)
	<-s.loopDone

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// 闸门协程可能抢在停止信号前把任务送进缓冲；此刻闸门已全部退出，
		// 再清一次管道，并释放没来得及启动的注册表条目
		s.drainAdmitCh()
		for _, e := range s.registry.clearPending() {
			e.job.Cancel()
			e.complete()
			e.job.Dispose()
			s.stats.cancelled.Add(1)
		}
		s.logDebug("调度器优雅关闭完成")
	case <-ctx.Done():
		s.logWarn("调度器关闭超时")
		return ErrShutdownTimeout
	}

	s.baseCancel()
	return nil
}

// Close 关闭调度器并取消在途任务的执行上下文.
func (s *dispatchScheduler) Close() error {
	s.baseCancel()
	return s.Shutdown(context.Background())
}

// wake 发出填充唤醒信号，重复唤醒合并为一次.
func (s *dispatchScheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// updateGauges 刷新待执行/运行中指标.
func (s *dispatchScheduler) updateGauges() {
	if c := s.opts.collector; c != nil {
		c.SetPending(s.registry.pendingCount())
		c.SetRunning(s.running.count())
	}
}

// recordRun 记录一次执行结果.
func (s *dispatchScheduler) recordRun(outcome string, duration time.Duration) {
	switch outcome {
	case metrics.OutcomeCompleted:
		s.stats.completed.Add(1)
	case metrics.OutcomeFailed:
		s.stats.failed.Add(1)
	case metrics.OutcomeCancelled:
		s.stats.cancelled.Add(1)
	}
	if c := s.opts.collector; c != nil {
		c.RecordRun(outcome, duration)
	}
}

// 日志辅助方法.

func (s *dispatchScheduler) logger() logger.Logger {
	return s.opts.logger
}

func (s *dispatchScheduler) logDebug(msg string) {
	if log := s.logger(); log != nil {
		log.Debug("[Scheduler] " + msg)
	}
}

func (s *dispatchScheduler) logDebugf(format string, args ...any) {
	if log := s.logger(); log != nil {
		log.Debugf("[Scheduler] "+format, args...)
	}
}

func (s *dispatchScheduler) logWarn(msg string) {
	if log := s.logger(); log != nil {
		log.Warn("[Scheduler] " + msg)
	}
}

func (s *dispatchScheduler) logErrorf(format string, args ...any) {
	if log := s.logger(); log != nil {
		log.Errorf("[Scheduler] "+format, args...)
	}
}
