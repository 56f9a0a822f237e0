package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tsukikage7/fetchqueue/metrics"
)

// dispatchLoop 分发协程：串行消费准入管道，并响应填充唤醒信号.
//
// 入队决策被单协程串行化，提交顺序即准入顺序；
// 任务本体的执行始终在独立协程中进行，不阻塞后续提交。
func (s *dispatchScheduler) dispatchLoop() {
	defer close(s.loopDone)

	for {
		select {
		case job := <-s.admitCh:
			s.admit(job)
			s.fill()
		case <-s.wakeCh:
			s.fill()
		case <-s.stopCh:
			s.drainAdmitCh()
			return
		}
	}
}

// drainAdmitCh 关闭时清空准入管道，取消释放尚未入队的任务.
func (s *dispatchScheduler) drainAdmitCh() {
	for {
		select {
		case job := <-s.admitCh:
			s.releaseCancelled(job)
		default:
			return
		}
	}
}

// admit 准入决策：入队、合并或跳过.
func (s *dispatchScheduler) admit(job Job) {
	if s.paused.Load() {
		s.skip(job, "scheduler paused")
		return
	}

	if job.IsCancelled() {
		s.releaseCancelled(job)
		return
	}

	// 非预载任务抢占同一输出目标：先取消共享目标的待执行条目
	if !job.Preload() {
		for _, e := range s.registry.findSameTarget(job) {
			s.registry.removeEntry(e)
			e.job.Cancel()
			e.complete()
			e.job.Dispose()
			s.stats.cancelled.Add(1)
			s.logDebugf("同目标任务被取代 [key:%s]", e.job.Key(false))
		}
	}

	entry, target := s.registry.enqueueOrMerge(job)
	if target != nil {
		s.merge(job, target)
		return
	}

	// position 只会被分发协程在锁内刷新，这里同协程读取无并发
	s.logDebugf("任务入队 [entry:%s, key:%s, priority:%s, position:%d]",
		entry.id, job.Key(false), job.Priority(), entry.position)
	s.updateGauges()
}

// merge 将重复提交折叠到在途条目上.
//
// 目标尚未启动且当前任务允许复用缓存结果时，重复任务直接被合并吸收；
// 否则进入相似等待，观察目标的完成信号后再重探缓存。
func (s *dispatchScheduler) merge(job Job, target *pendingEntry) {
	s.stats.merged.Add(1)
	if c := s.opts.collector; c != nil {
		c.RecordMerged()
	}

	jc := &JobContext{
		Job:        job,
		Key:        job.Key(false),
		StartTime:  time.Now(),
		MergedInto: target.job.Key(false),
	}
	s.opts.hooks.runMergeHooks(s.baseCtx, jc)
	s.logDebugf("任务合并 [key:%s -> entry:%s key:%s]",
		job.Key(false), target.id, target.job.Key(false))

	if job.AllowCachedResult() && target.completionSignal() == nil {
		// 目标还在排队，其结果终将落入缓存，重复任务到此为止
		job.Dispose()
		return
	}

	s.wg.Add(1)
	go s.waitForSimilar(job, target)
}

// skip 以跳过终态释放任务.
func (s *dispatchScheduler) skip(job Job, reason string) {
	s.stats.skipped.Add(1)
	jc := &JobContext{
		Job:        job,
		Key:        job.Key(false),
		StartTime:  time.Now(),
		SkipReason: reason,
	}
	s.opts.hooks.runSkipHooks(s.baseCtx, jc)
	s.logDebugf("任务跳过 [key:%s] [reason:%s]", job.Key(false), reason)
	job.Cancel()
	job.Dispose()
}

// fill 填充空闲槽位.
//
// 按优先级降序、位置升序贪心选批，逐个抢占启动权并准入运行集；
// 抢占或准入失败是预期的竞争失败，静默放弃即可。
func (s *dispatchScheduler) fill() {
	if s.running.full() {
		return
	}

	slots := s.opts.maxParallel - s.running.count()
	batch := s.registry.selectBatch(slots, s.running.blocked)
	if len(batch) == 0 {
		return
	}

	launched := 0
	for _, e := range batch {
		if !e.tryStart() {
			continue
		}
		if !s.running.tryAdmit(e) {
			e.revertStart()
			continue
		}
		e.markRunning()
		s.wg.Add(1)
		go s.admitAndRun(e)
		launched++
	}

	if launched < len(batch) {
		// 竞争失败留下的条目仍可运行，补一次唤醒
		s.wake()
	}
	s.updateGauges()
}

// admitAndRun 执行已准入运行集的条目.
//
// 无论成功、失败还是恐慌，键都会移出运行集、完成信号都会触发，
// 并重新唤醒填充，保持流水线自馈。
func (s *dispatchScheduler) admitAndRun(e *pendingEntry) {
	defer s.wg.Done()

	job := e.job
	start := time.Now()
	jc := &JobContext{Job: job, Key: job.Key(false), StartTime: start}

	var err error
	switch {
	case job.IsCancelled():
		err = context.Canceled
	case s.opts.hooks.runBeforeHooks(s.baseCtx, jc) != nil:
		s.finish(e, jc, start, metrics.OutcomeCancelled, true)
		return
	default:
		err = s.runGuarded(job, jc)
	}

	jc.Error = err
	jc.Duration = time.Since(start)

	outcome := metrics.OutcomeCompleted
	switch {
	case job.IsCancelled() || errors.Is(err, context.Canceled):
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeFailed
	}

	s.finish(e, jc, start, outcome, false)
}

// runGuarded 带恐慌保护地执行任务本体.
// 执行故障在最外层捕获并记录，绝不传播到准入链或其它任务。
func (s *dispatchScheduler) runGuarded(job Job, jc *JobContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			if c := s.opts.collector; c != nil {
				c.RecordPanic()
			}
			s.logErrorf("任务执行恐慌 [key:%s] [panic:%v]", jc.Key, r)
		}
	}()
	return job.Run(s.baseCtx)
}

// finish 完成条目的终态处理.
func (s *dispatchScheduler) finish(e *pendingEntry, jc *JobContext, start time.Time, outcome string, skipped bool) {
	job := e.job

	s.registry.removeEntry(e)
	if !s.running.release(e) {
		// 成员表缺失对应键，说明不变量维护存在缺陷，降级继续运行
		s.logErrorf("运行集簿记异常 [key:%s]", job.Key(false))
	}
	e.complete()

	duration := time.Since(start)
	if skipped {
		s.stats.skipped.Add(1)
		s.opts.hooks.runSkipHooks(s.baseCtx, jc)
		s.logDebugf("前置钩子阻止任务执行 [key:%s]", job.Key(false))
	} else {
		s.recordRun(outcome, duration)
		switch outcome {
		case metrics.OutcomeFailed:
			s.opts.hooks.runErrorHooks(s.baseCtx, jc)
			s.opts.hooks.runAfterHooks(s.baseCtx, jc)
			s.logErrorf("任务执行失败 [entry:%s, key:%s] [duration:%v] [error:%v]",
				e.id, job.Key(false), duration, jc.Error)
		default:
			s.opts.hooks.runAfterHooks(s.baseCtx, jc)
			s.logDebugf("任务执行结束 [entry:%s, key:%s] [outcome:%s] [duration:%v]",
				e.id, job.Key(false), outcome, duration)
		}
	}

	job.Dispose()
	s.updateGauges()
	s.wake()
}
