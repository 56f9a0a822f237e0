package scheduler

// waitForSimilar 相似等待：观察合并目标的完成信号，再决定复用还是重跑.
//
// 去重契约的核心：同一规范键至多一个并发执行，原始键的同族任务
// 机会性短路；一旦未能观察到缓存结果，总是回退到独立执行。
func (s *dispatchScheduler) waitForSimilar(job Job, target *pendingEntry) {
	defer s.wg.Done()

	signal := target.completionSignal()
	if signal == nil {
		// 目标尚未真正开始，没有可等待的信号，直接独立入队
		s.forceSchedule(job)
		return
	}

	select {
	case <-signal:
	case <-s.stopCh:
		s.releaseCancelled(job)
		return
	}

	if job.IsCancelled() {
		s.releaseCancelled(job)
		return
	}

	// 目标已终态，重探缓存确认其产物是否可用
	found, err := s.opts.probe.PrepareAndTryLoad(s.baseCtx, job)
	if err != nil {
		s.logDebugf("相似等待后缓存探测失败 [key:%s] [error:%v]", job.Key(false), err)
		s.forceSchedule(job)
		return
	}
	if found {
		s.completeFromCache(job)
		return
	}

	// 目标失败、被取消或产物不兼容，回退为独立执行
	s.forceSchedule(job)
}

// forceSchedule 跳过去重，将任务作为全新条目入队并触发填充.
func (s *dispatchScheduler) forceSchedule(job Job) {
	e, pos := s.registry.forceEnqueue(job)
	s.logDebugf("任务强制入队 [entry:%s, key:%s, position:%d]", e.id, job.Key(false), pos)
	s.updateGauges()
	s.wake()
}
