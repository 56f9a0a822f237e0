package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testJob Job 接口的测试实现.
type testJob struct {
	key      string
	rawKey   string
	priority Priority
	delay    time.Duration
	noCache  bool
	preload  bool
	target   string

	block  chan struct{} // 非 nil 时 Run 阻塞直到该通道关闭
	runErr error
	panics bool

	runs      atomic.Int32
	cancelled atomic.Bool
	completed atomic.Bool
	disposed  atomic.Bool

	startOnce sync.Once
	started   chan struct{}

	onRun func()
}

func newTestJob(key string) *testJob {
	return &testJob{
		key:      key,
		rawKey:   key,
		priority: PriorityNormal,
		started:  make(chan struct{}),
	}
}

func (j *testJob) Key(raw bool) string {
	if raw {
		return j.rawKey
	}
	return j.key
}

func (j *testJob) Priority() Priority        { return j.priority }
func (j *testJob) IsCancelled() bool         { return j.cancelled.Load() }
func (j *testJob) IsCompleted() bool         { return j.completed.Load() }
func (j *testJob) Cancel()                   { j.cancelled.Store(true) }
func (j *testJob) Preload() bool             { return j.preload }
func (j *testJob) StartDelay() time.Duration { return j.delay }
func (j *testJob) AllowCachedResult() bool   { return !j.noCache }
func (j *testJob) Dispose()                  { j.disposed.Store(true) }

func (j *testJob) UsesSameTarget(other Job) bool {
	o, ok := other.(*testJob)
	return ok && j.target != "" && j.target == o.target
}

func (j *testJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	j.startOnce.Do(func() { close(j.started) })
	if j.onRun != nil {
		j.onRun()
	}
	if j.panics {
		panic("boom")
	}
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if j.cancelled.Load() {
		return context.Canceled
	}
	j.completed.Store(true)
	return j.runErr
}

// fakeProbe 可配置的缓存探测桩.
type fakeProbe struct {
	tryResult    ProbeResult
	tryErr       error
	prepareFound bool
	prepareErr   error

	tryCalls     atomic.Int32
	prepareCalls atomic.Int32
}

func (p *fakeProbe) TryLoad(context.Context, Job) (ProbeResult, error) {
	p.tryCalls.Add(1)
	return p.tryResult, p.tryErr
}

func (p *fakeProbe) PrepareAndTryLoad(context.Context, Job) (bool, error) {
	p.prepareCalls.Add(1)
	return p.prepareFound, p.prepareErr
}

// waitFor 轮询等待条件成立.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for: %s", msg)
}

func newTestScheduler(t *testing.T, opts ...Option) Scheduler {
	t.Helper()
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_Validation(t *testing.T) {
	t.Run("negative max parallel", func(t *testing.T) {
		if _, err := New(WithMaxParallel(-1)); !errors.Is(err, ErrInvalidMaxParallel) {
			t.Errorf("expected ErrInvalidMaxParallel, got %v", err)
		}
	})

	t.Run("negative queue size", func(t *testing.T) {
		if _, err := New(WithQueueSize(-1)); !errors.Is(err, ErrInvalidQueueSize) {
			t.Errorf("expected ErrInvalidQueueSize, got %v", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		s := newTestScheduler(t)
		if s.MaxParallel() < 1 {
			t.Errorf("expected max parallel >= 1, got %d", s.MaxParallel())
		}
	})

	t.Run("config option", func(t *testing.T) {
		s := newTestScheduler(t, WithConfig(&Config{MaxParallel: 7}))
		if s.MaxParallel() != 7 {
			t.Errorf("expected max parallel 7, got %d", s.MaxParallel())
		}
	})
}

func TestScheduler_NilSubmit(t *testing.T) {
	s := newTestScheduler(t)
	s.Submit(nil) // 不应 panic
}

func TestScheduler_BoundedParallelism(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(2))

	// 所有任务共用一个阻塞通道：解除之前，已启动任务数就是并发数
	var started atomic.Int32
	block := make(chan struct{})
	jobs := make([]*testJob, 5)
	for i := range jobs {
		j := newTestJob(string(rune('a' + i)))
		j.block = block
		j.onRun = func() { started.Add(1) }
		jobs[i] = j
		s.Submit(j)
	}

	waitFor(t, time.Second, func() bool { return started.Load() == 2 }, "two jobs running")

	// 给调度器机会违反上限
	time.Sleep(30 * time.Millisecond)
	if got := started.Load(); got != 2 {
		t.Errorf("expected 2 concurrent jobs, got %d", got)
	}
	if got := s.Stats().Running; got != 2 {
		t.Errorf("expected 2 running, got %d", got)
	}

	close(block)
	waitFor(t, time.Second, func() bool {
		for _, j := range jobs {
			if j.runs.Load() != 1 {
				return false
			}
		}
		return true
	}, "all jobs executed")
}

func TestScheduler_MergePending(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(1))

	block := make(chan struct{})
	blocker := newTestJob("blocker")
	blocker.block = block
	s.Submit(blocker)
	<-blocker.started

	a := newTestJob("x")
	b := newTestJob("x")
	s.Submit(a)
	waitFor(t, time.Second, func() bool { return s.Stats().Pending == 1 }, "a pending")
	s.Submit(b)
	waitFor(t, time.Second, func() bool { return s.Stats().Merged == 1 }, "b merged")

	close(block)
	waitFor(t, time.Second, func() bool { return a.runs.Load() == 1 }, "a executed")

	time.Sleep(30 * time.Millisecond)
	if got := a.runs.Load() + b.runs.Load(); got != 1 {
		t.Errorf("expected exactly one execution of key x, got %d", got)
	}
	if !b.disposed.Load() {
		t.Error("expected merged job to be disposed")
	}
}

func TestScheduler_RawKeyWaitsForRunning(t *testing.T) {
	t.Run("cache seeded by sibling", func(t *testing.T) {
		probe := &fakeProbe{prepareFound: true}
		s := newTestScheduler(t, WithMaxParallel(2), WithProbe(probe))

		block := make(chan struct{})
		a := newTestJob("res?w=100")
		a.rawKey = "res"
		a.block = block
		s.Submit(a)
		<-a.started

		b := newTestJob("res?w=200")
		b.rawKey = "res"
		s.Submit(b)
		waitFor(t, time.Second, func() bool { return s.Stats().Merged == 1 }, "b merged")

		// a 仍在运行，b 必须等待而不是并发执行
		time.Sleep(30 * time.Millisecond)
		if b.runs.Load() != 0 {
			t.Error("expected b to wait for a's completion signal")
		}

		close(block)
		waitFor(t, time.Second, func() bool { return s.Stats().CacheHits == 1 }, "b served from cache")
		if b.runs.Load() != 0 {
			t.Error("expected b to be served from cache without running")
		}
	})

	t.Run("fallback to independent execution", func(t *testing.T) {
		probe := &fakeProbe{prepareFound: false}
		s := newTestScheduler(t, WithMaxParallel(2), WithProbe(probe))

		block := make(chan struct{})
		a := newTestJob("res?w=100")
		a.rawKey = "res"
		a.block = block
		s.Submit(a)
		<-a.started

		b := newTestJob("res?w=200")
		b.rawKey = "res"
		s.Submit(b)
		waitFor(t, time.Second, func() bool { return s.Stats().Merged == 1 }, "b merged")

		close(block)
		waitFor(t, time.Second, func() bool { return b.runs.Load() == 1 }, "b re-run independently")
	})
}

func TestScheduler_RawKeyExclusivityPending(t *testing.T) {
	// 两个原始键相同的待执行条目绝不同时进入运行集
	s := newTestScheduler(t, WithMaxParallel(2))

	blockA := make(chan struct{})
	a := newTestJob("res?w=100")
	a.rawKey = "res"
	a.noCache = true
	a.block = blockA
	s.Submit(a)
	<-a.started

	b := newTestJob("res?w=200")
	b.rawKey = "res"
	b.noCache = true
	s.Submit(b)

	// b 禁用缓存复用且 a 已启动 → b 等待后独立入队；a 在运行时 b 不得启动
	waitFor(t, time.Second, func() bool { return s.Stats().Merged == 1 }, "b merged")
	time.Sleep(30 * time.Millisecond)
	if b.runs.Load() != 0 {
		t.Error("expected b blocked by raw key exclusivity")
	}

	close(blockA)
	waitFor(t, time.Second, func() bool { return b.runs.Load() == 1 }, "b runs after a releases raw key")
}

func TestScheduler_PauseCancelsPendingOnly(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(1))

	block := make(chan struct{})
	running := newTestJob("running")
	running.block = block
	s.Submit(running)
	<-running.started

	p1 := newTestJob("p1")
	p2 := newTestJob("p2")
	s.Submit(p1)
	s.Submit(p2)
	waitFor(t, time.Second, func() bool { return s.Stats().Pending == 2 }, "two pending")

	s.SetPaused(true)
	if !s.Paused() {
		t.Error("expected paused flag set")
	}
	if got := s.Stats().Pending; got != 0 {
		t.Errorf("expected empty registry after pause, got %d pending", got)
	}
	if !p1.IsCancelled() || !p2.IsCancelled() {
		t.Error("expected pending jobs cancelled by pause")
	}
	if running.IsCancelled() {
		t.Error("pause must not cancel running jobs")
	}

	// 暂停期间的新提交被跳过
	skippedJob := newTestJob("p3")
	s.Submit(skippedJob)
	waitFor(t, time.Second, func() bool { return s.Stats().Skipped == 1 }, "submission skipped while paused")

	close(block)
	waitFor(t, time.Second, func() bool { return running.IsCompleted() }, "running job completes")

	s.SetPaused(false)
	if s.Paused() {
		t.Error("expected paused flag cleared")
	}
}

func TestScheduler_ExitEarlyClearsPause(t *testing.T) {
	s := newTestScheduler(t)

	s.SetPaused(true)
	s.SetExitEarly(true)
	if !s.ExitEarly() {
		t.Error("expected exit early flag set")
	}
	if s.Paused() {
		t.Error("expected pause cleared by exit early")
	}

	s.SetExitEarly(false)
	if s.ExitEarly() {
		t.Error("expected exit early flag cleared")
	}
}

func TestScheduler_RefillAfterCompletion(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(1))

	jobs := []*testJob{newTestJob("1"), newTestJob("2"), newTestJob("3")}
	for _, j := range jobs {
		s.Submit(j)
	}

	waitFor(t, time.Second, func() bool {
		for _, j := range jobs {
			if j.runs.Load() != 1 {
				return false
			}
		}
		return true
	}, "all jobs executed sequentially")

	if got := s.Stats().Completed; got != 3 {
		t.Errorf("expected 3 completed, got %d", got)
	}
}

func TestScheduler_PriorityOrdering(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(1))

	block := make(chan struct{})
	blocker := newTestJob("blocker")
	blocker.block = block
	s.Submit(blocker)
	<-blocker.started

	var mu sync.Mutex
	var order []string
	record := func(key string) func() {
		return func() {
			mu.Lock()
			order = append(order, key)
			mu.Unlock()
		}
	}

	low := newTestJob("low")
	low.priority = PriorityLow
	low.onRun = record("low")

	high := newTestJob("high")
	high.priority = PriorityHigh
	high.onRun = record("high")

	normalA := newTestJob("normal-a")
	normalA.onRun = record("normal-a")

	normalB := newTestJob("normal-b")
	normalB.onRun = record("normal-b")

	// 逐个提交并等待入队，保证先进先出位置确定
	for i, j := range []*testJob{low, high, normalA, normalB} {
		s.Submit(j)
		want := i + 1
		waitFor(t, time.Second, func() bool { return s.Stats().Pending == want }, "job enqueued")
	}

	close(block)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	}, "all jobs executed")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high", "normal-a", "normal-b", "low"}
	for i, key := range want {
		if order[i] != key {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestScheduler_CacheHitShortCircuit(t *testing.T) {
	probe := &fakeProbe{tryResult: ProbeFound}
	s := newTestScheduler(t, WithProbe(probe))

	j := newTestJob("cached")
	s.Submit(j)

	waitFor(t, time.Second, func() bool { return s.Stats().CacheHits == 1 }, "cache hit recorded")
	if j.runs.Load() != 0 {
		t.Error("expected cached job not to run")
	}
	if !j.disposed.Load() {
		t.Error("expected cached job disposed")
	}
}

func TestScheduler_ProbeErrorStopsProcessing(t *testing.T) {
	probe := &fakeProbe{tryErr: errors.New("probe failed")}
	s := newTestScheduler(t, WithProbe(probe))

	j := newTestJob("broken")
	s.Submit(j)

	waitFor(t, time.Second, func() bool { return j.disposed.Load() }, "job released after probe error")
	if j.runs.Load() != 0 {
		t.Error("expected job not to run after probe error")
	}
}

func TestScheduler_StartDelay(t *testing.T) {
	s := newTestScheduler(t)

	j := newTestJob("delayed")
	j.delay = 60 * time.Millisecond
	start := time.Now()
	s.Submit(j)

	<-j.started
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected start delay honored, ran after %v", elapsed)
	}
}

func TestScheduler_CancelledAfterDelay(t *testing.T) {
	s := newTestScheduler(t)

	j := newTestJob("doomed")
	j.delay = 30 * time.Millisecond
	s.Submit(j)
	j.Cancel()

	waitFor(t, time.Second, func() bool { return j.disposed.Load() }, "cancelled job released")
	if j.runs.Load() != 0 {
		t.Error("expected cancelled job not to run")
	}
}

func TestScheduler_SameTargetSuperseded(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(1))

	block := make(chan struct{})
	blocker := newTestJob("blocker")
	blocker.block = block
	s.Submit(blocker)
	<-blocker.started

	old := newTestJob("old-image")
	old.target = "view1"
	s.Submit(old)
	waitFor(t, time.Second, func() bool { return s.Stats().Pending == 1 }, "old pending")

	replacement := newTestJob("new-image")
	replacement.target = "view1"
	s.Submit(replacement)
	waitFor(t, time.Second, func() bool { return old.IsCancelled() }, "old superseded")

	close(block)
	waitFor(t, time.Second, func() bool { return replacement.runs.Load() == 1 }, "replacement executed")
	if old.runs.Load() != 0 {
		t.Error("expected superseded job not to run")
	}

	// 预载任务不抢占
	preloadTarget := newTestJob("preload-a")
	preloadTarget.target = "view2"
	s.Submit(preloadTarget)
	pre := newTestJob("preload-b")
	pre.target = "view2"
	pre.preload = true
	s.Submit(pre)
	waitFor(t, time.Second, func() bool { return preloadTarget.runs.Load() == 1 }, "preload does not supersede")
	if preloadTarget.IsCancelled() {
		t.Error("expected preload submission to leave same-target job intact")
	}
}

func TestScheduler_PanicRecovery(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(1))

	bad := newTestJob("panics")
	bad.panics = true
	s.Submit(bad)
	waitFor(t, time.Second, func() bool { return s.Stats().Failed == 1 }, "panic recorded as failure")

	// 调度器继续工作
	good := newTestJob("good")
	s.Submit(good)
	waitFor(t, time.Second, func() bool { return good.runs.Load() == 1 }, "scheduler still operates")
}

func TestScheduler_FailedJobReleasesKey(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(1))

	failing := newTestJob("k")
	failing.runErr = errors.New("fetch failed")
	s.Submit(failing)
	waitFor(t, time.Second, func() bool { return s.Stats().Failed == 1 }, "failure recorded")

	if got := s.Stats().Running; got != 0 {
		t.Errorf("expected key released after failure, got %d running", got)
	}

	retry := newTestJob("k")
	s.Submit(retry)
	waitFor(t, time.Second, func() bool { return retry.runs.Load() == 1 }, "same key runnable again")
}

func TestScheduler_Hooks(t *testing.T) {
	t.Run("lifecycle hooks", func(t *testing.T) {
		var before, after, onErr atomic.Int32
		hooks := NewHooks().
			BeforeRun(func(ctx context.Context, jc *JobContext) error {
				before.Add(1)
				return nil
			}).
			AfterRun(func(ctx context.Context, jc *JobContext) {
				after.Add(1)
			}).
			OnError(func(ctx context.Context, jc *JobContext) {
				onErr.Add(1)
			}).
			Build()

		s := newTestScheduler(t, WithHooks(hooks))

		ok := newTestJob("ok")
		failing := newTestJob("bad")
		failing.runErr = errors.New("boom")
		s.Submit(ok)
		s.Submit(failing)

		waitFor(t, time.Second, func() bool { return after.Load() == 2 }, "after hooks fired")
		if before.Load() != 2 {
			t.Errorf("expected 2 before hooks, got %d", before.Load())
		}
		if onErr.Load() != 1 {
			t.Errorf("expected 1 error hook, got %d", onErr.Load())
		}
	})

	t.Run("before hook blocks execution", func(t *testing.T) {
		hooks := NewHooks().
			BeforeRun(func(ctx context.Context, jc *JobContext) error {
				return errors.New("denied")
			}).
			Build()

		s := newTestScheduler(t, WithHooks(hooks))

		j := newTestJob("denied")
		s.Submit(j)
		waitFor(t, time.Second, func() bool { return s.Stats().Skipped == 1 }, "job skipped by before hook")
		if j.runs.Load() != 0 {
			t.Error("expected blocked job not to run")
		}
	})

	t.Run("merge hook", func(t *testing.T) {
		var mergedInto atomic.Value
		hooks := NewHooks().
			OnMerge(func(ctx context.Context, jc *JobContext) {
				mergedInto.Store(jc.MergedInto)
			}).
			Build()

		s := newTestScheduler(t, WithMaxParallel(1), WithHooks(hooks))

		block := make(chan struct{})
		blocker := newTestJob("blocker")
		blocker.block = block
		s.Submit(blocker)
		<-blocker.started

		a := newTestJob("dup")
		b := newTestJob("dup")
		s.Submit(a)
		waitFor(t, time.Second, func() bool { return s.Stats().Pending == 1 }, "a pending")
		s.Submit(b)
		waitFor(t, time.Second, func() bool { return s.Stats().Merged == 1 }, "b merged")

		if got, _ := mergedInto.Load().(string); got != "dup" {
			t.Errorf("expected merge target key dup, got %q", got)
		}
		close(block)
	})
}

func TestScheduler_CancelRemovesPending(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(1))

	block := make(chan struct{})
	blocker := newTestJob("blocker")
	blocker.block = block
	s.Submit(blocker)
	<-blocker.started

	j := newTestJob("victim")
	s.Submit(j)
	waitFor(t, time.Second, func() bool { return s.Stats().Pending == 1 }, "victim pending")

	s.Cancel(j)
	if !j.IsCancelled() {
		t.Error("expected cancel flag set")
	}
	if !j.disposed.Load() {
		t.Error("expected cancelled pending job disposed")
	}
	if got := s.Stats().Pending; got != 0 {
		t.Errorf("expected victim removed from registry, got %d pending", got)
	}

	close(block)
	time.Sleep(20 * time.Millisecond)
	if j.runs.Load() != 0 {
		t.Error("expected cancelled job not to run")
	}
}

func TestScheduler_Shutdown(t *testing.T) {
	t.Run("times out while job running", func(t *testing.T) {
		s, err := New(WithMaxParallel(1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		block := make(chan struct{})
		j := newTestJob("slow")
		j.block = block
		s.Submit(j)
		<-j.started

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		if err := s.Shutdown(ctx); !errors.Is(err, ErrShutdownTimeout) {
			t.Errorf("expected ErrShutdownTimeout, got %v", err)
		}

		close(block)
		if err := s.Close(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("rejects submissions after close", func(t *testing.T) {
		s, err := New(WithMaxParallel(1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		j := newTestJob("late")
		s.Submit(j)
		time.Sleep(20 * time.Millisecond)
		if j.runs.Load() != 0 {
			t.Error("expected submission after close to be ignored")
		}
	})

	t.Run("releases jobs buffered during close", func(t *testing.T) {
		// 延迟提交与关闭赛跑：任务可能停在延迟中、滞留在准入缓冲里
		// 或已被执行，但关闭返回后没有任何任务处于未释放状态
		s, err := New(WithMaxParallel(1), WithQueueSize(4))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		jobs := make([]*testJob, 8)
		for i := range jobs {
			j := newTestJob(string(rune('a' + i)))
			j.delay = time.Duration(i) * time.Millisecond
			jobs[i] = j
			s.Submit(j)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for i, j := range jobs {
			if !j.disposed.Load() {
				t.Errorf("expected job %d released after shutdown", i)
			}
		}
	})

	t.Run("waits for in-flight jobs", func(t *testing.T) {
		s, err := New(WithMaxParallel(2))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		j := newTestJob("inflight")
		j.block = make(chan struct{})
		s.Submit(j)
		<-j.started

		go func() {
			time.Sleep(20 * time.Millisecond)
			close(j.block)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if !j.IsCompleted() {
			t.Error("expected in-flight job to finish before shutdown returns")
		}
	})
}

func TestScheduler_Stats(t *testing.T) {
	s := newTestScheduler(t, WithMaxParallel(2))

	for _, key := range []string{"a", "b", "c"} {
		s.Submit(newTestJob(key))
	}

	waitFor(t, time.Second, func() bool { return s.Stats().Completed == 3 }, "all completed")

	stats := s.Stats()
	if stats.Submitted != 3 {
		t.Errorf("expected 3 submitted, got %d", stats.Submitted)
	}
	if stats.Pending != 0 || stats.Running != 0 {
		t.Errorf("expected drained scheduler, got pending=%d running=%d", stats.Pending, stats.Running)
	}
}
