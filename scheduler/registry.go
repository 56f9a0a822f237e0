package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// 待执行条目状态.
const (
	entryStatePending int32 = iota
	entryStateStarted
	entryStateDone
)

// pendingEntry 待执行条目：排队中的任务及其排序元数据.
type pendingEntry struct {
	// id 条目唯一标识，仅用于日志.
	id string

	// job 关联任务.
	job Job

	// position 入队位置，同优先级按此先进先出.
	// 合并刷新会更新该值，需在注册表锁内读写。
	position uint64

	// state 条目状态，CAS 从 pending 迁移到 started.
	state atomic.Int32

	mu   sync.Mutex
	done chan struct{}
}

// newPendingEntry 创建待执行条目.
func newPendingEntry(job Job, position uint64) *pendingEntry {
	return &pendingEntry{
		id:       uuid.NewString(),
		job:      job,
		position: position,
	}
}

// tryStart 尝试将条目标记为已启动.
// 返回 false 表示另一次填充已经抢到了该条目。
func (e *pendingEntry) tryStart() bool {
	return e.state.CompareAndSwap(entryStatePending, entryStateStarted)
}

// revertStart 回退启动标记.
// 仅在 tryStart 成功但运行集准入失败时调用，使条目重新可选。
func (e *pendingEntry) revertStart() {
	e.state.CompareAndSwap(entryStateStarted, entryStatePending)
}

// markRunning 创建完成信号.
// 仅在运行集准入成功后调用；此后 completionSignal 返回非 nil 通道。
func (e *pendingEntry) markRunning() {
	e.mu.Lock()
	if e.done == nil {
		e.done = make(chan struct{})
	}
	e.mu.Unlock()
}

// completionSignal 返回完成信号通道.
// 条目尚未真正开始执行时返回 nil。
func (e *pendingEntry) completionSignal() <-chan struct{} {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	return done
}

// complete 标记条目终态并触发完成信号.
// 幂等，可安全重复调用。
func (e *pendingEntry) complete() {
	if e.state.Swap(entryStateDone) == entryStateDone {
		return
	}
	e.mu.Lock()
	if e.done != nil {
		close(e.done)
	}
	e.mu.Unlock()
}

// selectable 判断条目当前是否可被选入批次.
func (e *pendingEntry) selectable() bool {
	if e.state.Load() != entryStatePending {
		return false
	}
	return !e.job.IsCancelled() && !e.job.IsCompleted()
}

// registry 待执行注册表：有序去重的排队任务集合.
//
// 条目从入队驻留到终态迁移；已启动的条目仍可作为合并目标被找到，
// 但不会再次被选入批次。
type registry struct {
	mu       sync.Mutex
	entries  []*pendingEntry
	position uint64
}

// newRegistry 创建注册表.
func newRegistry() *registry {
	return &registry{}
}

// nextPosition 分配下一个入队位置.
// 必须持有 r.mu 调用。
func (r *registry) nextPosition() uint64 {
	r.position++
	return r.position
}

// enqueueOrMerge 入队或合并.
//
// 先按规范键、再按原始键查找既有条目；命中则不插入，
// 刷新命中条目的位置使其保持竞争力，并返回它作为合并目标。
// 未命中则插入新条目。二者恰有一个返回值非 nil。
func (r *registry) enqueueOrMerge(job Job) (entry, target *pendingEntry) {
	key := job.Key(false)
	rawKey := job.Key(true)

	r.mu.Lock()
	defer r.mu.Unlock()

	pos := r.nextPosition()

	for _, e := range r.entries {
		if e.job.Key(false) == key {
			e.position = pos
			return nil, e
		}
	}
	for _, e := range r.entries {
		if e.job.Key(true) == rawKey {
			e.position = pos
			return nil, e
		}
	}

	e := newPendingEntry(job, pos)
	r.entries = append(r.entries, e)
	return e, nil
}

// forceEnqueue 无条件插入新条目，跳过去重.
// 相似等待回退时使用。返回分配的位置，调用方在锁外只使用该副本，
// 不回读条目字段：条目一旦可见，其位置就可能被合并刷新。
func (r *registry) forceEnqueue(job Job) (*pendingEntry, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := r.nextPosition()
	e := newPendingEntry(job, pos)
	r.entries = append(r.entries, e)
	return e, pos
}

// removeJob 删除关联指定任务的未启动条目.
// 已启动的条目由其自身的终态处理移除，避免提前触发完成信号。
func (r *registry) removeJob(job Job) []*pendingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*pendingEntry
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.job == job && e.state.Load() == entryStatePending {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed
}

// removeEntry 按条目标识删除.
func (r *registry) removeEntry(entry *pendingEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e == entry {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// clearPending 移除并返回所有尚未启动的条目.
// 已启动的条目不受影响。
func (r *registry) clearPending() []*pendingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared []*pendingEntry
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.state.Load() == entryStatePending {
			cleared = append(cleared, e)
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return cleared
}

// findSameTarget 返回与指定任务共享物理输出目标的未启动条目.
func (r *registry) findSameTarget(job Job) []*pendingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found []*pendingEntry
	for _, e := range r.entries {
		if e.state.Load() != entryStatePending {
			continue
		}
		if e.job != job && e.job.UsesSameTarget(job) {
			found = append(found, e)
		}
	}
	return found
}

// pendingCount 返回尚未启动的条目数.
func (r *registry) pendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.state.Load() == entryStatePending {
			n++
		}
	}
	return n
}

// selectBatch 按优先级降序、位置升序贪心选出至多 slots 个可运行条目.
//
// blocked 报告某组键是否已被在途工作占用；
// 本轮已选中的键同样参与互斥，规范键与原始键都不允许碰撞。
func (r *registry) selectBatch(slots int, blocked func(key, rawKey string) bool) []*pendingEntry {
	if slots <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h := entryHeap{}
	for _, e := range r.entries {
		if e.selectable() {
			h.push(e)
		}
	}

	var (
		batch    []*pendingEntry
		taken    = make(map[string]struct{})
		takenRaw = make(map[string]struct{})
	)
	for len(batch) < slots {
		e, ok := h.pop()
		if !ok {
			break
		}
		key, rawKey := e.job.Key(false), e.job.Key(true)
		if _, dup := taken[key]; dup {
			continue
		}
		if _, dup := takenRaw[rawKey]; dup {
			continue
		}
		if blocked != nil && blocked(key, rawKey) {
			continue
		}
		taken[key] = struct{}{}
		takenRaw[rawKey] = struct{}{}
		batch = append(batch, e)
	}
	return batch
}

// entryHeap 条目二叉堆，优先级高者先出，同优先级按位置先进先出.
type entryHeap struct {
	data []*pendingEntry
}

// less 返回 true 表示 a 应先于 b 被调度.
func (h *entryHeap) less(a, b *pendingEntry) bool {
	if a.job.Priority() != b.job.Priority() {
		return a.job.Priority() > b.job.Priority()
	}
	return a.position < b.position
}

// push 添加条目.
func (h *entryHeap) push(e *pendingEntry) {
	h.data = append(h.data, e)
	h.up(len(h.data) - 1)
}

// pop 弹出最优条目.
func (h *entryHeap) pop() (*pendingEntry, bool) {
	if len(h.data) == 0 {
		return nil, false
	}

	top := h.data[0]
	last := len(h.data) - 1
	h.data[0] = h.data[last]
	h.data = h.data[:last]

	if len(h.data) > 0 {
		h.down(0)
	}

	return top, true
}

// up 向上调整堆.
func (h *entryHeap) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.data[i], h.data[parent]) {
			break
		}
		h.data[i], h.data[parent] = h.data[parent], h.data[i]
		i = parent
	}
}

// down 向下调整堆.
func (h *entryHeap) down(i int) {
	n := len(h.data)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}

		best := left
		right := left + 1
		if right < n && h.less(h.data[right], h.data[left]) {
			best = right
		}

		if h.less(h.data[i], h.data[best]) {
			break
		}

		h.data[i], h.data[best] = h.data[best], h.data[i]
		i = best
	}
}
