package scheduler

import (
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map"
)

// runningSet 运行集：正在执行的键的并发成员表.
//
// 同时限制并发上限并保证键互斥：规范键与原始键
// 都不允许出现两个并发执行。成员表独立于注册表锁，
// 可从任意完成续体并发读写。
type runningSet struct {
	entries  cmap.ConcurrentMap
	size     atomic.Int64
	capacity int
}

// newRunningSet 创建运行集.
func newRunningSet(capacity int) *runningSet {
	return &runningSet{
		entries:  cmap.New(),
		capacity: capacity,
	}
}

// full 判断运行集是否已达并发上限.
func (s *runningSet) full() bool {
	return s.size.Load() >= int64(s.capacity)
}

// count 返回当前运行数.
func (s *runningSet) count() int {
	return int(s.size.Load())
}

// blocked 判断给定键组是否与在途工作冲突.
func (s *runningSet) blocked(key, rawKey string) bool {
	return s.entries.Has(key) || s.entries.Has(rawKey)
}

// tryAdmit 尝试将条目准入运行集.
//
// 容量或键竞争失败都返回 false；竞争失败是预期的静默控制流，
// 调用方应放弃本次启动而不是报错。
func (s *runningSet) tryAdmit(e *pendingEntry) bool {
	if s.size.Add(1) > int64(s.capacity) {
		s.size.Add(-1)
		return false
	}

	key, rawKey := e.job.Key(false), e.job.Key(true)
	if !s.entries.SetIfAbsent(key, e) {
		s.size.Add(-1)
		return false
	}
	if rawKey != key && !s.entries.SetIfAbsent(rawKey, e) {
		s.entries.Remove(key)
		s.size.Add(-1)
		return false
	}
	return true
}

// release 将条目移出运行集.
//
// 返回 false 表示成员表中找不到对应键，属于内部簿记异常，
// 调用方记录错误日志但继续运行。
func (s *runningSet) release(e *pendingEntry) bool {
	key, rawKey := e.job.Key(false), e.job.Key(true)

	_, ok := s.entries.Pop(key)
	if rawKey != key {
		_, rawOK := s.entries.Pop(rawKey)
		ok = ok && rawOK
	}
	s.size.Add(-1)
	return ok
}
