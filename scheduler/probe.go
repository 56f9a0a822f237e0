package scheduler

import (
	"context"

	"github.com/Tsukikage7/fetchqueue/cache"
)

// ProbeResult 缓存探测结果.
type ProbeResult int

const (
	// ProbeMiss 缓存未命中，任务需要执行.
	ProbeMiss ProbeResult = iota

	// ProbeFound 缓存命中，任务可直接完成.
	ProbeFound
)

// String 返回探测结果的字符串表示.
func (r ProbeResult) String() string {
	switch r {
	case ProbeFound:
		return "found"
	default:
		return "miss"
	}
}

// CacheProbe 缓存探测接口.
//
// 调度器在准入阶段用 TryLoad 做快速探测，
// 在相似任务等待结束后用 PrepareAndTryLoad 做带准备步骤的完整探测。
type CacheProbe interface {
	// TryLoad 快速探测：任务产物是否已在缓存中.
	// 命中时任务应被直接完成，不进入待执行队列。
	TryLoad(ctx context.Context, job Job) (ProbeResult, error)

	// PrepareAndTryLoad 完整探测：先执行任务的准备步骤（如规范键推导），
	// 再尝试从缓存加载。返回 true 表示任务已被探测过程完成。
	PrepareAndTryLoad(ctx context.Context, job Job) (bool, error)
}

// cacheProbe 基于 cache.Cache 的默认探测实现.
type cacheProbe struct {
	store cache.Cache
}

// NewCacheProbe 创建基于缓存后端的探测器.
func NewCacheProbe(store cache.Cache) CacheProbe {
	return &cacheProbe{store: store}
}

// TryLoad 按规范键探测缓存是否存在.
func (p *cacheProbe) TryLoad(ctx context.Context, job Job) (ProbeResult, error) {
	if p.store == nil {
		return ProbeMiss, nil
	}
	ok, err := p.store.Exists(ctx, job.Key(false))
	if err != nil {
		return ProbeMiss, err
	}
	if ok {
		return ProbeFound, nil
	}
	return ProbeMiss, nil
}

// PrepareAndTryLoad 探测规范键，未命中时回退到原始键.
// 相似任务执行完毕后按原始键写入的产物也能在这里被发现。
func (p *cacheProbe) PrepareAndTryLoad(ctx context.Context, job Job) (bool, error) {
	if p.store == nil {
		return false, nil
	}
	ok, err := p.store.Exists(ctx, job.Key(false))
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	ok, err = p.store.Exists(ctx, job.Key(true))
	if err != nil {
		return false, err
	}
	return ok, nil
}

// nopProbe 空探测器：永远未命中.
// 未配置缓存后端时使用，所有任务都会实际执行。
type nopProbe struct{}

// NewNopProbe 创建空探测器.
func NewNopProbe() CacheProbe {
	return nopProbe{}
}

func (nopProbe) TryLoad(context.Context, Job) (ProbeResult, error) {
	return ProbeMiss, nil
}

func (nopProbe) PrepareAndTryLoad(context.Context, Job) (bool, error) {
	return false, nil
}
