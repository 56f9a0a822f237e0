// Package cache 提供统一的结果缓存接口和实现.
//
// 调度器通过缓存探测判断任务产物是否已经可用，
// 支持内存和 Redis 两种后端。
package cache

import (
	"context"
	"time"

	"github.com/Tsukikage7/fetchqueue/logger"
)

// 缓存类型常量.
const (
	TypeRedis  = "redis"
	TypeMemory = "memory"
)

// Cache 缓存接口.
type Cache interface {
	// 基础操作
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// 原子操作
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	// 过期时间
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)

	// 资源管理
	Ping(ctx context.Context) error
	Close() error
	Client() any
}

// NewCache 创建缓存实例.
// logger 是必需参数，不能为 nil.
func NewCache(config *Config, log logger.Logger) (Cache, error) {
	if log == nil {
		return nil, ErrNilLogger
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.ApplyDefaults()

	switch config.Type {
	case TypeRedis:
		return NewRedisCache(config, log)
	case TypeMemory:
		return NewMemoryCache(config, log)
	default:
		return nil, ErrUnsupported
	}
}

// MustNewCache 创建缓存实例，失败时 panic.
func MustNewCache(config *Config, log logger.Logger) Cache {
	cache, err := NewCache(config, log)
	if err != nil {
		panic(err)
	}
	return cache
}
