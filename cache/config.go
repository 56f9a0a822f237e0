package cache

import (
	"fmt"
	"time"
)

// 默认配置值.
const (
	DefaultPoolSize      = 10
	DefaultTimeout       = 5 * time.Second
	DefaultReadTimeout   = 3 * time.Second
	DefaultWriteTimeout  = 3 * time.Second
	DefaultMaxRetries    = 3
	DefaultMaxSize       = 10000
	DefaultCleanupPeriod = time.Minute
)

// Config 缓存配置.
type Config struct {
	// Type 缓存类型：redis 或 memory.
	Type string `json:"type" toml:"type" yaml:"type" mapstructure:"type"`

	// Redis 连接配置
	Addr         string        `json:"addr" toml:"addr" yaml:"addr" mapstructure:"addr"`
	Password     string        `json:"password" toml:"password" yaml:"password" mapstructure:"password"`
	DB           int           `json:"db" toml:"db" yaml:"db" mapstructure:"db"`
	PoolSize     int           `json:"pool_size" toml:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	Timeout      time.Duration `json:"timeout" toml:"timeout" yaml:"timeout" mapstructure:"timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" toml:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" toml:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxRetries   int           `json:"max_retries" toml:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// 内存缓存配置
	MaxSize         int           `json:"max_size" toml:"max_size" yaml:"max_size" mapstructure:"max_size"`
	CleanupInterval time.Duration `json:"cleanup_interval" toml:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// ConfigError 配置错误.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("缓存配置错误 [%s]: %s", e.Field, e.Message)
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}

	if c.Type != "" && c.Type != TypeRedis && c.Type != TypeMemory {
		return &ConfigError{Field: "type", Message: "不支持的缓存类型: " + c.Type}
	}

	if c.Type == TypeRedis && c.Addr == "" {
		return &ConfigError{Field: "addr", Message: "redis 地址不能为空"}
	}

	return nil
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeRedis
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupPeriod
	}
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// NewRedisConfig 创建 Redis 缓存配置.
func NewRedisConfig(addr string) *Config {
	c := &Config{Type: TypeRedis, Addr: addr}
	c.ApplyDefaults()
	return c
}

// NewMemoryConfig 创建内存缓存配置.
func NewMemoryConfig() *Config {
	c := &Config{Type: TypeMemory}
	c.ApplyDefaults()
	return c
}
