// Package logger 提供结构化日志记录功能.
package logger

// 日志级别常量.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// 输出格式常量.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// 输出目标常量.
const (
	OutputConsole = "console"
	OutputFile    = "file"
	OutputBoth    = "both"
)

// Field 表示一个日志字段.
type Field struct {
	Key   string
	Value any
}

// Logger 日志记录器接口.
type Logger interface {
	// 基础日志方法
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)

	// 结构化日志方法
	With(fields ...Field) Logger

	// 生命周期管理
	Sync() error
	Close() error
}

// NewLogger 创建 logger 实例.
func NewLogger(config *Config) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	return newZapLogger(config)
}

// MustNewLogger 创建 logger 实例，失败时 panic.
func MustNewLogger(config *Config) Logger {
	log, err := NewLogger(config)
	if err != nil {
		panic(err)
	}
	return log
}
