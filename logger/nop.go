package logger

import "go.uber.org/zap"

// nopLogger 空日志实现，丢弃所有输出.
type nopLogger struct {
	sugar *zap.SugaredLogger
}

// NewNop 创建空日志记录器.
//
// 用于测试或不需要日志输出的场景.
func NewNop() Logger {
	return &nopLogger{sugar: zap.NewNop().Sugar()}
}

func (l *nopLogger) Debug(args ...any)                 {}
func (l *nopLogger) Debugf(format string, args ...any) {}
func (l *nopLogger) Info(args ...any)                  {}
func (l *nopLogger) Infof(format string, args ...any)  {}
func (l *nopLogger) Warn(args ...any)                  {}
func (l *nopLogger) Warnf(format string, args ...any)  {}
func (l *nopLogger) Error(args ...any)                 {}
func (l *nopLogger) Errorf(format string, args ...any) {}

func (l *nopLogger) With(fields ...Field) Logger { return l }
func (l *nopLogger) Sync() error                 { return nil }
func (l *nopLogger) Close() error                { return nil }
