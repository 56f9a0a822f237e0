package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger zap 日志实现.
type zapLogger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	file   *os.File
}

// newZapLogger 创建 zap logger.
func newZapLogger(config *Config) (Logger, error) {
	level := parseLevel(config.Level)
	encoder := buildEncoder(config)

	var cores []zapcore.Core
	var file *os.File

	if config.needsFileOutput() {
		f, err := openLogFile(config)
		if err != nil {
			return nil, err
		}
		file = f
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), level))
	}

	if config.shouldOutputToConsole() {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if len(cores) == 0 {
		return nil, &ConfigError{Field: "output", Message: "no valid output configured"}
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	zapLog := zap.New(core, buildOptions(config)...)

	return &zapLogger{
		logger: zapLog,
		sugar:  zapLog.Sugar(),
		file:   file,
	}, nil
}

// buildOptions 构建 zap 选项.
func buildOptions(config *Config) []zap.Option {
	var options []zap.Option

	if config.EnableCaller {
		options = append(options, zap.AddCaller())
		if config.CallerSkip > 0 {
			options = append(options, zap.AddCallerSkip(config.CallerSkip))
		}
	}

	if config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return options
}

// buildEncoder 构建编码器.
func buildEncoder(config *Config) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if config.Format == FormatConsole {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// openLogFile 打开日志文件.
func openLogFile(config *Config) (*os.File, error) {
	dir := filepath.Join(config.LogDir, config.ServiceName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ConfigError{Field: "log_dir", Message: "failed to create log directory: " + err.Error()}
	}

	logFile := filepath.Join(dir, config.ServiceName+".log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &ConfigError{Field: "log_dir", Message: "failed to open log file: " + err.Error()}
	}
	return file, nil
}

// parseLevel 解析日志级别.
func parseLevel(level string) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debug 输出 debug 级别日志.
func (l *zapLogger) Debug(args ...any) { l.sugar.Debug(args...) }

// Debugf 输出 debug 级别格式化日志.
func (l *zapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

// Info 输出 info 级别日志.
func (l *zapLogger) Info(args ...any) { l.sugar.Info(args...) }

// Infof 输出 info 级别格式化日志.
func (l *zapLogger) Infof(format string, args ...any) { l.sugar.Infof(format, args...) }

// Warn 输出 warn 级别日志.
func (l *zapLogger) Warn(args ...any) { l.sugar.Warn(args...) }

// Warnf 输出 warn 级别格式化日志.
func (l *zapLogger) Warnf(format string, args ...any) { l.sugar.Warnf(format, args...) }

// Error 输出 error 级别日志.
func (l *zapLogger) Error(args ...any) { l.sugar.Error(args...) }

// Errorf 输出 error 级别格式化日志.
func (l *zapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

// With 返回带有附加字段的 logger.
func (l *zapLogger) With(fields ...Field) Logger {
	zapFields := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		zapFields = append(zapFields, f.Key, f.Value)
	}
	sugar := l.sugar.With(zapFields...)
	return &zapLogger{
		logger: sugar.Desugar(),
		sugar:  sugar,
		file:   l.file,
	}
}

// Sync 刷新日志缓冲.
func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

// Close 关闭日志记录器.
func (l *zapLogger) Close() error {
	_ = l.logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
