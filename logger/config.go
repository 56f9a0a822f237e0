package logger

import "fmt"

// Config 日志配置.
type Config struct {
	// 基础配置
	ServiceName string `json:"service_name" toml:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Level       string `json:"level" toml:"level" yaml:"level" mapstructure:"level"`
	Format      string `json:"format" toml:"format" yaml:"format" mapstructure:"format"`

	// 输出配置
	Output string `json:"output" toml:"output" yaml:"output" mapstructure:"output"`
	LogDir string `json:"log_dir" toml:"log_dir" yaml:"log_dir" mapstructure:"log_dir"`

	// 调用者信息配置
	EnableCaller     bool `json:"enable_caller" toml:"enable_caller" yaml:"enable_caller" mapstructure:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace" toml:"enable_stacktrace" yaml:"enable_stacktrace" mapstructure:"enable_stacktrace"`
	CallerSkip       int  `json:"caller_skip" toml:"caller_skip" yaml:"caller_skip" mapstructure:"caller_skip"`
}

// ConfigError 配置错误.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("logger config error [%s]: %s", e.Field, e.Message)
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigError{Field: "config", Message: "config cannot be nil"}
	}

	if c.Level != "" && !isValidLevel(c.Level) {
		return &ConfigError{Field: "level", Message: "invalid log level: " + c.Level}
	}

	if c.Format != "" && c.Format != FormatJSON && c.Format != FormatConsole {
		return &ConfigError{Field: "format", Message: "invalid format: " + c.Format}
	}

	if c.Output != "" && c.Output != OutputConsole && c.Output != OutputFile && c.Output != OutputBoth {
		return &ConfigError{Field: "output", Message: "invalid output: " + c.Output}
	}

	if c.needsFileOutput() && c.LogDir == "" {
		return &ConfigError{Field: "log_dir", Message: "log_dir is required when output is file or both"}
	}

	return nil
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = LevelInfo
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Output == "" {
		c.Output = OutputConsole
	}
	if c.ServiceName == "" {
		c.ServiceName = "service"
	}
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// needsFileOutput 是否需要文件输出.
func (c *Config) needsFileOutput() bool {
	return c.Output == OutputFile || c.Output == OutputBoth
}

// shouldOutputToConsole 是否需要控制台输出.
func (c *Config) shouldOutputToConsole() bool {
	return c.Output == OutputConsole || c.Output == OutputBoth || c.Output == ""
}

// isValidLevel 检查日志级别是否合法.
func isValidLevel(level string) bool {
	switch level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	default:
		return false
	}
}
