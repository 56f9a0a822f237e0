// Package config 提供配置加载和管理功能.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Validatable 可验证的配置接口.
type Validatable interface {
	Validate() error
}

// Load 从文件加载配置.
// 支持 yaml, json, toml 等格式（根据文件扩展名自动识别）.
// 如果配置类型实现了 Validatable 接口，会自动进行验证.
func Load[T any](configPath string, opts ...Option) (*T, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	if options.ConfigType != "" {
		v.SetConfigType(options.ConfigType)
	}

	applyOptions(v, options)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadConfig, err)
	}

	return unmarshalAndValidate[T](v)
}

// MustLoad 加载配置，失败时 panic.
func MustLoad[T any](configPath string, opts ...Option) *T {
	config, err := Load[T](configPath, opts...)
	if err != nil {
		panic(err)
	}
	return config
}

// LoadFromBytes 从字节数组加载配置.
func LoadFromBytes[T any](data []byte, configType string, opts ...Option) (*T, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	v := viper.New()
	v.SetConfigType(configType)

	applyOptions(v, options)

	if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadConfig, err)
	}

	return unmarshalAndValidate[T](v)
}

// applyOptions 应用通用选项到 viper 实例.
func applyOptions(v *viper.Viper, options *Options) {
	for key, value := range options.Defaults {
		v.SetDefault(key, value)
	}

	if options.EnvPrefix != "" {
		v.SetEnvPrefix(options.EnvPrefix)
	}

	if options.EnvKeyReplacer != nil {
		v.SetEnvKeyReplacer(options.EnvKeyReplacer)
	}

	if options.AutomaticEnv {
		v.AutomaticEnv()
	}
}

// unmarshalAndValidate 解析配置并验证.
func unmarshalAndValidate[T any](v *viper.Viper) (*T, error) {
	config := new(T)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnmarshal, err)
	}

	if validator, ok := any(config).(Validatable); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	return config, nil
}
