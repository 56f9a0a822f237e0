package scheduler

import (
	"errors"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("validate", func(t *testing.T) {
		cfg := &Config{MaxParallel: -1}
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidMaxParallel) {
			t.Errorf("expected ErrInvalidMaxParallel, got %v", err)
		}

		cfg = &Config{QueueSize: -1}
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidQueueSize) {
			t.Errorf("expected ErrInvalidQueueSize, got %v", err)
		}

		cfg = &Config{MaxParallel: 4, QueueSize: 128}
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{}
		cfg.ApplyDefaults()
		if cfg.MaxParallel < 2 {
			t.Errorf("expected derived max parallel >= 2, got %d", cfg.MaxParallel)
		}
		if cfg.QueueSize != DefaultQueueSize {
			t.Errorf("expected default queue size %d, got %d", DefaultQueueSize, cfg.QueueSize)
		}
	})

	t.Run("explicit values preserved", func(t *testing.T) {
		cfg := &Config{MaxParallel: 3, QueueSize: 64}
		cfg.ApplyDefaults()
		if cfg.MaxParallel != 3 || cfg.QueueSize != 64 {
			t.Errorf("expected explicit values preserved, got %+v", cfg)
		}
	})
}
