package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")

	ErrEmptyAddr       = fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	ErrBadTaskSource   = fmt.Errorf("%w: task_source must be static or ai", ErrInvalidConfig)
	ErrBadWorkerCount  = fmt.Errorf("%w: judge_workers must be positive", ErrInvalidConfig)
	ErrBadQueueSize    = fmt.Errorf("%w: judge_queue_size must be positive", ErrInvalidConfig)
	ErrBadBufferCap    = fmt.Errorf("%w: stream_buffer_cap must not be negative", ErrInvalidConfig)
	ErrBadLatencyRange = fmt.Errorf("%w: executor latency bounds must satisfy 0 < min < max", ErrInvalidConfig)
)
