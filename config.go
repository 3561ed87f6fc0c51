package jsengine

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// RuntimeConfig holds the tunables a Context is built from: memory
// limits, owner-loop sizing, and log level. Adapted from the TOML
// config layer other agents in this stack use to configure long-lived
// process state.
type RuntimeConfig struct {
	// SoftHeapLimitBytes and HardHeapLimitBytes feed the Memory
	// Monitor. 0 disables the corresponding threshold.
	SoftHeapLimitBytes uint64 `toml:"soft_heap_limit_bytes"`
	HardHeapLimitBytes uint64 `toml:"hard_heap_limit_bytes"`

	// TaskQueueSize bounds the Isolate's owner-thread submission
	// queue (IsolateOptions.TaskQueueSize).
	TaskQueueSize int `toml:"task_queue_size"`

	// EvalTimeout is derived from EvalTimeoutSeconds by
	// LoadRuntimeConfig. Nothing in this package applies it: eval and
	// call tasks run until they finish or the client cancels them.
	EvalTimeout time.Duration `toml:"-"`
	EvalTimeoutSeconds int `toml:"eval_timeout_seconds"`

	// LogLevel is a zerolog level name ("debug", "info", "warn",
	// "error", "disabled").
	LogLevel string `toml:"log_level"`

	// MemorySampleIntervalMillis bounds how often the Memory Monitor's
	// background sampler reads heap stats and checks the hard limit
	// independent of task boundaries, so a single long-running script
	// still gets interrupted instead of running the hard limit past
	// its budget. 0 selects a conservative default.
	MemorySampleIntervalMillis int `toml:"memory_sample_interval_millis"`
}

// DefaultRuntimeConfig returns a RuntimeConfig with conservative
// defaults: a 512MiB soft limit, a 1GiB hard limit, a modest task
// queue, no eval timeout, and info-level logging.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		SoftHeapLimitBytes:         512 * 1024 * 1024,
		HardHeapLimitBytes:         1024 * 1024 * 1024,
		TaskQueueSize:              256,
		EvalTimeoutSeconds:         0,
		LogLevel:                   "info",
		MemorySampleIntervalMillis: 20,
	}
}

// LoadRuntimeConfig reads TOML from path and overlays it onto
// DefaultRuntimeConfig. A missing file is not an error — the defaults
// are returned as-is, matching the stack's usual first-run behavior.
// Unrecognized keys are reported as warnings rather than errors, to
// catch typos without breaking a process on upgrade.
func LoadRuntimeConfig(path string) (RuntimeConfig, []string, error) {
	cfg := DefaultRuntimeConfig()

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil, nil
		}
		return RuntimeConfig{}, nil, fmt.Errorf("jsengine: loading config %s: %w", path, err)
	}

	var warnings []string
	for _, key := range meta.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("unknown config key: %s", key))
	}

	cfg.EvalTimeout = time.Duration(cfg.EvalTimeoutSeconds) * time.Second
	return cfg, warnings, nil
}
