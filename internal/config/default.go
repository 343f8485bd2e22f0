package config

import (
	"os"
	"path/filepath"

	"github.com/libresprite/recovery/internal/recovery"
	"github.com/libresprite/recovery/internal/storage/activitylog"
	"github.com/libresprite/recovery/internal/storage/session"
)

// Default configuration values.
const (
	DefaultRetentionDays = 0
	MaxKeepGenerations   = 16

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// DefaultBackupRoot returns the per-user sessions directory.
func DefaultBackupRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "libresprite", "sessions")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Recovery: RecoverySection{
			BackupRoot:          DefaultBackupRoot(),
			Debounce:            recovery.DefaultDebounce,
			MaxDelay:            recovery.DefaultMaxDelay,
			MaxWritesPerSecond:  recovery.DefaultMaxWritesPerSecond,
			WriteBurst:          recovery.DefaultWriteBurst,
			KeepGenerations:     session.DefaultKeepGenerations,
			RetentionDays:       DefaultRetentionDays,
			ShutdownGrace:       recovery.DefaultShutdownGrace,
			LogCompactThreshold: activitylog.DefaultCompactThreshold,
			LockTimeout:         recovery.DefaultLockTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

