package config

import (
	"errors"
	"fmt"

	"github.com/libresprite/recovery/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyRecovery(&cfg.Recovery); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "", "text", "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}

func verifyRecovery(r *RecoverySection) error {
	var errs []error
	if r.BackupRoot == "" {
		errs = append(errs, errors.New("recovery.backup_root is required"))
	}
	if r.Debounce < 0 || r.MaxDelay < 0 || r.ShutdownGrace < 0 || r.LockTimeout < 0 {
		errs = append(errs, errors.New("recovery durations must not be negative"))
	}
	if r.MaxDelay > 0 && r.MaxDelay < r.Debounce {
		errs = append(errs, errors.New("recovery.max_delay must not be shorter than recovery.debounce"))
	}
	if r.MaxWritesPerSecond < 0 {
		errs = append(errs, errors.New("recovery.max_writes_per_second must not be negative"))
	}
	if r.KeepGenerations < 1 || r.KeepGenerations > MaxKeepGenerations {
		errs = append(errs, fmt.Errorf("recovery.keep_generations must be between 1 and %d", MaxKeepGenerations))
	}
	if r.RetentionDays < 0 {
		errs = append(errs, errors.New("recovery.retention_days must not be negative"))
	}
	if r.LogCompactThreshold < 0 {
		errs = append(errs, errors.New("recovery.log_compact_threshold must not be negative"))
	}
	return errors.Join(errs...)
}
