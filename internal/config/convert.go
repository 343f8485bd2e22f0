package config

import (
	"log/slog"

	"github.com/libresprite/recovery/internal/recovery"
	"github.com/libresprite/recovery/internal/telemetry/metric"
)

// ToRecoveryConfig maps the recovery section onto recovery.Config.
func ToRecoveryConfig(cfg *Config, logger *slog.Logger, metrics *metric.Recorder) recovery.Config {
	r := cfg.Recovery
	return recovery.Config{
		Debounce:            r.Debounce,
		MaxDelay:            r.MaxDelay,
		MaxWritesPerSecond:  r.MaxWritesPerSecond,
		WriteBurst:          r.WriteBurst,
		KeepGenerations:     r.KeepGenerations,
		LogCompactThreshold: r.LogCompactThreshold,
		RetentionDays:       r.RetentionDays,
		ShutdownGrace:       r.ShutdownGrace,
		LockTimeout:         r.LockTimeout,
		Logger:              logger,
		Metrics:             metrics,
	}
}
