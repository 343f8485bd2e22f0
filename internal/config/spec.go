package config

import "time"

// Config is the root configuration.
type Config struct {
	Recovery RecoverySection `koanf:"recovery" yaml:"recovery" json:"recovery"`
	Log      LogSection      `koanf:"log" yaml:"log" json:"log"`
	Metrics  MetricsSection  `koanf:"metrics" yaml:"metrics" json:"metrics"`
}

// RecoverySection configures crash recovery.
type RecoverySection struct {
	// BackupRoot holds one directory per session.
	BackupRoot string `koanf:"backup_root" yaml:"backup_root" json:"backup_root"`

	// Debounce is the quiet period after an edit before it is backed up.
	Debounce time.Duration `koanf:"debounce" yaml:"debounce" json:"debounce"`
	// MaxDelay bounds how long a continuously edited document waits.
	MaxDelay time.Duration `koanf:"max_delay" yaml:"max_delay" json:"max_delay"`

	MaxWritesPerSecond float64 `koanf:"max_writes_per_second" yaml:"max_writes_per_second" json:"max_writes_per_second"`
	WriteBurst         int     `koanf:"write_burst" yaml:"write_burst" json:"write_burst"`

	// KeepGenerations is the number of published generations per document (1-16).
	KeepGenerations int `koanf:"keep_generations" yaml:"keep_generations" json:"keep_generations"`

	// RetentionDays prunes crashed sessions older than this. Zero keeps them.
	RetentionDays int `koanf:"retention_days" yaml:"retention_days" json:"retention_days"`

	ShutdownGrace       time.Duration `koanf:"shutdown_grace" yaml:"shutdown_grace" json:"shutdown_grace"`
	LogCompactThreshold int           `koanf:"log_compact_threshold" yaml:"log_compact_threshold" json:"log_compact_threshold"`
	LockTimeout         time.Duration `koanf:"lock_timeout" yaml:"lock_timeout" json:"lock_timeout"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}

// MetricsSection configures the Prometheus endpoint of long-running commands.
type MetricsSection struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `koanf:"addr" yaml:"addr" json:"addr"`
}
