package recovery

import (
	"log/slog"
	"os"
	"time"

	"github.com/libresprite/recovery/internal/imagecodec"
	"github.com/libresprite/recovery/internal/infra/liveness"
	"github.com/libresprite/recovery/internal/storage/activitylog"
	"github.com/libresprite/recovery/internal/storage/session"
	"github.com/libresprite/recovery/internal/telemetry/metric"
)

// Default configuration values.
const (
	DefaultDebounce           = 2 * time.Second
	DefaultMaxDelay           = 30 * time.Second
	DefaultMaxWritesPerSecond = 4.0
	DefaultWriteBurst         = 2
	DefaultShutdownGrace      = 5 * time.Second
	DefaultLockTimeout        = 2 * time.Second
)

// Config configures DataRecovery.
type Config struct {
	// PID owns the new session. Zero means os.Getpid().
	PID int

	// Debounce is the quiet period after the last edit before a save.
	Debounce time.Duration
	// MaxDelay bounds how long a continuously edited document waits.
	MaxDelay time.Duration
	// MaxWritesPerSecond limits saves across all documents. <= 0 disables it.
	MaxWritesPerSecond float64
	WriteBurst         int

	KeepGenerations     int
	LogCompactThreshold int

	// RetentionDays prunes crashed sessions older than this. Zero keeps them.
	RetentionDays int

	// ShutdownGrace bounds how long Close waits for an in-flight save.
	ShutdownGrace time.Duration
	// LockTimeout bounds the wait for the root lock before pruning.
	LockTimeout time.Duration

	// KeepSessionOnClose keeps the current session on disk after Close.
	KeepSessionOnClose bool

	Logger     *slog.Logger
	Metrics    *metric.Recorder
	Prober     liveness.Prober
	ImageCodec imagecodec.Codec
	Now        func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:            DefaultDebounce,
		MaxDelay:            DefaultMaxDelay,
		MaxWritesPerSecond:  DefaultMaxWritesPerSecond,
		WriteBurst:          DefaultWriteBurst,
		KeepGenerations:     session.DefaultKeepGenerations,
		LogCompactThreshold: activitylog.DefaultCompactThreshold,
		ShutdownGrace:       DefaultShutdownGrace,
		LockTimeout:         DefaultLockTimeout,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.PID <= 0 {
		cfg.PID = os.Getpid()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxDelay < cfg.Debounce {
		cfg.MaxDelay = DefaultMaxDelay
		if cfg.MaxDelay < cfg.Debounce {
			cfg.MaxDelay = cfg.Debounce
		}
	}
	if cfg.WriteBurst <= 0 {
		cfg.WriteBurst = DefaultWriteBurst
	}
	if cfg.KeepGenerations <= 0 {
		cfg.KeepGenerations = session.DefaultKeepGenerations
	}
	if cfg.LogCompactThreshold <= 0 {
		cfg.LogCompactThreshold = activitylog.DefaultCompactThreshold
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Prober == nil {
		cfg.Prober = liveness.New()
	}
	if cfg.ImageCodec == nil {
		cfg.ImageCodec = imagecodec.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}
