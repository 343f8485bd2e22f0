package config

import (
	"os"

	"github.com/libresprite/recovery/internal/telemetry/logger"
)

// Sanitize returns a copy of the config with the home directory masked in
// paths, for logging and display.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	if home, err := os.UserHomeDir(); err == nil {
		sanitized.Recovery.BackupRoot = logger.RedactPath(cfg.Recovery.BackupRoot, home)
	}
	return &sanitized
}
