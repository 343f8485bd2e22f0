package config

import (
	"fmt"
	"strings"

	"github.com/libresprite/recovery/internal/infra/confloader"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = confloader.DefaultEnvPrefix

// Load layers the file at path (optional), the environment and overrides on
// top of the defaults and verifies the result. Override keys are dotted,
// as in "recovery.debounce".
func Load(path string, overrides map[string]any) (*Config, error) {
	cfg := Default()

	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithEnvKeyMapper(envKey),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(nest(overrides)); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal overrides: %w", err)
		}
	}

	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps LOG_LEVEL to log.level, METRICS_ADDR to metrics.addr and
// everything else into the recovery section, so that
// SPRITE_RECOVERY_BACKUP_ROOT sets recovery.backup_root.
func envKey(s string) string {
	for _, section := range []string{"log_", "metrics_", "recovery_"} {
		if strings.HasPrefix(s, section) {
			return confloader.SectionKey(s)
		}
	}
	return "recovery." + s
}

// nest turns dotted keys into nested maps.
func nest(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	return out
}
