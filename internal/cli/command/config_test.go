package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/libresprite/recovery/internal/config"
)

func TestConfigShow(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(t.TempDir(), "recovery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recovery:\n  debounce: 3s\n  retention_days: 14\n"), 0o600))

	out, err := run(t, "--config", path, "--root", root, "config", "show")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, root, cfg.Recovery.BackupRoot)
	assert.Equal(t, "3s", cfg.Recovery.Debounce.String())
	assert.Equal(t, 14, cfg.Recovery.RetentionDays)
}

func TestConfigTest(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte("recovery:\n  keep_generations: 5\n"), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("recovery:\n  keep_generations: 99\n"), 0o600))

	out, err := run(t, "--root", dir, "config", "test", good)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	_, err = run(t, "--root", dir, "config", "test", bad)
	assert.ErrorContains(t, err, "keep_generations")

	_, err = run(t, "--root", dir, "config", "test")
	assert.Error(t, err)
}
