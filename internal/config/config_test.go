package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/pdbscope/internal/index"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, index.DefaultLimits(), cfg.Limits)
	assert.Equal(t, 1, cfg.Batch.Jobs)
	assert.Equal(t, "_analysis.json", cfg.Batch.Suffix)
	assert.Equal(t, ".pdb", cfg.Batch.Extension)
	assert.Empty(t, cfg.Cache.Dir)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  pretty: false
limits:
  max_symbols: 10
batch:
  jobs: 4
cache:
  dir: /tmp/pdbscope-cache
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
	assert.Equal(t, 10, cfg.Limits.MaxSymbols)
	assert.Equal(t, index.DefaultMaxMatches, cfg.Limits.MaxMatches, "unset keys keep defaults")
	assert.Equal(t, 4, cfg.Batch.Jobs)
	assert.Equal(t, "_analysis.json", cfg.Batch.Suffix)
	assert.Equal(t, "/tmp/pdbscope-cache", cfg.Cache.Dir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "batch:\n  jobs: 4\n")
	t.Setenv("PDBSCOPE_JOBS", "8")
	t.Setenv("PDBSCOPE_MAX_MEMBERS", "50")
	t.Setenv("PDBSCOPE_LOG_PRETTY", "false")
	t.Setenv("PDBSCOPE_SYMBOL_STORE", "/srv/symbols")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Batch.Jobs)
	assert.Equal(t, 50, cfg.Limits.MaxMembers)
	assert.False(t, cfg.Log.Pretty)

	dir, err := cfg.SymbolStoreDir()
	require.NoError(t, err)
	assert.Equal(t, "/srv/symbols", dir)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("PDBSCOPE_JOBS", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "PDBSCOPE_JOBS")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeConfig(t, "limits: [not, a, map]\n"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = Load(writeConfig(t, "batch:\n  jobs: 0\n  suffix: \"\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.jobs")
	assert.Contains(t, err.Error(), "batch.suffix")
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/pdbscope.yaml")
	assert.Equal(t, "/explicit.yaml", ResolvePath("/explicit.yaml"))
	assert.Equal(t, "/etc/pdbscope.yaml", ResolvePath(""))
}
