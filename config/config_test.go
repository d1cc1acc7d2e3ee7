package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no opf.yaml in sight

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.MaxIterations)
	assert.Equal(t, 1e-6, cfg.Tolerance)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_iterations: 1234
tolerance: 1e-4
timeout: 90s
parallelism: 8
log_level: debug
solver_dir: /opt/opf/solvers
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.MaxIterations)
	assert.Equal(t, 1e-4, cfg.Tolerance)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/opt/opf/solvers", cfg.SolverDir)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OPF_MAX_ITERATIONS", "99")
	t.Setenv("OPF_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.MaxIterations)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestOptionsConversion(t *testing.T) {
	cfg := &Config{MaxIterations: 10, Tolerance: 1e-3, Timeout: time.Minute}
	assert.Len(t, cfg.Options(), 3)

	sparse := &Config{MaxIterations: 10}
	assert.Len(t, sparse.Options(), 1)
}
