package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: test-herald\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-herald", cfg.Service.Name)
	assert.Equal(t, 60*time.Second, cfg.Service.TickInterval)
	assert.Equal(t, 4, cfg.Service.WorkerCount)
	assert.Equal(t, "herald.db", cfg.Store.Path)
	assert.Equal(t, 100, cfg.Billing.DefaultCost)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("HERALD_DB", "/var/lib/herald/state.db")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: ${HERALD_DB}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/herald/state.db", cfg.Store.Path)
}

func TestLoadRejectsAPIWithoutKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  enabled: true\n  listen: 127.0.0.1:9999\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.api_key")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		expected time.Duration
		hasError bool
	}{
		{"5m", "5m", 5 * time.Minute, false},
		{"hourly", "hourly", 1 * time.Hour, false},
		{"2h", "2h", 2 * time.Hour, false},
		{"negative", "-1m", 0, true},
		{"unknown", "foo", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseInterval(tt.interval)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, d)
			}
		})
	}
}
