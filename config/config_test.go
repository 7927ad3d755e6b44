package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary directory for test files
	tempDir := t.TempDir()

	configPath := filepath.Join(tempDir, "test_config.yaml")
	configContent := `
log_level: -4
server:
  port: "9090"
storage:
  type: memory
registry:
  base_url: http://localhost:1234/list
  request_timeout: 5s
sync:
  page_delay: 250ms
  page_budget:
    default: 900
    companies:
      "42": 58
snapshot:
  type: gcs
  bucket: registry-snapshots
  prefix: exports
  export_after_sync: true
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, -4, cfg.LogLevel)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "http://localhost:1234/list", cfg.Registry.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Registry.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.PageDelay)
	assert.Equal(t, 900, cfg.Sync.PageBudget.Default)
	assert.Equal(t, 58, cfg.Sync.PageBudget.Companies["42"])
	assert.Equal(t, "registry-snapshots", cfg.Snapshot.Bucket)
	assert.True(t, cfg.Snapshot.ExportAfterSync)

	// Omitted fields fall back to defaults
	assert.Equal(t, time.Second, cfg.Sync.ErrorDelay)
	assert.Equal(t, 100, cfg.Sync.PageBudget.Company)
	assert.Equal(t, DefaultUserAgent, cfg.Registry.UserAgent)
}

func TestLoadDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(""), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "data/registry.db", cfg.Storage.Path)
	assert.Equal(t, DefaultRegistryURL, cfg.Registry.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Registry.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.PageDelay)
	assert.Equal(t, 30*time.Second, cfg.Sync.ProgressTTL)
	assert.Equal(t, 100, cfg.Sync.PersistStepEvery)
	assert.Equal(t, 100, cfg.Sync.ImportBatchSize)
	assert.Equal(t, 1200, cfg.Sync.PageBudget.Default)
	assert.Zero(t, cfg.Sync.ScheduleInterval)
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("non_existent_file.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()

	configPath := filepath.Join(tempDir, "invalid_config.yaml")
	configContent := `
log_level: -4
server:
  port: "8080"
invalid_yaml: [this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)

	assert.Error(t, err)
	assert.Nil(t, cfg)
}
