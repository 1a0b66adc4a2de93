package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	yaml := `
storage:
  data_dir: /var/lib/ddbstore
  page_size: 8192
buffer_pool:
  capacity: 256
wal:
  dir: /var/lib/ddbstore/wal
  buffer_bytes: 131072
  flush_interval: 500ms
lock:
  strict_2pl: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ddbstore", cfg.Storage.DataDir)
	assert.Equal(t, 8192, cfg.Storage.PageSize)
	assert.Equal(t, 256, cfg.BufferPool.Capacity)
	assert.Equal(t, "/var/lib/ddbstore/wal", cfg.WAL.Dir)
	assert.Equal(t, 131072, cfg.WAL.BufferBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.WAL.FlushInterval)
	assert.True(t, cfg.Lock.Strict2PL)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefault_MatchesAssumedConstants(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4096, cfg.Storage.PageSize)
	assert.False(t, cfg.Lock.Strict2PL)
}
