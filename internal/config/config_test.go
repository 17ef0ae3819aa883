package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "flowsync-main", cfg.DocumentID)
	assert.Equal(t, 5*time.Minute, cfg.Backup.MinSpacing.Std())
	assert.Equal(t, 72*time.Hour, cfg.Backup.Retention.Std())
	assert.Equal(t, time.Hour, cfg.Backup.Interval.Std())
	assert.Equal(t, time.Minute, cfg.Backup.FirstDelay.Std())
	require.NoError(t, cfg.validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
document_id: team-board
owner: alice
storage_path: /tmp/board.db
remote_url: wss://sync.example.com/ws
backup:
  min_spacing: 10m
  retention: 48h
  interval: 30m
  first_delay: 5s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "team-board", cfg.DocumentID)
	assert.Equal(t, "alice", cfg.Owner)
	assert.Equal(t, "wss://sync.example.com/ws", cfg.RemoteURL)
	assert.Equal(t, 10*time.Minute, cfg.Backup.MinSpacing.Std())
	assert.Equal(t, 48*time.Hour, cfg.Backup.Retention.Std())
	assert.Equal(t, 30*time.Minute, cfg.Backup.Interval.Std())
	assert.Equal(t, 5*time.Second, cfg.Backup.FirstDelay.Std())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "document_id: team-board\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "team-board", cfg.DocumentID)
	assert.Equal(t, "flowsync.db", cfg.StoragePath)
	assert.Equal(t, time.Hour, cfg.Backup.Interval.Std())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "document_id: [broken"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "document_id: \"\"\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "backup:\n  interval: fast\n"))
	assert.Error(t, err, "durations must parse")
}
