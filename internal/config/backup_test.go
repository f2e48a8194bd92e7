package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Run("no config exists", func(t *testing.T) {
		backupPath, err := BackupFile(path)

		require.NoError(t, err)
		assert.Empty(t, backupPath)
	})

	t.Run("backup existing config", func(t *testing.T) {
		content := "version: 1\nscorer:\n  fusion_method: rrf\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		backupPath, err := BackupFile(path)

		require.NoError(t, err)
		require.NotEmpty(t, backupPath)
		got, err := os.ReadFile(backupPath)
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	})
}

func TestBackupFile_KeepsOnlyMaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		// Backup names carry millisecond timestamps
		time.Sleep(5 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
	assert.True(t, backups[0] > backups[len(backups)-1], "newest first")
}

func TestListBackups_MissingDir(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "missing", "config.yaml"))

	require.NoError(t, err)
	assert.Empty(t, backups)
}
