package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.toml"), CLIOverrides{}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultDBName, cfg.DBName)
	assert.Equal(t, DefaultBatchLimit, cfg.Scan.BatchLimit)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
data_dir = "/tmp/keeply-data"
db_name = "custom.keeply"

[Scan]
scan_workers = 4
batch_limit = 500
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path, CLIOverrides{}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/keeply-data", cfg.DataDir)
	assert.Equal(t, "custom.keeply", cfg.DBName)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, 500, cfg.Scan.BatchLimit)
}

func TestLoadCLIOverridesWinOverEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envDataDir, "/from/env")

	cfg, err := Load(filepath.Join(dir, "missing.toml"), CLIOverrides{DataDir: "/from/cli"}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/from/cli", cfg.DataDir)
}

func TestLoadRejectsEncryptionWithoutSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("db_encryption = true\n"), 0o600))

	_, err := Load(path, CLIOverrides{}, discardLogger())
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeWorkers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Scan]\nscan_workers = 64\n"), 0o600))

	_, err := Load(path, CLIOverrides{}, discardLogger())
	assert.Error(t, err)
}
