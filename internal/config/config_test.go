package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
servers:
  - id: primary
    host: news.example.com
    port: 563
    tls: true
    connections: 10
cleanup:
  target_extensions:
    - .NFO
    - .nfo
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./downloads", cfg.DownloadDir)
	assert.Equal(t, 1, cfg.MaxConcurrentDownloads)
	assert.Equal(t, "rename", cfg.FileCollision)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.DirectUnpack.Enabled)
	assert.Equal(t, 200, cfg.DirectUnpack.PollIntervalMs)
}

func TestLoadDedupsCleanupExtensionsCaseInsensitively(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{".nfo"}, cfg.Cleanup.TargetExtensions)
}

func TestLoadRejectsNoServers(t *testing.T) {
	path := writeTempConfig(t, "download_dir: ./x\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "at least one server")
}

func TestLoadRejectsDuplicateServerID(t *testing.T) {
	path := writeTempConfig(t, `
servers:
  - id: a
    host: h1
    port: 119
  - id: a
    host: h2
    port: 119
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "duplicate server id")
}

func TestLoadDefaultsServerConnectionsAndPriority(t *testing.T) {
	path := writeTempConfig(t, `
servers:
  - id: a
    host: h1
    port: 119
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Servers[0].Connections)
	assert.Equal(t, 1, cfg.Servers[0].PipelineDepth)
	assert.Equal(t, 1, cfg.Servers[0].Priority)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
