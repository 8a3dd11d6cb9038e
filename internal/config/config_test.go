package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDirOverride(t *testing.T) {
	t.Setenv(ConfigDirEnv, "/tmp/ragvideo-test")
	assert.Equal(t, "/tmp/ragvideo-test", DefaultConfigDir())
}

func TestRegistryAndHistoryPaths(t *testing.T) {
	t.Setenv(ConfigDirEnv, "/tmp/ragvideo-test")
	assert.Equal(t, filepath.Join("/tmp/ragvideo-test", "dify.json"), RegistryPath())
	assert.Equal(t, filepath.Join("/tmp/ragvideo-test", "rag_history.json"), HistoryPath())
}

func TestLoadMissingFileAppliesDefaults(t *testing.T) {
	t.Setenv(ConfigDirEnv, t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, defaultListen, cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, defaultWorkers, cfg.Ingest.Workers)
	assert.Equal(t, defaultQueueSize, cfg.Ingest.QueueSize)
	assert.NotEmpty(t, cfg.Notes.OutputDir)
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[server]
listen = "0.0.0.0:9000"

[notes]
output_dir = "/data/notes"

[logging]
log_level = "debug"
log_format = "json"

[ingest]
workers = 4
queue_size = 64
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, "/data/notes", cfg.Notes.OutputDir)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 64, cfg.Ingest.QueueSize)
}

func TestParseAutoMode(t *testing.T) {
	assert.Equal(t, AutoOn, ParseAutoMode("true"))
	assert.Equal(t, AutoOn, ParseAutoMode("YES"))
	assert.Equal(t, AutoOff, ParseAutoMode("0"))
	assert.Equal(t, AutoOff, ParseAutoMode("off"))
	assert.Equal(t, AutoAuto, ParseAutoMode(""))
	assert.Equal(t, AutoAuto, ParseAutoMode("auto"))
	assert.Equal(t, AutoAuto, ParseAutoMode("whatever"))
}

func TestLoadObjectStoreEnvDefaults(t *testing.T) {
	t.Setenv(EnvMinioEndpoint, "minio.local:9000")
	t.Setenv(EnvMinioAccessKey, "ak")
	t.Setenv(EnvMinioSecretKey, "sk")
	t.Setenv(EnvMinioSecure, "")
	t.Setenv(EnvMinioBucketPrefix, "")
	t.Setenv(EnvMinioObjectPrefix, "objects")
	t.Setenv(EnvMinioTombstonePrefix, "")

	env := LoadObjectStoreEnv()
	assert.Equal(t, "minio.local:9000", env.Endpoint)
	assert.False(t, env.Secure)
	assert.Equal(t, "ragvideo-", env.BucketPrefix)
	assert.Equal(t, "objects/", env.ObjectPrefix)
	assert.Equal(t, "tombstones/", env.TombstonePrefix)
}

func TestLoadRAGEnvDefaults(t *testing.T) {
	t.Setenv(EnvDifyBaseURL, "")
	t.Setenv(EnvDifyAppUser, "")
	t.Setenv(EnvDifyIndexingTechnique, "")
	t.Setenv(EnvDifyTimeoutSeconds, "")

	env := LoadRAGEnv()
	assert.Equal(t, "http://localhost", env.BaseURL)
	assert.Equal(t, "ragvideo", env.AppUser)
	assert.Equal(t, "high_quality", env.IndexingTechnique)
	assert.Equal(t, 60.0, env.TimeoutSeconds)
}

func TestMergeLimits(t *testing.T) {
	t.Setenv(EnvMergeMaxChars, "500")
	t.Setenv(EnvMergeMaxSeconds, "30")

	chars, seconds := MergeLimits()
	assert.Equal(t, 500, chars)
	assert.Equal(t, 30.0, seconds)
}
