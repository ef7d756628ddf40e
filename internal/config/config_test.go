package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LUMI_API_BASE_URL", "LUMI_REMOTE_TIMEOUT", "ARK_API_KEY", "ARK_ACCESS_KEY",
		"ARK_SECRET_KEY", "Model", "ARK_TEMPERATURE", "ARK_MAX_TOKENS", "LUMI_STORAGE_BACKEND",
		"LUMI_STORAGE_DIR", "LUMI_STORAGE_PATH", "LUMI_FEEDBACK_RATE", "LUMI_FEEDBACK_BURST",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.False(t, cfg.HasRemoteAPI())
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join("data", "lumi-state.json"), cfg.Storage.ResolvedPath())
	assert.Equal(t, 2.0, cfg.Feedback.Rate)
	assert.Equal(t, 5, cfg.Feedback.Burst)
	assert.Nil(t, cfg.AI.Temperature)
	assert.Nil(t, cfg.AI.MaxTokens)
}

func TestLoadRemote(t *testing.T) {
	clearEnv(t)
	t.Setenv("LUMI_API_BASE_URL", " https://lumi.example.com/ ")
	t.Setenv("LUMI_REMOTE_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://lumi.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.True(t, cfg.HasRemoteAPI())
}

func TestLoadArkCredentialsEnableRemote(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao-lite")
	t.Setenv("ARK_TEMPERATURE", "0.3")
	t.Setenv("ARK_MAX_TOKENS", "512")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.AI.Enabled())
	assert.True(t, cfg.HasRemoteAPI())
	require.NotNil(t, cfg.AI.Temperature)
	assert.Equal(t, 0.3, *cfg.AI.Temperature)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 512, *cfg.AI.MaxTokens)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "80 80")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("temperature", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ARK_TEMPERATURE", "warm")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("max tokens", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ARK_MAX_TOKENS", "lots")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LUMI_REMOTE_TIMEOUT", "soon")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestStoragePathForSQLite(t *testing.T) {
	cfg := StorageConfig{Backend: "sqlite", Dir: "/var/lib/lumi"}
	assert.Equal(t, "/var/lib/lumi/lumi-state.db", cfg.ResolvedPath())

	cfg.Path = "/tmp/custom.db"
	assert.Equal(t, "/tmp/custom.db", cfg.ResolvedPath())
}
