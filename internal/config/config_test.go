package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withSecretsDir подменяет каталог секретов на временный.
func withSecretsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := SecretsDir
	SecretsDir = dir
	t.Cleanup(func() { SecretsDir = old })
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "env-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, AIClientOpenAI, cfg.AIClientType)
	assert.Equal(t, 120*time.Second, cfg.AITimeout)
	assert.Equal(t, 3, cfg.AIMaxAttempts)
	assert.InDelta(t, 0.8, cfg.AITemperature, 1e-9)
	assert.Equal(t, DefaultImageMaxBytes, cfg.ImageMaxBytes)
	assert.Equal(t, "env-key", cfg.AIAPIKey)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfig_SecretFileWins(t *testing.T) {
	dir := withSecretsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ai_api_key"), []byte("  file-key\n"), 0o600))
	t.Setenv("AI_API_KEY", "env-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.AIAPIKey)
}

func TestLoadConfig_OllamaWithoutKey(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("AI_API_KEY", "")
	t.Setenv("AI_CLIENT_TYPE", "ollama")
	t.Setenv("AI_BASE_URL", "http://localhost:11434")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, AIClientOllama, cfg.AIClientType)
	assert.Empty(t, cfg.AIAPIKey)
}

func TestValidate(t *testing.T) {
	base := Config{
		AIClientType:  AIClientOpenAI,
		AIAPIKey:      "k",
		AIMaxAttempts: 1,
		AITimeout:     time.Second,
		ImageMaxBytes: 1,
	}
	require.NoError(t, base.Validate())

	noKey := base
	noKey.AIAPIKey = ""
	assert.Error(t, noKey.Validate())

	unknown := base
	unknown.AIClientType = "gemini"
	assert.ErrorContains(t, unknown.Validate(), "gemini")

	zeroAttempts := base
	zeroAttempts.AIMaxAttempts = 0
	assert.ErrorContains(t, zeroAttempts.Validate(), "AI_MAX_ATTEMPTS")
}

func TestReadSecret_Empty(t *testing.T) {
	dir := withSecretsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blank"), []byte("   "), 0o600))

	_, err := ReadSecret("blank")
	assert.ErrorContains(t, err, "is empty")

	_, err = ReadSecret("missing")
	assert.Error(t, err)
}
