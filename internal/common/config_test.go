package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 5, config.Engine.Concurrency)
	assert.Equal(t, 3, config.Engine.MaxAttempts)
	assert.Equal(t, "1s", config.Engine.PollInterval)
	assert.Equal(t, 2.0, config.Engine.RetryMultiplier)
	assert.Equal(t, "./data", config.Storage.Badger.Path)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "./playbooks", config.Playbooks.DefinitionsDir)
	assert.Contains(t, config.WebSocket.ThrottleIntervals, "step.log.appended")
}

func TestLoadFromFiles_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "production"

[server]
port = 9090

[engine]
concurrency = 10
retry_base_delay = "1s"
`), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 10, config.Engine.Concurrency)
	assert.Equal(t, "1s", config.Engine.RetryBaseDelay)

	// Untouched sections keep their defaults
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 3, config.Engine.MaxAttempts)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(base, []byte("[server]\nport = 9090\n"), 0644))
	require.NoError(t, os.WriteFile(override, []byte("[server]\nport = 9091\n"), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)
	assert.Equal(t, 9091, config.Server.Port)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/config.toml")
	assert.Error(t, err)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("PRAVADO_SERVER_PORT", "7070")
	t.Setenv("PRAVADO_ENGINE_CONCURRENCY", "2")
	t.Setenv("PRAVADO_LOG_OUTPUT", "stdout, file")
	t.Setenv("PRAVADO_BADGER_PATH", "/tmp/pravado-test-db")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, 2, config.Engine.Concurrency)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.Equal(t, "/tmp/pravado-test-db", config.Storage.Badger.Path)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 6060, "0.0.0.0")
	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("garbage", time.Minute))
}

func TestIsProduction(t *testing.T) {
	config := NewDefaultConfig()
	assert.False(t, config.IsProduction())

	config.Environment = "production"
	assert.True(t, config.IsProduction())

	config.Environment = " PROD "
	assert.True(t, config.IsProduction())
}
