package cli

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_EnvOverridesDefault(t *testing.T) {
	t.Setenv("FEDPLAN_TEMP_NAME_LIMIT", "42")
	t.Setenv("FEDPLAN_PARQUET_ROOT", "/data")

	v := newViper()
	v.SetDefault("temp-name-limit", 5)
	v.SetDefault("parquet-root", ".")

	cfg, err := loadConfig(v, "")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.TempNameLimit)
	assert.Equal(t, "/data", cfg.ParquetRoot)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fedplan.yaml", `
sqlite: /var/lib/shop.db
gateway: http://gateway:8080
log-level: debug
temp-name-limit: 7
`)

	cfg, err := loadConfig(newViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/shop.db", cfg.SQLite)
	assert.Equal(t, "http://gateway:8080", cfg.Gateway)
	assert.Equal(t, 7, cfg.TempNameLimit)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"non-positive limit", "temp-name-limit: 0\n", "temp-name-limit must be positive"},
		{"bad level", "temp-name-limit: 3\nlog-level: loud\n", `invalid log-level "loud"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.yaml", tt.content)
			_, err := loadConfig(newViper(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := loadConfig(newViper(), "/nonexistent/fedplan.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config /nonexistent/fedplan.yaml")
}

func TestConfigLevelDefault(t *testing.T) {
	level, err := Config{}.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestInvalidConfigurationExitCode(t *testing.T) {
	_, _, err := execute(t, "--log-level", "loud", "validate", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFlagsReachConfig(t *testing.T) {
	t.Setenv("FEDPLAN_TEMP_NAME_LIMIT", "0")

	_, _, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temp-name-limit must be positive")

	// A flag takes precedence over the environment.
	_, _, err = execute(t, "--temp-name-limit", "3", "validate", t.TempDir())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "temp-name-limit")
}
