package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	base := t.TempDir()
	t.Setenv("WABOT_PATHS_BASE_DIR", base)

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Authority.Timeout)
	assert.Equal(t, "WhatsApp-Bot-Client/3.2-Conservative", cfg.Authority.UserAgent)
	assert.Equal(t, 300*time.Second, cfg.License.Interval)
	assert.Equal(t, 3, cfg.License.FailureThreshold)
	assert.Equal(t, []string{"expired", "suspended", "expirada"}, cfg.License.ConfirmedInvalidStatuses)
	assert.Equal(t, 3*time.Second, cfg.Messaging.BulkDelay)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, filepath.Join(base, "data", "license.json"), cfg.License.File)
	assert.Equal(t, filepath.Join(base, "data", "session"), cfg.Messaging.SessionDir)
	assert.Equal(t, filepath.Join(base, "data", "reports"), cfg.Messaging.ReportsDir)
	assert.Equal(t, filepath.Join(base, "logs", "wabot.log"), cfg.Logging.FilePath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: 9090
authority:
  url: https://licenses.example.com/api.php
  api_key: from-file
license:
  interval: 1m
  ambiguous_statuses: [trial]
messaging:
  bulk_delay: 500ms
`), 0o600))

	t.Setenv("WABOT_PATHS_BASE_DIR", base)
	t.Setenv("WABOT_AUTHORITY_API_KEY", "from-env")
	t.Setenv("WABOT_LICENSE_FAILURE_THRESHOLD", "5")

	cfg, err := LoadFrom(file)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://licenses.example.com/api.php", cfg.Authority.URL)
	assert.Equal(t, "from-env", cfg.Authority.APIKey)
	assert.Equal(t, time.Minute, cfg.License.Interval)
	assert.Equal(t, 5, cfg.License.FailureThreshold)
	assert.Equal(t, []string{"trial"}, cfg.License.AmbiguousStatuses)
	assert.Equal(t, 500*time.Millisecond, cfg.Messaging.BulkDelay)
	// Untouched keys keep their defaults.
	assert.Equal(t, 20*time.Second, cfg.Authority.Timeout)
}

func TestLoadEnvList(t *testing.T) {
	t.Setenv("WABOT_PATHS_BASE_DIR", t.TempDir())
	t.Setenv("WABOT_LICENSE_CONFIRMED_INVALID_STATUSES", "expired,revoked")

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, []string{"expired", "revoked"}, cfg.License.ConfirmedInvalidStatuses)
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"WABOT_SERVER_PORT": "70000"}, "Server.Port"},
		{"zero threshold", map[string]string{"WABOT_LICENSE_FAILURE_THRESHOLD": "0"}, "License.FailureThreshold"},
		{"bad authority url", map[string]string{"WABOT_AUTHORITY_URL": "not a url"}, "Authority.URL"},
		{"bad log level", map[string]string{"WABOT_LOGGING_LEVEL": "loud"}, "Logging.Level"},
		{"sheets without credentials", map[string]string{"WABOT_LICENSE_SHEETS_AUDIT_SPREADSHEET_ID": "abc"}, "SheetsCredentialsFile"},
		{"unparseable duration", map[string]string{"WABOT_LICENSE_INTERVAL": "soon"}, "env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WABOT_PATHS_BASE_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadFrom("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	base := t.TempDir()
	t.Setenv("WABOT_PATHS_BASE_DIR", base)

	cfg, err := LoadFrom(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.Server.Port, cfg.Server.Port)
	assert.Equal(t, want.License.Interval, cfg.License.Interval)
	assert.Equal(t, want.Messaging.BulkDelay, cfg.Messaging.BulkDelay)
	assert.Equal(t, filepath.Join(base, "data", "reports"), cfg.Messaging.ReportsDir)
	assert.NotEmpty(t, cfg.Authority.URL)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("WABOT_PATHS_BASE_DIR", t.TempDir())
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoggingNormalized(t *testing.T) {
	t.Setenv("WABOT_PATHS_BASE_DIR", t.TempDir())
	t.Setenv("WABOT_LOGGING_LEVEL", "DEBUG")
	t.Setenv("WABOT_LOGGING_FORMAT", "text")

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestResolvedPaths(t *testing.T) {
	base := t.TempDir()
	t.Setenv("WABOT_PATHS_BASE_DIR", base)
	t.Setenv("WABOT_LICENSE_FILE", "/var/lib/wabot/license.json")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	paths := cfg.ResolvedPaths()
	assert.Equal(t, "/var/lib/wabot/license.json", paths.LicenseFile)
	assert.Equal(t, filepath.Join(base, "logs", "license-audit.jsonl"), paths.AuditFile)

	paths.LicenseFile = filepath.Join(base, "state", "license.json")
	require.NoError(t, paths.EnsureDirectories())
	assert.DirExists(t, filepath.Join(base, "data", "session"))
	assert.DirExists(t, filepath.Join(base, "state"))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "", Resolve("/base", ""))
	assert.Equal(t, "/abs/file", Resolve("/base", "/abs/file"))
	assert.Equal(t, filepath.Join("/base", "rel", "file"), Resolve("/base", "rel/file"))
	assert.Equal(t, ":3000", ServerConfig{Port: 3000}.Addr())
}
