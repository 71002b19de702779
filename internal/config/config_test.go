package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
)

// isolate points HOME and the working directory at empty temp dirs so no
// real config file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	return home
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8*time.Second, cfg.Workflow.BranchTimeout)
	assert.Equal(t, 1, cfg.Workflow.BranchAttempts)
	assert.Equal(t, time.Hour, cfg.Tasks.TTL)
	assert.Equal(t, 50, cfg.Client.MaxRecords)
	assert.Equal(t, 100, cfg.Client.PendingCapacity)
	assert.Equal(t, 3*time.Second, cfg.Client.PollInterval)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ProjectFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("wayfinder.yaml", []byte(`
server:
  address: ":9090"
tasks:
  backend: nats
  ttl: 30m
`), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, BackendNATS, cfg.Tasks.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Tasks.TTL)
	assert.Equal(t, 4, cfg.Tasks.Workers, "unset keys keep their defaults")
}

func TestLoad_HomeFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".wayfinder")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("logging:\n  level: debug\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("wayfinder.yaml", []byte("workflow:\n  branch_timeout: 5s\n"), 0o600))
	t.Setenv("WAYFINDER_WORKFLOW_BRANCH_TIMEOUT", "2s")
	t.Setenv("WAYFINDER_STORAGE_DRIVER", "postgres")
	t.Setenv("WAYFINDER_CLIENT_SERVER_URL", "http://planner:8080")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Workflow.BranchTimeout)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "http://planner:8080", cfg.Client.ServerURL)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestLoad_InvalidValue(t *testing.T) {
	isolate(t)
	t.Setenv("WAYFINDER_TASKS_BACKEND", "kafka")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tasks.backend")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero branch timeout", func(c *Config) { c.Workflow.BranchTimeout = 0 }, "workflow.branch_timeout"},
		{"no attempts", func(c *Config) { c.Workflow.BranchAttempts = 0 }, "workflow.branch_attempts"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"no workers", func(c *Config) { c.Tasks.Workers = 0 }, "tasks.workers"},
		{"empty address", func(c *Config) { c.Server.Address = " " }, "server.address"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "telemetry.sample_rate"},
		{"negative max age", func(c *Config) { c.Client.MaxAge = -time.Hour }, "client"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestWriteFileThenLoad(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "conf", "wayfinder.yaml")

	cfg := Default()
	cfg.Tasks.Backend = BackendNATS
	cfg.Client.ReconcileInterval = time.Minute
	require.NoError(t, cfg.WriteFile(path, false))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, "8s", doc["workflow"]["branch_timeout"], "durations are written in Go notation")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	err = cfg.WriteFile(path, false)
	require.Error(t, err, "existing file is not overwritten")
	require.NoError(t, cfg.WriteFile(path, true))
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "text"

	lc, closer, err := cfg.LoggerConfig("1.2.3")
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Equal(t, log.LevelWarn, lc.Level)
	assert.Equal(t, log.FormatText, lc.Format)
	assert.Equal(t, "1.2.3", lc.ServiceVersion)

	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "wayfinder.log")
	lc, closer, err = cfg.LoggerConfig("1.2.3")
	require.NoError(t, err)
	require.NotNil(t, closer)
	log.New(lc).Info("hello")
	require.NoError(t, closer())

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestTracerConfig(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "otel:4318"

	tc := cfg.TracerConfig("1.0.0")
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otel:4318", tc.Endpoint)
	assert.Equal(t, "wayfinder", tc.ServiceName)
	assert.Equal(t, "development", tc.Environment)
}
