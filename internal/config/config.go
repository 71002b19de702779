// Package config loads wayfinder configuration from defaults, an optional
// YAML file and WAYFINDER_* environment variables, in increasing order of
// precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g.
// WAYFINDER_SERVER_ADDRESS or WAYFINDER_TASKS_BACKEND.
const EnvPrefix = "WAYFINDER"

// Task backends.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// Config is the complete wayfinder configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Workflow  WorkflowConfig  `mapstructure:"workflow" yaml:"workflow"`
	Tasks     TasksConfig     `mapstructure:"tasks" yaml:"tasks"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Client    ClientConfig    `mapstructure:"client" yaml:"client"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// WorkflowConfig tunes the planning pipeline and its caches.
type WorkflowConfig struct {
	BranchTimeout    time.Duration `mapstructure:"branch_timeout" yaml:"branch_timeout"`
	BranchAttempts   int           `mapstructure:"branch_attempts" yaml:"branch_attempts"`
	PlanCacheTTL     time.Duration `mapstructure:"plan_cache_ttl" yaml:"plan_cache_ttl"`
	ProviderCacheTTL time.Duration `mapstructure:"provider_cache_ttl" yaml:"provider_cache_ttl"`
	CacheMaxEntries  int           `mapstructure:"cache_max_entries" yaml:"cache_max_entries"`
}

// TasksConfig selects and tunes the background task backend.
type TasksConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SubjobTimeout time.Duration `mapstructure:"subjob_timeout" yaml:"subjob_timeout"`
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size"`
	NATSURL       string        `mapstructure:"nats_url" yaml:"nats_url"`
	Bucket        string        `mapstructure:"bucket" yaml:"bucket"`
	// EmbeddedNATS runs an in-process JetStream server; NATSURL is ignored.
	EmbeddedNATS bool   `mapstructure:"embedded_nats" yaml:"embedded_nats"`
	NATSStoreDir string `mapstructure:"nats_store_dir" yaml:"nats_store_dir"`
}

// StorageConfig configures the server-side itinerary database.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// ProvidersConfig holds optional base URLs for the external data services.
// An empty URL means that branch always uses placeholder data.
type ProvidersConfig struct {
	Route    string        `mapstructure:"route" yaml:"route"`
	Trend    string        `mapstructure:"trend" yaml:"trend"`
	Venue    string        `mapstructure:"venue" yaml:"venue"`
	Weather  string        `mapstructure:"weather" yaml:"weather"`
	Creative string        `mapstructure:"creative" yaml:"creative"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ClientConfig configures the CLI's client side: the server it talks to
// and the offline store.
type ClientConfig struct {
	ServerURL         string        `mapstructure:"server_url" yaml:"server_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	DBPath            string        `mapstructure:"db_path" yaml:"db_path"`
	MaxRecords        int           `mapstructure:"max_records" yaml:"max_records"`
	MaxAge            time.Duration `mapstructure:"max_age" yaml:"max_age"`
	PendingCapacity   int           `mapstructure:"pending_capacity" yaml:"pending_capacity"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" yaml:"reconcile_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// File, when set, receives logs instead of stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Workflow: WorkflowConfig{
			BranchTimeout:    8 * time.Second,
			BranchAttempts:   1,
			PlanCacheTTL:     10 * time.Minute,
			ProviderCacheTTL: 15 * time.Minute,
			CacheMaxEntries:  1000,
		},
		Tasks: TasksConfig{
			Backend:       BackendMemory,
			TTL:           time.Hour,
			SubjobTimeout: 2 * time.Minute,
			Workers:       4,
			QueueSize:     64,
			NATSURL:       "nats://127.0.0.1:4222",
			Bucket:        "WAYFINDER_TASKS",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "wayfinder.db",
		},
		Providers: ProvidersConfig{
			Timeout: 10 * time.Second,
		},
		Client: ClientConfig{
			ServerURL:       "http://localhost:8080",
			DBPath:          filepath.Join(Dir(), "offline.db"),
			MaxRecords:      50,
			MaxAge:          30 * 24 * time.Hour,
			PendingCapacity: 100,
			RequestTimeout:  60 * time.Second,
			PollInterval:    3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			SampleRate:  1.0,
			Environment: "development",
		},
	}
}

// Dir returns the per-user configuration directory, ~/.wayfinder.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wayfinder"
	}
	return filepath.Join(home, ".wayfinder")
}

// DefaultFile is where `config init` writes and Load looks last.
func DefaultFile() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load builds the effective configuration. path names an explicit config
// file, which must exist; with an empty path ./wayfinder.yaml and then
// ~/.wayfinder/config.yaml are tried and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if err := readConfig(v, path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrap(errors.ErrCodeValidation, "failed to read config file "+path, err).
				WithSuggestion("run 'wayfinder config init' to create one")
		}
		return nil
	}

	// viper searches for a single config name, so the project-local file
	// is checked first by hand.
	if _, err := os.Stat("wayfinder.yaml"); err == nil {
		v.SetConfigFile("wayfinder.yaml")
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(Dir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if stderrors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(errors.ErrCodeValidation, "failed to read config file", err)
	}
	return nil
}

// setDefaults registers every leaf of d so that environment overrides
// work for keys absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("workflow.branch_timeout", d.Workflow.BranchTimeout)
	v.SetDefault("workflow.branch_attempts", d.Workflow.BranchAttempts)
	v.SetDefault("workflow.plan_cache_ttl", d.Workflow.PlanCacheTTL)
	v.SetDefault("workflow.provider_cache_ttl", d.Workflow.ProviderCacheTTL)
	v.SetDefault("workflow.cache_max_entries", d.Workflow.CacheMaxEntries)

	v.SetDefault("tasks.backend", d.Tasks.Backend)
	v.SetDefault("tasks.ttl", d.Tasks.TTL)
	v.SetDefault("tasks.subjob_timeout", d.Tasks.SubjobTimeout)
	v.SetDefault("tasks.workers", d.Tasks.Workers)
	v.SetDefault("tasks.queue_size", d.Tasks.QueueSize)
	v.SetDefault("tasks.nats_url", d.Tasks.NATSURL)
	v.SetDefault("tasks.bucket", d.Tasks.Bucket)
	v.SetDefault("tasks.embedded_nats", d.Tasks.EmbeddedNATS)
	v.SetDefault("tasks.nats_store_dir", d.Tasks.NATSStoreDir)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dsn", d.Storage.DSN)

	v.SetDefault("providers.route", d.Providers.Route)
	v.SetDefault("providers.trend", d.Providers.Trend)
	v.SetDefault("providers.venue", d.Providers.Venue)
	v.SetDefault("providers.weather", d.Providers.Weather)
	v.SetDefault("providers.creative", d.Providers.Creative)
	v.SetDefault("providers.timeout", d.Providers.Timeout)

	v.SetDefault("client.server_url", d.Client.ServerURL)
	v.SetDefault("client.api_key", d.Client.APIKey)
	v.SetDefault("client.db_path", d.Client.DBPath)
	v.SetDefault("client.max_records", d.Client.MaxRecords)
	v.SetDefault("client.max_age", d.Client.MaxAge)
	v.SetDefault("client.pending_capacity", d.Client.PendingCapacity)
	v.SetDefault("client.reconcile_interval", d.Client.ReconcileInterval)
	v.SetDefault("client.request_timeout", d.Client.RequestTimeout)
	v.SetDefault("client.poll_interval", d.Client.PollInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
	v.SetDefault("telemetry.environment", d.Telemetry.Environment)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	positive := []struct {
		key string
		d   time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.request_timeout", c.Server.RequestTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"workflow.branch_timeout", c.Workflow.BranchTimeout},
		{"workflow.plan_cache_ttl", c.Workflow.PlanCacheTTL},
		{"workflow.provider_cache_ttl", c.Workflow.ProviderCacheTTL},
		{"tasks.ttl", c.Tasks.TTL},
		{"tasks.subjob_timeout", c.Tasks.SubjobTimeout},
		{"providers.timeout", c.Providers.Timeout},
		{"client.request_timeout", c.Client.RequestTimeout},
		{"client.poll_interval", c.Client.PollInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return errors.NewValidationError(p.key, "must be a positive duration")
		}
	}

	switch {
	case strings.TrimSpace(c.Server.Address) == "":
		return errors.NewValidationError("server.address", "must not be empty")
	case c.Workflow.BranchAttempts < 1:
		return errors.NewValidationError("workflow.branch_attempts", "must be at least 1")
	case c.Workflow.CacheMaxEntries < 1:
		return errors.NewValidationError("workflow.cache_max_entries", "must be at least 1")
	case c.Tasks.Workers < 1:
		return errors.NewValidationError("tasks.workers", "must be at least 1")
	case c.Tasks.QueueSize < 1:
		return errors.NewValidationError("tasks.queue_size", "must be at least 1")
	case c.Client.MaxRecords < 1:
		return errors.NewValidationError("client.max_records", "must be at least 1")
	case c.Client.PendingCapacity < 1:
		return errors.NewValidationError("client.pending_capacity", "must be at least 1")
	case c.Client.MaxAge < 0, c.Client.ReconcileInterval < 0:
		return errors.NewValidationError("client", "durations must not be negative")
	case c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1:
		return errors.NewValidationError("telemetry.sample_rate", "must be between 0 and 1")
	}

	switch c.Tasks.Backend {
	case BackendMemory, BackendNATS:
	default:
		return errors.NewValidationError("tasks.backend", fmt.Sprintf("unknown backend %q", c.Tasks.Backend)).
			WithSuggestion("use memory or nats")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return errors.NewValidationError("storage.driver", fmt.Sprintf("unknown driver %q", c.Storage.Driver)).
			WithSuggestion("use sqlite or postgres")
	}
	return nil
}

// YAML renders c as a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteFile writes c to path, creating parent directories. An existing
// file is only replaced when overwrite is set.
func (c *Config) WriteFile(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.Newf(errors.ErrCodeValidation, "config file %s already exists", path).
			WithSuggestion("pass --force to overwrite it")
	}
	data, err := c.YAML()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoggerConfig maps the logging section onto the logger's configuration.
// The returned closer is non-nil when logs go to a file.
func (c *Config) LoggerConfig(version string) (log.Config, func() error, error) {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(c.Logging.Level)
	lc.Format = log.ParseFormat(c.Logging.Format)
	lc.ServiceVersion = version
	if c.Logging.File == "" {
		return lc, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0o755); err != nil {
		return lc, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(c.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return lc, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	lc.Output = f
	return lc, f.Close, nil
}

// TracerConfig maps the telemetry section onto the tracer's
// configuration.
func (c *Config) TracerConfig(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Enabled = c.Telemetry.Enabled
	tc.Endpoint = c.Telemetry.Endpoint
	tc.SampleRate = c.Telemetry.SampleRate
	if c.Telemetry.Environment != "" {
		tc.Environment = c.Telemetry.Environment
	}
	return tc
}
