// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Register RegisterConfig `mapstructure:"register"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// RegisterConfig describes the remote trial register.
type RegisterConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
	Accept    string `mapstructure:"accept"`
}

// HTTPConfig configures request pacing and retry behavior.
type HTTPConfig struct {
	RequestDelaySeconds int `mapstructure:"request_delay_seconds"`
	MaxBackoffSeconds   int `mapstructure:"max_backoff_seconds"`
	MaxAttempts         int `mapstructure:"max_attempts"`
	TimeoutSeconds      int `mapstructure:"timeout_seconds"`
}

// OutputConfig sets local directories for snapshots, tables, and run logs.
type OutputConfig struct {
	DataDir string `mapstructure:"data_dir"`
	LogsDir string `mapstructure:"logs_dir"`
}

// StorageConfig selects the blob provider for table exports.
// Provider is one of "", "local", "gcs", or "s3"; empty disables export.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	LocalDir string `mapstructure:"local_dir"`

	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Region    string `mapstructure:"s3_region"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional metrics/health listener.
// An empty Addr disables the listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EUCTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("register.base_url", "https://www.clinicaltrialsregister.eu/")
	v.SetDefault("register.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.150 Safari/537.36")
	v.SetDefault("register.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	v.SetDefault("http.request_delay_seconds", 10)
	v.SetDefault("http.max_backoff_seconds", 300)
	v.SetDefault("http.max_attempts", 8)
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("output.data_dir", "data")
	v.SetDefault("output.logs_dir", "logs")
	v.SetDefault("storage.provider", "")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Register.BaseURL == "" {
		return fmt.Errorf("register.base_url must be set")
	}
	if c.HTTP.RequestDelaySeconds <= 0 {
		return fmt.Errorf("http.request_delay_seconds must be > 0")
	}
	if c.HTTP.MaxBackoffSeconds < c.HTTP.RequestDelaySeconds {
		return fmt.Errorf("http.max_backoff_seconds must be >= http.request_delay_seconds")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Storage.Provider {
	case "", "local", "gcs", "s3":
	default:
		return fmt.Errorf("storage.provider must be one of \"\", local, gcs, s3")
	}
	if c.Storage.Provider == "gcs" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket must be set for the gcs provider")
	}
	if c.Storage.Provider == "s3" && (c.Storage.Bucket == "" || c.Storage.S3Region == "") {
		return fmt.Errorf("storage.bucket and storage.s3_region must be set for the s3 provider")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local provider")
	}
	return nil
}

// RequestDelay returns the pacing floor between request starts.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.HTTP.RequestDelaySeconds) * time.Second
}

// MaxBackoff returns the backoff ceiling for retries.
func (c Config) MaxBackoff() time.Duration {
	return time.Duration(c.HTTP.MaxBackoffSeconds) * time.Second
}

// RequestTimeout returns the per-request timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
