// Package config provides typed configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Core        CoreConfig        `mapstructure:"core"`
	Auth        AuthConfig        `mapstructure:"auth"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Analytics   AnalyticsConfig   `mapstructure:"analytics"`
	Crash       CrashConfig       `mapstructure:"crash"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Host        HostConfig        `mapstructure:"host"`
}

// CoreConfig holds core application settings.
type CoreConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// AuthConfig holds identity provider and sign-in flow settings.
type AuthConfig struct {
	APIKey           string `mapstructure:"api_key"`
	WebClientID      string `mapstructure:"web_client_id"`
	ClientSecret     string `mapstructure:"client_secret"`
	RedirectPort     int    `mapstructure:"redirect_port"`
	IdentityEndpoint string `mapstructure:"identity_endpoint"`
	TokenEndpoint    string `mapstructure:"token_endpoint"`
}

// HTTPConfig holds request dispatcher settings.
type HTTPConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// AnalyticsConfig holds analytics settings.
type AnalyticsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// CrashConfig holds crash reporter settings.
type CrashConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsPath string `mapstructure:"credentials_path"`
	Endpoint        string `mapstructure:"endpoint"`
	RetentionDays   int    `mapstructure:"retention_days"`
	MaxBreadcrumbs  int    `mapstructure:"max_breadcrumbs"`
}

// PerformanceConfig holds Cloud Monitoring export settings.
type PerformanceConfig struct {
	ProjectID       string        `mapstructure:"project_id"`
	CredentialsPath string        `mapstructure:"credentials_path"`
	MetricPrefix    string        `mapstructure:"metric_prefix"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	DryRun          bool          `mapstructure:"dry_run"`
}

// HostConfig holds host loop settings.
type HostConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// Load loads configuration from defaults, environment and the optional
// ~/.firebridge/config.yaml.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// ~/.firebridge and the working directory; an explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// .env is optional
	_ = loadEnvFile(v)

	v.SetEnvPrefix("FIREBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			v.SetConfigType(ext)
		}
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := loadConfigFile(v); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("core.data_dir", getDefaultDataDir())
	v.SetDefault("core.log_level", "info")
	v.SetDefault("core.log_json", false)

	v.SetDefault("auth.redirect_port", 0)

	v.SetDefault("http.connect_timeout", 15*time.Second)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)

	v.SetDefault("analytics.enabled", true)

	v.SetDefault("crash.prefix", "crash-reports/")
	v.SetDefault("crash.retention_days", 90)
	v.SetDefault("crash.max_breadcrumbs", 64)

	v.SetDefault("performance.metric_prefix", "custom.googleapis.com/firebridge")
	v.SetDefault("performance.flush_interval", 60*time.Second)
	v.SetDefault("performance.batch_size", 200)
	v.SetDefault("performance.dry_run", false)

	v.SetDefault("host.history_size", 1000)
}

func bindEnvVars(v *viper.Viper) {
	// Core
	_ = v.BindEnv("core.data_dir", "FIREBRIDGE_DATA_DIR")
	_ = v.BindEnv("core.log_level", "FIREBRIDGE_LOG_LEVEL")
	_ = v.BindEnv("core.log_json", "FIREBRIDGE_LOG_JSON")

	// Auth
	_ = v.BindEnv("auth.api_key", "FIREBRIDGE_API_KEY")
	_ = v.BindEnv("auth.web_client_id", "FIREBRIDGE_WEB_CLIENT_ID")
	_ = v.BindEnv("auth.client_secret", "FIREBRIDGE_CLIENT_SECRET")
	_ = v.BindEnv("auth.redirect_port", "FIREBRIDGE_REDIRECT_PORT")
	_ = v.BindEnv("auth.identity_endpoint", "FIREBRIDGE_IDENTITY_ENDPOINT")
	_ = v.BindEnv("auth.token_endpoint", "FIREBRIDGE_TOKEN_ENDPOINT")

	// HTTP
	_ = v.BindEnv("http.connect_timeout", "FIREBRIDGE_HTTP_CONNECT_TIMEOUT")
	_ = v.BindEnv("http.max_body_bytes", "FIREBRIDGE_HTTP_MAX_BODY_BYTES")

	_ = v.BindEnv("analytics.enabled", "FIREBRIDGE_ANALYTICS_ENABLED")

	// Crash
	_ = v.BindEnv("crash.bucket", "FIREBRIDGE_CRASH_BUCKET")
	_ = v.BindEnv("crash.prefix", "FIREBRIDGE_CRASH_PREFIX")
	_ = v.BindEnv("crash.credentials_path", "FIREBRIDGE_CRASH_CREDENTIALS_PATH")
	_ = v.BindEnv("crash.endpoint", "FIREBRIDGE_CRASH_ENDPOINT")
	_ = v.BindEnv("crash.retention_days", "FIREBRIDGE_CRASH_RETENTION_DAYS")
	_ = v.BindEnv("crash.max_breadcrumbs", "FIREBRIDGE_CRASH_MAX_BREADCRUMBS")

	// Performance
	_ = v.BindEnv("performance.project_id", "FIREBRIDGE_GCP_PROJECT_ID")
	_ = v.BindEnv("performance.credentials_path", "FIREBRIDGE_GCP_CREDENTIALS_PATH")
	_ = v.BindEnv("performance.metric_prefix", "FIREBRIDGE_GCP_METRIC_PREFIX")
	_ = v.BindEnv("performance.flush_interval", "FIREBRIDGE_GCP_FLUSH_INTERVAL")
	_ = v.BindEnv("performance.batch_size", "FIREBRIDGE_GCP_BATCH_SIZE")
	_ = v.BindEnv("performance.dry_run", "FIREBRIDGE_GCP_DRY_RUN")

	_ = v.BindEnv("host.history_size", "FIREBRIDGE_HOST_HISTORY_SIZE")
}

// loadEnvFile loads .env file if it exists.
func loadEnvFile(v *viper.Viper) error {
	if _, err := os.Stat(".env"); err == nil {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		return v.MergeInConfig()
	}
	return nil
}

// loadConfigFile loads config.yaml if it exists.
func loadConfigFile(v *viper.Viper) error {
	v.SetConfigFile("")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".firebridge"))
	}
	v.AddConfigPath(".")
	return v.MergeInConfig()
}

// getDefaultDataDir returns the default data directory.
func getDefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".firebridge/data"
	}
	return filepath.Join(home, ".firebridge", "data")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.HTTP.ConnectTimeout <= 0 {
		return fmt.Errorf("http.connect_timeout must be positive")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive")
	}
	if c.Auth.RedirectPort < 0 || c.Auth.RedirectPort > 65535 {
		return fmt.Errorf("auth.redirect_port out of range: %d", c.Auth.RedirectPort)
	}
	if c.Crash.MaxBreadcrumbs < 0 {
		return fmt.Errorf("crash.max_breadcrumbs must not be negative")
	}
	if c.Performance.ProjectID != "" {
		if c.Performance.BatchSize <= 0 {
			return fmt.Errorf("performance.batch_size must be positive")
		}
		if c.Performance.FlushInterval <= 0 {
			return fmt.Errorf("performance.flush_interval must be positive")
		}
	}
	return nil
}

// IsIdentityEnabled returns true if a Firebase API key is configured.
func (c *Config) IsIdentityEnabled() bool {
	return c.Auth.APIKey != ""
}

// IsPerformanceEnabled returns true if Cloud Monitoring export is configured.
func (c *Config) IsPerformanceEnabled() bool {
	return c.Performance.ProjectID != ""
}

// IsCrashUploadEnabled returns true if a crash report bucket is configured.
func (c *Config) IsCrashUploadEnabled() bool {
	return c.Crash.Bucket != ""
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Core.DataDir, "firebridge.db")
}
