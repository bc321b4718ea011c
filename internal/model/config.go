package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ServerConfig holds the notification API connection settings.
type ServerConfig struct {
	// BaseURL is the root of the REST API (e.g., https://school.example/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec" validate:"min=1"`
}

// SyncConfig controls the notification sync engine.
type SyncConfig struct {
	AutoRefresh bool `mapstructure:"auto_refresh" yaml:"auto_refresh"`

	// RefreshIntervalSec is how often (in seconds) to poll for updates.
	RefreshIntervalSec int `mapstructure:"refresh_interval_sec" yaml:"refresh_interval_sec" validate:"min=1"`

	// Type and Status narrow the default inbox view. Empty means all.
	Type   string `mapstructure:"type" yaml:"type"`
	Status string `mapstructure:"status" yaml:"status" validate:"omitempty,oneof=SENT DELIVERED READ ARCHIVED"`
}

// ToastConfig holds toast presentation settings.
type ToastConfig struct {
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec" validate:"min=1"`
}

// LogConfig holds logging preferences. The terminal UI owns stdout, so
// logs always go to a file.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	File  string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig enables the optional Prometheus endpoint.
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// CacheConfig points at the local SQLite cache.
type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Toast   ToastConfig   `mapstructure:"toast" yaml:"toast"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// configDir returns ~/.config/healthnotify, falling back to the working
// directory when the home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "healthnotify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/healthnotify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		Server: ServerConfig{
			BaseURL:    "http://localhost:8080/api",
			TimeoutSec: 15,
		},
		Sync: SyncConfig{
			AutoRefresh:        true,
			RefreshIntervalSec: 30,
		},
		Toast: ToastConfig{TimeoutSec: 5},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "healthnotify.log"),
		},
		Cache:   CacheConfig{Path: filepath.Join(dir, "cache.db")},
		Display: DisplayConfig{Theme: "default"},
	}
}

// setDefaults mirrors defaultAppConfig into viper so missing keys
// resolve to sensible values.
func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	v.SetDefault("sync.auto_refresh", d.Sync.AutoRefresh)
	v.SetDefault("sync.refresh_interval_sec", d.Sync.RefreshIntervalSec)
	v.SetDefault("sync.type", "")
	v.SetDefault("sync.status", "")
	v.SetDefault("toast.timeout_sec", d.Toast.TimeoutSec)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("display.theme", d.Display.Theme)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults are used. Environment variables
// prefixed with HEALTHNOTIFY_ override file values
// (e.g., HEALTHNOTIFY_SERVER_BASE_URL).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("healthnotify")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// configValidator is shared because validator caches struct metadata.
var configValidator = validator.New()

// ValidateConfig checks field constraints declared in struct tags.
func ValidateConfig(cfg *AppConfig) error {
	return configValidator.Struct(cfg)
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("sync", cfg.Sync)
	v.Set("toast", cfg.Toast)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)
	v.Set("cache", cfg.Cache)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Filter returns the inbox filter described by the sync section.
func (c SyncConfig) Filter() Filter {
	return Filter{Type: Type(c.Type), Status: Status(c.Status)}
}
