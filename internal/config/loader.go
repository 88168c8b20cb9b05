// Package config provides centralized configuration management for Greater.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	appName   = "greater"
	EnvPrefix = "GREATER"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// NewViper builds a viper instance with defaults, the environment layer and,
// when present, the config file. An empty path searches the default
// locations; a missing default file is not an error.
func NewViper(path string) (*viper.Viper, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	if dir := DefaultConfigDir(); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes the layered settings of v into a Config and stores it as
// the current configuration.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Instance = NormalizeInstance(cfg.Instance)
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)
	return cfg, nil
}

// SetDefaults registers every known key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("instance", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("client.timeout", "10s")
	v.SetDefault("client.cache_ttl", "60s")
	v.SetDefault("client.user_agent", "greater")
	v.SetDefault("client.validate", true)

	v.SetDefault("rate_limit.max_requests", 300)
	v.SetDefault("rate_limit.window", "5m")
	v.SetDefault("rate_limit.initial_backoff", "1s")
	v.SetDefault("rate_limit.max_backoff", "60s")
	v.SetDefault("rate_limit.multiplier", 2.0)
	v.SetDefault("rate_limit.persist", true)

	v.SetDefault("stream.max_reconnect_attempts", 5)
	v.SetDefault("stream.base_delay", "1s")
	v.SetDefault("stream.max_delay", "30s")
	v.SetDefault("stream.heartbeat_interval", "30s")

	v.SetDefault("offline.max_retries", 3)
	v.SetDefault("offline.sync_interval", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
}

// DefaultYAML renders the default configuration as a YAML document.
func DefaultYAML() ([]byte, error) {
	v := viper.New()
	SetDefaults(v)
	return yaml.Marshal(v.AllSettings())
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// NormalizeInstance reduces an instance reference to its lowercase host.
func NormalizeInstance(instance string) string {
	instance = strings.ToLower(strings.TrimSpace(instance))
	instance = strings.TrimPrefix(instance, "https://")
	instance = strings.TrimPrefix(instance, "http://")
	return strings.TrimRight(instance, "/")
}

// DefaultConfigDir returns the XDG config directory for the app.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, appName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultDataDir returns the XDG data directory for the app.
func DefaultDataDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "share", appName)
}

// DefaultStorePath returns the path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if dataDir == "" {
		return "./" + appName + ".db"
	}
	return filepath.Join(dataDir, appName+".db")
}
