// Package config loads the CLI configuration from defaults, an optional
// YAML file and FLASKION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// EnvPrefix prefixes every environment override, e.g. FLASKION_API_BASE_URL.
const EnvPrefix = "FLASKION"

// Load loads the configuration. An empty configPath searches ./config.yaml,
// ~/.flaskion/config.yaml and /etc/flaskion/config.yaml; finding none is
// not an error. v may carry flag bindings and is created when nil.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".flaskion"))
		}
		v.AddConfigPath("/etc/flaskion/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Auth.Store == StoreFile && cfg.Auth.File == "" {
		cfg.Auth.File = defaultTokenFile()
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", 60*time.Second)
	v.SetDefault("api.retry_max", 2)

	v.SetDefault("auth.store", StoreFile)
	v.SetDefault("auth.file", "")
	v.SetDefault("auth.redis_key", "flaskion:auth:access_token")
	v.SetDefault("auth.token_ttl", 0)
	v.SetDefault("auth.redirect_delay", 800*time.Millisecond)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("blob.cache", false)
	v.SetDefault("blob.origin", "flaskion-client")
	v.SetDefault("blob.stale_grace", 24*time.Hour)

	v.SetDefault("gallery.limit", 20)
	v.SetDefault("gallery.concurrency", 6)

	v.SetDefault("download.dir", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")
	v.SetDefault("logging.color", true)

	v.SetDefault("metrics.addr", "")
}

func defaultTokenFile() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "flaskion", "token.yaml")
	}
	return ".flaskion-token.yaml"
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL: %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if cfg.API.RetryMax < 0 {
		return fmt.Errorf("api.retry_max must be >= 0 (got %d)", cfg.API.RetryMax)
	}

	switch cfg.Auth.Store {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("invalid auth.store: %s (must be 'memory', 'file' or 'redis')", cfg.Auth.Store)
	}
	if cfg.Auth.RedirectDelay < 0 {
		return fmt.Errorf("auth.redirect_delay must be >= 0")
	}

	if cfg.UsesRedis() && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when auth.store is redis or blob.cache is enabled")
	}

	if cfg.Gallery.Limit <= 0 {
		return fmt.Errorf("gallery.limit must be positive (got %d)", cfg.Gallery.Limit)
	}
	if cfg.Gallery.Concurrency <= 0 {
		return fmt.Errorf("gallery.concurrency must be positive (got %d)", cfg.Gallery.Concurrency)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	validFormats := map[string]bool{
		"auto":    true,
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
