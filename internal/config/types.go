package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Gallery  GalleryConfig  `mapstructure:"gallery"`
	Download DownloadConfig `mapstructure:"download"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// APIConfig holds the server connection details
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

// AuthConfig selects where the access token is kept
type AuthConfig struct {
	Store         string        `mapstructure:"store"` // memory, file, redis
	File          string        `mapstructure:"file"`
	RedisKey      string        `mapstructure:"redis_key"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	RedirectDelay time.Duration `mapstructure:"redirect_delay"`
}

// RedisConfig holds the Redis connection used by the token store and image cache
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// BlobConfig configures image handles
type BlobConfig struct {
	Cache      bool          `mapstructure:"cache"`
	Origin     string        `mapstructure:"origin"`
	StaleGrace time.Duration `mapstructure:"stale_grace"`
}

// GalleryConfig configures paging
type GalleryConfig struct {
	Limit       int `mapstructure:"limit"`
	Concurrency int `mapstructure:"concurrency"`
}

// DownloadConfig configures where downloads are saved
type DownloadConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // auto, console, json
	Color  bool   `mapstructure:"color"`
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Auth.Store == StoreRedis || c.Blob.Cache
}
