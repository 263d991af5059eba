// Package config loads runtime configuration for the market-data fan-out
// service from environment variables, with viper defaults and an optional
// config-file override.
package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for odin-marketfeed.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	NodeID   string         `mapstructure:"node_id"`
}

// ServerConfig contains network-level settings for the HTTP/WebSocket listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	WSPath       string        `mapstructure:"ws_path"`
}

// RedisConfig points at the shared key-value+stream store used for the
// tier-2 cache, leader election, and the append-only snapshot stream.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// FetchConfig controls the periodic driver's tick cadence.
type FetchConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// UpstreamConfig holds third-party API credentials. An empty field means the
// corresponding source or fallback is skipped, not retried with an empty key.
type UpstreamConfig struct {
	TaapiSecret   string `mapstructure:"taapi_secret"`
	CMCAPIKey     string `mapstructure:"cmc_api_key"`
	FinnhubAPIKey string `mapstructure:"finnhub_api_key"`
}

// MetricsConfig controls the Prometheus diagnostics endpoint.
type MetricsConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig controls zap logger level/encoding.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from the recognized environment variables,
// falling back to documented defaults.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.ws_path", "/ws")

	v.SetDefault("redis.url", "redis://127.0.0.1:6379")

	v.SetDefault("fetch.interval_seconds", 5)

	v.SetDefault("metrics.listen_addr", ":9095")
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.service_name", "odin-marketfeed")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("node_id", "node-"+uuid.NewString())

	_ = v.BindEnv("server.host", "HOST")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("redis.url", "REDIS_URL")
	_ = v.BindEnv("fetch.interval_seconds", "FETCH_INTERVAL_SECONDS")
	_ = v.BindEnv("upstream.taapi_secret", "TAAPI_SECRET")
	_ = v.BindEnv("upstream.cmc_api_key", "CMC_API_KEY")
	_ = v.BindEnv("upstream.finnhub_api_key", "FINNHUB_API_KEY")
	_ = v.BindEnv("node_id", "NODE_ID")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")

	v.SetConfigName("odin-marketfeed")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if cfg.Fetch.IntervalSeconds <= 0 {
		cfg.Fetch.IntervalSeconds = 5
	}

	return cfg, nil
}
