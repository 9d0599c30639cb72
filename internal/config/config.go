package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig    `mapstructure:"server"`
	Upstream      UpstreamConfig  `mapstructure:"upstream"`
	Database      DatabaseConfig  `mapstructure:"database"`
	Redis         RedisConfig     `mapstructure:"redis"`
	Badger        BadgerConfig    `mapstructure:"badger"`
	Store         StoreConfig     `mapstructure:"store"`
	Recommend     RecommendConfig `mapstructure:"recommend"`
	Log           LogConfig       `mapstructure:"log"`
	CatalogSource string          `mapstructure:"catalog_source" validate:"oneof=upstream postgres"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxWorkers   int           `mapstructure:"max_workers" validate:"min=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig holds the upstream storefront catalog API configuration
type UpstreamConfig struct {
	BaseURL              string   `mapstructure:"base_url" validate:"required_without=Mirrors"`
	Mirrors              []string `mapstructure:"mirrors" validate:"dive,url"`
	HealthPath           string   `mapstructure:"health_path"`
	Timeout              int      `mapstructure:"timeout" validate:"min=1"`
	MaxRetries           int      `mapstructure:"max_retries" validate:"min=0"`
	MaxRequestsPerSecond int      `mapstructure:"max_requests_per_second" validate:"min=1"`
	DefaultCurrency      string   `mapstructure:"default_currency" validate:"len=3"`
	APIKey               string   `mapstructure:"api_key"`

	// Circuit breaker
	BreakerFailures uint32        `mapstructure:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MinIdleTime   int    `mapstructure:"min_idle_time"`
	Enabled       bool   `mapstructure:"enabled"`
}

// Addr returns the redis address.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// BadgerConfig holds the embedded key-value store settings
type BadgerConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// StoreConfig selects the affinity journal backend
type StoreConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=redis badger memory"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RecommendConfig tunes the recommendation engine
type RecommendConfig struct {
	RelatedLimit   int           `mapstructure:"related_limit" validate:"min=1"`
	PriceBand      float64       `mapstructure:"price_band" validate:"gt=0,lt=1"`
	RecentLimit    int           `mapstructure:"recent_limit" validate:"min=0"`
	InterestLimit  int           `mapstructure:"interest_limit" validate:"min=0"`
	TrendingLimit  int           `mapstructure:"trending_limit" validate:"min=0"`
	TopCategories  int           `mapstructure:"top_categories" validate:"min=0"`
	PoolLimit      int           `mapstructure:"pool_limit" validate:"min=1"`
	Seed           int64         `mapstructure:"seed"`
	SectionTimeout time.Duration `mapstructure:"section_timeout"`
	IndexCacheSize int           `mapstructure:"index_cache_size" validate:"min=1"`
	IndexCacheTTL  time.Duration `mapstructure:"index_cache_ttl"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Load loads configuration from YAML file with environment variable overrides.
// A missing config.yaml is not an error: defaults and environment apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.max_workers", 4)

	v.SetDefault("catalog_source", "upstream")

	v.SetDefault("upstream.base_url", "http://localhost:9000/api")
	v.SetDefault("upstream.mirrors", []string{})
	v.SetDefault("upstream.health_path", "/healthz")
	v.SetDefault("upstream.timeout", 10)
	v.SetDefault("upstream.max_retries", 2)
	v.SetDefault("upstream.max_requests_per_second", 50)
	v.SetDefault("upstream.default_currency", "USD")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.breaker_failures", 5)
	v.SetDefault("upstream.breaker_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "storefront")
	v.SetDefault("database.user", "storefront_user")
	v.SetDefault("database.password", "storefront_pass")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "recommender_consumer")
	v.SetDefault("redis.min_idle_time", 120)
	v.SetDefault("redis.enabled", true)

	v.SetDefault("badger.path", "./data/affinity")
	v.SetDefault("badger.in_memory", false)

	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.ttl", 30*24*time.Hour)

	v.SetDefault("recommend.related_limit", 6)
	v.SetDefault("recommend.price_band", 0.3)
	v.SetDefault("recommend.recent_limit", 5)
	v.SetDefault("recommend.interest_limit", 8)
	v.SetDefault("recommend.trending_limit", 8)
	v.SetDefault("recommend.top_categories", 3)
	v.SetDefault("recommend.pool_limit", 200)
	v.SetDefault("recommend.seed", 0)
	v.SetDefault("recommend.section_timeout", 3*time.Second)
	v.SetDefault("recommend.index_cache_size", 128)
	v.SetDefault("recommend.index_cache_ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
