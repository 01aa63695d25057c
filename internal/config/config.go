package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Authz    AuthzConfig    `mapstructure:"authz"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Address             string `mapstructure:"address"`
	GRPCAddress         string `mapstructure:"grpc_address"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

// ReadTimeout returns the HTTP read timeout
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the HTTP write timeout
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// CacheConfig holds resolution cache configuration
type CacheConfig struct {
	Type       string           `mapstructure:"type"` // "none", "memory", "redis"
	Enabled    bool             `mapstructure:"enabled"`
	TTLSeconds int              `mapstructure:"ttl_seconds"`
	MaxSize    int              `mapstructure:"max_size"`
	Redis      RedisCacheConfig `mapstructure:"redis"`
}

// TTL returns the freshness window of a cached permission set
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RedisCacheConfig holds Redis cache configuration
type RedisCacheConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// AuthzConfig holds guard and token settings
type AuthzConfig struct {
	// ExposeGrantedPermissions adds the caller's effective permissions to
	// forbidden responses. Debug only.
	ExposeGrantedPermissions bool   `mapstructure:"expose_granted_permissions"`
	JWTSecret                string `mapstructure:"jwt_secret"`
	JWTIssuer                string `mapstructure:"jwt_issuer"`
	AdminRateLimitPerMinute  int    `mapstructure:"admin_rate_limit_per_minute"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text", "json"
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file details
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/crm-authz")

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("AUTHZ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the application cannot start with
func (c *Config) Validate() error {
	switch strings.ToLower(c.Cache.Type) {
	case "", "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache type: %s (valid: none, memory, redis)", c.Cache.Type)
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must not be negative, got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must not be negative, got %d", c.Cache.MaxSize)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Log.Format)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.grpc_address", ":9090")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "crm_authz")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.max_idle", 5)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_seconds", 300) // 5 minutes
	v.SetDefault("cache.max_size", 10000)

	// Redis cache defaults
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "authz")

	// Authz defaults
	v.SetDefault("authz.expose_granted_permissions", false)
	v.SetDefault("authz.jwt_secret", "")
	v.SetDefault("authz.jwt_issuer", "crm-authz")
	v.SetDefault("authz.admin_rate_limit_per_minute", 120)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.address")
	v.BindEnv("server.grpc_address")
	v.BindEnv("server.read_timeout_seconds")
	v.BindEnv("server.write_timeout_seconds")

	// Database
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("database.max_conns")
	v.BindEnv("database.max_idle")

	// Cache
	v.BindEnv("cache.type")
	v.BindEnv("cache.enabled")
	v.BindEnv("cache.ttl_seconds")
	v.BindEnv("cache.max_size")

	// Redis Cache
	v.BindEnv("cache.redis.address")
	v.BindEnv("cache.redis.password")
	v.BindEnv("cache.redis.db")
	v.BindEnv("cache.redis.key_prefix")

	// Authz
	v.BindEnv("authz.expose_granted_permissions")
	v.BindEnv("authz.jwt_secret")
	v.BindEnv("authz.jwt_issuer")
	v.BindEnv("authz.admin_rate_limit_per_minute")

	// Log
	v.BindEnv("log.level")
	v.BindEnv("log.format")
}
