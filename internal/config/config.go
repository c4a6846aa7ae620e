package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// StoreBackend selects where guest cart snapshots are persisted.
type StoreBackend string

const (
	StoreFile     StoreBackend = "file"
	StoreRedis    StoreBackend = "redis"
	StorePostgres StoreBackend = "postgres"
	StoreS3       StoreBackend = "s3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Backend   BackendConfig
	Pricing   PricingConfig
	Store     StoreConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	S3        S3Config
	Events    EventsConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int

	// SessionIdle is how long an unused cart session stays in memory.
	SessionIdle time.Duration
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// BackendConfig describes the remote storefront API.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PricingConfig holds the locale-specific shipping rule and currency.
type PricingConfig struct {
	Currency              string
	FreeShippingThreshold float64
	FlatShippingAmount    float64
}

// StoreConfig selects the local cart store.
type StoreConfig struct {
	Backend StoreBackend
	Dir     string // file backend, and local fallback for remote backends

	// LocalFallback mirrors redis, postgres and s3 snapshots into Dir and
	// reads from there when the remote store is unavailable.
	LocalFallback bool
}

// RedisConfig holds Redis connection settings for the redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
}

// S3Config holds AWS S3 configuration for the s3 store.
type S3Config struct {
	Bucket string
	Region string
	Prefix string // key prefix within bucket (e.g., "carts/")
}

// EventsConfig enables publishing settled carts to NATS.
type EventsConfig struct {
	NATSURL string // empty disables publishing
}

// RateLimitConfig bounds requests per client on the gateway.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load loads configuration from environment variables, after preloading
// .env files if present.
func Load() (*Config, error) {
	LoadDotEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),

			SessionIdle: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_URL", ""),
			Timeout: getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),
		},
		Pricing: PricingConfig{
			Currency:              getEnv("CURRENCY", "NGN"),
			FreeShippingThreshold: getEnvAsFloat("FREE_SHIPPING_THRESHOLD", 100),
			FlatShippingAmount:    getEnvAsFloat("FLAT_SHIPPING_AMOUNT", 10),
		},
		Store: StoreConfig{
			Backend: StoreBackend(getEnv("STORE_BACKEND", string(StoreFile))),
			Dir:     getEnv("STORE_DIR", "data/carts"),

			LocalFallback: getEnvAsBool("STORE_LOCAL_FALLBACK", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("REDIS_TTL", 30*24*time.Hour),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "storefront"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 2),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
		},
		S3: S3Config{
			Bucket: getEnv("S3_BUCKET", ""),
			Region: getEnv("S3_REGION", "us-east-1"),
			Prefix: getEnv("S3_PREFIX", "carts/"),
		},
		Events: EventsConfig{
			NATSURL: getEnv("NATS_URL", ""),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst: getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.SessionIdle <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend URL is required")
	}

	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend URL: %s", c.Backend.BaseURL)
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}

	if c.Pricing.Currency == "" {
		return fmt.Errorf("currency is required")
	}

	if c.Pricing.FreeShippingThreshold < 0 || c.Pricing.FlatShippingAmount < 0 {
		return fmt.Errorf("shipping amounts cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if (c.Store.Backend == StoreFile || c.Store.LocalFallback) && c.Store.Dir == "" {
		return fmt.Errorf("store directory is required for the file store")
	}

	switch c.Store.Backend {
	case StoreFile:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis store")
		}
	case StorePostgres:
		if err := c.Database.validate(); err != nil {
			return err
		}
	case StoreS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required for the s3 store")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3 region is required for the s3 store")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be file, redis, postgres, or s3)", c.Store.Backend)
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must allow at least one request")
	}

	return nil
}

func (c *DatabaseConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}

	if c.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration syntax ("15s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
