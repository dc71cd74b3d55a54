package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service       ServiceConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Upload        UploadConfig
	Certification CertificationConfig
	RateLimit     RateLimitConfig
	Telemetry     TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string

	// Controllers are caller IDs allowed to use the admin surface
	// (proposal commit, config writes). Comma-separated UUIDs.
	Controllers []string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds settings for the content-addressed chunk store
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// UploadConfig bounds in-flight upload sessions
type UploadConfig struct {
	BatchTTL         time.Duration
	MaxChunkSize     int64
	MaxChunksPerItem int
}

// CertificationConfig holds response certification settings
type CertificationConfig struct {
	// Version is the default certification version served (1 or 2)
	Version int

	// SigningSeed seeds the local certificate signing key. Empty means
	// a fresh key is generated at startup.
	SigningSeed string
}

// RateLimitConfig throttles the write surface. Limits are requests per
// minute; rate limiting needs Redis and stays off without it.
type RateLimitConfig struct {
	Enabled         bool
	GlobalPerMinute int64
	CallerPerMinute int64
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
			Controllers: getEnvSlice("CONTROLLERS", nil),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "satellite"),
			User:        getEnv("POSTGRES_USER", "satellite"),
			Password:    getEnv("POSTGRES_PASSWORD", "satellite"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Upload: UploadConfig{
			BatchTTL:         getEnvDuration("UPLOAD_BATCH_TTL", 5*time.Minute),
			MaxChunkSize:     int64(getEnvInt("UPLOAD_MAX_CHUNK_SIZE", 2_000_000)),
			MaxChunksPerItem: getEnvInt("UPLOAD_MAX_CHUNKS", 1000),
		},
		Certification: CertificationConfig{
			Version:     getEnvInt("CERTIFICATION_VERSION", 2),
			SigningSeed: getEnv("CERTIFICATION_SIGNING_SEED", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", false),
			GlobalPerMinute: int64(getEnvInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 6000)),
			CallerPerMinute: int64(getEnvInt("RATE_LIMIT_CALLER_PER_MINUTE", 600)),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Certification.Version != 1 && c.Certification.Version != 2 {
		return fmt.Errorf("invalid certification version: %d", c.Certification.Version)
	}

	if c.Upload.MaxChunkSize <= 0 {
		return fmt.Errorf("upload max chunk size must be positive")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
