package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config holds all configuration for the agent.
type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Database DatabaseConfig
	AMQP     AMQPConfig
	Backend  BackendConfig
	NewRelic NewRelicConfig
	Logger   LoggerConfig
}

// ServerConfig holds the presentation HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WorkerConfig identifies the worker this agent serves.
type WorkerConfig struct {
	ID string
}

// StoreConfig selects the durable offer store backend.
type StoreConfig struct {
	Backend string // "redis" or "postgres"
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AMQPConfig holds the dispatch channel broker configuration.
type AMQPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
}

// BackendConfig holds the dispatch backend the agent reports decisions to.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// Load loads configuration from the environment, with .env autoload.
func Load() *Config {
	_ = godotenv.Load(".env")

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Worker: WorkerConfig{
			ID: getEnv("WORKER_ID", ""),
		},
		Store: StoreConfig{
			Backend: getEnv("OFFER_STORE_BACKEND", "redis"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       cast.ToInt(getEnv("REDIS_DB", "0")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "courier_agent"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		AMQP: AMQPConfig{
			Host:     getEnv("AMQP_HOST", "localhost"),
			Port:     cast.ToInt(getEnv("AMQP_PORT", "5672")),
			User:     getEnv("AMQP_USER", "guest"),
			Password: getEnv("AMQP_PASSWORD", "guest"),
			VHost:    getEnv("AMQP_VHOST", "/"),
			Exchange: getEnv("AMQP_EXCHANGE", "dispatch"),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:9090"),
			Timeout: getDurationEnv("BACKEND_TIMEOUT", 10*time.Second),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "courier-assignment-agent"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    cast.ToBool(getEnv("NEW_RELIC_ENABLED", "false")),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOGGER_LEVEL", "info"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
