package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Storage configuration
	StorageBackend string // memory | dynamodb
	AWSRegion      string
	DynamoDBTable  string
	BoardIndexName string // GSI1 - for listing boards

	// Realtime configuration
	WebSocketPath     string
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageBytes   int64
	ClientSendBacklog int

	// Cache configuration
	SnapshotTTL time.Duration

	// Logging
	LogLevel string

	// Feature flags
	EnableCORS bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress:  getEnv("SERVER_ADDRESS", ":8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		AWSRegion:      getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:  getEnv("TABLE_NAME", "storyboard"),
		BoardIndexName: getEnv("BOARD_INDEX_NAME", "BoardIndex"),

		WebSocketPath:     getEnv("WEBSOCKET_PATH", "/ws"),
		WriteTimeout:      getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		PongTimeout:       getEnvDuration("WS_PONG_TIMEOUT", 60*time.Second),
		PingInterval:      getEnvDuration("WS_PING_INTERVAL", 54*time.Second),
		MaxMessageBytes:   int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 65536)),
		ClientSendBacklog: getEnvInt("WS_SEND_BACKLOG", 256),

		SnapshotTTL: getEnvDuration("SNAPSHOT_TTL", 5*time.Minute),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		EnableCORS: getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory", "dynamodb":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.StorageBackend == "dynamodb" && c.DynamoDBTable == "" {
		return fmt.Errorf("TABLE_NAME is required")
	}
	if c.PingInterval >= c.PongTimeout {
		return fmt.Errorf("WS_PING_INTERVAL must be shorter than WS_PONG_TIMEOUT")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
