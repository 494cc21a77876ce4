// internal/infrastructure/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// App
	AppVersion string
	LogLevel   string

	// Server
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CORSAllowedOrigins []string

	// MongoDB
	MongoURI      string
	MongoDB       string
	MongoUser     string
	MongoPassword string

	// PostgreSQL (status history); empty disables it
	PostgresURI string

	// Redis (sweep lease); empty runs single-replica
	RedisAddr     string
	RedisPassword string

	// Reconciliation
	OverdueSweepInterval time.Duration
	OrphanSweepInterval  time.Duration
	ResubscribeDelay     time.Duration
	ReviewScanLimit      int
	HeartbeatInterval    time.Duration

	// Metrics
	MetricsNamespace string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	// Set defaults and override with env vars
	config := &Config{
		AppVersion: getEnv("APP_VERSION", "1.0.0"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		Port:               getEnv("PORT", "8080"),
		ReadTimeout:        time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout:       time.Duration(getEnvAsInt("WRITE_TIMEOUT", 30)) * time.Second,
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		MongoURI:      getEnv("MONGODB_DSN", "mongodb://localhost:27017"),
		MongoDB:       getEnv("MONGO_DB", "rental"),
		MongoUser:     getEnv("MONGO_USER", ""),
		MongoPassword: getEnv("MONGO_PASSWORD", ""),

		PostgresURI: getEnv("POSTGRES_URI", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OverdueSweepInterval: time.Duration(getEnvAsInt("OVERDUE_SWEEP_INTERVAL", 60)) * time.Second,
		OrphanSweepInterval:  time.Duration(getEnvAsInt("ORPHAN_SWEEP_INTERVAL", 300)) * time.Second,
		ResubscribeDelay:     time.Duration(getEnvAsInt("RESUBSCRIBE_DELAY", 5)) * time.Second,
		ReviewScanLimit:      getEnvAsInt("REVIEW_SCAN_LIMIT", 20),
		HeartbeatInterval:    time.Duration(getEnvAsInt("WS_HEARTBEAT_INTERVAL", 30)) * time.Second,

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "rental_notify"),
	}

	return config, nil
}

// Helper functions to get environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
