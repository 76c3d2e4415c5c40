package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisAddress string

	// internal secret used for communication between services
	InternalSecret string
	// secret used to sign short-lived service tokens
	ServiceTokenSecret string

	// Kafka mutation-event stream (disabled when brokers is empty)
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string

	// Timeline rebuild tuning
	RebuildWorkers    int
	ReplaceMaxRetries int
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	AppConfig = Config{
		ServerPort:         getEnv("PORT", "8080"),
		Environment:        getEnv("ENV", "development"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "truenth_portal"),
		RedisAddress:       getEnv("REDIS_ADDRESS", "localhost:6379"),
		InternalSecret:     getEnv("INTERNAL_SECRET", "portal-internal-secret"),
		ServiceTokenSecret: getEnv("SERVICE_TOKEN_SECRET", "portal-service-token-secret"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "portal-mutations"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "qb-timeline-invalidator"),
		RebuildWorkers:     getEnvInt("REBUILD_WORKERS", 4),
		ReplaceMaxRetries:  getEnvInt("REPLACE_MAX_RETRIES", 3),
	}
}

// NewLogger builds the shared structured logger. Development gets the
// console writer, everything else ships JSON.
func NewLogger() zerolog.Logger {
	if AppConfig.Environment == "development" {
		return zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: %s is not a number, using default %d", key, defaultValue)
		return defaultValue
	}
	return n
}
