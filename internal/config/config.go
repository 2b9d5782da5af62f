package config

import (
	"os"
	"strconv"
	"time"
)

type UnderwritingServiceConfig struct {
	Port         string
	InitialAdmin string
	LogDir       string
	PostgresCfg  PostgresConfig
	RabbitMQCfg  RabbitMQConfig
	RedisCfg     RedisConfig
	MinioCfg     MinioConfig
	EventCfg     EventConfig
}

type MinioConfig struct {
	MinioURL       string
	MinioAccessKey string
	MinioSecretKey string
	MinioLocation  string
	MinioSecure    string
}

type PostgresConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Port     string
}

type RabbitMQConfig struct {
	Username string
	Password string
	Host     string
	Port     string
}

type RedisConfig struct {
	Host            string
	Port            string
	Password        string
	DB              int
	PremiumCacheTTL time.Duration
}

type EventConfig struct {
	NumWorkers int
	QueueSize  int
}

func New() *UnderwritingServiceConfig {
	return &UnderwritingServiceConfig{
		Port:         getEnvOrDefault("PORT", "8090"),
		InitialAdmin: getEnvOrDefault("UNDERWRITING_ADMIN", ""),
		LogDir:       getEnvOrDefault("LOG_DIR", "/agrisa/log/underwriting_service"),
		PostgresCfg: PostgresConfig{
			DBname:   getEnvOrDefault("POSTGRES_DB", "underwriting"),
			Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		},
		RabbitMQCfg: RabbitMQConfig{
			Username: getEnvOrDefault("RABBITMQ_USER", "admin"),
			Password: getEnvOrDefault("RABBITMQ_PWD", "admin"),
			Host:     getEnvOrDefault("RABBITMQ_HOST", "localhost"),
			Port:     getEnvOrDefault("RABBITMQ_PORT", "5672"),
		},
		RedisCfg: RedisConfig{
			Host:            getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:            getEnvOrDefault("REDIS_PORT", "6379"),
			Password:        getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:              getIntEnvOrDefault("REDIS_DB", 0),
			PremiumCacheTTL: getDurationEnvOrDefault("PREMIUM_CACHE_TTL", 10*time.Minute),
		},
		MinioCfg: MinioConfig{
			MinioURL:       getEnvOrDefault("MINIO_ENDPOINT", "http://localhost:9407"),
			MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", "minio"),
			MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", "minio123"),
			MinioLocation:  getEnvOrDefault("MINIO_LOCATION", "us-east-1"),
			MinioSecure:    getEnvOrDefault("MINIO_SECURE", "false"),
		},
		EventCfg: EventConfig{
			NumWorkers: getIntEnvOrDefault("EVENT_WORKERS", 2),
			QueueSize:  getIntEnvOrDefault("EVENT_QUEUE_SIZE", 256),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
