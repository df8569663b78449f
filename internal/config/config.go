package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	MQTT        MQTTConfig
	Validation  ValidationConfig
	Analytics   AnalyticsConfig
	Ingest      IngestConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	WorkerExchange   string
	WorkerRoutingKey string
	DLQQueue         string
	PrefetchCount    int
}

// MQTTConfig holds the optional device heartbeat subscription. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      int
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// AnalyticsConfig holds efficiency analytics settings
type AnalyticsConfig struct {
	WindowHours      int
	HealthyThreshold float64
	WarningThreshold float64
	VehiclePrefix    string
	MeterPrefix      string
}

// IngestConfig holds dual-write behaviour switches
type IngestConfig struct {
	// Transactional wraps the history insert and status upsert in one transaction.
	Transactional bool
	// MonotonicStatus ignores status upserts older than the stored last reading.
	MonotonicStatus bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "ev-telemetry-engine"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8081),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "ev-telemetry.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "ev-telemetry.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "telemetry.reading.#"),
			WorkerExchange:   getEnv("RABBITMQ_WORKER_EXCHANGE", "ev-telemetry.worker.events.exchange"),
			WorkerRoutingKey: getEnv("RABBITMQ_WORKER_ROUTING_KEY", "telemetry.reading.ingested"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "ev-telemetry.ingest.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			ClientID: getEnv("MQTT_CLIENT_ID", "ev-telemetry-engine"),
			Topic:    getEnv("MQTT_TOPIC", "telemetry/+"),
			QoS:      getEnvAsInt("MQTT_QOS", 1),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10080),
		},
		Analytics: AnalyticsConfig{
			WindowHours:      getEnvAsInt("ANALYTICS_WINDOW_HOURS", 24),
			HealthyThreshold: getEnvAsFloat("EFFICIENCY_HEALTHY_THRESHOLD", 0.85),
			WarningThreshold: getEnvAsFloat("EFFICIENCY_WARNING_THRESHOLD", 0.70),
			VehiclePrefix:    getEnv("CORRELATION_VEHICLE_PREFIX", "VEH-"),
			MeterPrefix:      getEnv("CORRELATION_METER_PREFIX", "METER-"),
		},
		Ingest: IngestConfig{
			Transactional:   getEnvAsBool("INGEST_TRANSACTIONAL", false),
			MonotonicStatus: getEnvAsBool("STATUS_MONOTONIC", false),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.Analytics.WindowHours <= 0 {
		return nil, fmt.Errorf("ANALYTICS_WINDOW_HOURS must be positive, got %d", cfg.Analytics.WindowHours)
	}
	if cfg.Analytics.WarningThreshold > cfg.Analytics.HealthyThreshold {
		return nil, fmt.Errorf("EFFICIENCY_WARNING_THRESHOLD (%.2f) must not exceed EFFICIENCY_HEALTHY_THRESHOLD (%.2f)",
			cfg.Analytics.WarningThreshold, cfg.Analytics.HealthyThreshold)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
