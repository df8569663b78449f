package config

import "testing"

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error when DATABASE_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Analytics.WindowHours != 24 {
		t.Errorf("Expected 24h window, got %d", cfg.Analytics.WindowHours)
	}
	if cfg.Analytics.HealthyThreshold != 0.85 || cfg.Analytics.WarningThreshold != 0.70 {
		t.Errorf("Unexpected thresholds: %+v", cfg.Analytics)
	}
	if cfg.Analytics.VehiclePrefix != "VEH-" || cfg.Analytics.MeterPrefix != "METER-" {
		t.Errorf("Unexpected prefixes: %+v", cfg.Analytics)
	}
	if cfg.Ingest.Transactional || cfg.Ingest.MonotonicStatus {
		t.Errorf("Expected non-transactional, unconditional status writes by default: %+v", cfg.Ingest)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("Expected MQTT disabled by default, got %q", cfg.MQTT.Broker)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ev")
	t.Setenv("INGEST_TRANSACTIONAL", "true")
	t.Setenv("STATUS_MONOTONIC", "1")
	t.Setenv("ANALYTICS_WINDOW_HOURS", "12")
	t.Setenv("RABBITMQ_PREFETCH", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.Ingest.Transactional || !cfg.Ingest.MonotonicStatus {
		t.Errorf("Expected ingest switches enabled: %+v", cfg.Ingest)
	}
	if cfg.Analytics.WindowHours != 12 {
		t.Errorf("Expected 12h window, got %d", cfg.Analytics.WindowHours)
	}
	if cfg.RabbitMQ.PrefetchCount != 10 {
		t.Errorf("Expected fallback prefetch 10, got %d", cfg.RabbitMQ.PrefetchCount)
	}
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ev")
	t.Setenv("EFFICIENCY_HEALTHY_THRESHOLD", "0.6")
	t.Setenv("EFFICIENCY_WARNING_THRESHOLD", "0.7")

	if _, err := Load(); err == nil {
		t.Error("Expected error for warning threshold above healthy threshold")
	}
}
