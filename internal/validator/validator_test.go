package validator

import (
	"errors"
	"testing"
	"time"
)

const testTimestampToleranceMinutes = 5

func ptr(v float64) *float64 { return &v }

func TestValidateMeter_ValidData(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	telemetry := MeterTelemetry{
		MeterID:       "METER-001",
		KwhConsumedAC: ptr(12.5),
		Voltage:       ptr(230),
		Timestamp:     "2025-12-29T10:30:00.000Z",
	}
	receivedAt := time.Date(2025, 12, 29, 10, 32, 0, 0, time.UTC)

	ts, result := v.ValidateMeter(telemetry, receivedAt)
	if !result.IsValid {
		t.Fatalf("Expected valid result, got invalid: %s", result.Reason)
	}

	expected := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	if !ts.Equal(expected) {
		t.Errorf("Expected timestamp %v, got %v", expected, ts)
	}
	if result.Err() != nil {
		t.Errorf("Expected nil error for valid result, got %v", result.Err())
	}
}

func TestValidateMeter_NegativeValue(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	telemetry := MeterTelemetry{
		MeterID:       "METER-001",
		KwhConsumedAC: ptr(-10.5),
		Voltage:       ptr(230),
		Timestamp:     "2025-12-29T10:30:00Z",
	}

	_, result := v.ValidateMeter(telemetry, time.Date(2025, 12, 29, 10, 32, 0, 0, time.UTC))
	if result.IsValid {
		t.Fatal("Expected invalid result for negative value")
	}
	if result.Field != "kwhConsumedAc" || result.Reason != "negative value detected" {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestValidateMeter_EmptyID(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	_, result := v.ValidateMeter(MeterTelemetry{
		MeterID:       "  ",
		KwhConsumedAC: ptr(1),
		Voltage:       ptr(230),
		Timestamp:     "2025-12-29T10:30:00Z",
	}, time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC))

	if result.IsValid || result.Field != "meterId" {
		t.Errorf("Expected meterId to be rejected, got %+v", result)
	}
}

func TestValidateMeter_MissingVoltage(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	_, result := v.ValidateMeter(MeterTelemetry{
		MeterID:       "METER-001",
		KwhConsumedAC: ptr(1),
		Timestamp:     "2025-12-29T10:30:00Z",
	}, time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC))

	if result.IsValid || result.Field != "voltage" {
		t.Errorf("Expected voltage to be rejected, got %+v", result)
	}
}

func TestValidateMeter_InvalidTimestamp(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	_, result := v.ValidateMeter(MeterTelemetry{
		MeterID:       "METER-001",
		KwhConsumedAC: ptr(1),
		Voltage:       ptr(230),
		Timestamp:     "yesterday",
	}, time.Now())

	if result.IsValid || result.Field != "timestamp" {
		t.Errorf("Expected timestamp to be rejected, got %+v", result)
	}
}

func TestValidateVehicle_ValidData(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	telemetry := VehicleTelemetry{
		VehicleID:      "VEH-001",
		SoC:            ptr(100),
		KwhDeliveredDC: ptr(0),
		BatteryTemp:    ptr(-5.5),
		Timestamp:      "2025-12-29T10:30:00Z",
	}

	_, result := v.ValidateVehicle(telemetry, time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC))
	if !result.IsValid {
		t.Errorf("Expected valid result, got invalid: %s", result.Reason)
	}
}

func TestValidateVehicle_SoCOutOfRange(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	_, result := v.ValidateVehicle(VehicleTelemetry{
		VehicleID:      "VEH-001",
		SoC:            ptr(100.5),
		KwhDeliveredDC: ptr(1),
		BatteryTemp:    ptr(30),
		Timestamp:      "2025-12-29T10:30:00Z",
	}, time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC))

	if result.IsValid || result.Field != "soc" {
		t.Errorf("Expected soc to be rejected, got %+v", result)
	}
}

func TestValidateVehicle_MissingBatteryTemp(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	_, result := v.ValidateVehicle(VehicleTelemetry{
		VehicleID:      "VEH-001",
		SoC:            ptr(50),
		KwhDeliveredDC: ptr(1),
		Timestamp:      "2025-12-29T10:30:00Z",
	}, time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC))

	if result.IsValid || result.Field != "batteryTemp" {
		t.Errorf("Expected batteryTemp to be rejected, got %+v", result)
	}
}

func TestValidateVehicle_TimestampOutsideTolerance(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	telemetry := VehicleTelemetry{
		VehicleID:      "VEH-001",
		SoC:            ptr(50),
		KwhDeliveredDC: ptr(1),
		BatteryTemp:    ptr(30),
		Timestamp:      "2025-12-29T10:30:00Z",
	}

	_, result := v.ValidateVehicle(telemetry, time.Date(2025, 12, 29, 10, 40, 0, 0, time.UTC))
	if result.IsValid {
		t.Fatal("Expected invalid result for timestamp outside tolerance")
	}

	var vErr *ValidationError
	if !errors.As(result.Err(), &vErr) || vErr.Field != "timestamp" {
		t.Errorf("Expected *ValidationError on timestamp, got %v", result.Err())
	}
}

func TestValidateVehicle_ToleranceDisabled(t *testing.T) {
	v := NewValidator(0)

	_, result := v.ValidateVehicle(VehicleTelemetry{
		VehicleID:      "VEH-001",
		SoC:            ptr(50),
		KwhDeliveredDC: ptr(1),
		BatteryTemp:    ptr(30),
		Timestamp:      "2020-01-01T00:00:00Z",
	}, time.Date(2025, 12, 29, 10, 40, 0, 0, time.UTC))

	if !result.IsValid {
		t.Errorf("Expected tolerance check to be disabled, got %+v", result)
	}
}
