package validator

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/septivank/ev-telemetry-engine/tools/timeparser"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Field   string
	Reason  string
}

// Err converts an invalid result into a *ValidationError, nil otherwise
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Field: r.Field, Reason: r.Reason}
}

// ValidationError reports a malformed telemetry payload
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// MeterTelemetry is the wire form of a grid meter heartbeat
type MeterTelemetry struct {
	MeterID       string   `json:"meterId"`
	KwhConsumedAC *float64 `json:"kwhConsumedAc"`
	Voltage       *float64 `json:"voltage"`
	Timestamp     string   `json:"timestamp"`
}

// VehicleTelemetry is the wire form of a vehicle charging heartbeat
type VehicleTelemetry struct {
	VehicleID      string   `json:"vehicleId"`
	SoC            *float64 `json:"soc"`
	KwhDeliveredDC *float64 `json:"kwhDeliveredDc"`
	BatteryTemp    *float64 `json:"batteryTemp"`
	Timestamp      string   `json:"timestamp"`
}

// Validator handles telemetry validation with configurable parameters
type Validator struct {
	timestampToleranceMinutes int
}

// NewValidator creates a new validator with the specified tolerance.
// A tolerance of zero or less disables the received-time check.
func NewValidator(timestampToleranceMinutes int) *Validator {
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
	}
}

// ValidateMeter validates a meter heartbeat and returns its parsed timestamp
func (v *Validator) ValidateMeter(t MeterTelemetry, receivedAt time.Time) (time.Time, ValidationResult) {
	if strings.TrimSpace(t.MeterID) == "" {
		return time.Time{}, invalid("meterId", "must not be empty")
	}
	if r := nonNegative("kwhConsumedAc", t.KwhConsumedAC); !r.IsValid {
		return time.Time{}, r
	}
	if r := nonNegative("voltage", t.Voltage); !r.IsValid {
		return time.Time{}, r
	}
	return v.validateTimestamp(t.Timestamp, receivedAt)
}

// ValidateVehicle validates a vehicle heartbeat and returns its parsed timestamp
func (v *Validator) ValidateVehicle(t VehicleTelemetry, receivedAt time.Time) (time.Time, ValidationResult) {
	if strings.TrimSpace(t.VehicleID) == "" {
		return time.Time{}, invalid("vehicleId", "must not be empty")
	}
	if r := required("soc", t.SoC); !r.IsValid {
		return time.Time{}, r
	}
	if *t.SoC < 0 || *t.SoC > 100 {
		return time.Time{}, invalid("soc", "must be between 0 and 100")
	}
	if r := nonNegative("kwhDeliveredDc", t.KwhDeliveredDC); !r.IsValid {
		return time.Time{}, r
	}
	if r := required("batteryTemp", t.BatteryTemp); !r.IsValid {
		return time.Time{}, r
	}
	return v.validateTimestamp(t.Timestamp, receivedAt)
}

func (v *Validator) validateTimestamp(raw string, receivedAt time.Time) (time.Time, ValidationResult) {
	if raw == "" {
		return time.Time{}, invalid("timestamp", "is required")
	}

	readingTime, err := timeparser.ParseReadingTimestamp(raw)
	if err != nil {
		return time.Time{}, invalid("timestamp", fmt.Sprintf("invalid timestamp format: %v", err))
	}

	if v.timestampToleranceMinutes > 0 &&
		!timeparser.IsWithinTolerance(readingTime, receivedAt, v.timestampToleranceMinutes) {
		return readingTime, invalid("timestamp",
			fmt.Sprintf("outside tolerance window (±%d minutes)", v.timestampToleranceMinutes))
	}

	return readingTime, ValidationResult{IsValid: true}
}

func required(field string, value *float64) ValidationResult {
	if value == nil {
		return invalid(field, "is required")
	}
	if math.IsNaN(*value) || math.IsInf(*value, 0) {
		return invalid(field, "must be a finite number")
	}
	return ValidationResult{IsValid: true}
}

func nonNegative(field string, value *float64) ValidationResult {
	if r := required(field, value); !r.IsValid {
		return r
	}
	if *value < 0 {
		return invalid(field, "negative value detected")
	}
	return ValidationResult{IsValid: true}
}

func invalid(field, reason string) ValidationResult {
	return ValidationResult{IsValid: false, Field: field, Reason: reason}
}
