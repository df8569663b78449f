package timeparser

import (
	"testing"
	"time"
)

func TestParseReadingTimestamp_ISOWithMillis(t *testing.T) {
	result, err := ParseReadingTimestamp("2026-01-31T14:00:00.250Z")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 1, 31, 14, 0, 0, 250_000_000, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadingTimestamp_RFC3339Offset(t *testing.T) {
	result, err := ParseReadingTimestamp("2026-01-31T15:00:00+01:00")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 1, 31, 14, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
	if result.Location() != time.UTC {
		t.Errorf("Expected UTC location, got %v", result.Location())
	}
}

func TestParseReadingTimestamp_LegacyMeterFormats(t *testing.T) {
	expected := time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)

	for _, s := range []string{"29/12/2025 10:30:45", "29 10:30:45/12/2025", "2025-12-29T10:30:45"} {
		result, err := ParseReadingTimestamp(s)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", s, err)
		}
		if !result.Equal(expected) {
			t.Errorf("Expected %v for %q, got %v", expected, s, result)
		}
	}
}

func TestParseReadingTimestamp_Invalid(t *testing.T) {
	if _, err := ParseReadingTimestamp("invalid-date-string"); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}

func TestIsWithinTolerance_WithinRange(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 33, 0, 0, time.UTC)

	if !IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp to be within tolerance")
	}
}

func TestIsWithinTolerance_OutsideRange(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 36, 0, 0, time.UTC)

	if IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp to be outside tolerance")
	}
}

func TestIsWithinTolerance_ExactBoundary(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 35, 0, 0, time.UTC)

	if !IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp at exact boundary to be within tolerance")
	}
}
