package db

import (
	"time"

	"github.com/google/uuid"
)

// MeterReadingHistory is one append-only grid meter reading
type MeterReadingHistory struct {
	ID            uuid.UUID
	MeterID       string
	KwhConsumedAC float64
	Voltage       float64
	Timestamp     time.Time
	CreatedAt     time.Time
}

// MeterStatus is the current state of a meter, one row per meter
type MeterStatus struct {
	MeterID       string    `json:"meterId"`
	KwhConsumedAC float64   `json:"kwhConsumedAc"`
	Voltage       float64   `json:"voltage"`
	LastReading   time.Time `json:"lastReading"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// VehicleReadingHistory is one append-only vehicle charging reading
type VehicleReadingHistory struct {
	ID             uuid.UUID
	VehicleID      string
	SoC            float64
	KwhDeliveredDC float64
	BatteryTemp    float64
	Timestamp      time.Time
	CreatedAt      time.Time
}

// VehicleStatus is the current state of a vehicle, one row per vehicle
type VehicleStatus struct {
	VehicleID      string    `json:"vehicleId"`
	SoC            float64   `json:"soc"`
	KwhDeliveredDC float64   `json:"kwhDeliveredDc"`
	BatteryTemp    float64   `json:"batteryTemp"`
	LastReading    time.Time `json:"lastReading"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// MeterWindowAggregate holds meter history totals over a time window
type MeterWindowAggregate struct {
	TotalKwhConsumedAC float64
	ReadingsCount      int64
}

// VehicleWindowAggregate holds vehicle history totals over a time window
type VehicleWindowAggregate struct {
	TotalKwhDeliveredDC float64
	AvgBatteryTemp      float64
	ReadingsCount       int64
}
