package main

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/septivank/ev-telemetry-engine/internal/correlate"
	"github.com/septivank/ev-telemetry-engine/internal/efficiency"
	"github.com/septivank/ev-telemetry-engine/internal/validator"
)

const (
	readingsPerHour = 60 // 60-second heartbeats

	minEfficiency = 0.70
	maxEfficiency = 0.92

	batteryCapacityKwh = 60.0
)

// generator produces correlated meter/vehicle heartbeat pairs
type generator struct {
	rng        *rand.Rand
	correlator correlate.Correlator
}

func newGenerator(seed int64) *generator {
	return &generator{
		rng:        rand.New(rand.NewSource(seed)),
		correlator: correlate.NewPrefixCorrelator(correlate.DefaultVehiclePrefix, correlate.DefaultMeterPrefix),
	}
}

func vehicleID(n int) string {
	return fmt.Sprintf("%s%03d", correlate.DefaultVehiclePrefix, n)
}

// pair returns one minute of readings for vehicleID and the meter feeding it.
// DC delivered is AC consumed scaled by an efficiency drawn from [minEfficiency, maxEfficiency).
func (g *generator) pair(vehicleID string, ts time.Time) (validator.MeterTelemetry, validator.VehicleTelemetry) {
	kwhAC := 0.1 + g.rng.Float64()*0.15
	eff := minEfficiency + g.rng.Float64()*(maxEfficiency-minEfficiency)
	kwhDC := kwhAC * eff
	voltage := 230 + g.rng.Float64()*20
	batteryTemp := 25 + g.rng.Float64()*15
	soc := kwhDC / batteryCapacityKwh * 100

	stamp := ts.UTC().Format("2006-01-02T15:04:05.000Z07:00")

	meter := validator.MeterTelemetry{
		MeterID:       g.correlator.MeterFor(vehicleID),
		KwhConsumedAC: ptr(efficiency.Round(kwhAC, 4)),
		Voltage:       ptr(efficiency.Round(voltage, 2)),
		Timestamp:     stamp,
	}
	vehicle := validator.VehicleTelemetry{
		VehicleID:      vehicleID,
		SoC:            ptr(min(100, efficiency.Round(soc, 2))),
		KwhDeliveredDC: ptr(efficiency.Round(kwhDC, 4)),
		BatteryTemp:    ptr(efficiency.Round(batteryTemp, 2)),
		Timestamp:      stamp,
	}
	return meter, vehicle
}

// schedule returns the minute timestamps covering the trailing hours before now
func schedule(now time.Time, hours int) []time.Time {
	start := now.Add(-time.Duration(hours) * time.Hour)
	out := make([]time.Time, 0, hours*readingsPerHour)
	for i := 0; i < hours*readingsPerHour; i++ {
		out = append(out, start.Add(time.Duration(i)*time.Minute))
	}
	return out
}

func routingKey(deviceClass string) string {
	return "telemetry.reading." + deviceClass
}

func mqttTopic(prefix, deviceClass string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + deviceClass
}

func ptr(v float64) *float64 { return &v }
