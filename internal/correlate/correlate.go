package correlate

import "strings"

// Default vehicle and meter identifier prefixes (VEH-042 charges through METER-042).
const (
	DefaultVehiclePrefix = "VEH-"
	DefaultMeterPrefix   = "METER-"
)

// Correlator maps a vehicle identifier to the meter identifier it charges through
type Correlator interface {
	MeterFor(vehicleID string) string
}

// Func adapts a plain function to the Correlator interface
type Func func(vehicleID string) string

// MeterFor calls f(vehicleID)
func (f Func) MeterFor(vehicleID string) string {
	return f(vehicleID)
}

// PrefixCorrelator derives the meter id by swapping the vehicle prefix for the meter prefix.
// Identifiers without the vehicle prefix are returned unchanged.
type PrefixCorrelator struct {
	vehiclePrefix string
	meterPrefix   string
}

// NewPrefixCorrelator creates a correlator for the given prefixes
func NewPrefixCorrelator(vehiclePrefix, meterPrefix string) *PrefixCorrelator {
	return &PrefixCorrelator{
		vehiclePrefix: vehiclePrefix,
		meterPrefix:   meterPrefix,
	}
}

// MeterFor returns the paired meter id for vehicleID
func (c *PrefixCorrelator) MeterFor(vehicleID string) string {
	if c.vehiclePrefix == "" || !strings.HasPrefix(vehicleID, c.vehiclePrefix) {
		return vehicleID
	}
	return c.meterPrefix + strings.TrimPrefix(vehicleID, c.vehiclePrefix)
}
