package efficiency

import (
	"github.com/shopspring/decimal"
)

// HealthStatus classifies a charging pair by its AC→DC conversion efficiency
type HealthStatus string

const (
	Healthy  HealthStatus = "HEALTHY"
	Warning  HealthStatus = "WARNING"
	Critical HealthStatus = "CRITICAL"
)

// Default classification thresholds
const (
	DefaultHealthyThreshold = 0.85
	DefaultWarningThreshold = 0.70
)

// Classifier handles health classification with configurable thresholds
type Classifier struct {
	healthyThreshold float64
	warningThreshold float64
}

// NewClassifier creates a new classifier with the specified lower bounds
func NewClassifier(healthyThreshold, warningThreshold float64) *Classifier {
	return &Classifier{
		healthyThreshold: healthyThreshold,
		warningThreshold: warningThreshold,
	}
}

// Classify returns the health band for ratio. Each band includes its lower bound.
func (c *Classifier) Classify(ratio float64) HealthStatus {
	switch {
	case ratio >= c.healthyThreshold:
		return Healthy
	case ratio >= c.warningThreshold:
		return Warning
	default:
		return Critical
	}
}

// Ratio returns delivered DC over consumed AC, or 0 when nothing was consumed
func Ratio(dcDelivered, acConsumed float64) float64 {
	if acConsumed <= 0 {
		return 0
	}
	return dcDelivered / acConsumed
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Percent formats ratio as a percentage with two decimals, e.g. 0.857142 -> "85.71%"
func Percent(ratio float64) string {
	return decimal.NewFromFloat(ratio).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
