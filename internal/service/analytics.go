package service

import (
	"context"
	"errors"
	"time"

	"github.com/septivank/ev-telemetry-engine/internal/config"
	"github.com/septivank/ev-telemetry-engine/internal/correlate"
	"github.com/septivank/ev-telemetry-engine/internal/efficiency"
	"github.com/septivank/ev-telemetry-engine/internal/metrics"
	"github.com/septivank/ev-telemetry-engine/internal/repository"
	"go.uber.org/zap"
)

// isoMillis matches JavaScript's toISOString output
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Period is the analysed window, as ISO-8601 UTC instants
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ReadingsCount holds the number of history rows seen per stream
type ReadingsCount struct {
	Vehicle int64 `json:"vehicle"`
	Meter   int64 `json:"meter"`
}

// PerformanceSummary describes one vehicle and its correlated meter over the analytics window
type PerformanceSummary struct {
	VehicleID         string                  `json:"vehicleId"`
	Period            Period                  `json:"period"`
	TotalACConsumed   float64                 `json:"totalAcConsumed"`
	TotalDCDelivered  float64                 `json:"totalDcDelivered"`
	EfficiencyRatio   float64                 `json:"efficiencyRatio"`
	EfficiencyPercent string                  `json:"efficiencyPercent"`
	AvgBatteryTemp    float64                 `json:"avgBatteryTemp"`
	ReadingsCount     ReadingsCount           `json:"readingsCount"`
	HealthStatus      efficiency.HealthStatus `json:"healthStatus"`
}

// FleetSummary rolls up the performance of every vehicle with a status row
type FleetSummary struct {
	TotalVehicles     int     `json:"totalVehicles"`
	AverageEfficiency float64 `json:"averageEfficiency"`
	CriticalCount     int     `json:"criticalCount"`
	WarningCount      int     `json:"warningCount"`
	HealthyCount      int     `json:"healthyCount"`
}

// AnalyticsService computes windowed efficiency summaries from history
type AnalyticsService struct {
	store      repository.ReadingsStore
	correlator correlate.Correlator
	classifier *efficiency.Classifier
	window     time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(
	store repository.ReadingsStore,
	correlator correlate.Correlator,
	classifier *efficiency.Classifier,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		store:      store,
		correlator: correlator,
		classifier: classifier,
		window:     time.Duration(cfg.Analytics.WindowHours) * time.Hour,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// GetVehiclePerformance summarizes the trailing window for vehicleID and its correlated meter.
// Vehicles without a status row fail with ErrNotFound before any history is scanned.
func (s *AnalyticsService) GetVehiclePerformance(ctx context.Context, vehicleID string) (*PerformanceSummary, error) {
	start := time.Now()
	defer s.metrics.ObserveDuration("vehicle_performance", start)

	if _, err := s.store.GetVehicleStatus(ctx, vehicleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storageError("get vehicle status", err)
	}

	now := s.now().UTC()
	since := now.Add(-s.window)

	s.logger.Debug("fetching vehicle performance",
		zap.String("vehicle_id", vehicleID),
		zap.Time("since", since),
		zap.Time("until", now),
	)

	vehicleAgg, err := s.store.AggregateVehicleWindow(ctx, vehicleID, since, now)
	if err != nil {
		return nil, storageError("aggregate vehicle history", err)
	}

	meterID := s.correlator.MeterFor(vehicleID)
	meterAgg, err := s.store.AggregateMeterWindow(ctx, meterID, since, now)
	if err != nil {
		return nil, storageError("aggregate meter history", err)
	}

	ratio := efficiency.Ratio(vehicleAgg.TotalKwhDeliveredDC, meterAgg.TotalKwhConsumedAC)
	health := s.classifier.Classify(ratio)
	s.metrics.ObserveHealth(string(health))

	summary := &PerformanceSummary{
		VehicleID: vehicleID,
		Period: Period{
			Start: since.Format(isoMillis),
			End:   now.Format(isoMillis),
		},
		TotalACConsumed:   efficiency.Round(meterAgg.TotalKwhConsumedAC, 4),
		TotalDCDelivered:  efficiency.Round(vehicleAgg.TotalKwhDeliveredDC, 4),
		EfficiencyRatio:   efficiency.Round(ratio, 4),
		EfficiencyPercent: efficiency.Percent(ratio),
		AvgBatteryTemp:    efficiency.Round(vehicleAgg.AvgBatteryTemp, 2),
		ReadingsCount: ReadingsCount{
			Vehicle: vehicleAgg.ReadingsCount,
			Meter:   meterAgg.ReadingsCount,
		},
		HealthStatus: health,
	}

	s.logger.Info("vehicle performance computed",
		zap.String("vehicle_id", vehicleID),
		zap.String("meter_id", meterID),
		zap.String("efficiency", summary.EfficiencyPercent),
		zap.String("health_status", string(health)),
	)

	return summary, nil
}

// GetFleetSummary summarizes every vehicle with a status row, one vehicle at a time.
//
// A vehicle whose status vanished between listing and summarizing is skipped and
// counted in neither the health counters nor the average. Any storage failure
// aborts the whole computation so that an outage cannot pass for a healthy fleet.
func (s *AnalyticsService) GetFleetSummary(ctx context.Context) (*FleetSummary, error) {
	start := time.Now()
	defer s.metrics.ObserveDuration("fleet_summary", start)

	vehicleIDs, err := s.store.ListVehicleIDs(ctx)
	if err != nil {
		return nil, storageError("list vehicles", err)
	}

	summary := &FleetSummary{TotalVehicles: len(vehicleIDs)}
	var totalEfficiency float64
	var summarized int

	for _, vehicleID := range vehicleIDs {
		perf, err := s.GetVehiclePerformance(ctx, vehicleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.logger.Debug("skipping vehicle without status", zap.String("vehicle_id", vehicleID))
				s.metrics.ObserveFleetSkip()
				continue
			}
			s.logger.Error("fleet summary aborted", zap.String("vehicle_id", vehicleID), zap.Error(err))
			return nil, err
		}

		totalEfficiency += perf.EfficiencyRatio
		summarized++

		switch perf.HealthStatus {
		case efficiency.Critical:
			summary.CriticalCount++
		case efficiency.Warning:
			summary.WarningCount++
		case efficiency.Healthy:
			summary.HealthyCount++
		}
	}

	if summarized > 0 {
		summary.AverageEfficiency = efficiency.Round(totalEfficiency/float64(summarized), 4)
	}

	s.logger.Info("fleet summary computed",
		zap.Int("total_vehicles", summary.TotalVehicles),
		zap.Int("summarized", summarized),
		zap.Float64("average_efficiency", summary.AverageEfficiency),
	)

	return summary, nil
}
