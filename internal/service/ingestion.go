package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/ev-telemetry-engine/internal/config"
	"github.com/septivank/ev-telemetry-engine/internal/db"
	"github.com/septivank/ev-telemetry-engine/internal/logging"
	"github.com/septivank/ev-telemetry-engine/internal/metrics"
	"github.com/septivank/ev-telemetry-engine/internal/repository"
	"go.uber.org/zap"
)

// Device classes
const (
	DeviceClassMeter   = "meter"
	DeviceClassVehicle = "vehicle"
)

// MeterReading is a validated grid meter reading
type MeterReading struct {
	MeterID       string
	KwhConsumedAC float64
	Voltage       float64
	Timestamp     time.Time
}

// VehicleReading is a validated vehicle charging reading
type VehicleReading struct {
	VehicleID      string
	SoC            float64
	KwhDeliveredDC float64
	BatteryTemp    float64
	Timestamp      time.Time
}

// IngestResult is returned for every ingestion that reached the history store
type IngestResult struct {
	HistoryID     uuid.UUID `json:"historyId"`
	StatusUpdated bool      `json:"statusUpdated"`
}

// IngestionService performs the history-then-status dual write for both device classes
type IngestionService struct {
	store         repository.ReadingsStore
	transactional bool
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	store repository.ReadingsStore,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		store:         store,
		transactional: cfg.Ingest.Transactional,
		metrics:       m,
		logger:        logger,
	}
}

// IngestMeterReading appends the reading to meter history and then upserts the meter status.
//
// A history failure aborts before any status write. A status failure after a
// successful history insert returns the history id together with a StorageError;
// the status row stays stale until the next ingestion for that meter.
func (s *IngestionService) IngestMeterReading(ctx context.Context, reading MeterReading) (IngestResult, error) {
	logger := logging.WithDevice(s.logger, DeviceClassMeter, reading.MeterID)

	var result IngestResult
	err := s.run(ctx, func(store repository.ReadingsStore) error {
		var err error
		result, err = s.writeMeter(ctx, store, reading, logger)
		return err
	})
	if err != nil {
		if s.usesTx() {
			// rolled back: the history id no longer refers to a durable row
			return IngestResult{}, err
		}
		return result, err
	}

	s.metrics.ObserveIngestion(DeviceClassMeter, metrics.OutcomeOK)
	return result, nil
}

func (s *IngestionService) writeMeter(ctx context.Context, store repository.ReadingsStore, reading MeterReading, logger *zap.Logger) (IngestResult, error) {
	history := &db.MeterReadingHistory{
		MeterID:       reading.MeterID,
		KwhConsumedAC: reading.KwhConsumedAC,
		Voltage:       reading.Voltage,
		Timestamp:     reading.Timestamp,
	}

	historyID, err := store.InsertMeterHistory(ctx, history)
	if err != nil {
		logger.Error("failed to append meter history", zap.Error(err))
		s.metrics.ObserveIngestion(DeviceClassMeter, metrics.OutcomeHistoryFailed)
		return IngestResult{}, storageError("insert meter history", err)
	}
	logger.Debug("saved history record", zap.String("history_id", historyID.String()))

	written, err := store.UpsertMeterStatus(ctx, &db.MeterStatus{
		MeterID:       reading.MeterID,
		KwhConsumedAC: reading.KwhConsumedAC,
		Voltage:       reading.Voltage,
		LastReading:   reading.Timestamp,
	})
	if err != nil {
		logger.Warn("meter status is stale: history saved but status upsert failed",
			zap.String("history_id", historyID.String()),
			zap.Error(err),
		)
		s.metrics.ObserveIngestion(DeviceClassMeter, metrics.OutcomeStatusFailed)
		return IngestResult{HistoryID: historyID}, storageError("upsert meter status", err)
	}
	if !written {
		s.metrics.ObserveStatusSkipped(DeviceClassMeter)
	}
	logger.Debug("upserted status", zap.Bool("row_written", written))

	return IngestResult{HistoryID: historyID, StatusUpdated: true}, nil
}

// IngestVehicleReading appends the reading to vehicle history and then upserts the vehicle status.
// Failure semantics match IngestMeterReading.
func (s *IngestionService) IngestVehicleReading(ctx context.Context, reading VehicleReading) (IngestResult, error) {
	logger := logging.WithDevice(s.logger, DeviceClassVehicle, reading.VehicleID)

	var result IngestResult
	err := s.run(ctx, func(store repository.ReadingsStore) error {
		var err error
		result, err = s.writeVehicle(ctx, store, reading, logger)
		return err
	})
	if err != nil {
		if s.usesTx() {
			// rolled back: the history id no longer refers to a durable row
			return IngestResult{}, err
		}
		return result, err
	}

	s.metrics.ObserveIngestion(DeviceClassVehicle, metrics.OutcomeOK)
	return result, nil
}

func (s *IngestionService) writeVehicle(ctx context.Context, store repository.ReadingsStore, reading VehicleReading, logger *zap.Logger) (IngestResult, error) {
	history := &db.VehicleReadingHistory{
		VehicleID:      reading.VehicleID,
		SoC:            reading.SoC,
		KwhDeliveredDC: reading.KwhDeliveredDC,
		BatteryTemp:    reading.BatteryTemp,
		Timestamp:      reading.Timestamp,
	}

	historyID, err := store.InsertVehicleHistory(ctx, history)
	if err != nil {
		logger.Error("failed to append vehicle history", zap.Error(err))
		s.metrics.ObserveIngestion(DeviceClassVehicle, metrics.OutcomeHistoryFailed)
		return IngestResult{}, storageError("insert vehicle history", err)
	}
	logger.Debug("saved history record", zap.String("history_id", historyID.String()))

	written, err := store.UpsertVehicleStatus(ctx, &db.VehicleStatus{
		VehicleID:      reading.VehicleID,
		SoC:            reading.SoC,
		KwhDeliveredDC: reading.KwhDeliveredDC,
		BatteryTemp:    reading.BatteryTemp,
		LastReading:    reading.Timestamp,
	})
	if err != nil {
		logger.Warn("vehicle status is stale: history saved but status upsert failed",
			zap.String("history_id", historyID.String()),
			zap.Error(err),
		)
		s.metrics.ObserveIngestion(DeviceClassVehicle, metrics.OutcomeStatusFailed)
		return IngestResult{HistoryID: historyID}, storageError("upsert vehicle status", err)
	}
	if !written {
		s.metrics.ObserveStatusSkipped(DeviceClassVehicle)
	}
	logger.Debug("upserted status", zap.Bool("row_written", written))

	return IngestResult{HistoryID: historyID, StatusUpdated: true}, nil
}

// run executes fn against the store, inside a transaction when configured and supported
func (s *IngestionService) run(ctx context.Context, fn func(repository.ReadingsStore) error) error {
	if !s.transactional {
		return fn(s.store)
	}

	tx, ok := s.store.(repository.Transactor)
	if !ok {
		s.logger.Warn("transactional ingestion requested but store does not support transactions")
		return fn(s.store)
	}

	if err := tx.WithinTx(ctx, fn); err != nil {
		return storageError("ingest transaction", err)
	}
	return nil
}

func (s *IngestionService) usesTx() bool {
	_, ok := s.store.(repository.Transactor)
	return s.transactional && ok
}

// GetMeterStatus returns the current status of a meter
func (s *IngestionService) GetMeterStatus(ctx context.Context, meterID string) (*db.MeterStatus, error) {
	status, err := s.store.GetMeterStatus(ctx, meterID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storageError("get meter status", err)
	}
	return status, nil
}

// GetVehicleStatus returns the current status of a vehicle
func (s *IngestionService) GetVehicleStatus(ctx context.Context, vehicleID string) (*db.VehicleStatus, error) {
	status, err := s.store.GetVehicleStatus(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storageError("get vehicle status", err)
	}
	return status, nil
}
