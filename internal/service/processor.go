package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/ev-telemetry-engine/internal/config"
	"github.com/septivank/ev-telemetry-engine/internal/logging"
	"github.com/septivank/ev-telemetry-engine/internal/mq"
	"github.com/septivank/ev-telemetry-engine/internal/validator"
	"go.uber.org/zap"
)

// TelemetryMessage is the envelope consumed from the ingest queue.
// Exactly one of Meter and Vehicle must be set.
type TelemetryMessage struct {
	RequestID  string                      `json:"request_id"`
	ReceivedAt time.Time                   `json:"received_at"`
	Meter      *validator.MeterTelemetry   `json:"meter,omitempty"`
	Vehicle    *validator.VehicleTelemetry `json:"vehicle,omitempty"`
}

// EventPublisher publishes reading.ingested events
type EventPublisher interface {
	PublishIngestedEvent(ctx context.Context, event mq.IngestedEvent, routingKey string) error
}

// Receipt describes an accepted reading
type Receipt struct {
	IngestResult
	DeviceClass string
	DeviceID    string
	Timestamp   time.Time
}

// ProcessorService validates raw telemetry from any transport and hands it to ingestion
type ProcessorService struct {
	ingestion *IngestionService
	publisher EventPublisher
	validator *validator.Validator
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessorService creates a new processor service. publisher may be nil.
func NewProcessorService(
	ingestion *IngestionService,
	publisher EventPublisher,
	validator *validator.Validator,
	cfg *config.Config,
	logger *zap.Logger,
) *ProcessorService {
	return &ProcessorService{
		ingestion: ingestion,
		publisher: publisher,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// IngestMeterTelemetry validates and ingests one meter heartbeat
func (s *ProcessorService) IngestMeterTelemetry(ctx context.Context, requestID string, t validator.MeterTelemetry, receivedAt time.Time) (Receipt, error) {
	ts, result := s.validator.ValidateMeter(t, receivedAt)
	if !result.IsValid {
		return Receipt{}, result.Err()
	}

	res, err := s.ingestion.IngestMeterReading(ctx, MeterReading{
		MeterID:       t.MeterID,
		KwhConsumedAC: *t.KwhConsumedAC,
		Voltage:       *t.Voltage,
		Timestamp:     ts,
	})
	receipt := Receipt{IngestResult: res, DeviceClass: DeviceClassMeter, DeviceID: t.MeterID, Timestamp: ts}
	if err != nil {
		return receipt, err
	}

	s.publish(ctx, requestID, receipt)
	return receipt, nil
}

// IngestVehicleTelemetry validates and ingests one vehicle heartbeat
func (s *ProcessorService) IngestVehicleTelemetry(ctx context.Context, requestID string, t validator.VehicleTelemetry, receivedAt time.Time) (Receipt, error) {
	ts, result := s.validator.ValidateVehicle(t, receivedAt)
	if !result.IsValid {
		return Receipt{}, result.Err()
	}

	res, err := s.ingestion.IngestVehicleReading(ctx, VehicleReading{
		VehicleID:      t.VehicleID,
		SoC:            *t.SoC,
		KwhDeliveredDC: *t.KwhDeliveredDC,
		BatteryTemp:    *t.BatteryTemp,
		Timestamp:      ts,
	})
	receipt := Receipt{IngestResult: res, DeviceClass: DeviceClassVehicle, DeviceID: t.VehicleID, Timestamp: ts}
	if err != nil {
		return receipt, err
	}

	s.publish(ctx, requestID, receipt)
	return receipt, nil
}

// ProcessMessage processes a telemetry envelope delivered by RabbitMQ
func (s *ProcessorService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg TelemetryMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)

	var (
		receipt Receipt
		err     error
	)
	switch {
	case msg.Meter != nil && msg.Vehicle != nil:
		err = &validator.ValidationError{Reason: "message carries both meter and vehicle telemetry"}
	case msg.Meter != nil:
		receipt, err = s.IngestMeterTelemetry(ctx, msg.RequestID, *msg.Meter, msg.ReceivedAt)
	case msg.Vehicle != nil:
		receipt, err = s.IngestVehicleTelemetry(ctx, msg.RequestID, *msg.Vehicle, msg.ReceivedAt)
	default:
		err = &validator.ValidationError{Reason: "message carries no telemetry"}
	}
	if err != nil {
		reqLogger.Error("failed to process message", zap.Error(err))
		return err
	}

	reqLogger.Info("message processed successfully",
		zap.String("device_class", receipt.DeviceClass),
		zap.String("device_id", receipt.DeviceID),
		zap.String("history_id", receipt.HistoryID.String()),
	)
	return nil
}

// ProcessDeviceReading processes a bare heartbeat whose class is known from the transport,
// such as the MQTT topic it arrived on
func (s *ProcessorService) ProcessDeviceReading(ctx context.Context, deviceClass string, body []byte) error {
	requestID := uuid.NewString()
	receivedAt := s.now()

	var err error
	switch deviceClass {
	case DeviceClassMeter:
		var t validator.MeterTelemetry
		if err = json.Unmarshal(body, &t); err != nil {
			return fmt.Errorf("failed to unmarshal meter telemetry: %w", err)
		}
		_, err = s.IngestMeterTelemetry(ctx, requestID, t, receivedAt)
	case DeviceClassVehicle:
		var t validator.VehicleTelemetry
		if err = json.Unmarshal(body, &t); err != nil {
			return fmt.Errorf("failed to unmarshal vehicle telemetry: %w", err)
		}
		_, err = s.IngestVehicleTelemetry(ctx, requestID, t, receivedAt)
	default:
		return &validator.ValidationError{Reason: fmt.Sprintf("unknown device class %q", deviceClass)}
	}
	return err
}

// publish emits the ingested event. Failures are logged and never undo the ingestion.
func (s *ProcessorService) publish(ctx context.Context, requestID string, r Receipt) {
	if s.publisher == nil {
		return
	}

	event := mq.IngestedEvent{
		DeviceClass:   r.DeviceClass,
		DeviceID:      r.DeviceID,
		HistoryID:     r.HistoryID.String(),
		Timestamp:     r.Timestamp.UTC().Format(isoMillis),
		StatusUpdated: r.StatusUpdated,
		RequestID:     requestID,
	}
	if err := s.publisher.PublishIngestedEvent(ctx, event, s.cfg.RabbitMQ.WorkerRoutingKey); err != nil {
		s.logger.Error("failed to publish event",
			zap.Error(err),
			zap.String("device_class", r.DeviceClass),
			zap.String("device_id", r.DeviceID),
		)
	}
}
