package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/septivank/ev-telemetry-engine/internal/mq"
	"github.com/septivank/ev-telemetry-engine/internal/validator"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	events      []mq.IngestedEvent
	routingKeys []string
	err         error
}

func (p *recordingPublisher) PublishIngestedEvent(_ context.Context, event mq.IngestedEvent, routingKey string) error {
	p.events = append(p.events, event)
	p.routingKeys = append(p.routingKeys, routingKey)
	return p.err
}

func newTestProcessor(store *memoryStore, pub EventPublisher) *ProcessorService {
	cfg := testConfig()
	ingestion := NewIngestionService(store, cfg, nil, zap.NewNop())
	p := NewProcessorService(ingestion, pub, validator.NewValidator(cfg.Validation.TimestampToleranceMinutes), cfg, zap.NewNop())
	p.now = func() time.Time { return readingTime.Add(time.Minute) }
	return p
}

func TestProcessMessage_Meter(t *testing.T) {
	store := newMemoryStore()
	pub := &recordingPublisher{}
	p := newTestProcessor(store, pub)

	body := []byte(`{
		"request_id": "req-1",
		"received_at": "2026-01-31T14:01:00Z",
		"meter": {"meterId": "METER-001", "kwhConsumedAc": 12.5, "voltage": 230.1, "timestamp": "2026-01-31T14:00:00.000Z"}
	}`)

	if err := p.ProcessMessage(context.Background(), body); err != nil {
		t.Fatalf("Failed to process message: %v", err)
	}

	if len(store.meterHistory) != 1 || len(store.meterStatus) != 1 {
		t.Fatalf("Expected history and status rows, got %d / %d", len(store.meterHistory), len(store.meterStatus))
	}
	if len(pub.events) != 1 {
		t.Fatalf("Expected 1 published event, got %d", len(pub.events))
	}

	event := pub.events[0]
	if event.DeviceClass != DeviceClassMeter || event.DeviceID != "METER-001" || event.RequestID != "req-1" {
		t.Errorf("Unexpected event: %+v", event)
	}
	if event.HistoryID != store.meterHistory[0].ID.String() {
		t.Errorf("Expected event history id %s, got %s", store.meterHistory[0].ID, event.HistoryID)
	}
	if event.Timestamp != "2026-01-31T14:00:00.000Z" {
		t.Errorf("Unexpected event timestamp %s", event.Timestamp)
	}
	if pub.routingKeys[0] != "telemetry.reading.ingested" {
		t.Errorf("Unexpected routing key %s", pub.routingKeys[0])
	}
}

func TestProcessMessage_VehicleWithoutPublisher(t *testing.T) {
	store := newMemoryStore()
	p := newTestProcessor(store, nil)

	body := []byte(`{"vehicle": {"vehicleId": "VEH-001", "soc": 55, "kwhDeliveredDc": 3.2, "batteryTemp": 29.5, "timestamp": "2026-01-31T14:00:00Z"}}`)

	if err := p.ProcessMessage(context.Background(), body); err != nil {
		t.Fatalf("Failed to process message: %v", err)
	}
	if _, ok := store.vehicleStatus["VEH-001"]; !ok {
		t.Error("Expected vehicle status to be written")
	}
}

func TestProcessMessage_InvalidJSON(t *testing.T) {
	p := newTestProcessor(newMemoryStore(), nil)

	if err := p.ProcessMessage(context.Background(), []byte("{not json")); err == nil {
		t.Error("Expected error for malformed body")
	}
}

func TestProcessMessage_RejectsEmptyAndAmbiguousEnvelopes(t *testing.T) {
	p := newTestProcessor(newMemoryStore(), nil)

	for _, body := range []string{
		`{"request_id": "req-1"}`,
		`{"meter": {"meterId": "M"}, "vehicle": {"vehicleId": "V"}}`,
	} {
		var vErr *validator.ValidationError
		if err := p.ProcessMessage(context.Background(), []byte(body)); !errors.As(err, &vErr) {
			t.Errorf("Expected ValidationError for %s, got %v", body, err)
		}
	}
}

func TestIngestVehicleTelemetry_ValidationStopsIngestion(t *testing.T) {
	store := newMemoryStore()
	pub := &recordingPublisher{}
	p := newTestProcessor(store, pub)

	soc := 150.0
	_, err := p.IngestVehicleTelemetry(context.Background(), "req-1", validator.VehicleTelemetry{
		VehicleID: "VEH-001",
		SoC:       &soc,
		Timestamp: "2026-01-31T14:00:00Z",
	}, readingTime)

	var vErr *validator.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "soc" {
		t.Fatalf("Expected soc ValidationError, got %v", err)
	}
	if len(store.vehicleHistory) != 0 || len(pub.events) != 0 {
		t.Error("Expected nothing to be written or published")
	}
}

func TestIngestMeterTelemetry_StorageErrorNotPublished(t *testing.T) {
	store := newMemoryStore()
	store.failMeterStatus = errors.New("deadlock detected")
	pub := &recordingPublisher{}
	p := newTestProcessor(store, pub)

	kwh, volts := 1.0, 230.0
	receipt, err := p.IngestMeterTelemetry(context.Background(), "req-1", validator.MeterTelemetry{
		MeterID:       "METER-001",
		KwhConsumedAC: &kwh,
		Voltage:       &volts,
		Timestamp:     "2026-01-31T14:00:00Z",
	}, readingTime)

	if !IsStorageError(err) {
		t.Fatalf("Expected StorageError, got %v", err)
	}
	if receipt.HistoryID != store.meterHistory[0].ID {
		t.Errorf("Expected receipt to carry the persisted history id")
	}
	if len(pub.events) != 0 {
		t.Errorf("Expected no event for failed ingestion, got %d", len(pub.events))
	}
}

func TestIngestMeterTelemetry_PublishFailureIgnored(t *testing.T) {
	store := newMemoryStore()
	pub := &recordingPublisher{err: errors.New("channel closed")}
	p := newTestProcessor(store, pub)

	kwh, volts := 1.0, 230.0
	_, err := p.IngestMeterTelemetry(context.Background(), "req-1", validator.MeterTelemetry{
		MeterID:       "METER-001",
		KwhConsumedAC: &kwh,
		Voltage:       &volts,
		Timestamp:     "2026-01-31T14:00:00Z",
	}, readingTime)
	if err != nil {
		t.Errorf("Expected publish failure to be swallowed, got %v", err)
	}
}

func TestProcessDeviceReading_ByClass(t *testing.T) {
	store := newMemoryStore()
	p := newTestProcessor(store, nil)
	ctx := context.Background()

	if err := p.ProcessDeviceReading(ctx, DeviceClassMeter,
		[]byte(`{"meterId": "METER-009", "kwhConsumedAc": 2, "voltage": 229, "timestamp": "2026-01-31T14:00:00Z"}`)); err != nil {
		t.Fatalf("Failed to process meter reading: %v", err)
	}
	if err := p.ProcessDeviceReading(ctx, DeviceClassVehicle,
		[]byte(`{"vehicleId": "VEH-009", "soc": 10, "kwhDeliveredDc": 1.7, "batteryTemp": 25, "timestamp": "2026-01-31T14:00:00Z"}`)); err != nil {
		t.Fatalf("Failed to process vehicle reading: %v", err)
	}
	if len(store.meterHistory) != 1 || len(store.vehicleHistory) != 1 {
		t.Errorf("Expected one row per class, got %d / %d", len(store.meterHistory), len(store.vehicleHistory))
	}

	if err := p.ProcessDeviceReading(ctx, "inverter", []byte(`{}`)); err == nil {
		t.Error("Expected error for unknown device class")
	}
}
