package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/ev-telemetry-engine/internal/config"
	"github.com/septivank/ev-telemetry-engine/internal/db"
	"github.com/septivank/ev-telemetry-engine/internal/repository"
)

// memoryStore is an in-memory ReadingsStore with switchable failures
type memoryStore struct {
	mu sync.Mutex

	meterHistory   []db.MeterReadingHistory
	vehicleHistory []db.VehicleReadingHistory
	meterStatus    map[string]db.MeterStatus
	vehicleStatus  map[string]db.VehicleStatus

	failMeterHistory  error
	failMeterStatus   error
	failVehicleStatus error
	failVehicleGet    map[string]error
	failAggregate     error
	failList          error

	// listExtra is appended to ListVehicleIDs to simulate a row deleted mid-scan
	listExtra []string

	aggregateCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		meterStatus:   make(map[string]db.MeterStatus),
		vehicleStatus: make(map[string]db.VehicleStatus),
	}
}

func (m *memoryStore) InsertMeterHistory(_ context.Context, r *db.MeterReadingHistory) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMeterHistory != nil {
		return uuid.Nil, m.failMeterHistory
	}
	row := *r
	row.ID = uuid.New()
	m.meterHistory = append(m.meterHistory, row)
	return row.ID, nil
}

func (m *memoryStore) UpsertMeterStatus(_ context.Context, s *db.MeterStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMeterStatus != nil {
		return false, m.failMeterStatus
	}
	if cur, ok := m.meterStatus[s.MeterID]; ok &&
		cur.KwhConsumedAC == s.KwhConsumedAC && cur.Voltage == s.Voltage && cur.LastReading.Equal(s.LastReading) {
		return false, nil
	}
	m.meterStatus[s.MeterID] = *s
	return true, nil
}

func (m *memoryStore) GetMeterStatus(_ context.Context, meterID string) (*db.MeterStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.meterStatus[meterID]
	if !ok {
		return nil, fmt.Errorf("meter %s: %w", meterID, repository.ErrNotFound)
	}
	return &s, nil
}

func (m *memoryStore) AggregateMeterWindow(_ context.Context, meterID string, from, to time.Time) (db.MeterWindowAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregateCalls++
	if m.failAggregate != nil {
		return db.MeterWindowAggregate{}, m.failAggregate
	}
	var agg db.MeterWindowAggregate
	for _, r := range m.meterHistory {
		if r.MeterID == meterID && inWindow(r.Timestamp, from, to) {
			agg.TotalKwhConsumedAC += r.KwhConsumedAC
			agg.ReadingsCount++
		}
	}
	return agg, nil
}

func (m *memoryStore) InsertVehicleHistory(_ context.Context, r *db.VehicleReadingHistory) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := *r
	row.ID = uuid.New()
	m.vehicleHistory = append(m.vehicleHistory, row)
	return row.ID, nil
}

func (m *memoryStore) UpsertVehicleStatus(_ context.Context, s *db.VehicleStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failVehicleStatus != nil {
		return false, m.failVehicleStatus
	}
	m.vehicleStatus[s.VehicleID] = *s
	return true, nil
}

func (m *memoryStore) GetVehicleStatus(_ context.Context, vehicleID string) (*db.VehicleStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failVehicleGet[vehicleID]; err != nil {
		return nil, err
	}
	s, ok := m.vehicleStatus[vehicleID]
	if !ok {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, repository.ErrNotFound)
	}
	return &s, nil
}

func (m *memoryStore) ListVehicleIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	ids := make([]string, 0, len(m.vehicleStatus)+len(m.listExtra))
	for id := range m.vehicleStatus {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return append(ids, m.listExtra...), nil
}

func (m *memoryStore) AggregateVehicleWindow(_ context.Context, vehicleID string, from, to time.Time) (db.VehicleWindowAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregateCalls++
	if m.failAggregate != nil {
		return db.VehicleWindowAggregate{}, m.failAggregate
	}
	var agg db.VehicleWindowAggregate
	var tempSum float64
	for _, r := range m.vehicleHistory {
		if r.VehicleID == vehicleID && inWindow(r.Timestamp, from, to) {
			agg.TotalKwhDeliveredDC += r.KwhDeliveredDC
			tempSum += r.BatteryTemp
			agg.ReadingsCount++
		}
	}
	if agg.ReadingsCount > 0 {
		agg.AvgBatteryTemp = tempSum / float64(agg.ReadingsCount)
	}
	return agg, nil
}

func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && ts.Before(to)
}

// txStore adds all-or-nothing transactions to memoryStore
type txStore struct {
	*memoryStore
}

func (t *txStore) WithinTx(_ context.Context, fn func(repository.ReadingsStore) error) error {
	t.mu.Lock()
	meterHistory := append([]db.MeterReadingHistory(nil), t.meterHistory...)
	vehicleHistory := append([]db.VehicleReadingHistory(nil), t.vehicleHistory...)
	meterStatus := make(map[string]db.MeterStatus, len(t.meterStatus))
	for k, v := range t.meterStatus {
		meterStatus[k] = v
	}
	vehicleStatus := make(map[string]db.VehicleStatus, len(t.vehicleStatus))
	for k, v := range t.vehicleStatus {
		vehicleStatus[k] = v
	}
	t.mu.Unlock()

	if err := fn(t.memoryStore); err != nil {
		t.mu.Lock()
		t.meterHistory = meterHistory
		t.vehicleHistory = vehicleHistory
		t.meterStatus = meterStatus
		t.vehicleStatus = vehicleStatus
		t.mu.Unlock()
		return err
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Validation: config.ValidationConfig{TimestampToleranceMinutes: 10080},
		Analytics: config.AnalyticsConfig{
			WindowHours:      24,
			HealthyThreshold: 0.85,
			WarningThreshold: 0.70,
			VehiclePrefix:    "VEH-",
			MeterPrefix:      "METER-",
		},
		RabbitMQ: config.RabbitMQConfig{WorkerRoutingKey: "telemetry.reading.ingested"},
	}
}
