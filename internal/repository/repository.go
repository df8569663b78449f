package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/ev-telemetry-engine/internal/db"
)

// ErrNotFound is returned when a status row does not exist for the requested device
var ErrNotFound = errors.New("record not found")

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

var (
	_ ReadingsStore = (*Repository)(nil)
	_ Transactor    = (*Repository)(nil)
)

// ReadingsStore is the persistence capability behind ingestion and analytics:
// append-only history per device class, one status row per device, and
// windowed aggregates over history.
type ReadingsStore interface {
	InsertMeterHistory(ctx context.Context, reading *db.MeterReadingHistory) (uuid.UUID, error)
	UpsertMeterStatus(ctx context.Context, status *db.MeterStatus) (bool, error)
	GetMeterStatus(ctx context.Context, meterID string) (*db.MeterStatus, error)
	AggregateMeterWindow(ctx context.Context, meterID string, from, to time.Time) (db.MeterWindowAggregate, error)

	InsertVehicleHistory(ctx context.Context, reading *db.VehicleReadingHistory) (uuid.UUID, error)
	UpsertVehicleStatus(ctx context.Context, status *db.VehicleStatus) (bool, error)
	GetVehicleStatus(ctx context.Context, vehicleID string) (*db.VehicleStatus, error)
	ListVehicleIDs(ctx context.Context) ([]string, error)
	AggregateVehicleWindow(ctx context.Context, vehicleID string, from, to time.Time) (db.VehicleWindowAggregate, error)
}

// Transactor runs fn against a store bound to a single transaction
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ReadingsStore) error) error
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures a Repository
type Option func(*Repository)

// WithMonotonicStatus skips status upserts whose reading is older than the stored one
func WithMonotonicStatus(enabled bool) Option {
	return func(r *Repository) {
		r.monotonic = enabled
	}
}

// Repository handles database operations
type Repository struct {
	pool      *pgxpool.Pool
	q         Querier
	monotonic bool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, q: pool}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newQuerierRepository builds a repository on an arbitrary querier (a transaction, or a test double)
func newQuerierRepository(q Querier, monotonic bool) *Repository {
	return &Repository{q: q, monotonic: monotonic}
}

// WithinTx runs fn in a transaction. The transaction commits only if fn returns nil.
func (r *Repository) WithinTx(ctx context.Context, fn func(ReadingsStore) error) error {
	if r.pool == nil {
		return fmt.Errorf("nested transactions are not supported")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newQuerierRepository(tx, r.monotonic)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertMeterHistory appends a meter reading and returns its generated id
func (r *Repository) InsertMeterHistory(ctx context.Context, reading *db.MeterReadingHistory) (uuid.UUID, error) {
	query := `
		INSERT INTO meter_readings_history (meter_id, kwh_consumed_ac, voltage, "timestamp")
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		reading.MeterID,
		reading.KwhConsumedAC,
		reading.Voltage,
		reading.Timestamp,
	).Scan(&reading.ID, &reading.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert meter history: %w", err)
	}

	return reading.ID, nil
}

// UpsertMeterStatus writes the latest values for a meter. It reports whether a row was physically written.
func (r *Repository) UpsertMeterStatus(ctx context.Context, status *db.MeterStatus) (bool, error) {
	query := `
		INSERT INTO meter_status (meter_id, kwh_consumed_ac, voltage, last_reading, last_updated)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (meter_id) DO UPDATE SET
			kwh_consumed_ac = EXCLUDED.kwh_consumed_ac,
			voltage = EXCLUDED.voltage,
			last_reading = EXCLUDED.last_reading,
			last_updated = now()
		WHERE (meter_status.kwh_consumed_ac, meter_status.voltage, meter_status.last_reading)
			IS DISTINCT FROM (EXCLUDED.kwh_consumed_ac, EXCLUDED.voltage, EXCLUDED.last_reading)
	`
	if r.monotonic {
		query += ` AND EXCLUDED.last_reading >= meter_status.last_reading`
	}

	tag, err := r.q.Exec(ctx, query,
		status.MeterID,
		status.KwhConsumedAC,
		status.Voltage,
		status.LastReading,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert meter status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetMeterStatus returns the current status of a meter
func (r *Repository) GetMeterStatus(ctx context.Context, meterID string) (*db.MeterStatus, error) {
	query := `
		SELECT meter_id, kwh_consumed_ac::float8, voltage::float8, last_reading, last_updated
		FROM meter_status
		WHERE meter_id = $1
	`

	var status db.MeterStatus
	err := r.q.QueryRow(ctx, query, meterID).Scan(
		&status.MeterID,
		&status.KwhConsumedAC,
		&status.Voltage,
		&status.LastReading,
		&status.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("meter %s: %w", meterID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query meter status: %w", err)
	}

	return &status, nil
}

// AggregateMeterWindow sums consumed AC energy for a meter over [from, to)
func (r *Repository) AggregateMeterWindow(ctx context.Context, meterID string, from, to time.Time) (db.MeterWindowAggregate, error) {
	query := `
		SELECT COALESCE(SUM(kwh_consumed_ac), 0)::float8, COUNT(*)
		FROM meter_readings_history
		WHERE meter_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3
	`

	var agg db.MeterWindowAggregate
	err := r.q.QueryRow(ctx, query, meterID, from, to).Scan(
		&agg.TotalKwhConsumedAC,
		&agg.ReadingsCount,
	)
	if err != nil {
		return db.MeterWindowAggregate{}, fmt.Errorf("failed to aggregate meter history: %w", err)
	}

	return agg, nil
}

// InsertVehicleHistory appends a vehicle reading and returns its generated id
func (r *Repository) InsertVehicleHistory(ctx context.Context, reading *db.VehicleReadingHistory) (uuid.UUID, error) {
	query := `
		INSERT INTO vehicle_readings_history (vehicle_id, soc, kwh_delivered_dc, battery_temp, "timestamp")
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		reading.VehicleID,
		reading.SoC,
		reading.KwhDeliveredDC,
		reading.BatteryTemp,
		reading.Timestamp,
	).Scan(&reading.ID, &reading.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert vehicle history: %w", err)
	}

	return reading.ID, nil
}

// UpsertVehicleStatus writes the latest values for a vehicle. It reports whether a row was physically written.
func (r *Repository) UpsertVehicleStatus(ctx context.Context, status *db.VehicleStatus) (bool, error) {
	query := `
		INSERT INTO vehicle_status (vehicle_id, soc, kwh_delivered_dc, battery_temp, last_reading, last_updated)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (vehicle_id) DO UPDATE SET
			soc = EXCLUDED.soc,
			kwh_delivered_dc = EXCLUDED.kwh_delivered_dc,
			battery_temp = EXCLUDED.battery_temp,
			last_reading = EXCLUDED.last_reading,
			last_updated = now()
		WHERE (vehicle_status.soc, vehicle_status.kwh_delivered_dc, vehicle_status.battery_temp, vehicle_status.last_reading)
			IS DISTINCT FROM (EXCLUDED.soc, EXCLUDED.kwh_delivered_dc, EXCLUDED.battery_temp, EXCLUDED.last_reading)
	`
	if r.monotonic {
		query += ` AND EXCLUDED.last_reading >= vehicle_status.last_reading`
	}

	tag, err := r.q.Exec(ctx, query,
		status.VehicleID,
		status.SoC,
		status.KwhDeliveredDC,
		status.BatteryTemp,
		status.LastReading,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert vehicle status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetVehicleStatus returns the current status of a vehicle
func (r *Repository) GetVehicleStatus(ctx context.Context, vehicleID string) (*db.VehicleStatus, error) {
	query := `
		SELECT vehicle_id, soc::float8, kwh_delivered_dc::float8, battery_temp::float8, last_reading, last_updated
		FROM vehicle_status
		WHERE vehicle_id = $1
	`

	var status db.VehicleStatus
	err := r.q.QueryRow(ctx, query, vehicleID).Scan(
		&status.VehicleID,
		&status.SoC,
		&status.KwhDeliveredDC,
		&status.BatteryTemp,
		&status.LastReading,
		&status.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle status: %w", err)
	}

	return &status, nil
}

// ListVehicleIDs returns every vehicle with a status row
func (r *Repository) ListVehicleIDs(ctx context.Context) ([]string, error) {
	query := `SELECT vehicle_id FROM vehicle_status ORDER BY vehicle_id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return ids, nil
}

// AggregateVehicleWindow sums delivered DC energy and averages battery temperature over [from, to)
func (r *Repository) AggregateVehicleWindow(ctx context.Context, vehicleID string, from, to time.Time) (db.VehicleWindowAggregate, error) {
	query := `
		SELECT COALESCE(SUM(kwh_delivered_dc), 0)::float8, COALESCE(AVG(battery_temp), 0)::float8, COUNT(*)
		FROM vehicle_readings_history
		WHERE vehicle_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3
	`

	var agg db.VehicleWindowAggregate
	err := r.q.QueryRow(ctx, query, vehicleID, from, to).Scan(
		&agg.TotalKwhDeliveredDC,
		&agg.AvgBatteryTemp,
		&agg.ReadingsCount,
	)
	if err != nil {
		return db.VehicleWindowAggregate{}, fmt.Errorf("failed to aggregate vehicle history: %w", err)
	}

	return agg, nil
}
