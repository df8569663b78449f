package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// schemaStatements creates the hot (status) and cold (history) stores.
// History tables carry a composite (device, timestamp) index for window scans.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS meter_readings_history (
		id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		meter_id        VARCHAR(100) NOT NULL,
		kwh_consumed_ac NUMERIC(12, 4) NOT NULL CHECK (kwh_consumed_ac >= 0),
		voltage         NUMERIC(8, 2) NOT NULL CHECK (voltage >= 0),
		"timestamp"     TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meter_history_meter_id ON meter_readings_history (meter_id)`,
	`CREATE INDEX IF NOT EXISTS idx_meter_history_meter_ts ON meter_readings_history (meter_id, "timestamp")`,
	`CREATE TABLE IF NOT EXISTS meter_status (
		meter_id        VARCHAR(100) PRIMARY KEY,
		kwh_consumed_ac NUMERIC(12, 4) NOT NULL,
		voltage         NUMERIC(8, 2) NOT NULL,
		last_reading    TIMESTAMPTZ NOT NULL,
		last_updated    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS vehicle_readings_history (
		id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		vehicle_id       VARCHAR(100) NOT NULL,
		soc              NUMERIC(5, 2) NOT NULL CHECK (soc >= 0 AND soc <= 100),
		kwh_delivered_dc NUMERIC(12, 4) NOT NULL CHECK (kwh_delivered_dc >= 0),
		battery_temp     NUMERIC(6, 2) NOT NULL,
		"timestamp"      TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_history_vehicle_id ON vehicle_readings_history (vehicle_id)`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_history_vehicle_ts ON vehicle_readings_history (vehicle_id, "timestamp")`,
	`CREATE TABLE IF NOT EXISTS vehicle_status (
		vehicle_id       VARCHAR(100) PRIMARY KEY,
		soc              NUMERIC(5, 2) NOT NULL,
		kwh_delivered_dc NUMERIC(12, 4) NOT NULL,
		battery_temp     NUMERIC(6, 2) NOT NULL,
		last_reading     TIMESTAMPTZ NOT NULL,
		last_updated     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the telemetry tables and indexes if they do not exist
func Migrate(ctx context.Context, conn Execer) error {
	for i, stmt := range schemaStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("[DATABASE] schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
