package repository

import (
	"context"
	"fmt"
)

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS user_glucose_data (
		id BIGSERIAL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		device VARCHAR(100) NOT NULL,
		serial_number VARCHAR(100) NOT NULL,
		device_timestamp TIMESTAMP NOT NULL,
		record_type INTEGER NOT NULL,
		glucose_value_history INTEGER,
		glucose_scan DOUBLE PRECISION,
		non_numeric_fast_insulin TEXT,
		fast_insulin_units DOUBLE PRECISION,
		non_numeric_food TEXT,
		carbs_grams DOUBLE PRECISION,
		carbs_portions DOUBLE PRECISION,
		non_numeric_long_insulin TEXT,
		long_insulin_units DOUBLE PRECISION,
		notes TEXT,
		glucose_teststrip DOUBLE PRECISION,
		ketone DOUBLE PRECISION,
		meal_insulin DOUBLE PRECISION,
		correction_insulin DOUBLE PRECISION,
		insulin_change_by_user DOUBLE PRECISION
	)
`

const createIndexQuery = `
	CREATE INDEX IF NOT EXISTS idx_user_glucose_data_user_ts
	ON user_glucose_data (user_id, device_timestamp)
`

// EnsureSchema creates the records table and its lookup index when missing.
func (r *GlucoseRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("create user_glucose_data table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createIndexQuery); err != nil {
		return fmt.Errorf("create user_glucose_data index: %w", err)
	}
	return nil
}
