package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"glucoseapi/backend/services/glucose-service/internal/models"
)

// ErrRecordNotFound represents a missing glucose record.
var ErrRecordNotFound = errors.New("glucose record not found")

// recordColumns lists every column except id in insert order.
var recordColumns = []string{
	"user_id",
	"device",
	"serial_number",
	"device_timestamp",
	"record_type",
	"glucose_value_history",
	"glucose_scan",
	"non_numeric_fast_insulin",
	"fast_insulin_units",
	"non_numeric_food",
	"carbs_grams",
	"carbs_portions",
	"non_numeric_long_insulin",
	"long_insulin_units",
	"notes",
	"glucose_teststrip",
	"ketone",
	"meal_insulin",
	"correction_insulin",
	"insulin_change_by_user",
}

var (
	selectColumns = "id, " + strings.Join(recordColumns, ", ")
	insertQuery   = buildInsertQuery()
)

func buildInsertQuery() string {
	placeholders := make([]string, len(recordColumns))
	for i := range recordColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO user_glucose_data (%s) VALUES (%s) RETURNING id",
		strings.Join(recordColumns, ", "),
		strings.Join(placeholders, ", "),
	)
}

// GlucoseRepository persists glucose records in Postgres.
type GlucoseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGlucoseRepository returns repository.
func NewGlucoseRepository(db *sql.DB, logger *zap.Logger) *GlucoseRepository {
	return &GlucoseRepository{db: db, logger: logger}
}

// Ping checks that the database answers a trivial query.
func (r *GlucoseRepository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// BulkInsert stores all records for ownerID in a single transaction. Either every
// record is committed or none is. On success each record carries its new ID.
func (r *GlucoseRepository) BulkInsert(ctx context.Context, ownerID string, records []*models.GlucoseRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Error("failed to rollback bulk insert", zap.String("user_id", ownerID), zap.Error(rbErr))
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(records))
	for i, record := range records {
		if err = stmt.QueryRowContext(ctx, insertArgs(ownerID, record)...).Scan(&ids[i]); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk insert: %w", err)
	}

	for i, record := range records {
		record.ID = ids[i]
		record.UserID = ownerID
	}
	return nil
}

// Query returns one page of a user's records ordered by device timestamp. Ties keep
// insertion order.
func (r *GlucoseRepository) Query(ctx context.Context, filter models.ListFilter) ([]models.GlucoseRecord, error) {
	query, args := buildListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.GlucoseRecord, 0)
	for rows.Next() {
		var rec models.GlucoseRecord
		if err := rows.Scan(scanTargets(&rec)...); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// GetByID fetches a single record.
func (r *GlucoseRepository) GetByID(ctx context.Context, id int64) (*models.GlucoseRecord, error) {
	query := "SELECT " + selectColumns + " FROM user_glucose_data WHERE id = $1"

	var rec models.GlucoseRecord
	if err := r.db.QueryRowContext(ctx, query, id).Scan(scanTargets(&rec)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func buildListQuery(filter models.ListFilter) (string, []interface{}) {
	var b strings.Builder
	args := []interface{}{filter.UserID}

	b.WriteString("SELECT ")
	b.WriteString(selectColumns)
	b.WriteString(" FROM user_glucose_data WHERE user_id = $1")

	if filter.Start != nil {
		args = append(args, *filter.Start)
		fmt.Fprintf(&b, " AND device_timestamp >= $%d", len(args))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		fmt.Fprintf(&b, " AND device_timestamp <= $%d", len(args))
	}

	direction := "DESC"
	if filter.Sort == models.SortAsc {
		direction = "ASC"
	}
	fmt.Fprintf(&b, " ORDER BY device_timestamp %s, id ASC", direction)

	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return b.String(), args
}

func insertArgs(ownerID string, rec *models.GlucoseRecord) []interface{} {
	return []interface{}{
		ownerID,
		rec.Device,
		rec.SerialNumber,
		rec.DeviceTimestamp,
		rec.RecordType,
		rec.GlucoseValueHistory,
		rec.GlucoseScan,
		rec.NonNumericFastInsulin,
		rec.FastInsulinUnits,
		rec.NonNumericFood,
		rec.CarbsGrams,
		rec.CarbsPortions,
		rec.NonNumericLongInsulin,
		rec.LongInsulinUnits,
		rec.Notes,
		rec.GlucoseTeststrip,
		rec.Ketone,
		rec.MealInsulin,
		rec.CorrectionInsulin,
		rec.InsulinChangeByUser,
	}
}

func scanTargets(rec *models.GlucoseRecord) []interface{} {
	return []interface{}{
		&rec.ID,
		&rec.UserID,
		&rec.Device,
		&rec.SerialNumber,
		&rec.DeviceTimestamp,
		&rec.RecordType,
		&rec.GlucoseValueHistory,
		&rec.GlucoseScan,
		&rec.NonNumericFastInsulin,
		&rec.FastInsulinUnits,
		&rec.NonNumericFood,
		&rec.CarbsGrams,
		&rec.CarbsPortions,
		&rec.NonNumericLongInsulin,
		&rec.LongInsulinUnits,
		&rec.Notes,
		&rec.GlucoseTeststrip,
		&rec.Ketone,
		&rec.MealInsulin,
		&rec.CorrectionInsulin,
		&rec.InsulinChangeByUser,
	}
}
