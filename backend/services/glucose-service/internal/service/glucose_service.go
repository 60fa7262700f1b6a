package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"glucoseapi/backend/services/glucose-service/internal/cache"
	"glucoseapi/backend/services/glucose-service/internal/ingest"
	"glucoseapi/backend/services/glucose-service/internal/metrics"
	"glucoseapi/backend/services/glucose-service/internal/models"
	"glucoseapi/backend/services/glucose-service/internal/repository"
	"glucoseapi/backend/services/glucose-service/internal/schema"
)

var (
	// ErrRecordNotFound is returned when no record has the requested ID.
	ErrRecordNotFound = errors.New("glucose: record not found")
	// ErrStorageUnavailable is returned when the database does not answer.
	ErrStorageUnavailable = errors.New("glucose: storage unavailable")
)

// RowError ties a row failure to its line in the uploaded file.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// IsInvalidData reports whether err was caused by upload content that cannot be
// turned into records.
func IsInvalidData(err error) bool {
	var rowErr *RowError
	return errors.As(err, &rowErr) || errors.Is(err, ingest.ErrMalformedCSV)
}

// GlucoseRepository defines storage contract used by the service.
type GlucoseRepository interface {
	BulkInsert(ctx context.Context, ownerID string, records []*models.GlucoseRecord) error
	Query(ctx context.Context, filter models.ListFilter) ([]models.GlucoseRecord, error)
	GetByID(ctx context.Context, id int64) (*models.GlucoseRecord, error)
	Ping(ctx context.Context) error
}

// RecordCache is an optional read-through cache for single records.
type RecordCache interface {
	Get(ctx context.Context, id int64) (*models.GlucoseRecord, error)
	Set(ctx context.Context, record *models.GlucoseRecord) error
}

// UploadObserver receives upload outcomes.
type UploadObserver interface {
	ObserveUpload(outcome string, records int)
}

// GlucoseService ties ingestion, validation and storage together.
type GlucoseService struct {
	repo     GlucoseRepository
	cache    RecordCache
	observer UploadObserver
	logger   *zap.Logger
}

// NewGlucoseService builds service. cache and observer may be nil.
func NewGlucoseService(repo GlucoseRepository, cache RecordCache, observer UploadObserver, logger *zap.Logger) *GlucoseService {
	return &GlucoseService{
		repo:     repo,
		cache:    cache,
		observer: observer,
		logger:   logger,
	}
}

// Ingest parses an uploaded export, validates every row and stores them for the
// owner derived from filename. A single invalid row rejects the whole upload.
func (s *GlucoseService) Ingest(ctx context.Context, filename string, content []byte) (int, error) {
	count, err := s.ingest(ctx, filename, content)
	switch {
	case err == nil:
		s.observe(metrics.UploadSucceeded, count)
	case errors.Is(err, ingest.ErrWrongFormat) || IsInvalidData(err):
		s.observe(metrics.UploadRejected, 0)
	default:
		s.observe(metrics.UploadFailed, 0)
	}
	return count, err
}

func (s *GlucoseService) ingest(ctx context.Context, filename string, content []byte) (int, error) {
	upload, err := ingest.Parse(filename, content)
	if err != nil {
		return 0, err
	}

	var records []*models.GlucoseRecord
	for {
		row, err := upload.Rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, &RowError{Line: row.Line, Err: err}
		}

		record, err := schema.Validate(row.Values)
		if err != nil {
			s.logger.Warn("rejected upload row",
				zap.String("user_id", upload.OwnerID),
				zap.Int("line", row.Line),
				zap.Error(err),
			)
			return 0, &RowError{Line: row.Line, Err: err}
		}
		records = append(records, record)
	}

	if err := s.repo.BulkInsert(ctx, upload.OwnerID, records); err != nil {
		return 0, fmt.Errorf("store records: %w", err)
	}

	s.logger.Info("glucose records ingested",
		zap.String("user_id", upload.OwnerID),
		zap.String("checksum", upload.Checksum),
		zap.Int("records", len(records)),
	)
	return len(records), nil
}

// List returns one page of a user's records.
func (s *GlucoseService) List(ctx context.Context, filter models.ListFilter) ([]models.GlucoseRecord, error) {
	return s.repo.Query(ctx, filter)
}

// GetByID returns a single record, consulting the cache first when configured.
func (s *GlucoseService) GetByID(ctx context.Context, id int64) (*models.GlucoseRecord, error) {
	if s.cache != nil {
		record, err := s.cache.Get(ctx, id)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("failed to read record cache", zap.Int64("id", id), zap.Error(err))
		}
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, record); err != nil {
			s.logger.Warn("failed to cache record", zap.Int64("id", id), zap.Error(err))
		}
	}
	return record, nil
}

// Health verifies the storage backend is reachable.
func (s *GlucoseService) Health(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warn("database health check failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *GlucoseService) observe(outcome string, records int) {
	if s.observer != nil {
		s.observer.ObserveUpload(outcome, records)
	}
}
