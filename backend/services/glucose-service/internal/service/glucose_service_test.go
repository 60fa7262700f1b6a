package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"glucoseapi/backend/services/glucose-service/internal/cache"
	"glucoseapi/backend/services/glucose-service/internal/ingest"
	"glucoseapi/backend/services/glucose-service/internal/metrics"
	"glucoseapi/backend/services/glucose-service/internal/models"
	"glucoseapi/backend/services/glucose-service/internal/repository"
	"glucoseapi/backend/services/glucose-service/internal/schema"
)

// memoryRepository mimics the Postgres repository semantics in memory.
type memoryRepository struct {
	mu        sync.Mutex
	records   []models.GlucoseRecord
	nextID    int64
	insertErr error
	pingErr   error
	getCalls  int
}

func (m *memoryRepository) BulkInsert(_ context.Context, ownerID string, records []*models.GlucoseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, rec := range records {
		m.nextID++
		rec.ID = m.nextID
		rec.UserID = ownerID
		m.records = append(m.records, *rec)
	}
	return nil
}

func (m *memoryRepository) Query(_ context.Context, filter models.ListFilter) ([]models.GlucoseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]models.GlucoseRecord, 0)
	for _, rec := range m.records {
		if rec.UserID != filter.UserID {
			continue
		}
		if filter.Start != nil && rec.DeviceTimestamp.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && rec.DeviceTimestamp.After(*filter.End) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].DeviceTimestamp, matched[j].DeviceTimestamp
		if a.Equal(b) {
			return matched[i].ID < matched[j].ID
		}
		if filter.Sort == models.SortAsc {
			return a.Before(b)
		}
		return a.After(b)
	})

	if filter.Offset >= len(matched) {
		return []models.GlucoseRecord{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

func (m *memoryRepository) GetByID(_ context.Context, id int64) (*models.GlucoseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	for _, rec := range m.records {
		if rec.ID == id {
			found := rec
			return &found, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (m *memoryRepository) Ping(context.Context) error {
	return m.pingErr
}

type memoryCache struct {
	records map[int64]models.GlucoseRecord
	getErr  error
}

func (c *memoryCache) Get(_ context.Context, id int64) (*models.GlucoseRecord, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	rec, ok := c.records[id]
	if !ok {
		return nil, cache.ErrMiss
	}
	return &rec, nil
}

func (c *memoryCache) Set(_ context.Context, record *models.GlucoseRecord) error {
	c.records[record.ID] = *record
	return nil
}

type uploadCounter struct {
	outcomes map[string]int
	records  int
}

func (u *uploadCounter) ObserveUpload(outcome string, records int) {
	u.outcomes[outcome]++
	u.records += records
}

const exportHeader = "Glukose-Werte,Erstellt am,21-02-2021 11:57\n" +
	"Gerät,Seriennummer,Gerätezeitstempel,Aufzeichnungstyp,Glukosewert-Verlauf mg/dL\n"

func exportWithRows(rows ...string) []byte {
	return []byte(exportHeader + strings.Join(rows, "\n") + "\n")
}

func newTestService(repo *memoryRepository) (*GlucoseService, *uploadCounter) {
	counter := &uploadCounter{outcomes: map[string]int{}}
	return NewGlucoseService(repo, nil, counter, zap.NewNop()), counter
}

func TestIngestSingleRowExample(t *testing.T) {
	repo := &memoryRepository{}
	svc, counter := newTestService(repo)

	count, err := svc.Ingest(context.Background(), "u1.csv", exportWithRows("FreeStyle LibreLink,1D48A10E,10-02-2021 10:25,0,77"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := svc.List(context.Background(), models.ListFilter{UserID: "u1", Sort: models.SortDesc, Limit: 100})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "u1", records[0].UserID)
	assert.Equal(t, time.Date(2021, 2, 10, 10, 25, 0, 0, time.UTC), records[0].DeviceTimestamp)
	require.NotNil(t, records[0].GlucoseValueHistory)
	assert.Equal(t, 77, *records[0].GlucoseValueHistory)

	assert.Equal(t, 1, counter.outcomes[metrics.UploadSucceeded])
	assert.Equal(t, 1, counter.records)
}

func TestIngestStoresEveryRow(t *testing.T) {
	repo := &memoryRepository{}
	svc, _ := newTestService(repo)

	count, err := svc.Ingest(context.Background(), "u1.csv", exportWithRows(
		"FreeStyle LibreLink,1D48A10E,10-02-2021 10:25,0,77",
		"FreeStyle LibreLink,1D48A10E,10-02-2021 10:40,0,",
		"FreeStyle LibreLink,1D48A10E,10-02-2021 10:55,0,80",
	))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	records, err := svc.List(context.Background(), models.ListFilter{UserID: "u1", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestIngestInvalidRowRejectsWholeUpload(t *testing.T) {
	repo := &memoryRepository{}
	svc, counter := newTestService(repo)

	_, err := svc.Ingest(context.Background(), "u1.csv", exportWithRows(
		"FreeStyle LibreLink,1D48A10E,10-02-2021 10:25,0,77",
		"FreeStyle LibreLink,1D48A10E,2021-02-10 10:40,0,78",
	))
	require.Error(t, err)
	assert.True(t, IsInvalidData(err))

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 4, rowErr.Line)
	assert.ErrorIs(t, err, schema.ErrInvalidTimestamp)

	assert.Empty(t, repo.records)
	assert.Equal(t, 1, counter.outcomes[metrics.UploadRejected])
}

func TestIngestMissingRequiredField(t *testing.T) {
	repo := &memoryRepository{}
	svc, _ := newTestService(repo)

	_, err := svc.Ingest(context.Background(), "u1.csv", exportWithRows("FreeStyle LibreLink,,10-02-2021 10:25,0,77"))
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrRequired)
	assert.Empty(t, repo.records)
}

func TestIngestWrongFormat(t *testing.T) {
	repo := &memoryRepository{}
	svc, counter := newTestService(repo)

	_, err := svc.Ingest(context.Background(), "test.json", []byte(`{"key": "value"}`))
	assert.ErrorIs(t, err, ingest.ErrWrongFormat)
	assert.False(t, IsInvalidData(err))
	assert.Equal(t, 1, counter.outcomes[metrics.UploadRejected])
}

func TestIngestAcceptsBareQuotesInNotes(t *testing.T) {
	repo := &memoryRepository{}
	svc, _ := newTestService(repo)
	content := "Gerät,Seriennummer,Gerätezeitstempel,Aufzeichnungstyp,Glukosewert-Verlauf mg/dL,Notizen\n" +
		"FreeStyle LibreLink,1D48A10E,10-02-2021 10:25,0,77,took 5 \"units\"\n"

	count, err := svc.Ingest(context.Background(), "u1.csv", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NotNil(t, repo.records[0].Notes)
	assert.Equal(t, `took 5 "units"`, *repo.records[0].Notes)
}

func TestIngestRejectsFilenameWithoutOwner(t *testing.T) {
	repo := &memoryRepository{}
	svc, _ := newTestService(repo)

	_, err := svc.Ingest(context.Background(), ".csv", exportWithRows("FreeStyle LibreLink,1D48A10E,10-02-2021 10:25,0,77"))
	assert.ErrorIs(t, err, ingest.ErrWrongFormat)
	assert.Empty(t, repo.records)
}

func TestIsInvalidData(t *testing.T) {
	assert.True(t, IsInvalidData(&RowError{Line: 2, Err: ingest.ErrMalformedCSV}))
	assert.True(t, IsInvalidData(fmt.Errorf("read: %w", ingest.ErrMalformedCSV)))
	assert.True(t, IsInvalidData(&RowError{Line: 3, Err: schema.ErrRequired}))
	assert.False(t, IsInvalidData(ingest.ErrWrongFormat))
	assert.False(t, IsInvalidData(errors.New("connection reset")))
}

func TestIngestStorageFailure(t *testing.T) {
	repo := &memoryRepository{insertErr: errors.New("connection reset")}
	svc, counter := newTestService(repo)

	_, err := svc.Ingest(context.Background(), "u1.csv", exportWithRows("FreeStyle LibreLink,1D48A10E,10-02-2021 10:25,0,77"))
	require.Error(t, err)
	assert.False(t, IsInvalidData(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, counter.outcomes[metrics.UploadFailed])
}

func TestIngestEmptyExport(t *testing.T) {
	svc, _ := newTestService(&memoryRepository{})

	count, err := svc.Ingest(context.Background(), "u1.csv", []byte(exportHeader))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestKeepsOwnersSeparate(t *testing.T) {
	repo := &memoryRepository{}
	svc, _ := newTestService(repo)
	row := "FreeStyle LibreLink,1D48A10E,10-02-2021 10:25,0,77"

	_, err := svc.Ingest(context.Background(), "rrrr.csv", exportWithRows(row))
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), "ssss.csv", exportWithRows(row))
	require.NoError(t, err)

	assert.Len(t, repo.records, 2)
	records, err := svc.List(context.Background(), models.ListFilter{UserID: "rrrr", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func seedFive(t *testing.T, svc *GlucoseService) {
	t.Helper()
	_, err := svc.Ingest(context.Background(), "aaaa.csv", exportWithRows(
		"FreeStyle LibreLink,1D48A10E,18-02-2021 10:57,0,77",
		"FreeStyle LibreLink,1D48A10E,18-02-2021 11:12,0,78",
		"FreeStyle LibreLink,1D48A10E,18-02-2021 11:12,0,79",
		"FreeStyle LibreLink,1D48A10E,18-02-2021 11:42,0,80",
		"FreeStyle LibreLink,1D48A10E,18-02-2021 11:57,0,81",
	))
	require.NoError(t, err)
}

func TestListOrderingAndRange(t *testing.T) {
	svc, _ := newTestService(&memoryRepository{})
	seedFive(t, svc)

	desc, err := svc.List(context.Background(), models.ListFilter{UserID: "aaaa", Sort: models.SortDesc, Limit: 100})
	require.NoError(t, err)
	require.Len(t, desc, 5)
	for i := 1; i < len(desc); i++ {
		assert.False(t, desc[i].DeviceTimestamp.After(desc[i-1].DeviceTimestamp))
	}

	asc, err := svc.List(context.Background(), models.ListFilter{UserID: "aaaa", Sort: models.SortAsc, Limit: 100})
	require.NoError(t, err)
	for i := 1; i < len(asc); i++ {
		assert.False(t, asc[i].DeviceTimestamp.Before(asc[i-1].DeviceTimestamp))
	}

	start := time.Date(2021, 2, 18, 11, 12, 0, 0, time.UTC)
	end := time.Date(2021, 2, 18, 11, 42, 0, 0, time.UTC)
	ranged, err := svc.List(context.Background(), models.ListFilter{UserID: "aaaa", Start: &start, End: &end, Sort: models.SortAsc, Limit: 100})
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.True(t, ranged[0].DeviceTimestamp.Equal(start))
	assert.True(t, ranged[2].DeviceTimestamp.Equal(end))
	assert.Less(t, ranged[0].ID, ranged[1].ID)
}

func TestListPagination(t *testing.T) {
	svc, _ := newTestService(&memoryRepository{})
	seedFive(t, svc)
	ctx := context.Background()

	first, err := svc.List(ctx, models.ListFilter{UserID: "aaaa", Limit: 2, Offset: 0})
	require.NoError(t, err)
	second, err := svc.List(ctx, models.ListFilter{UserID: "aaaa", Limit: 2, Offset: 2})
	require.NoError(t, err)
	all, err := svc.List(ctx, models.ListFilter{UserID: "aaaa", Limit: 4})
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	combined := append(append([]models.GlucoseRecord{}, first...), second...)
	assert.Equal(t, all, combined)

	seen := map[int64]bool{}
	for _, rec := range combined {
		assert.False(t, seen[rec.ID])
		seen[rec.ID] = true
	}
}

func TestGetByID(t *testing.T) {
	repo := &memoryRepository{}
	svc, _ := newTestService(repo)
	seedFive(t, svc)

	record, err := svc.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.ID)

	_, err = svc.GetByID(context.Background(), 999999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestGetByIDUsesCache(t *testing.T) {
	repo := &memoryRepository{}
	c := &memoryCache{records: map[int64]models.GlucoseRecord{}}
	svc := NewGlucoseService(repo, c, nil, zap.NewNop())
	seedFive(t, svc)

	_, err := svc.GetByID(context.Background(), 2)
	require.NoError(t, err)
	_, err = svc.GetByID(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.getCalls)
	assert.Contains(t, c.records, int64(2))
}

func TestGetByIDFallsBackWhenCacheFails(t *testing.T) {
	repo := &memoryRepository{}
	c := &memoryCache{records: map[int64]models.GlucoseRecord{}, getErr: errors.New("redis down")}
	svc := NewGlucoseService(repo, c, nil, zap.NewNop())
	seedFive(t, svc)

	record, err := svc.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), record.ID)
	assert.Equal(t, 1, repo.getCalls)
}

func TestHealth(t *testing.T) {
	repo := &memoryRepository{}
	svc, _ := newTestService(repo)
	assert.NoError(t, svc.Health(context.Background()))

	repo.pingErr = errors.New("dial tcp: refused")
	assert.ErrorIs(t, svc.Health(context.Background()), ErrStorageUnavailable)
}
