package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glucoseapi/backend/services/glucose-service/internal/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RecordCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRecordCache(client, ttl), server
}

func TestRecordCacheKey(t *testing.T) {
	c := NewRecordCache(nil, 0)
	assert.Equal(t, "glucose:record:42", c.key(42))
}

func TestRecordCacheMiss(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	record, err := c.Get(context.Background(), 7)
	assert.ErrorIs(t, err, ErrMiss)
	assert.Nil(t, record)
}

func TestRecordCacheRoundTrip(t *testing.T) {
	c, server := newTestCache(t, time.Hour)
	value := 77
	ketone := 0.3
	stored := &models.GlucoseRecord{
		ID:                  42,
		UserID:              "u1",
		Device:              "FreeStyle LibreLink",
		SerialNumber:        "1D48A10E",
		DeviceTimestamp:     time.Date(2021, 2, 10, 10, 25, 0, 0, time.UTC),
		GlucoseValueHistory: &value,
		Ketone:              &ketone,
	}

	require.NoError(t, c.Set(context.Background(), stored))

	raw, err := server.Get("glucose:record:42")
	require.NoError(t, err)
	assert.Contains(t, raw, `"device_timestamp":"2021-02-10T10:25:00"`)

	got, err := c.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, stored, got)
	assert.Nil(t, got.Notes)
}

func TestRecordCacheEntriesExpire(t *testing.T) {
	c, server := newTestCache(t, time.Minute)
	require.NoError(t, c.Set(context.Background(), &models.GlucoseRecord{
		ID:              1,
		UserID:          "u1",
		DeviceTimestamp: time.Date(2021, 2, 10, 10, 25, 0, 0, time.UTC),
	}))

	assert.Equal(t, time.Minute, server.TTL("glucose:record:1"))

	server.FastForward(2 * time.Minute)
	_, err := c.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRecordCacheCorruptEntry(t *testing.T) {
	c, server := newTestCache(t, time.Hour)
	require.NoError(t, server.Set("glucose:record:5", "not json"))

	_, err := c.Get(context.Background(), 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestRecordCacheServerDown(t *testing.T) {
	c, server := newTestCache(t, time.Hour)
	server.Close()

	_, err := c.Get(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
