package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"glucoseapi/backend/services/glucose-service/internal/models"
)

// ErrMiss reports that the record is not cached.
var ErrMiss = errors.New("cache: miss")

// RecordCache keeps glucose records in redis. Records never change after insert, so
// entries only expire through their TTL.
type RecordCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRecordCache returns redis-backed cache.
func NewRecordCache(client redis.Cmdable, ttl time.Duration) *RecordCache {
	return &RecordCache{client: client, ttl: ttl}
}

func (c *RecordCache) key(id int64) string {
	return fmt.Sprintf("glucose:record:%d", id)
}

// Get returns the cached record or ErrMiss.
func (c *RecordCache) Get(ctx context.Context, id int64) (*models.GlucoseRecord, error) {
	result, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	var record models.GlucoseRecord
	if err := json.Unmarshal(result, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Set caches record under its ID.
func (c *RecordCache) Set(ctx context.Context, record *models.GlucoseRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(record.ID), data, c.ttl).Err()
}
