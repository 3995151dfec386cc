package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scielo-br/pid-provider/internal/models"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type recordStore interface {
	GetByV3(ctx context.Context, v3 string) (*models.DocumentRecord, error)
}

type recordCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// RecordService resolves registered documents by pid, with a cache-aside
// layer in front of the registry for the read-heavy resolution endpoint.
type RecordService struct {
	documents recordStore
	cache     recordCache
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRecordService constructs the service. cache may be nil.
func NewRecordService(documents recordStore, cache recordCache, ttl time.Duration, logger *zap.Logger) *RecordService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{documents: documents, cache: cache, ttl: ttl, logger: logger}
}

// GetByV3 returns the registered document carrying the opaque pid.
func (s *RecordService) GetByV3(ctx context.Context, v3 string) (*models.DocumentRecord, error) {
	if !IsValidV3(v3) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "not a well-formed v3 pid")
	}

	key := "pid:v3:" + v3
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			var record models.DocumentRecord
			if err := json.Unmarshal(raw, &record); err == nil {
				return &record, nil
			}
		}
	}

	record, err := s.documents.GetByV3(ctx, v3)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no document registered under that v3")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(record); err == nil {
			s.cache.Set(ctx, key, raw, s.ttl)
		}
	}
	return record, nil
}

// RedisRecordCache adapts a redis client to the record cache. Failures are
// swallowed; the registry remains the source of truth.
type RedisRecordCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRecordCache constructs the adapter.
func NewRedisRecordCache(client *redis.Client, logger *zap.Logger) *RedisRecordCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRecordCache{client: client, logger: logger}
}

// Get reads a cached entry.
func (c *RedisRecordCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("record cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return raw, true
}

// Set writes a cached entry.
func (c *RedisRecordCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Debug("record cache write failed", zap.Error(err))
	}
}
