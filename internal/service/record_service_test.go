package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scielo-br/pid-provider/internal/models"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type stubRecordStore struct {
	record *models.DocumentRecord
	calls  int
}

func (s *stubRecordStore) GetByV3(ctx context.Context, v3 string) (*models.DocumentRecord, error) {
	s.calls++
	return s.record, nil
}

type mapCache struct {
	entries map[string][]byte
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, ok := c.entries[key]
	return raw, ok
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.entries[key] = value
}

func TestRecordServiceGetByV3(t *testing.T) {
	record := &models.DocumentRecord{ID: "doc-1", V3: models.StringPtr("TPg77CCrGj4wcbLCh9vG8bS")}

	t.Run("malformed pid", func(t *testing.T) {
		svc := NewRecordService(&stubRecordStore{}, nil, 0, nil)
		_, err := svc.GetByV3(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
	})

	t.Run("not found", func(t *testing.T) {
		svc := NewRecordService(&stubRecordStore{}, nil, 0, nil)
		_, err := svc.GetByV3(context.Background(), "TPg77CCrGj4wcbLCh9vG8bS")
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrNotFound.Code))
	})

	t.Run("second read served from cache", func(t *testing.T) {
		store := &stubRecordStore{record: record}
		cache := &mapCache{entries: map[string][]byte{}}
		svc := NewRecordService(store, cache, time.Minute, nil)

		first, err := svc.GetByV3(context.Background(), "TPg77CCrGj4wcbLCh9vG8bS")
		require.NoError(t, err)
		second, err := svc.GetByV3(context.Background(), "TPg77CCrGj4wcbLCh9vG8bS")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, store.calls)
	})
}
