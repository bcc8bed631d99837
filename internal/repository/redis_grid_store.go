package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalGrid/internal/domain/models"
	"SignalGrid/pkg/cache"
)

const gridKeyspace = "grid:"

// gridEnvelope is the value stored under each Redis key.
type gridEnvelope struct {
	SymbolDate  string    `json:"symbolDate"`
	StateData   string    `json:"stateData"`
	LastUpdated time.Time `json:"lastUpdated"`
	TTL         int64     `json:"ttl"`
}

// RedisGridStore persists grid records as JSON envelopes with absolute expiry.
type RedisGridStore struct {
	cache     *cache.RedisCache
	scanCount int64
}

// NewRedisGridStore wraps a prefixed Redis cache.
func NewRedisGridStore(c *cache.RedisCache, scanCount int64) *RedisGridStore {
	return &RedisGridStore{cache: c, scanCount: scanCount}
}

func (s *RedisGridStore) Put(ctx context.Context, rec models.PersistedRecord) error {
	b, err := encodeEnvelope(rec)
	if err != nil {
		return err
	}
	if err := s.cache.SetAt(ctx, gridKeyspace+rec.Key, b, rec.ExpiresAt); err != nil {
		return fmt.Errorf("redis put %s: %w", rec.Key, err)
	}
	return nil
}

func (s *RedisGridStore) PutBatch(ctx context.Context, recs []models.PersistedRecord) error {
	entries := make([]cache.Entry, 0, len(recs))
	for _, rec := range recs {
		b, err := encodeEnvelope(rec)
		if err != nil {
			return err
		}
		entries = append(entries, cache.Entry{Key: gridKeyspace + rec.Key, Value: b, ExpireAt: rec.ExpiresAt})
	}
	if err := s.cache.SetManyAt(ctx, entries); err != nil {
		return fmt.Errorf("redis put batch (%d): %w", len(recs), err)
	}
	return nil
}

// ScanAll returns every live record. Undecodable values come back with only
// their key set so the caller can report and skip them.
func (s *RedisGridStore) ScanAll(ctx context.Context) ([]models.PersistedRecord, error) {
	entries, err := s.cache.ScanAll(ctx, s.scanCount)
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	out := make([]models.PersistedRecord, 0, len(entries))
	for _, e := range entries {
		if len(e.Key) <= len(gridKeyspace) || e.Key[:len(gridKeyspace)] != gridKeyspace {
			continue
		}
		out = append(out, decodeEnvelope(e.Key[len(gridKeyspace):], e.Value))
	}
	return out, nil
}

func (s *RedisGridStore) Health(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

func (s *RedisGridStore) Close() error {
	return s.cache.Close()
}

func encodeEnvelope(rec models.PersistedRecord) ([]byte, error) {
	env := gridEnvelope{
		SymbolDate:  rec.Key,
		StateData:   rec.StateData,
		LastUpdated: rec.LastUpdated.UTC(),
	}
	if !rec.ExpiresAt.IsZero() {
		env.TTL = rec.TTL()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Key, err)
	}
	return b, nil
}

func decodeEnvelope(key string, b []byte) models.PersistedRecord {
	var env gridEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return models.PersistedRecord{Key: key}
	}
	rec := models.PersistedRecord{
		Key:         env.SymbolDate,
		StateData:   env.StateData,
		LastUpdated: env.LastUpdated,
	}
	if rec.Key == "" {
		rec.Key = key
	}
	if env.TTL > 0 {
		rec.ExpiresAt = time.Unix(env.TTL, 0).UTC()
	}
	return rec
}
