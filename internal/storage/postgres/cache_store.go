package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// CacheStore is the content-hash keyed cache of extraction results.
type CacheStore struct {
	db DB
}

// NewCacheStore constructs a CacheStore on the shared pool.
func NewCacheStore(db DB) *CacheStore {
	return &CacheStore{db: db}
}

// Get returns the cached record for a content hash, or nil on a miss.
func (s *CacheStore) Get(ctx context.Context, contentHash string) (*monitor.ExtractedData, error) {
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM extraction_cache WHERE content_hash = $1`, contentHash,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cache entry: %w", err)
	}
	var data monitor.ExtractedData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	data.Canonicalize()
	return &data, nil
}

const putCacheQuery = `
INSERT INTO extraction_cache (content_hash, data)
VALUES ($1, $2)
ON CONFLICT (content_hash) DO NOTHING`

// Put stores a record under a content hash. Entries are write-once; a
// concurrent insert of the same key is a no-op.
func (s *CacheStore) Put(ctx context.Context, contentHash string, data monitor.ExtractedData) error {
	data.Canonicalize()
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if _, err := s.db.Exec(ctx, putCacheQuery, contentHash, payload); err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}
