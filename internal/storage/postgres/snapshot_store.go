package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// SnapshotStore is the append-only log of structured extraction results.
type SnapshotStore struct {
	db DB
}

// NewSnapshotStore constructs a SnapshotStore on the shared pool.
func NewSnapshotStore(db DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const appendSnapshotQuery = `
INSERT INTO snapshots (target_id, data, content_hash, observed_at)
VALUES ($1, $2, $3, $4)`

// Append persists one snapshot. Snapshots are never updated or deleted.
func (s *SnapshotStore) Append(ctx context.Context, snap monitor.Snapshot) error {
	snap.Data.Canonicalize()
	payload, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}
	if _, err := s.db.Exec(ctx, appendSnapshotQuery,
		snap.TargetID, payload, snap.ContentHash, snap.ObservedAt,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const recentSnapshotsQuery = `
SELECT target_id, data, content_hash, observed_at
FROM snapshots
WHERE target_id = $1
ORDER BY observed_at DESC
LIMIT $2`

// Recent returns up to limit snapshots, newest first.
func (s *SnapshotStore) Recent(ctx context.Context, targetID string, limit int) ([]monitor.Snapshot, error) {
	rows, err := s.db.Query(ctx, recentSnapshotsQuery, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []monitor.Snapshot
	for rows.Next() {
		var (
			snap    monitor.Snapshot
			payload []byte
		)
		if err := rows.Scan(&snap.TargetID, &payload, &snap.ContentHash, &snap.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if err := json.Unmarshal(payload, &snap.Data); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot data: %w", err)
		}
		snap.Data.Canonicalize()
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}
