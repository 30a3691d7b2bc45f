package postgres

import (
	"context"
	"fmt"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// AlertStore creates alert rows with dedupe-by-key semantics.
type AlertStore struct {
	db DB
}

// NewAlertStore constructs an AlertStore on the shared pool.
func NewAlertStore(db DB) *AlertStore {
	return &AlertStore{db: db}
}

const createAlertQuery = `
INSERT INTO alerts (id, target_id, alert_type, message, details, dedupe_key, is_read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
ON CONFLICT (dedupe_key) DO NOTHING`

// Create inserts an alert unless its dedupe key already exists. A duplicate
// insert is a successful no-op: concurrent or repeated detection of the same
// change never produces a second row. Returns whether a row was created.
func (s *AlertStore) Create(ctx context.Context, alert monitor.Alert) (bool, error) {
	if alert.DedupeKey == "" {
		return false, fmt.Errorf("alert dedupe key is required")
	}
	tag, err := s.db.Exec(ctx, createAlertQuery,
		alert.ID, alert.TargetID, string(alert.Type), alert.Message,
		[]byte(alert.Details), alert.DedupeKey, alert.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
