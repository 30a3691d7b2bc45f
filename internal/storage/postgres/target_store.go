package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// TargetStore persists monitored targets.
type TargetStore struct {
	db DB
}

// NewTargetStore constructs a TargetStore on the shared pool.
func NewTargetStore(db DB) *TargetStore {
	return &TargetStore{db: db}
}

const getTargetQuery = `
SELECT id, url, last_crawled_at, last_alert_at, industry, industry_confidence
FROM targets
WHERE id = $1`

// Get looks a target up by id.
func (s *TargetStore) Get(ctx context.Context, id string) (monitor.Target, error) {
	var t monitor.Target
	err := s.db.QueryRow(ctx, getTargetQuery, id).Scan(
		&t.ID, &t.URL, &t.LastCrawledAt, &t.LastAlertAt, &t.Industry, &t.IndustryConfidence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Target{}, monitor.ErrTargetNotFound
	}
	if err != nil {
		return monitor.Target{}, fmt.Errorf("select target: %w", err)
	}
	return t, nil
}

// RecordCrawl stamps the target's last crawl time.
func (s *TargetStore) RecordCrawl(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE targets SET last_crawled_at = $1 WHERE id = $2`, at, id,
	); err != nil {
		return fmt.Errorf("update last crawled: %w", err)
	}
	return nil
}

// RecordAlertBurst stamps the target's last alert time, opening a new
// cooldown window.
func (s *TargetStore) RecordAlertBurst(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE targets SET last_alert_at = $1 WHERE id = $2`, at, id,
	); err != nil {
		return fmt.Errorf("update last alert: %w", err)
	}
	return nil
}

// UpdateIndustry persists a re-classification result.
func (s *TargetStore) UpdateIndustry(ctx context.Context, id string, industry monitor.Industry) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE targets SET industry = $1, industry_confidence = $2 WHERE id = $3`,
		industry.Label, industry.Confidence, id,
	); err != nil {
		return fmt.Errorf("update industry: %w", err)
	}
	return nil
}

const listDueQuery = `
SELECT t.id, t.url, t.last_crawled_at, t.last_alert_at, t.industry, t.industry_confidence
FROM targets t
WHERE (t.last_crawled_at IS NULL OR t.last_crawled_at + make_interval(secs => $2) <= $1)
  AND NOT EXISTS (SELECT 1 FROM crawl_jobs j WHERE j.target_id = t.id)
ORDER BY t.last_crawled_at ASC NULLS FIRST`

// ListDue returns targets due for a crawl that have no job pending.
func (s *TargetStore) ListDue(ctx context.Context, before time.Time, frequency time.Duration) ([]monitor.Target, error) {
	rows, err := s.db.Query(ctx, listDueQuery, before, frequency.Seconds())
	if err != nil {
		return nil, fmt.Errorf("select due targets: %w", err)
	}
	defer rows.Close()

	var targets []monitor.Target
	for rows.Next() {
		var t monitor.Target
		if err := rows.Scan(
			&t.ID, &t.URL, &t.LastCrawledAt, &t.LastAlertAt, &t.Industry, &t.IndustryConfidence,
		); err != nil {
			return nil, fmt.Errorf("scan due target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due targets: %w", err)
	}
	return targets, nil
}
