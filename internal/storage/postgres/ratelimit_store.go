package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// RateLimitStore tracks one fixed hourly request window per domain. Row-level
// locks make the counter safe under concurrent workers without any
// application-level mutex.
type RateLimitStore struct {
	db     DB
	window time.Duration
	logger *zap.Logger
}

// NewRateLimitStore constructs a RateLimitStore with a one-hour window.
func NewRateLimitStore(db DB, logger *zap.Logger) *RateLimitStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitStore{db: db, window: time.Hour, logger: logger}
}

const selectWindowQuery = `
SELECT request_count, window_start
FROM rate_limit_windows
WHERE domain = $1
FOR UPDATE`

// Acquire accounts one request against the domain's current window and
// reports whether it fits under the ceiling. The counter never exceeds the
// ceiling inside a live window; once the window start is more than an hour
// old the row resets to count 1 regardless of prior state.
func (s *RateLimitStore) Acquire(ctx context.Context, domain string, limit int, now time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin rate limit: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rate limit rollback failed", zap.Error(rbErr))
		}
	}()

	var (
		count       int
		windowStart time.Time
	)
	err = tx.QueryRow(ctx, selectWindowQuery, domain).Scan(&count, &windowStart)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx,
			`INSERT INTO rate_limit_windows (domain, request_count, window_start) VALUES ($1, 1, $2)`,
			domain, now,
		); err != nil {
			return false, fmt.Errorf("insert rate limit window: %w", err)
		}
		return true, s.commit(ctx, tx)
	case err != nil:
		return false, fmt.Errorf("select rate limit window: %w", err)
	}

	if now.Sub(windowStart) > s.window {
		if _, err := tx.Exec(ctx,
			`UPDATE rate_limit_windows SET request_count = 1, window_start = $1 WHERE domain = $2`,
			now, domain,
		); err != nil {
			return false, fmt.Errorf("reset rate limit window: %w", err)
		}
		return true, s.commit(ctx, tx)
	}

	if count >= limit {
		return false, s.commit(ctx, tx)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE rate_limit_windows SET request_count = request_count + 1 WHERE domain = $1`,
		domain,
	); err != nil {
		return false, fmt.Errorf("increment rate limit window: %w", err)
	}
	return true, s.commit(ctx, tx)
}

func (s *RateLimitStore) commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rate limit: %w", err)
	}
	return nil
}
