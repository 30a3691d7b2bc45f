package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// JobQueue is the durable, priority-ordered crawl work list.
type JobQueue struct {
	db     DB
	ids    monitor.IDGenerator
	logger *zap.Logger
}

// NewJobQueue constructs a JobQueue on the shared pool.
func NewJobQueue(db DB, ids monitor.IDGenerator, logger *zap.Logger) *JobQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobQueue{db: db, ids: ids, logger: logger}
}

const enqueueQuery = `
INSERT INTO crawl_jobs (id, target_id, url, priority, attempt, max_attempts, scheduled_for)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Enqueue inserts a job row visible to claimants once scheduled_for passes.
func (q *JobQueue) Enqueue(ctx context.Context, req monitor.EnqueueRequest) error {
	if req.TargetID == "" || req.URL == "" {
		return fmt.Errorf("enqueue: target id and url are required")
	}
	id, err := q.ids.NewID()
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	if _, err := q.db.Exec(ctx, enqueueQuery,
		id, req.TargetID, req.URL, req.Priority, req.Attempt, req.MaxAttempts, req.NotBefore,
	); err != nil {
		return fmt.Errorf("insert crawl job: %w", err)
	}
	return nil
}

const claimQuery = `
SELECT id, target_id, url, priority, attempt, max_attempts, scheduled_for
FROM crawl_jobs
WHERE scheduled_for <= now() AND attempt < max_attempts
ORDER BY priority DESC, scheduled_for ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`

const deleteClaimedQuery = `DELETE FROM crawl_jobs WHERE id = $1`

// ClaimNext atomically selects and removes the next eligible job. The lock
// and the delete share one transaction, so no two workers ever hold the same
// job; a crash between claim and completion drops the job rather than letting
// a second worker double-process it.
func (q *JobQueue) ClaimNext(ctx context.Context) (*monitor.CrawlJob, error) {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			q.logger.Warn("claim rollback failed", zap.Error(rbErr))
		}
	}()

	var job monitor.CrawlJob
	err = tx.QueryRow(ctx, claimQuery).Scan(
		&job.ID, &job.TargetID, &job.URL,
		&job.Priority, &job.Attempt, &job.MaxAttempts, &job.ScheduledFor,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next job: %w", err)
	}

	if _, err := tx.Exec(ctx, deleteClaimedQuery, job.ID); err != nil {
		return nil, fmt.Errorf("delete claimed job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return &job, nil
}
