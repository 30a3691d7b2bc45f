// Package worker implements the crawl pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/metrics"
	"github.com/rivaleye/rivaleye/internal/monitor"
	"github.com/rivaleye/rivaleye/internal/ratelimit"
)

// Fixed re-enqueue delays per failure class.
const (
	rateLimitBackoff = 30 * time.Minute
	transientBackoff = 5 * time.Minute
)

// Config controls batch execution.
type Config struct {
	MaxJobsPerBatch    int
	BatchBudget        time.Duration
	MaxAttempts        int
	FetchTimeout       time.Duration
	WaitForIdle        bool
	IncludeImages      bool
	ClassifyThreshold  float64
	RecrawlFrequency   time.Duration
	ArchiveContentType string
}

// Worker claims queued crawl jobs and runs each through the full pipeline:
// rate limit gate, fetch, extract, persist, detect, record.
type Worker struct {
	queue      monitor.JobQueue
	targets    monitor.TargetStore
	snapshots  monitor.SnapshotStore
	fetcher    monitor.Fetcher
	extractor  monitor.Extractor
	detector   monitor.ChangeDetector
	classifier monitor.Classifier
	limiter    monitor.RateLimiter
	archive    monitor.BlobStore
	clock      monitor.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. archive and classifier may be nil; those stages
// are then skipped.
func New(
	queue monitor.JobQueue,
	targets monitor.TargetStore,
	snapshots monitor.SnapshotStore,
	fetcher monitor.Fetcher,
	extractor monitor.Extractor,
	detector monitor.ChangeDetector,
	classifier monitor.Classifier,
	limiter monitor.RateLimiter,
	archive monitor.BlobStore,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxJobsPerBatch <= 0 {
		cfg.MaxJobsPerBatch = 5
	}
	if cfg.BatchBudget <= 0 {
		cfg.BatchBudget = 4 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ArchiveContentType == "" {
		cfg.ArchiveContentType = "text/html; charset=utf-8"
	}
	return &Worker{
		queue:      queue,
		targets:    targets,
		snapshots:  snapshots,
		fetcher:    fetcher,
		extractor:  extractor,
		detector:   detector,
		classifier: classifier,
		limiter:    limiter,
		archive:    archive,
		clock:      clock,
		cfg:        cfg,
		logger:     logger.Named("worker"),
	}
}

// RunBatch processes up to MaxJobsPerBatch jobs sequentially, stopping early
// when the queue drains, the context ends, or the wall-clock budget is nearly
// exhausted. Returns the number of jobs processed.
func (w *Worker) RunBatch(ctx context.Context) (int, error) {
	deadline := w.clock.Now().Add(w.cfg.BatchBudget)
	// Keep enough headroom for one worst-case fetch plus persistence.
	reserve := w.cfg.FetchTimeout + 30*time.Second

	processed := 0
	for processed < w.cfg.MaxJobsPerBatch {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if remaining := deadline.Sub(w.clock.Now()); remaining < reserve {
			w.logger.Info("batch budget nearly exhausted, stopping early",
				zap.Duration("remaining", remaining),
				zap.Int("processed", processed))
			return processed, nil
		}

		job, err := w.queue.ClaimNext(ctx)
		if err != nil {
			return processed, fmt.Errorf("claim next job: %w", err)
		}
		if job == nil {
			return processed, nil
		}

		w.processJob(ctx, *job)
		processed++
	}
	return processed, nil
}

// processJob runs one job and applies the retry policy to its outcome.
func (w *Worker) processJob(ctx context.Context, job monitor.CrawlJob) {
	start := w.clock.Now()
	err := w.runJob(ctx, job)
	if err == nil {
		metrics.JobOutcome("success")
		w.logger.Info("job completed",
			zap.String("job_id", job.ID),
			zap.String("target_id", job.TargetID),
			zap.Duration("elapsed", w.clock.Now().Sub(start)))
		return
	}

	code := monitor.JobCode(err)
	metrics.JobOutcome(string(code))
	w.logger.Error("job failed",
		zap.String("job_id", job.ID),
		zap.String("target_id", job.TargetID),
		zap.String("code", string(code)),
		zap.Int("attempt", job.Attempt),
		zap.Error(err))

	var jobErr *monitor.JobError
	if errors.As(err, &jobErr) && !jobErr.Retryable() {
		w.logger.Warn("job dropped, failure is terminal",
			zap.String("job_id", job.ID),
			zap.String("code", string(code)))
		metrics.JobDropped()
		return
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.cfg.MaxAttempts
	}
	nextAttempt := job.Attempt + 1
	if nextAttempt >= maxAttempts {
		w.logger.Warn("job dropped after exhausting attempts",
			zap.String("job_id", job.ID),
			zap.String("target_id", job.TargetID),
			zap.Int("attempts", nextAttempt))
		metrics.JobDropped()
		return
	}

	delay := transientBackoff
	if code == monitor.CodeRateLimited {
		delay = rateLimitBackoff
	}
	if err := w.queue.Enqueue(ctx, monitor.EnqueueRequest{
		TargetID:    job.TargetID,
		URL:         job.URL,
		Priority:    job.Priority,
		Attempt:     nextAttempt,
		MaxAttempts: maxAttempts,
		NotBefore:   w.clock.Now().Add(delay),
	}); err != nil {
		w.logger.Error("re-enqueue failed, job lost",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

// runJob executes the pipeline stages in order. Every failure carries a
// taxonomy code for the retry policy.
func (w *Worker) runJob(ctx context.Context, job monitor.CrawlJob) error {
	target, err := w.targets.Get(ctx, job.TargetID)
	if err != nil {
		if errors.Is(err, monitor.ErrTargetNotFound) {
			return monitor.NewJobError(monitor.CodeTargetNotFound, err)
		}
		return monitor.NewJobError(monitor.CodeUnknown, err)
	}

	domain, err := ratelimit.Domain(job.URL)
	if err != nil {
		return monitor.NewJobError(monitor.CodeFetchFailed, fmt.Errorf("parse job url: %w", err))
	}
	if !w.limiter.TryAcquire(ctx, domain) {
		return monitor.NewJobError(monitor.CodeRateLimited,
			fmt.Errorf("domain %s is over its hourly budget", domain))
	}

	page, err := w.fetcher.Fetch(ctx, job.URL, monitor.FetchOptions{
		Timeout:       w.cfg.FetchTimeout,
		WaitForIdle:   w.cfg.WaitForIdle,
		IncludeImages: w.cfg.IncludeImages,
	})
	if err != nil {
		return monitor.NewJobError(monitor.CodeFetchFailed, err)
	}
	metrics.ObserveFetchDuration(domain, page.Duration)

	target = w.maybeClassify(ctx, target, page.HTML)

	extraction, err := w.extractor.Extract(ctx, page.HTML, target.Industry)
	if err != nil {
		return monitor.NewJobError(monitor.CodeExtractionFailed, err)
	}
	w.logger.Debug("extraction finished",
		zap.String("target_id", target.ID),
		zap.Bool("cache_hit", extraction.CacheHit),
		zap.Bool("used_fallback", extraction.UsedFallback))

	w.archiveRawHTML(ctx, target.ID, extraction.ContentHash, page.HTML)

	now := w.clock.Now()
	if err := w.persistSnapshot(ctx, target.ID, extraction, now); err != nil {
		return monitor.NewJobError(monitor.CodePersistFailed, err)
	}

	result, err := w.detector.Detect(ctx, target, extraction.Data, extraction.ContentHash)
	if err != nil {
		return monitor.NewJobError(monitor.CodePersistFailed, err)
	}
	w.logger.Info("detection finished",
		zap.String("target_id", target.ID),
		zap.String("classification", string(result.Classification)),
		zap.Int("alerts", len(result.Alerts)),
		zap.Bool("suppressed", result.Suppressed))

	if err := w.targets.RecordCrawl(ctx, target.ID, now); err != nil {
		return monitor.NewJobError(monitor.CodePersistFailed, err)
	}

	w.scheduleRecrawl(ctx, job, now)
	return nil
}

// maybeClassify refreshes the industry label on first crawl or when stored
// confidence is below the threshold. Classification is advisory; failures
// only log.
func (w *Worker) maybeClassify(ctx context.Context, target monitor.Target, html string) monitor.Target {
	if w.classifier == nil {
		return target
	}
	if target.Industry != "" && target.IndustryConfidence >= w.cfg.ClassifyThreshold {
		return target
	}

	industry, err := w.classifier.Classify(ctx, target.URL, html)
	if err != nil {
		w.logger.Warn("industry classification failed",
			zap.String("target_id", target.ID), zap.Error(err))
		return target
	}
	if industry.Confidence <= target.IndustryConfidence {
		return target
	}
	if err := w.targets.UpdateIndustry(ctx, target.ID, industry); err != nil {
		w.logger.Warn("industry update failed",
			zap.String("target_id", target.ID), zap.Error(err))
	}
	target.Industry = industry.Label
	target.IndustryConfidence = industry.Confidence
	return target
}

// archiveRawHTML stores the fetched markup for later reprocessing. Best
// effort: archive faults never fail the job.
func (w *Worker) archiveRawHTML(ctx context.Context, targetID, contentHash, html string) {
	if w.archive == nil {
		return
	}
	path := fmt.Sprintf("targets/%s/%s.html", targetID, contentHash)
	uri, err := w.archive.PutObject(ctx, path, w.cfg.ArchiveContentType, []byte(html))
	if err != nil {
		w.logger.Warn("raw html archive failed",
			zap.String("target_id", targetID), zap.Error(err))
		return
	}
	w.logger.Debug("raw html archived", zap.String("uri", uri))
}

// persistSnapshot appends the record unless the latest snapshot already
// carries the same content hash. Identical hashes represent no observable
// change even if re-persisted.
func (w *Worker) persistSnapshot(ctx context.Context, targetID string, extraction monitor.ExtractionResult, now time.Time) error {
	recent, err := w.snapshots.Recent(ctx, targetID, 1)
	if err != nil {
		return fmt.Errorf("load latest snapshot: %w", err)
	}
	if len(recent) > 0 && recent[0].ContentHash == extraction.ContentHash {
		return nil
	}
	if err := w.snapshots.Append(ctx, monitor.Snapshot{
		TargetID:    targetID,
		Data:        extraction.Data,
		ContentHash: extraction.ContentHash,
		ObservedAt:  now,
	}); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// scheduleRecrawl queues the next crawl for this target. Failures only log;
// the due-target sweep re-seeds missed schedules.
func (w *Worker) scheduleRecrawl(ctx context.Context, job monitor.CrawlJob, now time.Time) {
	if w.cfg.RecrawlFrequency <= 0 {
		return
	}
	if err := w.queue.Enqueue(ctx, monitor.EnqueueRequest{
		TargetID:    job.TargetID,
		URL:         job.URL,
		Priority:    job.Priority,
		MaxAttempts: w.cfg.MaxAttempts,
		NotBefore:   now.Add(w.cfg.RecrawlFrequency),
	}); err != nil {
		w.logger.Warn("recrawl enqueue failed",
			zap.String("target_id", job.TargetID), zap.Error(err))
	}
}
