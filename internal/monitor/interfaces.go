package monitor

import (
	"context"
	"time"
)

// JobQueue provides durable enqueue and atomic destructive claim semantics.
type JobQueue interface {
	Enqueue(ctx context.Context, req EnqueueRequest) error
	// ClaimNext atomically selects, locks, and removes the next eligible job.
	// Returns nil when the queue is empty.
	ClaimNext(ctx context.Context) (*CrawlJob, error)
}

// TargetStore persists monitored targets.
type TargetStore interface {
	Get(ctx context.Context, id string) (Target, error)
	RecordCrawl(ctx context.Context, id string, at time.Time) error
	RecordAlertBurst(ctx context.Context, id string, at time.Time) error
	UpdateIndustry(ctx context.Context, id string, industry Industry) error
	// ListDue returns targets whose next scheduled crawl is at or before the
	// given instant.
	ListDue(ctx context.Context, before time.Time, frequency time.Duration) ([]Target, error)
}

// SnapshotStore is the append-only log of structured records per target.
type SnapshotStore interface {
	Append(ctx context.Context, snap Snapshot) error
	// Recent returns up to limit snapshots ordered by observed_at descending.
	Recent(ctx context.Context, targetID string, limit int) ([]Snapshot, error)
}

// AlertStore creates alerts with insert-or-ignore dedupe semantics.
type AlertStore interface {
	// Create returns false when the dedupe key already exists; that is a
	// successful no-op, never an error.
	Create(ctx context.Context, alert Alert) (bool, error)
}

// ExtractionCache is a write-once content-hash keyed cache of LLM results.
type ExtractionCache interface {
	Get(ctx context.Context, contentHash string) (*ExtractedData, error)
	Put(ctx context.Context, contentHash string, data ExtractedData) error
}

// RateLimiter gatekeeps external requests per domain. Implementations must
// fail open: limiter faults never block crawling.
type RateLimiter interface {
	TryAcquire(ctx context.Context, domain string) bool
}

// Fetcher renders a URL and returns the full page markup.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (Page, error)
}

// Extractor converts raw markup into a structured record.
type Extractor interface {
	Extract(ctx context.Context, html string, industry string) (ExtractionResult, error)
}

// ChangeDetector diffs the current record against the previous snapshot and
// produces cooldown-gated, deduplicated alerts.
type ChangeDetector interface {
	Detect(ctx context.Context, target Target, current ExtractedData, currentHash string) (DetectionResult, error)
}

// Classifier implements the industry classification hook.
type Classifier interface {
	Classify(ctx context.Context, url string, html string) (Industry, error)
}

// AlertNotifier requests email delivery for a created alert without awaiting it.
type AlertNotifier interface {
	EnqueueAlertNotification(ctx context.Context, alert Alert) NotifyOutcome
}

// PushSender fans an alert out to push subscribers. Idempotent per call.
type PushSender interface {
	SendPush(ctx context.Context, targetUserID string, n PushNotification) PushResult
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests for cache keys and dedupe keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and alert IDs.
type IDGenerator interface {
	NewID() (string, error)
}
