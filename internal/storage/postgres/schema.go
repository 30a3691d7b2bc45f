package postgres

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id UUID PRIMARY KEY,
	url TEXT NOT NULL,
	last_crawled_at TIMESTAMPTZ,
	last_alert_at TIMESTAMPTZ,
	industry TEXT NOT NULL DEFAULT '',
	industry_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crawl_jobs (
	id UUID PRIMARY KEY,
	target_id UUID NOT NULL,
	url TEXT NOT NULL,
	priority INT NOT NULL DEFAULT 0,
	attempt INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 3,
	scheduled_for TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_crawl_jobs_eligible
	ON crawl_jobs (priority DESC, scheduled_for ASC);

CREATE TABLE IF NOT EXISTS snapshots (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	target_id UUID NOT NULL,
	data JSONB NOT NULL,
	content_hash TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_snapshots_target_observed
	ON snapshots (target_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id UUID PRIMARY KEY,
	target_id UUID NOT NULL,
	alert_type TEXT NOT NULL,
	message TEXT NOT NULL,
	details JSONB NOT NULL,
	dedupe_key TEXT NOT NULL UNIQUE,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_alerts_target_created
	ON alerts (target_id, created_at DESC);

CREATE TABLE IF NOT EXISTS extraction_cache (
	content_hash TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rate_limit_windows (
	domain TEXT PRIMARY KEY,
	request_count INT NOT NULL,
	window_start TIMESTAMPTZ NOT NULL
);
`
