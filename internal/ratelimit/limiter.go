// Package ratelimit enforces the per-domain hourly request budget.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rivaleye/rivaleye/internal/metrics"
	"github.com/rivaleye/rivaleye/internal/monitor"
)

// WindowStore is the durable per-domain counter behind the limiter.
type WindowStore interface {
	Acquire(ctx context.Context, domain string, limit int, now time.Time) (bool, error)
}

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerHour int
	// LocalRPS and LocalBurst smooth bursts inside one worker before the
	// durable window is consulted.
	LocalRPS   float64
	LocalBurst int
}

// Limiter combines an in-process token bucket per domain with the shared
// hourly window in the store. The store is authoritative across workers; the
// local bucket only keeps one worker from hammering a host inside a second.
type Limiter struct {
	store  WindowStore
	clock  monitor.Clock
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	local  map[string]*rate.Limiter
}

// New creates a Limiter.
func New(store WindowStore, clock monitor.Clock, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = 10
	}
	if cfg.LocalRPS <= 0 {
		cfg.LocalRPS = 1
	}
	if cfg.LocalBurst <= 0 {
		cfg.LocalBurst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		local:  make(map[string]*rate.Limiter),
	}
}

// TryAcquire reports whether a request to the domain fits the budget. Any
// store fault resolves to allow: limiter unavailability must never stall the
// pipeline.
func (l *Limiter) TryAcquire(ctx context.Context, domain string) bool {
	domain = strings.ToLower(domain)
	if !l.localLimiter(domain).Allow() {
		metrics.RateLimitDenied(domain)
		return false
	}

	allowed, err := l.store.Acquire(ctx, domain, l.cfg.RequestsPerHour, l.clock.Now())
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("domain", domain), zap.Error(err))
		return true
	}
	if !allowed {
		metrics.RateLimitDenied(domain)
	}
	return allowed
}

func (l *Limiter) localLimiter(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.local[domain]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.cfg.LocalRPS), l.cfg.LocalBurst)
		l.local[domain] = limiter
	}
	return limiter
}

// Domain extracts the lowercase hostname used as the limiter key.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return strings.ToLower(host), nil
}
