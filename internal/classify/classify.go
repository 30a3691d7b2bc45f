// Package classify assigns an industry label to a monitored site. The label
// steers the extraction prompt; a wrong guess degrades extraction quality but
// never correctness, so a cheap rule-based scorer is enough.
package classify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/extract"
	"github.com/rivaleye/rivaleye/internal/monitor"
)

// industryProfiles maps a label to markers that suggest it. Scoring counts
// distinct marker hits across the URL and the page text.
var industryProfiles = []struct {
	label   string
	markers []string
}{
	{"restaurant", []string{"menu", "appetizer", "entree", "cuisine", "reservation", "dine", "takeout", "lunch special"}},
	{"retail", []string{"add to cart", "checkout", "free shipping", "in stock", "sku", "shop now", "clearance"}},
	{"saas", []string{"free trial", "per month", "pricing plan", "subscription", "api access", "sign up", "dashboard"}},
	{"fitness", []string{"membership", "gym", "workout", "personal trainer", "class schedule", "yoga"}},
	{"salon", []string{"appointment", "stylist", "haircut", "spa", "book now", "manicure"}},
}

// matchesForFull is the hit count treated as certain.
const matchesForFull = 4

// Heuristic implements monitor.Classifier with keyword scoring. When no
// markup is supplied it fetches the page itself through a plain HTTP probe.
type Heuristic struct {
	probe  monitor.Fetcher
	logger *zap.Logger
}

// NewHeuristic creates a classifier. probe may be nil, in which case empty
// markup yields the unknown result instead of a fetch.
func NewHeuristic(probe monitor.Fetcher, logger *zap.Logger) *Heuristic {
	return &Heuristic{probe: probe, logger: logger.Named("classify")}
}

// Classify scores the URL and page text against each industry profile and
// returns the best label. Confidence scales with distinct marker hits and
// caps at 1.
func (h *Heuristic) Classify(ctx context.Context, url, html string) (monitor.Industry, error) {
	if html == "" && h.probe != nil {
		page, err := h.probe.Fetch(ctx, url, monitor.FetchOptions{})
		if err != nil {
			h.logger.Warn("probe fetch for classification failed", zap.String("url", url), zap.Error(err))
		} else {
			html = page.HTML
		}
	}

	haystack := strings.ToLower(url) + " " + extract.Normalize(html)

	best := monitor.Industry{Label: "general", Confidence: 0}
	for _, profile := range industryProfiles {
		hits := 0
		for _, marker := range profile.markers {
			if strings.Contains(haystack, marker) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := float64(hits) / matchesForFull
		if confidence > 1 {
			confidence = 1
		}
		if confidence > best.Confidence {
			best = monitor.Industry{Label: profile.label, Confidence: confidence}
		}
	}
	return best, nil
}
