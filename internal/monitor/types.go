// Package monitor defines core types shared across subsystems.
package monitor

import (
	"encoding/json"
	"net/http"
	"time"
)

// CrawlJob is one unit of queued work: a single URL for a single target.
// Jobs are ephemeral; a successful claim removes the row.
type CrawlJob struct {
	ID           string    `json:"id"`
	TargetID     string    `json:"target_id"`
	URL          string    `json:"url"`
	Priority     int       `json:"priority"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// EnqueueRequest captures everything needed to queue a crawl.
type EnqueueRequest struct {
	TargetID    string
	URL         string
	Priority    int
	Attempt     int
	MaxAttempts int
	NotBefore   time.Time
}

// Target is a monitored external URL (a "competitor").
type Target struct {
	ID                 string     `json:"id"`
	URL                string     `json:"url"`
	LastCrawledAt      *time.Time `json:"last_crawled_at,omitempty"`
	LastAlertAt        *time.Time `json:"last_alert_at,omitempty"`
	Industry           string     `json:"industry,omitempty"`
	IndustryConfidence float64    `json:"industry_confidence"`
}

// PriceItem is a single named price extracted from a page.
type PriceItem struct {
	Item  string `json:"item"`
	Price string `json:"price"`
}

// Promotion is an advertised deal or offer.
type Promotion struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MenuItem is a named product or dish listed on the page.
type MenuItem struct {
	Name        string `json:"name"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
}

// ExtractedData is the structured record produced by the extraction engine.
type ExtractedData struct {
	Prices     []PriceItem `json:"prices"`
	Promotions []Promotion `json:"promotions"`
	MenuItems  []MenuItem  `json:"menu_items"`
}

// Canonicalize replaces nil slices with empty ones so downstream code and
// serialized snapshots never see null arrays.
func (d *ExtractedData) Canonicalize() {
	if d.Prices == nil {
		d.Prices = []PriceItem{}
	}
	if d.Promotions == nil {
		d.Promotions = []Promotion{}
	}
	if d.MenuItems == nil {
		d.MenuItems = []MenuItem{}
	}
}

// IsEmpty reports whether no structured records were extracted at all.
func (d ExtractedData) IsEmpty() bool {
	return len(d.Prices) == 0 && len(d.Promotions) == 0 && len(d.MenuItems) == 0
}

// Snapshot is one structured extraction result tied to a target and a point
// in time. Snapshots are append-only.
type Snapshot struct {
	TargetID    string        `json:"target_id"`
	Data        ExtractedData `json:"data"`
	ContentHash string        `json:"content_hash"`
	ObservedAt  time.Time     `json:"observed_at"`
}

// AlertType classifies what kind of change an alert describes.
type AlertType string

// Alert type values persisted in the alert store.
const (
	AlertPriceChange  AlertType = "price_change"
	AlertNewPromotion AlertType = "new_promotion"
	AlertMenuChange   AlertType = "menu_change"
)

// Alert is a deduplicated notification about a detected change.
type Alert struct {
	ID        string          `json:"id"`
	TargetID  string          `json:"target_id"`
	Type      AlertType       `json:"alert_type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details"`
	DedupeKey string          `json:"dedupe_key"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// PriceDelta records one price-level difference between two snapshots.
type PriceDelta struct {
	Item     string `json:"item"`
	OldPrice string `json:"old_price,omitempty"`
	NewPrice string `json:"new_price,omitempty"`
	Reduced  bool   `json:"reduced,omitempty"`
	Change   string `json:"change"` // "added", "updated", "removed"
}

// PromotionDelta records a promotion that appeared or ended.
type PromotionDelta struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Change      string `json:"change"` // "added", "ended"
}

// MenuDelta records a menu item that appeared or disappeared.
type MenuDelta struct {
	Name   string `json:"name"`
	Change string `json:"change"` // "added", "removed"
}

// ChangeSet groups every difference found between two snapshots.
type ChangeSet struct {
	Prices     []PriceDelta     `json:"prices,omitempty"`
	Promotions []PromotionDelta `json:"promotions,omitempty"`
	MenuItems  []MenuDelta      `json:"menu_items,omitempty"`
}

// Classification describes the outcome of a detection pass.
type Classification string

// Detection pass outcomes.
const (
	ClassFirstCrawl Classification = "first_crawl"
	ClassNoChange   Classification = "no_change"
	ClassChanged    Classification = "changed"
)

// DetectionResult is everything the change detector produced for one crawl.
type DetectionResult struct {
	Classification Classification
	Changes        ChangeSet
	Alerts         []Alert
	Suppressed     bool // true when the cooldown gate blocked alert creation
}

// FetchOptions tunes a single fetch.
type FetchOptions struct {
	Timeout       time.Duration
	WaitForIdle   bool
	IncludeImages bool
}

// Page is the result of rendering a URL.
type Page struct {
	URL        string
	StatusCode int
	HTML       string
	Headers    http.Header
	Duration   time.Duration
}

// ExtractionResult carries the structured record plus the hashes that key it.
type ExtractionResult struct {
	Data           ExtractedData
	ContentHash    string // hash of the raw fetched content
	NormalizedHash string
	CacheHit       bool
	UsedFallback   bool
}

// Industry is the output of the classification hook.
type Industry struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// PushNotification is the payload handed to the push collaborator.
type PushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Tag   string `json:"tag"`
}

// PushResult summarizes a push fan-out call. The core only needs the counts.
type PushResult struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// NotifyOutcome is the result of an alert-notification enqueue. Reasons such
// as "quiet hours" mean delayed, not refused.
type NotifyOutcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
