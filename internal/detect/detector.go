// Package detect turns two structured snapshots into typed change sets and
// deduplicated, cooldown-gated alerts.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/hash/sha256"
	"github.com/rivaleye/rivaleye/internal/metrics"
	"github.com/rivaleye/rivaleye/internal/monitor"
)

// AlertDispatcher fans a created alert out to the notification channels.
// Implementations must return promptly and never propagate delivery errors.
type AlertDispatcher interface {
	Dispatch(alert monitor.Alert, target monitor.Target)
}

// Config tunes a Detector.
type Config struct {
	// Cooldown is the minimum gap between alert bursts for one target.
	Cooldown time.Duration
}

// Detector implements monitor.ChangeDetector.
type Detector struct {
	snapshots  monitor.SnapshotStore
	alerts     monitor.AlertStore
	targets    monitor.TargetStore
	dispatcher AlertDispatcher
	clock      monitor.Clock
	ids        monitor.IDGenerator
	cooldown   time.Duration
	logger     *zap.Logger
}

// New builds a Detector. dispatcher may be nil when fan-out is disabled.
func New(
	snapshots monitor.SnapshotStore,
	alerts monitor.AlertStore,
	targets monitor.TargetStore,
	dispatcher AlertDispatcher,
	clock monitor.Clock,
	ids monitor.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Detector {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	return &Detector{
		snapshots:  snapshots,
		alerts:     alerts,
		targets:    targets,
		dispatcher: dispatcher,
		clock:      clock,
		ids:        ids,
		cooldown:   cfg.Cooldown,
		logger:     logger.Named("detect"),
	}
}

// Detect classifies the current record against the target's snapshot history
// and creates alerts for genuine changes. The previous snapshot is the most
// recent one whose hash differs from currentHash, which skips the snapshot
// persisted for the current crawl before detection runs.
func (d *Detector) Detect(ctx context.Context, target monitor.Target, current monitor.ExtractedData, currentHash string) (monitor.DetectionResult, error) {
	recent, err := d.snapshots.Recent(ctx, target.ID, 2)
	if err != nil {
		return monitor.DetectionResult{}, fmt.Errorf("load recent snapshots: %w", err)
	}

	previous := previousSnapshot(recent, currentHash)
	if previous == nil {
		if len(recent) < 2 {
			return monitor.DetectionResult{Classification: monitor.ClassFirstCrawl}, nil
		}
		return monitor.DetectionResult{Classification: monitor.ClassNoChange}, nil
	}

	current.Canonicalize()
	changes := Diff(previous.Data, current)
	if changesEmpty(changes) {
		return monitor.DetectionResult{Classification: monitor.ClassNoChange}, nil
	}

	result := monitor.DetectionResult{
		Classification: monitor.ClassChanged,
		Changes:        changes,
	}

	now := d.clock.Now()
	if target.LastAlertAt != nil && now.Sub(*target.LastAlertAt) < d.cooldown {
		d.logger.Info("alert creation suppressed by cooldown",
			zap.String("target_id", target.ID),
			zap.Time("last_alert_at", *target.LastAlertAt))
		result.Suppressed = true
		return result, nil
	}

	candidates, err := d.buildAlerts(target.ID, changes, now)
	if err != nil {
		return result, err
	}

	for _, alert := range candidates {
		created, err := d.alerts.Create(ctx, alert)
		if err != nil {
			metrics.AlertOutcome("error")
			return result, fmt.Errorf("create alert: %w", err)
		}
		if !created {
			metrics.AlertOutcome("duplicate")
			d.logger.Debug("duplicate alert skipped",
				zap.String("target_id", target.ID),
				zap.String("dedupe_key", alert.DedupeKey))
			continue
		}
		metrics.AlertOutcome("created")
		result.Alerts = append(result.Alerts, alert)
		if d.dispatcher != nil {
			d.dispatcher.Dispatch(alert, target)
		}
	}

	if len(result.Alerts) > 0 {
		if err := d.targets.RecordAlertBurst(ctx, target.ID, now); err != nil {
			return result, fmt.Errorf("record alert burst: %w", err)
		}
	}
	return result, nil
}

// previousSnapshot returns the most recent snapshot with a different hash.
func previousSnapshot(recent []monitor.Snapshot, currentHash string) *monitor.Snapshot {
	for i := range recent {
		if recent[i].ContentHash != currentHash {
			return &recent[i]
		}
	}
	return nil
}

func changesEmpty(c monitor.ChangeSet) bool {
	return len(c.Prices) == 0 && len(c.Promotions) == 0 && len(c.MenuItems) == 0
}

// buildAlerts produces at most one alert per non-empty change category.
// Removed prices are tracked in the change set but do not alert on their own.
func (d *Detector) buildAlerts(targetID string, changes monitor.ChangeSet, now time.Time) ([]monitor.Alert, error) {
	var alerts []monitor.Alert

	if alertable := alertablePrices(changes.Prices); len(alertable) > 0 {
		alert, err := d.newAlert(targetID, monitor.AlertPriceChange, priceMessage(alertable), changes.Prices, now)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if len(changes.Promotions) > 0 {
		alert, err := d.newAlert(targetID, monitor.AlertNewPromotion, promotionMessage(changes.Promotions), changes.Promotions, now)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if len(changes.MenuItems) > 0 {
		alert, err := d.newAlert(targetID, monitor.AlertMenuChange, menuMessage(changes.MenuItems), changes.MenuItems, now)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func (d *Detector) newAlert(targetID string, alertType monitor.AlertType, message string, details any, now time.Time) (monitor.Alert, error) {
	payload, err := json.Marshal(details)
	if err != nil {
		return monitor.Alert{}, fmt.Errorf("marshal alert details: %w", err)
	}
	id, err := d.ids.NewID()
	if err != nil {
		return monitor.Alert{}, fmt.Errorf("generate alert id: %w", err)
	}
	return monitor.Alert{
		ID:        id,
		TargetID:  targetID,
		Type:      alertType,
		Message:   message,
		Details:   payload,
		DedupeKey: sha256.DedupeKey(string(alertType), payload),
		CreatedAt: now,
	}, nil
}

func alertablePrices(deltas []monitor.PriceDelta) []monitor.PriceDelta {
	var out []monitor.PriceDelta
	for _, delta := range deltas {
		if delta.Change == changeAdded || delta.Change == changeUpdated {
			out = append(out, delta)
		}
	}
	return out
}

func priceMessage(deltas []monitor.PriceDelta) string {
	first := deltas[0]
	var lead string
	switch {
	case first.Change == changeAdded:
		lead = fmt.Sprintf("New price listed: %s at %s", first.Item, first.NewPrice)
	case first.Reduced:
		lead = fmt.Sprintf("Price drop: %s went from %s to %s", first.Item, first.OldPrice, first.NewPrice)
	default:
		lead = fmt.Sprintf("Price change: %s went from %s to %s", first.Item, first.OldPrice, first.NewPrice)
	}
	if rest := len(deltas) - 1; rest > 0 {
		lead = fmt.Sprintf("%s (and %d more)", lead, rest)
	}
	return lead
}

func promotionMessage(deltas []monitor.PromotionDelta) string {
	added, ended := 0, 0
	for _, delta := range deltas {
		if delta.Change == changeAdded {
			added++
		} else {
			ended++
		}
	}
	switch {
	case added > 0 && ended > 0:
		return fmt.Sprintf("%d new promotion(s), %d ended", added, ended)
	case added > 0:
		return fmt.Sprintf("New promotion: %s", deltas[0].Title)
	default:
		return fmt.Sprintf("Promotion ended: %s", deltas[0].Title)
	}
}

func menuMessage(deltas []monitor.MenuDelta) string {
	added, removed := 0, 0
	for _, delta := range deltas {
		if delta.Change == changeAdded {
			added++
		} else {
			removed++
		}
	}
	return fmt.Sprintf("Menu changed: %d item(s) added, %d removed", added, removed)
}
