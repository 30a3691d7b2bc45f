// Package notify fans created alerts out to the delivery collaborators.
// Delivery is fire and forget: each channel runs on its own goroutine, logs
// its own failures, and never feeds back into the crawl job's outcome.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/metrics"
	"github.com/rivaleye/rivaleye/internal/monitor"
)

// Dispatcher triggers email enqueue and push fan-out for created alerts.
type Dispatcher struct {
	email   monitor.AlertNotifier
	push    monitor.PushSender
	timeout time.Duration
	logger  *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher builds a Dispatcher. Either channel may be nil and is then
// skipped.
func NewDispatcher(email monitor.AlertNotifier, push monitor.PushSender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		email:   email,
		push:    push,
		timeout: 30 * time.Second,
		logger:  logger.Named("notify"),
	}
}

// Dispatch triggers both channels for one alert and returns immediately.
// Channels fail independently; a dead email queue never blocks push.
func (d *Dispatcher) Dispatch(alert monitor.Alert, target monitor.Target) {
	if d.email != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.enqueueEmail(alert)
		}()
	}
	if d.push != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.sendPush(alert, target)
		}()
	}
}

// Wait blocks until all in-flight dispatches finish. Called on shutdown and
// from tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) enqueueEmail(alert monitor.Alert) {
	// The job that created the alert may already be done; deliveries get
	// their own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	outcome := d.email.EnqueueAlertNotification(ctx, alert)
	switch {
	case !outcome.Success:
		metrics.NotifyFailure("email")
		d.logger.Warn("email enqueue failed",
			zap.String("alert_id", alert.ID),
			zap.String("reason", outcome.Reason))
	case outcome.Reason != "":
		// Reasons like quiet hours mean delayed delivery, not refusal.
		d.logger.Info("email enqueue deferred",
			zap.String("alert_id", alert.ID),
			zap.String("reason", outcome.Reason))
	}
}

func (d *Dispatcher) sendPush(alert monitor.Alert, target monitor.Target) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	res := d.push.SendPush(ctx, target.ID, monitor.PushNotification{
		Title: pushTitle(alert.Type),
		Body:  alert.Message,
		URL:   target.URL,
		Tag:   alert.DedupeKey,
	})
	if res.Failed > 0 {
		metrics.NotifyFailure("push")
		d.logger.Warn("push fan-out had failures",
			zap.String("alert_id", alert.ID),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Strings("errors", res.Errors))
	}
}

func pushTitle(alertType monitor.AlertType) string {
	switch alertType {
	case monitor.AlertPriceChange:
		return "Competitor price change"
	case monitor.AlertNewPromotion:
		return "Competitor promotion update"
	case monitor.AlertMenuChange:
		return "Competitor menu change"
	default:
		return fmt.Sprintf("Competitor update (%s)", alertType)
	}
}
