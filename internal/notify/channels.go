package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// messagePublisher is the slice of Publisher the channels need.
type messagePublisher interface {
	Publish(ctx context.Context, attributes map[string]string, payload any) (string, error)
}

// EmailEnqueuer implements monitor.AlertNotifier by publishing the alert to
// the delivery topic. The downstream mailer owns templates and recipients.
type EmailEnqueuer struct {
	publisher messagePublisher
	logger    *zap.Logger
}

// NewEmailEnqueuer builds an EmailEnqueuer.
func NewEmailEnqueuer(publisher messagePublisher, logger *zap.Logger) *EmailEnqueuer {
	return &EmailEnqueuer{publisher: publisher, logger: logger.Named("email")}
}

// EnqueueAlertNotification publishes the alert for email delivery. The
// outcome carries the failure reason instead of an error; callers treat
// delivery as best effort.
func (e *EmailEnqueuer) EnqueueAlertNotification(ctx context.Context, alert monitor.Alert) monitor.NotifyOutcome {
	attrs := map[string]string{
		"channel":    "email",
		"alert_type": string(alert.Type),
	}
	id, err := e.publisher.Publish(ctx, attrs, alert)
	if err != nil {
		return monitor.NotifyOutcome{Success: false, Reason: err.Error()}
	}
	e.logger.Debug("alert queued for email delivery",
		zap.String("alert_id", alert.ID),
		zap.String("message_id", id))
	return monitor.NotifyOutcome{Success: true}
}

// PushPublisher implements monitor.PushSender by handing the notification to
// the push delivery topic. Per-subscription results come back from the
// delivery worker, not from this call, so the result reports one accepted
// send or one failure.
type PushPublisher struct {
	publisher messagePublisher
	logger    *zap.Logger
}

// NewPushPublisher builds a PushPublisher.
func NewPushPublisher(publisher messagePublisher, logger *zap.Logger) *PushPublisher {
	return &PushPublisher{publisher: publisher, logger: logger.Named("push")}
}

type pushEnvelope struct {
	TargetUserID string                   `json:"target_user_id"`
	Notification monitor.PushNotification `json:"notification"`
}

// SendPush publishes the notification for fan-out delivery.
func (p *PushPublisher) SendPush(ctx context.Context, targetUserID string, n monitor.PushNotification) monitor.PushResult {
	attrs := map[string]string{"channel": "push"}
	_, err := p.publisher.Publish(ctx, attrs, pushEnvelope{TargetUserID: targetUserID, Notification: n})
	if err != nil {
		return monitor.PushResult{Failed: 1, Errors: []string{err.Error()}}
	}
	return monitor.PushResult{Sent: 1}
}
