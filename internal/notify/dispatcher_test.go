package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

type stubEmail struct {
	mu      sync.Mutex
	alerts  []monitor.Alert
	outcome monitor.NotifyOutcome
}

func (s *stubEmail) EnqueueAlertNotification(_ context.Context, alert monitor.Alert) monitor.NotifyOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return s.outcome
}

type stubPush struct {
	mu     sync.Mutex
	sent   []monitor.PushNotification
	users  []string
	result monitor.PushResult
}

func (s *stubPush) SendPush(_ context.Context, targetUserID string, n monitor.PushNotification) monitor.PushResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, targetUserID)
	s.sent = append(s.sent, n)
	return s.result
}

func TestDispatchBothChannels(t *testing.T) {
	t.Parallel()

	email := &stubEmail{outcome: monitor.NotifyOutcome{Success: true}}
	push := &stubPush{result: monitor.PushResult{Sent: 2}}
	d := NewDispatcher(email, push, zap.NewNop())

	alert := monitor.Alert{
		ID:        "a1",
		TargetID:  "t1",
		Type:      monitor.AlertPriceChange,
		Message:   "Price drop: Burger went from $10 to $9",
		DedupeKey: "dk1",
	}
	d.Dispatch(alert, monitor.Target{ID: "t1", URL: "https://rival.example"})
	d.Wait()

	require.Len(t, email.alerts, 1)
	require.Equal(t, "a1", email.alerts[0].ID)

	require.Len(t, push.sent, 1)
	require.Equal(t, []string{"t1"}, push.users)
	require.Equal(t, "Competitor price change", push.sent[0].Title)
	require.Equal(t, alert.Message, push.sent[0].Body)
	require.Equal(t, "https://rival.example", push.sent[0].URL)
	require.Equal(t, "dk1", push.sent[0].Tag)
}

func TestDispatchEmailFailureDoesNotBlockPush(t *testing.T) {
	t.Parallel()

	email := &stubEmail{outcome: monitor.NotifyOutcome{Success: false, Reason: "channel disabled"}}
	push := &stubPush{result: monitor.PushResult{Sent: 1}}
	d := NewDispatcher(email, push, zap.NewNop())

	d.Dispatch(monitor.Alert{ID: "a1"}, monitor.Target{ID: "t1"})
	d.Wait()

	require.Len(t, push.sent, 1)
}

func TestDispatchNilChannelsSkipped(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil, nil, zap.NewNop())
	d.Dispatch(monitor.Alert{ID: "a1"}, monitor.Target{ID: "t1"})
	d.Wait()
}

type stubPublisher struct {
	id       string
	err      error
	payloads []any
	attrs    []map[string]string
}

func (s *stubPublisher) Publish(_ context.Context, attributes map[string]string, payload any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.payloads = append(s.payloads, payload)
	s.attrs = append(s.attrs, attributes)
	return s.id, nil
}

func TestEmailEnqueuerOutcomes(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{id: "m1"}
	e := NewEmailEnqueuer(pub, zap.NewNop())

	out := e.EnqueueAlertNotification(context.Background(), monitor.Alert{ID: "a1", Type: monitor.AlertMenuChange})
	require.True(t, out.Success)
	require.Equal(t, "email", pub.attrs[0]["channel"])
	require.Equal(t, "menu_change", pub.attrs[0]["alert_type"])

	failing := NewEmailEnqueuer(&stubPublisher{err: errors.New("topic gone")}, zap.NewNop())
	out = failing.EnqueueAlertNotification(context.Background(), monitor.Alert{ID: "a2"})
	require.False(t, out.Success)
	require.Contains(t, out.Reason, "topic gone")
}

func TestPushPublisherResults(t *testing.T) {
	t.Parallel()

	p := NewPushPublisher(&stubPublisher{id: "m2"}, zap.NewNop())
	res := p.SendPush(context.Background(), "t1", monitor.PushNotification{Title: "x"})
	require.Equal(t, monitor.PushResult{Sent: 1}, res)

	failing := NewPushPublisher(&stubPublisher{err: errors.New("publish refused")}, zap.NewNop())
	res = failing.SendPush(context.Background(), "t1", monitor.PushNotification{})
	require.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
}
