package detect

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

type fakeSnapshots struct {
	recent []monitor.Snapshot
	err    error
}

func (f *fakeSnapshots) Append(context.Context, monitor.Snapshot) error { return nil }

func (f *fakeSnapshots) Recent(_ context.Context, _ string, limit int) ([]monitor.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

type fakeAlerts struct {
	created []monitor.Alert
	seen    map[string]bool
	err     error
}

func newFakeAlerts() *fakeAlerts { return &fakeAlerts{seen: map[string]bool{}} }

func (f *fakeAlerts) Create(_ context.Context, alert monitor.Alert) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[alert.DedupeKey] {
		return false, nil
	}
	f.seen[alert.DedupeKey] = true
	f.created = append(f.created, alert)
	return true, nil
}

type fakeTargets struct {
	burstAt []time.Time
	err     error
}

func (f *fakeTargets) Get(context.Context, string) (monitor.Target, error) {
	return monitor.Target{}, nil
}
func (f *fakeTargets) RecordCrawl(context.Context, string, time.Time) error { return nil }
func (f *fakeTargets) RecordAlertBurst(_ context.Context, _ string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.burstAt = append(f.burstAt, at)
	return nil
}
func (f *fakeTargets) UpdateIndustry(context.Context, string, monitor.Industry) error { return nil }
func (f *fakeTargets) ListDue(context.Context, time.Time, time.Duration) ([]monitor.Target, error) {
	return nil, nil
}

type recordingDispatcher struct {
	alerts []monitor.Alert
}

func (r *recordingDispatcher) Dispatch(alert monitor.Alert, _ monitor.Target) {
	r.alerts = append(r.alerts, alert)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

func snapshotAt(hash string, data monitor.ExtractedData, observed time.Time) monitor.Snapshot {
	data.Canonicalize()
	return monitor.Snapshot{TargetID: "t1", Data: data, ContentHash: hash, ObservedAt: observed}
}

func pricesOnly(items ...monitor.PriceItem) monitor.ExtractedData {
	d := monitor.ExtractedData{Prices: items}
	d.Canonicalize()
	return d
}

func testDetector(snaps *fakeSnapshots, alerts *fakeAlerts, targets *fakeTargets, disp AlertDispatcher, now time.Time) *Detector {
	return New(snaps, alerts, targets, disp, fixedClock{now: now}, &seqIDs{}, Config{Cooldown: time.Hour}, zap.NewNop())
}

func TestDetectPriceDropCreatesOneAlert(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snaps := &fakeSnapshots{recent: []monitor.Snapshot{
		snapshotAt("hash-b", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$9"}), now),
		snapshotAt("hash-a", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$10"}), now.Add(-time.Hour)),
	}}
	alerts := newFakeAlerts()
	targets := &fakeTargets{}
	disp := &recordingDispatcher{}
	d := testDetector(snaps, alerts, targets, disp, now)

	res, err := d.Detect(context.Background(), monitor.Target{ID: "t1"},
		pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$9"}), "hash-b")
	require.NoError(t, err)

	require.Equal(t, monitor.ClassChanged, res.Classification)
	require.False(t, res.Suppressed)
	require.Len(t, res.Alerts, 1)

	alert := res.Alerts[0]
	require.Equal(t, monitor.AlertPriceChange, alert.Type)
	require.Contains(t, alert.Message, "Price drop")
	require.Contains(t, alert.Message, "$10")
	require.Contains(t, alert.Message, "$9")
	require.NotEmpty(t, alert.DedupeKey)

	require.Len(t, res.Changes.Prices, 1)
	require.True(t, res.Changes.Prices[0].Reduced)

	require.Equal(t, []time.Time{now}, targets.burstAt)
	require.Len(t, disp.alerts, 1)
}

func TestDetectFirstCrawl(t *testing.T) {
	t.Parallel()

	now := time.Now()
	snaps := &fakeSnapshots{recent: []monitor.Snapshot{
		snapshotAt("hash-a", pricesOnly(), now),
	}}
	d := testDetector(snaps, newFakeAlerts(), &fakeTargets{}, nil, now)

	res, err := d.Detect(context.Background(), monitor.Target{ID: "t1"}, pricesOnly(), "hash-a")
	require.NoError(t, err)
	require.Equal(t, monitor.ClassFirstCrawl, res.Classification)
	require.Empty(t, res.Alerts)
}

func TestDetectIdenticalHashNoChange(t *testing.T) {
	t.Parallel()

	now := time.Now()
	data := pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$10"})
	snaps := &fakeSnapshots{recent: []monitor.Snapshot{
		snapshotAt("hash-a", data, now),
		snapshotAt("hash-a", data, now.Add(-time.Hour)),
	}}
	alerts := newFakeAlerts()
	d := testDetector(snaps, alerts, &fakeTargets{}, nil, now)

	res, err := d.Detect(context.Background(), monitor.Target{ID: "t1"}, data, "hash-a")
	require.NoError(t, err)
	require.Equal(t, monitor.ClassNoChange, res.Classification)
	require.Empty(t, alerts.created)
}

func TestDetectCooldownSuppressesAlerts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lastAlert := now.Add(-30 * time.Minute)
	snaps := &fakeSnapshots{recent: []monitor.Snapshot{
		snapshotAt("hash-b", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$8"}), now),
		snapshotAt("hash-a", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$10"}), now.Add(-time.Hour)),
	}}
	alerts := newFakeAlerts()
	targets := &fakeTargets{}
	d := testDetector(snaps, alerts, targets, nil, now)

	res, err := d.Detect(context.Background(), monitor.Target{ID: "t1", LastAlertAt: &lastAlert},
		pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$8"}), "hash-b")
	require.NoError(t, err)

	require.Equal(t, monitor.ClassChanged, res.Classification)
	require.True(t, res.Suppressed)
	require.NotEmpty(t, res.Changes.Prices, "changes still reported while suppressed")
	require.Empty(t, alerts.created)
	require.Empty(t, targets.burstAt)
}

func TestDetectDuplicateDedupeKeyIsNoOp(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snaps := &fakeSnapshots{recent: []monitor.Snapshot{
		snapshotAt("hash-b", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$9"}), now),
		snapshotAt("hash-a", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$10"}), now.Add(-time.Hour)),
	}}
	alerts := newFakeAlerts()
	targets := &fakeTargets{}
	d := testDetector(snaps, alerts, targets, nil, now)

	current := pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$9"})
	first, err := d.Detect(context.Background(), monitor.Target{ID: "t1"}, current, "hash-b")
	require.NoError(t, err)
	require.Len(t, first.Alerts, 1)

	// Same change detected again outside the cooldown window: the dedupe key
	// collides and no second row is created.
	second, err := d.Detect(context.Background(), monitor.Target{ID: "t1"}, current, "hash-b")
	require.NoError(t, err)
	require.Empty(t, second.Alerts)
	require.Len(t, alerts.created, 1)
	require.Len(t, targets.burstAt, 1)
}

func TestDetectRemovedPricesDoNotAlert(t *testing.T) {
	t.Parallel()

	now := time.Now()
	snaps := &fakeSnapshots{recent: []monitor.Snapshot{
		snapshotAt("hash-b", pricesOnly(), now),
		snapshotAt("hash-a", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$10"}), now.Add(-time.Hour)),
	}}
	alerts := newFakeAlerts()
	d := testDetector(snaps, alerts, &fakeTargets{}, nil, now)

	res, err := d.Detect(context.Background(), monitor.Target{ID: "t1"}, pricesOnly(), "hash-b")
	require.NoError(t, err)

	require.Equal(t, monitor.ClassChanged, res.Classification)
	require.Len(t, res.Changes.Prices, 1)
	require.Equal(t, "removed", res.Changes.Prices[0].Change)
	require.Empty(t, res.Alerts)
	require.Empty(t, alerts.created)
}

func TestDetectOneAlertPerCategory(t *testing.T) {
	t.Parallel()

	now := time.Now()
	prev := monitor.ExtractedData{
		Prices:    []monitor.PriceItem{{Item: "Burger", Price: "$10"}},
		MenuItems: []monitor.MenuItem{{Name: "Burger"}},
	}
	cur := monitor.ExtractedData{
		Prices:     []monitor.PriceItem{{Item: "Burger", Price: "$9"}},
		Promotions: []monitor.Promotion{{Title: "BOGO"}},
		MenuItems:  []monitor.MenuItem{{Name: "Burger"}, {Name: "Shake"}},
	}
	cur.Canonicalize()
	snaps := &fakeSnapshots{recent: []monitor.Snapshot{
		snapshotAt("hash-b", cur, now),
		snapshotAt("hash-a", prev, now.Add(-time.Hour)),
	}}
	alerts := newFakeAlerts()
	d := testDetector(snaps, alerts, &fakeTargets{}, nil, now)

	res, err := d.Detect(context.Background(), monitor.Target{ID: "t1"}, cur, "hash-b")
	require.NoError(t, err)
	require.Len(t, res.Alerts, 3)

	types := map[monitor.AlertType]bool{}
	for _, a := range res.Alerts {
		types[a.Type] = true
	}
	require.True(t, types[monitor.AlertPriceChange])
	require.True(t, types[monitor.AlertNewPromotion])
	require.True(t, types[monitor.AlertMenuChange])
}

func TestDetectAlertStoreErrorPropagates(t *testing.T) {
	t.Parallel()

	now := time.Now()
	snaps := &fakeSnapshots{recent: []monitor.Snapshot{
		snapshotAt("hash-b", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$9"}), now),
		snapshotAt("hash-a", pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$10"}), now.Add(-time.Hour)),
	}}
	alerts := newFakeAlerts()
	alerts.err = errors.New("insert failed")
	d := testDetector(snaps, alerts, &fakeTargets{}, nil, now)

	_, err := d.Detect(context.Background(), monitor.Target{ID: "t1"},
		pricesOnly(monitor.PriceItem{Item: "Burger", Price: "$9"}), "hash-b")
	require.Error(t, err)
	require.ErrorContains(t, err, "create alert")
}

func TestDetectSnapshotLoadErrorPropagates(t *testing.T) {
	t.Parallel()

	snaps := &fakeSnapshots{err: errors.New("db down")}
	d := testDetector(snaps, newFakeAlerts(), &fakeTargets{}, nil, time.Now())

	_, err := d.Detect(context.Background(), monitor.Target{ID: "t1"}, pricesOnly(), "hash")
	require.Error(t, err)
}
