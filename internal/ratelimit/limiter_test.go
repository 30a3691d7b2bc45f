package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeWindowStore struct {
	allowed bool
	err     error
	calls   int
	domain  string
	limit   int
}

func (f *fakeWindowStore) Acquire(_ context.Context, domain string, limit int, _ time.Time) (bool, error) {
	f.calls++
	f.domain = domain
	f.limit = limit
	return f.allowed, f.err
}

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time {
	return f.now
}

func TestTryAcquireConsultsStore(t *testing.T) {
	t.Parallel()

	store := &fakeWindowStore{allowed: true}
	l := New(store, fakeClock{now: time.Unix(100, 0)}, Config{
		RequestsPerHour: 10,
		LocalRPS:        1000,
		LocalBurst:      1000,
	}, nil)

	require.True(t, l.TryAcquire(context.Background(), "Example.COM"))
	require.Equal(t, 1, store.calls)
	require.Equal(t, "example.com", store.domain)
	require.Equal(t, 10, store.limit)
}

func TestTryAcquireDeniedByStore(t *testing.T) {
	t.Parallel()

	store := &fakeWindowStore{allowed: false}
	l := New(store, fakeClock{now: time.Unix(100, 0)}, Config{
		RequestsPerHour: 10,
		LocalRPS:        1000,
		LocalBurst:      1000,
	}, nil)

	require.False(t, l.TryAcquire(context.Background(), "example.com"))
}

func TestTryAcquireFailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	store := &fakeWindowStore{err: errors.New("connection refused")}
	l := New(store, fakeClock{now: time.Unix(100, 0)}, Config{
		RequestsPerHour: 10,
		LocalRPS:        1000,
		LocalBurst:      1000,
	}, nil)

	// Limiter faults must never block the pipeline.
	require.True(t, l.TryAcquire(context.Background(), "example.com"))
}

func TestLocalBucketSmoothsBursts(t *testing.T) {
	t.Parallel()

	store := &fakeWindowStore{allowed: true}
	l := New(store, fakeClock{now: time.Unix(100, 0)}, Config{
		RequestsPerHour: 100,
		LocalRPS:        0.001,
		LocalBurst:      1,
	}, nil)

	require.True(t, l.TryAcquire(context.Background(), "example.com"))
	// The second immediate request exhausts the one-token local bucket and is
	// rejected before the store is consulted.
	require.False(t, l.TryAcquire(context.Background(), "example.com"))
	require.Equal(t, 1, store.calls)
}

func TestDomain(t *testing.T) {
	t.Parallel()

	domain, err := Domain("https://Shop.Example.com/menu?x=1")
	require.NoError(t, err)
	require.Equal(t, "shop.example.com", domain)

	_, err = Domain("not a url ://")
	require.Error(t, err)

	_, err = Domain("/relative/path")
	require.Error(t, err)
}
