package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestRateLimitFirstRequestCreatesWindow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock, nil)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT request_count, window_start").
		WithArgs("example.com").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO rate_limit_windows").
		WithArgs("example.com", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	allowed, err := store.Acquire(context.Background(), "example.com", 10, now)
	require.NoError(t, err)
	require.True(t, allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitIncrementsUnderCeiling(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock, nil)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT request_count, window_start").
		WithArgs("example.com").
		WillReturnRows(pgxmock.NewRows([]string{"request_count", "window_start"}).
			AddRow(4, now.Add(-20*time.Minute)))
	mock.ExpectExec("UPDATE rate_limit_windows SET request_count = request_count").
		WithArgs("example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	allowed, err := store.Acquire(context.Background(), "example.com", 10, now)
	require.NoError(t, err)
	require.True(t, allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitDeniesAtCeiling(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock, nil)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT request_count, window_start").
		WithArgs("example.com").
		WillReturnRows(pgxmock.NewRows([]string{"request_count", "window_start"}).
			AddRow(10, now.Add(-30*time.Minute)))
	mock.ExpectCommit()

	allowed, err := store.Acquire(context.Background(), "example.com", 10, now)
	require.NoError(t, err)
	require.False(t, allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitResetsExpiredWindow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock, nil)
	now := time.Unix(1700000000, 0).UTC()

	// Hard reset: the first request after the hour passes regardless of the
	// prior count.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT request_count, window_start").
		WithArgs("example.com").
		WillReturnRows(pgxmock.NewRows([]string{"request_count", "window_start"}).
			AddRow(10, now.Add(-61*time.Minute)))
	mock.ExpectExec("UPDATE rate_limit_windows SET request_count = 1").
		WithArgs(now, "example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	allowed, err := store.Acquire(context.Background(), "example.com", 10, now)
	require.NoError(t, err)
	require.True(t, allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitSurfacesStoreErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock, nil)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin().WillReturnError(pgx.ErrTxClosed)

	_, err = store.Acquire(context.Background(), "example.com", 10, now)
	require.Error(t, err)
}
