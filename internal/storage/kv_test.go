package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/katelyatv/internal/retry"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestRetryBehavior(t *testing.T) {
	ctx := context.Background()

	t.Run("permanent errors are not retried", func(t *testing.T) {
		mr := miniredis.RunT(t)
		reg := prometheus.NewRegistry()
		metrics, err := NewMetrics(reg)
		require.NoError(t, err)

		store := NewRedisStorage(newTestClient(t, mr), Options{
			Retry:   retry.Config{MaxAttempts: 3, Sleep: noSleep},
			Metrics: metrics,
		})
		mr.SetError("ERR permission denied")

		_, err = store.GetPlayRecord(ctx, "alice", "src+1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission denied")
		assert.NotContains(t, err.Error(), "attempts")
		assert.Equal(t, 0.0, testutil.ToFloat64(metrics.retries.WithLabelValues(shared.BackendRedis, "get_play_record")))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(shared.BackendRedis, "get_play_record", "error")))
	})

	t.Run("connection failures are retried then surfaced", func(t *testing.T) {
		mr := miniredis.RunT(t)
		reg := prometheus.NewRegistry()
		metrics, err := NewMetrics(reg)
		require.NoError(t, err)

		var slept []time.Duration
		store := NewKvrocksStorage(newTestClient(t, mr), Options{
			Retry: retry.Config{
				MaxAttempts: 3,
				BaseDelay:   time.Second,
				Sleep: func(_ context.Context, d time.Duration) error {
					slept = append(slept, d)
					return nil
				},
			},
			Metrics: metrics,
		})
		mr.Close()

		_, err = store.CheckUserExist(ctx, "alice")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed after 3 attempts")
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.retries.WithLabelValues(shared.BackendKvrocks, "check_user_exist")))
	})

	t.Run("cancellation stops the backoff", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store := NewRedisStorage(newTestClient(t, mr), Options{
			Retry: retry.Config{MaxAttempts: 5, BaseDelay: time.Hour},
		})
		mr.Close()

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		err := store.AddSearchHistory(cctx, "alice", "q")
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	})

	t.Run("ping reports unavailable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store := NewRedisStorage(newTestClient(t, mr), Options{Retry: retry.Config{MaxAttempts: 1}})
		mr.Close()

		err := store.Ping(ctx)
		assert.ErrorIs(t, err, shared.ErrStorageUnavailable)
	})
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observe("redis", "op", time.Now(), nil)
		m.retried("redis", "op")
		m.degrade("redis", "op")
	})
}

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice should fail")
}
