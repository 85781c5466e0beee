package storage

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/katelyatv/internal/retry"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("missing url or token", func(t *testing.T) {
		for _, cfg := range []shared.BackendConfig{
			{},
			{URL: "redis://localhost:6379"},
			{Token: "secret"},
		} {
			_, err := NewClient(cfg, "KVROCKS")
			require.ErrorIs(t, err, shared.ErrMissingConfig)
			assert.Contains(t, err.Error(), "KVROCKS_URL")
		}
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := NewClient(shared.BackendConfig{URL: "ftp://host:1", Token: "t"}, "REDIS")
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})

	t.Run("token is the auth password", func(t *testing.T) {
		mr := miniredis.RunT(t)
		mr.RequireAuth("secret")

		client, err := NewClient(shared.BackendConfig{URL: mr.Addr(), Token: "secret"}, "REDIS")
		require.NoError(t, err)
		defer client.Close()

		assert.NoError(t, client.Ping(context.Background()).Err())
	})
}

// resettingListener accepts TCP connections and immediately resets them, counting each one.
func resettingListener(t *testing.T) (string, *atomic.Int64) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := &atomic.Int64{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			if tcp, ok := conn.(*net.TCPConn); ok {
				tcp.SetLinger(0)
			}
			conn.Close()
		}
	}()
	return ln.Addr().String(), accepted
}

func TestNewClient_AttemptsBoundedByRetryConfig(t *testing.T) {
	addr, accepted := resettingListener(t)

	client, err := NewClient(shared.BackendConfig{URL: addr, Token: "t"}, "REDIS")
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, -1, client.Options().MaxRetries)

	store := NewRedisStorage(client, Options{Retry: retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}})

	_, err = store.GetPlayRecord(context.Background(), "alice", "src+1")
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err), "expected a transient failure, got %v", err)

	assert.Eventually(t, func() bool { return accepted.Load() >= 3 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(3), accepted.Load(), "one connection per configured attempt")
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		raw     string
		addr    string
		tls     bool
		wantErr bool
	}{
		{raw: "redis://localhost:6666/2", addr: "localhost:6666"},
		{raw: "rediss://cache.example.com:6380", addr: "cache.example.com:6380", tls: true},
		{raw: "https://db.example.com", addr: "db.example.com:6379", tls: true},
		{raw: "http://10.0.0.1:6666", addr: "10.0.0.1:6666"},
		{raw: "localhost:6666", addr: "localhost:6666"},
		{raw: "localhost", wantErr: true},
		{raw: "mongodb://x:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			opts, err := clientOptions(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, opts.Addr)
			assert.Equal(t, tt.tls, opts.TLSConfig != nil)
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite runs migrations", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		cfg.SQLite.Path = t.TempDir() + "/test.db"

		store, closer, err := New(ctx, cfg, shared.BackendSQLite, testOptions())
		require.NoError(t, err)
		defer closer.Close()

		require.NoError(t, store.RegisterUser(ctx, "alice", "pw"))
		ok, err := store.VerifyUser(ctx, "alice", "pw")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("kind falls back to config", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := shared.DefaultConfig()
		cfg.Storage.Type = shared.BackendRedis
		cfg.Redis = shared.BackendConfig{URL: mr.Addr(), Token: "t"}
		mr.RequireAuth("t")

		store, closer, err := New(ctx, cfg, "", testOptions())
		require.NoError(t, err)
		defer closer.Close()

		assert.IsType(t, &RedisStorage{}, store)
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := New(ctx, shared.DefaultConfig(), "mongo", testOptions())
		assert.ErrorIs(t, err, shared.ErrUnknownBackend)
	})

	t.Run("kvrocks without credentials", func(t *testing.T) {
		_, _, err := New(ctx, shared.DefaultConfig(), shared.BackendKvrocks, testOptions())
		assert.ErrorIs(t, err, shared.ErrMissingConfig)
	})
}
