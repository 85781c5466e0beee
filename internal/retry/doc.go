// Package retry wraps single backend operations with a linear backoff retry loop.
//
// # Classification
//
// [IsTransient] decides whether a failure is worth retrying. Only connectivity failures
// qualify: connection reset, connection refused, unresolved host and broken pipe, whether they
// arrive as typed errors ([syscall.Errno], [*net.DNSError]) or as text from the client library.
// Everything else, including "key not found" style sentinels, is permanent and returned on the
// first attempt.
//
// # Backoff
//
// The wait before attempt n+1 is BaseDelay × n. With [DefaultConfig] (three attempts, one second)
// an operation that fails twice and then succeeds waits 1s + 2s before the successful call.
//
// # Usage
//
//	value, err := retry.DoWithResult(ctx, cfg, "get_play_record", func() (string, error) {
//		return client.Get(ctx, key).Result()
//	})
//
// The context cancels the backoff wait; the in-flight backend call relies on its own
// connection timeouts.
package retry
