// package retry re-runs backend operations that fail with transient connectivity errors
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Config controls the retry loop.
type Config struct {
	MaxAttempts int           // Total attempts including the first; values below 1 mean 1
	BaseDelay   time.Duration // Delay before attempt n+1 is BaseDelay × n

	// Sleep waits between attempts. Defaults to a timer that also returns early on ctx cancellation.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each backoff wait, after a transient failure.
	OnRetry func(op string, attempt int, err error)

	Logger *log.Logger
}

// DefaultConfig returns three attempts with a linear one second backoff step.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Do runs fn until it succeeds, fails permanently, or runs out of attempts.
//
// Only errors classified by [IsTransient] are retried. Permanent errors are returned as-is;
// exhausting the attempts wraps the last error.
func Do(ctx context.Context, cfg Config, op string, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay < 0 {
		return errors.New("retry: BaseDelay cannot be negative")
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.BaseDelay * time.Duration(attempt)
		if cfg.Logger != nil {
			cfg.Logger.Warn("retrying backend operation", "op", op, "attempt", attempt, "delay", delay, "err", err)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(op, attempt, err)
		}

		if err := cfg.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d of %s: %w", attempt+1, op, err)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, cfg.MaxAttempts, lastErr)
}

// DoWithResult is [Do] for operations that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, op string, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, op, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
