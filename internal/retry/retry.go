package retry

import (
	"context"
	"fmt"
	"time"
)

// Config bounds a retried operation: total attempt count, base delay, and a
// predicate deciding which errors are worth retrying at all.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// Do runs op up to MaxAttempts times, sleeping Delay*attempt between tries.
// Non-retryable errors and context cancellation stop the loop immediately.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(cfg.Delay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}
