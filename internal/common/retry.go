package common

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy describes a fixed-backoff retry loop.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRecordWritePolicy is applied to record writes only; uploads are
// surfaced to the user instead of retried.
var DefaultRecordWritePolicy = RetryPolicy{Attempts: 3, Backoff: 500 * time.Millisecond}

// Retry runs fn up to p.Attempts times, sleeping p.Backoff between attempts.
// It stops early when ctx is done and returns the last error observed.
func Retry(ctx context.Context, p RetryPolicy, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		logger.Warn("retryable operation failed",
			"op", op,
			"attempt", attempt,
			"max_attempts", p.Attempts,
			"error", last,
		)
		if attempt < p.Attempts {
			select {
			case <-time.After(p.Backoff):
			case <-ctx.Done():
				return last
			}
		}
	}
	return last
}
