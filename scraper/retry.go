package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// retryPolicy re-runs a fetch with exponential backoff. Only fetch failures
// are retried; an upstream answer that was simply unusable is final.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *Metrics
}

func newRetryPolicy(maxRetries int, base, max time.Duration, metrics *Metrics) retryPolicy {
	return retryPolicy{maxRetries: maxRetries, base: base, max: max, metrics: metrics}
}

func (rp retryPolicy) do(ctx context.Context, url string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= rp.maxRetries || !retryable(err) {
			return err
		}

		delay := rp.backoff(attempt + 1)
		rp.metrics.IncRetries()
		slog.Debug("retrying fetch",
			slog.String("url", url),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (rp retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rp.max; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func retryable(err error) bool {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	return !errors.Is(err, ErrRelativeURL) && !errors.Is(err, context.Canceled)
}
