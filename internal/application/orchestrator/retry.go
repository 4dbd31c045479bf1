package orchestrator

import (
	"context"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
)

// withRetry calls fn up to RetryAttempts+1 times with a fixed delay between calls.
// It stops at the first success, at the first non-retryable error, or when ctx ends.
func withRetry[T any](ctx context.Context, s *Service, providerID string, fn func(context.Context) (T, error)) (T, *domain.AdapterError) {
	attempts := s.opts.RetryAttempts + 1
	if attempts < 1 {
		attempts = 1
	}

	var (
		zero    T
		lastErr *domain.AdapterError
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = domain.AsAdapterError(providerID, err)
		if !lastErr.Retryable() || attempt == attempts || ctx.Err() != nil {
			return zero, lastErr
		}

		s.logger.Warn("retrying provider call", map[string]interface{}{
			"provider": providerID,
			"attempt":  attempt,
			"code":     string(lastErr.Code),
			"delay":    s.opts.RetryDelay.String(),
		})
		if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
