package payment

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds the retries around a single status check.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}

// RetryStatus calls fn until it succeeds, fails with a provider rejection, or the
// attempts run out. Only status checks are retried; Send never is.
func RetryStatus(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (*StatusResult, error)) (*StatusResult, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(p.BaseDelay) * math.Pow(1.4, float64(attempt-1)))
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !IsInfrastructure(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
