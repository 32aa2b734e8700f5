package aws

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// apiLimiter rate limits API calls of one region.
type apiLimiter struct {
	metrics MetricsAPI
	limiter *rate.Limiter
}

func newAPILimiter(metrics MetricsAPI, rateLimit float64, burst int) *apiLimiter {
	return &apiLimiter{
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
	}
}

// Limit waits until operation may proceed or ctx is done.
func (l *apiLimiter) Limit(ctx context.Context, operation string) {
	r := l.limiter.Reserve()
	if delay := r.Delay(); delay != 0 && delay != rate.InfDuration {
		l.metrics.ObserveRateLimit(operation, delay)
		// Waiting on the reservation; limiter.Wait would take a second one.
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			r.Cancel()
		}
	}
}
