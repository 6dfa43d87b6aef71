package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/synthpanel/orchestrator/internal/metrics"
)

// Limiter throttles outbound generation calls to a fixed requests-per-minute
// budget. One instance is shared by every logical operation that talks to the
// generation backends; the underlying token bucket is safe for concurrent use.
type Limiter struct {
	rl     *rate.Limiter
	logger *zap.Logger
}

// New creates a limiter with the given per-minute budget. A non-positive
// budget disables throttling.
func New(requestsPerMin int, logger *zap.Logger) *Limiter {
	if requestsPerMin <= 0 {
		return &Limiter{rl: rate.NewLimiter(rate.Inf, 1), logger: logger}
	}
	// Burst equal to the budget: callers under budget never block, sustained
	// load is smoothed to the per-minute rate.
	return &Limiter{
		rl:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMin)), requestsPerMin),
		logger: logger,
	}
}

// SetRPM replaces the per-minute budget in place, taking effect for the next
// Wait. Used by the overrides hot reload; a non-positive budget disables
// throttling.
func (l *Limiter) SetRPM(requestsPerMin int) {
	if requestsPerMin <= 0 {
		l.rl.SetLimit(rate.Inf)
		l.rl.SetBurst(1)
		l.logger.Info("Rate limiting disabled")
		return
	}
	l.rl.SetLimit(rate.Every(time.Minute / time.Duration(requestsPerMin)))
	l.rl.SetBurst(requestsPerMin)
	l.logger.Info("Rate limit updated", zap.Int("requests_per_min", requestsPerMin))
}

// Wait blocks only as long as needed to stay under the budget. It returns an
// error only when the context is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.rl.Wait(ctx); err != nil {
		return err
	}
	waited := time.Since(start)
	metrics.RateLimitWaitSeconds.Observe(waited.Seconds())
	if waited > time.Second {
		l.logger.Debug("Rate limiter delayed request", zap.Duration("waited", waited))
	}
	return nil
}
