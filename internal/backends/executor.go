package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/metrics"
	"github.com/synthpanel/orchestrator/internal/ratelimit"
	"github.com/synthpanel/orchestrator/internal/telemetry"
)

// Chain is an ordered preference list of backend identifiers. The first entry
// is the cheapest/fastest and is always tried first.
type Chain []string

func (c Chain) Validate() error {
	if len(c) == 0 {
		return errors.New("backend chain must not be empty")
	}
	for _, b := range c {
		if strings.TrimSpace(b) == "" {
			return errors.New("backend chain contains an empty identifier")
		}
	}
	return nil
}

// ErrAllBackendsExhausted marks an execution where every backend in the chain
// failed with an advanceable error.
var ErrAllBackendsExhausted = errors.New("all backends exhausted")

// ExhaustedError carries enough detail for the caller-facing message required
// when the whole chain fails: quota exhaustion gets a retry hint, everything
// else a generic failure.
type ExhaustedError struct {
	Operation string
	Chain     Chain
	LastKind  Kind
	Last      error
}

func (e *ExhaustedError) Error() string {
	switch e.LastKind {
	case KindLimitExceeded:
		return fmt.Sprintf("%s: all backends exhausted (%s): rate or quota limits hit on every backend, retry after a short wait: %v",
			e.Operation, strings.Join(e.Chain, ", "), e.Last)
	default:
		return fmt.Sprintf("%s: all backends exhausted (%s): %v",
			e.Operation, strings.Join(e.Chain, ", "), e.Last)
	}
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrAllBackendsExhausted }

// Dispatcher owns the shared rate limiter and the telemetry boundary for
// backend executions.
type Dispatcher struct {
	limiter  *ratelimit.Limiter
	reporter telemetry.Reporter
	logger   *zap.Logger
}

func NewDispatcher(limiter *ratelimit.Limiter, reporter telemetry.Reporter, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{limiter: limiter, reporter: reporter, logger: logger}
}

// Execute runs work against each backend in chain until one succeeds.
//
// The rate limiter is consulted once per execution, not once per attempt.
// Attempts are strictly sequential: racing two backends would double-spend
// quota. Failures classified not-found or limit-exceeded advance to the next
// backend; auth-or-config and unknown failures abort immediately so a broken
// key is never mistaken for a transient capacity problem. When a non-primary
// backend succeeds after an earlier failure, a best-effort telemetry event
// names the primary and the backend that served the request.
func Execute[T any](ctx context.Context, d *Dispatcher, chain Chain, operation string, work func(ctx context.Context, backend string) (T, error)) (T, error) {
	var zero T

	if err := chain.Validate(); err != nil {
		return zero, fmt.Errorf("%s: %w", operation, err)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%s: rate limiter wait: %w", operation, err)
	}

	return walkChain(ctx, d, chain, operation, work)
}

// ExecuteNoWait runs the same fallback walk without consulting the rate
// limiter, for callers that already paid the wait for this logical operation.
func ExecuteNoWait[T any](ctx context.Context, d *Dispatcher, chain Chain, operation string, work func(ctx context.Context, backend string) (T, error)) (T, error) {
	var zero T

	if err := chain.Validate(); err != nil {
		return zero, fmt.Errorf("%s: %w", operation, err)
	}

	return walkChain(ctx, d, chain, operation, work)
}

func walkChain[T any](ctx context.Context, d *Dispatcher, chain Chain, operation string, work func(ctx context.Context, backend string) (T, error)) (T, error) {
	var zero T
	var lastErr error
	var lastKind Kind

	for i, backend := range chain {
		result, err := work(ctx, backend)
		if err == nil {
			metrics.BackendAttempts.WithLabelValues(backend, operation, "success").Inc()
			if i > 0 {
				metrics.BackendFallbacks.WithLabelValues(chain[0], backend).Inc()
				telemetry.Emit(d.reporter, telemetry.Event{
					Kind:      telemetry.KindFallbackUsed,
					Operation: operation,
					Backend:   chain[0],
					Fallback:  backend,
					Message:   fmt.Sprintf("primary backend %s failed, served by %s", chain[0], backend),
				})
				d.logger.Info("Backend fallback succeeded",
					zap.String("operation", operation),
					zap.String("primary", chain[0]),
					zap.String("served_by", backend),
				)
			}
			return result, nil
		}

		lastErr = err
		lastKind = Classify(err)
		metrics.BackendAttempts.WithLabelValues(backend, operation, "failure").Inc()
		d.logger.Warn("Backend attempt failed",
			zap.String("operation", operation),
			zap.String("backend", backend),
			zap.String("classification", lastKind.String()),
			zap.Error(err),
		)

		if lastKind.Advanceable() && i < len(chain)-1 {
			continue
		}

		if !lastKind.Advanceable() {
			// Abort without touching the rest of the chain.
			return zero, fmt.Errorf("%s: backend %s failed (%s): %w", operation, backend, lastKind, err)
		}
		break
	}

	metrics.BackendChainExhausted.Inc()
	exhausted := &ExhaustedError{Operation: operation, Chain: chain, LastKind: lastKind, Last: lastErr}
	telemetry.Emit(d.reporter, telemetry.Event{
		Kind:      telemetry.KindChainExhausted,
		Operation: operation,
		Backend:   chain[len(chain)-1],
		Message:   exhausted.Error(),
	})
	return zero, exhausted
}
