// Package executor implements the C4 layered pipeline executor: it drives
// dag.ExecutionLayers, instantiates operators per node, wires connectors for
// EXTRACT/LOAD nodes, and enforces per-node retries, guardrails, and
// quarantine routing (§4.4).
package executor

import (
	"context"
	"math/rand"
	"time"

	"github.com/synqx/core/internal/domain"
)

// retryDelay computes the backoff for strategy (fixed: base; linear:
// base*(attempt+1); exponential: base*2^attempt), matching §4.4's
// {fixed, exponential, linear} shapes with a base delay of
// node.Retry.BaseDelay and jitter ±50%, adapted from
// infrastructure/resilience's exponential-backoff Retry helper.
func retryDelay(strategy domain.RetryStrategy, base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 60 * time.Second
	}
	var delay time.Duration
	switch strategy {
	case domain.RetryFixed:
		delay = base
	case domain.RetryLinear:
		delay = base * time.Duration(attempt+1)
	case domain.RetryExponential:
		delay = base
		for i := 0; i < attempt; i++ {
			delay *= 2
		}
	default:
		delay = base
	}
	return addJitter(delay, 0.5)
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}

// withRetry runs fn up to policy.MaxRetries+1 times, sleeping between
// attempts per retryDelay, returning the last error if every attempt fails.
// A node's retry counter is scoped to this single call (§4.4 "per-node
// retry... scoped to a single job attempt").
func withRetry(ctx context.Context, policy domain.RetryPolicy, fn func(attempt int) error) error {
	var lastErr error
	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := fn(attempt); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(policy.Strategy, policy.BaseDelay, attempt)):
			}
		}
	}
	return lastErr
}
