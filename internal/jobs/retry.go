package jobs

import (
	"math/rand"
	"time"

	"github.com/synqx/core/internal/domain"
)

// defaultJobRetryDelay is used when a pipeline declares no explicit
// retry_delay_seconds.
const defaultJobRetryDelay = 60 * time.Second

// retryDelay computes a job-level re-attempt delay, mirroring the executor's
// per-node backoff shape (internal/executor/retry.go) at job granularity:
// fixed/exponential/linear with ±50% jitter.
func retryDelay(strategy domain.RetryStrategy, base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultJobRetryDelay
	}
	if attempt < 0 {
		attempt = 0
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

	jitter := float64(delay) * 0.5
	return delay + time.Duration(rand.Float64()*jitter*2-jitter)
}
