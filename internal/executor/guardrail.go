package executor

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// ErrGuardrailBreached is returned when a chunk violates a node's
// configured upper bound; the executor treats this as an immediate node
// failure that aborts the pipeline run (§4.4 "Guardrails").
type ErrGuardrailBreached struct {
	NodeID string
	Reason string
}

func (e ErrGuardrailBreached) Error() string {
	return fmt.Sprintf("executor: guardrail breached on node %s: %s", e.NodeID, e.Reason)
}

// guardrailChecker enforces a node's per-chunk row/byte/wall-time upper
// bounds, grounded on infrastructure/ratelimit's rate.Limiter wrapping
// style but applied as a hard ceiling rather than a token-bucket throttle.
type guardrailChecker struct {
	nodeID    string
	rules     []domain.Guardrail
	startedAt time.Time
	limiter   *rate.Limiter
}

func newGuardrailChecker(nodeID string, rules []domain.Guardrail) *guardrailChecker {
	g := &guardrailChecker{nodeID: nodeID, rules: rules, startedAt: time.Now()}
	for _, r := range rules {
		if r.MaxRowsPerChunk > 0 {
			g.limiter = rate.NewLimiter(rate.Inf, r.MaxRowsPerChunk*4)
		}
	}
	return g
}

func (g *guardrailChecker) Check(c chunk.Chunk) error {
	for _, rule := range g.rules {
		if rule.MaxRowsPerChunk > 0 && c.Len() > rule.MaxRowsPerChunk {
			return ErrGuardrailBreached{NodeID: g.nodeID, Reason: fmt.Sprintf("chunk rows %d exceeds max_rows_per_chunk %d", c.Len(), rule.MaxRowsPerChunk)}
		}
		if rule.MaxBytesPerChunk > 0 {
			if size := estimateChunkBytes(c); size > rule.MaxBytesPerChunk {
				return ErrGuardrailBreached{NodeID: g.nodeID, Reason: fmt.Sprintf("chunk bytes %d exceeds max_bytes_per_chunk %d", size, rule.MaxBytesPerChunk)}
			}
		}
		if rule.MaxWallTime > 0 && time.Since(g.startedAt) > rule.MaxWallTime {
			return ErrGuardrailBreached{NodeID: g.nodeID, Reason: fmt.Sprintf("node wall time exceeded max_wall_time %s", rule.MaxWallTime)}
		}
	}
	return nil
}

func estimateChunkBytes(c chunk.Chunk) int {
	total := 0
	for _, r := range c.Rows {
		total += estimateRowBytes(r)
	}
	return total
}
