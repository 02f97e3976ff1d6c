package operator

import (
	"context"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// noopOperator forwards every chunk unchanged. Registered for both "noop"
// (explicit identity node, useful as a DAG join point) and "pass_through"
// (the same identity stream under a second name). The optimizer does not
// rewrite collapsed nodes to pass_through: they keep their own class and
// carry a _collapsed_into config key.
type noopOperator struct {
	IdentityLineage
}

func newNoopOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &noopOperator{}, nil
}

func (n *noopOperator) ValidateConfig() error { return nil }

func (n *noopOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	return forwardAll(ctx, in, out, onChunk, func(c chunk.Chunk) (chunk.Chunk, int, int) {
		return c, 0, 0
	})
}
