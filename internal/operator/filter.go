package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/operator/sandbox"
)

// filterOperator evaluates a predicate expression per row, forwarding
// passing rows and reporting filtered_count per chunk (§4.3).
type filterOperator struct {
	IdentityLineage
	condition string
	eval      *sandbox.Evaluator
}

func newFilterOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	cond, _ := config["condition"].(string)
	return &filterOperator{condition: cond, eval: sandbox.New(5 * time.Second)}, nil
}

func (f *filterOperator) ValidateConfig() error {
	if f.condition == "" {
		return fmt.Errorf("filter: condition is required")
	}
	return nil
}

func (f *filterOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				return nil
			}
			if onChunk != nil {
				onChunk(c, chunk.DirectionInput, 0, 0)
			}
			if c.Empty() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- c:
				}
				continue
			}

			filteredCount := 0
			result := c.Filter(func(r chunk.Row) bool {
				keep, err := f.eval.EvalPredicate(ctx, jsCondition(f.condition), r)
				if err != nil || !keep {
					filteredCount++
					return false
				}
				return true
			})

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- result:
			}
			if onChunk != nil {
				onChunk(result, chunk.DirectionOutput, filteredCount, 0)
			}
		}
	}
}

// jsCondition returns condition unchanged: the filter expression is
// evaluated as JavaScript exactly as written, with no operator rewriting.
func jsCondition(condition string) string {
	return condition
}
