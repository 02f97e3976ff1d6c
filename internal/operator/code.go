package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/operator/sandbox"
)

// codeOperator runs a user-supplied `transform(rows)` JS function per chunk
// via the goja sandbox (§4.3 code/code_polars — code_polars is registered
// under the same factory since both expose the same row-array contract to
// user scripts; no Polars-equivalent dataframe library exists in the
// ecosystem corpus, so both classes share this implementation).
type codeOperator struct {
	script        string
	outputColumns []string
	eval          *sandbox.Evaluator
}

func newCodeOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	script, _ := config["script"].(string)
	timeout := 10 * time.Second
	if secs, ok := config["timeout_seconds"].(int); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	return &codeOperator{
		script:        script,
		outputColumns: stringList(config["output_columns"]),
		eval:          sandbox.New(timeout),
	}, nil
}

func (c *codeOperator) ValidateConfig() error {
	if c.script == "" {
		return fmt.Errorf("code: script is required")
	}
	return nil
}

func (c *codeOperator) Lineage(inputColumns []string) LineageMap {
	m := make(LineageMap, len(inputColumns)+len(c.outputColumns))
	for _, col := range inputColumns {
		m[col] = []string{col}
	}
	for _, col := range c.outputColumns {
		if _, ok := m[col]; !ok {
			m[col] = inputColumns
		}
	}
	return m
}

func (c *codeOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cnk, ok := <-in:
			if !ok {
				return nil
			}
			if onChunk != nil {
				onChunk(cnk, chunk.DirectionInput, 0, 0)
			}
			if cnk.Empty() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- cnk:
				}
				continue
			}

			result, err := c.eval.EvalTransform(ctx, c.script, cnk.Rows)
			if err != nil {
				return sandbox.ToTransformationError("code", err)
			}

			var columns []string
			seen := make(map[string]bool)
			for _, r := range result.Rows {
				for col := range r {
					if !seen[col] {
						seen[col] = true
						columns = append(columns, col)
					}
				}
			}

			transformed := chunk.Chunk{Columns: columns, Rows: result.Rows}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- transformed:
			}
			if onChunk != nil {
				onChunk(transformed, chunk.DirectionOutput, 0, 0)
			}
		}
	}
}
