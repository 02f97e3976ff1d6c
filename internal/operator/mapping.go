package operator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// --- map / rename_columns / drop_columns -----------------------------------

// mapOperator applies an optional rename then an optional drop, in that
// order; missing keys are ignored, not errors (§4.3).
type mapOperator struct {
	rename map[string]string
	drop   []string
}

func newMapOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &mapOperator{rename: stringMap(config["rename"]), drop: stringList(config["drop"])}, nil
}

func (m *mapOperator) ValidateConfig() error { return nil }

func (m *mapOperator) Lineage(inputColumns []string) LineageMap {
	return renameDropLineage(inputColumns, m.rename, m.drop)
}

func (m *mapOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	return forwardAll(ctx, in, out, onChunk, func(c chunk.Chunk) (chunk.Chunk, int, int) {
		return renameAndDrop(c, m.rename, m.drop), 0, 0
	})
}

type renameColumnsOperator struct{ rename map[string]string }

func newRenameColumnsOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &renameColumnsOperator{rename: stringMap(config["rename"])}, nil
}

func (r *renameColumnsOperator) ValidateConfig() error { return nil }
func (r *renameColumnsOperator) Lineage(inputColumns []string) LineageMap {
	return renameDropLineage(inputColumns, r.rename, nil)
}
func (r *renameColumnsOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	return forwardAll(ctx, in, out, onChunk, func(c chunk.Chunk) (chunk.Chunk, int, int) {
		return renameAndDrop(c, r.rename, nil), 0, 0
	})
}

type dropColumnsOperator struct{ drop []string }

func newDropColumnsOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &dropColumnsOperator{drop: stringList(config["drop"])}, nil
}

func (d *dropColumnsOperator) ValidateConfig() error { return nil }
func (d *dropColumnsOperator) Lineage(inputColumns []string) LineageMap {
	return renameDropLineage(inputColumns, nil, d.drop)
}
func (d *dropColumnsOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	return forwardAll(ctx, in, out, onChunk, func(c chunk.Chunk) (chunk.Chunk, int, int) {
		return renameAndDrop(c, nil, d.drop), 0, 0
	})
}

func renameAndDrop(c chunk.Chunk, rename map[string]string, drop []string) chunk.Chunk {
	dropSet := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		dropSet[d] = struct{}{}
	}

	newColumns := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		if _, dropped := dropSet[col]; dropped {
			continue
		}
		if renamed, ok := rename[col]; ok {
			newColumns = append(newColumns, renamed)
		} else {
			newColumns = append(newColumns, col)
		}
	}

	rows := make([]chunk.Row, len(c.Rows))
	for i, r := range c.Rows {
		nr := make(chunk.Row, len(newColumns))
		for k, v := range r {
			if _, dropped := dropSet[k]; dropped {
				continue
			}
			if renamed, ok := rename[k]; ok {
				nr[renamed] = v
			} else {
				nr[k] = v
			}
		}
		rows[i] = nr
	}
	return chunk.Chunk{Columns: newColumns, Rows: rows}
}

func renameDropLineage(inputColumns []string, rename map[string]string, drop []string) LineageMap {
	dropSet := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		dropSet[d] = struct{}{}
	}
	m := make(LineageMap)
	for _, col := range inputColumns {
		if _, dropped := dropSet[col]; dropped {
			continue
		}
		out := col
		if renamed, ok := rename[col]; ok {
			out = renamed
		}
		m[out] = []string{col}
	}
	return m
}

// --- type_cast ---------------------------------------------------------

type typeCastOperator struct {
	IdentityLineage
	casts map[string]string
}

func newTypeCastOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &typeCastOperator{casts: stringMap(config["casts"])}, nil
}

func (t *typeCastOperator) ValidateConfig() error {
	for _, kind := range t.casts {
		switch kind {
		case "int", "float", "bool", "string", "datetime", "date":
		default:
			return fmt.Errorf("type_cast: unsupported kind %q", kind)
		}
	}
	return nil
}

func (t *typeCastOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	return forwardAll(ctx, in, out, onChunk, func(c chunk.Chunk) (chunk.Chunk, int, int) {
		rows := make([]chunk.Row, len(c.Rows))
		for i, r := range c.Rows {
			nr := make(chunk.Row, len(r))
			for k, v := range r {
				nr[k] = v
			}
			for col, kind := range t.casts {
				if v, ok := nr[col]; ok {
					nr[col] = castValue(v, kind)
				}
			}
			rows[i] = nr
		}
		return chunk.Chunk{Columns: c.Columns, Rows: rows}, 0, 0
	})
}

func castValue(v any, kind string) any {
	if v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	switch kind {
	case "int":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		return nil
	case "float":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return nil
	case "bool":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return nil
	case "string":
		return s
	case "datetime", "date":
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		return nil
	}
	return v
}

// --- regex_replace -------------------------------------------------------

type regexReplaceOperator struct {
	IdentityLineage
	column      string
	replacement string
	pattern     *regexp.Regexp
}

func newRegexReplaceOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	column, _ := config["column"].(string)
	pattern, _ := config["pattern"].(string)
	replacement, _ := config["replacement"].(string)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex_replace: invalid pattern: %w", err)
	}
	return &regexReplaceOperator{column: column, replacement: replacement, pattern: re}, nil
}

func (r *regexReplaceOperator) ValidateConfig() error {
	if r.column == "" {
		return fmt.Errorf("regex_replace: column is required")
	}
	return nil
}

func (r *regexReplaceOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	return forwardAll(ctx, in, out, onChunk, func(c chunk.Chunk) (chunk.Chunk, int, int) {
		rows := make([]chunk.Row, len(c.Rows))
		for i, row := range c.Rows {
			nr := make(chunk.Row, len(row))
			for k, v := range row {
				nr[k] = v
			}
			if v, ok := nr[r.column]; ok && v != nil {
				nr[r.column] = r.pattern.ReplaceAllString(fmt.Sprint(v), r.replacement)
			}
			rows[i] = nr
		}
		return chunk.Chunk{Columns: c.Columns, Rows: rows}, 0, 0
	})
}

// --- fill_nulls ----------------------------------------------------------

type fillNullsOperator struct {
	IdentityLineage
	value    any
	strategy string
	hasValue bool
	subset   []string
}

func newFillNullsOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	strategy, _ := config["strategy"].(string)
	value, hasValue := config["value"]
	return &fillNullsOperator{value: value, strategy: strategy, hasValue: hasValue, subset: stringList(config["subset"])}, nil
}

func (f *fillNullsOperator) ValidateConfig() error {
	if !f.hasValue && f.strategy == "" {
		return fmt.Errorf("fill_nulls: either value or strategy is required")
	}
	return nil
}

func (f *fillNullsOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	// Blocking-ish: strategies min/max/mean require a full pass to compute
	// stats, so we materialize. value/forward/backward/zero/one can stream,
	// but we keep the implementation uniform for simplicity and
	// correctness under concurrent chunk boundaries.
	builder := chunk.NewBuilder()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				result := f.fill(builder.Build())
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- result:
				}
				if onChunk != nil {
					onChunk(result, chunk.DirectionOutput, 0, 0)
				}
				return nil
			}
			if onChunk != nil {
				onChunk(c, chunk.DirectionInput, 0, 0)
			}
			builder.AddChunk(c)
		}
	}
}

func (f *fillNullsOperator) columns(c chunk.Chunk) []string {
	if len(f.subset) > 0 {
		return f.subset
	}
	return c.Columns
}

func (f *fillNullsOperator) fill(c chunk.Chunk) chunk.Chunk {
	cols := f.columns(c)
	stats := map[string]float64{}
	if f.strategy == "min" || f.strategy == "max" || f.strategy == "mean" {
		for _, col := range cols {
			stats[col] = computeStat(c, col, f.strategy)
		}
	}

	rows := make([]chunk.Row, len(c.Rows))
	var last chunk.Row
	for i, r := range c.Rows {
		nr := make(chunk.Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		for _, col := range cols {
			if nr[col] != nil {
				continue
			}
			switch {
			case f.hasValue:
				nr[col] = f.value
			case f.strategy == "zero":
				nr[col] = 0
			case f.strategy == "one":
				nr[col] = 1
			case f.strategy == "forward" && last != nil:
				nr[col] = last[col]
			case f.strategy == "min" || f.strategy == "max" || f.strategy == "mean":
				nr[col] = stats[col]
			}
		}
		rows[i] = nr
		last = nr
	}

	if f.strategy == "backward" {
		var next chunk.Row
		for i := len(rows) - 1; i >= 0; i-- {
			for _, col := range cols {
				if rows[i][col] == nil && next != nil {
					rows[i][col] = next[col]
				}
			}
			next = rows[i]
		}
	}

	return chunk.Chunk{Columns: c.Columns, Rows: rows}
}

func computeStat(c chunk.Chunk, col, kind string) float64 {
	var sum, count float64
	var min, max float64
	first := true
	for _, r := range c.Rows {
		v, ok := toFloat(r[col])
		if !ok {
			continue
		}
		sum += v
		count++
		if first || v < min {
			min = v
		}
		if first || v > max {
			max = v
		}
		first = false
	}
	switch kind {
	case "min":
		return min
	case "max":
		return max
	case "mean":
		if count == 0 {
			return 0
		}
		return sum / count
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		if already, ok := v.(map[string]string); ok {
			return already
		}
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
