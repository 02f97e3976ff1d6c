package operator

import (
	"context"
	"fmt"
	"sort"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// materialize drains in into a single Builder, invoking onChunk for each
// input chunk observed; used by every blocking operator (§5: "blocking
// operators accumulate until EOS then emit once").
func materialize(ctx context.Context, in <-chan chunk.Chunk, onChunk chunk.OnChunkFunc) (chunk.Chunk, error) {
	builder := chunk.NewBuilder()
	for {
		select {
		case <-ctx.Done():
			return chunk.Chunk{}, ctx.Err()
		case c, ok := <-in:
			if !ok {
				return builder.Build(), nil
			}
			if onChunk != nil {
				onChunk(c, chunk.DirectionInput, 0, 0)
			}
			builder.AddChunk(c)
		}
	}
}

func emitOnce(ctx context.Context, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc, c chunk.Chunk) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- c:
	}
	if onChunk != nil {
		onChunk(c, chunk.DirectionOutput, 0, 0)
	}
	return nil
}

// --- deduplicate ---------------------------------------------------------

type deduplicateOperator struct {
	IdentityLineage
	subset []string
	keep   string // first | last
}

func newDeduplicateOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	keep, _ := config["keep"].(string)
	if keep == "" {
		keep = "first"
	}
	return &deduplicateOperator{subset: stringList(config["subset"]), keep: keep}, nil
}

func (d *deduplicateOperator) ValidateConfig() error {
	if d.keep != "first" && d.keep != "last" {
		return fmt.Errorf("deduplicate: keep must be first or last")
	}
	return nil
}

func (d *deduplicateOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	full, err := materialize(ctx, in, onChunk)
	if err != nil {
		return err
	}

	keyCols := d.subset
	if len(keyCols) == 0 {
		keyCols = full.Columns
	}

	seenAt := make(map[string]int, len(full.Rows))
	var order []string
	for i, r := range full.Rows {
		key := rowKey(r, keyCols)
		if _, ok := seenAt[key]; ok {
			if d.keep == "last" {
				seenAt[key] = i
			}
			continue
		}
		seenAt[key] = i
		order = append(order, key)
	}

	indexes := make([]int, 0, len(order))
	for _, key := range order {
		indexes = append(indexes, seenAt[key])
	}
	sort.Ints(indexes)

	rows := make([]chunk.Row, 0, len(indexes))
	for _, idx := range indexes {
		rows = append(rows, full.Rows[idx])
	}

	return emitOnce(ctx, out, onChunk, chunk.Chunk{Columns: full.Columns, Rows: rows})
}

func rowKey(r chunk.Row, cols []string) string {
	key := ""
	for _, c := range cols {
		key += c + "=" + fmt.Sprint(r[c]) + "\x1f"
	}
	return key
}

// --- sort ------------------------------------------------------------

type sortOperator struct {
	IdentityLineage
	columns    []string
	ascending  []bool
}

func newSortOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	cols := stringList(config["columns"])
	op := &sortOperator{columns: cols}

	switch v := config["ascending"].(type) {
	case bool:
		op.ascending = make([]bool, len(cols))
		for i := range op.ascending {
			op.ascending[i] = v
		}
	case []any:
		for _, item := range v {
			b, _ := item.(bool)
			op.ascending = append(op.ascending, b)
		}
	default:
		op.ascending = make([]bool, len(cols))
		for i := range op.ascending {
			op.ascending[i] = true
		}
	}
	return op, nil
}

func (s *sortOperator) ValidateConfig() error {
	if len(s.columns) == 0 {
		return fmt.Errorf("sort: columns is required")
	}
	return nil
}

func (s *sortOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	full, err := materialize(ctx, in, onChunk)
	if err != nil {
		return err
	}

	rows := make([]chunk.Row, len(full.Rows))
	copy(rows, full.Rows)

	sort.SliceStable(rows, func(i, j int) bool {
		for idx, col := range s.columns {
			asc := idx < len(s.ascending) && s.ascending[idx]
			cmp := compareValues(rows[i][col], rows[j][col])
			if cmp == 0 {
				continue
			}
			if asc {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})

	return emitOnce(ctx, out, onChunk, chunk.Chunk{Columns: full.Columns, Rows: rows})
}

func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// --- aggregate ---------------------------------------------------------

type aggregateOperator struct {
	groupBy []string
	aggs    map[string]string // column -> sum|mean|avg|count|min|max|unique_count
}

func newAggregateOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &aggregateOperator{groupBy: stringList(config["group_by"]), aggs: stringMap(config["aggregations"])}, nil
}

func (a *aggregateOperator) ValidateConfig() error {
	if len(a.aggs) == 0 {
		return fmt.Errorf("aggregate: aggregations is required")
	}
	return nil
}

func (a *aggregateOperator) Lineage(inputColumns []string) LineageMap {
	m := make(LineageMap)
	for _, g := range a.groupBy {
		m[g] = []string{g}
	}
	for col := range a.aggs {
		m[col] = []string{col}
	}
	return m
}

func (a *aggregateOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	full, err := materialize(ctx, in, onChunk)
	if err != nil {
		return err
	}

	type group struct {
		keyValues []any
		rows      []chunk.Row
	}
	groups := make(map[string]*group)
	var order []string

	for _, r := range full.Rows {
		key := rowKey(r, a.groupBy)
		g, ok := groups[key]
		if !ok {
			kv := make([]any, len(a.groupBy))
			for i, col := range a.groupBy {
				kv[i] = r[col]
			}
			g = &group{keyValues: kv}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, r)
	}

	outColumns := append([]string{}, a.groupBy...)
	for col := range a.aggs {
		outColumns = append(outColumns, col)
	}

	rows := make([]chunk.Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := make(chunk.Row, len(outColumns))
		for i, col := range a.groupBy {
			row[col] = g.keyValues[i]
		}
		for col, fn := range a.aggs {
			row[col] = aggregateColumn(g.rows, col, fn)
		}
		rows = append(rows, row)
	}

	return emitOnce(ctx, out, onChunk, chunk.Chunk{Columns: outColumns, Rows: rows})
}

func aggregateColumn(rows []chunk.Row, col, fn string) any {
	switch fn {
	case "count":
		return len(rows)
	case "unique_count":
		seen := make(map[string]struct{})
		for _, r := range rows {
			seen[fmt.Sprint(r[col])] = struct{}{}
		}
		return len(seen)
	case "sum", "mean", "avg", "min", "max":
		var sum, min, max float64
		var count int
		first := true
		for _, r := range rows {
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
		switch fn {
		case "sum":
			return sum
		case "mean", "avg":
			if count == 0 {
				return 0.0
			}
			return sum / float64(count)
		case "min":
			return min
		case "max":
			return max
		}
	}
	return nil
}
