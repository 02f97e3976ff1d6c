package operator

import (
	"context"
	"fmt"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// drainNamed materializes every named input stream into a full Chunk, used
// by all four MultiInput operator classes — each is blocking by nature
// (join/merge/scd_type_2 need both sides fully buffered to match keys;
// union only needs to concatenate, but draining concurrently keeps the
// implementation uniform and avoids a head-of-line stall on a slow parent).
func drainNamed(ctx context.Context, ins map[string]<-chan chunk.Chunk, onChunk chunk.OnChunkFunc) (map[string]chunk.Chunk, error) {
	type result struct {
		name string
		c    chunk.Chunk
		err  error
	}
	results := make(chan result, len(ins))
	for name, in := range ins {
		go func(name string, in <-chan chunk.Chunk) {
			c, err := materialize(ctx, in, onChunk)
			results <- result{name: name, c: c, err: err}
		}(name, in)
	}

	out := make(map[string]chunk.Chunk, len(ins))
	for range ins {
		r := <-results
		if r.err != nil {
			return nil, r.err
		}
		out[r.name] = r.c
	}
	return out, nil
}

// --- union ---------------------------------------------------------------

type unionOperator struct {
	IdentityLineage
	parents []string
}

func newUnionOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &unionOperator{parents: stringList(config["parents"])}, nil
}

func (u *unionOperator) ValidateConfig() error { return nil }

func (u *unionOperator) TransformMulti(ctx context.Context, ins map[string]<-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	drained, err := drainNamed(ctx, ins, onChunk)
	if err != nil {
		return err
	}

	var columns []string
	seen := make(map[string]bool)
	var rows []chunk.Row
	for name, c := range drained {
		_ = name
		for _, col := range c.Columns {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		rows = append(rows, c.Rows...)
	}

	return emitOnce(ctx, out, onChunk, chunk.Chunk{Columns: columns, Rows: rows})
}

// --- join ------------------------------------------------------------

type joinOperator struct {
	left, right string
	leftKey     string
	rightKey    string
	joinType    string // inner | left | right | full
}

func newJoinOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	j := &joinOperator{
		left:     stringOr(config["left"], "left"),
		right:    stringOr(config["right"], "right"),
		leftKey:  stringOr(config["left_key"], ""),
		rightKey: stringOr(config["right_key"], ""),
		joinType: stringOr(config["join_type"], "inner"),
	}
	return j, nil
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func (j *joinOperator) ValidateConfig() error {
	if j.leftKey == "" || j.rightKey == "" {
		return fmt.Errorf("join: left_key and right_key are required")
	}
	switch j.joinType {
	case "inner", "left", "right", "full":
	default:
		return fmt.Errorf("join: unsupported join_type %q", j.joinType)
	}
	return nil
}

func (j *joinOperator) Lineage(inputColumns []string) LineageMap {
	m := make(LineageMap, len(inputColumns))
	for _, c := range inputColumns {
		m[c] = []string{c}
	}
	return m
}

func (j *joinOperator) TransformMulti(ctx context.Context, ins map[string]<-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	drained, err := drainNamed(ctx, ins, onChunk)
	if err != nil {
		return err
	}
	left := drained[j.left]
	right := drained[j.right]

	rightIndex := make(map[string][]int, len(right.Rows))
	for i, r := range right.Rows {
		key := fmt.Sprint(r[j.rightKey])
		rightIndex[key] = append(rightIndex[key], i)
	}

	columns := append([]string{}, left.Columns...)
	for _, c := range right.Columns {
		if c == j.rightKey {
			continue
		}
		columns = append(columns, c)
	}

	var rows []chunk.Row
	matchedRight := make(map[int]bool)

	for _, lr := range left.Rows {
		key := fmt.Sprint(lr[j.leftKey])
		matches := rightIndex[key]
		if len(matches) == 0 {
			if j.joinType == "left" || j.joinType == "full" {
				rows = append(rows, mergeRow(lr, chunk.Row{}, right.Columns, j.rightKey))
			}
			continue
		}
		for _, idx := range matches {
			matchedRight[idx] = true
			rows = append(rows, mergeRow(lr, right.Rows[idx], right.Columns, j.rightKey))
		}
	}

	if j.joinType == "right" || j.joinType == "full" {
		for i, rr := range right.Rows {
			if matchedRight[i] {
				continue
			}
			rows = append(rows, mergeRow(chunk.Row{}, rr, right.Columns, j.rightKey))
		}
	}

	return emitOnce(ctx, out, onChunk, chunk.Chunk{Columns: columns, Rows: rows})
}

func mergeRow(left, right chunk.Row, rightColumns []string, rightKey string) chunk.Row {
	row := make(chunk.Row, len(left)+len(right))
	for k, v := range left {
		row[k] = v
	}
	for _, c := range rightColumns {
		if c == rightKey {
			continue
		}
		row[c] = right[c]
	}
	return row
}

// --- merge -----------------------------------------------------------

type mergeOperator struct {
	delta, target string
	key           string
}

func newMergeOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &mergeOperator{
		delta:  stringOr(config["delta"], "delta"),
		target: stringOr(config["target"], "target"),
		key:    stringOr(config["key"], ""),
	}, nil
}

func (m *mergeOperator) ValidateConfig() error {
	if m.key == "" {
		return fmt.Errorf("merge: key is required")
	}
	return nil
}

func (m *mergeOperator) Lineage(inputColumns []string) LineageMap {
	mp := make(LineageMap, len(inputColumns))
	for _, c := range inputColumns {
		mp[c] = []string{c}
	}
	return mp
}

// TransformMulti applies upsert semantics: every target row survives unless
// a delta row shares its key, in which case the delta row replaces it;
// delta rows with no matching target key are inserted (§4.3 merge/upsert).
func (m *mergeOperator) TransformMulti(ctx context.Context, ins map[string]<-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	drained, err := drainNamed(ctx, ins, onChunk)
	if err != nil {
		return err
	}
	delta := drained[m.delta]
	target := drained[m.target]

	columns := target.Columns
	if len(columns) == 0 {
		columns = delta.Columns
	}

	byKey := make(map[string]chunk.Row, len(target.Rows))
	var order []string
	for _, r := range target.Rows {
		key := fmt.Sprint(r[m.key])
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = r
	}
	for _, r := range delta.Rows {
		key := fmt.Sprint(r[m.key])
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = r
	}

	rows := make([]chunk.Row, 0, len(order))
	for _, key := range order {
		rows = append(rows, byKey[key])
	}

	return emitOnce(ctx, out, onChunk, chunk.Chunk{Columns: columns, Rows: rows})
}

// --- scd_type_2 --------------------------------------------------------

type scdType2Operator struct {
	delta, target  string
	key            string
	trackedColumns []string
	effectiveFrom  string
	effectiveTo    string
	isCurrent      string
}

func newSCDType2Operator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	return &scdType2Operator{
		delta:          stringOr(config["delta"], "delta"),
		target:         stringOr(config["target"], "target"),
		key:            stringOr(config["key"], ""),
		trackedColumns: stringList(config["tracked_columns"]),
		effectiveFrom:  stringOr(config["effective_from_column"], "effective_from"),
		effectiveTo:    stringOr(config["effective_to_column"], "effective_to"),
		isCurrent:      stringOr(config["is_current_column"], "is_current"),
	}, nil
}

func (s *scdType2Operator) ValidateConfig() error {
	if s.key == "" || len(s.trackedColumns) == 0 {
		return fmt.Errorf("scd_type_2: key and tracked_columns are required")
	}
	return nil
}

func (s *scdType2Operator) Lineage(inputColumns []string) LineageMap {
	m := make(LineageMap, len(inputColumns))
	for _, c := range inputColumns {
		m[c] = []string{c}
	}
	return m
}

// TransformMulti closes out (is_current=false, effective_to=now) any current
// target row whose tracked columns differ from its matching delta row, and
// opens a new current version for it; delta rows with no existing target key
// are inserted as new current versions (§4.3 scd_type_2, history-preserving
// dimension updates).
func (s *scdType2Operator) TransformMulti(ctx context.Context, ins map[string]<-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	drained, err := drainNamed(ctx, ins, onChunk)
	if err != nil {
		return err
	}
	delta := drained[s.delta]
	target := drained[s.target]

	columns := target.Columns
	if len(columns) == 0 {
		columns = append(append([]string{}, delta.Columns...), s.effectiveFrom, s.effectiveTo, s.isCurrent)
	}

	currentByKey := make(map[string]int)
	rows := make([]chunk.Row, len(target.Rows))
	copy(rows, target.Rows)
	for i, r := range rows {
		if truthy(r[s.isCurrent]) {
			currentByKey[fmt.Sprint(r[s.key])] = i
		}
	}

	for _, dr := range delta.Rows {
		key := fmt.Sprint(dr[s.key])
		idx, hasCurrent := currentByKey[key]

		if hasCurrent && !s.changed(rows[idx], dr) {
			continue
		}

		if hasCurrent {
			closed := cloneRow(rows[idx])
			closed[s.isCurrent] = false
			closed[s.effectiveTo] = "now"
			rows[idx] = closed
		}

		newVersion := cloneRow(dr)
		newVersion[s.isCurrent] = true
		newVersion[s.effectiveFrom] = "now"
		newVersion[s.effectiveTo] = nil
		rows = append(rows, newVersion)
	}

	return emitOnce(ctx, out, onChunk, chunk.Chunk{Columns: columns, Rows: rows})
}

func (s *scdType2Operator) changed(current, delta chunk.Row) bool {
	for _, col := range s.trackedColumns {
		if fmt.Sprint(current[col]) != fmt.Sprint(delta[col]) {
			return true
		}
	}
	return false
}

func cloneRow(r chunk.Row) chunk.Row {
	out := make(chunk.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
