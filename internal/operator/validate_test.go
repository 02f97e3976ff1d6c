package operator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/chunk"
)

// TestValidate_S4 reproduces scenario S4 from the quarantine spec: 5 input
// rows, not_null + regex rules on column e, 50% threshold -> 3 valid, 2
// quarantined with reasons e:not_null and e:regex.
func TestValidate_S4(t *testing.T) {
	op, err := newValidateOperator(map[string]any{
		"rules": []any{
			map[string]any{"col": "e", "check": "not_null"},
			map[string]any{"col": "e", "check": "regex", "pattern": "^.+@.+$"},
		},
		"error_threshold_percent": 50,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, op.ValidateConfig())

	v := op.(*validateOperator)
	input := chunk.Chunk{
		Columns: []string{"id", "e"},
		Rows: []chunk.Row{
			{"id": int64(1), "e": "a@x"},
			{"id": int64(2), "e": nil},
			{"id": int64(3), "e": "b@y"},
			{"id": int64(4), "e": "not-an-email"},
			{"id": int64(5), "e": "c@z"},
		},
	}

	result := v.evaluate(input)
	assert.Len(t, result.Valid, 3)
	require.Len(t, result.Quarantined, 2)
	assert.Equal(t, []string{"e:not_null"}, result.Quarantined[0].Reasons)
	assert.Equal(t, []string{"e:regex"}, result.Quarantined[1].Reasons)
}

func TestValidate_ThresholdBreachStopsRun(t *testing.T) {
	op, err := newValidateOperator(map[string]any{
		"rules":                   []any{map[string]any{"col": "e", "check": "not_null"}},
		"error_threshold_percent": 10,
	}, nil)
	require.NoError(t, err)

	in := make(chan chunk.Chunk, 1)
	out := make(chan chunk.Chunk, 1)
	in <- chunk.Chunk{Columns: []string{"e"}, Rows: []chunk.Row{{"e": nil}, {"e": nil}, {"e": "ok"}}}
	close(in)

	err = op.(*validateOperator).Transform(context.Background(), in, out, nil)
	assert.Error(t, err)
}

func TestDeduplicate_KeepFirst(t *testing.T) {
	op, err := newDeduplicateOperator(map[string]any{"subset": []any{"id"}}, nil)
	require.NoError(t, err)

	in := make(chan chunk.Chunk, 1)
	out := make(chan chunk.Chunk, 1)
	in <- chunk.Chunk{Columns: []string{"id", "v"}, Rows: []chunk.Row{
		{"id": int64(1), "v": "a"},
		{"id": int64(1), "v": "b"},
		{"id": int64(2), "v": "c"},
	}}
	close(in)

	require.NoError(t, op.(*deduplicateOperator).Transform(context.Background(), in, out, nil))
	result := <-out
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "a", result.Rows[0]["v"])
}

func TestJoin_Inner(t *testing.T) {
	op, err := newJoinOperator(map[string]any{
		"left": "left", "right": "right",
		"left_key": "id", "right_key": "id",
		"join_type": "inner",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, op.ValidateConfig())

	left := make(chan chunk.Chunk, 1)
	right := make(chan chunk.Chunk, 1)
	left <- chunk.Chunk{Columns: []string{"id", "name"}, Rows: []chunk.Row{{"id": int64(1), "name": "a"}, {"id": int64(2), "name": "b"}}}
	right <- chunk.Chunk{Columns: []string{"id", "score"}, Rows: []chunk.Row{{"id": int64(1), "score": int64(99)}}}
	close(left)
	close(right)

	out := make(chan chunk.Chunk, 1)
	ins := map[string]<-chan chunk.Chunk{"left": left, "right": right}
	require.NoError(t, op.(*joinOperator).TransformMulti(context.Background(), ins, out, nil))

	result := <-out
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 99, result.Rows[0]["score"])
}
