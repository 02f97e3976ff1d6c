package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/chunk"
)

func TestEvalPredicateTrueFalse(t *testing.T) {
	e := New(time.Second)
	ok, err := e.EvalPredicate(context.Background(), "row.age >= 18", chunk.Row{"age": int64(21)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvalPredicate(context.Background(), "row.age >= 18", chunk.Row{"age": int64(10)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalPredicateCompileError(t *testing.T) {
	e := New(time.Second)
	_, err := e.EvalPredicate(context.Background(), "row.age >=", chunk.Row{})
	require.Error(t, err)
	var compileErr CompileError
	assert.ErrorAs(t, err, &compileErr)
}

func TestEvalTransform(t *testing.T) {
	e := New(time.Second)
	script := `function transform(rows) {
		return rows.map(function(r) { r.doubled = r.value * 2; return r; });
	}`
	result, err := e.EvalTransform(context.Background(), script, []chunk.Row{
		{"value": int64(2)},
		{"value": int64(3)},
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.EqualValues(t, 4, result.Rows[0]["doubled"])
	assert.EqualValues(t, 6, result.Rows[1]["doubled"])
}

func TestEvalTransformMissingFunction(t *testing.T) {
	e := New(time.Second)
	_, err := e.EvalTransform(context.Background(), `var x = 1;`, nil)
	require.Error(t, err)
	var compileErr CompileError
	assert.ErrorAs(t, err, &compileErr)
}
