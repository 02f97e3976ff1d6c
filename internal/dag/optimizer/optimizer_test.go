package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/dag"
	"github.com/synqx/core/internal/domain"
)

// S3 — Pushdown collapse.
func TestCollapse_S3(t *testing.T) {
	plan := dag.New()
	plan.AddNode("E")
	plan.AddNode("F")
	plan.AddNode("L")
	require.NoError(t, plan.AddEdge("E", "F"))
	require.NoError(t, plan.AddEdge("F", "L"))

	nodes := map[string]*domain.Node{
		"E": {NodeID: "E", OperatorType: domain.OperatorExtract, OperatorClass: "sql_extract", Config: map[string]any{}},
		"F": {NodeID: "F", OperatorType: domain.OperatorTransform, OperatorClass: "filter", Config: map[string]any{"condition": "x == 10"}},
		"L": {NodeID: "L", OperatorType: domain.OperatorTransform, OperatorClass: "limit_offset", Config: map[string]any{"limit": 100}},
	}
	kinds := map[string]string{"E": "postgresql"}

	result := Collapse(plan, nodes, kinds)

	assert.Equal(t, "E", result.CollapsedInto["F"])
	assert.Equal(t, "E", result.CollapsedInto["L"])
	assert.Equal(t, "E", nodes["F"].Config["_collapsed_into"])
	assert.Equal(t, "E", nodes["L"].Config["_collapsed_into"])

	pushed, ok := nodes["E"].Config["_pushdown_operators"].([]PushedOperator)
	require.True(t, ok)
	require.Len(t, pushed, 2)
	assert.Equal(t, "filter", pushed[0].OperatorClass)
	assert.Equal(t, "limit_offset", pushed[1].OperatorClass)

	sql, err := ComposeSQL("t", pushed)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM (SELECT * FROM (SELECT * FROM t) AS filter_subq WHERE x = 10) AS limit_subq LIMIT 100",
		sql,
	)
}

func TestCollapseSkipsNonPushdownConnector(t *testing.T) {
	plan := dag.New()
	plan.AddNode("E")
	plan.AddNode("F")
	require.NoError(t, plan.AddEdge("E", "F"))

	nodes := map[string]*domain.Node{
		"E": {NodeID: "E", OperatorType: domain.OperatorExtract, Config: map[string]any{}},
		"F": {NodeID: "F", OperatorType: domain.OperatorTransform, OperatorClass: "filter", Config: map[string]any{}},
	}
	kinds := map[string]string{"E": "mongodb"}

	result := Collapse(plan, nodes, kinds)
	assert.Empty(t, result.CollapsedInto)
}

func TestCollapseDoesNotMutateOriginalPlan(t *testing.T) {
	plan := dag.New()
	plan.AddNode("E")
	plan.AddNode("F")
	require.NoError(t, plan.AddEdge("E", "F"))

	nodes := map[string]*domain.Node{
		"E": {NodeID: "E", OperatorType: domain.OperatorExtract, Config: map[string]any{}},
		"F": {NodeID: "F", OperatorType: domain.OperatorTransform, OperatorClass: "filter", Config: map[string]any{"condition": "a == 1"}},
	}
	kinds := map[string]string{"E": "postgresql"}

	original := plan
	result := Collapse(plan, nodes, kinds)
	assert.NotSame(t, original, result.Plan)
	assert.ElementsMatch(t, []string{"F"}, original.Successors("E"))
}
