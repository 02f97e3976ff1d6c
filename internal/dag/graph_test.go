package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — DAG topo sort.
func TestTopologicalSort_S1(t *testing.T) {
	g := New()
	for _, id := range []string{"A", "B", "C", "D"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("A", "B"))
	require.NoError(t, g.AddEdge("A", "C"))
	require.NoError(t, g.AddEdge("B", "D"))
	require.NoError(t, g.AddEdge("C", "D"))

	order, err := g.TopologicalSort()
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["A"], pos["B"])
	assert.Less(t, pos["A"], pos["C"])
	assert.Less(t, pos["B"], pos["D"])
	assert.Less(t, pos["C"], pos["D"])

	layers, err := g.ExecutionLayers()
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.ElementsMatch(t, []string{"A"}, layers[0])
	assert.ElementsMatch(t, []string{"B", "C"}, layers[1])
	assert.ElementsMatch(t, []string{"D"}, layers[2])
}

// S2 — Cycle detection.
func TestCycleDetection_S2(t *testing.T) {
	g := New()
	g.AddNode("A")
	g.AddNode("B")
	require.NoError(t, g.AddEdge("A", "B"))
	require.NoError(t, g.AddEdge("B", "A"))

	_, err := g.TopologicalSort()
	assert.ErrorIs(t, err, ErrCycle)

	_, err = g.ExecutionLayers()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestAddEdgeSelfLoop(t *testing.T) {
	g := New()
	g.AddNode("A")
	err := g.AddEdge("A", "A")
	assert.ErrorIs(t, err, ErrSelfLoop)
}

func TestAddEdgeIdempotent(t *testing.T) {
	g := New()
	g.AddNode("A")
	g.AddNode("B")
	require.NoError(t, g.AddEdge("A", "B"))
	require.NoError(t, g.AddEdge("A", "B"))
	assert.Len(t, g.Successors("A"), 1)
}

func TestTopologicalSortCacheInvalidation(t *testing.T) {
	g := New()
	g.AddNode("A")
	g.AddNode("B")
	require.NoError(t, g.AddEdge("A", "B"))

	first, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, first)

	g.AddNode("C")
	require.NoError(t, g.AddEdge("C", "A"))

	second, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, second)
}

func TestLayeringSoundness_Property2(t *testing.T) {
	g := New()
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("A", "B"))
	require.NoError(t, g.AddEdge("B", "C"))
	require.NoError(t, g.AddEdge("A", "D"))
	require.NoError(t, g.AddEdge("D", "E"))

	layers, err := g.ExecutionLayers()
	require.NoError(t, err)

	seen := map[string]struct{}{}
	layerOf := map[string]int{}
	for i, layer := range layers {
		for _, id := range layer {
			seen[id] = struct{}{}
			layerOf[id] = i
		}
	}
	assert.Len(t, seen, 5)

	for _, id := range g.Nodes() {
		for _, succ := range g.Successors(id) {
			assert.NotEqual(t, layerOf[id], layerOf[succ], "edge %s->%s must cross layers", id, succ)
		}
	}
}
