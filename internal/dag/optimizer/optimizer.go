// Package optimizer implements the static pushdown optimizer of §4.2: it
// collapses chains of pushdown-compatible operators into their upstream
// EXTRACT node on a cloned copy of the plan, never mutating the caller's
// graph.
package optimizer

import (
	"github.com/synqx/core/internal/dag"
	"github.com/synqx/core/internal/domain"
)

// pushdownConnectorKinds are the EXTRACT connector kinds the optimizer is
// allowed to push operators into.
var pushdownConnectorKinds = map[string]struct{}{
	"postgresql": {}, "mysql": {}, "mariadb": {}, "mssql": {}, "snowflake": {}, "bigquery": {},
}

// pushdownOperatorClasses are the downstream operator classes eligible for
// absorption into an EXTRACT's native query.
var pushdownOperatorClasses = map[string]struct{}{
	"filter": {}, "limit_offset": {},
}

// PushedOperator records one operator absorbed into an EXTRACT node, in the
// order it was originally chained.
type PushedOperator struct {
	NodeID        string         `json:"node_id"`
	OperatorClass string         `json:"operator_class"`
	Config        map[string]any `json:"config"`
}

// Result is the outcome of Collapse: the (possibly mutated-in-clone) plan
// plus a map of absorbed-node-id -> absorbing-extract-node-id.
type Result struct {
	Plan          *dag.Graph
	CollapsedInto map[string]string
}

// Collapse clones plan, walks each EXTRACT node whose connector kind is
// pushdown-capable, and greedily absorbs a linear chain of downstream
// pushdown-compatible operators, per §4.2.
//
// connectionKindByNode resolves a node's Connection's connector_kind (only
// meaningful for EXTRACT nodes); nodes is keyed by node id and is mutated in
// place to record `_collapsed_into` / `_pushdown_operators` config, matching
// the spec's instruction that collapsed nodes "still exist" with rewritten
// config.
func Collapse(plan *dag.Graph, nodes map[string]*domain.Node, connectionKindByNode map[string]string) Result {
	clone := plan.Clone()
	collapsedInto := make(map[string]string)

	for _, id := range clone.Nodes() {
		node := nodes[id]
		if node == nil || node.OperatorType != domain.OperatorExtract {
			continue
		}
		kind := connectionKindByNode[id]
		if _, ok := pushdownConnectorKinds[kind]; !ok {
			continue
		}
		if _, already := collapsedInto[id]; already {
			continue
		}

		var chain []*domain.Node
		cursor := id
		for {
			succs := clone.Successors(cursor)
			if len(succs) != 1 {
				break
			}
			next := succs[0]
			nextNode := nodes[next]
			if nextNode == nil {
				break
			}
			if _, ok := pushdownOperatorClasses[nextNode.OperatorClass]; !ok {
				break
			}
			// A node already absorbed elsewhere, or with more than one
			// inbound edge, cannot be chained further (the spec's "exactly
			// one out-edge at each step" plus an implicit single consumer).
			if len(clone.Predecessors(next)) != 1 {
				break
			}
			chain = append(chain, nextNode)
			cursor = next
		}

		if len(chain) == 0 {
			continue
		}

		pushed := make([]PushedOperator, 0, len(chain))
		for _, n := range chain {
			pushed = append(pushed, PushedOperator{
				NodeID:        n.NodeID,
				OperatorClass: n.OperatorClass,
				Config:        n.Config,
			})
			if n.Config == nil {
				n.Config = map[string]any{}
			}
			n.Config["_collapsed_into"] = id
			collapsedInto[n.NodeID] = id
		}

		if node.Config == nil {
			node.Config = map[string]any{}
		}
		node.Config["_pushdown_operators"] = pushed

		last := chain[len(chain)-1]
		for _, out := range clone.Successors(last.NodeID) {
			_ = clone.AddEdge(id, out)
		}
	}

	return Result{Plan: clone, CollapsedInto: collapsedInto}
}
