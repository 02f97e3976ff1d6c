package agents

import "github.com/synqx/core/internal/domain"

// MatchGroup reports whether agent is a candidate for group, delegating to
// domain.Agent.MatchesGroup's case-insensitive comparison. It is exported
// here (rather than only living on the domain type) so callers reaching for
// "the agent routing rule" find it next to the rest of the fleet's
// authentication/heartbeat logic, per §4.6 "computed host-side... to remain
// backend-agnostic" — never pushed down into a store query.
func MatchGroup(agent domain.Agent, group string) bool {
	return agent.MatchesGroup(group)
}
