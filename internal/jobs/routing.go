package jobs

import (
	"context"
	"time"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/storage"
)

// DefaultLivenessWindow is the agent heartbeat liveness window (§4.6): an
// agent whose last heartbeat is older than this is treated as OFFLINE
// regardless of its stored status.
const DefaultLivenessWindow = 2 * time.Minute

// AgentRouting resolves an agent_group tag to the set of currently-online
// agents that can serve it. It is shared verbatim between jobs.Service and
// the ephemeral job queue, since both route work by the same tag-matching
// rule (§4.6, §4.7).
type AgentRouting struct {
	Agents         storage.AgentStore
	LivenessWindow time.Duration
	Now            func() time.Time
}

// NewAgentRouting returns an AgentRouting with the default liveness window
// and a real-time clock.
func NewAgentRouting(agents storage.AgentStore) *AgentRouting {
	return &AgentRouting{Agents: agents, LivenessWindow: DefaultLivenessWindow, Now: time.Now}
}

func (r *AgentRouting) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *AgentRouting) livenessWindow() time.Duration {
	if r.LivenessWindow <= 0 {
		return DefaultLivenessWindow
	}
	return r.LivenessWindow
}

// HasOnlineCandidate reports whether at least one agent in workspaceID is
// currently ONLINE (per domain.Agent.EffectiveStatus) and matches group.
// Matching is computed host-side over the listed agents, never pushed down
// as a store query, so the routing rule stays backend-agnostic (§4.6).
func (r *AgentRouting) HasOnlineCandidate(ctx context.Context, workspaceID, group string) (bool, error) {
	agents, err := r.Agents.ListAgents(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	now := r.now()
	window := r.livenessWindow()
	for i := range agents {
		a := &agents[i]
		if !a.MatchesGroup(group) {
			continue
		}
		if a.EffectiveStatus(now, window) == domain.AgentOnline {
			return true, nil
		}
	}
	return false, nil
}
