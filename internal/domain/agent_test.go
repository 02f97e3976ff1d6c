package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgentEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	stale := Agent{Status: AgentOnline, LastHeartbeatAt: now.Add(-3 * time.Minute)}
	assert.Equal(t, AgentOffline, stale.EffectiveStatus(now, 2*time.Minute))

	fresh := Agent{Status: AgentOnline, LastHeartbeatAt: now.Add(-30 * time.Second)}
	assert.Equal(t, AgentOnline, fresh.EffectiveStatus(now, 2*time.Minute))

	draining := Agent{Status: AgentDraining, LastHeartbeatAt: now.Add(-10 * time.Second)}
	assert.Equal(t, AgentDraining, draining.EffectiveStatus(now, 2*time.Minute))
}

func TestAgentMatchesGroup(t *testing.T) {
	a := Agent{Tags: AgentTags{Groups: []string{"AWS-East", "gpu"}}}
	assert.True(t, a.MatchesGroup("aws-east"))
	assert.True(t, a.MatchesGroup("GPU"))
	assert.False(t, a.MatchesGroup("aws-west"))
}

func TestJobCanRetry(t *testing.T) {
	j := Job{RetryCount: 2, MaxRetries: 3}
	assert.True(t, j.CanRetry())
	j.RetryCount = 3
	assert.False(t, j.CanRetry())
}
