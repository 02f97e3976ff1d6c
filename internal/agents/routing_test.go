package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synqx/core/internal/domain"
)

func TestMatchGroup_CaseInsensitive(t *testing.T) {
	agent := domain.Agent{Tags: domain.AgentTags{Groups: []string{"Warehouse", "nightly"}}}
	assert.True(t, MatchGroup(agent, "warehouse"))
	assert.True(t, MatchGroup(agent, "NIGHTLY"))
	assert.False(t, MatchGroup(agent, "internal"))
}
