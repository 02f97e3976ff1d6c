package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/storage"
)

func newTestAgentService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	issuer := NewTokenIssuer([]byte("test-secret"), time.Minute)
	return New(mem, issuer, nil), mem
}

func TestService_RegisterPersistsOnlyHash(t *testing.T) {
	svc, mem := newTestAgentService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{WorkspaceID: "ws-1", DisplayName: "worker-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.APIKeyPlain)
	assert.NotEmpty(t, resp.Agent.ClientID)

	stored, err := mem.GetAgent(ctx, resp.Agent.ID)
	require.NoError(t, err)
	assert.NotEqual(t, resp.APIKeyPlain, stored.HashedSecret)
	assert.Equal(t, HashAPIKey(resp.APIKeyPlain), stored.HashedSecret)
}

func TestService_AuthenticateRoundTrip(t *testing.T) {
	svc, _ := newTestAgentService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{WorkspaceID: "ws-1", DisplayName: "worker-1"})
	require.NoError(t, err)

	agent, token, err := svc.Authenticate(ctx, resp.Agent.ClientID, resp.APIKeyPlain)
	require.NoError(t, err)
	assert.Equal(t, resp.Agent.ID, agent.ID)
	assert.NotEmpty(t, token)

	viaToken, err := svc.AuthenticateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, resp.Agent.ID, viaToken.ID)
}

func TestService_AuthenticateRejectsWrongKey(t *testing.T) {
	svc, _ := newTestAgentService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{WorkspaceID: "ws-1", DisplayName: "worker-1"})
	require.NoError(t, err)

	_, _, err = svc.Authenticate(ctx, resp.Agent.ClientID, "wrong-key")
	require.Error(t, err)
}

func TestService_HeartbeatUpdatesStatus(t *testing.T) {
	svc, mem := newTestAgentService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{WorkspaceID: "ws-1", DisplayName: "worker-1"})
	require.NoError(t, err)

	updated, token, err := svc.Heartbeat(ctx, resp.Agent.ID, HeartbeatRequest{Status: domain.AgentOnline, IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOnline, updated.Status)
	assert.NotEmpty(t, token)

	stored, err := mem.GetAgent(ctx, resp.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", stored.IPAddress)
}

func TestService_EffectiveStatusesAppliesLivenessWindow(t *testing.T) {
	svc, mem := newTestAgentService(t)
	ctx := context.Background()

	_, err := mem.RegisterAgent(ctx, domain.Agent{
		WorkspaceID: "ws-1", ClientID: "stale-agent",
		Status: domain.AgentOnline, LastHeartbeatAt: time.Now().Add(-3 * time.Hour),
	})
	require.NoError(t, err)
	_, err = mem.RegisterAgent(ctx, domain.Agent{
		WorkspaceID: "ws-1", ClientID: "fresh-agent",
		Status: domain.AgentOnline, LastHeartbeatAt: time.Now(),
	})
	require.NoError(t, err)

	counts, err := svc.EffectiveStatuses(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.AgentOnline])
	assert.Equal(t, 1, counts[domain.AgentOffline])
}
