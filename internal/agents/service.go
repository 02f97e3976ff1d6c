package agents

import (
	"context"
	"time"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/storage"
	"github.com/synqx/core/internal/telemetry"
)

// LivenessWindow is the agent heartbeat liveness window (§4.6): an agent
// whose last heartbeat is older than this window is treated as OFFLINE
// regardless of stored status. It is the control plane's fixed default
// (2 minutes) and does not depend on any one agent's own heartbeat period.
const LivenessWindow = 2 * time.Minute

// RegisterRequest is the agent-registration payload (§6 POST /agents/register).
type RegisterRequest struct {
	WorkspaceID string
	DisplayName string
	Tags        domain.AgentTags
}

// RegisterResponse carries the plaintext API key, shown exactly once.
type RegisterResponse struct {
	Agent        domain.Agent
	APIKeyPlain  string
}

// HeartbeatRequest is the agent-heartbeat payload (§6 POST /agents/heartbeat).
type HeartbeatRequest struct {
	Status     domain.AgentStatus
	SystemInfo domain.SystemInfo
	IPAddress  string
	Version    string
}

// Service implements agent registration, authentication, and heartbeat
// bookkeeping for the agent fleet.
type Service struct {
	agents  storage.AgentStore
	tokens  *TokenIssuer
	metrics *telemetry.Metrics
	now     func() time.Time
}

// New builds a Service. metrics may be nil.
func New(agentStore storage.AgentStore, tokens *TokenIssuer, metrics *telemetry.Metrics) *Service {
	return &Service{agents: agentStore, tokens: tokens, metrics: metrics, now: time.Now}
}

// Register creates an Agent record, persisting only the SHA-256 hash of a
// freshly generated API key and returning the plaintext once (§4.6
// Registration).
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	plain, hashed, err := generateAPIKey()
	if err != nil {
		return RegisterResponse{}, err
	}

	agent := domain.Agent{
		WorkspaceID:     req.WorkspaceID,
		ClientID:        newClientID(),
		HashedSecret:    hashed,
		DisplayName:     req.DisplayName,
		Tags:            req.Tags,
		Status:          domain.AgentOffline,
		LastHeartbeatAt: s.now(),
		CreatedAt:       s.now(),
	}

	created, err := s.agents.RegisterAgent(ctx, agent)
	if err != nil {
		return RegisterResponse{}, err
	}
	return RegisterResponse{Agent: created, APIKeyPlain: plain}, nil
}

// Authenticate validates clientID/apiKey and mints a short-lived bearer
// token for the agent's subsequent calls (§4.6 Authentication).
func (s *Service) Authenticate(ctx context.Context, clientID, apiKey string) (domain.Agent, string, error) {
	agent, err := s.agents.GetAgentByClientID(ctx, clientID)
	if err != nil {
		return domain.Agent{}, "", apperrors.Authentication("unknown agent")
	}
	if !VerifyAPIKey(apiKey, agent.HashedSecret) {
		return domain.Agent{}, "", apperrors.Authentication("invalid api key")
	}

	token, err := s.tokens.Issue(agent.ID, agent.ClientID)
	if err != nil {
		return domain.Agent{}, "", err
	}
	return agent, token, nil
}

// AuthenticateToken validates a previously issued bearer token, avoiding a
// raw-API-key round trip on hot-path calls (lease/progress/complete).
func (s *Service) AuthenticateToken(ctx context.Context, token string) (domain.Agent, error) {
	agentID, _, err := s.tokens.Verify(token)
	if err != nil {
		return domain.Agent{}, err
	}
	return s.agents.GetAgent(ctx, agentID)
}

// Heartbeat records a liveness update and re-mints the agent's bearer
// token, per §4.6 Heartbeat.
func (s *Service) Heartbeat(ctx context.Context, agentID string, req HeartbeatRequest) (domain.Agent, string, error) {
	agent, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return domain.Agent{}, "", err
	}

	now := s.now()
	agent.Status = req.Status
	agent.LastHeartbeatAt = now
	agent.IPAddress = req.IPAddress
	agent.Version = req.Version
	agent.SystemInfo = req.SystemInfo

	updated, err := s.agents.UpdateAgent(ctx, agent)
	if err != nil {
		return domain.Agent{}, "", err
	}
	if err := s.agents.Heartbeat(ctx, agentID, now, req.SystemInfo); err != nil {
		return domain.Agent{}, "", err
	}

	if s.metrics != nil {
		s.metrics.RecordAgentHeartbeat("synqx", updated.ClientID)
	}

	token, err := s.tokens.Issue(updated.ID, updated.ClientID)
	if err != nil {
		return domain.Agent{}, "", err
	}
	return updated, token, nil
}

// EffectiveStatuses counts the agents in workspaceID per liveness-corrected
// status, for fleet dashboards and the AgentsOnline gauge.
func (s *Service) EffectiveStatuses(ctx context.Context, workspaceID string) (map[domain.AgentStatus]int, error) {
	all, err := s.agents.ListAgents(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	counts := make(map[domain.AgentStatus]int)
	for i := range all {
		counts[all[i].EffectiveStatus(now, LivenessWindow)]++
	}
	if s.metrics != nil {
		for status, count := range counts {
			s.metrics.SetAgentsOnline("synqx", string(status), count)
		}
	}
	return counts, nil
}

// newClientID returns a short random hex identifier distinct from the
// store-assigned primary key, matching §4.6's "registration returns
// client_id" wording (the agent addresses itself by client_id, not the
// store's internal id).
func newClientID() string {
	plain, _, err := generateAPIKey()
	if err != nil {
		return ""
	}
	if len(plain) > 16 {
		return plain[:16]
	}
	return plain
}
