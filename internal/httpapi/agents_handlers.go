package httpapi

import (
	"net/http"
	"time"

	"github.com/synqx/core/internal/agents"
	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/pubsub"
)

type registerAgentRequest struct {
	WorkspaceID string           `json:"workspace_id"`
	DisplayName string           `json:"display_name"`
	Tags        domain.AgentTags `json:"tags,omitempty"`
}

type registerAgentResponse struct {
	Agent  domain.Agent `json:"agent"`
	APIKey string       `json:"api_key"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.deps.Agents.Register(r.Context(), agents.RegisterRequest{
		WorkspaceID: req.WorkspaceID,
		DisplayName: req.DisplayName,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerAgentResponse{Agent: resp.Agent, APIKey: resp.APIKeyPlain})
}

type authenticateAgentRequest struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

type authenticateAgentResponse struct {
	Agent domain.Agent `json:"agent"`
	Token string       `json:"token"`
}

func (s *Server) handleAuthenticateAgent(w http.ResponseWriter, r *http.Request) {
	var req authenticateAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	agent, token, err := s.deps.Agents.Authenticate(r.Context(), req.ClientID, req.APIKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authenticateAgentResponse{Agent: agent, Token: token})
}

type heartbeatRequest struct {
	Status     domain.AgentStatus `json:"status"`
	SystemInfo domain.SystemInfo  `json:"system_info,omitempty"`
	IPAddress  string             `json:"ip_address,omitempty"`
	Version    string             `json:"version,omitempty"`
}

type heartbeatResponse struct {
	Agent domain.Agent `json:"agent"`
	Token string       `json:"token"`
}

func (s *Server) handleAgentHeartbeat(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentFromContext(r.Context())
	if !ok {
		writeError(w, r, apperrors.Authentication("missing agent bearer token"))
		return
	}

	var req heartbeatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, token, err := s.deps.Agents.Heartbeat(r.Context(), agent.ID, agents.HeartbeatRequest{
		Status:     req.Status,
		SystemInfo: req.SystemInfo,
		IPAddress:  req.IPAddress,
		Version:    req.Version,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, heartbeatResponse{Agent: updated, Token: token})
}

type leaseResponse struct {
	Job             domain.Job                   `json:"job"`
	PipelineVersion domain.PipelineVersion       `json:"pipeline_version"`
	Connections     map[string]domain.Connection `json:"connections"`
	Assets          map[string]domain.Asset      `json:"assets"`
}

// handleAgentLease is the long-poll-free job claim used by the agent's
// execution loop: lease a single QUEUED job matching the agent's tagged
// groups, bundled with its resolved plan (§6 "download plan + resolved
// Connection configs" in one fetch), or 204 if none is available right now.
func (s *Server) handleAgentLease(w http.ResponseWriter, r *http.Request) {
	agent, ok := agentFromContext(r.Context())
	if !ok {
		writeError(w, r, apperrors.Authentication("missing agent bearer token"))
		return
	}

	job, leased, err := s.deps.Jobs.Lease(r.Context(), agent.ID, agent.Tags.Groups, 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !leased {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	plan, err := resolvePlan(r.Context(), s.deps.Pipelines, s.deps.Connections, job)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaseResponse{
		Job:             job,
		PipelineVersion: plan.Version,
		Connections:     plan.Connections,
		Assets:          plan.Assets,
	})
}

type agentProgressRequest struct {
	StepRef     string                  `json:"step_ref"`
	State       domain.StepRunState     `json:"state"`
	RowsRead    int64                   `json:"rows_read,omitempty"`
	RowsWritten int64                   `json:"rows_written,omitempty"`
	Resource    *domain.ResourceSample  `json:"resource,omitempty"`
	LogLine     string                  `json:"log_line,omitempty"`
}

// handleAgentProgress accepts a single step-progress update from an agent
// and republishes it on the job's pub/sub topic for WebSocket subscribers;
// it never mutates Job/StepRun state directly (that happens on Complete).
func (s *Server) handleAgentProgress(w http.ResponseWriter, r *http.Request) {
	if _, ok := agentFromContext(r.Context()); !ok {
		writeError(w, r, apperrors.Authentication("missing agent bearer token"))
		return
	}

	id := muxVar(r, "id")
	var req agentProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if s.deps.Publisher != nil {
		event := pubsub.Event{
			Type: "step_progress",
			At:   time.Now().Format(time.RFC3339Nano),
			Payload: map[string]any{
				"step_ref":     req.StepRef,
				"state":        string(req.State),
				"rows_read":    req.RowsRead,
				"rows_written": req.RowsWritten,
				"log_line":     req.LogLine,
			},
		}
		_ = s.deps.Publisher.Publish(r.Context(), pubsub.JobTopic(id), event)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type agentCompleteRequest struct {
	Success       bool   `json:"success"`
	InfraError    string `json:"infra_error,omitempty"`
	FailedStepRef string `json:"failed_step_ref,omitempty"`
}

func (s *Server) handleAgentComplete(w http.ResponseWriter, r *http.Request) {
	if _, ok := agentFromContext(r.Context()); !ok {
		writeError(w, r, apperrors.Authentication("missing agent bearer token"))
		return
	}

	id := muxVar(r, "id")
	var req agentCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job, err := s.deps.Jobs.Complete(r.Context(), id, req.Success, req.InfraError, req.FailedStepRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
