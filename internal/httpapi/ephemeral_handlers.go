package httpapi

import (
	"net/http"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/ephemeral"
)

type submitEphemeralJobRequest struct {
	WorkspaceID  string                   `json:"workspace_id"`
	UserID       string                   `json:"user_id"`
	ConnectionID *string                  `json:"connection_id,omitempty"`
	Type         domain.EphemeralJobType  `json:"type"`
	AgentGroup   string                   `json:"agent_group,omitempty"`
	Payload      map[string]any           `json:"payload,omitempty"`
}

func (s *Server) handleSubmitEphemeralJob(w http.ResponseWriter, r *http.Request) {
	var req submitEphemeralJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job, err := s.deps.Ephemeral.Submit(r.Context(), ephemeral.SubmitRequest{
		WorkspaceID:  req.WorkspaceID,
		UserID:       req.UserID,
		ConnectionID: req.ConnectionID,
		Type:         req.Type,
		AgentGroup:   req.AgentGroup,
		Payload:      req.Payload,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetEphemeralJob(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	job, err := s.deps.EphemeralStore.GetEphemeralJob(r.Context(), id)
	if err != nil {
		writeError(w, r, apperrors.NotFound("ephemeral_job", id))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleExecuteEphemeralJob runs a PENDING/QUEUED ephemeral job inline and
// returns its terminal state with the capped result sample (§4.7). This is
// the "internal" agent-group path; tagged-group jobs are instead picked up
// by a polling agent calling the same Execute path out of process.
func (s *Server) handleExecuteEphemeralJob(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	job, err := s.deps.EphemeralStore.GetEphemeralJob(r.Context(), id)
	if err != nil {
		writeError(w, r, apperrors.NotFound("ephemeral_job", id))
		return
	}

	executed, err := s.deps.Ephemeral.Execute(r.Context(), job)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, executed)
}
