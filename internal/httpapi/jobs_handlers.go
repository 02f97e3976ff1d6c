package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/jobs"
)

// submitJobRequest is the §6 "POST /jobs" body.
type submitJobRequest struct {
	WorkspaceID       string                 `json:"workspace_id"`
	PipelineID        string                 `json:"pipeline_id"`
	PipelineVersionID string                 `json:"pipeline_version_id"`
	Parameters        map[string]any         `json:"parameters,omitempty"`
	IsBackfill        bool                   `json:"is_backfill,omitempty"`
	BackfillConfig    *domain.BackfillConfig `json:"backfill_config,omitempty"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job, err := s.deps.Jobs.Submit(r.Context(), jobs.SubmitRequest{
		WorkspaceID:       req.WorkspaceID,
		PipelineID:        req.PipelineID,
		PipelineVersionID: req.PipelineVersionID,
		Parameters:        req.Parameters,
		IsBackfill:        req.IsBackfill,
		BackfillConfig:    req.BackfillConfig,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.deps.JobStore.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, r, apperrors.NotFound("job", id))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type cancelJobRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req cancelJobRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	job, err := s.deps.Jobs.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type retryJobRequest struct {
	Force bool `json:"force,omitempty"`
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req retryJobRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	job, err := s.deps.Jobs.Retry(r.Context(), id, req.Force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
