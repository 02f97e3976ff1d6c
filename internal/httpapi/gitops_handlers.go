package httpapi

import (
	"io"
	"net/http"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/gitops"
)

// handleExportPipeline renders the pipeline's latest PipelineVersion as a
// GitOps document (§6 GET /pipelines/{id}/export), resolving each node's
// connection id back to its portable name.
func (s *Server) handleExportPipeline(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")

	pipeline, err := s.deps.Pipelines.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, r, apperrors.NotFound("pipeline", id))
		return
	}

	versions, err := s.deps.Pipelines.ListVersions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(versions) == 0 {
		writeError(w, r, apperrors.NotFound("pipeline_version", id))
		return
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}

	conns, err := s.deps.Connections.ListConnections(r.Context(), pipeline.WorkspaceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	byID := make(map[string]domain.Connection, len(conns))
	for _, c := range conns {
		byID[c.ID] = c
	}

	doc := gitops.Export(pipeline, latest, byID)
	raw, err := gitops.Marshal(doc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// handleImportPipeline accepts a GitOps document as the request body
// (YAML or, equivalently, JSON re-encoded with the same field names) and
// upserts the pipeline by name per §6. The target workspace is carried as
// a query parameter since the document itself is workspace-agnostic.
func (s *Server) handleImportPipeline(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		writeError(w, r, apperrors.Configuration("workspace_id", "workspace_id query parameter is required"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, apperrors.Configuration("request_body", err.Error()))
		return
	}

	doc, err := gitops.Unmarshal(body)
	if err != nil {
		writeError(w, r, apperrors.Configuration("gitops_document", err.Error()))
		return
	}

	pipeline, version, err := s.deps.Importer.Import(r.Context(), workspaceID, doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipeline": pipeline, "version": version})
}
