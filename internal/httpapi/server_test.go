package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/agents"
	"github.com/synqx/core/internal/config"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/gitops"
	"github.com/synqx/core/internal/jobs"
	"github.com/synqx/core/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	routing := jobs.NewAgentRouting(mem)
	jobsSvc := jobs.New(mem, mem, routing, nil, nil, nil)
	tokens := agents.NewTokenIssuer([]byte("test-secret"), agents.DefaultTokenTTL)
	agentsSvc := agents.New(mem, tokens, nil)
	importer := gitops.NewImporter(mem, mem)

	srv := NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 0},
		config.AuthConfig{APITokens: []string{"test-token"}},
		Deps{
			Jobs:           jobsSvc,
			Agents:         agentsSvc,
			Importer:       importer,
			JobStore:       mem,
			Pipelines:      mem,
			Connections:    mem,
			EphemeralStore: mem,
		},
	)
	return srv, mem
}

func doRequest(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSubmitJob_RequiresAPIToken(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodPost, "/api/v1/jobs", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSubmitJob_InternalGroupCreatesPendingJob(t *testing.T) {
	srv, mem := newTestServer(t)
	pipeline, err := mem.CreatePipeline(context.Background(), domain.Pipeline{WorkspaceID: "ws-1", Name: "p1"})
	require.NoError(t, err)

	rr := doRequest(t, srv, http.MethodPost, "/api/v1/jobs", "test-token", map[string]any{
		"workspace_id": "ws-1",
		"pipeline_id":  pipeline.ID,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var job domain.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.Equal(t, domain.JobPending, job.Status)
}

func TestGetJob_UnknownReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodGet, "/api/v1/jobs/missing", "test-token", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRetryJob_NonFailedJobIsConflict(t *testing.T) {
	srv, mem := newTestServer(t)
	ctx := context.Background()
	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1"})
	require.NoError(t, err)
	job, err := srv.deps.Jobs.Submit(ctx, jobs.SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)

	rr := doRequest(t, srv, http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", "test-token", map[string]any{"force": true})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAgentHeartbeat_RequiresAgentToken(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodPost, "/api/v1/agents/heartbeat", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRegisterAndAuthenticateAgent(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodPost, "/api/v1/agents/register", "", map[string]any{
		"workspace_id": "ws-1",
		"display_name": "agent-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var registered registerAgentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &registered))
	assert.NotEmpty(t, registered.APIKey)

	rr = doRequest(t, srv, http.MethodPost, "/api/v1/agents/authenticate", "", map[string]any{
		"client_id": registered.Agent.ClientID,
		"api_key":   registered.APIKey,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var authed authenticateAgentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &authed))
	assert.NotEmpty(t, authed.Token)
}

func TestExportImportPipeline_RoundTrips(t *testing.T) {
	srv, mem := newTestServer(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1"})
	require.NoError(t, err)
	_, err = mem.CreateVersion(ctx, domain.PipelineVersion{PipelineID: pipeline.ID, VersionNumber: 1, Nodes: []domain.Node{
		{NodeID: "n1", Name: "source", OperatorType: domain.OperatorExtract},
	}})
	require.NoError(t, err)

	rr := doRequest(t, srv, http.MethodGet, "/api/v1/pipelines/"+pipeline.ID+"/export", "test-token", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/x-yaml", rr.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipelines/import?workspace_id=ws-1", bytes.NewReader(rr.Body.Bytes()))
	req.Header.Set("Authorization", "Bearer test-token")
	importRR := httptest.NewRecorder()
	srv.Router().ServeHTTP(importRR, req)
	assert.Equal(t, http.StatusOK, importRR.Code)
}
