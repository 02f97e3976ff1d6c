package ephemeral

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/cache"
	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/jobs"
	"github.com/synqx/core/internal/storage"
)

// stubConnector implements connector.Connector + connector.QueryExecutor
// for test purposes. rows/err are returned verbatim by ExecuteQuery, and
// calls are counted so a test can assert the underlying query only runs
// once when a cache hit should have short-circuited it.
type stubConnector struct {
	columns []string
	rows    []connector.Row
	calls   int
}

func (s *stubConnector) Kind() string                                    { return "stub" }
func (s *stubConnector) ValidateConfig(map[string]any) error             { return nil }
func (s *stubConnector) Connect(context.Context, map[string]any) error   { return nil }
func (s *stubConnector) Disconnect(context.Context) error                { return nil }
func (s *stubConnector) TestConnection(context.Context) error            { return nil }
func (s *stubConnector) ExecuteQuery(_ context.Context, _ string, _, _ int, _ map[string]any) ([]string, []connector.Row, int, error) {
	s.calls++
	return s.columns, s.rows, len(s.rows), nil
}

func newTestEphemeralService(t *testing.T, pool *connector.Pool, conns map[string]domain.Connection, resultCache *cache.ResultCache) (*Service, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	routing := jobs.NewAgentRouting(mem)
	return New(mem, routing, pool, conns, resultCache, nil, nil, nil), mem
}

func TestService_Submit_InternalGroupIsPending(t *testing.T) {
	svc, _ := newTestEphemeralService(t, nil, nil, nil)
	ctx := context.Background()

	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", Type: domain.EphemeralExplorer})
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, "internal", job.AgentGroup)
}

func TestService_Submit_TaggedGroupRequiresOnlineAgent(t *testing.T) {
	svc, mem := newTestEphemeralService(t, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", Type: domain.EphemeralExplorer, AgentGroup: "warehouse"})
	require.Error(t, err)

	_, err = mem.RegisterAgent(ctx, domain.Agent{
		WorkspaceID: "ws-1", ClientID: "agent-1",
		Tags: domain.AgentTags{Groups: []string{"warehouse"}}, Status: domain.AgentOnline, LastHeartbeatAt: time.Now(),
	})
	require.NoError(t, err)

	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", Type: domain.EphemeralExplorer, AgentGroup: "warehouse"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job.Status)
}

func TestService_Execute_RunsQueryAndPopulatesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	resultCache := cache.New(client, time.Minute)

	registry := connector.NewRegistry()
	stub := &stubConnector{columns: []string{"id", "name"}, rows: []connector.Row{{"id": 1, "name": "a"}, {"id": 2, "name": "b"}}}
	registry.Register("stub", func() connector.Connector { return stub }, nil)
	pool := connector.NewPool(registry)

	conn := domain.Connection{ID: "conn-1", WorkspaceID: "ws-1", ConnectorKind: "stub"}
	conns := map[string]domain.Connection{"conn-1": conn}

	svc, mem := newTestEphemeralService(t, pool, conns, resultCache)
	ctx := context.Background()

	job, err := mem.CreateEphemeralJob(ctx, domain.EphemeralJob{
		WorkspaceID: "ws-1", ConnectionID: &conn.ID, Type: domain.EphemeralExplorer,
		Payload: map[string]any{"query": "select * from t", "limit": 100},
	})
	require.NoError(t, err)

	completed, err := svc.Execute(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, domain.JobSuccess, completed.Status)
	assert.Len(t, completed.ResultSample, 2)
	assert.False(t, completed.Truncated)
	assert.False(t, completed.FromCache)
	assert.Equal(t, 1, stub.calls)

	// Second, identical call is served from cache without re-invoking the
	// connector.
	again, err := svc.Execute(ctx, job)
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, 1, stub.calls)
}

func TestService_Execute_TruncatesAtMaxResultRows(t *testing.T) {
	registry := connector.NewRegistry()
	rows := make([]connector.Row, MaxResultRows+50)
	for i := range rows {
		rows[i] = connector.Row{"id": i}
	}
	stub := &stubConnector{columns: []string{"id"}, rows: rows}
	registry.Register("stub", func() connector.Connector { return stub }, nil)
	pool := connector.NewPool(registry)

	conn := domain.Connection{ID: "conn-1", WorkspaceID: "ws-1", ConnectorKind: "stub"}
	conns := map[string]domain.Connection{"conn-1": conn}

	svc, mem := newTestEphemeralService(t, pool, conns, nil)
	ctx := context.Background()

	job, err := mem.CreateEphemeralJob(ctx, domain.EphemeralJob{
		WorkspaceID: "ws-1", ConnectionID: &conn.ID, Type: domain.EphemeralExplorer,
		Payload: map[string]any{"query": "select * from t"},
	})
	require.NoError(t, err)

	completed, err := svc.Execute(ctx, job)
	require.NoError(t, err)
	assert.True(t, completed.Truncated)
	assert.Len(t, completed.ResultSample, MaxResultRows)
}

func TestService_Execute_MissingConnectionFails(t *testing.T) {
	svc, mem := newTestEphemeralService(t, connector.NewPool(connector.NewRegistry()), map[string]domain.Connection{}, nil)
	ctx := context.Background()

	missing := "does-not-exist"
	job, err := mem.CreateEphemeralJob(ctx, domain.EphemeralJob{WorkspaceID: "ws-1", ConnectionID: &missing, Type: domain.EphemeralExplorer})
	require.NoError(t, err)

	failed, err := svc.Execute(ctx, job)
	require.Error(t, err)
	assert.Equal(t, domain.JobFailed, failed.Status)
}

func TestService_Sweep_DeletesExpiredJobs(t *testing.T) {
	svc, mem := newTestEphemeralService(t, nil, nil, nil)
	ctx := context.Background()

	_, err := mem.CreateEphemeralJob(ctx, domain.EphemeralJob{
		WorkspaceID: "ws-1", Type: domain.EphemeralExplorer,
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = mem.CreateEphemeralJob(ctx, domain.EphemeralJob{
		WorkspaceID: "ws-1", Type: domain.EphemeralExplorer,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	deleted, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
