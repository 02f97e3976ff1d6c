package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/operator"
	"github.com/synqx/core/internal/storage"
)

func newTestWorker(t *testing.T, svc *Service, mem *storage.Memory) *InternalWorker {
	t.Helper()
	registry := operator.NewRegistry()
	operator.RegisterBuiltins(registry)

	connRegistry := connector.NewRegistry()
	connRegistry.Register("noop", func() connector.Connector { return noopWorkerConnector{} }, nil)
	pool := connector.NewPool(connRegistry)

	return NewInternalWorker(svc, mem, mem, registry, pool, nil).WithInterval(5 * time.Millisecond)
}

type noopWorkerConnector struct{}

func (noopWorkerConnector) Kind() string                                  { return "noop" }
func (noopWorkerConnector) ValidateConfig(map[string]any) error           { return nil }
func (noopWorkerConnector) Connect(context.Context, map[string]any) error { return nil }
func (noopWorkerConnector) Disconnect(context.Context) error              { return nil }
func (noopWorkerConnector) TestConnection(context.Context) error          { return nil }
func (noopWorkerConnector) ReadBatch(ctx context.Context, asset string, limit, offset, chunkSize int, incrementalFilter map[string]any, emit connector.ChunkCallback) error {
	return emit([]string{"a"}, []connector.Row{{"a": 1}})
}
func (noopWorkerConnector) WriteBatch(ctx context.Context, asset string, mode domain.WriteStrategy, columns []string, rows []connector.Row) (int, error) {
	return len(rows), nil
}

func TestInternalWorker_RunsSingleNodePipelineToSuccess(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	connID := "conn-1"
	_, err := mem.CreateConnection(ctx, domain.Connection{ID: connID, WorkspaceID: "ws-1", ConnectorKind: "noop"})
	require.NoError(t, err)
	assetID := "asset-1"
	_, err = mem.UpsertAsset(ctx, domain.Asset{ID: assetID, ConnectionID: connID, FQN: "public.t"})
	require.NoError(t, err)

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1"})
	require.NoError(t, err)
	_, err = mem.CreateVersion(ctx, domain.PipelineVersion{
		PipelineID:    pipeline.ID,
		VersionNumber: 1,
		Nodes: []domain.Node{
			{
				NodeID:         "n1",
				OperatorType:   domain.OperatorExtract,
				OperatorClass:  "noop",
				ConnectionRef:  &connID,
				SourceAssetRef: &assetID,
				Config:         map[string]any{},
			},
		},
	})
	require.NoError(t, err)

	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)
	require.Equal(t, domain.JobPending, job.Status)

	w := newTestWorker(t, svc, mem)
	w.tick(ctx)

	updated, err := mem.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobSuccess, updated.Status)
}

func TestInternalWorker_TickIsNoOpWhenNoJobsQueued(t *testing.T) {
	svc, mem := newTestService(t)
	w := newTestWorker(t, svc, mem)
	w.tick(context.Background())
}
