package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/dag"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/operator"
)

// stubExtractConnector emits a single fixed batch then closes; it is also
// used as the destination to capture what a LOAD node wrote.
type stubExtractConnector struct {
	rows []connector.Row

	written []connector.Row
	mode    domain.WriteStrategy
}

func (s *stubExtractConnector) Kind() string                                      { return "stub" }
func (s *stubExtractConnector) ValidateConfig(map[string]any) error               { return nil }
func (s *stubExtractConnector) Connect(context.Context, map[string]any) error     { return nil }
func (s *stubExtractConnector) Disconnect(context.Context) error                  { return nil }
func (s *stubExtractConnector) TestConnection(context.Context) error              { return nil }

func (s *stubExtractConnector) ReadBatch(ctx context.Context, asset string, limit, offset, chunkSize int, incrementalFilter map[string]any, emit connector.ChunkCallback) error {
	return emit([]string{"a", "b"}, s.rows)
}

func (s *stubExtractConnector) WriteBatch(ctx context.Context, asset string, mode domain.WriteStrategy, columns []string, rows []connector.Row) (int, error) {
	s.written = append(s.written, rows...)
	s.mode = mode
	return len(rows), nil
}

func TestExecutor_ExtractTransformLoad(t *testing.T) {
	plan := dag.New()
	plan.AddNode("extract")
	plan.AddNode("transform")
	plan.AddNode("load")
	require.NoError(t, plan.AddEdge("extract", "transform"))
	require.NoError(t, plan.AddEdge("transform", "load"))

	source := &stubExtractConnector{rows: []connector.Row{
		{"a": 1, "b": "x"},
		{"a": 2, "b": "y"},
	}}
	dest := &stubExtractConnector{}

	connRegistry := connector.NewRegistry()
	connRegistry.Register("stub_source", func() connector.Connector { return source }, nil)
	connRegistry.Register("stub_dest", func() connector.Connector { return dest }, nil)
	pool := connector.NewPool(connRegistry)

	opRegistry := operator.NewRegistry()
	operator.RegisterBuiltins(opRegistry)

	extractConnRef := "conn-src"
	destConnRef := "conn-dst"
	sourceAssetRef := "asset-src"
	destAssetRef := "asset-dst"

	nodes := map[string]*domain.Node{
		"extract": {
			NodeID:         "extract",
			OperatorType:   domain.OperatorExtract,
			OperatorClass:  "noop",
			ConnectionRef:  &extractConnRef,
			SourceAssetRef: &sourceAssetRef,
			Config:         map[string]any{},
		},
		"transform": {
			NodeID:        "transform",
			OperatorType:  domain.OperatorTransform,
			OperatorClass: "map",
			Config: map[string]any{
				"rename": map[string]any{"a": "id"},
			},
		},
		"load": {
			NodeID:              "load",
			OperatorType:        domain.OperatorLoad,
			OperatorClass:       "noop",
			ConnectionRef:       &destConnRef,
			DestinationAssetRef: &destAssetRef,
			WriteStrategy:       domain.WriteAppend,
			Config:              map[string]any{},
		},
	}

	deps := Deps{
		Operators: opRegistry,
		Pool:      pool,
		Connections: map[string]domain.Connection{
			"conn-src": {ID: "conn-src", ConnectorKind: "stub_source"},
			"conn-dst": {ID: "conn-dst", ConnectorKind: "stub_dest"},
		},
		Assets: map[string]domain.Asset{
			"asset-src": {ID: "asset-src", FQN: "public.src"},
			"asset-dst": {ID: "asset-dst", FQN: "public.dst"},
		},
	}

	exec := New(deps)
	runCtx := &domain.PipelineRunContext{RunID: "run-1", PipelineID: "pipeline-1"}

	run, steps, err := exec.Run(context.Background(), plan, nodes, runCtx)
	require.NoError(t, err)
	assert.Equal(t, domain.JobSuccess, run.Status)
	assert.Len(t, steps, 3)

	require.Len(t, dest.written, 2)
	assert.Equal(t, 1, dest.written[0]["id"])
	assert.Equal(t, "x", dest.written[0]["b"])
	_, hasOldKey := dest.written[0]["a"]
	assert.False(t, hasOldKey)
	assert.Equal(t, domain.WriteAppend, dest.mode)
}

func TestExecutor_GuardrailBreachFailsRun(t *testing.T) {
	plan := dag.New()
	plan.AddNode("extract")

	source := &stubExtractConnector{rows: []connector.Row{
		{"a": 1}, {"a": 2}, {"a": 3},
	}}
	connRegistry := connector.NewRegistry()
	connRegistry.Register("stub_source", func() connector.Connector { return source }, nil)
	pool := connector.NewPool(connRegistry)

	opRegistry := operator.NewRegistry()
	operator.RegisterBuiltins(opRegistry)

	connRef := "conn-src"
	assetRef := "asset-src"
	nodes := map[string]*domain.Node{
		"extract": {
			NodeID:         "extract",
			OperatorType:   domain.OperatorExtract,
			OperatorClass:  "noop",
			ConnectionRef:  &connRef,
			SourceAssetRef: &assetRef,
			Guardrails:     []domain.Guardrail{{MaxRowsPerChunk: 1}},
			Retry:          domain.RetryPolicy{MaxRetries: 0},
			Config:         map[string]any{},
		},
	}

	deps := Deps{
		Operators:   opRegistry,
		Pool:        pool,
		Connections: map[string]domain.Connection{"conn-src": {ID: "conn-src", ConnectorKind: "stub_source"}},
		Assets:      map[string]domain.Asset{"asset-src": {ID: "asset-src", FQN: "public.src"}},
	}

	exec := New(deps)
	runCtx := &domain.PipelineRunContext{RunID: "run-2", PipelineID: "pipeline-1"}

	run, steps, err := exec.Run(context.Background(), plan, nodes, runCtx)
	require.Error(t, err)
	assert.Equal(t, domain.JobFailed, run.Status)
	assert.Equal(t, "extract", run.FailedStepRef)
	assert.Equal(t, domain.StepFailed, steps["extract"].State)
}
