package gitops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/storage"
)

func baseDoc() Document {
	return Document{
		Version:  DocumentVersion,
		Metadata: Metadata{Name: "orders_sync", AgentGroup: "warehouse", Tags: []string{"finance"}},
		Schedule: Schedule{Cron: "0 * * * *", Enabled: true, Timezone: "UTC"},
		Settings: Settings{MaxRetries: 2, RetryStrategy: "fixed", RetryDelaySeconds: 10},
		Nodes: []NodeDoc{
			{ID: "n1", Name: "extract", Operator: "EXTRACT", Class: "postgres_extract", Connection: "orders_db"},
			{ID: "n2", Name: "load", Operator: "LOAD", Class: "postgres_load"},
		},
		Edges: []EdgeDoc{{From: "n1", To: "n2", Type: "data_flow"}},
	}
}

func TestImporter_CreatesPipelineWhenNameIsNew(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	_, err := mem.CreateConnection(ctx, domain.Connection{WorkspaceID: "ws-1", Name: "orders_db", ConnectorKind: "postgres"})
	require.NoError(t, err)

	importer := NewImporter(mem, mem)
	pipeline, version, err := importer.Import(ctx, "ws-1", baseDoc())
	require.NoError(t, err)

	assert.Equal(t, "orders_sync", pipeline.Name)
	assert.Equal(t, 1, version.VersionNumber)
	require.Len(t, version.Nodes, 2)
	require.NotNil(t, version.Nodes[0].ConnectionRef)
	assert.NotEmpty(t, *version.Nodes[0].ConnectionRef)
}

func TestImporter_UpdatesExistingPipelineWithNewVersion(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	_, err := mem.CreateConnection(ctx, domain.Connection{WorkspaceID: "ws-1", Name: "orders_db", ConnectorKind: "postgres"})
	require.NoError(t, err)

	importer := NewImporter(mem, mem)
	first, _, err := importer.Import(ctx, "ws-1", baseDoc())
	require.NoError(t, err)

	doc := baseDoc()
	doc.Metadata.Priority = 9
	second, version, err := importer.Import(ctx, "ws-1", doc)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 9, second.Priority)
	assert.Equal(t, 2, version.VersionNumber)
}

func TestImporter_UnknownConnectionNameFails(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()

	importer := NewImporter(mem, mem)
	_, _, err := importer.Import(ctx, "ws-1", baseDoc())
	require.Error(t, err)
}

func TestImporter_RejectsUnsupportedDocumentVersion(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()

	importer := NewImporter(mem, mem)
	doc := baseDoc()
	doc.Version = "2.0"
	_, _, err := importer.Import(ctx, "ws-1", doc)
	require.Error(t, err)
}
