package gitops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/domain"
)

func TestExport_ResolvesConnectionNameAndRoundTripsYAML(t *testing.T) {
	connID := "conn-1"
	pipeline := domain.Pipeline{
		Name:            "orders_sync",
		AgentGroup:      "warehouse",
		CronSchedule:    "0 * * * *",
		ScheduleEnabled: true,
		Timezone:        "UTC",
		DefaultRetry:    domain.RetryPolicy{MaxRetries: 3, Strategy: domain.RetryExponential, BaseDelay: 30 * time.Second},
		Tags:            []string{"finance"},
		Priority:        5,
	}
	version := domain.PipelineVersion{
		Nodes: []domain.Node{
			{NodeID: "n1", Name: "extract_orders", OperatorType: domain.OperatorExtract, OperatorClass: "postgres_extract", ConnectionRef: &connID},
			{NodeID: "n2", Name: "load_orders", OperatorType: domain.OperatorLoad, OperatorClass: "postgres_load"},
		},
		Edges: []domain.Edge{{FromNodeID: "n1", ToNodeID: "n2", Type: domain.EdgeDataFlow}},
	}
	connections := map[string]domain.Connection{connID: {ID: connID, Name: "orders_db"}}

	doc := Export(pipeline, version, connections)

	assert.Equal(t, DocumentVersion, doc.Version)
	assert.Equal(t, "orders_sync", doc.Metadata.Name)
	assert.Equal(t, "orders_db", doc.Nodes[0].Connection)
	assert.Empty(t, doc.Nodes[1].Connection)
	assert.Equal(t, 30, doc.Settings.RetryDelaySeconds)

	raw, err := Marshal(doc)
	require.NoError(t, err)

	roundTripped, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, doc, roundTripped)
}
