package gitops

import (
	"time"

	"github.com/synqx/core/internal/domain"
)

// Export renders pipeline/version as a Document. connections maps
// connection id -> Connection, used to resolve each node's ConnectionRef
// to a portable name.
func Export(pipeline domain.Pipeline, version domain.PipelineVersion, connections map[string]domain.Connection) Document {
	doc := Document{
		Version: DocumentVersion,
		Metadata: Metadata{
			Name:       pipeline.Name,
			AgentGroup: pipeline.AgentGroup,
			Tags:       pipeline.Tags,
			Priority:   pipeline.Priority,
		},
		Schedule: Schedule{
			Cron:     pipeline.CronSchedule,
			Enabled:  pipeline.ScheduleEnabled,
			Timezone: pipeline.Timezone,
		},
		Settings: Settings{
			MaxRetries:        pipeline.DefaultRetry.MaxRetries,
			RetryStrategy:     string(pipeline.DefaultRetry.Strategy),
			RetryDelaySeconds: int(pipeline.DefaultRetry.BaseDelay / time.Second),
		},
	}

	for _, n := range version.Nodes {
		nodeDoc := NodeDoc{
			ID:             n.NodeID,
			Name:           n.Name,
			Operator:       string(n.OperatorType),
			Class:          n.OperatorClass,
			Config:         n.Config,
			MaxRetries:     n.Retry.MaxRetries,
			RetryStrategy:  string(n.Retry.Strategy),
			TimeoutSeconds: n.TimeoutSeconds,
		}
		if n.ConnectionRef != nil {
			if conn, ok := connections[*n.ConnectionRef]; ok {
				nodeDoc.Connection = conn.Name
			}
		}
		doc.Nodes = append(doc.Nodes, nodeDoc)
	}

	for _, e := range version.Edges {
		doc.Edges = append(doc.Edges, EdgeDoc{From: e.FromNodeID, To: e.ToNodeID, Type: string(e.Type)})
	}

	return doc
}
