package gitops

import (
	"context"
	"fmt"
	"time"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/storage"
)

// Importer resolves a Document against a target workspace's existing
// pipelines and connections, creating or updating as needed (§6 GitOps
// import: "if the name exists the pipeline is updated with a new version,
// else created").
type Importer struct {
	pipelines   storage.PipelineStore
	connections storage.ConnectionStore
	now         func() time.Time
}

// NewImporter builds an Importer.
func NewImporter(pipelines storage.PipelineStore, connections storage.ConnectionStore) *Importer {
	return &Importer{pipelines: pipelines, connections: connections, now: time.Now}
}

// Import materializes doc into workspaceID, returning the resulting
// Pipeline and its newly created PipelineVersion.
func (i *Importer) Import(ctx context.Context, workspaceID string, doc Document) (domain.Pipeline, domain.PipelineVersion, error) {
	if doc.Version != DocumentVersion {
		return domain.Pipeline{}, domain.PipelineVersion{}, apperrors.Configuration("gitops_document",
			fmt.Sprintf("unsupported document version %q", doc.Version))
	}

	connByName, err := i.connectionsByName(ctx, workspaceID)
	if err != nil {
		return domain.Pipeline{}, domain.PipelineVersion{}, err
	}

	nodes := make([]domain.Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		node := domain.Node{
			NodeID:         nd.ID,
			Name:           nd.Name,
			OperatorType:   domain.OperatorType(nd.Operator),
			OperatorClass:  nd.Class,
			Config:         nd.Config,
			Retry:          domain.RetryPolicy{MaxRetries: nd.MaxRetries, Strategy: domain.RetryStrategy(nd.RetryStrategy)},
			TimeoutSeconds: nd.TimeoutSeconds,
		}
		if nd.Connection != "" {
			conn, ok := connByName[nd.Connection]
			if !ok {
				return domain.Pipeline{}, domain.PipelineVersion{}, apperrors.NotFound("connection", nd.Connection)
			}
			id := conn.ID
			node.ConnectionRef = &id
		}
		nodes = append(nodes, node)
	}

	edges := make([]domain.Edge, 0, len(doc.Edges))
	for _, ed := range doc.Edges {
		edges = append(edges, domain.Edge{FromNodeID: ed.From, ToNodeID: ed.To, Type: domain.EdgeType(ed.Type)})
	}

	pipeline, err := i.upsertPipeline(ctx, workspaceID, doc)
	if err != nil {
		return domain.Pipeline{}, domain.PipelineVersion{}, err
	}

	existing, err := i.pipelines.ListVersions(ctx, pipeline.ID)
	if err != nil {
		return domain.Pipeline{}, domain.PipelineVersion{}, err
	}

	version, err := i.pipelines.CreateVersion(ctx, domain.PipelineVersion{
		PipelineID:    pipeline.ID,
		VersionNumber: len(existing) + 1,
		Nodes:         nodes,
		Edges:         edges,
		CreatedAt:     i.now(),
	})
	if err != nil {
		return domain.Pipeline{}, domain.PipelineVersion{}, err
	}

	return pipeline, version, nil
}

// upsertPipeline finds an existing pipeline by name within workspaceID and
// updates its metadata, or creates one when no match exists.
func (i *Importer) upsertPipeline(ctx context.Context, workspaceID string, doc Document) (domain.Pipeline, error) {
	existing, err := i.pipelines.ListPipelines(ctx, workspaceID)
	if err != nil {
		return domain.Pipeline{}, err
	}

	retryDelay := time.Duration(doc.Settings.RetryDelaySeconds) * time.Second

	for _, p := range existing {
		if p.Name != doc.Metadata.Name {
			continue
		}
		p.AgentGroup = doc.Metadata.AgentGroup
		p.CronSchedule = doc.Schedule.Cron
		p.ScheduleEnabled = doc.Schedule.Enabled
		p.Timezone = doc.Schedule.Timezone
		p.DefaultRetry = domain.RetryPolicy{
			MaxRetries: doc.Settings.MaxRetries,
			Strategy:   domain.RetryStrategy(doc.Settings.RetryStrategy),
			BaseDelay:  retryDelay,
		}
		p.Tags = doc.Metadata.Tags
		p.Priority = doc.Metadata.Priority
		p.UpdatedAt = i.now()
		return i.pipelines.UpdatePipeline(ctx, p)
	}

	return i.pipelines.CreatePipeline(ctx, domain.Pipeline{
		WorkspaceID:     workspaceID,
		Name:            doc.Metadata.Name,
		AgentGroup:      doc.Metadata.AgentGroup,
		CronSchedule:    doc.Schedule.Cron,
		ScheduleEnabled: doc.Schedule.Enabled,
		Timezone:        doc.Schedule.Timezone,
		DefaultRetry: domain.RetryPolicy{
			MaxRetries: doc.Settings.MaxRetries,
			Strategy:   domain.RetryStrategy(doc.Settings.RetryStrategy),
			BaseDelay:  retryDelay,
		},
		Tags:      doc.Metadata.Tags,
		Priority:  doc.Metadata.Priority,
		CreatedAt: i.now(),
		UpdatedAt: i.now(),
	})
}

func (i *Importer) connectionsByName(ctx context.Context, workspaceID string) (map[string]domain.Connection, error) {
	conns, err := i.connections.ListConnections(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]domain.Connection, len(conns))
	for _, c := range conns {
		byName[c.Name] = c
	}
	return byName, nil
}
