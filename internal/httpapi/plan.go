package httpapi

import (
	"context"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/storage"
)

// executionPlan bundles everything a remote agent needs to run a leased Job
// locally, per spec.md §6's "download plan + resolved Connection configs"
// step of the agent work protocol — a single fetch bounded to the
// Connections the plan actually references.
type executionPlan struct {
	Version     domain.PipelineVersion       `json:"pipeline_version"`
	Connections map[string]domain.Connection `json:"connections"`
	Assets      map[string]domain.Asset      `json:"assets"`
}

// resolvePlan resolves job's PipelineVersion and every Connection/Asset its
// nodes reference. Grounded on internal/jobs.InternalWorker's identical
// resolveVersion/resolveRefs pair — duplicated rather than shared across
// packages since the in-process executor and the HTTP lease path serve the
// same data to two different callers (a local goroutine vs. a remote agent).
func resolvePlan(ctx context.Context, pipelines storage.PipelineStore, connections storage.ConnectionStore, job domain.Job) (executionPlan, error) {
	version, err := resolveJobVersion(ctx, pipelines, job)
	if err != nil {
		return executionPlan{}, err
	}

	conns := make(map[string]domain.Connection)
	assets := make(map[string]domain.Asset)
	for _, n := range version.Nodes {
		if n.ConnectionRef != nil {
			if _, ok := conns[*n.ConnectionRef]; !ok {
				conn, err := connections.GetConnection(ctx, *n.ConnectionRef)
				if err != nil {
					return executionPlan{}, err
				}
				conns[conn.ID] = conn
			}
		}
		for _, ref := range []*string{n.SourceAssetRef, n.DestinationAssetRef} {
			if ref == nil {
				continue
			}
			if _, ok := assets[*ref]; ok {
				continue
			}
			asset, err := connections.GetAsset(ctx, *ref)
			if err != nil {
				return executionPlan{}, err
			}
			assets[asset.ID] = asset
		}
	}

	return executionPlan{Version: version, Connections: conns, Assets: assets}, nil
}

func resolveJobVersion(ctx context.Context, pipelines storage.PipelineStore, job domain.Job) (domain.PipelineVersion, error) {
	if job.PipelineVersionRef != "" {
		return pipelines.GetVersion(ctx, job.PipelineVersionRef)
	}
	versions, err := pipelines.ListVersions(ctx, job.PipelineRef)
	if err != nil {
		return domain.PipelineVersion{}, err
	}
	if len(versions) == 0 {
		return domain.PipelineVersion{}, storage.ErrNotFound{Entity: "pipeline_version", ID: job.PipelineRef}
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}
	return latest, nil
}
