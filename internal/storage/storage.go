// Package storage defines the persistence interfaces the rest of the
// system programs against, mirroring internal/app/storage's per-entity
// interface shape (one store interface per aggregate, composed by callers
// that need more than one).
package storage

import (
	"context"
	"time"

	"github.com/synqx/core/internal/domain"
)

// PipelineStore persists Pipeline metadata and its PipelineVersion history.
type PipelineStore interface {
	CreatePipeline(ctx context.Context, p domain.Pipeline) (domain.Pipeline, error)
	UpdatePipeline(ctx context.Context, p domain.Pipeline) (domain.Pipeline, error)
	GetPipeline(ctx context.Context, id string) (domain.Pipeline, error)
	ListPipelines(ctx context.Context, workspaceID string) ([]domain.Pipeline, error)
	DeletePipeline(ctx context.Context, id string) error

	CreateVersion(ctx context.Context, v domain.PipelineVersion) (domain.PipelineVersion, error)
	GetVersion(ctx context.Context, id string) (domain.PipelineVersion, error)
	ListVersions(ctx context.Context, pipelineID string) ([]domain.PipelineVersion, error)
}

// ConnectionStore persists Connection records and their discovered Assets.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, c domain.Connection) (domain.Connection, error)
	UpdateConnection(ctx context.Context, c domain.Connection) (domain.Connection, error)
	GetConnection(ctx context.Context, id string) (domain.Connection, error)
	ListConnections(ctx context.Context, workspaceID string) ([]domain.Connection, error)
	DeleteConnection(ctx context.Context, id string) error

	UpsertAsset(ctx context.Context, a domain.Asset) (domain.Asset, error)
	GetAsset(ctx context.Context, id string) (domain.Asset, error)
	ListAssets(ctx context.Context, connectionID string) ([]domain.Asset, error)
}

// JobStore persists Job submissions, their PipelineRuns, and per-node
// StepRuns.
type JobStore interface {
	CreateJob(ctx context.Context, j domain.Job) (domain.Job, error)
	UpdateJob(ctx context.Context, j domain.Job) (domain.Job, error)
	GetJob(ctx context.Context, id string) (domain.Job, error)
	ListJobs(ctx context.Context, pipelineRef string, limit int) ([]domain.Job, error)
	ListQueuedJobs(ctx context.Context, agentGroup string, limit int) ([]domain.Job, error)
	ListPendingJobs(ctx context.Context, agentGroup string, limit int) ([]domain.Job, error)

	CreateRun(ctx context.Context, r domain.PipelineRun) (domain.PipelineRun, error)
	UpdateRun(ctx context.Context, r domain.PipelineRun) (domain.PipelineRun, error)
	GetRun(ctx context.Context, id string) (domain.PipelineRun, error)

	UpsertStepRun(ctx context.Context, s domain.StepRun) (domain.StepRun, error)
	ListStepRuns(ctx context.Context, pipelineRunID string) ([]domain.StepRun, error)
}

// WatermarkStore persists incremental-extract high-water marks, one per
// (pipeline_version, node, asset) key (§3 Watermark).
type WatermarkStore interface {
	GetWatermark(ctx context.Context, pipelineVersionID, nodeID, assetRef string) (domain.Watermark, bool, error)
	SetWatermark(ctx context.Context, w domain.Watermark) error
}

// AgentStore persists registered Agent records and their heartbeats.
type AgentStore interface {
	RegisterAgent(ctx context.Context, a domain.Agent) (domain.Agent, error)
	UpdateAgent(ctx context.Context, a domain.Agent) (domain.Agent, error)
	GetAgent(ctx context.Context, id string) (domain.Agent, error)
	GetAgentByClientID(ctx context.Context, clientID string) (domain.Agent, error)
	ListAgents(ctx context.Context, workspaceID string) ([]domain.Agent, error)
	Heartbeat(ctx context.Context, id string, at time.Time, info domain.SystemInfo) error
}

// EphemeralJobStore persists short-lived EphemeralJob rows, which TTL out
// independent of the pipeline run history (§4.7).
type EphemeralJobStore interface {
	CreateEphemeralJob(ctx context.Context, j domain.EphemeralJob) (domain.EphemeralJob, error)
	UpdateEphemeralJob(ctx context.Context, j domain.EphemeralJob) (domain.EphemeralJob, error)
	GetEphemeralJob(ctx context.Context, id string) (domain.EphemeralJob, error)
	ListQueuedEphemeralJobs(ctx context.Context, agentGroup string, limit int) ([]domain.EphemeralJob, error)
	DeleteExpiredEphemeralJobs(ctx context.Context, before time.Time) (int, error)
}

// ErrNotFound is returned by Get*/Update* calls against a missing id.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e ErrNotFound) Error() string {
	return "storage: " + e.Entity + " " + e.ID + " not found"
}
