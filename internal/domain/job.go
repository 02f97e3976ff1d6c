package domain

import "time"

// JobStatus is the lifecycle state of a Job (§3 invariant 3).
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobSuccess   JobStatus = "SUCCESS"
	JobFailed    JobStatus = "FAILED"
	JobRetrying  JobStatus = "RETRYING"
	JobCancelled JobStatus = "CANCELLED"
	JobCancelling JobStatus = "CANCELLING"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobSuccess, JobFailed, JobCancelled:
		return true
	}
	return false
}

// BackfillConfig parameterizes a backfill-mode Job.
type BackfillConfig struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// Job is a single submission of a pipeline version for execution.
type Job struct {
	ID                string          `json:"id"`
	WorkspaceID       string          `json:"workspace_id"`
	PipelineRef       string          `json:"pipeline_ref"`
	PipelineVersionRef string         `json:"pipeline_version_ref"`
	Status            JobStatus       `json:"status"`
	RetryCount        int             `json:"retry_count"`
	MaxRetries        int             `json:"max_retries"`
	RetryStrategy     RetryStrategy   `json:"retry_strategy"`
	AgentGroup        string          `json:"agent_group"`
	WorkerID          *string         `json:"worker_id,omitempty"`
	CorrelationID     string          `json:"correlation_id"`
	Parameters        map[string]any  `json:"parameters,omitempty"`
	IsBackfill        bool            `json:"is_backfill"`
	BackfillConfig    *BackfillConfig `json:"backfill_config,omitempty"`
	InfraError        string          `json:"infra_error,omitempty"`
	FailedStepRef     string          `json:"failed_step_ref,omitempty"`
	SubmittedAt       time.Time       `json:"submitted_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	ExecutionTimeMS   int64           `json:"execution_time_ms,omitempty"`
}

// CanRetry reports whether this job is eligible for an automatic re-attempt.
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// PipelineRun holds aggregate metrics for exactly one Job-attempt that
// actually started executing.
type PipelineRun struct {
	ID            string        `json:"id"`
	JobID         string        `json:"job_id"`
	PipelineID    string        `json:"pipeline_id"`
	Status        JobStatus     `json:"status"`
	TotalsIn      int64         `json:"totals_in"`
	TotalsOut     int64         `json:"totals_out"`
	TotalsFailed  int64         `json:"totals_failed"`
	TotalBytes    int64         `json:"total_bytes"`
	Duration      time.Duration `json:"duration"`
	FailedStepRef string        `json:"failed_step_ref,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// StepRunState is the lifecycle state of a StepRun (§3 invariant 4).
type StepRunState string

const (
	StepPending  StepRunState = "PENDING"
	StepRunning  StepRunState = "RUNNING"
	StepSuccess  StepRunState = "SUCCESS"
	StepFailed   StepRunState = "FAILED"
	StepSkipped  StepRunState = "SKIPPED"
	StepRetrying StepRunState = "RETRYING"
)

// ResourceSample is one point-in-time CPU/memory observation for a StepRun.
type ResourceSample struct {
	At        time.Time `json:"at"`
	CPUPct    float64   `json:"cpu_pct"`
	MemBytes  int64     `json:"mem_bytes"`
}

// StepRun holds per-node metrics for exactly one node execution within a
// PipelineRun.
type StepRun struct {
	ID             string            `json:"id"`
	PipelineRunID  string            `json:"pipeline_run_id"`
	NodeID         string            `json:"node_id"`
	State          StepRunState      `json:"state"`
	RecordsIn      int64             `json:"records_in"`
	RecordsOut     int64             `json:"records_out"`
	RecordsFiltered int64            `json:"records_filtered"`
	RecordsError   int64             `json:"records_error"`
	Bytes          int64             `json:"bytes"`
	Samples        []ResourceSample  `json:"cpu_mem_samples,omitempty"`
	SampleData     []map[string]any  `json:"sample_data,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	ErrorType      string            `json:"error_type,omitempty"`
	LineageMap     map[string][]string `json:"lineage_map,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// PipelineRunContext is an execution-time scoped key/value bag threaded
// through operator/connector factories.
type PipelineRunContext struct {
	RunID         string            `json:"run_id"`
	PipelineID    string            `json:"pipeline_id"`
	Parameters    map[string]any    `json:"parameters,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
	ExecutionContext map[string]any `json:"runtime_context,omitempty"`
}

// Watermark is the highest-seen value of a monotone column, or an opaque
// resume token, for one (pipeline_version, node_id, asset) key.
type Watermark struct {
	PipelineVersionID string    `json:"pipeline_version_id"`
	NodeID            string    `json:"node_id"`
	AssetRef          string    `json:"asset_ref"`
	Value             string    `json:"value"`
	IsToken           bool      `json:"is_token"`
	UpdatedAt         time.Time `json:"updated_at"`
}
