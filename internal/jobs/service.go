// Package jobs implements the C5 job control plane: Submit/Lease/Complete/
// Cancel lifecycle management, the cron-driven Scheduler, and the SLA
// monitor, tying executor outcomes back to persisted Job/PipelineRun/StepRun
// state (§4.5).
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/logging"
	"github.com/synqx/core/internal/pubsub"
	"github.com/synqx/core/internal/storage"
	"github.com/synqx/core/internal/telemetry"
)

// defaultAgentGroup is used when neither the submission nor the owning
// pipeline names one; the user/workspace/RBAC model (and any per-workspace
// default) is out of scope here, so "internal" is the floor per §4.5.
const defaultAgentGroup = "internal"

// SubmitRequest is the job-ingest payload (§6 POST /jobs).
type SubmitRequest struct {
	WorkspaceID        string
	PipelineID         string
	PipelineVersionID  string
	Parameters         map[string]any
	IsBackfill         bool
	BackfillConfig     *domain.BackfillConfig
}

// Service implements the control plane's job lifecycle operations.
type Service struct {
	jobs      storage.JobStore
	pipelines storage.PipelineStore
	routing   *AgentRouting
	pub       *pubsub.Publisher
	metrics   *telemetry.Metrics
	log       *logging.Logger
	now       func() time.Time
}

// New builds a Service. pub and metrics may be nil (progress publishing and
// metrics recording become no-ops).
func New(jobStore storage.JobStore, pipelines storage.PipelineStore, routing *AgentRouting, pub *pubsub.Publisher, metrics *telemetry.Metrics, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("jobs")
	}
	return &Service{jobs: jobStore, pipelines: pipelines, routing: routing, pub: pub, metrics: metrics, log: log, now: time.Now}
}

// Submit creates a Job, resolving its agent_group and routing state per
// §4.5: internal-group jobs start PENDING, tagged-group jobs require at
// least one ONLINE matching agent or the submission fails with
// NoAgentsAvailable.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.Job, error) {
	pipeline, err := s.pipelines.GetPipeline(ctx, req.PipelineID)
	if err != nil {
		return domain.Job{}, err
	}

	group := pipeline.AgentGroup
	if group == "" {
		group = defaultAgentGroup
	}

	status := domain.JobPending
	if group != defaultAgentGroup {
		online, err := s.routing.HasOnlineCandidate(ctx, req.WorkspaceID, group)
		if err != nil {
			return domain.Job{}, err
		}
		if !online {
			return domain.Job{}, apperrors.New(apperrors.KindNoAgentsAvailable,
				"no online agents match group "+group, 503).WithDetails("agent_group", group)
		}
		status = domain.JobQueued
	}

	job := domain.Job{
		WorkspaceID:        req.WorkspaceID,
		PipelineRef:        req.PipelineID,
		PipelineVersionRef: req.PipelineVersionID,
		Status:             status,
		MaxRetries:         pipeline.DefaultRetry.MaxRetries,
		RetryStrategy:      pipeline.DefaultRetry.Strategy,
		AgentGroup:         group,
		CorrelationID:      uuid.NewString(),
		Parameters:         req.Parameters,
		IsBackfill:         req.IsBackfill,
		BackfillConfig:     req.BackfillConfig,
		SubmittedAt:        s.now(),
	}

	created, err := s.jobs.CreateJob(ctx, job)
	if err != nil {
		return domain.Job{}, err
	}

	if s.metrics != nil {
		trigger := "manual"
		if req.IsBackfill {
			trigger = "backfill"
		}
		s.metrics.RecordJob("synqx", trigger, string(created.Status))
	}
	s.publish(ctx, created.ID, created.WorkspaceID, "job_update", map[string]any{"status": string(created.Status)})

	return created, nil
}

// Lease atomically claims the oldest QUEUED job an agent's groups can serve.
// The in-memory store's CreateJob/UpdateJob path already guards every
// mutation under a single lock (storage.Memory), so the claim here is a
// read-then-conditional-update that is safe under that lock: no job is
// handed to two agents because ListQueuedJobs + UpdateJob observe/mutate the
// same guarded map.
func (s *Service) Lease(ctx context.Context, agentID string, groups []string, limit int) (domain.Job, bool, error) {
	for _, group := range groups {
		candidates, err := s.jobs.ListQueuedJobs(ctx, group, limit)
		if err != nil {
			return domain.Job{}, false, err
		}
		for _, candidate := range candidates {
			if candidate.Status != domain.JobQueued || candidate.WorkerID != nil {
				continue
			}
			worker := agentID
			candidate.WorkerID = &worker
			candidate.Status = domain.JobRunning
			now := s.now()
			candidate.StartedAt = &now
			claimed, err := s.jobs.UpdateJob(ctx, candidate)
			if err != nil {
				continue
			}
			s.publish(ctx, claimed.ID, claimed.WorkspaceID, "job_update", map[string]any{"status": string(claimed.Status), "worker_id": agentID})
			return claimed, true, nil
		}
	}
	return domain.Job{}, false, nil
}

// ClaimInternal claims the oldest PENDING job in the "internal" agent
// group for the control plane's own in-process executor, mirroring
// Lease's claim shape exactly except for the PENDING->RUNNING transition
// (internal-group jobs never pass through QUEUED — see Submit).
func (s *Service) ClaimInternal(ctx context.Context) (domain.Job, bool, error) {
	candidates, err := s.jobs.ListPendingJobs(ctx, defaultAgentGroup, 1)
	if err != nil {
		return domain.Job{}, false, err
	}
	for _, candidate := range candidates {
		if candidate.Status != domain.JobPending {
			continue
		}
		candidate.Status = domain.JobRunning
		now := s.now()
		candidate.StartedAt = &now
		claimed, err := s.jobs.UpdateJob(ctx, candidate)
		if err != nil {
			continue
		}
		s.publish(ctx, claimed.ID, claimed.WorkspaceID, "job_update", map[string]any{"status": string(claimed.Status)})
		return claimed, true, nil
	}
	return domain.Job{}, false, nil
}

// Complete transitions job to a terminal or retrying state per its reported
// outcome, computing execution_time_ms and, on FAILED-with-retries-left,
// enqueueing a delayed re-attempt (§4.5 Completion).
func (s *Service) Complete(ctx context.Context, jobID string, success bool, infraError, failedStepRef string) (domain.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}

	completedAt := s.now()
	job.CompletedAt = &completedAt
	if job.StartedAt != nil {
		job.ExecutionTimeMS = completedAt.Sub(*job.StartedAt).Milliseconds()
	}
	job.InfraError = infraError
	job.FailedStepRef = failedStepRef

	switch {
	case success:
		job.Status = domain.JobSuccess
	case job.CanRetry():
		job.Status = domain.JobRetrying
		job.RetryCount++
	default:
		job.Status = domain.JobFailed
	}

	updated, err := s.jobs.UpdateJob(ctx, job)
	if err != nil {
		return domain.Job{}, err
	}

	if updated.Status == domain.JobRetrying {
		go s.reenqueueAfterDelay(updated)
	}

	if s.metrics != nil {
		s.metrics.RecordJob("synqx", "manual", string(updated.Status))
	}
	s.publish(ctx, updated.ID, updated.WorkspaceID, "job_update", map[string]any{"status": string(updated.Status), "infra_error": infraError})

	return updated, nil
}

// reenqueueAfterDelay sleeps for this attempt's backoff then moves job back
// to QUEUED/PENDING for another Lease. It runs detached from the Complete
// call's context since the delay can exceed any single request's lifetime.
func (s *Service) reenqueueAfterDelay(job domain.Job) {
	ctx := context.Background()
	var base time.Duration
	if pipeline, err := s.pipelines.GetPipeline(ctx, job.PipelineRef); err == nil {
		base = pipeline.DefaultRetry.BaseDelay
	}
	delay := retryDelay(job.RetryStrategy, base, job.RetryCount-1)
	time.Sleep(delay)

	current, err := s.jobs.GetJob(ctx, job.ID)
	if err != nil || current.Status != domain.JobRetrying {
		return
	}
	current.WorkerID = nil
	current.Status = domain.JobQueued
	if current.AgentGroup == defaultAgentGroup {
		current.Status = domain.JobPending
	}
	if _, err := s.jobs.UpdateJob(ctx, current); err != nil {
		s.log.WithError(err).WithField("job_id", job.ID).Warn("failed to re-enqueue retrying job")
	}
}

// Cancel writes CANCELLING (if the job is already claimed by a worker) or
// CANCELLED directly (if it is still unclaimed), per §4.5 Cancellation.
func (s *Service) Cancel(ctx context.Context, jobID, reason string) (domain.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	if job.WorkerID == nil {
		job.Status = domain.JobCancelled
		completedAt := s.now()
		job.CompletedAt = &completedAt
	} else {
		job.Status = domain.JobCancelling
	}

	updated, err := s.jobs.UpdateJob(ctx, job)
	if err != nil {
		return domain.Job{}, err
	}
	s.publish(ctx, updated.ID, updated.WorkspaceID, "job_update", map[string]any{"status": string(updated.Status), "reason": reason})
	return updated, nil
}

// Retry manually re-queues a FAILED job for another attempt (§6 POST
// /jobs/{id}/retry). With force=false the job's existing retry budget
// still applies — a job that already exhausted MaxRetries stays FAILED;
// force=true bypasses that check entirely.
func (s *Service) Retry(ctx context.Context, jobID string, force bool) (domain.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if job.Status != domain.JobFailed {
		return domain.Job{}, apperrors.Conflict("only a FAILED job can be retried")
	}
	if !force && !job.CanRetry() {
		return domain.Job{}, apperrors.Conflict("retry budget exhausted")
	}

	job.RetryCount++
	job.WorkerID = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	job.ExecutionTimeMS = 0
	job.InfraError = ""
	job.FailedStepRef = ""
	job.Status = domain.JobQueued
	if job.AgentGroup == defaultAgentGroup {
		job.Status = domain.JobPending
	}

	updated, err := s.jobs.UpdateJob(ctx, job)
	if err != nil {
		return domain.Job{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordJob("synqx", "manual_retry", string(updated.Status))
	}
	s.publish(ctx, updated.ID, updated.WorkspaceID, "job_update", map[string]any{"status": string(updated.Status), "retry_count": updated.RetryCount})
	return updated, nil
}

func (s *Service) publish(ctx context.Context, jobID, workspaceID, eventType string, payload map[string]any) {
	if s.pub == nil {
		return
	}
	event := pubsub.Event{Type: eventType, At: s.now().Format(time.RFC3339Nano), Payload: payload}
	if err := s.pub.Publish(ctx, pubsub.JobTopic(jobID), event); err != nil {
		s.log.WithError(err).WithField("job_id", jobID).Warn("failed to publish job event")
	}
	if workspaceID != "" {
		if err := s.pub.Publish(ctx, pubsub.WorkspaceLogTopic(workspaceID), event); err != nil {
			s.log.WithError(err).WithField("workspace_id", workspaceID).Warn("failed to publish workspace log event")
		}
	}
}
