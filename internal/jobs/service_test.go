package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	routing := NewAgentRouting(mem)
	return New(mem, mem, routing, nil, nil, nil), mem
}

func TestService_Submit_InternalGroupIsPending(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1"})
	require.NoError(t, err)

	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, "internal", job.AgentGroup)
}

func TestService_Submit_TaggedGroupRequiresOnlineAgent(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1", AgentGroup: "warehouse"})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.Error(t, err)

	_, err = mem.RegisterAgent(ctx, domain.Agent{
		WorkspaceID:     "ws-1",
		ClientID:        "agent-1",
		Tags:            domain.AgentTags{Groups: []string{"Warehouse"}},
		Status:          domain.AgentOnline,
		LastHeartbeatAt: time.Now(),
	})
	require.NoError(t, err)

	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job.Status)
}

func TestService_LeaseClaimsOldestQueuedJobOnce(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1", AgentGroup: "warehouse"})
	require.NoError(t, err)
	_, err = mem.RegisterAgent(ctx, domain.Agent{
		WorkspaceID: "ws-1", ClientID: "agent-1",
		Tags: domain.AgentTags{Groups: []string{"warehouse"}}, Status: domain.AgentOnline, LastHeartbeatAt: time.Now(),
	})
	require.NoError(t, err)

	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)
	require.Equal(t, domain.JobQueued, job.Status)

	leased, ok, err := svc.Lease(ctx, "agent-1", []string{"warehouse"}, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job.ID, leased.ID)
	assert.Equal(t, domain.JobRunning, leased.Status)

	_, ok, err = svc.Lease(ctx, "agent-2", []string{"warehouse"}, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_CompleteSuccessIsTerminal(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1"})
	require.NoError(t, err)
	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)

	updated, err := svc.Complete(ctx, job.ID, true, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobSuccess, updated.Status)
	assert.True(t, updated.Status.Terminal())
}

func TestService_CompleteFailedRetriesThenTerminates(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{
		WorkspaceID: "ws-1", Name: "p1",
		DefaultRetry: domain.RetryPolicy{MaxRetries: 1, Strategy: domain.RetryFixed, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)
	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)

	retrying, err := svc.Complete(ctx, job.ID, false, "boom", "node-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRetrying, retrying.Status)
	assert.Equal(t, 1, retrying.RetryCount)

	require.Eventually(t, func() bool {
		current, err := mem.GetJob(ctx, job.ID)
		return err == nil && current.Status == domain.JobPending
	}, time.Second, 5*time.Millisecond)

	final, err := svc.Complete(ctx, job.ID, false, "boom again", "node-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, final.Status)
}

func TestService_CancelUnclaimedIsImmediate(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1"})
	require.NoError(t, err)
	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, job.ID, "user requested")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, cancelled.Status)
}

func TestService_RetryRejectsNonFailedJob(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1"})
	require.NoError(t, err)
	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)

	_, err = svc.Retry(ctx, job.ID, false)
	require.Error(t, err)
}

func TestService_RetryRespectsExhaustedBudgetUnlessForced(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{
		WorkspaceID: "ws-1", Name: "p1",
		DefaultRetry: domain.RetryPolicy{MaxRetries: 0, Strategy: domain.RetryFixed, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)
	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)

	failed, err := svc.Complete(ctx, job.ID, false, "boom", "node-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, failed.Status)

	_, err = svc.Retry(ctx, job.ID, false)
	require.Error(t, err)

	retried, err := svc.Retry(ctx, job.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Empty(t, retried.InfraError)
	assert.Nil(t, retried.CompletedAt)
}

func TestService_CancelClaimedIsCancelling(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{WorkspaceID: "ws-1", Name: "p1", AgentGroup: "warehouse"})
	require.NoError(t, err)
	_, err = mem.RegisterAgent(ctx, domain.Agent{
		WorkspaceID: "ws-1", ClientID: "agent-1",
		Tags: domain.AgentTags{Groups: []string{"warehouse"}}, Status: domain.AgentOnline, LastHeartbeatAt: time.Now(),
	})
	require.NoError(t, err)
	job, err := svc.Submit(ctx, SubmitRequest{WorkspaceID: "ws-1", PipelineID: pipeline.ID})
	require.NoError(t, err)
	_, ok, err := svc.Lease(ctx, "agent-1", []string{"warehouse"}, 10)
	require.NoError(t, err)
	require.True(t, ok)

	cancelled, err := svc.Cancel(ctx, job.ID, "user requested")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelling, cancelled.Status)
}
