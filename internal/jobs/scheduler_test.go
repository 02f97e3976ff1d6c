package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/storage"
)

type countingDispatcher struct {
	count int32
}

func (d *countingDispatcher) DispatchJob(ctx context.Context, pipeline domain.Pipeline) error {
	atomic.AddInt32(&d.count, 1)
	return nil
}

func TestScheduler_DispatchesOnlyWhenDue(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{
		WorkspaceID: "ws-1", Name: "p1",
		CronSchedule: "@every 1m", ScheduleEnabled: true,
	})
	require.NoError(t, err)
	_ = pipeline

	scheduler := NewScheduler(mem, nil).WithInterval(10 * time.Millisecond)
	dispatcher := &countingDispatcher{}
	scheduler.WithDispatcher(dispatcher)

	require.NoError(t, scheduler.Start(ctx))
	defer scheduler.Stop(ctx)

	time.Sleep(50 * time.Millisecond)
	require.GreaterOrEqual(t, atomic.LoadInt32(&dispatcher.count), int32(1))
}

func TestScheduler_SkipsDisabledPipelines(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()

	_, err := mem.CreatePipeline(ctx, domain.Pipeline{
		WorkspaceID: "ws-1", Name: "p1",
		CronSchedule: "@every 1m", ScheduleEnabled: false,
	})
	require.NoError(t, err)

	scheduler := NewScheduler(mem, nil)
	dispatcher := &countingDispatcher{}
	scheduler.WithDispatcher(dispatcher)

	scheduler.tick(ctx)
	require.Equal(t, int32(0), atomic.LoadInt32(&dispatcher.count))
}
