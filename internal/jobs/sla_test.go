package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/domain"
	"github.com/synqx/core/internal/pubsub"
	"github.com/synqx/core/internal/storage"
)

func TestSLAMonitor_PublishesBreachEvent(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pub := pubsub.New(client)

	mem := storage.NewMemory()
	ctx := context.Background()

	pipeline, err := mem.CreatePipeline(ctx, domain.Pipeline{
		WorkspaceID: "ws-1", Name: "p1",
		SLA: domain.SLAConfig{Enabled: true, MaxDurationSeconds: 1},
	})
	require.NoError(t, err)

	_, err = mem.CreateJob(ctx, domain.Job{
		PipelineRef:     pipeline.ID,
		Status:          domain.JobSuccess,
		SubmittedAt:     time.Now(),
		ExecutionTimeMS: 5000,
	})
	require.NoError(t, err)

	monitor := NewSLAMonitor(mem, mem, pub, nil)

	subCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	sub := pub.Subscribe(subCtx, pubsub.WorkspaceLogTopic("ws-1"))
	defer sub.Close()
	events := sub.Events(subCtx)

	time.Sleep(10 * time.Millisecond)
	monitor.tick(ctx)

	select {
	case evt := <-events:
		require.Equal(t, "sla_breach", evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sla breach event")
	}
}
