package ephemeral

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/domain"
)

func TestSweeper_DeletesExpiredJobsOnTick(t *testing.T) {
	svc, mem := newTestEphemeralService(t, nil, nil, nil)
	ctx := context.Background()

	expired, err := mem.CreateEphemeralJob(ctx, domain.EphemeralJob{
		WorkspaceID: "ws-1", Type: domain.EphemeralExplorer,
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	sweeper := NewSweeper(svc, nil).WithInterval(10 * time.Millisecond)
	require.NoError(t, sweeper.Start(ctx))
	defer sweeper.Stop(ctx)

	require.Eventually(t, func() bool {
		_, err := mem.GetEphemeralJob(ctx, expired.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestSweeper_StopIsIdempotent(t *testing.T) {
	svc, _ := newTestEphemeralService(t, nil, nil, nil)
	ctx := context.Background()

	sweeper := NewSweeper(svc, nil).WithInterval(time.Hour)
	require.NoError(t, sweeper.Start(ctx))
	require.NoError(t, sweeper.Stop(ctx))
	require.NoError(t, sweeper.Stop(ctx))
}
