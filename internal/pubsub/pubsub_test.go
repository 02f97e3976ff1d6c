package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_PublishSubscribe(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pub := New(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := pub.Subscribe(ctx, JobTopic("job-1"))
	defer sub.Close()

	events := sub.Events(ctx)

	// give the subscriber a moment to register with miniredis before publishing.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, pub.Publish(ctx, JobTopic("job-1"), Event{Type: "step_completed", At: "t1"}))

	select {
	case evt := <-events:
		assert.Equal(t, "step_completed", evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}
