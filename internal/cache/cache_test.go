package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synqx/core/internal/chunk"
)

func newTestCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, 50*time.Millisecond), mr
}

func TestResultCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key, err := Key("conn-1", map[string]any{"query": "select 1", "limit": 10})
	require.NoError(t, err)

	entry := Entry{
		Metadata: map[string]any{"row_count": 1},
		Result:   chunk.New([]string{"x"}, []chunk.Row{{"x": 1}}),
	}
	require.NoError(t, c.Set(ctx, key, entry))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Result.Columns, got.Result.Columns)
	assert.Len(t, got.Result.Rows, 1)
}

func TestResultCache_Miss(t *testing.T) {
	c, _ := newTestCache(t)
	_, ok, err := c.Get(context.Background(), "query_result:missing:key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResultCache_TTLExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	key, err := Key("conn-1", map[string]any{"query": "select 1"})
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, key, Entry{Result: chunk.NewEmpty([]string{"x"})}))

	mr.FastForward(100 * time.Millisecond)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKey_PermutationStable(t *testing.T) {
	a, err := Key("conn-1", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := Key("conn-1", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
