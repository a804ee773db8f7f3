package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/model"
)

func newTestCache(t *testing.T) (*HistoryCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewHistoryCache(client, 60*time.Second, 5*time.Second), srv
}

func TestHistoryCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, hit, err := c.GetHistory(ctx, 7)
	require.NoError(t, err)
	assert.False(t, hit)

	messages := []model.Message{
		{ID: 1, SessionID: 7, Role: model.RoleUser, Content: "what does the report say"},
		{ID: 2, SessionID: 7, Role: model.RoleAssistant, Content: "it covers quarterly revenue", Confidence: 0.82},
	}
	require.NoError(t, c.SetHistory(ctx, 7, messages))

	got, hit, err := c.GetHistory(ctx, 7)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 2)
	assert.Equal(t, "what does the report say", got[0].Content)
	assert.InDelta(t, 0.82, got[1].Confidence, 1e-9)
}

func TestHistoryCacheInvalidate(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetHistory(ctx, 3, []model.Message{{ID: 1, SessionID: 3, Role: model.RoleUser, Content: "hi"}}))
	require.NoError(t, c.Invalidate(ctx, 3))

	_, hit, err := c.GetHistory(ctx, 3)
	require.NoError(t, err)
	assert.False(t, hit)

	dirty, err := c.IsDirty(ctx, 3)
	require.NoError(t, err)
	assert.True(t, dirty)

	srv.FastForward(6 * time.Second)
	dirty, err = c.IsDirty(ctx, 3)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestHistoryCacheForget(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetHistory(ctx, 9, []model.Message{{ID: 1, SessionID: 9, Role: model.RoleUser, Content: "hi"}}))
	require.NoError(t, c.Invalidate(ctx, 9))
	require.NoError(t, c.Forget(ctx, 9))

	_, hit, err := c.GetHistory(ctx, 9)
	require.NoError(t, err)
	assert.False(t, hit)

	dirty, err := c.IsDirty(ctx, 9)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestHistoryCacheTTLExpiry(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetHistory(ctx, 4, []model.Message{{ID: 1, SessionID: 4, Role: model.RoleUser, Content: "hi"}}))
	srv.FastForward(61 * time.Second)

	_, hit, err := c.GetHistory(ctx, 4)
	require.NoError(t, err)
	assert.False(t, hit)
}
