package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCachePublishReachesSubscriber(t *testing.T) {
	c := NewMemoryCache()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.Subscribe(ctx, "room-1")
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, "room-2", []byte("other")))
	require.NoError(t, c.Publish(ctx, "room-1", []byte("snapshot")))

	select {
	case payload := <-ch:
		assert.Equal(t, "snapshot", string(payload))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestMemoryCacheSubscriptionClosesOnCancel(t *testing.T) {
	c := NewMemoryCache()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := c.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestMemoryCacheTopWinners(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.RecordWin(ctx, "bob"))
	require.NoError(t, c.RecordWin(ctx, "alice"))
	require.NoError(t, c.RecordWin(ctx, "alice"))
	require.NoError(t, c.RecordWin(ctx, "carol"))

	scores, err := c.TopWinners(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []Score{{UserID: "alice", Wins: 2}, {UserID: "bob", Wins: 1}}, scores)
}
