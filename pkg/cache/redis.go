// pkg/cache/redis.go
package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"quiz-battle/pkg/logger"
)

const leaderboardKey = "leaderboard:wins"

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func roomChannel(roomID string) string {
	return "room:" + roomID
}

// Publish sends a committed room snapshot to every subscriber of the room.
func (c *RedisCache) Publish(ctx context.Context, roomID string, payload []byte) error {
	return c.client.Publish(ctx, roomChannel(roomID), payload).Err()
}

// Subscribe streams snapshots for roomID until ctx is cancelled.
func (c *RedisCache) Subscribe(ctx context.Context, roomID string) (<-chan []byte, error) {
	pubsub := c.client.Subscribe(ctx, roomChannel(roomID))
	// Wait for the subscription confirmation so no publish is missed after
	// Subscribe returns.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", roomChannel(roomID), err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// RecordWin credits one win to userID.
func (c *RedisCache) RecordWin(ctx context.Context, userID string) error {
	return c.client.ZIncrBy(ctx, leaderboardKey, 1, userID).Err()
}

// TopWinners returns up to limit players ordered by wins, highest first.
func (c *RedisCache) TopWinners(ctx context.Context, limit int) ([]Score, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		logger.Error("read leaderboard", zap.Error(err))
		return nil, err
	}

	scores := make([]Score, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		scores = append(scores, Score{UserID: member, Wins: int(z.Score)})
	}
	return scores, nil
}
