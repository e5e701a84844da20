// pkg/cache/memory.go
package cache

import (
	"context"
	"sort"
	"sync"
)

type Score struct {
	UserID string `json:"userId"`
	Wins   int    `json:"wins"`
}

// MemoryCache is the single-process stand-in for RedisCache, used when no
// Redis address is configured.
type MemoryCache struct {
	mu          sync.Mutex
	subscribers map[string]map[chan []byte]struct{}
	wins        map[string]int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		subscribers: make(map[string]map[chan []byte]struct{}),
		wins:        make(map[string]int),
	}
}

// Publish delivers payload to current subscribers. Slow subscribers miss
// messages rather than block the publisher.
func (c *MemoryCache) Publish(_ context.Context, roomID string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ch := range c.subscribers[roomID] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (c *MemoryCache) Subscribe(ctx context.Context, roomID string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)

	c.mu.Lock()
	if c.subscribers[roomID] == nil {
		c.subscribers[roomID] = make(map[chan []byte]struct{})
	}
	c.subscribers[roomID][ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subscribers[roomID], ch)
		if len(c.subscribers[roomID]) == 0 {
			delete(c.subscribers, roomID)
		}
		close(ch)
		c.mu.Unlock()
	}()
	return ch, nil
}

func (c *MemoryCache) RecordWin(_ context.Context, userID string) error {
	c.mu.Lock()
	c.wins[userID]++
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) TopWinners(_ context.Context, limit int) ([]Score, error) {
	c.mu.Lock()
	scores := make([]Score, 0, len(c.wins))
	for userID, wins := range c.wins {
		scores = append(scores, Score{UserID: userID, Wins: wins})
	}
	c.mu.Unlock()

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Wins != scores[j].Wins {
			return scores[i].Wins > scores[j].Wins
		}
		return scores[i].UserID < scores[j].UserID
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}
