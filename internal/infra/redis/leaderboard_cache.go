package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"contest-service/internal/domain"
)

// LeaderboardCache keeps recent leaderboard snapshots in Redis:
// SET contest:{contestID}:leaderboard {json} EX ttl
// It is best-effort; any Redis failure reads as a cache miss.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Get(ctx context.Context, contestID string) (domain.Leaderboard, bool) {
	raw, err := c.client.Get(ctx, c.key(contestID)).Result()
	if err != nil || raw == "" {
		return domain.Leaderboard{}, false
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal([]byte(raw), &lb); err != nil {
		return domain.Leaderboard{}, false
	}
	return lb, true
}

func (c *LeaderboardCache) Set(ctx context.Context, contestID string, lb domain.Leaderboard) {
	data, err := json.Marshal(lb)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(contestID), data, c.ttl).Err()
}

func (c *LeaderboardCache) Invalidate(ctx context.Context, contestID string) {
	_ = c.client.Del(ctx, c.key(contestID)).Err()
}

func (c *LeaderboardCache) key(contestID string) string {
	return "contest:" + contestID + ":leaderboard"
}
