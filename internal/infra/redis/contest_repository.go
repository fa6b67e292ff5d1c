package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"contest-service/internal/domain"
)

// ContestLoader fetches contest content from a backing store (e.g., the
// contests table).
type ContestLoader interface {
	LoadContest(ctx context.Context, contestID string) (domain.Contest, error)
	ListContests(ctx context.Context) ([]domain.Contest, error)
}

// ContestRepository caches contest content in Redis as one JSON document
// per contest and falls back to a loader on cache miss:
// SET contest:{contestID}:content {json} EX ttl
type ContestRepository struct {
	client *redis.Client
	loader ContestLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewContestRepository(client *redis.Client, loader ContestLoader, ttl time.Duration) *ContestRepository {
	return &ContestRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ContestRepository) GetContest(ctx context.Context, contestID string) (domain.Contest, error) {
	key := r.contentKey(contestID)

	if raw, err := r.client.Get(ctx, key).Result(); err == nil && raw != "" {
		var contest domain.Contest
		if err := json.Unmarshal([]byte(raw), &contest); err == nil {
			return contest, nil
		}
	}

	result, err, _ := r.sf.Do(contestID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, key).Result(); err == nil && raw != "" {
			var contest domain.Contest
			if err := json.Unmarshal([]byte(raw), &contest); err == nil {
				return contest, nil
			}
		}

		contest, err := r.loader.LoadContest(ctx, contestID)
		if err != nil {
			return domain.Contest{}, err
		}

		if data, err := json.Marshal(contest); err == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return contest, nil
	})
	if err != nil {
		return domain.Contest{}, err
	}
	return result.(domain.Contest), nil
}

// ListContests always goes to the loader; listings are cheap and favoring
// freshness keeps new contests visible immediately.
func (r *ContestRepository) ListContests(ctx context.Context) ([]domain.Contest, error) {
	return r.loader.ListContests(ctx)
}

func (r *ContestRepository) contentKey(contestID string) string {
	return "contest:" + contestID + ":content"
}

func (r *ContestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
