package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"contest-service/internal/domain"
)

// ContestLoader fetches contest content from a backing store (e.g., the
// contests table).
type ContestLoader interface {
	LoadContest(ctx context.Context, contestID string) (domain.Contest, error)
	ListContests(ctx context.Context) ([]domain.Contest, error)
}

// ContestRepository caches contests with TTL to avoid repeated store hits.
// Listings always go to the loader; only per-contest content is cached.
type ContestRepository struct {
	loader ContestLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedContest
}

type cachedContest struct {
	contest   domain.Contest
	expiresAt time.Time
}

func NewContestRepository(loader ContestLoader, ttl time.Duration) *ContestRepository {
	return &ContestRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedContest),
	}
}

func (r *ContestRepository) GetContest(ctx context.Context, contestID string) (domain.Contest, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[contestID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.contest, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(contestID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[contestID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.contest, nil
		}
		r.mu.RUnlock()

		contest, err := r.loader.LoadContest(ctx, contestID)
		if err != nil {
			return domain.Contest{}, err
		}

		r.mu.Lock()
		r.cache[contestID] = cachedContest{
			contest:   contest,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return contest, nil
	})
	if err != nil {
		return domain.Contest{}, err
	}
	return result.(domain.Contest), nil
}

func (r *ContestRepository) ListContests(ctx context.Context) ([]domain.Contest, error) {
	return r.loader.ListContests(ctx)
}

func (r *ContestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticContestLoader is a simple loader backed by an in-memory map
// (useful for tests/demos and running without postgres).
type StaticContestLoader struct {
	contests map[string]domain.Contest
}

func NewStaticContestLoader(contests map[string]domain.Contest) *StaticContestLoader {
	return &StaticContestLoader{contests: contests}
}

func (l *StaticContestLoader) LoadContest(_ context.Context, contestID string) (domain.Contest, error) {
	if contest, ok := l.contests[contestID]; ok {
		return contest, nil
	}
	return domain.Contest{}, domain.ErrContestNotFound
}

func (l *StaticContestLoader) ListContests(_ context.Context) ([]domain.Contest, error) {
	out := make([]domain.Contest, 0, len(l.contests))
	for _, contest := range l.contests {
		out = append(out, contest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}
