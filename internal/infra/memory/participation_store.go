package memory

import (
	"context"
	"fmt"
	"sync"

	"contest-service/internal/app"
	"contest-service/internal/domain"
)

// ParticipationStore is an in-memory implementation of
// app.ParticipationRepository. Per-contest serialization is provided by a
// keyed mutex; all data access goes through a store-wide RWMutex.
type ParticipationStore struct {
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu     sync.RWMutex
	byID   map[string]domain.Participation
	byPair map[string]map[string]string // contestID -> userID -> participationID
}

func NewParticipationStore() *ParticipationStore {
	return &ParticipationStore{
		locks:  make(map[string]*sync.Mutex),
		byID:   make(map[string]domain.Participation),
		byPair: make(map[string]map[string]string),
	}
}

// WithContestLock serializes fn against every other locked section for the
// same contest.
func (s *ParticipationStore) WithContestLock(ctx context.Context, contestID string, fn func(ctx context.Context) error) error {
	lock := s.contestLock(contestID)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (s *ParticipationStore) contestLock(contestID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[contestID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[contestID] = lock
	}
	return lock
}

func (s *ParticipationStore) Create(_ context.Context, p domain.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if users, ok := s.byPair[p.ContestID]; ok {
		if _, exists := users[p.UserID]; exists {
			return fmt.Errorf("participation already exists for user %s in contest %s", p.UserID, p.ContestID)
		}
	} else {
		s.byPair[p.ContestID] = make(map[string]string)
	}
	s.byID[p.ID] = clone(p)
	s.byPair[p.ContestID][p.UserID] = p.ID
	return nil
}

func (s *ParticipationStore) Update(_ context.Context, p domain.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; !ok {
		return domain.ErrParticipationNotFound
	}
	s.byID[p.ID] = clone(p)
	return nil
}

func (s *ParticipationStore) FindByUserAndContest(_ context.Context, userID, contestID string) (domain.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users, ok := s.byPair[contestID]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	id, ok := users[userID]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *ParticipationStore) CountByContest(_ context.Context, contestID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPair[contestID]), nil
}

func (s *ParticipationStore) ListByContest(_ context.Context, contestID string, status domain.ParticipationStatus) ([]domain.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participation, 0)
	for _, id := range s.byPair[contestID] {
		p := s.byID[id]
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, clone(p))
	}
	return out, nil
}

func (s *ParticipationStore) ListByUser(_ context.Context, userID string, filter app.UserParticipationFilter) ([]domain.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participation, 0)
	for _, p := range s.byID {
		if p.UserID != userID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.PrizeAwarded && !p.PrizeAwarded {
			continue
		}
		out = append(out, clone(p))
	}
	return out, nil
}

// clone copies a participation so callers never alias stored state.
func clone(p domain.Participation) domain.Participation {
	if p.Responses != nil {
		responses := make([]domain.Response, len(p.Responses))
		copy(responses, p.Responses)
		p.Responses = responses
	}
	if p.SubmittedAt != nil {
		t := *p.SubmittedAt
		p.SubmittedAt = &t
	}
	return p
}
