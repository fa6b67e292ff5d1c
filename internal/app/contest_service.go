package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"contest-service/internal/domain"
)

// ContestRepository loads contest content (from cache/backing store).
// Contests are immutable from the engine's point of view.
type ContestRepository interface {
	GetContest(ctx context.Context, contestID string) (domain.Contest, error)
	ListContests(ctx context.Context) ([]domain.Contest, error)
}

// ParticipationRepository stores attempts. WithContestLock must serialize
// the callback against all other locked sections for the same contest; the
// memory store uses a keyed mutex, the postgres store a transaction holding
// a per-contest advisory lock. Repository methods called inside the
// callback operate within that locked section.
type ParticipationRepository interface {
	WithContestLock(ctx context.Context, contestID string, fn func(ctx context.Context) error) error
	Create(ctx context.Context, p domain.Participation) error
	Update(ctx context.Context, p domain.Participation) error
	FindByUserAndContest(ctx context.Context, userID, contestID string) (domain.Participation, error)
	CountByContest(ctx context.Context, contestID string) (int, error)
	ListByContest(ctx context.Context, contestID string, status domain.ParticipationStatus) ([]domain.Participation, error)
	ListByUser(ctx context.Context, userID string, filter UserParticipationFilter) ([]domain.Participation, error)
}

// UserParticipationFilter narrows ListByUser. Zero value means all
// participations of the user.
type UserParticipationFilter struct {
	Status       domain.ParticipationStatus
	PrizeAwarded bool
}

// UserDirectory resolves minimal user identities for leaderboard display.
type UserDirectory interface {
	LookupUser(ctx context.Context, userID string) (domain.LeaderboardUser, bool)
}

// LeaderboardCache stores recent leaderboard snapshots. Implementations are
// best-effort: a miss or failure falls back to a full rebuild.
type LeaderboardCache interface {
	Get(ctx context.Context, contestID string) (domain.Leaderboard, bool)
	Set(ctx context.Context, contestID string, lb domain.Leaderboard)
	Invalidate(ctx context.Context, contestID string)
}

// ContestService contains the contest participation use cases: joining,
// submitting answers, prize recalculation, leaderboards, and the per-user
// read projections.
type ContestService struct {
	contests       ContestRepository
	participations ParticipationRepository
	users          UserDirectory
	cache          LeaderboardCache
	hub            *leaderboardHub
	now            func() time.Time
	newID          func() string
}

func NewContestService(contests ContestRepository, participations ParticipationRepository, users UserDirectory) *ContestService {
	return NewContestServiceWithClock(contests, participations, users, time.Now)
}

// NewContestServiceWithClock is test-only for deterministic timestamps.
func NewContestServiceWithClock(contests ContestRepository, participations ParticipationRepository, users UserDirectory, now func() time.Time) *ContestService {
	return &ContestService{
		contests:       contests,
		participations: participations,
		users:          users,
		hub:            newLeaderboardHub(),
		now:            now,
		newID:          uuid.NewString,
	}
}

// WithLeaderboardCache attaches an optional snapshot cache.
func (s *ContestService) WithLeaderboardCache(cache LeaderboardCache) *ContestService {
	s.cache = cache
	return s
}

// ListContests returns the contests the caller may see, questions stripped.
func (s *ContestService) ListContests(ctx context.Context, user *domain.User) ([]domain.ContestSummary, error) {
	contests, err := s.contests.ListContests(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.ContestSummary, 0, len(contests))
	for _, contest := range contests {
		if !domain.CanView(contest.AccessLevel, user) {
			continue
		}
		summaries = append(summaries, contest.Summary())
	}
	return summaries, nil
}

// GetContest returns a single contest with its questions. Correct answers
// are stripped unless the caller is elevated.
func (s *ContestService) GetContest(ctx context.Context, contestID string, user *domain.User) (domain.Contest, error) {
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Contest{}, err
	}
	if !domain.CanView(contest.AccessLevel, user) {
		return domain.Contest{}, domain.ErrForbidden
	}
	if !domain.IsElevated(user) {
		contest = omitCorrectAnswers(contest)
	}
	return contest, nil
}

func omitCorrectAnswers(contest domain.Contest) domain.Contest {
	questions := make([]domain.Question, len(contest.Questions))
	for i, q := range contest.Questions {
		q.CorrectAnswers = nil
		questions[i] = q
	}
	contest.Questions = questions
	return contest
}

// Join creates a participation for (user, contest), or resumes the existing
// in-progress one. Resume is idempotent and deliberately skips the time
// window and capacity checks: a user already inside is not evicted by a
// window edge or capacity fill.
func (s *ContestService) Join(ctx context.Context, contestID string, user *domain.User) (domain.Participation, error) {
	if user == nil {
		return domain.Participation{}, domain.ErrUnauthenticated
	}
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Participation{}, err
	}
	if !domain.CanAccess(contest.AccessLevel, user) {
		return domain.Participation{}, domain.ErrForbidden
	}

	var participation domain.Participation
	err = s.participations.WithContestLock(ctx, contest.ID, func(ctx context.Context) error {
		existing, err := s.participations.FindByUserAndContest(ctx, user.ID, contest.ID)
		switch {
		case err == nil:
			if existing.Status == domain.StatusSubmitted {
				return domain.ErrAlreadyCompleted
			}
			participation = existing
			return nil
		case !errorsIsNotFound(err):
			return err
		}

		now := s.now()
		if contest.StartTime != nil && now.Before(*contest.StartTime) {
			return fmt.Errorf("%w: contest has not started yet", domain.ErrContestNotOpen)
		}
		if contest.EndTime != nil && now.After(*contest.EndTime) {
			return fmt.Errorf("%w: contest has already finished", domain.ErrContestNotOpen)
		}
		if contest.MaxParticipants > 0 {
			count, err := s.participations.CountByContest(ctx, contest.ID)
			if err != nil {
				return err
			}
			if count >= contest.MaxParticipants {
				return domain.ErrCapacityExceeded
			}
		}

		participation = domain.Participation{
			ID:          s.newID(),
			ContestID:   contest.ID,
			UserID:      user.ID,
			Status:      domain.StatusInProgress,
			StartedAt:   now,
			TotalPoints: contest.TotalPoints(),
			CreatedAt:   now,
		}
		return s.participations.Create(ctx, participation)
	})
	if err != nil {
		return domain.Participation{}, err
	}
	return participation, nil
}

// Submit grades a full answers payload, transitions the attempt to its
// terminal state, and recalculates prize winners for the contest before
// returning. The score is always recomputed in full, never incrementally.
func (s *ContestService) Submit(ctx context.Context, contestID string, user *domain.User, answers []domain.RawAnswer) (domain.Participation, error) {
	if user == nil {
		return domain.Participation{}, domain.ErrUnauthenticated
	}
	if len(answers) == 0 {
		return domain.Participation{}, domain.ErrInvalidAnswers
	}
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Participation{}, err
	}
	if !domain.CanAccess(contest.AccessLevel, user) {
		return domain.Participation{}, domain.ErrForbidden
	}

	var participation domain.Participation
	err = s.participations.WithContestLock(ctx, contest.ID, func(ctx context.Context) error {
		current, err := s.participations.FindByUserAndContest(ctx, user.ID, contest.ID)
		if err != nil {
			return err
		}
		if current.Status == domain.StatusSubmitted {
			return domain.ErrAlreadyCompleted
		}

		responses, score, totalPoints := s.evaluate(contest, answers)

		now := s.now()
		current.Status = domain.StatusSubmitted
		current.SubmittedAt = &now
		current.Score = score
		current.TotalPoints = totalPoints
		current.Responses = responses
		if err := s.participations.Update(ctx, current); err != nil {
			return err
		}

		flags, err := s.recalculatePrizes(ctx, contest.ID)
		if err != nil {
			return err
		}
		current.PrizeAwarded = flags[current.ID]
		participation = current
		return nil
	})
	if err != nil {
		return domain.Participation{}, err
	}

	s.publishLeaderboard(ctx, contest.ID)
	return participation, nil
}

// evaluate grades every question of the contest, in order, against the
// submitted payload. Last entry wins when a question id appears twice;
// questions without an entry are graded as unanswered.
func (s *ContestService) evaluate(contest domain.Contest, answers []domain.RawAnswer) ([]domain.Response, int, int) {
	submitted := make(map[string]any, len(answers))
	for _, entry := range answers {
		if entry.QuestionID == "" {
			continue
		}
		submitted[entry.QuestionID] = entry.Value
	}

	questions := make([]domain.Question, len(contest.Questions))
	copy(questions, contest.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].Order != questions[j].Order {
			return questions[i].Order < questions[j].Order
		}
		return questions[i].ID < questions[j].ID
	})

	responses := make([]domain.Response, 0, len(questions))
	score := 0
	totalPoints := 0
	for _, question := range questions {
		totalPoints += question.EffectivePoints()
		normalized := NormalizeAnswer(question.Type, submitted[question.ID])
		result := ScoreAnswer(question, normalized)
		score += result.AwardedPoints
		responses = append(responses, domain.Response{
			QuestionID:      question.ID,
			Correct:         result.Correct,
			AwardedPoints:   result.AwardedPoints,
			Points:          question.EffectivePoints(),
			SubmittedAnswer: normalized,
		})
	}
	return responses, score, totalPoints
}

// recalculatePrizes rebuilds the prizeAwarded flags for every submitted
// participation of the contest from the current global maximum. Ties share
// the prize. It must run inside the contest lock and is idempotent.
func (s *ContestService) recalculatePrizes(ctx context.Context, contestID string) (map[string]bool, error) {
	submissions, err := s.participations.ListByContest(ctx, contestID, domain.StatusSubmitted)
	if err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return nil, nil
	}

	topScore := submissions[0].Score
	for _, p := range submissions[1:] {
		if p.Score > topScore {
			topScore = p.Score
		}
	}

	flags := make(map[string]bool, len(submissions))
	for _, p := range submissions {
		awarded := p.Score == topScore
		flags[p.ID] = awarded
		if p.PrizeAwarded == awarded {
			continue
		}
		p.PrizeAwarded = awarded
		if err := s.participations.Update(ctx, p); err != nil {
			return nil, err
		}
	}
	return flags, nil
}

// Leaderboard returns the ranked view of a contest's submitted attempts.
func (s *ContestService) Leaderboard(ctx context.Context, contestID string, user *domain.User) (domain.Leaderboard, error) {
	if user == nil {
		return domain.Leaderboard{}, domain.ErrUnauthenticated
	}
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if !domain.CanView(contest.AccessLevel, user) {
		return domain.Leaderboard{}, domain.ErrForbidden
	}

	if s.cache != nil {
		if lb, ok := s.cache.Get(ctx, contest.ID); ok {
			return lb, nil
		}
	}
	lb, err := s.buildLeaderboard(ctx, contest.ID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, contest.ID, lb)
	}
	return lb, nil
}

// buildLeaderboard orders submitted attempts by score descending, then
// submission time ascending. Ranks are positional, not dense: tied scores
// receive consecutive distinct ranks.
func (s *ContestService) buildLeaderboard(ctx context.Context, contestID string) (domain.Leaderboard, error) {
	submissions, err := s.participations.ListByContest(ctx, contestID, domain.StatusSubmitted)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	sort.SliceStable(submissions, func(i, j int) bool {
		if submissions[i].Score != submissions[j].Score {
			return submissions[i].Score > submissions[j].Score
		}
		ti, tj := submissions[i].SubmittedAt, submissions[j].SubmittedAt
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return submissions[i].ID < submissions[j].ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(submissions))
	for i, p := range submissions {
		var entryUser *domain.LeaderboardUser
		if s.users != nil {
			if u, ok := s.users.LookupUser(ctx, p.UserID); ok {
				entryUser = &u
			}
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:            i + 1,
			ParticipationID: p.ID,
			Score:           p.Score,
			TotalPoints:     p.TotalPoints,
			SubmittedAt:     p.SubmittedAt,
			PrizeAwarded:    p.PrizeAwarded,
			User:            entryUser,
		})
	}
	return domain.Leaderboard{
		ContestID: contestID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}, nil
}

// Subscribe returns a channel that receives leaderboard snapshots for a
// contest, starting with the current one. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *ContestService) Subscribe(ctx context.Context, contestID string, user *domain.User) (<-chan domain.Leaderboard, func(), error) {
	lb, err := s.Leaderboard(ctx, contestID, user)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(contestID)
	ch <- lb
	return ch, cancel, nil
}

// publishLeaderboard refreshes the cached snapshot and fans the new
// leaderboard out to subscribers after a successful submission.
func (s *ContestService) publishLeaderboard(ctx context.Context, contestID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, contestID)
	}
	lb, err := s.buildLeaderboard(ctx, contestID)
	if err != nil {
		return
	}
	if s.cache != nil {
		s.cache.Set(ctx, contestID, lb)
	}
	s.hub.broadcast(contestID, lb)
}

// History lists the caller's submitted attempts, most recent first.
func (s *ContestService) History(ctx context.Context, user *domain.User) ([]domain.Participation, error) {
	return s.listForUser(ctx, user, UserParticipationFilter{Status: domain.StatusSubmitted}, byCreatedAtDesc)
}

// InProgress lists the caller's unfinished attempts, most recent first.
func (s *ContestService) InProgress(ctx context.Context, user *domain.User) ([]domain.Participation, error) {
	return s.listForUser(ctx, user, UserParticipationFilter{Status: domain.StatusInProgress}, byCreatedAtDesc)
}

// Prizes lists the caller's prize-winning attempts, latest submission first.
func (s *ContestService) Prizes(ctx context.Context, user *domain.User) ([]domain.Participation, error) {
	return s.listForUser(ctx, user, UserParticipationFilter{PrizeAwarded: true}, bySubmittedAtDesc)
}

func (s *ContestService) listForUser(ctx context.Context, user *domain.User, filter UserParticipationFilter, less func(a, b domain.Participation) bool) ([]domain.Participation, error) {
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}
	participations, err := s.participations.ListByUser(ctx, user.ID, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(participations, func(i, j int) bool {
		return less(participations[i], participations[j])
	})
	return participations, nil
}

func byCreatedAtDesc(a, b domain.Participation) bool {
	return a.CreatedAt.After(b.CreatedAt)
}

func bySubmittedAtDesc(a, b domain.Participation) bool {
	if a.SubmittedAt == nil || b.SubmittedAt == nil {
		return b.SubmittedAt == nil && a.SubmittedAt != nil
	}
	return a.SubmittedAt.After(*b.SubmittedAt)
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, domain.ErrParticipationNotFound)
}
