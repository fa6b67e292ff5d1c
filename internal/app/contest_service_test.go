package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
	"contest-service/internal/infra/memory"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	service   *app.ContestService
	directory *memory.UserDirectory
	clock     *fakeClock
}

func newEnv(contests ...domain.Contest) *env {
	byID := make(map[string]domain.Contest, len(contests))
	for _, c := range contests {
		byID[c.ID] = c
	}
	clock := &fakeClock{now: baseTime}
	directory := memory.NewUserDirectory()
	service := app.NewContestServiceWithClock(
		memory.NewContestRepository(memory.NewStaticContestLoader(byID), time.Minute),
		memory.NewParticipationStore(),
		directory,
		clock.Now,
	)
	return &env{service: service, directory: directory, clock: clock}
}

func triviaContest() domain.Contest {
	return domain.Contest{
		ID:          "trivia",
		Name:        "Trivia Night",
		Slug:        "trivia-night",
		AccessLevel: domain.AccessNormal,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionBoolean, CorrectAnswers: []string{"true"}, Points: 1, Order: 1},
			{ID: "q2", Type: domain.QuestionSingle, CorrectAnswers: []string{"mars"}, Points: 2, Order: 2},
			{ID: "q3", Type: domain.QuestionMulti, CorrectAnswers: []string{"2", "3", "5"}, Points: 3, Order: 3},
		},
	}
}

func normalUser(id string) *domain.User {
	return &domain.User{ID: id, Username: id, DisplayName: id, Role: domain.RoleNormal}
}

func perfectAnswers() []domain.RawAnswer {
	return []domain.RawAnswer{
		{QuestionID: "q1", Value: "true"},
		{QuestionID: "q2", Value: "mars"},
		{QuestionID: "q3", Value: []any{"2", "3", "5"}},
	}
}

func TestJoinCreatesParticipation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())

	p, err := e.service.Join(ctx, "trivia", normalUser("u1"))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", p.Status)
	}
	if p.TotalPoints != 6 {
		t.Fatalf("expected totalPoints 6, got %d", p.TotalPoints)
	}
	if !p.StartedAt.Equal(baseTime) {
		t.Fatalf("expected startedAt %v, got %v", baseTime, p.StartedAt)
	}
	if p.Score != 0 || p.PrizeAwarded {
		t.Fatalf("fresh participation must have zero score and no prize: %+v", p)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())
	user := normalUser("u1")

	first, err := e.service.Join(ctx, "trivia", user)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	e.clock.Advance(time.Hour)
	second, err := e.service.Join(ctx, "trivia", user)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same participation, got %s and %s", first.ID, second.ID)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("rejoin must not change startedAt: %v vs %v", first.StartedAt, second.StartedAt)
	}
}

func TestJoinRequiresAuthentication(t *testing.T) {
	e := newEnv(triviaContest())
	if _, err := e.service.Join(context.Background(), "trivia", nil); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestJoinUnknownContest(t *testing.T) {
	e := newEnv(triviaContest())
	if _, err := e.service.Join(context.Background(), "nope", normalUser("u1")); !errors.Is(err, domain.ErrContestNotFound) {
		t.Fatalf("expected ErrContestNotFound, got %v", err)
	}
}

func TestJoinVIPContestChecksRole(t *testing.T) {
	ctx := context.Background()
	vipContest := triviaContest()
	vipContest.ID = "vip-cup"
	vipContest.AccessLevel = domain.AccessVIP
	e := newEnv(vipContest)

	if _, err := e.service.Join(ctx, "vip-cup", normalUser("u1")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for normal user, got %v", err)
	}

	vip := &domain.User{ID: "v1", Role: domain.RoleVIP}
	if _, err := e.service.Join(ctx, "vip-cup", vip); err != nil {
		t.Fatalf("vip join: %v", err)
	}
	admin := &domain.User{ID: "a1", Role: domain.RoleAdmin}
	if _, err := e.service.Join(ctx, "vip-cup", admin); err != nil {
		t.Fatalf("admin join: %v", err)
	}
}

func TestJoinOutsideTimeWindow(t *testing.T) {
	ctx := context.Background()
	start := baseTime.Add(time.Hour)
	end := baseTime.Add(2 * time.Hour)
	timed := triviaContest()
	timed.ID = "timed"
	timed.StartTime = &start
	timed.EndTime = &end
	e := newEnv(timed)

	if _, err := e.service.Join(ctx, "timed", normalUser("u1")); !errors.Is(err, domain.ErrContestNotOpen) {
		t.Fatalf("expected ErrContestNotOpen before start, got %v", err)
	}

	e.clock.Advance(3 * time.Hour)
	if _, err := e.service.Join(ctx, "timed", normalUser("u1")); !errors.Is(err, domain.ErrContestNotOpen) {
		t.Fatalf("expected ErrContestNotOpen after end, got %v", err)
	}
}

func TestJoinCapacity(t *testing.T) {
	ctx := context.Background()
	small := triviaContest()
	small.ID = "small"
	small.MaxParticipants = 1
	e := newEnv(small)

	if _, err := e.service.Join(ctx, "small", normalUser("u1")); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := e.service.Join(ctx, "small", normalUser("u2")); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	// The user already inside is not evicted by the capacity fill.
	if _, err := e.service.Join(ctx, "small", normalUser("u1")); err != nil {
		t.Fatalf("resume after capacity fill: %v", err)
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	small := triviaContest()
	small.ID = "small"
	small.MaxParticipants = 1
	e := newEnv(small)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, id := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = e.service.Join(ctx, "small", normalUser(id))
		}(i, id)
	}
	wg.Wait()

	succeeded, capacity := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrCapacityExceeded):
			capacity++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || capacity != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d capacity errors", succeeded, capacity)
	}
}

func TestSubmitScoresAndAwardsPrize(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())
	user := normalUser("u1")

	if _, err := e.service.Join(ctx, "trivia", user); err != nil {
		t.Fatalf("join: %v", err)
	}
	e.clock.Advance(10 * time.Minute)

	p, err := e.service.Submit(ctx, "trivia", user, perfectAnswers())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if p.Status != domain.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", p.Status)
	}
	if p.Score != 6 || p.TotalPoints != 6 {
		t.Fatalf("expected 6/6, got %d/%d", p.Score, p.TotalPoints)
	}
	if p.SubmittedAt == nil || !p.SubmittedAt.Equal(baseTime.Add(10*time.Minute)) {
		t.Fatalf("unexpected submittedAt: %v", p.SubmittedAt)
	}
	if len(p.Responses) != 3 {
		t.Fatalf("expected one response per question, got %d", len(p.Responses))
	}
	for i, want := range []string{"q1", "q2", "q3"} {
		if p.Responses[i].QuestionID != want {
			t.Fatalf("responses out of order: %+v", p.Responses)
		}
		if !p.Responses[i].Correct {
			t.Fatalf("expected %s correct: %+v", want, p.Responses[i])
		}
	}
	if !p.PrizeAwarded {
		t.Fatalf("sole submitter must hold the prize")
	}
}

func TestSubmitRequiresJoin(t *testing.T) {
	e := newEnv(triviaContest())
	_, err := e.service.Submit(context.Background(), "trivia", normalUser("u1"), perfectAnswers())
	if !errors.Is(err, domain.ErrParticipationNotFound) {
		t.Fatalf("expected ErrParticipationNotFound, got %v", err)
	}
}

func TestSubmitEmptyAnswersRejected(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())
	user := normalUser("u1")
	if _, err := e.service.Join(ctx, "trivia", user); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := e.service.Submit(ctx, "trivia", user, nil); !errors.Is(err, domain.ErrInvalidAnswers) {
		t.Fatalf("expected ErrInvalidAnswers, got %v", err)
	}
}

func TestSubmitIsTerminal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())
	user := normalUser("u1")

	if _, err := e.service.Join(ctx, "trivia", user); err != nil {
		t.Fatalf("join: %v", err)
	}
	first, err := e.service.Submit(ctx, "trivia", user, perfectAnswers())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Neither a second submit nor a rejoin may touch the terminal attempt.
	wrong := []domain.RawAnswer{{QuestionID: "q1", Value: "false"}}
	if _, err := e.service.Submit(ctx, "trivia", user, wrong); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted on resubmit, got %v", err)
	}
	if _, err := e.service.Join(ctx, "trivia", user); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted on rejoin, got %v", err)
	}

	history, err := e.service.History(ctx, user)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Score != first.Score {
		t.Fatalf("failed submit must not change the stored attempt: %+v", history)
	}
}

func TestSubmitDuplicateAnswersLastWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())
	user := normalUser("u1")
	if _, err := e.service.Join(ctx, "trivia", user); err != nil {
		t.Fatalf("join: %v", err)
	}

	answers := []domain.RawAnswer{
		{QuestionID: "q2", Value: "venus"},
		{QuestionID: "q2", Value: "mars"},
	}
	p, err := e.service.Submit(ctx, "trivia", user, answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if p.Score != 2 {
		t.Fatalf("expected the later duplicate to win (score 2), got %d", p.Score)
	}
}

func TestSubmitGradesUnansweredQuestions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())
	user := normalUser("u1")
	if _, err := e.service.Join(ctx, "trivia", user); err != nil {
		t.Fatalf("join: %v", err)
	}

	p, err := e.service.Submit(ctx, "trivia", user, []domain.RawAnswer{{QuestionID: "q1", Value: "true"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(p.Responses) != 3 {
		t.Fatalf("every question must appear in responses, got %d", len(p.Responses))
	}
	if p.Score != 1 {
		t.Fatalf("expected score 1, got %d", p.Score)
	}
	if p.Score > p.TotalPoints {
		t.Fatalf("score %d exceeds totalPoints %d", p.Score, p.TotalPoints)
	}
}

func TestPrizeTiesAreShared(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())

	users := []*domain.User{normalUser("u1"), normalUser("u2"), normalUser("u3")}
	for _, u := range users {
		if _, err := e.service.Join(ctx, "trivia", u); err != nil {
			t.Fatalf("join %s: %v", u.ID, err)
		}
	}

	submit := func(u *domain.User, answers []domain.RawAnswer) domain.Participation {
		t.Helper()
		e.clock.Advance(time.Minute)
		p, err := e.service.Submit(ctx, "trivia", u, answers)
		if err != nil {
			t.Fatalf("submit %s: %v", u.ID, err)
		}
		return p
	}

	submit(users[0], perfectAnswers())
	submit(users[1], perfectAnswers())
	low := submit(users[2], []domain.RawAnswer{{QuestionID: "q1", Value: "true"}})
	if low.PrizeAwarded {
		t.Fatalf("lower score must not hold the prize")
	}

	admin := &domain.User{ID: "a1", Role: domain.RoleAdmin}
	lb, err := e.service.Leaderboard(ctx, "trivia", admin)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb.Entries))
	}
	if !lb.Entries[0].PrizeAwarded || !lb.Entries[1].PrizeAwarded {
		t.Fatalf("tied top scores must share the prize: %+v", lb.Entries)
	}
	if lb.Entries[2].PrizeAwarded {
		t.Fatalf("third place must not hold the prize: %+v", lb.Entries[2])
	}
}

func TestPrizeMovesToNewTopScore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())
	u1, u2 := normalUser("u1"), normalUser("u2")

	for _, u := range []*domain.User{u1, u2} {
		if _, err := e.service.Join(ctx, "trivia", u); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	first, err := e.service.Submit(ctx, "trivia", u1, []domain.RawAnswer{{QuestionID: "q1", Value: "true"}})
	if err != nil {
		t.Fatalf("submit u1: %v", err)
	}
	if !first.PrizeAwarded {
		t.Fatalf("first submitter starts as top scorer")
	}

	e.clock.Advance(time.Minute)
	second, err := e.service.Submit(ctx, "trivia", u2, perfectAnswers())
	if err != nil {
		t.Fatalf("submit u2: %v", err)
	}
	if !second.PrizeAwarded {
		t.Fatalf("new top score must take the prize")
	}

	prizes, err := e.service.Prizes(ctx, u1)
	if err != nil {
		t.Fatalf("prizes: %v", err)
	}
	if len(prizes) != 0 {
		t.Fatalf("dethroned participant must lose the prize flag: %+v", prizes)
	}
}

func TestLeaderboardUsesPositionalRanks(t *testing.T) {
	ctx := context.Background()
	contest := domain.Contest{
		ID:          "ranked",
		Name:        "Ranked",
		Slug:        "ranked",
		AccessLevel: domain.AccessNormal,
		Questions: []domain.Question{
			{ID: "big", Type: domain.QuestionSingle, CorrectAnswers: []string{"a"}, Points: 8, Order: 1},
			{ID: "small", Type: domain.QuestionSingle, CorrectAnswers: []string{"b"}, Points: 2, Order: 2},
		},
	}
	e := newEnv(contest)

	full := []domain.RawAnswer{{QuestionID: "big", Value: "a"}, {QuestionID: "small", Value: "b"}}
	partial := []domain.RawAnswer{{QuestionID: "big", Value: "a"}}

	for _, u := range []string{"alice", "bob", "carol"} {
		if _, err := e.service.Join(ctx, "ranked", normalUser(u)); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
		e.directory.Register(*normalUser(u))
	}

	submit := func(id string, answers []domain.RawAnswer) {
		t.Helper()
		e.clock.Advance(time.Minute)
		if _, err := e.service.Submit(ctx, "ranked", normalUser(id), answers); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	submit("alice", full)    // 10 points, earliest
	submit("bob", full)      // 10 points, later
	submit("carol", partial) // 8 points

	lb, err := e.service.Leaderboard(ctx, "ranked", normalUser("alice"))
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb.Entries))
	}

	wantOrder := []struct {
		name  string
		rank  int
		score int
	}{
		{"alice", 1, 10},
		{"bob", 2, 10},
		{"carol", 3, 8},
	}
	for i, want := range wantOrder {
		entry := lb.Entries[i]
		if entry.Rank != want.rank || entry.Score != want.score {
			t.Fatalf("entry %d: got rank=%d score=%d, want rank=%d score=%d", i, entry.Rank, entry.Score, want.rank, want.score)
		}
		if entry.User == nil || entry.User.DisplayName != want.name {
			t.Fatalf("entry %d: got user %+v, want %s", i, entry.User, want.name)
		}
	}
}

func TestLeaderboardRequiresAuthenticatedViewer(t *testing.T) {
	e := newEnv(triviaContest())
	if _, err := e.service.Leaderboard(context.Background(), "trivia", nil); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestGetContestStripsSolutions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())

	contest, err := e.service.GetContest(ctx, "trivia", normalUser("u1"))
	if err != nil {
		t.Fatalf("get contest: %v", err)
	}
	for _, q := range contest.Questions {
		if q.CorrectAnswers != nil {
			t.Fatalf("correct answers leaked to non-admin: %+v", q)
		}
	}

	admin := &domain.User{ID: "a1", Role: domain.RoleAdmin}
	contest, err = e.service.GetContest(ctx, "trivia", admin)
	if err != nil {
		t.Fatalf("get contest as admin: %v", err)
	}
	if len(contest.Questions[0].CorrectAnswers) == 0 {
		t.Fatalf("admin must see correct answers")
	}
}

func TestListContestsFiltersByRole(t *testing.T) {
	ctx := context.Background()
	vipContest := triviaContest()
	vipContest.ID = "vip-cup"
	vipContest.Slug = "vip-cup"
	vipContest.AccessLevel = domain.AccessVIP
	e := newEnv(triviaContest(), vipContest)

	anon, err := e.service.ListContests(ctx, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(anon) != 1 || anon[0].ID != "trivia" {
		t.Fatalf("anonymous caller must only see normal contests: %+v", anon)
	}

	vip := &domain.User{ID: "v1", Role: domain.RoleVIP}
	all, err := e.service.ListContests(ctx, vip)
	if err != nil {
		t.Fatalf("list as vip: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("vip caller must see both contests: %+v", all)
	}
}

func TestUserProjections(t *testing.T) {
	ctx := context.Background()
	second := triviaContest()
	second.ID = "trivia2"
	second.Slug = "trivia-2"
	e := newEnv(triviaContest(), second)
	user := normalUser("u1")

	if _, err := e.service.Join(ctx, "trivia", user); err != nil {
		t.Fatalf("join: %v", err)
	}
	e.clock.Advance(time.Minute)
	if _, err := e.service.Join(ctx, "trivia2", user); err != nil {
		t.Fatalf("join second: %v", err)
	}
	e.clock.Advance(time.Minute)
	if _, err := e.service.Submit(ctx, "trivia", user, perfectAnswers()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	history, err := e.service.History(ctx, user)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ContestID != "trivia" {
		t.Fatalf("unexpected history: %+v", history)
	}

	inProgress, err := e.service.InProgress(ctx, user)
	if err != nil {
		t.Fatalf("in progress: %v", err)
	}
	if len(inProgress) != 1 || inProgress[0].ContestID != "trivia2" {
		t.Fatalf("unexpected in-progress list: %+v", inProgress)
	}

	prizes, err := e.service.Prizes(ctx, user)
	if err != nil {
		t.Fatalf("prizes: %v", err)
	}
	if len(prizes) != 1 || prizes[0].ContestID != "trivia" {
		t.Fatalf("unexpected prizes: %+v", prizes)
	}

	if _, err := e.service.History(ctx, nil); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(triviaContest())
	user := normalUser("u1")

	if _, err := e.service.Join(ctx, "trivia", user); err != nil {
		t.Fatalf("join: %v", err)
	}

	updates, cancel, err := e.service.Subscribe(ctx, "trivia", user)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-updates
	if len(initial.Entries) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", initial.Entries)
	}

	if _, err := e.service.Submit(ctx, "trivia", user, perfectAnswers()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	update := <-updates
	if len(update.Entries) != 1 || update.Entries[0].Score != 6 {
		t.Fatalf("expected update with score 6, got %+v", update.Entries)
	}
}
