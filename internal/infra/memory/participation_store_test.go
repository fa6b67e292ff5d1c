package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
)

func TestParticipationStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewParticipationStore()

	p := domain.Participation{
		ID:        "p1",
		ContestID: "c1",
		UserID:    "u1",
		Status:    domain.StatusInProgress,
		StartedAt: time.Now(),
	}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, p); err == nil {
		t.Fatalf("duplicate create must fail")
	}

	got, err := store.FindByUserAndContest(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "p1" {
		t.Fatalf("got %q, want p1", got.ID)
	}

	if _, err := store.FindByUserAndContest(ctx, "u2", "c1"); !errors.Is(err, domain.ErrParticipationNotFound) {
		t.Fatalf("expected ErrParticipationNotFound, got %v", err)
	}
}

func TestParticipationStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewParticipationStore()

	if err := store.Update(ctx, domain.Participation{ID: "ghost"}); !errors.Is(err, domain.ErrParticipationNotFound) {
		t.Fatalf("expected ErrParticipationNotFound, got %v", err)
	}

	p := domain.Participation{ID: "p1", ContestID: "c1", UserID: "u1", Status: domain.StatusInProgress}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	p.Status = domain.StatusSubmitted
	p.SubmittedAt = &now
	p.Score = 3
	if err := store.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.FindByUserAndContest(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != domain.StatusSubmitted || got.Score != 3 || got.SubmittedAt == nil {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestParticipationStoreDoesNotAliasStoredState(t *testing.T) {
	ctx := context.Background()
	store := NewParticipationStore()

	p := domain.Participation{
		ID:        "p1",
		ContestID: "c1",
		UserID:    "u1",
		Responses: []domain.Response{{QuestionID: "q1", Correct: true}},
	}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindByUserAndContest(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got.Responses[0].Correct = false

	again, err := store.FindByUserAndContest(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("refind: %v", err)
	}
	if !again.Responses[0].Correct {
		t.Fatalf("stored responses were mutated through the returned copy")
	}
}

func TestParticipationStoreCountAndListByContest(t *testing.T) {
	ctx := context.Background()
	store := NewParticipationStore()

	now := time.Now()
	seed := []domain.Participation{
		{ID: "p1", ContestID: "c1", UserID: "u1", Status: domain.StatusSubmitted, SubmittedAt: &now},
		{ID: "p2", ContestID: "c1", UserID: "u2", Status: domain.StatusInProgress},
		{ID: "p3", ContestID: "c2", UserID: "u1", Status: domain.StatusSubmitted, SubmittedAt: &now},
	}
	for _, p := range seed {
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.ID, err)
		}
	}

	count, err := store.CountByContest(ctx, "c1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	submitted, err := store.ListByContest(ctx, "c1", domain.StatusSubmitted)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(submitted) != 1 || submitted[0].ID != "p1" {
		t.Fatalf("unexpected submitted list: %+v", submitted)
	}

	all, err := store.ListByContest(ctx, "c1", "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %+v", all)
	}
}

func TestParticipationStoreListByUser(t *testing.T) {
	ctx := context.Background()
	store := NewParticipationStore()

	now := time.Now()
	seed := []domain.Participation{
		{ID: "p1", ContestID: "c1", UserID: "u1", Status: domain.StatusSubmitted, SubmittedAt: &now, PrizeAwarded: true},
		{ID: "p2", ContestID: "c2", UserID: "u1", Status: domain.StatusInProgress},
		{ID: "p3", ContestID: "c1", UserID: "u2", Status: domain.StatusSubmitted, SubmittedAt: &now},
	}
	for _, p := range seed {
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.ID, err)
		}
	}

	submitted, err := store.ListByUser(ctx, "u1", app.UserParticipationFilter{Status: domain.StatusSubmitted})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(submitted) != 1 || submitted[0].ID != "p1" {
		t.Fatalf("unexpected list: %+v", submitted)
	}

	prizes, err := store.ListByUser(ctx, "u1", app.UserParticipationFilter{PrizeAwarded: true})
	if err != nil {
		t.Fatalf("list prizes: %v", err)
	}
	if len(prizes) != 1 || prizes[0].ID != "p1" {
		t.Fatalf("unexpected prize list: %+v", prizes)
	}

	all, err := store.ListByUser(ctx, "u1", app.UserParticipationFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %+v", all)
	}
}

func TestWithContestLockSerializesPerContest(t *testing.T) {
	ctx := context.Background()
	store := NewParticipationStore()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = store.WithContestLock(ctx, "c1", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
		close(done)
	}()

	<-entered

	// A different contest's lock is independent and must not block.
	independent := make(chan struct{})
	go func() {
		_ = store.WithContestLock(ctx, "c2", func(context.Context) error { return nil })
		close(independent)
	}()
	select {
	case <-independent:
	case <-time.After(time.Second):
		t.Fatalf("lock for another contest blocked")
	}

	// The same contest's lock must wait for the holder.
	blocked := make(chan struct{})
	go func() {
		_ = store.WithContestLock(ctx, "c1", func(context.Context) error { return nil })
		close(blocked)
	}()
	select {
	case <-blocked:
		t.Fatalf("second section ran while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatalf("second section never ran after release")
	}
}
