package domain

import "time"

// AccessLevel is a contest's eligibility tier.
type AccessLevel string

const (
	AccessNormal AccessLevel = "normal"
	AccessVIP    AccessLevel = "vip"
)

// Role is the caller's role as supplied by the identity provider.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleVIP    Role = "vip"
	RoleNormal Role = "normal"
)

// User is the minimal identity the engine needs; authentication itself is
// an external concern.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// QuestionType distinguishes the scoring rules applied to a question.
type QuestionType string

const (
	QuestionSingle  QuestionType = "single"
	QuestionMulti   QuestionType = "multi"
	QuestionBoolean QuestionType = "boolean"
)

// Choice is one selectable option of a single/multi question.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Question belongs to exactly one contest.
type Question struct {
	ID             string       `json:"id"`
	Prompt         string       `json:"prompt"`
	Type           QuestionType `json:"type"`
	Choices        []Choice     `json:"choices,omitempty"`
	CorrectAnswers []string     `json:"correctAnswers,omitempty"`
	Points         int          `json:"points"` // defaults to 1 if zero
	Order          int          `json:"order"`
}

// EffectivePoints returns the points a question is worth.
func (q Question) EffectivePoints() int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}

// Contest is read-only from the engine's perspective; content authoring
// lives elsewhere.
type Contest struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	AccessLevel      AccessLevel       `json:"accessLevel"`
	StartTime        *time.Time        `json:"startTime,omitempty"`
	EndTime          *time.Time        `json:"endTime,omitempty"`
	MaxParticipants  int               `json:"maxParticipants,omitempty"` // 0 means unlimited
	PrizeTitle       string            `json:"prizeTitle,omitempty"`
	PrizeDescription string            `json:"prizeDescription,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Questions        []Question        `json:"questions,omitempty"`
}

// TotalPoints sums the effective points of all questions.
func (c Contest) TotalPoints() int {
	total := 0
	for _, q := range c.Questions {
		total += q.EffectivePoints()
	}
	return total
}

// ParticipationStatus is the lifecycle state of one attempt. The only legal
// transition is in_progress -> submitted; submitted is terminal.
type ParticipationStatus string

const (
	StatusInProgress ParticipationStatus = "in_progress"
	StatusSubmitted  ParticipationStatus = "submitted"
)

// Response records the outcome for one question of a submitted attempt.
type Response struct {
	QuestionID      string `json:"questionId"`
	Correct         bool   `json:"correct"`
	AwardedPoints   int    `json:"awardedPoints"`
	Points          int    `json:"points"`
	SubmittedAnswer Answer `json:"submittedAnswer"`
}

// Participation is one user's attempt at one contest, unique per
// (user, contest) pair. It is created by Join, mutated by Submit and by
// prize recalculation, and never deleted.
type Participation struct {
	ID           string              `json:"id"`
	ContestID    string              `json:"contestId"`
	UserID       string              `json:"userId"`
	Status       ParticipationStatus `json:"status"`
	StartedAt    time.Time           `json:"startedAt"`
	SubmittedAt  *time.Time          `json:"submittedAt,omitempty"`
	Score        int                 `json:"score"`
	TotalPoints  int                 `json:"totalPoints"`
	Responses    []Response          `json:"responses,omitempty"`
	PrizeAwarded bool                `json:"prizeAwarded"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// ContestSummary is the question-free view used by contest listings.
type ContestSummary struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	AccessLevel      AccessLevel       `json:"accessLevel"`
	StartTime        *time.Time        `json:"startTime,omitempty"`
	EndTime          *time.Time        `json:"endTime,omitempty"`
	MaxParticipants  int               `json:"maxParticipants,omitempty"`
	PrizeTitle       string            `json:"prizeTitle,omitempty"`
	PrizeDescription string            `json:"prizeDescription,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Summary returns the listing view of a contest.
func (c Contest) Summary() ContestSummary {
	return ContestSummary{
		ID:               c.ID,
		Name:             c.Name,
		Slug:             c.Slug,
		AccessLevel:      c.AccessLevel,
		StartTime:        c.StartTime,
		EndTime:          c.EndTime,
		MaxParticipants:  c.MaxParticipants,
		PrizeTitle:       c.PrizeTitle,
		PrizeDescription: c.PrizeDescription,
		Metadata:         c.Metadata,
	}
}

// LeaderboardUser is the minimal identity attached to a leaderboard entry.
type LeaderboardUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// LeaderboardEntry is one row of a contest leaderboard. Rank is positional:
// tied scores still get consecutive distinct ranks, ordered by submission time.
type LeaderboardEntry struct {
	Rank            int              `json:"rank"`
	ParticipationID string           `json:"participationId"`
	Score           int              `json:"score"`
	TotalPoints     int              `json:"totalPoints"`
	SubmittedAt     *time.Time       `json:"submittedAt,omitempty"`
	PrizeAwarded    bool             `json:"prizeAwarded"`
	User            *LeaderboardUser `json:"user"`
}

// Leaderboard is the ordered scoreboard of a contest's submitted attempts.
type Leaderboard struct {
	ContestID string             `json:"contestId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
