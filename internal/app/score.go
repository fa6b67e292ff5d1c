package app

import (
	"strings"

	"contest-service/internal/domain"
)

// ScoreResult is the outcome of grading one question.
type ScoreResult struct {
	Correct       bool
	AwardedPoints int
}

// ScoreAnswer compares a normalized answer against the question's
// configured correct answers. Matching is all-or-nothing: full points on
// an exact match, zero otherwise. Pure and total; it never fails.
func ScoreAnswer(question domain.Question, answer domain.Answer) ScoreResult {
	if question.Type == domain.QuestionBoolean {
		return scoreBoolean(question, answer)
	}
	return scoreSelection(question, answer)
}

func scoreBoolean(question domain.Question, answer domain.Answer) ScoreResult {
	if len(question.CorrectAnswers) == 0 || answer.Bool == nil {
		return ScoreResult{}
	}
	expected := strings.EqualFold(strings.TrimSpace(question.CorrectAnswers[0]), "true")
	if expected == *answer.Bool {
		return ScoreResult{Correct: true, AwardedPoints: question.EffectivePoints()}
	}
	return ScoreResult{}
}

func scoreSelection(question domain.Question, answer domain.Answer) ScoreResult {
	expected := toSet(question.CorrectAnswers)
	provided := toSet(answer.Values)

	// An unconfigured or unanswered question never scores.
	if len(expected) == 0 && len(provided) == 0 {
		return ScoreResult{}
	}
	if len(expected) != len(provided) {
		return ScoreResult{}
	}
	for value := range expected {
		if _, ok := provided[value]; !ok {
			return ScoreResult{}
		}
	}
	return ScoreResult{Correct: true, AwardedPoints: question.EffectivePoints()}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
