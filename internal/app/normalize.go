package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"contest-service/internal/domain"
)

// NormalizeAnswer converts a raw submitted value into the canonical
// comparable form for the question type. It never fails: missing or
// illegal input narrows toward an "unanswered" representation.
func NormalizeAnswer(questionType domain.QuestionType, raw any) domain.Answer {
	if questionType == domain.QuestionBoolean {
		return normalizeBoolean(raw)
	}
	return normalizeSelection(raw)
}

func normalizeBoolean(raw any) domain.Answer {
	if raw == nil {
		return domain.Answer{}
	}
	if s, ok := raw.(string); ok {
		if s == "" {
			return domain.Answer{}
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return domain.BoolAnswer(true)
		case "false":
			return domain.BoolAnswer(false)
		}
	}
	return domain.BoolAnswer(truthy(raw))
}

func normalizeSelection(raw any) domain.Answer {
	switch v := raw.(type) {
	case nil:
		return domain.ValuesAnswer()
	case []any:
		values := make([]string, 0, len(v))
		for _, item := range v {
			values = append(values, stringify(item))
		}
		return domain.ValuesAnswer(values...)
	case []string:
		values := make([]string, len(v))
		copy(values, v)
		return domain.ValuesAnswer(values...)
	default:
		return domain.ValuesAnswer(stringify(raw))
	}
}

// truthy mirrors loose boolean coercion of the submission payloads the
// service historically accepted: false, 0, and "" are falsy; everything
// else, including empty lists, is truthy.
func truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return raw != nil
	}
}

// stringify renders scalar answer values the way clients see them echoed
// back: bare strings stay as-is, numbers drop insignificant decimals.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
