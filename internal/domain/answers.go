package domain

import "encoding/json"

// RawAnswer is one entry of a submitted answers payload, before
// normalization. Value holds whatever JSON the client sent: a string,
// bool, number, list, or nothing at all.
type RawAnswer struct {
	QuestionID string
	Value      any
}

// Answer is the canonical comparable form of a submitted answer. For
// boolean questions Bool applies (nil means unanswered); for single/multi
// questions Values applies (possibly empty). Normalization never fails,
// it only narrows missing or illegal input toward "unanswered".
type Answer struct {
	Bool   *bool
	Values []string
}

// BoolAnswer builds a boolean-form answer.
func BoolAnswer(v bool) Answer {
	return Answer{Bool: &v}
}

// ValuesAnswer builds a list-form answer.
func ValuesAnswer(values ...string) Answer {
	if values == nil {
		values = []string{}
	}
	return Answer{Values: values}
}

// MarshalJSON renders the answer in its submitted shape: a bare bool, a
// list of values, or null for an unanswered boolean question.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Bool != nil {
		return json.Marshal(*a.Bool)
	}
	if a.Values != nil {
		return json.Marshal(a.Values)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts the shapes produced by MarshalJSON.
func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = Answer{}
	if string(data) == "null" {
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		a.Bool = &b
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	a.Values = values
	return nil
}
