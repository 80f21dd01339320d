package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CodingSubmission is the structured answer to a coding question.
type CodingSubmission struct {
	Language string `json:"language,omitempty"`
	Source   string `json:"source,omitempty"`
	Passed   int    `json:"passed"`
	Total    int    `json:"total"`
}

// Answer is either a selected option index (MCQ) or a coding submission.
// On the wire an MCQ answer is a bare number and a coding answer an object.
type Answer struct {
	Option *int
	Coding *CodingSubmission
}

// OptionAnswer builds an MCQ answer.
func OptionAnswer(i int) Answer {
	return Answer{Option: &i}
}

// CodingAnswer builds a coding answer.
func CodingAnswer(c CodingSubmission) Answer {
	return Answer{Coding: &c}
}

// IsZero reports the "no value" sentinel.
func (a Answer) IsZero() bool {
	return a.Option == nil && a.Coding == nil
}

func (a Answer) Equal(b Answer) bool {
	switch {
	case a.Option != nil && b.Option != nil:
		return *a.Option == *b.Option && a.Coding == nil && b.Coding == nil
	case a.Coding != nil && b.Coding != nil:
		return *a.Coding == *b.Coding && a.Option == nil && b.Option == nil
	default:
		return a.IsZero() && b.IsZero()
	}
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Coding != nil {
		return json.Marshal(a.Coding)
	}
	if a.Option != nil {
		return json.Marshal(*a.Option)
	}
	return []byte("null"), nil
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*a = Answer{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '{' {
		var c CodingSubmission
		if err := json.Unmarshal(b, &c); err != nil {
			return fmt.Errorf("decode coding answer: %w", err)
		}
		a.Coding = &c
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode option answer: %w", err)
	}
	a.Option = &n
	return nil
}

// CloneAnswers copies an answers map.
func CloneAnswers(in map[string]Answer) map[string]Answer {
	out := make(map[string]Answer, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// CloneMarks copies a marked-for-review set.
func CloneMarks(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}
