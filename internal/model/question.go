package model

import (
	"fmt"
)

// TestMode distinguishes the test instances a user can sit (and keys their snapshots).
type TestMode string

const (
	TestModeMCQ    TestMode = "mcq"
	TestModeCoding TestMode = "coding"
)

// ParseTestMode validates a raw mode string.
func ParseTestMode(raw string) (TestMode, error) {
	switch TestMode(raw) {
	case TestModeMCQ, TestModeCoding:
		return TestMode(raw), nil
	default:
		return "", fmt.Errorf("unknown test mode %q", raw)
	}
}

type QuestionType string

const (
	QuestionTypeMCQ    QuestionType = "MCQ"
	QuestionTypeCoding QuestionType = "CODING"
)

// Default mark values when a question does not configure its own.
const (
	DefaultMCQMarks    = 1.0
	DefaultCodingMarks = 20.0
)

// Question is a single test question as shown to the candidate. It never
// carries the correct answer; see AnswerKey.
type Question struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Type      QuestionType `json:"type"`
	Options   []string     `json:"options,omitempty"`
	Marks     *float64     `json:"marks,omitempty"`
	TestCases int          `json:"test_cases,omitempty"`
}

// IsCoding reports whether the question is graded by passed test cases.
func (q Question) IsCoding() bool {
	return q.Type == QuestionTypeCoding
}

// MarkValue returns the configured marks or the type default.
func (q Question) MarkValue() float64 {
	if q.Marks != nil {
		return *q.Marks
	}
	if q.IsCoding() {
		return DefaultCodingMarks
	}
	return DefaultMCQMarks
}

// AnswerKey maps MCQ question ids to the correct option index.
type AnswerKey map[string]int

// QuestionSet is an ordered question list together with its answer key.
type QuestionSet struct {
	Questions []Question `json:"questions"`
	Key       AnswerKey  `json:"-"`
}

// Index returns the position of the question with the given id, or -1.
func (s *QuestionSet) Index(id string) int {
	for i, q := range s.Questions {
		if q.ID == id {
			return i
		}
	}
	return -1
}
