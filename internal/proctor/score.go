package proctor

import "github.com/stemsi/tara/internal/model"

// ScoreResult is the outcome of grading a session's answers.
type ScoreResult struct {
	Score      float64
	TotalMarks float64
	Correct    int
	Answered   int
	Unanswered int
}

// Score grades answers against the key. MCQ questions earn their marks on an
// exact option match; coding questions earn passed/total of their marks.
// Unanswered questions contribute nothing.
func Score(questions []model.Question, key model.AnswerKey, answers map[string]model.Answer) ScoreResult {
	var r ScoreResult
	for _, q := range questions {
		marks := q.MarkValue()
		r.TotalMarks += marks

		a, ok := answers[q.ID]
		if !ok || a.IsZero() {
			r.Unanswered++
			continue
		}
		r.Answered++

		if q.IsCoding() {
			c := a.Coding
			if c == nil || c.Total <= 0 {
				continue
			}
			passed := min(max(c.Passed, 0), c.Total)
			r.Score += float64(passed) / float64(c.Total) * marks
			if passed == c.Total {
				r.Correct++
			}
			continue
		}

		want, hasKey := key[q.ID]
		if a.Option != nil && hasKey && *a.Option == want {
			r.Score += marks
			r.Correct++
		}
	}
	return r
}
