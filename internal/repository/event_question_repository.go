package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/tara/internal/model"
)

// EventQuestionRepository handles event question data access.
type EventQuestionRepository struct {
	pool *pgxpool.Pool
}

// NewEventQuestionRepository creates a new EventQuestionRepository.
func NewEventQuestionRepository(pool *pgxpool.Pool) *EventQuestionRepository {
	return &EventQuestionRepository{pool: pool}
}

// ListByEvent retrieves the ordered question set of an event together with
// the MCQ answer key. An unknown event yields an empty set.
func (r *EventQuestionRepository) ListByEvent(ctx context.Context, eventID string) (*model.QuestionSet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, question_text, question_type, options, correct_option, marks, test_cases
		 FROM event_questions WHERE event_id = $1
		 ORDER BY position`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query event questions: %w", err)
	}
	defer rows.Close()

	set := &model.QuestionSet{Key: model.AnswerKey{}}
	for rows.Next() {
		var (
			q       model.Question
			correct *int32
			cases   int32
		)
		if err := rows.Scan(&q.ID, &q.Text, &q.Type, &q.Options, &correct, &q.Marks, &cases); err != nil {
			return nil, fmt.Errorf("scan event question: %w", err)
		}
		q.TestCases = int(cases)
		if correct != nil && !q.IsCoding() {
			set.Key[q.ID] = int(*correct)
		}
		set.Questions = append(set.Questions, q)
	}
	return set, rows.Err()
}
