package service

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/config"
	"github.com/stemsi/tara/internal/model"
)

//go:embed questions/*.json
var defaultQuestionFS embed.FS

// eventQuestionCacheTTL bounds how long an event's question set is served from Redis.
const eventQuestionCacheTTL = 10 * time.Minute

var errAnswerKeyMissing = errors.New("answer key missing for cached MCQ questions")

// EventQuestionFinder loads the question set configured for an event.
type EventQuestionFinder interface {
	ListByEvent(ctx context.Context, eventID string) (*model.QuestionSet, error)
}

// questionFile is the on-disk shape of a default question. Answer never
// leaves the service.
type questionFile struct {
	ID        string             `json:"id"`
	Text      string             `json:"text"`
	Type      model.QuestionType `json:"type"`
	Options   []string           `json:"options"`
	Answer    *int               `json:"answer"`
	Marks     *float64           `json:"marks"`
	TestCases int                `json:"test_cases"`
}

// QuestionService provides question sets: the event's own set when it has
// one, otherwise the built-in default set of the test mode.
type QuestionService struct {
	repo     EventQuestionFinder
	rdb      *redis.Client
	log      zerolog.Logger
	defaults map[model.TestMode]*model.QuestionSet
}

// NewQuestionService creates a new QuestionService. repo and rdb may be nil,
// in which case only the default sets are served.
func NewQuestionService(repo EventQuestionFinder, rdb *redis.Client, log zerolog.Logger) (*QuestionService, error) {
	defaults := make(map[model.TestMode]*model.QuestionSet, 2)
	for _, mode := range []model.TestMode{model.TestModeMCQ, model.TestModeCoding} {
		set, err := loadDefaultQuestions(mode)
		if err != nil {
			return nil, err
		}
		defaults[mode] = set
	}

	return &QuestionService{
		repo:     repo,
		rdb:      rdb,
		log:      log.With().Str("component", "question_service").Logger(),
		defaults: defaults,
	}, nil
}

func loadDefaultQuestions(mode model.TestMode) (*model.QuestionSet, error) {
	raw, err := defaultQuestionFS.ReadFile("questions/" + string(mode) + ".json")
	if err != nil {
		return nil, fmt.Errorf("read default %s questions: %w", mode, err)
	}

	var files []questionFile
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("decode default %s questions: %w", mode, err)
	}

	set := &model.QuestionSet{Key: model.AnswerKey{}}
	for _, f := range files {
		q := model.Question{
			ID:        f.ID,
			Text:      f.Text,
			Type:      f.Type,
			Options:   f.Options,
			Marks:     f.Marks,
			TestCases: f.TestCases,
		}
		if q.Type == "" {
			q.Type = model.QuestionTypeMCQ
		}
		if f.Answer != nil && !q.IsCoding() {
			set.Key[q.ID] = *f.Answer
		}
		set.Questions = append(set.Questions, q)
	}
	return set, nil
}

// Defaults returns a copy of the built-in question set for mode.
func (s *QuestionService) Defaults(mode model.TestMode) (*model.QuestionSet, error) {
	set, ok := s.defaults[mode]
	if !ok {
		return nil, fmt.Errorf("no default questions for mode %q", mode)
	}
	return copySet(set), nil
}

// Questions returns the event's question set when it is non-empty and the
// default set of mode otherwise. A failing event lookup falls back to the defaults.
func (s *QuestionService) Questions(ctx context.Context, mode model.TestMode, eventID string) (*model.QuestionSet, error) {
	if eventID != "" {
		set, err := s.EventQuestions(ctx, eventID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("event_id", eventID).Msg("Event questions unavailable, using defaults")
		case len(set.Questions) > 0:
			return set, nil
		}
	}
	return s.Defaults(mode)
}

// EventQuestions loads an event's question set, read through the Redis cache.
func (s *QuestionService) EventQuestions(ctx context.Context, eventID string) (*model.QuestionSet, error) {
	if set, ok := s.cached(ctx, eventID); ok {
		return set, nil
	}
	if s.repo == nil {
		return &model.QuestionSet{}, nil
	}

	set, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event questions: %w", err)
	}
	if set == nil {
		return &model.QuestionSet{}, nil
	}
	if len(set.Questions) > 0 {
		s.store(ctx, eventID, set)
	}
	return set, nil
}

func (s *QuestionService) cached(ctx context.Context, eventID string) (*model.QuestionSet, bool) {
	if s.rdb == nil {
		return nil, false
	}

	raw, err := s.rdb.Get(ctx, config.CacheKey.EventQuestionsKey(eventID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("event_id", eventID).Msg("Question cache read failed")
		}
		return nil, false
	}

	fields, err := s.rdb.HGetAll(ctx, config.CacheKey.EventAnswerKey(eventID)).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("Answer key cache read failed")
		return nil, false
	}

	set, err := decodeCachedSet(raw, fields)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("Discarding question cache")
		return nil, false
	}
	return set, true
}

// decodeCachedSet rebuilds a question set from its two cache entries. The
// answer key lives in its own hash and may be evicted alone, so an empty key
// next to MCQ questions is an error rather than a set nobody can score on.
func decodeCachedSet(questions []byte, key map[string]string) (*model.QuestionSet, error) {
	set := &model.QuestionSet{Key: make(model.AnswerKey, len(key))}
	if err := json.Unmarshal(questions, &set.Questions); err != nil {
		return nil, fmt.Errorf("decode cached questions: %w", err)
	}
	for id, v := range key {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("decode cached answer key %q: %w", id, err)
		}
		set.Key[id] = n
	}
	if len(set.Key) == 0 {
		for _, q := range set.Questions {
			if !q.IsCoding() {
				return nil, errAnswerKeyMissing
			}
		}
	}
	return set, nil
}

func (s *QuestionService) store(ctx context.Context, eventID string, set *model.QuestionSet) {
	if s.rdb == nil {
		return
	}

	raw, err := json.Marshal(set.Questions)
	if err != nil {
		return
	}
	keyKey := config.CacheKey.EventAnswerKey(eventID)

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keyKey)
	if len(set.Key) > 0 {
		fields := make(map[string]interface{}, len(set.Key))
		for id, opt := range set.Key {
			fields[id] = opt
		}
		pipe.HSet(ctx, keyKey, fields)
		pipe.Expire(ctx, keyKey, eventQuestionCacheTTL)
	}
	pipe.Set(ctx, config.CacheKey.EventQuestionsKey(eventID), raw, eventQuestionCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("Question cache write failed")
	}
}

func copySet(set *model.QuestionSet) *model.QuestionSet {
	out := &model.QuestionSet{
		Questions: make([]model.Question, len(set.Questions)),
		Key:       make(model.AnswerKey, len(set.Key)),
	}
	copy(out.Questions, set.Questions)
	for k, v := range set.Key {
		out.Key[k] = v
	}
	return out
}
