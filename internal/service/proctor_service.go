package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/checkpoint"
	"github.com/stemsi/tara/internal/config"
	"github.com/stemsi/tara/internal/fullscreen"
	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/model"
	"github.com/stemsi/tara/internal/proctor"
)

// Platform is the host side of one connection: capture, fullscreen and
// environment signals.
type Platform interface {
	media.Capturer
	fullscreen.Display
	proctor.Environment
}

// SessionParams describes a session to open.
type SessionParams struct {
	User     *model.User
	Cookie   string
	Mode     model.TestMode
	Exam     model.ExamContext
	Platform Platform

	OnChange   func(proctor.View)
	OnNavigate func(to string)
}

// ActiveSession is an opened session with the adapters its host feeds.
type ActiveSession struct {
	*proctor.Session
	Media      *media.Adapter
	Fullscreen *fullscreen.Adapter

	key     string
	evicted chan struct{}
	once    sync.Once
}

// Evicted is closed when the same user opened the same test elsewhere.
func (a *ActiveSession) Evicted() <-chan struct{} {
	return a.evicted
}

func (a *ActiveSession) evict() {
	a.once.Do(func() { close(a.evicted) })
}

// ProctorService builds sessions and keeps at most one live session per
// user and test mode.
type ProctorService struct {
	cfg         config.ProctorConfig
	code        proctor.CodeVerifier
	questions   proctor.QuestionSource
	submissions *SubmissionService
	outbox      proctor.Outbox
	violations  proctor.ViolationSink
	store       checkpoint.Store
	log         zerolog.Logger

	mu     sync.Mutex
	active map[string]*ActiveSession
}

// NewProctorService creates a new ProctorService. outbox and violations may be nil.
func NewProctorService(
	cfg config.ProctorConfig,
	questions proctor.QuestionSource,
	submissions *SubmissionService,
	outbox proctor.Outbox,
	violations proctor.ViolationSink,
	store checkpoint.Store,
	log zerolog.Logger,
) (*ProctorService, error) {
	code, err := proctor.NewCodeVerifier(cfg.SecurityCode, cfg.SecurityCodeHash)
	if err != nil {
		return nil, fmt.Errorf("security code: %w", err)
	}

	return &ProctorService{
		cfg:         cfg,
		code:        code,
		questions:   questions,
		submissions: submissions,
		outbox:      outbox,
		violations:  violations,
		store:       store,
		log:         log.With().Str("component", "proctor_service").Logger(),
		active:      make(map[string]*ActiveSession),
	}, nil
}

func (s *ProctorService) options() proctor.Options {
	return proctor.Options{
		TestTitle:       s.cfg.TestTitle,
		Code:            s.code,
		InitialLives:    s.cfg.InitialLives,
		Duration:        s.cfg.Duration,
		LifeNoticeDelay: s.cfg.LifeNoticeDelay,
		RedirectDelay:   s.cfg.RedirectDelay,
		RedirectTo:      s.cfg.RedirectTo,
		SubmitAttempts:  s.cfg.SubmitAttempts,
		SubmitRetryBase: s.cfg.SubmitRetryBase,
		SubmitGrace:     s.cfg.SubmitGrace,
	}
}

// Open builds and opens a session. A session of the same user and mode that
// is still open elsewhere is evicted first.
func (s *ProctorService) Open(ctx context.Context, p SessionParams) (*ActiveSession, error) {
	log := s.log.With().Str("user_id", p.User.ID).Logger()
	key := config.CacheKey.SnapshotKey(p.User.ID, string(p.Mode))

	ma := media.NewAdapter(p.Platform, log)
	fa := fullscreen.NewAdapter(p.Platform, log)
	sess := proctor.New(proctor.Config{
		UserID:  p.User.ID,
		Mode:    p.Mode,
		Exam:    p.Exam,
		Options: s.options(),
	}, proctor.Deps{
		Media:       ma,
		Fullscreen:  fa,
		Environment: p.Platform,
		Store:       checkpoint.New(s.store, key, log),
		Questions:   s.questions,
		Submitter:   s.submissions.ForCookie(p.Cookie),
		Outbox:      s.outbox,
		Violations:  s.violations,
		Log:         log,
		OnChange:    p.OnChange,
		OnNavigate:  p.OnNavigate,
	})
	as := &ActiveSession{Session: sess, Media: ma, Fullscreen: fa, key: key, evicted: make(chan struct{})}

	s.mu.Lock()
	prev := s.active[key]
	s.active[key] = as
	s.mu.Unlock()

	if prev != nil {
		log.Info().Str("previous_session_id", prev.ID()).Msg("Evicting session opened elsewhere")
		prev.evict()
		prev.Close()
	}

	if err := sess.Open(ctx); err != nil {
		s.Release(as)
		return nil, fmt.Errorf("open session: %w", err)
	}
	return as, nil
}

// Release closes as and forgets it.
func (s *ProctorService) Release(as *ActiveSession) {
	s.mu.Lock()
	if s.active[as.key] == as {
		delete(s.active, as.key)
	}
	s.mu.Unlock()
	as.Close()
}

// ActiveCount returns the number of live sessions.
func (s *ProctorService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
