package proctor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/model"
)

// Options tunes a session. Zero values take the defaults below.
type Options struct {
	TestTitle       string
	Code            CodeVerifier
	InitialLives    int
	Duration        time.Duration
	TickInterval    time.Duration
	LifeNoticeDelay time.Duration
	RedirectDelay   time.Duration
	RedirectTo      string
	SubmitAttempts  int
	SubmitRetryBase time.Duration
	// SubmitGrace is how long a reload waits on an auto submission started
	// by an earlier connection before submitting again itself.
	SubmitGrace         time.Duration
	PendingPollInterval time.Duration
}

const (
	DefaultInitialLives    = 5
	DefaultDuration        = time.Hour
	DefaultTickInterval    = time.Second
	DefaultLifeNoticeDelay = 3 * time.Second
	DefaultRedirectDelay   = 2 * time.Second
	DefaultRedirectTo      = "/dashboard"
	DefaultSubmitAttempts  = 4
	DefaultSubmitRetryBase = 500 * time.Millisecond
	DefaultSubmitGrace     = 2 * time.Minute
	DefaultPendingPoll     = time.Second
	DefaultTestTitle       = "Tara Assessment"
)

func (o Options) withDefaults() Options {
	if o.TestTitle == "" {
		o.TestTitle = DefaultTestTitle
	}
	if o.InitialLives <= 0 {
		o.InitialLives = DefaultInitialLives
	}
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.LifeNoticeDelay <= 0 {
		o.LifeNoticeDelay = DefaultLifeNoticeDelay
	}
	if o.RedirectDelay <= 0 {
		o.RedirectDelay = DefaultRedirectDelay
	}
	if o.RedirectTo == "" {
		o.RedirectTo = DefaultRedirectTo
	}
	if o.SubmitAttempts <= 0 {
		o.SubmitAttempts = DefaultSubmitAttempts
	}
	if o.SubmitRetryBase <= 0 {
		o.SubmitRetryBase = DefaultSubmitRetryBase
	}
	if o.SubmitGrace <= 0 {
		o.SubmitGrace = DefaultSubmitGrace
	}
	if o.PendingPollInterval <= 0 {
		o.PendingPollInterval = DefaultPendingPoll
	}
	return o
}

// Media is the media acquisition adapter as seen by a session.
type Media interface {
	StopSource
	AcquireCamera(ctx context.Context) (*media.Stream, error)
	AcquireScreen(ctx context.Context) (*media.Stream, error)
	Release(s *media.Stream)
}

// Fullscreen is the fullscreen adapter as seen by a session.
type Fullscreen interface {
	ExitSource
	Enter(ctx context.Context) error
	Exit(ctx context.Context) error
	IsActive() bool
}

// Checkpointer persists the session snapshot.
type Checkpointer interface {
	Load(ctx context.Context) (*model.Snapshot, error)
	Save(ctx context.Context, snap *model.Snapshot) error
	Clear(ctx context.Context) error
}

// QuestionSource returns the question set for a mode and optional event.
type QuestionSource interface {
	Questions(ctx context.Context, mode model.TestMode, eventID string) (*model.QuestionSet, error)
}

// Submitter delivers a result to the Results API.
type Submitter interface {
	Submit(ctx context.Context, payload *model.ResultPayload) (*model.ResultReceipt, error)
}

// Outbox accepts auto-submitted results the Results API could not take.
type Outbox interface {
	Enqueue(ctx context.Context, payload *model.ResultPayload) error
}

// ViolationSink records violations for the audit log.
type ViolationSink interface {
	Record(ctx context.Context, rec model.ViolationRecord) error
}

// Deps are the collaborators of a Session. Outbox, Violations,
// Environment and the hooks are optional.
type Deps struct {
	Media       Media
	Fullscreen  Fullscreen
	Environment Environment
	Store       Checkpointer
	Questions   QuestionSource
	Submitter   Submitter
	Outbox      Outbox
	Violations  ViolationSink
	Log         zerolog.Logger

	// OnChange receives every new view, outside the session lock.
	OnChange func(View)
	// OnNavigate is called once, RedirectDelay after a successful submission.
	OnNavigate func(to string)
}
