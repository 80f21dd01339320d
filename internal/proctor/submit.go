package proctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/model"
)

var errEarlierSubmissionFailed = errors.New("earlier submission failed")

type submitJob struct {
	payload *model.ResultPayload
	auto    bool
}

// Submit starts a manual submission. With unanswered questions it asks for
// confirmation first and returns ErrConfirmationRequired.
func (s *Session) Submit() error {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}

	var fx effects
	if n := s.unansweredLocked(); n > 0 {
		s.confirm = &Confirmation{Unanswered: n}
		s.infoMsg = fmt.Sprintf("%d of %d questions are unanswered. Submit anyway?", n, len(s.set.Questions))
		s.publishLocked(&fx)
		s.mu.Unlock()
		s.apply(fx)
		return ErrConfirmationRequired
	}

	s.beginSubmitLocked(ReasonManual, &fx)
	s.commitLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

// ConfirmSubmit submits after the unanswered-questions prompt.
func (s *Session) ConfirmSubmit() error {
	s.mu.Lock()
	if s.status != StatusRunning || s.confirm == nil {
		s.mu.Unlock()
		return ErrNoConfirmationPending
	}

	var fx effects
	s.beginSubmitLocked(ReasonManual, &fx)
	s.commitLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

// CancelSubmitConfirmation dismisses the prompt and keeps the test running.
func (s *Session) CancelSubmitConfirmation() {
	s.mu.Lock()
	if s.confirm == nil {
		s.mu.Unlock()
		return
	}
	var fx effects
	s.confirm = nil
	s.infoMsg = ""
	s.publishLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
}

// RetrySubmit re-runs a submission that ended in Failed.
func (s *Session) RetrySubmit() error {
	s.mu.Lock()
	if s.status != StatusFailed {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	var fx effects
	s.failReason = ""
	s.beginSubmitLocked(s.lastReason, &fx)
	s.commitLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

// beginSubmitLocked freezes the attempt and queues the submission job. An
// auto submission is marked in the snapshot so a reload does not submit the
// same attempt again while it is in flight.
func (s *Session) beginSubmitLocked(reason SubmitReason, fx *effects) {
	s.stopTimerLocked()
	s.status = StatusSubmitting
	s.awaiting = false
	s.lastReason = reason
	s.confirm = nil
	s.notice = nil
	s.errMsg = ""
	s.infoMsg = "Submitting your test..."

	auto := reason != ReasonManual
	s.submitSince = 0
	if auto {
		s.submitSince = time.Now().UnixMilli()
	}
	fx.job = &submitJob{payload: s.payloadLocked(reason, auto), auto: auto}
	s.log.Info().Str("reason", string(reason)).Bool("auto", auto).Msg("Submitting test")
}

func (s *Session) payloadLocked(reason SubmitReason, auto bool) *model.ResultPayload {
	r := Score(s.set.Questions, s.set.Key, s.answers)
	return &model.ResultPayload{
		TestTitle:       s.opts.TestTitle,
		EventID:         s.exam.EventID,
		EventName:       s.exam.EventName,
		Mode:            s.mode,
		Answers:         model.CloneAnswers(s.answers),
		MarkedForReview: model.CloneMarks(s.marked),
		CorrectAnswers:  r.Correct,
		Score:           r.Score,
		TotalMarks:      r.TotalMarks,
		TotalQuestions:  len(s.set.Questions),
		TimeSpent:       int(s.opts.Duration/time.Second) - s.remaining,
		Environment:     s.usage,
		AutoSubmitted:   auto,
		SubmitReason:    string(reason),
		LivesRemaining:  s.lives,
		UserID:          s.userID,
		SessionID:       s.attempt,
	}
}

// runSubmission delivers the payload. A manual submission gets one attempt;
// an auto submission retries with exponential backoff and then falls back to
// the outbox. Auto submissions outlive Close.
func (s *Session) runSubmission(job *submitJob) {
	ctx := s.ctx
	attempts := 1
	if job.auto {
		ctx = context.WithoutCancel(s.ctx)
		attempts = s.opts.SubmitAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if werr := sleepCtx(ctx, s.opts.SubmitRetryBase<<(i-1)); werr != nil {
				err = werr
				break
			}
		}
		var receipt *model.ResultReceipt
		receipt, err = s.deps.Submitter.Submit(ctx, job.payload)
		if err == nil {
			s.completeSubmission(receipt)
			return
		}
		s.log.Warn().Err(err).Int("attempt", i+1).Bool("auto", job.auto).Msg("Submission attempt failed")
	}

	if !job.auto {
		s.manualSubmissionFailed(err)
		return
	}

	if s.deps.Outbox != nil {
		qerr := s.deps.Outbox.Enqueue(ctx, job.payload)
		if qerr == nil {
			s.log.Info().Msg("Result queued for later delivery")
			s.completeSubmission(&model.ResultReceipt{TotalQuestions: job.payload.TotalQuestions, Score: job.payload.Score, Queued: true})
			return
		}
		s.log.Error().Err(qerr).Msg("Failed to queue result")
		err = fmt.Errorf("%w; queue: %v", err, qerr)
	}
	s.autoSubmissionFailed(err)
}

func (s *Session) completeSubmission(receipt *model.ResultReceipt) {
	s.mu.Lock()
	if s.status != StatusSubmitting {
		s.mu.Unlock()
		return
	}

	var fx effects
	s.status = StatusSubmitted
	s.awaiting = false
	s.submitSince = 0
	s.receipt = receipt
	s.errMsg = ""
	s.infoMsg = "Test submitted successfully."
	if receipt != nil && receipt.Queued {
		s.infoMsg = "Your answers were saved and will be submitted shortly."
	}
	for _, st := range []*media.Stream{s.camera, s.screen} {
		if st != nil {
			fx.release = append(fx.release, st)
		}
	}
	s.camera, s.screen = nil, nil
	fx.finalize = true
	s.publishLocked(&fx)
	s.mu.Unlock()

	s.apply(fx)
	s.log.Info().Bool("queued", receipt != nil && receipt.Queued).Msg("Test submitted")
}

// manualSubmissionFailed returns to Running, or to Paused without losing a
// life when the setup broke meanwhile.
func (s *Session) manualSubmissionFailed(err error) {
	s.mu.Lock()
	if s.status != StatusSubmitting {
		s.mu.Unlock()
		return
	}

	var fx effects
	s.infoMsg = ""
	s.submitSince = 0
	if _, broken := s.deviceViolationLocked(); broken || s.closed {
		s.status = StatusPaused
		s.codeEntry = ""
	} else {
		s.status = StatusRunning
		s.monitor.SetHandler(s.handleViolation)
		s.startTimerLocked()
	}
	s.errMsg = fmt.Sprintf("Submission failed: %v. Please try again.", err)
	s.commitLocked(&fx)
	s.mu.Unlock()

	s.apply(fx)
}

func (s *Session) autoSubmissionFailed(err error) {
	s.mu.Lock()
	if s.status != StatusSubmitting {
		s.mu.Unlock()
		return
	}

	var fx effects
	s.status = StatusFailed
	s.awaiting = false
	s.submitSince = 0
	s.failReason = err.Error()
	s.infoMsg = ""
	s.errMsg = "Your test could not be submitted. Your answers are saved; retry the submission."
	s.commitLocked(&fx)
	s.mu.Unlock()

	s.apply(fx)
	s.log.Error().Err(err).Msg("Auto submission failed")
}

// awaitSubmissionLocked shows the restored attempt as submitting while the
// connection that started the submission finishes it.
func (s *Session) awaitSubmissionLocked() {
	s.status = StatusSubmitting
	s.awaiting = true
	s.resumable = false
	s.infoMsg = "Your test is being submitted..."
	s.pollT = time.AfterFunc(s.opts.PendingPollInterval, s.pollPending)
	s.log.Info().Str("attempt", s.attempt).Msg("Waiting on a submission in progress")
}

func (s *Session) pendingStaleLocked(since int64) bool {
	return time.Now().UnixMilli()-since >= s.opts.SubmitGrace.Milliseconds()
}

// pollPending follows the saved snapshot while awaiting: a cleared snapshot
// means the submission went through, a cleared marker means it failed, and a
// marker older than SubmitGrace is taken over with the same attempt id.
func (s *Session) pollPending() {
	snap, err := s.deps.Store.Load(context.WithoutCancel(s.ctx))

	s.mu.Lock()
	if s.closed || !s.awaiting || s.status != StatusSubmitting {
		s.mu.Unlock()
		return
	}

	var fx effects
	switch {
	case err == nil && snap == nil:
		s.awaiting = false
		s.mu.Unlock()
		s.log.Info().Msg("Earlier submission completed")
		s.completeSubmission(nil)
		return
	case err == nil && snap.SubmittingSince == 0:
		s.awaiting = false
		if snap.SubmitReason != "" {
			s.lastReason = SubmitReason(snap.SubmitReason)
		}
		s.mu.Unlock()
		s.autoSubmissionFailed(errEarlierSubmissionFailed)
		return
	case err == nil && snap.SubmittingSince != s.submitSince:
		s.submitSince = snap.SubmittingSince
	}

	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to poll pending submission")
	}
	if s.pendingStaleLocked(s.submitSince) {
		s.log.Warn().Str("attempt", s.attempt).Msg("Earlier submission stalled, submitting again")
		s.beginSubmitLocked(s.autoReasonLocked(), &fx)
		s.commitLocked(&fx)
	} else {
		s.pollT = time.AfterFunc(s.opts.PendingPollInterval, s.pollPending)
	}
	s.mu.Unlock()
	s.apply(fx)
}

func (s *Session) autoReasonLocked() SubmitReason {
	switch {
	case s.lastReason != "" && s.lastReason != ReasonManual:
		return s.lastReason
	case s.lives == 0:
		return ReasonLives
	}
	return ReasonTimer
}

// finalize runs once after a successful submission: it stops monitoring,
// clears saved progress, leaves fullscreen and schedules navigation.
func (s *Session) finalize() {
	s.monitor.Stop()

	ctx := context.WithoutCancel(s.ctx)
	if err := s.deps.Store.Clear(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to clear saved progress")
	}
	if err := s.deps.Fullscreen.Exit(ctx); err != nil {
		s.log.Debug().Err(err).Msg("Exit fullscreen after submit failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.deps.OnNavigate == nil {
		return
	}
	to := s.opts.RedirectTo
	s.navT = time.AfterFunc(s.opts.RedirectDelay, func() { s.deps.OnNavigate(to) })
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
