// Package proctor implements the proctored test session: the start/resume
// gate, the countdown, lives and violations, answer bookkeeping and the
// submission flow. The session owns its state behind one mutex; persistence,
// view publication, audit records and submissions run after the lock is released.
package proctor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/checkpoint"
	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/model"
)

// Config identifies a session.
type Config struct {
	// ID is generated when empty.
	ID      string
	UserID  string
	Mode    model.TestMode
	Exam    model.ExamContext
	Options Options
}

// Session is one user's attempt at one test mode.
type Session struct {
	id      string
	attempt string
	userID  string
	mode    model.TestMode
	opts    Options
	deps    Deps
	log     zerolog.Logger
	monitor *Monitor
	spawn   func(func())

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	exam       model.ExamContext
	status     Status
	failReason string
	lastReason SubmitReason
	lives      int
	set        model.QuestionSet
	answers    map[string]model.Answer
	marked     map[string]bool
	current    int
	remaining  int
	codeEntry  string
	started    bool
	resumable  bool
	camera     *media.Stream
	screen     *media.Stream
	usage      model.EnvironmentUsage
	timer      *countdown
	timerGen   uint64
	confirm    *Confirmation
	errMsg     string
	infoMsg    string
	notice     *Notice
	noticeSeq  uint64
	noticeT    *time.Timer
	navT       *time.Timer
	receipt    *model.ResultReceipt
	rev        uint64
	closed     bool

	// submitSince marks an auto submission in flight (unix millis).
	submitSince int64
	// awaiting is set while a reload waits on an earlier connection's
	// auto submission.
	awaiting bool
	pollT    *time.Timer
}

// effects are computed under the lock and applied after it is released.
type effects struct {
	view     *View
	snapshot *model.Snapshot
	records  []model.ViolationRecord
	release  []*media.Stream
	job      *submitJob
	finalize bool
}

// New creates a session in Lobby. Call Open before anything else.
func New(cfg Config, deps Deps) *Session {
	opts := cfg.Options.withDefaults()
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		attempt:   id,
		userID:    cfg.UserID,
		mode:      cfg.Mode,
		opts:      opts,
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		exam:      cfg.Exam,
		status:    StatusLobby,
		lives:     opts.InitialLives,
		remaining: int(opts.Duration / time.Second),
		answers:   make(map[string]model.Answer),
		marked:    make(map[string]bool),
		spawn:     func(f func()) { go f() },
	}
	s.log = deps.Log.With().
		Str("component", "proctor_session").
		Str("session_id", id).
		Str("mode", string(cfg.Mode)).
		Str("event_id", cfg.Exam.EventID).
		Logger()
	s.monitor = NewMonitor(deps.Environment, deps.Media, deps.Fullscreen, s.log)
	return s
}

func (s *Session) ID() string { return s.id }

// Open restores any saved snapshot, loads the question set and starts the
// violation monitor. A restored snapshot with no lives left or no time left
// is submitted straight away, unless an earlier connection is still
// submitting it; then the session waits for that submission to settle.
func (s *Session) Open(ctx context.Context) error {
	snap, err := s.deps.Store.Load(ctx)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCorrupt) {
			s.log.Warn().Msg("Saved progress was corrupted, starting fresh")
		} else {
			s.log.Error().Err(err).Msg("Failed to load saved progress, starting fresh")
		}
		snap = nil
	}

	s.mu.Lock()
	if snap.HasProgress() {
		saved := snap.ExamContext.EventID
		if saved != "" && s.exam.EventID != "" && saved != s.exam.EventID {
			s.log.Info().Str("saved_event_id", saved).Msg("Ignoring saved progress of another event")
		} else {
			s.restoreLocked(snap)
		}
	}
	eventID := s.exam.EventID
	s.mu.Unlock()

	set, err := s.deps.Questions.Questions(ctx, s.mode, eventID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if set == nil || len(set.Questions) == 0 {
		return ErrNoQuestions
	}

	s.mu.Lock()
	s.set = model.QuestionSet{Questions: set.Questions, Key: set.Key}
	s.pruneLocked()
	s.current = clampIndex(s.current, len(s.set.Questions))
	s.monitor.SetHandler(s.handleViolation)

	var fx effects
	switch {
	case s.started && s.submitSince > 0 && !s.pendingStaleLocked(s.submitSince):
		s.awaitSubmissionLocked()
	case s.started && s.lives == 0:
		s.beginSubmitLocked(ReasonLives, &fx)
	case s.started && s.remaining == 0:
		s.beginSubmitLocked(ReasonTimer, &fx)
	}
	s.commitLocked(&fx)
	s.mu.Unlock()

	s.monitor.Start()
	s.apply(fx)
	s.log.Info().Int("questions", len(set.Questions)).Bool("resumable", s.Status() != StatusSubmitting && snap.HasProgress()).Msg("Session opened")
	return nil
}

func (s *Session) restoreLocked(snap *model.Snapshot) {
	s.answers = model.CloneAnswers(snap.Answers)
	s.marked = model.CloneMarks(snap.MarkedForReview)
	s.lives = min(max(snap.Lives, 0), s.opts.InitialLives)
	s.remaining = min(max(snap.TimeRemaining, 0), int(s.opts.Duration/time.Second))
	s.current = snap.CurrentIndex
	s.started = snap.IsTestStarted
	s.resumable = true
	if s.exam.EventID == "" {
		s.exam = snap.ExamContext
	}
	if snap.SessionID != "" {
		s.attempt = snap.SessionID
	}
	if snap.SubmitReason != "" {
		s.lastReason = SubmitReason(snap.SubmitReason)
	}
	s.submitSince = snap.SubmittingSince
	s.log.Info().Int("lives", s.lives).Int("time_remaining", s.remaining).Str("attempt", s.attempt).Msg("Restored saved progress")
}

// pruneLocked drops answers and marks for questions no longer in the set,
// and answers that are empty or do not fit their question.
func (s *Session) pruneLocked() {
	for id, a := range s.answers {
		i := s.set.Index(id)
		if i < 0 || a.IsZero() || validateAnswer(s.set.Questions[i], a) != nil {
			delete(s.answers, id)
		}
	}
	for id := range s.marked {
		if s.set.Index(id) < 0 {
			delete(s.marked, id)
		}
	}
}

// ─── Devices ───────────────────────────────────────────────

// SetCamera turns the camera and microphone on or off. Turning it off while
// Running costs a life.
func (s *Session) SetCamera(ctx context.Context, on bool) error {
	if !on {
		return s.dropStream(media.KindCamera)
	}
	if live, err := s.deviceLive(media.KindCamera); err != nil || live {
		return err
	}
	stream, err := s.deps.Media.AcquireCamera(ctx)
	if err != nil {
		s.setError(deviceErrorMessage(media.KindCamera, err))
		return err
	}
	return s.attachStream(media.KindCamera, stream)
}

// SetScreen starts or stops the full-monitor screen share. Stopping it
// while Running costs a life.
func (s *Session) SetScreen(ctx context.Context, on bool) error {
	if !on {
		return s.dropStream(media.KindScreen)
	}
	if live, err := s.deviceLive(media.KindScreen); err != nil || live {
		return err
	}
	stream, err := s.deps.Media.AcquireScreen(ctx)
	if err != nil {
		s.setError(deviceErrorMessage(media.KindScreen, err))
		return err
	}
	return s.attachStream(media.KindScreen, stream)
}

// SetFullscreen enters or leaves fullscreen. Leaving while Running is
// reported by the fullscreen adapter and costs a life.
func (s *Session) SetFullscreen(ctx context.Context, on bool) error {
	if _, err := s.deviceLive(""); err != nil {
		return err
	}

	var err error
	if on {
		err = s.deps.Fullscreen.Enter(ctx)
	} else {
		err = s.deps.Fullscreen.Exit(ctx)
	}

	s.mu.Lock()
	var fx effects
	switch {
	case on && err != nil:
		s.errMsg = "Fullscreen is not available. Allow fullscreen and try again."
	case on:
		s.usage.FullscreenUsed = true
		s.clearChecklistErrorLocked()
	}
	s.publishLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return err
}

// Refresh re-reads device state, e.g. after the host reports a change that
// raised no violation. A broken setup while Running costs a life.
func (s *Session) Refresh() {
	s.mu.Lock()
	var fx effects
	if s.status == StatusRunning {
		if v, broken := s.deviceViolationLocked(); broken {
			s.violateLocked(v, &fx)
		}
	}
	s.commitLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
}

// deviceLive rejects device changes once submission started and reports
// whether the stream of kind is already live. A camera stream counts only
// while both its video and audio tracks are.
func (s *Session) deviceLive(kind media.Kind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.terminalLocked() {
		return false, ErrInvalidTransition
	}
	switch kind {
	case media.KindCamera:
		return s.camera.Live(media.TrackVideo) && s.camera.Live(media.TrackAudio), nil
	case media.KindScreen:
		return s.screen.Live(media.TrackVideo), nil
	}
	return false, nil
}

func (s *Session) attachStream(kind media.Kind, stream *media.Stream) error {
	s.mu.Lock()
	if s.closed || s.terminalLocked() {
		s.mu.Unlock()
		s.deps.Media.Release(stream)
		return ErrInvalidTransition
	}

	var fx effects
	var old *media.Stream
	if kind == media.KindCamera {
		old, s.camera = s.camera, stream
		s.usage.CameraEnabled = true
	} else {
		old, s.screen = s.screen, stream
		s.usage.ScreenShareEnabled = true
	}
	if old != nil && old != stream {
		fx.release = append(fx.release, old)
	}
	s.clearChecklistErrorLocked()
	s.publishLocked(&fx)
	s.mu.Unlock()

	s.apply(fx)
	s.log.Info().Str("kind", string(kind)).Msg("Device enabled")
	return nil
}

func (s *Session) dropStream(kind media.Kind) error {
	s.mu.Lock()
	var fx effects
	var stream *media.Stream
	violation := ViolationCameraLost
	if kind == media.KindCamera {
		stream, s.camera = s.camera, nil
	} else {
		stream, s.screen = s.screen, nil
		violation = ViolationScreenLost
	}
	if stream != nil {
		fx.release = append(fx.release, stream)
		if s.status == StatusRunning {
			s.violateLocked(newViolation(violation), &fx)
		}
	}
	s.commitLocked(&fx)
	s.mu.Unlock()

	s.apply(fx)
	return nil
}

func (s *Session) devicesLocked() DeviceState {
	return DeviceState{
		CameraOn:        s.camera.Live(media.TrackVideo),
		MicTrackPresent: s.camera.Live(media.TrackAudio),
		ScreenSharing:   s.screen.Live(media.TrackVideo),
		Fullscreen:      s.deps.Fullscreen.IsActive(),
	}
}

// deviceViolationLocked maps the first broken device condition to a violation.
func (s *Session) deviceViolationLocked() (Violation, bool) {
	d := s.devicesLocked()
	switch {
	case !d.CameraOn:
		return newViolation(ViolationCameraLost), true
	case !d.MicTrackPresent:
		return newViolation(ViolationMicLost), true
	case !d.ScreenSharing:
		return newViolation(ViolationScreenLost), true
	case !d.Fullscreen:
		return newViolation(ViolationFullscreenExit), true
	}
	return Violation{}, false
}

// ─── Gate ──────────────────────────────────────────────────

// EnterCode updates the security code entry, truncated to six characters.
func (s *Session) EnterCode(code string) error {
	s.mu.Lock()
	if s.status != StatusLobby && s.status != StatusPaused {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	var fx effects
	s.codeEntry = truncateCode(strings.TrimSpace(code))
	if s.errMsg == (&GateError{Reason: GateWrongCode}).Message() {
		s.errMsg = ""
	}
	s.publishLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

// Start moves Lobby or Paused to Running once the gate passes. Devices are
// checked before the code; a failing gate returns a *GateError.
func (s *Session) Start() error {
	s.mu.Lock()
	if err := s.startableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if gerr := s.checklistLocked(); gerr != nil {
		return s.rejectLocked(gerr)
	}
	entry := s.codeEntry
	s.mu.Unlock()

	ok := s.opts.Code != nil && s.opts.Code.Verify(entry)

	s.mu.Lock()
	if err := s.startableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if gerr := s.checklistLocked(); gerr != nil {
		return s.rejectLocked(gerr)
	}
	if !ok {
		return s.rejectLocked(&GateError{Reason: GateWrongCode})
	}

	var fx effects
	resumed := s.status == StatusPaused || s.resumable
	s.enterRunningLocked()
	s.commitLocked(&fx)
	s.mu.Unlock()

	s.apply(fx)
	s.log.Info().Bool("resumed", resumed).Int("lives", fx.view.Lives).Msg("Test running")
	return nil
}

func (s *Session) startableLocked() error {
	if s.closed || (s.status != StatusLobby && s.status != StatusPaused) {
		return ErrInvalidTransition
	}
	if len(s.set.Questions) == 0 {
		return ErrNoQuestions
	}
	return nil
}

func (s *Session) checklistLocked() *GateError {
	d := s.devicesLocked()
	switch {
	case !d.CameraOn:
		return &GateError{Reason: GateCameraOff}
	case !d.MicTrackPresent:
		return &GateError{Reason: GateMicMissing}
	case !d.ScreenSharing:
		return &GateError{Reason: GateScreenNotShared}
	case !d.Fullscreen:
		return &GateError{Reason: GateNotFullscreen}
	}
	return nil
}

// rejectLocked publishes the gate failure and releases the lock.
func (s *Session) rejectLocked(gerr *GateError) error {
	var fx effects
	s.errMsg = gerr.Message()
	s.publishLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return gerr
}

func (s *Session) enterRunningLocked() {
	s.status = StatusRunning
	s.started = true
	s.resumable = false
	s.codeEntry = ""
	s.errMsg = ""
	s.infoMsg = ""
	s.monitor.SetHandler(s.handleViolation)
	s.startTimerLocked()
}

func (s *Session) clearChecklistErrorLocked() {
	if s.errMsg == "" {
		return
	}
	if s.status == StatusLobby || s.status == StatusPaused {
		if s.checklistLocked() == nil || !strings.HasPrefix(s.errMsg, "Test paused") {
			s.errMsg = ""
		}
	}
}

// ─── Timer ─────────────────────────────────────────────────

func (s *Session) startTimerLocked() {
	s.stopTimerLocked()
	gen := s.timerGen
	s.timer = startCountdown(s.opts.TickInterval, func() { s.tick(gen) })
}

// stopTimerLocked cancels the countdown and invalidates ticks in flight.
func (s *Session) stopTimerLocked() {
	s.timer.cancel()
	s.timer = nil
	s.timerGen++
}

// Tick advances the clock by one step. The countdown calls it every
// TickInterval while Running; it is a no-op in any other status.
func (s *Session) Tick() {
	s.mu.Lock()
	gen := s.timerGen
	s.mu.Unlock()
	s.tick(gen)
}

func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if s.status != StatusRunning || gen != s.timerGen {
		s.mu.Unlock()
		return
	}

	var fx effects
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining == 0 {
		s.log.Info().Msg("Time is up, auto-submitting")
		s.beginSubmitLocked(ReasonTimer, &fx)
	} else if v, broken := s.deviceViolationLocked(); broken {
		s.violateLocked(v, &fx)
	}
	s.commitLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
}

// ─── Violations ────────────────────────────────────────────

func (s *Session) handleViolation(v Violation) {
	s.mu.Lock()
	var fx effects
	if s.status == StatusRunning {
		s.violateLocked(v, &fx)
		s.commitLocked(&fx)
	} else {
		s.publishLocked(&fx)
	}
	s.mu.Unlock()
	s.apply(fx)
}

// violateLocked costs one life. The session pauses, or submits when no
// lives are left. Only a Running session can be penalized.
func (s *Session) violateLocked(v Violation, fx *effects) {
	if s.status != StatusRunning {
		return
	}

	s.lives = max(s.lives-1, 0)
	s.stopTimerLocked()
	s.confirm = nil
	s.codeEntry = ""
	fx.records = append(fx.records, model.ViolationRecord{
		SessionID:  s.attempt,
		UserID:     s.userID,
		EventID:    s.exam.EventID,
		Mode:       string(s.mode),
		Kind:       string(v.Kind),
		Reason:     v.Reason,
		LivesLeft:  s.lives,
		RecordedAt: time.Now().Unix(),
	})
	s.log.Warn().Str("kind", string(v.Kind)).Int("lives", s.lives).Msg("Violation, life lost")

	if s.lives == 0 {
		s.log.Warn().Msg("No lives left, auto-submitting")
		s.beginSubmitLocked(ReasonLives, fx)
		return
	}

	s.status = StatusPaused
	s.infoMsg = ""
	s.errMsg = fmt.Sprintf("Test paused: %s. Restore your setup and re-enter the security code to resume.", v.Reason)
	s.showNoticeLocked(v)
}

func (s *Session) showNoticeLocked(v Violation) {
	s.noticeSeq++
	seq := s.noticeSeq
	s.notice = &Notice{
		Kind:      v.Kind,
		Message:   fmt.Sprintf("Life lost: %s. %d of %d lives left.", v.Reason, s.lives, s.opts.InitialLives),
		LivesLeft: s.lives,
	}
	if s.noticeT != nil {
		s.noticeT.Stop()
	}
	s.noticeT = time.AfterFunc(s.opts.LifeNoticeDelay, func() { s.dismissNotice(seq) })
}

func (s *Session) dismissNotice(seq uint64) {
	s.mu.Lock()
	if s.notice == nil || s.noticeSeq != seq || s.closed {
		s.mu.Unlock()
		return
	}
	var fx effects
	s.notice = nil
	s.publishLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
}

// ─── Answers ───────────────────────────────────────────────

// SelectAnswer records an answer. A nil or zero answer removes it.
func (s *Session) SelectAnswer(questionID string, a *model.Answer) error {
	s.mu.Lock()
	q, err := s.questionLocked(questionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if a == nil || a.IsZero() {
		if _, ok := s.answers[questionID]; !ok {
			s.mu.Unlock()
			return nil
		}
		delete(s.answers, questionID)
	} else {
		if err := validateAnswer(q, *a); err != nil {
			s.mu.Unlock()
			return err
		}
		if prev, ok := s.answers[questionID]; ok && prev.Equal(*a) {
			s.mu.Unlock()
			return nil
		}
		s.answers[questionID] = cloneAnswer(*a)
	}

	var fx effects
	s.commitLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

// ToggleMarkForReview flips the review flag of a question.
func (s *Session) ToggleMarkForReview(questionID string) error {
	s.mu.Lock()
	if _, err := s.questionLocked(questionID); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.marked[questionID] {
		delete(s.marked, questionID)
	} else {
		s.marked[questionID] = true
	}

	var fx effects
	s.commitLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

// SetCurrentIndex moves to a question. Out-of-range indices are clamped.
func (s *Session) SetCurrentIndex(i int) error {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	i = clampIndex(i, len(s.set.Questions))
	if i == s.current {
		s.mu.Unlock()
		return nil
	}
	s.current = i

	var fx effects
	s.commitLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

func (s *Session) questionLocked(id string) (model.Question, error) {
	if s.status != StatusRunning {
		return model.Question{}, ErrNotRunning
	}
	i := s.set.Index(id)
	if i < 0 {
		return model.Question{}, ErrUnknownQuestion
	}
	return s.set.Questions[i], nil
}

func (s *Session) unansweredLocked() int {
	n := 0
	for _, q := range s.set.Questions {
		if _, ok := s.answers[q.ID]; !ok {
			n++
		}
	}
	return n
}

func validateAnswer(q model.Question, a model.Answer) error {
	if q.IsCoding() {
		c := a.Coding
		if c == nil || a.Option != nil || c.Total < 0 || c.Passed < 0 || c.Passed > c.Total {
			return ErrInvalidAnswer
		}
		return nil
	}
	if a.Option == nil || a.Coding != nil || *a.Option < 0 {
		return ErrInvalidAnswer
	}
	if len(q.Options) > 0 && *a.Option >= len(q.Options) {
		return ErrInvalidAnswer
	}
	return nil
}

func cloneAnswer(a model.Answer) model.Answer {
	if a.Option != nil {
		return model.OptionAnswer(*a.Option)
	}
	return model.CodingAnswer(*a.Coding)
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// ─── Lifecycle ─────────────────────────────────────────────

// View returns the current render model.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close stops the clock and the monitor and releases devices. Saved progress
// stays so the test can be resumed; an auto submission already under way
// still completes.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	if s.noticeT != nil {
		s.noticeT.Stop()
	}
	if s.navT != nil {
		s.navT.Stop()
	}
	if s.pollT != nil {
		s.pollT.Stop()
	}
	streams := []*media.Stream{s.camera, s.screen}
	s.camera, s.screen = nil, nil
	status := s.status
	s.mu.Unlock()

	s.monitor.Stop()
	for _, st := range streams {
		s.deps.Media.Release(st)
	}
	s.cancel()
	s.log.Info().Str("status", string(status)).Msg("Session closed")
}

func (s *Session) terminalLocked() bool {
	switch s.status {
	case StatusSubmitting, StatusSubmitted, StatusFailed:
		return true
	}
	return false
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	var fx effects
	s.errMsg = msg
	s.publishLocked(&fx)
	s.mu.Unlock()
	s.apply(fx)
}

// persistableLocked reports whether the snapshot may be written. A session
// waiting on another connection's submission never writes, and a closed one
// only writes to drop the marker of a failed auto submission.
func (s *Session) persistableLocked() bool {
	switch {
	case s.status == StatusSubmitted || s.awaiting:
		return false
	case s.closed:
		return s.status == StatusFailed
	case s.status == StatusRunning || s.status == StatusPaused:
		return true
	case s.status == StatusSubmitting || s.status == StatusFailed:
		return true
	}
	return len(s.answers) > 0
}

func (s *Session) snapshotLocked() *model.Snapshot {
	return &model.Snapshot{
		Answers:         model.CloneAnswers(s.answers),
		MarkedForReview: model.CloneMarks(s.marked),
		Lives:           s.lives,
		TimeRemaining:   s.remaining,
		CurrentIndex:    s.current,
		IsTestStarted:   s.started,
		ExamContext:     s.exam,
		SessionID:       s.attempt,
		SubmittingSince: s.submitSince,
		SubmitReason:    string(s.lastReason),
		Revision:        s.rev,
	}
}

// publishLocked bumps the revision and queues the view.
func (s *Session) publishLocked(fx *effects) {
	s.rev++
	v := s.viewLocked()
	fx.view = &v
}

// commitLocked publishes the view and queues a snapshot when one may be written.
func (s *Session) commitLocked(fx *effects) {
	s.publishLocked(fx)
	if s.persistableLocked() {
		fx.snapshot = s.snapshotLocked()
	}
}

// apply runs side effects outside the lock.
func (s *Session) apply(fx effects) {
	for _, st := range fx.release {
		s.deps.Media.Release(st)
	}
	if s.deps.Violations != nil {
		for _, rec := range fx.records {
			if err := s.deps.Violations.Record(context.WithoutCancel(s.ctx), rec); err != nil {
				s.log.Error().Err(err).Str("kind", rec.Kind).Msg("Failed to record violation")
			}
		}
	}
	if fx.finalize {
		s.finalize()
	}
	if fx.snapshot != nil {
		if err := s.deps.Store.Save(context.WithoutCancel(s.ctx), fx.snapshot); err != nil && !errors.Is(err, checkpoint.ErrSealed) {
			s.log.Error().Err(err).Msg("Failed to save progress")
		}
	}
	if fx.view != nil && s.deps.OnChange != nil {
		s.deps.OnChange(*fx.view)
	}
	if fx.job != nil {
		job := fx.job
		s.spawn(func() { s.runSubmission(job) })
	}
}

func deviceErrorMessage(kind media.Kind, err error) string {
	switch {
	case errors.Is(err, media.ErrWrongSurface):
		return "Share your entire screen, not a window or a browser tab."
	case errors.Is(err, media.ErrNoVideo):
		return "No camera was found."
	case errors.Is(err, media.ErrDenied) && kind == media.KindCamera:
		return "Camera and microphone access was denied."
	case errors.Is(err, media.ErrDenied):
		return "Screen sharing was cancelled or denied."
	case kind == media.KindCamera:
		return "Could not start the camera. Try again."
	default:
		return "Could not start screen sharing. Try again."
	}
}
