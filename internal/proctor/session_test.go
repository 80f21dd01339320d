package proctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stemsi/tara/internal/checkpoint"
	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/model"
	"github.com/stretchr/testify/require"
)

func requireGate(t *testing.T, err error, reason GateReason) {
	t.Helper()
	var gerr *GateError
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, reason, gerr.Reason)
}

func TestOpenStartsInLobby(t *testing.T) {
	h := newHarness(t)

	v := h.s.View()
	require.Equal(t, StatusLobby, v.Status)
	require.Equal(t, 5, v.Lives)
	require.Equal(t, 3600, v.TimeRemaining)
	require.Equal(t, 10, v.TotalQuestions)
	require.Equal(t, "Begin", v.StartLabel)
	require.False(t, v.LockInput)
	require.Equal(t, []string{"ev-1"}, h.questions.eventIDs)
	require.Nil(t, h.saved())
}

func TestOpenWithoutQuestions(t *testing.T) {
	h := newHarness(t)
	h.s.Close()
	h.questions.set = &model.QuestionSet{}

	s := New(h.cfg, Deps{
		Media:      h.media,
		Fullscreen: h.fs,
		Store:      checkpoint.New(h.store, snapshotKey, h.s.log),
		Questions:  h.questions,
		Submitter:  h.submitter,
	})
	require.ErrorIs(t, s.Open(context.Background()), ErrNoQuestions)
}

func TestStartGateChecksDevicesBeforeCode(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.capturer.results[media.KindCamera] = &media.Capture{Tracks: []media.TrackKind{media.TrackVideo}}
	})
	ctx := context.Background()

	require.NoError(t, h.s.EnterCode(testCode))
	requireGate(t, h.s.Start(), GateCameraOff)
	require.Equal(t, "Turn on your camera to continue.", h.s.View().Banner.Message)

	require.NoError(t, h.s.SetCamera(ctx, true))
	requireGate(t, h.s.Start(), GateMicMissing)

	h.capturer.results[media.KindCamera] = &media.Capture{Tracks: []media.TrackKind{media.TrackVideo, media.TrackAudio}}
	require.NoError(t, h.s.SetCamera(ctx, false))
	require.NoError(t, h.s.SetCamera(ctx, true))
	requireGate(t, h.s.Start(), GateScreenNotShared)

	require.NoError(t, h.s.SetScreen(ctx, true))
	requireGate(t, h.s.Start(), GateNotFullscreen)

	require.NoError(t, h.s.SetFullscreen(ctx, true))
	require.NoError(t, h.s.Start())
	require.Equal(t, StatusRunning, h.s.Status())
}

func TestStartRejectsWrongCode(t *testing.T) {
	h := newHarness(t)
	h.setup()

	for _, code := range []string{"", "00000", "654321"} {
		require.NoError(t, h.s.EnterCode(code))
		requireGate(t, h.s.Start(), GateWrongCode)
		require.Equal(t, StatusLobby, h.s.Status())
	}

	require.NoError(t, h.s.EnterCode("1234567"))
	require.Equal(t, 6, h.s.View().CodeLength)
	require.NoError(t, h.s.Start())

	v := h.s.View()
	require.Equal(t, StatusRunning, v.Status)
	require.True(t, v.LockInput)
	require.Nil(t, v.Banner)
}

func TestViolationPausesAndCostsOneLife(t *testing.T) {
	h := newHarness(t)
	h.run()
	h.s.Tick()
	require.Equal(t, 3599, h.s.View().TimeRemaining)

	h.tabSwitch()

	v := h.s.View()
	require.Equal(t, StatusPaused, v.Status)
	require.Equal(t, 4, v.Lives)
	require.Equal(t, "Resume", v.StartLabel)
	require.NotNil(t, v.Notice)
	require.Equal(t, ViolationTabHidden, v.Notice.Kind)
	require.Equal(t, BannerError, v.Banner.Level)
	require.Equal(t, 1, h.sink.count())
	require.Equal(t, "TAB_HIDDEN", h.sink.records[0].Kind)
	require.Equal(t, 4, h.sink.records[0].LivesLeft)

	// the clock is frozen while paused
	h.s.Tick()
	require.Equal(t, 3599, h.s.View().TimeRemaining)

	snap := h.saved()
	require.Equal(t, 4, snap.Lives)
	require.True(t, snap.IsTestStarted)
}

func TestViolationsIgnoredOutsideRunning(t *testing.T) {
	h := newHarness(t)
	h.setup()

	h.tabSwitch()
	h.env.emit(Signal{Kind: SignalFocus, Value: false})
	require.Equal(t, 5, h.s.View().Lives)

	require.NoError(t, h.s.Start())
	h.tabSwitch()
	require.Equal(t, 4, h.s.View().Lives)

	// a second signal while paused costs nothing
	h.env.emit(Signal{Kind: SignalFocus, Value: false})
	h.env.emit(Signal{Kind: SignalVisibility, Value: true})
	require.Equal(t, 4, h.s.View().Lives)
	require.Equal(t, 1, h.sink.count())
}

func TestResumeRequiresCodeAgain(t *testing.T) {
	h := newHarness(t)
	h.run()
	h.tabSwitch()

	requireGate(t, h.s.Start(), GateWrongCode)
	require.Equal(t, StatusPaused, h.s.Status())

	h.resume()
	require.Equal(t, 4, h.s.View().Lives)
}

func TestExplicitDeviceOffCostsLife(t *testing.T) {
	h := newHarness(t)
	h.run()

	require.NoError(t, h.s.SetCamera(context.Background(), false))

	v := h.s.View()
	require.Equal(t, StatusPaused, v.Status)
	require.Equal(t, 4, v.Lives)
	require.False(t, v.Devices.CameraOn)
	require.Equal(t, "CAMERA_LOST", h.sink.records[0].Kind)
	require.Len(t, h.capturer.stopped, 1)
}

func TestFullscreenExitCostsLife(t *testing.T) {
	h := newHarness(t)
	h.run()

	h.fs.Changed(false)

	v := h.s.View()
	require.Equal(t, StatusPaused, v.Status)
	require.Equal(t, 4, v.Lives)
	require.Equal(t, ViolationFullscreenExit, v.Notice.Kind)
}

func TestTrackEndedCostsLife(t *testing.T) {
	h := newHarness(t)
	h.run()

	h.media.TrackEnded("camera-1", media.TrackAudio)
	h.media.TrackEnded("camera-1", media.TrackVideo)

	v := h.s.View()
	require.Equal(t, StatusPaused, v.Status)
	require.Equal(t, 4, v.Lives)
	require.Equal(t, "MIC_LOST", h.sink.records[0].Kind)
}

func TestTickDetectsBrokenSetup(t *testing.T) {
	h := newHarness(t)
	h.run()

	// an exit the monitor never saw
	h.s.monitor.Stop()
	h.fs.Changed(false)
	require.Equal(t, StatusRunning, h.s.Status())

	h.s.Tick()
	v := h.s.View()
	require.Equal(t, StatusPaused, v.Status)
	require.Equal(t, 4, v.Lives)
}

func TestLifeNoticeIsDismissed(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.LifeNoticeDelay = 10 * time.Millisecond
	})
	h.run()
	h.tabSwitch()
	require.NotNil(t, h.s.View().Notice)

	require.Eventually(t, func() bool {
		return h.s.View().Notice == nil
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, StatusPaused, h.s.Status())
}

func TestLosingLastLifeAutoSubmits(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.InitialLives = 2
	})
	h.run()
	h.answer("q1", 1)

	h.tabSwitch()
	require.Equal(t, StatusPaused, h.s.Status())
	h.resume()
	h.tabSwitch()

	v := h.s.View()
	require.Equal(t, StatusSubmitted, v.Status)
	require.Equal(t, 0, v.Lives)
	require.Nil(t, v.Notice)

	p := h.submitter.last()
	require.NotNil(t, p)
	require.True(t, p.AutoSubmitted)
	require.Equal(t, "lives", p.SubmitReason)
	require.Equal(t, 0, p.LivesRemaining)
	require.Equal(t, 2, h.sink.count())

	require.Nil(t, h.saved())
	require.False(t, h.fs.IsActive())
	require.Equal(t, 1, h.display.exits)

	select {
	case to := <-h.navigated:
		require.Equal(t, "/dashboard", to)
	case <-time.After(time.Second):
		t.Fatal("expected navigation after submission")
	}
}

func TestTimerExpiryAutoSubmits(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.Duration = 3 * time.Second
	})
	h.run()
	h.answer("q1", 1)

	h.s.Tick()
	h.s.Tick()
	require.Equal(t, StatusRunning, h.s.Status())
	h.s.Tick()

	require.Equal(t, StatusSubmitted, h.s.Status())
	p := h.submitter.last()
	require.Equal(t, "timer", p.SubmitReason)
	require.True(t, p.AutoSubmitted)
	require.Equal(t, 3, p.TimeSpent)
	require.Equal(t, 1, h.submitter.calls)

	// ticks after submission change nothing
	h.s.Tick()
	require.Equal(t, 0, h.s.View().TimeRemaining)
}

func TestCountdownRunsInBackground(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.TickInterval = 5 * time.Millisecond
	})
	h.run()

	require.Eventually(t, func() bool {
		return h.s.View().TimeRemaining < 3600
	}, time.Second, 5*time.Millisecond)

	h.tabSwitch()
	frozen := h.s.View().TimeRemaining
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, frozen, h.s.View().TimeRemaining)
}

func TestSelectAnswer(t *testing.T) {
	h := newHarness(t)
	a := model.OptionAnswer(1)
	require.ErrorIs(t, h.s.SelectAnswer("q1", &a), ErrNotRunning)

	h.run()
	require.ErrorIs(t, h.s.SelectAnswer("nope", &a), ErrUnknownQuestion)
	bad := model.OptionAnswer(7)
	require.ErrorIs(t, h.s.SelectAnswer("q1", &bad), ErrInvalidAnswer)
	code := model.CodingAnswer(model.CodingSubmission{Passed: 1, Total: 2})
	require.ErrorIs(t, h.s.SelectAnswer("q1", &code), ErrInvalidAnswer)

	h.answer("q1", 2)
	h.answer("q2", 0)
	require.Len(t, h.s.View().Answers, 2)
	require.Equal(t, 2, *h.saved().Answers["q1"].Option)

	require.NoError(t, h.s.SelectAnswer("q1", nil))
	v := h.s.View()
	require.Len(t, v.Answers, 1)
	require.Equal(t, 9, v.Unanswered)
	require.NotContains(t, h.saved().Answers, "q1")
}

func TestMarkAndNavigate(t *testing.T) {
	h := newHarness(t)
	h.run()

	require.NoError(t, h.s.ToggleMarkForReview("q3"))
	require.True(t, h.s.View().MarkedForReview["q3"])
	require.NoError(t, h.s.ToggleMarkForReview("q3"))
	require.Empty(t, h.s.View().MarkedForReview)

	require.NoError(t, h.s.SetCurrentIndex(4))
	require.Equal(t, "q5", h.s.View().CurrentQuestion.ID)
	require.NoError(t, h.s.SetCurrentIndex(99))
	require.Equal(t, 9, h.s.View().CurrentIndex)
	require.NoError(t, h.s.SetCurrentIndex(-3))
	require.Equal(t, 0, h.s.View().CurrentIndex)
	require.Equal(t, 0, h.saved().CurrentIndex)
}

func TestSubmitNeedsConfirmationForUnanswered(t *testing.T) {
	h := newHarness(t)
	h.run()
	h.answer("q1", 1)

	require.ErrorIs(t, h.s.Submit(), ErrConfirmationRequired)
	v := h.s.View()
	require.Equal(t, StatusRunning, v.Status)
	require.Equal(t, 9, v.Confirm.Unanswered)

	h.s.CancelSubmitConfirmation()
	require.Nil(t, h.s.View().Confirm)
	require.ErrorIs(t, h.s.ConfirmSubmit(), ErrNoConfirmationPending)

	require.ErrorIs(t, h.s.Submit(), ErrConfirmationRequired)
	require.NoError(t, h.s.ConfirmSubmit())

	require.Equal(t, StatusSubmitted, h.s.Status())
	p := h.submitter.last()
	require.False(t, p.AutoSubmitted)
	require.Equal(t, "manual", p.SubmitReason)
	require.Equal(t, 1, p.CorrectAnswers)
	require.Equal(t, 10, p.TotalQuestions)
	require.Equal(t, model.EnvironmentUsage{CameraEnabled: true, ScreenShareEnabled: true, FullscreenUsed: true}, p.Environment)
	require.Equal(t, "res-1", h.s.View().Receipt.ID)
}

func TestManualSubmitFailureKeepsRunning(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.questions.set = mcqSet(1)
	})
	h.run()
	h.answer("q1", 1)
	h.submitter.fail = 1

	require.NoError(t, h.s.Submit())

	v := h.s.View()
	require.Equal(t, StatusRunning, v.Status)
	require.Equal(t, 5, v.Lives)
	require.Equal(t, BannerError, v.Banner.Level)
	require.Equal(t, 1, h.submitter.calls)
	require.NotNil(t, h.saved())

	require.NoError(t, h.s.Submit())
	require.Equal(t, StatusSubmitted, h.s.Status())
	require.Nil(t, h.saved())
}

func TestAutoSubmitFallsBackToOutbox(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.Duration = time.Second
	})
	h.run()
	h.submitter.fail = -1

	h.s.Tick()

	v := h.s.View()
	require.Equal(t, StatusSubmitted, v.Status)
	require.True(t, v.Receipt.Queued)
	require.Equal(t, 2, h.submitter.calls)
	require.Len(t, h.outbox.queued, 1)
	require.Equal(t, "timer", h.outbox.queued[0].SubmitReason)
	require.Nil(t, h.saved())
}

func TestAutoSubmitFailureCanBeRetried(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.Duration = time.Second
	})
	h.run()
	h.answer("q1", 1)
	h.submitter.fail = -1
	h.outbox.err = errors.New("redis down")

	h.s.Tick()

	v := h.s.View()
	require.Equal(t, StatusFailed, v.Status)
	require.NotEmpty(t, v.FailReason)
	require.Equal(t, BannerError, v.Banner.Level)
	require.NotNil(t, h.saved())
	require.ErrorIs(t, h.s.Start(), ErrInvalidTransition)

	h.submitter.fail = 0
	require.NoError(t, h.s.RetrySubmit())
	require.Equal(t, StatusSubmitted, h.s.Status())
	require.Equal(t, "timer", h.submitter.last().SubmitReason)
	require.Nil(t, h.saved())
}

func TestRestoreResumesInLobby(t *testing.T) {
	h := newHarness(t)
	h.run()
	h.answer("q1", 1)
	require.NoError(t, h.s.ToggleMarkForReview("q2"))
	require.NoError(t, h.s.SetCurrentIndex(3))
	h.s.Tick()
	h.tabSwitch()
	h.s.Close()

	s := h.open()
	v := s.View()
	require.Equal(t, StatusLobby, v.Status)
	require.True(t, v.Resumable)
	require.Equal(t, "Resume", v.StartLabel)
	require.Equal(t, 4, v.Lives)
	require.Equal(t, 3599, v.TimeRemaining)
	require.Equal(t, 3, v.CurrentIndex)
	require.Equal(t, 1, *v.Answers["q1"].Option)
	require.True(t, v.MarkedForReview["q2"])
	require.False(t, v.Devices.CameraOn)
}

func TestRestoreWithNoLivesSubmits(t *testing.T) {
	h := newHarness(t)
	h.s.Close()
	snap := &model.Snapshot{
		Answers:       map[string]model.Answer{"q1": model.OptionAnswer(1)},
		Lives:         0,
		TimeRemaining: 1200,
		IsTestStarted: true,
		ExamContext:   model.ExamContext{EventID: "ev-1"},
	}
	require.NoError(t, checkpoint.New(h.store, snapshotKey, h.s.log).Save(context.Background(), snap))

	s := h.open()
	require.Equal(t, StatusSubmitted, s.Status())
	p := h.submitter.last()
	require.Equal(t, "lives", p.SubmitReason)
	require.Equal(t, 2400, p.TimeSpent)
	require.Nil(t, h.saved())
}

func TestRestoreIgnoresOtherEvent(t *testing.T) {
	h := newHarness(t)
	h.s.Close()
	snap := &model.Snapshot{
		Answers:       map[string]model.Answer{"q1": model.OptionAnswer(1)},
		Lives:         3,
		TimeRemaining: 100,
		IsTestStarted: true,
		ExamContext:   model.ExamContext{EventID: "ev-other"},
	}
	require.NoError(t, checkpoint.New(h.store, snapshotKey, h.s.log).Save(context.Background(), snap))

	v := h.open().View()
	require.False(t, v.Resumable)
	require.Equal(t, 5, v.Lives)
	require.Empty(t, v.Answers)
}

func TestRestoreAdoptsSavedEvent(t *testing.T) {
	h := newHarness(t)
	h.s.Close()
	snap := &model.Snapshot{
		Lives:         5,
		TimeRemaining: 100,
		IsTestStarted: true,
		ExamContext:   model.ExamContext{EventID: "ev-9", EventName: "Mock"},
	}
	require.NoError(t, checkpoint.New(h.store, snapshotKey, h.s.log).Save(context.Background(), snap))
	h.cfg.Exam = model.ExamContext{}
	h.questions.eventIDs = nil

	v := h.open().View()
	require.Equal(t, "ev-9", v.Exam.EventID)
	require.Equal(t, []string{"ev-9"}, h.questions.eventIDs)
}

func TestNothingHappensAfterSubmission(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.questions.set = mcqSet(1)
	})
	h.run()
	h.answer("q1", 1)
	require.NoError(t, h.s.Submit())
	require.Equal(t, StatusSubmitted, h.s.Status())

	a := model.OptionAnswer(0)
	require.ErrorIs(t, h.s.SelectAnswer("q1", &a), ErrNotRunning)
	require.ErrorIs(t, h.s.Start(), ErrInvalidTransition)
	require.ErrorIs(t, h.s.SetCamera(context.Background(), true), ErrInvalidTransition)
	h.tabSwitch()
	h.s.Tick()
	require.Equal(t, 5, h.s.View().Lives)
	require.Nil(t, h.saved())
	require.Zero(t, h.sink.count())
}

func TestWrongSurfaceIsRejected(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.capturer.results[media.KindScreen] = &media.Capture{Surface: media.SurfaceWindow, Tracks: []media.TrackKind{media.TrackVideo}}
	})

	err := h.s.SetScreen(context.Background(), true)
	require.ErrorIs(t, err, media.ErrWrongSurface)

	v := h.s.View()
	require.False(t, v.Devices.ScreenSharing)
	require.Equal(t, "Share your entire screen, not a window or a browser tab.", v.Banner.Message)
}

func TestFullscreenUnavailable(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.display.fail = errors.New("not allowed")
	})

	err := h.s.SetFullscreen(context.Background(), true)
	require.Error(t, err)
	require.False(t, h.s.View().Devices.Fullscreen)
	require.Equal(t, BannerError, h.s.View().Banner.Level)
}

func TestCloseKeepsProgress(t *testing.T) {
	h := newHarness(t)
	h.run()
	h.answer("q1", 1)

	h.s.Close()
	h.s.Close()

	require.NotNil(t, h.saved())
	require.Len(t, h.capturer.stopped, 2)
}

func TestEightOfTenScenario(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.Duration = 10 * time.Second
	})
	h.run()
	for _, id := range []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8"} {
		h.answer(id, 1)
	}

	h.tabSwitch()
	require.Equal(t, StatusPaused, h.s.Status())
	require.Equal(t, 4, h.s.View().Lives)

	h.resume()
	for i := 0; i < 10; i++ {
		h.s.Tick()
	}

	require.Equal(t, StatusSubmitted, h.s.Status())
	p := h.submitter.last()
	require.Equal(t, 8, p.CorrectAnswers)
	require.InDelta(t, 8.0, p.Score, 1e-9)
	require.InDelta(t, 10.0, p.TotalMarks, 1e-9)
	require.Equal(t, 10, p.TotalQuestions)
	require.Equal(t, 4, p.LivesRemaining)
	require.True(t, p.AutoSubmitted)
	require.Equal(t, "timer", p.SubmitReason)
	require.Len(t, p.Answers, 8)
	require.Equal(t, "ev-1", p.EventID)
	require.Nil(t, h.saved())
}

func TestReloadWaitsForSubmissionInFlight(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.PendingPollInterval = 5 * time.Millisecond
	})
	h.submitter.hold = make(chan struct{})
	h.submitter.entered = make(chan struct{}, 1)
	h.s.spawn = func(f func()) { go f() }
	h.run()
	h.answer("q1", 1)

	for i := 0; i < 5; i++ {
		h.tabSwitch()
		if i < 4 {
			h.resume()
		}
	}
	select {
	case <-h.submitter.entered:
	case <-time.After(time.Second):
		t.Fatal("expected the auto submission to start")
	}
	require.Equal(t, StatusSubmitting, h.s.Status())
	require.NotZero(t, h.saved().SubmittingSince)
	h.s.Close()

	h.cfg.ID = "sess-2"
	s := h.open()
	v := s.View()
	require.Equal(t, StatusSubmitting, v.Status)
	require.False(t, v.Resumable)
	require.ErrorIs(t, s.SetCamera(context.Background(), true), ErrInvalidTransition)
	require.NotNil(t, h.saved())

	close(h.submitter.hold)
	require.Eventually(t, func() bool { return s.Status() == StatusSubmitted }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, h.submitter.callCount())
	require.Equal(t, "sess-1", h.submitter.last().SessionID)
	require.Nil(t, h.saved())
}

func TestStalledSubmissionIsTakenOver(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.SubmitGrace = 50 * time.Millisecond
		h.cfg.Options.PendingPollInterval = 5 * time.Millisecond
	})
	h.s.Close()
	snap := &model.Snapshot{
		Answers:         map[string]model.Answer{"q1": model.OptionAnswer(1)},
		Lives:           0,
		TimeRemaining:   1200,
		IsTestStarted:   true,
		ExamContext:     model.ExamContext{EventID: "ev-1"},
		SessionID:       "attempt-1",
		SubmittingSince: time.Now().UnixMilli(),
		SubmitReason:    "lives",
	}
	require.NoError(t, checkpoint.New(h.store, snapshotKey, h.s.log).Save(context.Background(), snap))

	h.cfg.ID = "sess-2"
	s := h.open()
	require.Equal(t, StatusSubmitting, s.Status())
	require.Zero(t, h.submitter.callCount())

	require.Eventually(t, func() bool { return s.Status() == StatusSubmitted }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, h.submitter.callCount())
	p := h.submitter.last()
	require.Equal(t, "attempt-1", p.SessionID)
	require.Equal(t, "lives", p.SubmitReason)
	require.Nil(t, h.saved())
}

func TestReloadAfterEarlierSubmissionFailed(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cfg.Options.PendingPollInterval = 5 * time.Millisecond
	})
	h.s.Close()
	snap := &model.Snapshot{
		Answers:         map[string]model.Answer{"q1": model.OptionAnswer(1)},
		Lives:           3,
		TimeRemaining:   0,
		IsTestStarted:   true,
		ExamContext:     model.ExamContext{EventID: "ev-1"},
		SessionID:       "attempt-1",
		SubmittingSince: time.Now().UnixMilli(),
		SubmitReason:    "timer",
	}
	cp := checkpoint.New(h.store, snapshotKey, h.s.log)
	require.NoError(t, cp.Save(context.Background(), snap))

	s := h.open()
	require.Equal(t, StatusSubmitting, s.Status())

	// the earlier connection gives up and drops its marker
	snap.SubmittingSince = 0
	require.NoError(t, cp.Save(context.Background(), snap))

	require.Eventually(t, func() bool { return s.Status() == StatusFailed }, time.Second, 5*time.Millisecond)
	require.Zero(t, h.submitter.callCount())

	require.NoError(t, s.RetrySubmit())
	require.Equal(t, StatusSubmitted, s.Status())
	p := h.submitter.last()
	require.Equal(t, "attempt-1", p.SessionID)
	require.Equal(t, "timer", p.SubmitReason)
}

func TestCameraRestartRecoversLostMic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setup()

	h.media.TrackEnded("camera-1", media.TrackAudio)
	require.False(t, h.s.View().Devices.MicTrackPresent)
	requireGate(t, h.s.Start(), GateMicMissing)

	require.NoError(t, h.s.SetCamera(ctx, true))
	require.True(t, h.s.View().Devices.MicTrackPresent)
	require.Contains(t, h.capturer.stopped, "camera-1")
	require.NoError(t, h.s.Start())
	require.Equal(t, StatusRunning, h.s.Status())
}

func TestCameraRestartAfterMicLostWhileRunning(t *testing.T) {
	h := newHarness(t)
	h.run()

	h.media.TrackEnded("camera-1", media.TrackAudio)
	require.Equal(t, StatusPaused, h.s.Status())
	requireGate(t, h.s.Start(), GateMicMissing)

	require.NoError(t, h.s.SetCamera(context.Background(), true))
	h.resume()
	require.Equal(t, 4, h.s.View().Lives)
}

func TestRestoreDropsEmptyAndInvalidAnswers(t *testing.T) {
	h := newHarness(t)
	h.s.Close()
	require.NoError(t, h.store.Set(context.Background(), snapshotKey, []byte(`{
		"answers": {"q1": null, "q2": 9, "q3": 2, "q4": {"passed": 1, "total": 1}, "gone": 1},
		"lives": 3, "timeRemaining": 100, "isTestStarted": true,
		"examContext": {"eventId": "ev-1"}
	}`)))

	h.s = h.open()
	v := h.s.View()
	require.Len(t, v.Answers, 1)
	require.Equal(t, 2, *v.Answers["q3"].Option)

	h.setup()
	require.NoError(t, h.s.Start())
	require.ErrorIs(t, h.s.Submit(), ErrConfirmationRequired)
	require.Equal(t, 9, h.s.View().Confirm.Unanswered)
}
