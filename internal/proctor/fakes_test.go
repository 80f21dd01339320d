package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/checkpoint"
	"github.com/stemsi/tara/internal/fullscreen"
	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/model"
	"github.com/stretchr/testify/require"
)

const (
	testCode    = "123456"
	snapshotKey = "proctor:user:u-1:test:mcq:snapshot"
)

var errResultsDown = errors.New("results api unavailable")

type fakeCapturer struct {
	mu      sync.Mutex
	results map[media.Kind]*media.Capture
	errs    map[media.Kind]error
	stopped []string
	seq     int
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{
		results: map[media.Kind]*media.Capture{
			media.KindCamera: {Tracks: []media.TrackKind{media.TrackVideo, media.TrackAudio}},
			media.KindScreen: {Surface: media.SurfaceMonitor, Tracks: []media.TrackKind{media.TrackVideo}},
		},
		errs: map[media.Kind]error{},
	}
}

func (f *fakeCapturer) Capture(_ context.Context, kind media.Kind) (*media.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	f.seq++
	c := *f.results[kind]
	c.StreamID = fmt.Sprintf("%s-%d", kind, f.seq)
	return &c, nil
}

func (f *fakeCapturer) Stop(id string) {
	f.mu.Lock()
	f.stopped = append(f.stopped, id)
	f.mu.Unlock()
}

type fakeDisplay struct {
	mu      sync.Mutex
	fail    error
	exits   int
	entered int
}

func (d *fakeDisplay) RequestFullscreen(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.entered++
	return nil
}

func (d *fakeDisplay) ExitFullscreen(context.Context) error {
	d.mu.Lock()
	d.exits++
	d.mu.Unlock()
	return nil
}

type fakeEnv struct {
	mu sync.Mutex
	fn func(Signal)
}

func (e *fakeEnv) Subscribe(fn func(Signal)) func() {
	e.mu.Lock()
	e.fn = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		e.fn = nil
		e.mu.Unlock()
	}
}

func (e *fakeEnv) emit(s Signal) {
	e.mu.Lock()
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

type fakeQuestions struct {
	set      *model.QuestionSet
	err      error
	eventIDs []string
}

func (q *fakeQuestions) Questions(_ context.Context, _ model.TestMode, eventID string) (*model.QuestionSet, error) {
	q.eventIDs = append(q.eventIDs, eventID)
	return q.set, q.err
}

type fakeSubmitter struct {
	mu       sync.Mutex
	fail     int // upcoming failures; negative fails forever
	calls    int
	payloads []*model.ResultPayload

	// entered is signalled and hold awaited before each call when set.
	entered chan struct{}
	hold    chan struct{}
}

func (f *fakeSubmitter) Submit(_ context.Context, p *model.ResultPayload) (*model.ResultReceipt, error) {
	if f.hold != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != 0 {
		if f.fail > 0 {
			f.fail--
		}
		return nil, errResultsDown
	}
	f.payloads = append(f.payloads, p)
	return &model.ResultReceipt{ID: "res-1", Score: p.Score, TotalQuestions: p.TotalQuestions}, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSubmitter) last() *model.ResultPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

type fakeOutbox struct {
	mu     sync.Mutex
	err    error
	queued []*model.ResultPayload
}

func (o *fakeOutbox) Enqueue(_ context.Context, p *model.ResultPayload) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.queued = append(o.queued, p)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []model.ViolationRecord
}

func (s *fakeSink) Record(_ context.Context, rec model.ViolationRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// mcqSet builds n MCQ questions whose correct option is 1.
func mcqSet(n int) *model.QuestionSet {
	set := &model.QuestionSet{Key: model.AnswerKey{}}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("q%d", i)
		set.Questions = append(set.Questions, model.Question{
			ID:      id,
			Text:    "Question " + id,
			Type:    model.QuestionTypeMCQ,
			Options: []string{"a", "b", "c", "d"},
		})
		set.Key[id] = 1
	}
	return set
}

type harness struct {
	t         *testing.T
	capturer  *fakeCapturer
	media     *media.Adapter
	display   *fakeDisplay
	fs        *fullscreen.Adapter
	env       *fakeEnv
	store     *checkpoint.MemoryStore
	questions *fakeQuestions
	submitter *fakeSubmitter
	outbox    *fakeOutbox
	sink      *fakeSink
	navigated chan string

	cfg Config
	s   *Session
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		capturer:  newFakeCapturer(),
		display:   &fakeDisplay{},
		env:       &fakeEnv{},
		store:     checkpoint.NewMemoryStore(),
		questions: &fakeQuestions{set: mcqSet(10)},
		submitter: &fakeSubmitter{},
		outbox:    &fakeOutbox{},
		sink:      &fakeSink{},
		navigated: make(chan string, 1),
		cfg: Config{
			ID:     "sess-1",
			UserID: "u-1",
			Mode:   model.TestModeMCQ,
			Exam:   model.ExamContext{EventID: "ev-1", EventName: "Finals"},
			Options: Options{
				Code:            PlainCode(testCode),
				TickInterval:    time.Hour,
				RedirectDelay:   time.Millisecond,
				SubmitAttempts:  2,
				SubmitRetryBase: time.Millisecond,
			},
		},
	}
	for _, o := range opts {
		o(h)
	}
	h.s = h.open()
	return h
}

// open builds and opens a session over the harness platform and store.
func (h *harness) open() *Session {
	h.t.Helper()
	log := zerolog.Nop()
	h.media = media.NewAdapter(h.capturer, log)
	h.fs = fullscreen.NewAdapter(h.display, log)

	s := New(h.cfg, Deps{
		Media:       h.media,
		Fullscreen:  h.fs,
		Environment: h.env,
		Store:       checkpoint.New(h.store, snapshotKey, log),
		Questions:   h.questions,
		Submitter:   h.submitter,
		Outbox:      h.outbox,
		Violations:  h.sink,
		Log:         log,
		OnNavigate: func(to string) {
			select {
			case h.navigated <- to:
			default:
			}
		},
	})
	s.spawn = func(f func()) { f() }
	require.NoError(h.t, s.Open(context.Background()))
	h.t.Cleanup(s.Close)
	return s
}

// setup enables every device and enters the code.
func (h *harness) setup() {
	h.t.Helper()
	ctx := context.Background()
	require.NoError(h.t, h.s.SetCamera(ctx, true))
	require.NoError(h.t, h.s.SetScreen(ctx, true))
	require.NoError(h.t, h.s.SetFullscreen(ctx, true))
	require.NoError(h.t, h.s.EnterCode(testCode))
}

func (h *harness) run() {
	h.t.Helper()
	h.setup()
	require.NoError(h.t, h.s.Start())
	require.Equal(h.t, StatusRunning, h.s.Status())
}

func (h *harness) resume() {
	h.t.Helper()
	require.NoError(h.t, h.s.EnterCode(testCode))
	require.NoError(h.t, h.s.Start())
	require.Equal(h.t, StatusRunning, h.s.Status())
}

func (h *harness) tabSwitch() {
	h.env.emit(Signal{Kind: SignalVisibility, Value: false})
}

func (h *harness) answer(id string, option int) {
	h.t.Helper()
	a := model.OptionAnswer(option)
	require.NoError(h.t, h.s.SelectAnswer(id, &a))
}

func (h *harness) saved() *model.Snapshot {
	h.t.Helper()
	snap, err := checkpoint.New(h.store, snapshotKey, zerolog.Nop()).Load(context.Background())
	require.NoError(h.t, err)
	return snap
}
