package proctor

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/media"
)

// SignalKind names a host environment signal.
type SignalKind string

const (
	SignalVisibility SignalKind = "visibility"
	SignalFocus      SignalKind = "focus"
)

// Signal is a visibility or focus change. Value is true when the page is
// visible (or focused) again.
type Signal struct {
	Kind  SignalKind
	Value bool
}

// Environment delivers host signals until the returned cancel is called.
type Environment interface {
	Subscribe(fn func(Signal)) (cancel func())
}

// StopSource reports streams that ended outside the app.
type StopSource interface {
	OnInvoluntaryStop(fn media.StopFunc)
}

// ExitSource reports fullscreen exits.
type ExitSource interface {
	OnExit(fn func())
}

// ViolationHandler receives violations while the monitor is started.
type ViolationHandler func(Violation)

// Monitor turns host signals into violations. The handler lives in a cell
// that the session may replace at any time; each emission reads the current value.
type Monitor struct {
	env   Environment
	stops StopSource
	exits ExitSource
	log   zerolog.Logger

	handler atomic.Pointer[ViolationHandler]
	running atomic.Bool

	mu     sync.Mutex
	cancel func()
}

// NewMonitor creates a new Monitor. Any source may be nil.
func NewMonitor(env Environment, stops StopSource, exits ExitSource, log zerolog.Logger) *Monitor {
	return &Monitor{
		env:   env,
		stops: stops,
		exits: exits,
		log:   log.With().Str("component", "violation_monitor").Logger(),
	}
}

// SetHandler replaces the handler. A nil handler drops violations.
func (m *Monitor) SetHandler(h ViolationHandler) {
	if h == nil {
		m.handler.Store(nil)
		return
	}
	m.handler.Store(&h)
}

// Start subscribes to all sources. It is a no-op when already started.
func (m *Monitor) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}

	if m.stops != nil {
		m.stops.OnInvoluntaryStop(m.onStreamStopped)
	}
	if m.exits != nil {
		m.exits.OnExit(m.onFullscreenExit)
	}
	if m.env != nil {
		cancel := m.env.Subscribe(m.onSignal)
		m.mu.Lock()
		m.cancel = cancel
		m.mu.Unlock()
	}
	m.log.Debug().Msg("Monitor started")
}

// Stop unsubscribes. Signals arriving afterwards are ignored.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}

	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if m.stops != nil {
		m.stops.OnInvoluntaryStop(nil)
	}
	if m.exits != nil {
		m.exits.OnExit(nil)
	}
	m.log.Debug().Msg("Monitor stopped")
}

func (m *Monitor) onSignal(s Signal) {
	if s.Value {
		return
	}
	switch s.Kind {
	case SignalVisibility:
		m.emit(newViolation(ViolationTabHidden))
	case SignalFocus:
		m.emit(newViolation(ViolationFocusLost))
	}
}

func (m *Monitor) onStreamStopped(kind media.Kind, track media.TrackKind) {
	switch {
	case kind == media.KindScreen:
		m.emit(newViolation(ViolationScreenLost))
	case track == media.TrackAudio:
		m.emit(newViolation(ViolationMicLost))
	default:
		m.emit(newViolation(ViolationCameraLost))
	}
}

func (m *Monitor) onFullscreenExit() {
	m.emit(newViolation(ViolationFullscreenExit))
}

func (m *Monitor) emit(v Violation) {
	if !m.running.Load() {
		return
	}
	h := m.handler.Load()
	if h == nil {
		return
	}
	m.log.Debug().Str("kind", string(v.Kind)).Msg("Violation detected")
	(*h)(v)
}
