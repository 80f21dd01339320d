// Package media wraps the host's camera/microphone and screen capture behind an
// acquire/release contract and enforces the full-monitor screen share policy.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrDenied is returned when the user or OS refuses a capture request.
	ErrDenied = errors.New("media: permission denied")
	// ErrWrongSurface is returned when a screen share is not the entire monitor.
	ErrWrongSurface = errors.New("media: entire screen must be shared")
	// ErrNoVideo is returned when a camera capture came back without a video track.
	ErrNoVideo = errors.New("media: camera stream has no video track")
)

// Kind names a capture source.
type Kind string

const (
	KindCamera Kind = "camera"
	KindScreen Kind = "screen"
)

// TrackKind names a track inside a stream.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Surface is the display surface reported for a screen capture.
type Surface string

const (
	SurfaceMonitor Surface = "monitor"
	SurfaceWindow  Surface = "window"
	SurfaceBrowser Surface = "browser"
)

// Capture is what the platform returns for a granted capture request.
type Capture struct {
	StreamID string
	Surface  Surface
	Tracks   []TrackKind
}

// Capturer is the platform capture capability. Capture suspends until the
// user answers the permission prompt; Stop is fire-and-forget.
type Capturer interface {
	Capture(ctx context.Context, kind Kind) (*Capture, error)
	Stop(streamID string)
}

// StopFunc is told which stream kind ended outside the app and which track ended first.
type StopFunc func(kind Kind, track TrackKind)

// Adapter implements acquire/release over a Capturer.
type Adapter struct {
	capturer Capturer
	log      zerolog.Logger

	mu      sync.Mutex
	streams map[string]*Stream
	onStop  StopFunc
}

// NewAdapter creates a new Adapter.
func NewAdapter(capturer Capturer, log zerolog.Logger) *Adapter {
	return &Adapter{
		capturer: capturer,
		log:      log.With().Str("component", "media_adapter").Logger(),
		streams:  make(map[string]*Stream),
	}
}

// OnInvoluntaryStop registers the callback fired once per stream when its
// source is stopped outside the app.
func (a *Adapter) OnInvoluntaryStop(fn StopFunc) {
	a.mu.Lock()
	a.onStop = fn
	a.mu.Unlock()
}

// AcquireCamera requests combined video and audio capture.
func (a *Adapter) AcquireCamera(ctx context.Context) (*Stream, error) {
	c, err := a.capturer.Capture(ctx, KindCamera)
	if err != nil {
		return nil, fmt.Errorf("acquire camera: %w", err)
	}

	s := newStream(KindCamera, c)
	if !s.Live(TrackVideo) {
		a.capturer.Stop(c.StreamID)
		return nil, ErrNoVideo
	}

	a.track(s)
	a.log.Debug().Str("stream_id", s.id).Bool("audio", s.Live(TrackAudio)).Msg("Camera acquired")
	return s, nil
}

// AcquireScreen requests display capture and rejects anything but an entire monitor.
func (a *Adapter) AcquireScreen(ctx context.Context) (*Stream, error) {
	c, err := a.capturer.Capture(ctx, KindScreen)
	if err != nil {
		return nil, fmt.Errorf("acquire screen: %w", err)
	}

	// Browsers do not let the caller restrict the picker, so the surface is checked after the fact.
	if c.Surface != SurfaceMonitor {
		a.capturer.Stop(c.StreamID)
		a.log.Info().Str("surface", string(c.Surface)).Msg("Rejected screen share of wrong surface")
		return nil, ErrWrongSurface
	}

	s := newStream(KindScreen, c)
	a.track(s)
	a.log.Debug().Str("stream_id", s.id).Msg("Screen acquired")
	return s, nil
}

// Release stops all tracks of s. It is idempotent and accepts nil.
func (a *Adapter) Release(s *Stream) {
	if s == nil || !s.release() {
		return
	}

	a.mu.Lock()
	delete(a.streams, s.id)
	a.mu.Unlock()

	a.capturer.Stop(s.id)
	a.log.Debug().Str("stream_id", s.id).Str("kind", string(s.kind)).Msg("Stream released")
}

// TrackEnded is called by the platform when a track ends outside the app.
func (a *Adapter) TrackEnded(streamID string, track TrackKind) {
	a.mu.Lock()
	s, ok := a.streams[streamID]
	cb := a.onStop
	a.mu.Unlock()
	if !ok {
		return
	}

	if !s.end(track) {
		return
	}

	a.log.Warn().
		Str("stream_id", streamID).
		Str("kind", string(s.kind)).
		Str("track", string(track)).
		Msg("Stream stopped outside the app")

	if cb != nil {
		cb(s.kind, track)
	}
}

func (a *Adapter) track(s *Stream) {
	a.mu.Lock()
	a.streams[s.id] = s
	a.mu.Unlock()
}
