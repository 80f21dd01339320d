package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/proctor"
)

var (
	// ErrClientClosed is returned for calls pending or issued after Close.
	ErrClientClosed = errors.New("platform client closed")
	// ErrPlatformTimeout is returned when the client does not answer a command in time.
	ErrPlatformTimeout = errors.New("platform did not answer in time")
)

// Sender writes one event to the client.
type Sender interface {
	WriteTyped(v interface{}) error
}

// RemoteClient is the platform of one connected browser. Capture and
// fullscreen requests are sent as CommandEvents and block until the matching
// PlatformResult is passed to Resolve. Environment signals arrive through Signal.
type RemoteClient struct {
	out     Sender
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan PlatformResult
	subs    map[uint64]func(proctor.Signal)
	nextSub uint64
	closed  bool
}

// NewRemoteClient creates a new RemoteClient. timeout bounds each command;
// capture prompts wait on the user, so it should be generous.
func NewRemoteClient(out Sender, timeout time.Duration, log zerolog.Logger) *RemoteClient {
	return &RemoteClient{
		out:     out,
		timeout: timeout,
		log:     log.With().Str("component", "remote_platform").Logger(),
		pending: make(map[string]chan PlatformResult),
		subs:    make(map[uint64]func(proctor.Signal)),
	}
}

// ─── media.Capturer ─────────────────────────────────────────────────

func (r *RemoteClient) Capture(ctx context.Context, kind media.Kind) (*media.Capture, error) {
	cmd := CommandCaptureCamera
	if kind == media.KindScreen {
		cmd = CommandCaptureScreen
	}

	res, err := r.call(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, platformError(res.Error)
	}
	if res.StreamID == "" {
		return nil, fmt.Errorf("%s: result without stream id", cmd)
	}
	return &media.Capture{StreamID: res.StreamID, Surface: res.Surface, Tracks: res.Tracks}, nil
}

func (r *RemoteClient) Stop(streamID string) {
	if r.isClosed() {
		return
	}
	if err := r.out.WriteTyped(CommandEvent{Event: EventCommand, Command: CommandStopStream, StreamID: streamID}); err != nil {
		r.log.Warn().Err(err).Str("stream_id", streamID).Msg("Stop stream command not delivered")
	}
}

// ─── fullscreen.Display ─────────────────────────────────────────────

func (r *RemoteClient) RequestFullscreen(ctx context.Context) error {
	return r.simple(ctx, CommandEnterFullscreen)
}

func (r *RemoteClient) ExitFullscreen(ctx context.Context) error {
	return r.simple(ctx, CommandExitFullscreen)
}

func (r *RemoteClient) simple(ctx context.Context, cmd Command) error {
	res, err := r.call(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK {
		return platformError(res.Error)
	}
	return nil
}

// ─── proctor.Environment ────────────────────────────────────────────

func (r *RemoteClient) Subscribe(fn func(proctor.Signal)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Signal delivers an environment signal to every subscriber.
func (r *RemoteClient) Signal(s proctor.Signal) {
	r.mu.Lock()
	fns := make([]func(proctor.Signal), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// ─── Request/response plumbing ──────────────────────────────────────

// Resolve completes the pending call with res.RequestID. Unknown or late
// results are dropped.
func (r *RemoteClient) Resolve(res PlatformResult) bool {
	r.mu.Lock()
	ch, ok := r.pending[res.RequestID]
	delete(r.pending, res.RequestID)
	r.mu.Unlock()

	if !ok {
		r.log.Debug().Str("request_id", res.RequestID).Msg("Dropping unmatched platform result")
		return false
	}
	ch <- res
	return true
}

// Close fails every pending call and rejects new ones.
func (r *RemoteClient) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
	r.subs = make(map[uint64]func(proctor.Signal))
}

func (r *RemoteClient) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *RemoteClient) call(ctx context.Context, cmd Command) (PlatformResult, error) {
	id := uuid.NewString()
	ch := make(chan PlatformResult, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return PlatformResult{}, ErrClientClosed
	}
	r.pending[id] = ch
	r.mu.Unlock()

	if err := r.out.WriteTyped(CommandEvent{Event: EventCommand, RequestID: id, Command: cmd}); err != nil {
		r.forget(id)
		return PlatformResult{}, fmt.Errorf("send %s: %w", cmd, err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok {
			return PlatformResult{}, ErrClientClosed
		}
		return res, nil
	case <-timer.C:
		r.forget(id)
		r.log.Warn().Str("command", string(cmd)).Msg("Platform command timed out")
		return PlatformResult{}, ErrPlatformTimeout
	case <-ctx.Done():
		r.forget(id)
		return PlatformResult{}, ctx.Err()
	}
}

func (r *RemoteClient) forget(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

func platformError(msg string) error {
	switch msg {
	case PlatformErrDenied:
		return media.ErrDenied
	case "":
		return errors.New("platform request failed")
	default:
		return fmt.Errorf("platform request failed: %s", msg)
	}
}
