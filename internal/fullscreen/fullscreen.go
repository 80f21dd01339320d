// Package fullscreen tracks the host's fullscreen state and reports every exit.
package fullscreen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnavailable wraps a failed enter request. The state is left unchanged.
var ErrUnavailable = errors.New("fullscreen: request failed")

// Display is the platform fullscreen capability.
type Display interface {
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

// Adapter implements enter/exit/isActive over a Display.
type Adapter struct {
	display Display
	log     zerolog.Logger

	mu     sync.Mutex
	active bool
	onExit func()
}

// NewAdapter creates a new Adapter.
func NewAdapter(display Display, log zerolog.Logger) *Adapter {
	return &Adapter{
		display: display,
		log:     log.With().Str("component", "fullscreen_adapter").Logger(),
	}
}

// OnExit registers the callback fired whenever fullscreen is left.
func (a *Adapter) OnExit(fn func()) {
	a.mu.Lock()
	a.onExit = fn
	a.mu.Unlock()
}

// Enter requests fullscreen. Failure is recoverable.
func (a *Adapter) Enter(ctx context.Context) error {
	if a.IsActive() {
		return nil
	}
	if err := a.display.RequestFullscreen(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	a.Changed(true)
	return nil
}

// Exit leaves fullscreen. The exit callback fires as for an external exit.
func (a *Adapter) Exit(ctx context.Context) error {
	if !a.IsActive() {
		return nil
	}
	err := a.display.ExitFullscreen(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("Exit fullscreen request failed")
	}
	a.Changed(false)
	return err
}

// IsActive reports the current fullscreen status.
func (a *Adapter) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Changed is called by the platform on every fullscreen change (Esc, OS gesture, ...).
func (a *Adapter) Changed(active bool) {
	a.mu.Lock()
	was := a.active
	a.active = active
	cb := a.onExit
	a.mu.Unlock()

	if was && !active {
		a.log.Debug().Msg("Fullscreen exited")
		if cb != nil {
			cb()
		}
	}
}
