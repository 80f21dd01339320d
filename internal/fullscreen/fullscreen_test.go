package fullscreen

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeDisplay struct {
	enterErr error
	exits    int
}

func (d *fakeDisplay) RequestFullscreen(context.Context) error { return d.enterErr }
func (d *fakeDisplay) ExitFullscreen(context.Context) error {
	d.exits++
	return nil
}

func TestEnterAndExternalExit(t *testing.T) {
	a := NewAdapter(&fakeDisplay{}, zerolog.Nop())
	exits := 0
	a.OnExit(func() { exits++ })

	require.NoError(t, a.Enter(context.Background()))
	require.True(t, a.IsActive())

	// Esc pressed.
	a.Changed(false)
	require.False(t, a.IsActive())
	require.Equal(t, 1, exits)

	// A repeated notification is not a second exit.
	a.Changed(false)
	require.Equal(t, 1, exits)
}

func TestEnterFailureLeavesStateUnchanged(t *testing.T) {
	a := NewAdapter(&fakeDisplay{enterErr: errors.New("no user gesture")}, zerolog.Nop())

	err := a.Enter(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, a.IsActive())
}

func TestExplicitExitFiresCallback(t *testing.T) {
	d := &fakeDisplay{}
	a := NewAdapter(d, zerolog.Nop())
	exits := 0
	a.OnExit(func() { exits++ })

	require.NoError(t, a.Enter(context.Background()))
	require.NoError(t, a.Exit(context.Background()))
	require.NoError(t, a.Exit(context.Background()))

	require.Equal(t, 1, exits)
	require.Equal(t, 1, d.exits)
}
