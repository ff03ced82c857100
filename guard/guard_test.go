package guard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"talvault/principal"
)

func testPrincipal(t *testing.T, b byte) principal.Principal {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	p, err := principal.FromBytes(raw)
	require.NoError(t, err)
	return p
}

func TestPrincipalGuardsRejectsReentrancy(t *testing.T) {
	g := NewPrincipalGuards(10)
	p := testPrincipal(t, 1)

	release, err := g.Acquire(p)
	require.NoError(t, err)

	_, err = g.Acquire(p)
	require.ErrorIs(t, err, ErrAlreadyProcessing)

	release()
	release2, err := g.Acquire(p)
	require.NoError(t, err)
	release2()
}

func TestPrincipalGuardsCap(t *testing.T) {
	g := NewPrincipalGuards(1)
	p1 := testPrincipal(t, 1)
	p2 := testPrincipal(t, 2)

	release, err := g.Acquire(p1)
	require.NoError(t, err)

	_, err = g.Acquire(p2)
	require.ErrorIs(t, err, ErrTooManyConcurrentRequests)

	release()
	release2, err := g.Acquire(p2)
	require.NoError(t, err)
	release2()
}

func TestPrincipalGuardsReleaseIsIdempotent(t *testing.T) {
	g := NewPrincipalGuards(10)
	p := testPrincipal(t, 1)
	release, err := g.Acquire(p)
	require.NoError(t, err)
	release()
	require.NotPanics(t, release)
	require.Equal(t, 0, g.Len())
}

func TestSingletonGuard(t *testing.T) {
	s := NewSingleton("timer")
	release, ok := s.TryAcquire()
	require.True(t, ok)
	require.True(t, s.IsHeld())

	_, ok = s.TryAcquire()
	require.False(t, ok)

	release()
	require.False(t, s.IsHeld())
}
