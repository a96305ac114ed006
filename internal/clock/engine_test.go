package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestEngine(opts ...Option) (*Engine, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClock()
	return NewEngine(fc, opts...), fc
}

func TestStartPreservesAccumulatedElapsed(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	fc.Advance(5 * time.Second)
	require.NoError(t, e.Stop())
	require.Equal(t, int64(5000), e.Snapshot().ElapsedMS)

	// A later start resumes from the frozen value, it does not reset.
	fc.Advance(time.Second)
	require.NoError(t, e.Start())
	fc.Advance(2 * time.Second)
	require.Equal(t, int64(7000), e.Elapsed())
}

func TestElapsedFrozenWhileStopped(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	fc.Advance(3 * time.Second)
	require.NoError(t, e.Stop())

	frozen := e.Snapshot().ElapsedMS
	fc.Advance(time.Minute)
	require.Equal(t, frozen, e.Elapsed())
	require.Equal(t, frozen, e.Snapshot().ElapsedMS)
}

func TestElapsedNonDecreasingWhileRunning(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	var last int64
	for i := 0; i < 10; i++ {
		fc.Advance(137 * time.Millisecond)
		cur := e.Elapsed()
		require.GreaterOrEqual(t, cur, last)
		last = cur
	}
}

func TestDoubleTapStartIsDebounced(t *testing.T) {
	e, _ := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	err := e.Start()
	require.ErrorIs(t, err, ErrDebounced)
	require.True(t, e.Snapshot().Running)
}

func TestStopInsideGuardWindowIsDebounced(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	fc.Advance(50 * time.Millisecond)
	require.ErrorIs(t, e.Stop(), ErrDebounced)
	require.True(t, e.Snapshot().Running)

	fc.Advance(200 * time.Millisecond)
	require.NoError(t, e.Stop())
	require.False(t, e.Snapshot().Running)
}

func TestStateErrorsOutsideGuardWindow(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	require.ErrorIs(t, e.Stop(), ErrNotRunning)

	require.NoError(t, e.Start())
	fc.Advance(time.Second)
	require.ErrorIs(t, e.Start(), ErrAlreadyRunning)
}

func TestDisabledDebounce(t *testing.T) {
	e, _ := newTestEngine(WithDebounce(0))
	defer e.Close()

	require.NoError(t, e.Start())
	require.NoError(t, e.Stop())
	require.NoError(t, e.Start())
}

func TestTickRefreshesCachedElapsed(t *testing.T) {
	e, fc := newTestEngine(WithTickInterval(time.Hour))
	defer e.Close()

	require.NoError(t, e.Start())
	fc.Advance(2 * time.Second)
	require.Equal(t, int64(0), e.Snapshot().ElapsedMS)

	require.NoError(t, e.Tick())
	require.Equal(t, int64(2000), e.Snapshot().ElapsedMS)
}

func TestTickIsNoopWhileStopped(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	fc.Advance(time.Second)
	require.NoError(t, e.Tick())
	require.Equal(t, int64(0), e.Snapshot().ElapsedMS)
}

func TestTickClockSkewLeavesElapsedUntouched(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	fc.Advance(time.Second)
	require.NoError(t, e.Tick())

	// Simulate the wall clock jumping behind the start epoch.
	e.mu.Lock()
	future := fc.Now().UnixMilli() + 10_000
	e.state.StartEpochMS = &future
	e.mu.Unlock()

	require.ErrorIs(t, e.Tick(), ErrClockSkew)
	require.Equal(t, int64(1000), e.Snapshot().ElapsedMS)
}

func TestVisibilityResumeBypassesTickCadence(t *testing.T) {
	e, fc := newTestEngine(WithTickInterval(time.Hour))
	defer e.Close()

	require.NoError(t, e.Start())
	fc.Advance(42 * time.Second)
	require.Equal(t, int64(0), e.Snapshot().ElapsedMS)

	e.VisibilityResume()
	require.Equal(t, int64(42000), e.Snapshot().ElapsedMS)
}

func TestResetAlwaysReturnsToInitialState(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	fc.Advance(time.Second)
	e.Reset()

	snap := e.Snapshot()
	require.False(t, snap.Running)
	require.Equal(t, int64(0), snap.ElapsedMS)
	require.Nil(t, snap.StartEpochMS)

	// No orphan tick loop: elapsed stays zero as time moves on.
	fc.Advance(time.Minute)
	require.Equal(t, int64(0), e.Elapsed())
}

func TestResetIsNotDebounced(t *testing.T) {
	e, _ := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	e.Reset()
	require.False(t, e.Snapshot().Running)
}

func TestRestoreRunningContinuesCounting(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	e.Restore(true, 600_000)
	require.True(t, e.Snapshot().Running)
	require.Equal(t, int64(600_000), e.Elapsed())

	fc.Advance(5 * time.Second)
	require.Equal(t, int64(605_000), e.Elapsed())
}

func TestRestoreStoppedIsVerbatim(t *testing.T) {
	e, fc := newTestEngine()
	defer e.Close()

	e.Restore(false, 123_456)
	snap := e.Snapshot()
	require.False(t, snap.Running)
	require.Equal(t, int64(123_456), snap.ElapsedMS)
	require.Nil(t, snap.StartEpochMS)

	fc.Advance(time.Hour)
	require.Equal(t, int64(123_456), e.Elapsed())
}

func TestSnapshotDoesNotAliasInternalState(t *testing.T) {
	e, _ := newTestEngine()
	defer e.Close()

	require.NoError(t, e.Start())
	snap := e.Snapshot()
	require.NotNil(t, snap.StartEpochMS)
	*snap.StartEpochMS = -1
	require.NotEqual(t, int64(-1), *e.Snapshot().StartEpochMS)
}

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "00:00"},
		{999, "00:00"},
		{1000, "00:01"},
		{65_000, "01:05"},
		{600_000, "10:00"},
		{3_723_000, "62:03"},
		{-5, "00:00"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatElapsed(tc.ms))
	}
}
