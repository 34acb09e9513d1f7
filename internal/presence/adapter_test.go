package presence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openboard/internal/board"
	"openboard/internal/bus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPair(t *testing.T, opts ...Option) (*Adapter, *Adapter) {
	t.Helper()
	b := bus.NewMemory()
	a1 := NewAdapter("b1", board.Participant{SessionID: "s1", Name: "Ada"}, b, testLogger(), opts...)
	a2 := NewAdapter("b1", board.Participant{SessionID: "s2", Name: "Grace"}, b, testLogger(), opts...)
	require.NoError(t, a1.Join(context.Background()))
	require.NoError(t, a2.Join(context.Background()))
	return a1, a2
}

func TestJoinAnnouncesBothWays(t *testing.T) {
	a1, a2 := newPair(t)

	// The earlier joiner learns about the later one and vice versa: a join
	// from an unknown session is answered with a counter-announcement.
	assert.Contains(t, a1.Participants(), "s2")
	assert.Contains(t, a2.Participants(), "s1")
	assert.True(t, a1.Connected())
}

func TestLeaveClearsEphemeralState(t *testing.T) {
	a1, a2 := newPair(t)
	a1.EmitCursor(10, 20)
	a1.EmitSelection([]string{"o1"})
	require.NoError(t, a1.EmitStickyLock("o1"))

	a1.Leave()

	assert.NotContains(t, a2.Participants(), "s1")
	assert.NotContains(t, a2.Cursors(), "s1")
	assert.NotContains(t, a2.RemoteSelections(), "s1")
	assert.NotContains(t, a2.RemoteEditing(), "o1", "lock released on teardown")
	assert.False(t, a1.Connected())
}

func TestCursorPropagates(t *testing.T) {
	a1, a2 := newPair(t)
	a1.EmitCursor(42, 7)

	cursors := a2.Cursors()
	require.Contains(t, cursors, "s1")
	assert.Equal(t, board.Cursor{X: 42, Y: 7, Name: "Ada"}, cursors["s1"])
	assert.NotContains(t, a1.Cursors(), "s1", "own cursor is not mirrored back")
}

func TestLockRefusedWhileHeldRemotely(t *testing.T) {
	a1, a2 := newPair(t)
	require.NoError(t, a1.EmitStickyLock("sticky-1"))

	err := a2.EmitStickyLock("sticky-1")
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, a2.CanEdit("sticky-1"))

	a1.EmitStickyUnlock("sticky-1")
	assert.True(t, a2.CanEdit("sticky-1"))
	assert.NoError(t, a2.EmitStickyLock("sticky-1"))
}

func TestUnlockByNonOwnerIsIgnored(t *testing.T) {
	a1, a2 := newPair(t)
	require.NoError(t, a1.EmitStickyLock("sticky-1"))

	// s2 never held the lock; its unlock must not clear s1's.
	a2.EmitStickyUnlock("sticky-1")
	assert.Contains(t, a1.RemoteEditing(), "sticky-1")
	assert.False(t, a2.CanEdit("sticky-1"))
}

func TestDragPreviewAndEnd(t *testing.T) {
	a1, a2 := newPair(t)
	a1.EmitObjectDrag("o1", 5, 6)

	previews := a2.DragPreviews()
	require.Contains(t, previews, "o1")
	assert.Equal(t, board.DragPreview{SessionID: "s1", X: 5, Y: 6}, previews["o1"])

	a1.EmitObjectDragEnd("o1")
	assert.NotContains(t, a2.DragPreviews(), "o1")
}

func TestTextPreviewClearedOnUnlock(t *testing.T) {
	a1, a2 := newPair(t)
	require.NoError(t, a1.EmitStickyLock("sticky-1"))
	a1.EmitTextPreview("sticky-1", "draft tex")

	require.Eventually(t, func() bool {
		return a2.TextPreviews()["sticky-1"] == "draft tex"
	}, time.Second, 5*time.Millisecond)

	a1.EmitStickyUnlock("sticky-1")
	assert.NotContains(t, a2.TextPreviews(), "sticky-1")
}

func TestSamplerConvergesOnLatestValue(t *testing.T) {
	a1, a2 := newPair(t, WithSignalInterval(20*time.Millisecond))

	// A burst far denser than the interval: intermediate samples drop but
	// the final position must arrive.
	for i := 0; i <= 50; i++ {
		a1.EmitCursor(float64(i), 0)
	}
	require.Eventually(t, func() bool {
		c, ok := a2.Cursors()["s1"]
		return ok && c.X == 50
	}, time.Second, 5*time.Millisecond)
}

func TestSamplerDropsIntermediateSamples(t *testing.T) {
	b := bus.NewMemory()
	var count int
	cancel, err := b.Subscribe(context.Background(), "b1", func(m bus.Message) {
		if m.Kind == bus.KindCursor {
			count++
		}
	})
	require.NoError(t, err)
	defer cancel()

	a := NewAdapter("b1", board.Participant{SessionID: "s1", Name: "Ada"}, b, testLogger(),
		WithSignalInterval(50*time.Millisecond))
	require.NoError(t, a.Join(context.Background()))

	for i := 0; i < 100; i++ {
		a.EmitCursor(float64(i), 0)
	}
	time.Sleep(120 * time.Millisecond)
	assert.LessOrEqual(t, count, 4, "burst of 100 must collapse to a handful of sends")
	assert.GreaterOrEqual(t, count, 2, "first send immediate, last sample flushed")
}

func TestSnapshotsAreCopies(t *testing.T) {
	a1, a2 := newPair(t)
	a1.EmitSelection([]string{"o1", "o2"})

	snap := a2.RemoteSelections()
	require.Contains(t, snap, "s1")
	snap["s1"][0] = "mutated"

	fresh := a2.RemoteSelections()
	assert.Equal(t, "o1", fresh["s1"][0], "snapshot mutation must not leak back")
}
