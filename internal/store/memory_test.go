package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openboard/internal/board"
)

func TestMemoryUpsertNotifiesAllSubscribers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var got []ChangeEvent
	cancel, err := m.Subscribe(ctx, "b1", func(ev ChangeEvent) { got = append(got, ev) })
	require.NoError(t, err)
	defer cancel()

	obj := board.Object{ID: "o1", Type: board.TypeSticky, X: 10}
	require.NoError(t, m.UpsertObject(ctx, "b1", obj))
	require.Len(t, got, 1)
	assert.Equal(t, EventInsert, got[0].Type)

	obj.X = 20
	require.NoError(t, m.UpsertObject(ctx, "b1", obj))
	require.Len(t, got, 2)
	assert.Equal(t, EventUpdate, got[1].Type)
	assert.Equal(t, 20.0, got[1].Object.X)
}

func TestMemoryDeleteByIDWithoutBoard(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.UpsertObject(ctx, "b1", board.Object{ID: "o1", Type: board.TypeSticky}))

	var got []ChangeEvent
	cancel, err := m.Subscribe(ctx, "b1", func(ev ChangeEvent) { got = append(got, ev) })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, m.DeleteObject(ctx, "o1"))
	require.Len(t, got, 1)
	assert.Equal(t, EventDelete, got[0].Type)
	assert.Equal(t, "o1", got[0].Object.ID)

	objects, err := m.ListObjects(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, objects)

	// Deleting an absent row is not an error and emits nothing.
	require.NoError(t, m.DeleteObject(ctx, "o1"))
	assert.Len(t, got, 1)
}

func TestMemoryBoardsAreIsolated(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var got []ChangeEvent
	cancel, err := m.Subscribe(ctx, "b2", func(ev ChangeEvent) { got = append(got, ev) })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, m.UpsertObject(ctx, "b1", board.Object{ID: "o1", Type: board.TypeSticky}))
	assert.Empty(t, got, "b2 subscriber must not see b1 writes")

	objects, err := m.ListObjects(ctx, "b2")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestMemoryListReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.UpsertObject(ctx, "b1",
		board.Object{ID: "d1", Type: board.TypeDrawing, Points: []board.Point{{X: 1}}}))

	objects, err := m.ListObjects(ctx, "b1")
	require.NoError(t, err)
	objects[0].Points[0].X = 99

	again, err := m.ListObjects(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again[0].Points[0].X)
}
