package cull

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openboard/internal/board"
)

func noLookup(string) (board.Object, bool) { return board.Object{}, false }

func shape(id string, x, y float64, z int64) board.Object {
	return board.Object{ID: id, Type: board.TypeRectangle, X: x, Y: y, Width: 50, Height: 50, ZIndex: z}
}

func ids(objs []board.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}

func TestVisibleIncludesInsideExcludesFarOutside(t *testing.T) {
	vp := Viewport{OffsetX: 0, OffsetY: 0, Width: 1000, Height: 800, Scale: 1}
	objects := []board.Object{
		shape("inside", 100, 100, 0),
		shape("near-edge", 1100, 100, 0), // inside once padding is applied
		shape("far-away", 10000, 10000, 0),
	}

	c := NewController()
	visible := c.Visible(objects, vp, noLookup)

	assert.Contains(t, ids(visible), "inside")
	assert.Contains(t, ids(visible), "near-edge")
	assert.NotContains(t, ids(visible), "far-away")
}

func TestVisibleIsStableInPaintOrder(t *testing.T) {
	vp := Viewport{Width: 1000, Height: 800, Scale: 1}
	objects := []board.Object{
		shape("top", 0, 0, 9),
		shape("bottom", 10, 10, 1),
		shape("middle", 20, 20, 5),
	}

	c := NewController()
	visible := c.Visible(objects, vp, noLookup)
	require.Len(t, visible, 3)
	assert.Equal(t, []string{"bottom", "middle", "top"}, ids(visible))
}

func TestSmallPanDoesNotRecompute(t *testing.T) {
	vp := Viewport{Width: 1000, Height: 800, Scale: 1}
	objects := []board.Object{shape("a", 100, 100, 0)}

	c := NewController()
	first := c.Visible(objects, vp, noLookup)
	require.Len(t, first, 1)

	// Drop the object from the input; a sub-threshold pan must keep serving
	// the cached subset.
	vp.OffsetX += 100
	second := c.Visible(nil, vp, noLookup)
	assert.Equal(t, ids(first), ids(second), "sub-threshold pan must not recompute")
}

func TestPanBeyondDriftThresholdRecomputes(t *testing.T) {
	vp := Viewport{Width: 1000, Height: 800, Scale: 1}
	objects := []board.Object{shape("a", 100, 100, 0)}

	c := NewController()
	require.Len(t, c.Visible(objects, vp, noLookup), 1)

	vp.OffsetX += DefaultDriftThreshold + 1
	second := c.Visible(nil, vp, noLookup)
	assert.Empty(t, second, "super-threshold pan must recompute against the new input")
}

func TestZoomBeyondScaleRatioRecomputes(t *testing.T) {
	vp := Viewport{Width: 1000, Height: 800, Scale: 1}
	objects := []board.Object{shape("a", 100, 100, 0)}

	c := NewController()
	require.Len(t, c.Visible(objects, vp, noLookup), 1)

	vp.Scale = 1.2
	assert.Len(t, c.Visible(objects, vp, noLookup), 1, "zoom within ratio serves the cache")

	vp.Scale = 2.0
	assert.Empty(t, c.Visible(nil, vp, noLookup), "zoom beyond ratio recomputes")
}

func TestInvalidateForcesRecompute(t *testing.T) {
	vp := Viewport{Width: 1000, Height: 800, Scale: 1}
	c := NewController()
	require.Len(t, c.Visible([]board.Object{shape("a", 0, 0, 0)}, vp, noLookup), 1)

	c.Invalidate()
	assert.Empty(t, c.Visible(nil, vp, noLookup))
}

func TestConnectorBoundsFollowReferencedShapes(t *testing.T) {
	a := shape("a", 5000, 5000, 0)
	b := shape("b", 5200, 5000, 0)
	lookup := func(id string) (board.Object, bool) {
		switch id {
		case "a":
			return a, true
		case "b":
			return b, true
		}
		return board.Object{}, false
	}
	conn := board.Object{ID: "c", Type: board.TypeConnector, StartObjectID: "a", EndObjectID: "b", Style: board.StyleCurved}

	box := BoundsOf(conn, lookup)
	assert.Greater(t, box.MinX, 4000.0, "connector box tracks the referenced shapes")
	assert.Less(t, box.MinY, 5025.0, "box is expanded by the routing overshoot")
	assert.Greater(t, box.MaxY, 5025.0)
}

func TestDrawingBoundsFromPointList(t *testing.T) {
	d := board.Object{
		ID: "d", Type: board.TypeDrawing, StrokeWidth: 4,
		Points: []board.Point{{X: 10, Y: 20}, {X: 110, Y: 5}, {X: 60, Y: 90}},
	}
	box := BoundsOf(d, noLookup)
	assert.Equal(t, Rect{MinX: 6, MinY: 1, MaxX: 114, MaxY: 94}, box)
}
