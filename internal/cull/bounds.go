package cull

import (
	"math"

	"openboard/internal/board"
	"openboard/internal/connector"
	"openboard/internal/geometry"
)

// Rect is an axis-aligned box in board space.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Intersects reports whether two rectangles overlap.
func (r Rect) Intersects(other Rect) bool {
	return r.MinX <= other.MaxX && r.MaxX >= other.MinX &&
		r.MinY <= other.MaxY && r.MaxY >= other.MinY
}

// Expand grows the rectangle by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{
		MinX: r.MinX - margin,
		MinY: r.MinY - margin,
		MaxX: r.MaxX + margin,
		MaxY: r.MaxY + margin,
	}
}

// BoundsOf computes the culling box of any object variant.
//
// Positioned shapes use their own box. Drawings use the bounding box of the
// stroke point list. Connectors are boxed from the live positions of the
// shapes they reference (literal points when unreferenced), expanded by the
// routing overshoot so curved and orthogonal paths stay inside the box.
func BoundsOf(o board.Object, lookup connector.Lookup) Rect {
	switch o.Type {
	case board.TypeDrawing:
		return pointsBounds(o.Points, o.StrokeWidth)
	case board.TypeConnector:
		ep := connector.Resolve(o, lookup)
		box := pointsBounds([]board.Point{ep.Start, ep.End}, o.StrokeWidth)
		return box.Expand(geometry.RouteOvershoot)
	default:
		return Rect{MinX: o.X, MinY: o.Y, MaxX: o.X + o.Width, MaxY: o.Y + o.Height}
	}
}

func pointsBounds(points []board.Point, margin float64) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := Rect{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range points {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	if margin > 0 {
		r = r.Expand(margin)
	}
	return r
}
