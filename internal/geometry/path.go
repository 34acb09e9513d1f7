package geometry

import (
	"math"

	"openboard/internal/board"
)

// curveOffsetRatio and curveOffsetMax bound the perpendicular control point
// offset for curved connectors: 30% of the segment length, capped at 100
// board units, producing a symmetric bow.
const (
	curveOffsetRatio = 0.3
	curveOffsetMax   = 100.0
)

// PathPoints builds the point list for a connector between two resolved
// endpoints.
//
//	straight:   the two endpoints
//	curved:     start, quadratic control point, end
//	orthogonal: three segments, horizontal-vertical-horizontal through the
//	            horizontal midpoint
func PathPoints(style board.ConnectorStyle, start, end board.Point) []board.Point {
	switch style {
	case board.StyleCurved:
		return []board.Point{start, curveControl(start, end), end}
	case board.StyleOrthogonal:
		midX := (start.X + end.X) / 2
		return []board.Point{
			start,
			{X: midX, Y: start.Y},
			{X: midX, Y: end.Y},
			end,
		}
	default:
		return []board.Point{start, end}
	}
}

func curveControl(start, end board.Point) board.Point {
	dx := end.X - start.X
	dy := end.Y - start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return start
	}

	offset := length * curveOffsetRatio
	if offset > curveOffsetMax {
		offset = curveOffsetMax
	}

	midX := (start.X + end.X) / 2
	midY := (start.Y + end.Y) / 2
	// Unit perpendicular to the segment.
	px := -dy / length
	py := dx / length
	return board.Point{X: midX + px*offset, Y: midY + py*offset}
}

// RouteOvershoot is how far a curved or orthogonal path can extend outside
// the straight-line bounding box of its endpoints. Culling expands connector
// boxes by this margin.
const RouteOvershoot = curveOffsetMax
