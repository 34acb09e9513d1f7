// Package geometry computes connector attachment points and routing paths.
// Everything here is a pure function over board-space coordinates.
package geometry

import (
	"math"

	"openboard/internal/board"
)

// Side names an attachment point on an object's bounding box.
type Side string

const (
	SideTop    Side = "top"
	SideRight  Side = "right"
	SideBottom Side = "bottom"
	SideLeft   Side = "left"
	SideCenter Side = "center"
)

// Opposite returns the side facing this one.
func (s Side) Opposite() Side {
	switch s {
	case SideTop:
		return SideBottom
	case SideBottom:
		return SideTop
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	default:
		return s
	}
}

// AnchorPoint returns the board-space coordinate of the named point on the
// object's bounding box: the midpoint of the respective edge, or the box
// center.
func AnchorPoint(o board.Object, side Side) board.Point {
	cx := o.X + o.Width/2
	cy := o.Y + o.Height/2
	switch side {
	case SideTop:
		return board.Point{X: cx, Y: o.Y}
	case SideRight:
		return board.Point{X: o.X + o.Width, Y: cy}
	case SideBottom:
		return board.Point{X: cx, Y: o.Y + o.Height}
	case SideLeft:
		return board.Point{X: o.X, Y: cy}
	default:
		return board.Point{X: cx, Y: cy}
	}
}

// Center returns the bounding box center.
func Center(o board.Object) board.Point {
	return board.Point{X: o.X + o.Width/2, Y: o.Y + o.Height/2}
}

// BestAnchorPair picks facing sides for a connector between two objects.
// Whichever axis separates the centers more decides: dominant horizontal
// displacement gives right/left, dominant vertical gives bottom/top. Ties
// resolve toward vertical.
func BestAnchorPair(from, to board.Object) (Side, Side) {
	fc := Center(from)
	tc := Center(to)
	dx := tc.X - fc.X
	dy := tc.Y - fc.Y

	if math.Abs(dx) > math.Abs(dy) {
		if dx >= 0 {
			return SideRight, SideLeft
		}
		return SideLeft, SideRight
	}
	if dy >= 0 {
		return SideBottom, SideTop
	}
	return SideTop, SideBottom
}

// BestPerimeterPoint returns the point on the object's perimeter along the
// ray from its center toward target. Circles get the radius along the angle
// to the target; axis-aligned rectangles get the minimum scale that reaches
// a half-width or half-height. A target coincident with the center
// degenerates to the right-edge midpoint.
func BestPerimeterPoint(o board.Object, target board.Point) board.Point {
	c := Center(o)
	dx := target.X - c.X
	dy := target.Y - c.Y

	if dx == 0 && dy == 0 {
		return AnchorPoint(o, SideRight)
	}

	if o.Type == board.TypeCircle {
		r := math.Min(o.Width, o.Height) / 2
		angle := math.Atan2(dy, dx)
		return board.Point{X: c.X + r*math.Cos(angle), Y: c.Y + r*math.Sin(angle)}
	}

	halfW := o.Width / 2
	halfH := o.Height / 2
	scale := math.Inf(1)
	if dx != 0 {
		scale = halfW / math.Abs(dx)
	}
	if dy != 0 {
		if s := halfH / math.Abs(dy); s < scale {
			scale = s
		}
	}
	return board.Point{X: c.X + dx*scale, Y: c.Y + dy*scale}
}
