// Package cull filters the full object set down to the subset worth
// rendering for the current viewport, recomputing only when the viewport has
// drifted far enough to matter.
package cull

import (
	"math"
	"sort"

	"openboard/internal/board"
	"openboard/internal/connector"
)

// Viewport describes the visible region: the board-space coordinate at the
// screen's top-left corner, the screen size in pixels, and the zoom scale.
type Viewport struct {
	OffsetX float64
	OffsetY float64
	Width   float64
	Height  float64
	Scale   float64
}

func (v Viewport) worldRect() Rect {
	scale := v.Scale
	if scale <= 0 {
		scale = 1
	}
	return Rect{
		MinX: v.OffsetX,
		MinY: v.OffsetY,
		MaxX: v.OffsetX + v.Width/scale,
		MaxY: v.OffsetY + v.Height/scale,
	}
}

// Controller defaults. The drift threshold and scale ratio trade a bounded
// amount of over-inclusion for far fewer recomputations during continuous
// panning and zooming.
const (
	DefaultDriftThreshold = 400.0 // screen pixels of accumulated pan
	DefaultScaleRatio     = 0.3   // relative zoom change
	DefaultSafetyMargin   = 100.0 // board units added on top of the drift allowance
)

// Controller maintains the hysteretic visible subset.
type Controller struct {
	driftThreshold float64
	scaleRatio     float64
	safetyMargin   float64

	hasViewport bool
	last        Viewport
	visible     []board.Object
}

// NewController returns a Controller with the default thresholds.
func NewController() *Controller {
	return &Controller{
		driftThreshold: DefaultDriftThreshold,
		scaleRatio:     DefaultScaleRatio,
		safetyMargin:   DefaultSafetyMargin,
	}
}

// Visible returns the objects intersecting the padded viewport in paint
// order. The set is only recomputed when the viewport has panned farther
// than the drift threshold or zoomed beyond the scale ratio since the last
// recomputation; in between, the previous subset is served as-is.
func (c *Controller) Visible(objects []board.Object, vp Viewport, lookup connector.Lookup) []board.Object {
	if c.hasViewport && !c.drifted(vp) {
		return c.visible
	}
	c.recompute(objects, vp, lookup)
	return c.visible
}

// Invalidate forces the next Visible call to recompute, regardless of drift.
// Callers use this when the object set itself changed.
func (c *Controller) Invalidate() {
	c.hasViewport = false
}

func (c *Controller) drifted(vp Viewport) bool {
	scale := vp.Scale
	if scale <= 0 {
		scale = 1
	}
	lastScale := c.last.Scale
	if lastScale <= 0 {
		lastScale = 1
	}

	panPixels := math.Hypot(vp.OffsetX-c.last.OffsetX, vp.OffsetY-c.last.OffsetY) * scale
	if panPixels > c.driftThreshold {
		return true
	}
	return math.Abs(scale-lastScale)/lastScale > c.scaleRatio
}

func (c *Controller) recompute(objects []board.Object, vp Viewport, lookup connector.Lookup) {
	scale := vp.Scale
	if scale <= 0 {
		scale = 1
	}

	// Padding covers everything that can scroll into view during one drift
	// window, so newly entering objects are already in the subset before the
	// next recomputation.
	padding := c.driftThreshold/scale + c.safetyMargin
	window := vp.worldRect().Expand(padding)

	visible := make([]board.Object, 0, len(objects))
	for _, o := range objects {
		if BoundsOf(o, lookup).Intersects(window) {
			visible = append(visible, o)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].ZIndex < visible[j].ZIndex
	})

	c.visible = visible
	c.last = vp
	c.hasViewport = true
}
