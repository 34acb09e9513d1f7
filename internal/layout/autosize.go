package layout

import "math"

// SizeBounds constrain node auto-sizing.
type SizeBounds struct {
	MinWidth  float64
	MinHeight float64
	MaxWidth  float64
}

// DefaultSizeBounds match the sticky-note dimensions used on the canvas.
var DefaultSizeBounds = SizeBounds{MinWidth: 120, MinHeight: 60, MaxWidth: 260}

// Text metrics for size estimation. Exact wrapping belongs to the renderer;
// the layout only needs a box that is roomy enough.
const (
	avgCharWidth = 8.0
	lineHeight   = 22.0
	textPadding  = 24.0
)

// AutoSize estimates the box for a labeled node: wrapped line count from the
// average character width and the available line width, height from line
// count times line height, width from the lesser of content width and
// MaxWidth, floored at the minimums.
func AutoSize(label string, bounds SizeBounds) (width, height float64) {
	contentWidth := float64(len([]rune(label))) * avgCharWidth

	width = contentWidth + textPadding
	if width > bounds.MaxWidth {
		width = bounds.MaxWidth
	}
	if width < bounds.MinWidth {
		width = bounds.MinWidth
	}

	lineWidth := width - textPadding
	lines := 1.0
	if lineWidth > 0 && contentWidth > lineWidth {
		lines = math.Ceil(contentWidth / lineWidth)
	}

	height = lines*lineHeight + textPadding
	if height < bounds.MinHeight {
		height = bounds.MinHeight
	}
	return width, height
}
