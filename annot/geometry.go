package annot

import (
	"math"

	"github.com/pagemark/pagemark/coords"
)

// ClipRect intersects r with bounds. A rect entirely outside bounds
// collapses onto the nearest edge.
func ClipRect(r, bounds coords.Rect) coords.Rect {
	clampX := func(x float64) float64 { return math.Min(math.Max(x, bounds.X0), bounds.X1) }
	clampY := func(y float64) float64 { return math.Min(math.Max(y, bounds.Y0), bounds.Y1) }
	return coords.Rect{X0: clampX(r.X0), Y0: clampY(r.Y0), X1: clampX(r.X1), Y1: clampY(r.Y1)}
}

// ClampPoint constrains p to bounds.
func ClampPoint(p coords.Point, bounds coords.Rect) coords.Point {
	return coords.Point{
		X: math.Min(math.Max(p.X, bounds.X0), bounds.X1),
		Y: math.Min(math.Max(p.Y, bounds.Y0), bounds.Y1),
	}
}

// EnforceMinSize expands r around its center to at least minW x minH,
// then clips to bounds. If clipping left the rect degenerate (the center
// was at or past an edge), a minimum-size rect is recentered within
// bounds instead. Both client preview and server output run their rects
// through this, so edge cases land on the same shape.
func EnforceMinSize(r, bounds coords.Rect, minW, minH float64) coords.Rect {
	r = r.Normalize()
	cx := (r.X0 + r.X1) / 2
	cy := (r.Y0 + r.Y1) / 2
	if r.Width() < minW {
		r.X0 = cx - minW/2
		r.X1 = cx + minW/2
	}
	if r.Height() < minH {
		r.Y0 = cy - minH/2
		r.Y1 = cy + minH/2
	}
	r = ClipRect(r, bounds)
	if r.Width() >= minW && r.Height() >= minH {
		return r
	}

	w := math.Min(minW, bounds.Width())
	h := math.Min(minH, bounds.Height())
	cx = math.Min(math.Max(cx, bounds.X0+w/2), bounds.X1-w/2)
	cy = math.Min(math.Max(cy, bounds.Y0+h/2), bounds.Y1-h/2)
	return coords.Rect{X0: cx - w/2, Y0: cy - h/2, X1: cx + w/2, Y1: cy + h/2}
}
