package session

import (
	"math"

	"github.com/pagemark/pagemark/annot"
	"github.com/pagemark/pagemark/coords"
)

// hitTest finds the topmost object under p on the current page, checking
// handles before bodies. Later-created objects win ties because they draw
// on top.
func (s *Session) hitTest(p coords.Point) *Selection {
	for i := len(s.pending) - 1; i >= 0; i-- {
		a := s.pending[i]
		if a.Page != s.page {
			continue
		}
		if h := hitAction(a, p); h != "" {
			return &Selection{Index: i, Handle: h}
		}
	}
	return nil
}

func hitAction(a *annot.Action, p coords.Point) Handle {
	switch {
	case a.Kind.RectLike():
		return hitRect(a.Rect.Normalize(), p)
	case a.Kind.PointPair():
		return hitSegment(a.Points[0], a.Points[1], a.Style.Thickness, p)
	case a.Kind == annot.KindInk:
		if a.Bounds().Inset(-hitPadding).Contains(p) {
			return HandleMove
		}
	}
	return ""
}

func hitRect(r coords.Rect, p coords.Point) Handle {
	corners := []struct {
		h Handle
		c coords.Point
	}{
		{HandleNW, coords.Point{X: r.X0, Y: r.Y0}},
		{HandleNE, coords.Point{X: r.X1, Y: r.Y0}},
		{HandleSE, coords.Point{X: r.X1, Y: r.Y1}},
		{HandleSW, coords.Point{X: r.X0, Y: r.Y1}},
	}
	for _, c := range corners {
		if math.Abs(p.X-c.c.X) <= handleRadius && math.Abs(p.Y-c.c.Y) <= handleRadius {
			return c.h
		}
	}
	if r.Inset(-hitPadding).Contains(p) {
		return HandleMove
	}
	return ""
}

func hitSegment(p1, p2 coords.Point, thickness float64, p coords.Point) Handle {
	if math.Abs(p.X-p1.X) <= handleRadius && math.Abs(p.Y-p1.Y) <= handleRadius {
		return HandleP1
	}
	if math.Abs(p.X-p2.X) <= handleRadius && math.Abs(p.Y-p2.Y) <= handleRadius {
		return HandleP2
	}
	reach := math.Max(hitPadding, thickness/2+3)
	if distanceToSegment(p, p1, p2) <= reach {
		return HandleMove
	}
	return ""
}

// distanceToSegment returns the distance from p to the segment ab.
func distanceToSegment(p, a, b coords.Point) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	apx, apy := p.X-a.X, p.Y-a.Y
	lenSq := abx*abx + aby*aby
	t := 0.0
	if lenSq > 0 {
		t = (apx*abx + apy*aby) / lenSq
		t = math.Min(1, math.Max(0, t))
	}
	dx := p.X - (a.X + t*abx)
	dy := p.Y - (a.Y + t*aby)
	return math.Hypot(dx, dy)
}
