// Package annot defines the annotation object model shared by the
// interactive editing session and the server-side apply pipeline: one
// tagged Action per drawn element, plus the geometry helpers both sides
// use so that preview and committed output agree on shape.
package annot

import (
	"github.com/pagemark/pagemark/coords"
)

// Kind identifies the annotation type of an Action.
type Kind string

const (
	KindHighlight Kind = "highlight"
	KindStrikeout Kind = "strikeout"
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindLine      Kind = "line"
	KindArrow     Kind = "arrow"
	KindInk       Kind = "ink"
	KindTextbox   Kind = "textbox"
	KindSignature Kind = "signature"
	KindTick      Kind = "tick"
	KindCross     Kind = "cross"
)

// Valid reports whether k is one of the creatable kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHighlight, KindStrikeout, KindRectangle, KindEllipse, KindLine,
		KindArrow, KindInk, KindTextbox, KindSignature, KindTick, KindCross:
		return true
	}
	return false
}

// RectLike reports whether k carries rect geometry.
func (k Kind) RectLike() bool {
	switch k {
	case KindHighlight, KindStrikeout, KindRectangle, KindEllipse,
		KindTextbox, KindSignature, KindTick, KindCross:
		return true
	}
	return false
}

// PointPair reports whether k carries two-endpoint geometry.
func (k Kind) PointPair() bool { return k == KindLine || k == KindArrow }

// Style carries the visual attributes of an Action.
type Style struct {
	Color     [3]uint8
	Thickness float64
	Opacity   float64
	FontSize  float64
	Text      string
}

// Action is one drawn annotation object. Geometry is in viewport pixel
// space; Viewport records the canvas size the object was drawn on, so the
// apply pipeline can reproduce the scale regardless of later zooming.
type Action struct {
	Kind     Kind
	Page     int
	Rect     coords.Rect      // rect-like kinds
	Points   [2]coords.Point  // line, arrow
	Strokes  [][]coords.Point // ink
	Style    Style
	Image    []byte // signature raster payload
	Viewport coords.Size
}

// Clone returns a deep copy. Snapshots of the pending action list rely on
// clones being fully independent of the source.
func (a *Action) Clone() *Action {
	c := *a
	if a.Strokes != nil {
		c.Strokes = make([][]coords.Point, len(a.Strokes))
		for i, s := range a.Strokes {
			c.Strokes[i] = append([]coords.Point(nil), s...)
		}
	}
	if a.Image != nil {
		c.Image = append([]byte(nil), a.Image...)
	}
	return &c
}

// CloneList deep-copies a pending action list.
func CloneList(actions []*Action) []*Action {
	out := make([]*Action, len(actions))
	for i, a := range actions {
		out[i] = a.Clone()
	}
	return out
}

// Translate moves the whole geometry by (dx, dy).
func (a *Action) Translate(dx, dy float64) {
	switch {
	case a.Kind.RectLike():
		a.Rect.X0 += dx
		a.Rect.Y0 += dy
		a.Rect.X1 += dx
		a.Rect.Y1 += dy
	case a.Kind.PointPair():
		for i := range a.Points {
			a.Points[i].X += dx
			a.Points[i].Y += dy
		}
	case a.Kind == KindInk:
		for _, s := range a.Strokes {
			for i := range s {
				s[i].X += dx
				s[i].Y += dy
			}
		}
	}
}

// Bounds returns the bounding rectangle of the geometry, whatever its shape.
func (a *Action) Bounds() coords.Rect {
	switch {
	case a.Kind.RectLike():
		return a.Rect.Normalize()
	case a.Kind.PointPair():
		return coords.Rect{
			X0: a.Points[0].X, Y0: a.Points[0].Y,
			X1: a.Points[1].X, Y1: a.Points[1].Y,
		}.Normalize()
	}
	first := true
	var b coords.Rect
	for _, s := range a.Strokes {
		for _, p := range s {
			if first {
				b = coords.Rect{X0: p.X, Y0: p.Y, X1: p.X, Y1: p.Y}
				first = false
				continue
			}
			if p.X < b.X0 {
				b.X0 = p.X
			}
			if p.X > b.X1 {
				b.X1 = p.X
			}
			if p.Y < b.Y0 {
				b.Y0 = p.Y
			}
			if p.Y > b.Y1 {
				b.Y1 = p.Y
			}
		}
	}
	return b
}
