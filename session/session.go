// Package session implements the interactive annotation editing engine:
// tool-driven creation, hit-testing, drag-based move/resize, deletion,
// duplication and snapshot-based undo/redo over a pending action list in
// viewport pixel space. All operations run on one logical thread.
package session

import (
	"errors"

	"github.com/pagemark/pagemark/annot"
	"github.com/pagemark/pagemark/coords"
)

// ErrSignatureNotSet is returned when the signature tool is used before a
// signature raster has been captured. The caller surfaces it as a warning;
// nothing is committed.
var ErrSignatureNotSet = errors.New("draw a signature before placing it")

// Tool selects what a drag on the canvas creates. ToolSelect (or no tool)
// makes drags transform existing objects only.
type Tool string

const ToolSelect Tool = "select"

// Handle identifies which part of a selected object a drag grabs.
type Handle string

const (
	HandleMove Handle = "move"
	HandleNW   Handle = "nw"
	HandleNE   Handle = "ne"
	HandleSE   Handle = "se"
	HandleSW   Handle = "sw"
	HandleP1   Handle = "p1"
	HandleP2   Handle = "p2"
)

// Selection points at one pending action and the handle being held.
type Selection struct {
	Index  int
	Handle Handle
}

const (
	handleRadius    = 6  // hit half-size of corner/endpoint handles, px
	hitPadding      = 6  // extra slop around a body for move hits, px
	minCreatePx     = 4  // smallest drag that creates an object, px
	duplicateOffset = 12 // px offset applied to duplicated objects
	defaultSegment  = 24 // length given to a zero-length line/arrow, px
)

type dragState struct {
	origin coords.Point
	start  *annot.Action // geometry snapshot at drag start
	moved  bool
}

type drawState struct {
	start  coords.Point
	last   coords.Point
	stroke []coords.Point // ink only
}

// Session owns the live mutable object list for one editing session.
type Session struct {
	page     int
	viewport coords.Size
	tool     Tool
	style    annot.Style
	signLogo []byte

	pending []*annot.Action
	history [][]*annot.Action
	cursor  int

	sel  *Selection
	drag *dragState
	draw *drawState
}

// New creates an empty session for a canvas of the given pixel size.
// The initial history entry is the empty state, so undo at position 0 is
// a no-op.
func New(viewport coords.Size) *Session {
	return &Session{
		viewport: viewport,
		history:  [][]*annot.Action{{}},
	}
}

func (s *Session) SetViewport(v coords.Size) { s.viewport = v }
func (s *Session) SetPage(page int)          { s.page = page }
func (s *Session) SetTool(t Tool)            { s.tool = t }
func (s *Session) SetStyle(st annot.Style)   { s.style = st }

// UseSignature captures the raster payload placed by the signature tool.
func (s *Session) UseSignature(image []byte) {
	s.signLogo = append([]byte(nil), image...)
}

// Pending returns the current pending action list. Callers render from it
// but must not mutate it.
func (s *Session) Pending() []*annot.Action { return s.pending }

// Selection returns the current selection, or nil.
func (s *Session) Selection() *Selection {
	if s.sel == nil {
		return nil
	}
	c := *s.sel
	return &c
}

// Actions returns a deep copy of the pending list for a save request.
func (s *Session) Actions() []*annot.Action { return annot.CloneList(s.pending) }

// Clear discards all pending actions and history, as after a successful
// save or a server-side rollback.
func (s *Session) Clear() {
	s.pending = nil
	s.history = [][]*annot.Action{{}}
	s.cursor = 0
	s.sel = nil
	s.drag = nil
	s.draw = nil
}

func (s *Session) bounds() coords.Rect {
	return coords.Rect{X0: 0, Y0: 0, X1: s.viewport.W, Y1: s.viewport.H}
}

func (s *Session) clamp(p coords.Point) coords.Point {
	return annot.ClampPoint(p, s.bounds())
}

// PointerDown starts either a transform drag (when an existing object is
// under the cursor) or a creation drag (when a tool is active).
func (s *Session) PointerDown(p coords.Point) error {
	if s.drag != nil || s.draw != nil {
		return nil
	}
	p = s.clamp(p)

	if hit := s.hitTest(p); hit != nil {
		s.sel = hit
		s.drag = &dragState{origin: p, start: s.pending[hit.Index].Clone()}
		return nil
	}

	s.sel = nil
	if s.tool == "" || s.tool == ToolSelect {
		return nil
	}
	if Tool(annot.KindSignature) == s.tool && len(s.signLogo) == 0 {
		return ErrSignatureNotSet
	}

	s.draw = &drawState{start: p, last: p}
	if s.tool == Tool(annot.KindInk) {
		s.draw.stroke = []coords.Point{p}
	}
	return nil
}

// PointerMove updates the in-progress drag or drawing.
func (s *Session) PointerMove(p coords.Point) {
	p = s.clamp(p)
	switch {
	case s.drag != nil:
		if s.sel == nil {
			// The dragged object was deleted mid-gesture.
			s.drag = nil
			return
		}
		dx, dy := p.X-s.drag.origin.X, p.Y-s.drag.origin.Y
		if dx != 0 || dy != 0 {
			s.drag.moved = true
		}
		s.pending[s.sel.Index] = s.transformed(s.drag.start, s.sel.Handle, dx, dy)
	case s.draw != nil:
		s.draw.last = p
		// Skip repeats of the last recorded point. PointerUp re-feeds its
		// release point through here, and a bare click must not turn into
		// a two-point stroke.
		if s.draw.stroke != nil && p != s.draw.stroke[len(s.draw.stroke)-1] {
			s.draw.stroke = append(s.draw.stroke, p)
		}
	}
}

// PointerUp finishes the gesture: a transform commits one history
// snapshot for the whole drag; a creation commits the new object if it
// clears the minimum on-screen size.
func (s *Session) PointerUp(p coords.Point) {
	switch {
	case s.drag != nil:
		moved := s.drag.moved
		s.drag = nil
		if moved {
			s.snapshot()
		}
	case s.draw != nil:
		s.PointerMove(p)
		a := s.buildAction(s.draw.start, s.draw.last, s.draw.stroke)
		s.draw = nil
		if a == nil {
			return
		}
		s.pending = append(s.pending, a)
		s.snapshot()
	}
}

// LivePreview returns the object being drawn right now, for overlay
// rendering. Nil when no creation drag is in progress.
func (s *Session) LivePreview() *annot.Action {
	if s.draw == nil {
		return nil
	}
	return s.buildAction(s.draw.start, s.draw.last, s.draw.stroke)
}

// buildAction materializes the creation gesture, or nil when it fails the
// commit rules (too small a drag, degenerate ink).
func (s *Session) buildAction(start, end coords.Point, stroke []coords.Point) *annot.Action {
	kind := annot.Kind(s.tool)
	a := &annot.Action{
		Kind:     kind,
		Page:     s.page,
		Style:    s.styleFor(kind),
		Viewport: s.viewport,
	}

	switch {
	case kind == annot.KindInk:
		if len(stroke) < 2 {
			return nil
		}
		a.Strokes = [][]coords.Point{append([]coords.Point(nil), stroke...)}
	case kind.PointPair():
		if start == end {
			// Degrade to a short default segment so the object stays
			// selectable.
			end = s.clamp(coords.Point{X: start.X + defaultSegment, Y: start.Y})
			if end == start {
				end = s.clamp(coords.Point{X: start.X - defaultSegment, Y: start.Y})
			}
		}
		a.Points = [2]coords.Point{start, end}
	case kind.RectLike():
		r := coords.Rect{X0: start.X, Y0: start.Y, X1: end.X, Y1: end.Y}.Normalize()
		if r.Width() < minCreatePx || r.Height() < minCreatePx {
			return nil
		}
		a.Rect = r
		if kind == annot.KindSignature {
			a.Image = append([]byte(nil), s.signLogo...)
		}
	default:
		return nil
	}
	return a
}

func (s *Session) styleFor(kind annot.Kind) annot.Style {
	st := s.style
	if st.Thickness <= 0 {
		st.Thickness = 2
	}
	switch kind {
	case annot.KindHighlight:
		st.Opacity = 0.35
	case annot.KindStrikeout:
		st.Opacity = 0.25
	default:
		if st.Opacity <= 0 || st.Opacity > 1 {
			st.Opacity = 1
		}
	}
	if kind == annot.KindTextbox && st.FontSize <= 0 {
		st.FontSize = 14
	}
	return st
}

// transformed recomputes geometry from the drag-start snapshot plus the
// cumulative pointer delta, so repeated moves do not accumulate drift.
func (s *Session) transformed(start *annot.Action, h Handle, dx, dy float64) *annot.Action {
	a := start.Clone()
	bounds := s.bounds()

	switch h {
	case HandleMove:
		a.Translate(dx, dy)
		switch {
		case a.Kind.RectLike():
			a.Rect = annot.ClipRect(a.Rect, bounds)
		case a.Kind.PointPair():
			a.Points[0] = annot.ClampPoint(a.Points[0], bounds)
			a.Points[1] = annot.ClampPoint(a.Points[1], bounds)
		case a.Kind == annot.KindInk:
			for _, stroke := range a.Strokes {
				for i := range stroke {
					stroke[i] = annot.ClampPoint(stroke[i], bounds)
				}
			}
		}
	case HandleNW:
		a.Rect.X0 += dx
		a.Rect.Y0 += dy
	case HandleNE:
		a.Rect.X1 += dx
		a.Rect.Y0 += dy
	case HandleSE:
		a.Rect.X1 += dx
		a.Rect.Y1 += dy
	case HandleSW:
		a.Rect.X0 += dx
		a.Rect.Y1 += dy
	case HandleP1:
		a.Points[0] = annot.ClampPoint(coords.Point{X: a.Points[0].X + dx, Y: a.Points[0].Y + dy}, bounds)
	case HandleP2:
		a.Points[1] = annot.ClampPoint(coords.Point{X: a.Points[1].X + dx, Y: a.Points[1].Y + dy}, bounds)
	}

	if a.Kind.RectLike() && h != HandleMove {
		a.Rect = annot.EnforceMinSize(a.Rect.Normalize(), bounds, minCreatePx, minCreatePx)
	}
	return a
}

// Delete removes the selected object and clears the selection.
func (s *Session) Delete() {
	if s.sel == nil {
		return
	}
	i := s.sel.Index
	s.pending = append(s.pending[:i], s.pending[i+1:]...)
	s.sel = nil
	s.drag = nil
	s.snapshot()
}

// Duplicate deep-copies the selected object with a fixed pixel offset,
// appends it and selects the copy.
func (s *Session) Duplicate() {
	if s.sel == nil {
		return
	}
	c := s.pending[s.sel.Index].Clone()
	c.Translate(duplicateOffset, duplicateOffset)
	bounds := s.bounds()
	switch {
	case c.Kind.RectLike():
		c.Rect = annot.ClipRect(c.Rect, bounds)
	case c.Kind.PointPair():
		c.Points[0] = annot.ClampPoint(c.Points[0], bounds)
		c.Points[1] = annot.ClampPoint(c.Points[1], bounds)
	}
	s.pending = append(s.pending, c)
	s.sel = &Selection{Index: len(s.pending) - 1, Handle: HandleMove}
	s.drag = nil
	s.snapshot()
}

// DoubleClick selects the textbox under p and returns its current text,
// so the caller can open an edit prompt. ok is false when no textbox is
// there; the selection is left untouched in that case.
func (s *Session) DoubleClick(p coords.Point) (text string, ok bool) {
	sel := s.hitTest(s.clamp(p))
	if sel == nil || s.pending[sel.Index].Kind != annot.KindTextbox {
		return "", false
	}
	sel.Handle = HandleMove
	s.sel = sel
	return s.pending[sel.Index].Style.Text, true
}

// EditText replaces the text of the selected textbox, as after a
// double-click prompt. Callers that cancel the prompt simply do not call.
func (s *Session) EditText(text string) {
	if s.sel == nil {
		return
	}
	a := s.pending[s.sel.Index]
	if a.Kind != annot.KindTextbox {
		return
	}
	a.Style.Text = text
	s.snapshot()
}
