package session

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pagemark/pagemark/annot"
	"github.com/pagemark/pagemark/coords"
)

func newTestSession() *Session {
	s := New(coords.Size{W: 800, H: 1035})
	s.SetStyle(annot.Style{Color: [3]uint8{255, 0, 0}, Thickness: 2})
	return s
}

func drawRect(t *testing.T, s *Session, tool Tool, from, to coords.Point) {
	t.Helper()
	s.SetTool(tool)
	if err := s.PointerDown(from); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	s.PointerMove(to)
	s.PointerUp(to)
}

func TestCreateHighlight(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindHighlight), coords.Point{X: 100, Y: 100}, coords.Point{X: 300, Y: 150})

	if len(s.Pending()) != 1 {
		t.Fatalf("pending = %d, want 1", len(s.Pending()))
	}
	a := s.Pending()[0]
	if a.Kind != annot.KindHighlight {
		t.Errorf("kind = %s", a.Kind)
	}
	if a.Rect != (coords.Rect{X0: 100, Y0: 100, X1: 300, Y1: 150}) {
		t.Errorf("rect = %+v", a.Rect)
	}
	if a.Style.Opacity != 0.35 {
		t.Errorf("opacity = %g, want highlight default 0.35", a.Style.Opacity)
	}
	if a.Viewport != (coords.Size{W: 800, H: 1035}) {
		t.Errorf("viewport = %+v", a.Viewport)
	}
}

func TestTinyDragCreatesNothing(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 50, Y: 50}, coords.Point{X: 52, Y: 51})
	if len(s.Pending()) != 0 {
		t.Fatalf("1px click created an object: %+v", s.Pending())
	}
	if s.CanUndo() {
		t.Fatal("nothing committed, but history grew")
	}
}

func TestReverseDragNormalizes(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 300, Y: 200}, coords.Point{X: 100, Y: 50})
	a := s.Pending()[0]
	if a.Rect != (coords.Rect{X0: 100, Y0: 50, X1: 300, Y1: 200}) {
		t.Fatalf("rect not normalized: %+v", a.Rect)
	}
}

func TestSinglePointInkIsDropped(t *testing.T) {
	s := newTestSession()
	s.SetTool(Tool(annot.KindInk))
	p := coords.Point{X: 40, Y: 40}
	if err := s.PointerDown(p); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	s.PointerUp(p)
	if len(s.Pending()) != 0 {
		t.Fatalf("1-point ink committed: %+v", s.Pending())
	}
}

func TestInkAccumulatesStroke(t *testing.T) {
	s := newTestSession()
	s.SetTool(Tool(annot.KindInk))
	if err := s.PointerDown(coords.Point{X: 10, Y: 10}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	s.PointerMove(coords.Point{X: 20, Y: 15})
	s.PointerMove(coords.Point{X: 30, Y: 25})
	s.PointerUp(coords.Point{X: 35, Y: 30})

	if len(s.Pending()) != 1 {
		t.Fatalf("pending = %d", len(s.Pending()))
	}
	stroke := s.Pending()[0].Strokes[0]
	if len(stroke) < 4 {
		t.Fatalf("stroke has %d points, want every move recorded", len(stroke))
	}
}

func TestSignatureRequiresPayload(t *testing.T) {
	s := newTestSession()
	s.SetTool(Tool(annot.KindSignature))
	err := s.PointerDown(coords.Point{X: 10, Y: 10})
	if !errors.Is(err, ErrSignatureNotSet) {
		t.Fatalf("err = %v, want ErrSignatureNotSet", err)
	}

	s.UseSignature([]byte{0x89, 0x50})
	drawRect(t, s, Tool(annot.KindSignature), coords.Point{X: 10, Y: 10}, coords.Point{X: 110, Y: 60})
	if len(s.Pending()) != 1 || len(s.Pending()[0].Image) == 0 {
		t.Fatal("signature with payload should commit with image bytes")
	}
}

func TestZeroLengthLineDegradesToSegment(t *testing.T) {
	s := newTestSession()
	s.SetTool(Tool(annot.KindArrow))
	p := coords.Point{X: 400, Y: 400}
	if err := s.PointerDown(p); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	s.PointerUp(p)
	if len(s.Pending()) != 1 {
		t.Fatal("degenerate arrow was not committed")
	}
	a := s.Pending()[0]
	if a.Points[0] == a.Points[1] {
		t.Fatalf("arrow still zero-length: %+v", a.Points)
	}
}

func TestHitTestTopmostWins(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 100, Y: 100}, coords.Point{X: 200, Y: 200})
	// Start outside the first rect, or pointer-down grabs it instead of
	// drawing. The reverse drag normalizes to 150,150..250,250.
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 250, Y: 250}, coords.Point{X: 150, Y: 150})

	s.SetTool(ToolSelect)
	// Click in the overlap region away from any handle.
	if err := s.PointerDown(coords.Point{X: 170, Y: 172}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	sel := s.Selection()
	if sel == nil || sel.Index != 1 {
		t.Fatalf("selection = %+v, want index 1 (created later)", sel)
	}
	s.PointerUp(coords.Point{X: 170, Y: 172})
}

func TestDragMoveIsDriftFree(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 100, Y: 100}, coords.Point{X: 200, Y: 200})

	s.SetTool(ToolSelect)
	if err := s.PointerDown(coords.Point{X: 150, Y: 150}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	// Many intermediate moves; the result must depend only on the total delta.
	for i := 1; i <= 10; i++ {
		s.PointerMove(coords.Point{X: 150 + float64(i)*3, Y: 150 + float64(i)*2})
	}
	s.PointerUp(coords.Point{X: 180, Y: 170})

	got := s.Pending()[0].Rect
	if got != (coords.Rect{X0: 130, Y0: 120, X1: 230, Y1: 220}) {
		t.Fatalf("rect after move = %+v, want translated by (30,20)", got)
	}
}

func TestCornerResizeAndRenormalize(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 100, Y: 100}, coords.Point{X: 200, Y: 200})

	s.SetTool(ToolSelect)
	// Grab the SE corner and drag it past the NW corner.
	if err := s.PointerDown(coords.Point{X: 200, Y: 200}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	if sel := s.Selection(); sel == nil || sel.Handle != HandleSE {
		t.Fatalf("selection = %+v, want SE handle", sel)
	}
	s.PointerMove(coords.Point{X: 60, Y: 40})
	s.PointerUp(coords.Point{X: 60, Y: 40})

	got := s.Pending()[0].Rect
	if got != (coords.Rect{X0: 60, Y0: 40, X1: 100, Y1: 100}) {
		t.Fatalf("rect after cross-over resize = %+v", got)
	}
}

func TestMoveClampsToViewport(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 10, Y: 10}, coords.Point{X: 110, Y: 110})

	s.SetTool(ToolSelect)
	if err := s.PointerDown(coords.Point{X: 60, Y: 60}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	s.PointerMove(coords.Point{X: 0, Y: 0})
	s.PointerUp(coords.Point{X: 0, Y: 0})

	got := s.Pending()[0].Rect
	if got.X0 < 0 || got.Y0 < 0 {
		t.Fatalf("rect escaped viewport: %+v", got)
	}
}

func TestLineEndpointDrag(t *testing.T) {
	s := newTestSession()
	s.SetTool(Tool(annot.KindLine))
	if err := s.PointerDown(coords.Point{X: 100, Y: 100}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	s.PointerMove(coords.Point{X: 300, Y: 300})
	s.PointerUp(coords.Point{X: 300, Y: 300})

	s.SetTool(ToolSelect)
	if err := s.PointerDown(coords.Point{X: 300, Y: 300}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	if sel := s.Selection(); sel == nil || sel.Handle != HandleP2 {
		t.Fatalf("selection = %+v, want P2 handle", sel)
	}
	s.PointerMove(coords.Point{X: 400, Y: 250})
	s.PointerUp(coords.Point{X: 400, Y: 250})

	a := s.Pending()[0]
	if a.Points[0] != (coords.Point{X: 100, Y: 100}) || a.Points[1] != (coords.Point{X: 400, Y: 250}) {
		t.Fatalf("points after endpoint drag = %+v", a.Points)
	}
}

func TestDuplicateThenDeleteOriginal(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 100, Y: 100}, coords.Point{X: 200, Y: 200})

	s.SetTool(ToolSelect)
	if err := s.PointerDown(coords.Point{X: 150, Y: 150}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	s.PointerUp(coords.Point{X: 150, Y: 150})
	s.Duplicate()

	// Select and delete the original.
	s.sel = &Selection{Index: 0, Handle: HandleMove}
	s.Delete()

	if len(s.Pending()) != 1 {
		t.Fatalf("pending = %d, want 1", len(s.Pending()))
	}
	got := s.Pending()[0].Rect
	want := coords.Rect{X0: 100 + duplicateOffset, Y0: 100 + duplicateOffset, X1: 200 + duplicateOffset, Y1: 200 + duplicateOffset}
	if got != want {
		t.Fatalf("duplicate rect = %+v, want %+v", got, want)
	}
}

func TestDeleteMidDragStopsGesture(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 100, Y: 100}, coords.Point{X: 200, Y: 200})

	s.SetTool(ToolSelect)
	if err := s.PointerDown(coords.Point{X: 150, Y: 150}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	s.Delete()

	// The gesture is dead: further pointer events must be no-ops.
	s.PointerMove(coords.Point{X: 300, Y: 300})
	s.PointerUp(coords.Point{X: 300, Y: 300})

	if len(s.Pending()) != 0 {
		t.Fatalf("pending = %d, want 0 after delete", len(s.Pending()))
	}
	if s.Selection() != nil {
		t.Fatal("selection survived delete")
	}
}

func TestEditText(t *testing.T) {
	s := newTestSession()
	s.SetStyle(annot.Style{Thickness: 2, FontSize: 14})
	drawRect(t, s, Tool(annot.KindTextbox), coords.Point{X: 50, Y: 50}, coords.Point{X: 250, Y: 120})

	if _, ok := s.DoubleClick(coords.Point{X: 400, Y: 400}); ok {
		t.Fatal("double-click on empty canvas reported a textbox")
	}
	text, ok := s.DoubleClick(coords.Point{X: 150, Y: 85})
	if !ok || text != "" {
		t.Fatalf("DoubleClick = (%q, %v), want empty textbox hit", text, ok)
	}
	s.EditText("reviewed")
	if s.Pending()[0].Style.Text != "reviewed" {
		t.Fatalf("text = %q", s.Pending()[0].Style.Text)
	}

	s.Undo()
	if s.Pending()[0].Style.Text != "" {
		t.Fatalf("undo did not restore empty text: %q", s.Pending()[0].Style.Text)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	s := newTestSession()

	// N mutations.
	drawRect(t, s, Tool(annot.KindHighlight), coords.Point{X: 10, Y: 10}, coords.Point{X: 100, Y: 40})
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 50, Y: 50}, coords.Point{X: 150, Y: 150})
	s.sel = &Selection{Index: 1, Handle: HandleMove}
	s.Duplicate()
	after := annot.CloneList(s.Pending())

	for i := 0; i < 3; i++ {
		s.Undo()
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("after N undos pending = %d, want 0", len(s.Pending()))
	}
	s.Undo() // no-op at position 0
	if len(s.Pending()) != 0 {
		t.Fatal("undo at initial state mutated the list")
	}

	for i := 0; i < 3; i++ {
		s.Redo()
	}
	if diff := cmp.Diff(after, s.Pending()); diff != "" {
		t.Fatalf("redo did not restore state (-want +got):\n%s", diff)
	}
	s.Redo() // no-op at newest snapshot
	if diff := cmp.Diff(after, s.Pending()); diff != "" {
		t.Fatalf("redo at newest snapshot changed state:\n%s", diff)
	}
}

func TestNewMutationTruncatesRedo(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 10, Y: 10}, coords.Point{X: 60, Y: 60})
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 100, Y: 100}, coords.Point{X: 160, Y: 160})

	s.Undo()
	if !s.CanRedo() {
		t.Fatal("expected redo available after undo")
	}
	drawRect(t, s, Tool(annot.KindEllipse), coords.Point{X: 300, Y: 300}, coords.Point{X: 400, Y: 380}) // new branch
	if s.CanRedo() {
		t.Fatal("redo should be truncated by a new mutation")
	}
	if len(s.Pending()) != 2 {
		t.Fatalf("pending = %d, want 2", len(s.Pending()))
	}
	if s.Pending()[1].Kind != annot.KindEllipse {
		t.Fatalf("kinds = %s,%s", s.Pending()[0].Kind, s.Pending()[1].Kind)
	}
}

func TestPageIsolation(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 100, Y: 100}, coords.Point{X: 200, Y: 200})

	s.SetPage(1)
	s.SetTool(ToolSelect)
	if err := s.PointerDown(coords.Point{X: 150, Y: 150}); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	if s.Selection() != nil {
		t.Fatal("hit test crossed pages")
	}
}

func TestClearResetsEverything(t *testing.T) {
	s := newTestSession()
	drawRect(t, s, Tool(annot.KindRectangle), coords.Point{X: 10, Y: 10}, coords.Point{X: 60, Y: 60})
	s.Clear()
	if len(s.Pending()) != 0 || s.CanUndo() || s.CanRedo() {
		t.Fatal("Clear left residual state")
	}
}
