// Package apply turns a batch of annotation actions into PDF
// mutations. Each annotation kind has a writer strategy that commits
// the native primitive when the document supports it and an explicit
// stand-in when it does not, so a batch never half-fails on a feature
// gap.
package apply

import (
	"errors"
	"fmt"

	"github.com/pagemark/pagemark/annot"
	"github.com/pagemark/pagemark/coords"
	"github.com/pagemark/pagemark/observability"
	"github.com/pagemark/pagemark/pdf"
)

// Outcome classifies how one action landed in the document.
type Outcome string

const (
	// OutcomeApplied means the native annotation primitive was written.
	OutcomeApplied Outcome = "applied"
	// OutcomeFallback means a visual stand-in was written instead.
	OutcomeFallback Outcome = "fallback"
	// OutcomeSkipped means the action produced no output.
	OutcomeSkipped Outcome = "skipped"
)

// Result reports the outcome for one action of a batch, in input order.
type Result struct {
	Index   int        `json:"index"`
	Kind    annot.Kind `json:"kind"`
	Outcome Outcome    `json:"outcome"`
	Note    string     `json:"note,omitempty"`
}

// Committed rect-like shapes never go below this size in document
// units; anything smaller is invisible at print resolution.
const minCommitSize = 6.0

// Pipeline applies validated action batches to parsed documents.
type Pipeline struct {
	log observability.Logger
}

func NewPipeline(log observability.Logger) *Pipeline {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Pipeline{log: log}
}

// geometry is an action's shape mapped into document space (top-left
// origin, document units).
type geometry struct {
	rect    coords.Rect
	points  [2]coords.Point
	strokes [][]coords.Point
	bounds  coords.Rect
}

type writerFunc func(p *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error)

var writers = map[annot.Kind]writerFunc{
	annot.KindHighlight: writeHighlight,
	annot.KindStrikeout: writeStrikeout,
	annot.KindRectangle: writeRectangle,
	annot.KindEllipse:   writeEllipse,
	annot.KindLine:      writeLine,
	annot.KindArrow:     writeArrow,
	annot.KindInk:       writeInk,
	annot.KindTextbox:   writeTextbox,
	annot.KindSignature: writeSignature,
	annot.KindTick:      writeTick,
	annot.KindCross:     writeCross,
}

// Apply validates the whole batch up front and then writes each action
// into doc. Validation failures reject the entire batch before any
// mutation; a writer error mid-batch also returns an error, and the
// caller must discard the document rather than save a partial result.
func (p *Pipeline) Apply(doc *pdf.Document, actions []*annot.Action) ([]Result, error) {
	for i, a := range actions {
		if err := a.Validate(doc.PageCount()); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
	}

	results := make([]Result, 0, len(actions))
	for i, a := range actions {
		page, err := doc.Page(a.Page)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		g := p.mapGeometry(page, a)
		outcome, note, err := writers[a.Kind](p, page, a, g)
		if err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", i, a.Kind, err)
		}
		if outcome != OutcomeApplied {
			p.log.Info("annotation degraded",
				observability.Int("action", i),
				observability.String("kind", string(a.Kind)),
				observability.String("outcome", string(outcome)),
				observability.String("note", note))
		}
		results = append(results, Result{Index: i, Kind: a.Kind, Outcome: outcome, Note: note})
	}
	return results, nil
}

// mapGeometry scales the action's viewport-pixel shape into document
// space. An action recorded without a viewport is taken at face value
// against the page size, which only holds for unzoomed canvases, so it
// is worth a warning.
func (p *Pipeline) mapGeometry(page *pdf.Page, a *annot.Action) geometry {
	pageSize := page.Size()
	viewport := a.Viewport
	if viewport.W <= 0 || viewport.H <= 0 {
		p.log.Warn("action carries no viewport, assuming page-sized canvas",
			observability.String("kind", string(a.Kind)),
			observability.Int("page", a.Page))
		viewport = pageSize
	}
	bounds := coords.Rect{X1: pageSize.W, Y1: pageSize.H}

	g := geometry{bounds: bounds}
	switch {
	case a.Kind.RectLike():
		r := coords.ToDocumentRect(a.Rect, viewport, pageSize)
		g.rect = annot.EnforceMinSize(r, bounds, minCommitSize, minCommitSize)
	case a.Kind.PointPair():
		for i, pt := range a.Points {
			g.points[i] = annot.ClampPoint(coords.ToDocumentPoint(pt, viewport, pageSize), bounds)
		}
	case a.Kind == annot.KindInk:
		for _, stroke := range a.Strokes {
			mapped := make([]coords.Point, len(stroke))
			for i, pt := range stroke {
				mapped[i] = annot.ClampPoint(coords.ToDocumentPoint(pt, viewport, pageSize), bounds)
			}
			g.strokes = append(g.strokes, mapped)
		}
	}
	return g
}

func styleColor(a *annot.Action) [3]float64 {
	return [3]float64{
		float64(a.Style.Color[0]) / 255,
		float64(a.Style.Color[1]) / 255,
		float64(a.Style.Color[2]) / 255,
	}
}

func styleWidth(a *annot.Action) float64 {
	if a.Style.Thickness > 0 {
		return a.Style.Thickness
	}
	return 2
}

func styleOpacity(a *annot.Action) float64 {
	if a.Style.Opacity > 0 && a.Style.Opacity <= 1 {
		return a.Style.Opacity
	}
	switch a.Kind {
	case annot.KindHighlight:
		return 0.35
	case annot.KindStrikeout:
		return 0.25
	}
	return 1
}

func writeHighlight(p *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	color := styleColor(a)
	opacity := styleOpacity(a)
	_, err := page.AddTextMarkup("Highlight", page.FromTopLeft(g.rect), color, opacity)
	if err == nil {
		return OutcomeApplied, "", nil
	}
	if !errors.Is(err, pdf.ErrNoTextLayer) {
		return "", "", err
	}
	page.AddSquare(page.FromTopLeft(g.rect), color, &color, 0.5, opacity)
	return OutcomeFallback, "no text layer, drew a translucent box", nil
}

func writeStrikeout(p *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	color := styleColor(a)
	_, err := page.AddTextMarkup("StrikeOut", page.FromTopLeft(g.rect), color, styleOpacity(a))
	if err == nil {
		return OutcomeApplied, "", nil
	}
	if !errors.Is(err, pdf.ErrNoTextLayer) {
		return "", "", err
	}
	midY := (g.rect.Y0 + g.rect.Y1) / 2
	from := page.PointFromTopLeft(coords.Point{X: g.rect.X0, Y: midY})
	to := page.PointFromTopLeft(coords.Point{X: g.rect.X1, Y: midY})
	if _, err := page.AddLine(from, to, color, styleWidth(a), 1, [2]string{}); err != nil {
		return "", "", err
	}
	return OutcomeFallback, "no text layer, drew a strike line through the box", nil
}

func writeRectangle(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	page.AddSquare(page.FromTopLeft(g.rect), styleColor(a), nil, styleWidth(a), styleOpacity(a))
	return OutcomeApplied, "", nil
}

func writeEllipse(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	page.AddCircle(page.FromTopLeft(g.rect), styleColor(a), nil, styleWidth(a), styleOpacity(a))
	return OutcomeApplied, "", nil
}

func writeLine(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	from := page.PointFromTopLeft(g.points[0])
	to := page.PointFromTopLeft(g.points[1])
	if _, err := page.AddLine(from, to, styleColor(a), styleWidth(a), styleOpacity(a), [2]string{}); err != nil {
		return "", "", err
	}
	return OutcomeApplied, "", nil
}

func writeArrow(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	from := page.PointFromTopLeft(g.points[0])
	to := page.PointFromTopLeft(g.points[1])
	color := styleColor(a)
	width := styleWidth(a)
	opacity := styleOpacity(a)
	_, err := page.AddLine(from, to, color, width, opacity, [2]string{"None", "OpenArrow"})
	if err == nil {
		return OutcomeApplied, "", nil
	}
	if !errors.Is(err, pdf.ErrUnsupportedEnding) {
		return "", "", err
	}
	if _, err := page.AddLine(from, to, color, width, opacity, [2]string{}); err != nil {
		return "", "", err
	}
	return OutcomeFallback, "arrowhead styling unavailable, drew a plain line", nil
}

func writeInk(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	var strokes [][]pdf.Point
	for _, stroke := range g.strokes {
		if len(stroke) < 2 {
			continue
		}
		mapped := make([]pdf.Point, len(stroke))
		for i, pt := range stroke {
			mapped[i] = page.PointFromTopLeft(pt)
		}
		strokes = append(strokes, mapped)
	}
	if len(strokes) == 0 {
		return OutcomeSkipped, "no stroke has enough points to draw", nil
	}
	if _, err := page.AddInk(strokes, styleColor(a), styleWidth(a), styleOpacity(a)); err != nil {
		return "", "", err
	}
	if len(strokes) < len(g.strokes) {
		return OutcomeApplied, fmt.Sprintf("dropped %d degenerate strokes", len(g.strokes)-len(strokes)), nil
	}
	return OutcomeApplied, "", nil
}

func writeTextbox(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	fontSize := a.Style.FontSize
	if fontSize <= 0 {
		fontSize = 14
	}
	r := g.rect
	// One line of text must fit, whatever box the user dragged.
	if minH := fontSize * 1.4; r.Height() < minH {
		r.Y1 = r.Y0 + minH
		r = annot.ClipRect(r, g.bounds)
	}
	page.AddFreeText(page.FromTopLeft(r), a.Style.Text, styleColor(a), fontSize)
	return OutcomeApplied, "", nil
}

func writeSignature(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	if len(a.Image) == 0 {
		return OutcomeSkipped, "signature action carries no image payload", nil
	}
	img, err := pdf.DecodeImage(a.Image)
	if err != nil {
		return OutcomeSkipped, fmt.Sprintf("undecodable signature image: %v", err), nil
	}
	if _, err := page.PlaceImage(img, page.FromTopLeft(g.rect), styleOpacity(a)); err != nil {
		return "", "", err
	}
	return OutcomeApplied, "", nil
}

// writeTick draws a check mark as an ink stroke inscribed in the rect.
func writeTick(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	r := g.rect
	stroke := []coords.Point{
		{X: r.X0 + 0.15*r.Width(), Y: r.Y0 + 0.55*r.Height()},
		{X: r.X0 + 0.40*r.Width(), Y: r.Y0 + 0.80*r.Height()},
		{X: r.X0 + 0.85*r.Width(), Y: r.Y0 + 0.20*r.Height()},
	}
	return writeGlyphStrokes(page, a, [][]coords.Point{stroke})
}

// writeCross draws two diagonal strokes inscribed in the rect.
func writeCross(_ *Pipeline, page *pdf.Page, a *annot.Action, g geometry) (Outcome, string, error) {
	r := g.rect.Inset(0.15 * minF(g.rect.Width(), g.rect.Height()))
	strokes := [][]coords.Point{
		{{X: r.X0, Y: r.Y0}, {X: r.X1, Y: r.Y1}},
		{{X: r.X0, Y: r.Y1}, {X: r.X1, Y: r.Y0}},
	}
	return writeGlyphStrokes(page, a, strokes)
}

func writeGlyphStrokes(page *pdf.Page, a *annot.Action, strokes [][]coords.Point) (Outcome, string, error) {
	mapped := make([][]pdf.Point, len(strokes))
	for i, stroke := range strokes {
		mapped[i] = make([]pdf.Point, len(stroke))
		for j, pt := range stroke {
			mapped[i][j] = page.PointFromTopLeft(pt)
		}
	}
	if _, err := page.AddInk(mapped, styleColor(a), styleWidth(a), styleOpacity(a)); err != nil {
		return "", "", err
	}
	return OutcomeApplied, "", nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
