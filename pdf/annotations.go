package pdf

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf16"
)

var (
	// ErrNoTextLayer means a text-markup annotation was requested on a
	// page without text showing operators to anchor to.
	ErrNoTextLayer = errors.New("pdf: page has no text layer")

	// ErrUnsupportedEnding is returned for a line ending style this
	// writer does not emit.
	ErrUnsupportedEnding = errors.New("pdf: unsupported line ending style")
)

var lineEndings = map[string]bool{
	"None": true, "OpenArrow": true, "ClosedArrow": true,
	"Square": true, "Circle": true, "Diamond": true,
	"Butt": true, "Slash": true, "ROpenArrow": true, "RClosedArrow": true,
}

func colorArray(c [3]float64) Array {
	return Array{Real(c[0]), Real(c[1]), Real(c[2])}
}

func baseAnnot(subtype Name, rect Rectangle) Dict {
	return Dict{
		"Subtype": subtype,
		"Rect":    rect.Array(),
		"F":       Integer(4), // print flag
		"M":       String(pdfDate(time.Now())),
	}
}

func pdfDate(t time.Time) string {
	return t.UTC().Format("D:20060102150405Z")
}

func withOpacity(d Dict, opacity float64) {
	if opacity > 0 && opacity < 1 {
		d["CA"] = Real(opacity)
	}
}

func borderStyle(width float64) Dict {
	return Dict{"Type": Name("Border"), "W": Real(width), "S": Name("S")}
}

// quadPoints builds the single-quad QuadPoints array for rect:
// upper-left, upper-right, lower-left, lower-right.
func quadPoints(r Rectangle) Array {
	return Array{
		Real(r.LLX), Real(r.URY),
		Real(r.URX), Real(r.URY),
		Real(r.LLX), Real(r.LLY),
		Real(r.URX), Real(r.LLY),
	}
}

// AddTextMarkup attaches a Highlight or StrikeOut annotation spanning
// rect. It fails with ErrNoTextLayer when the page shows no text, so
// callers can pick a geometric stand-in instead.
func (p *Page) AddTextMarkup(subtype Name, rect Rectangle, color [3]float64, opacity float64) (Ref, error) {
	if subtype != "Highlight" && subtype != "StrikeOut" {
		return Ref{}, fmt.Errorf("pdf: unsupported markup subtype /%s", subtype)
	}
	if !p.HasTextLayer() {
		return Ref{}, ErrNoTextLayer
	}
	d := baseAnnot(subtype, rect)
	d["QuadPoints"] = quadPoints(rect)
	d["C"] = colorArray(color)
	withOpacity(d, opacity)
	return p.addAnnot(d), nil
}

// AddSquare attaches a Square annotation. A nil fill leaves the
// interior empty.
func (p *Page) AddSquare(rect Rectangle, color [3]float64, fill *[3]float64, width, opacity float64) Ref {
	d := baseAnnot("Square", rect)
	d["C"] = colorArray(color)
	d["BS"] = borderStyle(width)
	if fill != nil {
		d["IC"] = colorArray(*fill)
	}
	withOpacity(d, opacity)
	return p.addAnnot(d)
}

// AddCircle attaches a Circle (ellipse) annotation inscribed in rect.
func (p *Page) AddCircle(rect Rectangle, color [3]float64, fill *[3]float64, width, opacity float64) Ref {
	d := baseAnnot("Circle", rect)
	d["C"] = colorArray(color)
	d["BS"] = borderStyle(width)
	if fill != nil {
		d["IC"] = colorArray(*fill)
	}
	withOpacity(d, opacity)
	return p.addAnnot(d)
}

// AddLine attaches a Line annotation from a to b. Ending styles not in
// the supported set fail with ErrUnsupportedEnding; callers degrade to
// plain endings.
func (p *Page) AddLine(a, b Point, color [3]float64, width, opacity float64, endings [2]string) (Ref, error) {
	for _, e := range endings {
		if e != "" && !lineEndings[e] {
			return Ref{}, fmt.Errorf("%w: %q", ErrUnsupportedEnding, e)
		}
	}
	rect := Rectangle{
		LLX: minF(a.X, b.X) - width - 4, LLY: minF(a.Y, b.Y) - width - 4,
		URX: maxF(a.X, b.X) + width + 4, URY: maxF(a.Y, b.Y) + width + 4,
	}
	d := baseAnnot("Line", rect)
	d["L"] = Array{Real(a.X), Real(a.Y), Real(b.X), Real(b.Y)}
	d["C"] = colorArray(color)
	d["BS"] = borderStyle(width)
	if endings[0] != "" || endings[1] != "" {
		le := [2]string{endings[0], endings[1]}
		for i := range le {
			if le[i] == "" {
				le[i] = "None"
			}
		}
		d["LE"] = Array{Name(le[0]), Name(le[1])}
	}
	withOpacity(d, opacity)
	return p.addAnnot(d), nil
}

// AddInk attaches an Ink annotation with one InkList entry per stroke.
func (p *Page) AddInk(strokes [][]Point, color [3]float64, width, opacity float64) (Ref, error) {
	if len(strokes) == 0 {
		return Ref{}, fmt.Errorf("pdf: ink annotation needs at least one stroke")
	}
	var rect Rectangle
	first := true
	inkList := make(Array, 0, len(strokes))
	for _, stroke := range strokes {
		flat := make(Array, 0, len(stroke)*2)
		for _, pt := range stroke {
			flat = append(flat, Real(pt.X), Real(pt.Y))
			if first {
				rect = Rectangle{LLX: pt.X, LLY: pt.Y, URX: pt.X, URY: pt.Y}
				first = false
			} else {
				rect.LLX = minF(rect.LLX, pt.X)
				rect.LLY = minF(rect.LLY, pt.Y)
				rect.URX = maxF(rect.URX, pt.X)
				rect.URY = maxF(rect.URY, pt.Y)
			}
		}
		inkList = append(inkList, flat)
	}
	rect.LLX -= width + 2
	rect.LLY -= width + 2
	rect.URX += width + 2
	rect.URY += width + 2
	d := baseAnnot("Ink", rect)
	d["InkList"] = inkList
	d["C"] = colorArray(color)
	d["BS"] = borderStyle(width)
	withOpacity(d, opacity)
	return p.addAnnot(d), nil
}

// AddFreeText attaches a FreeText annotation using Helvetica.
func (p *Page) AddFreeText(rect Rectangle, text string, color [3]float64, fontSize float64) Ref {
	d := baseAnnot("FreeText", rect)
	d["Contents"] = textString(text)
	d["DA"] = String(fmt.Sprintf("%s %s %s rg /Helv %s Tf",
		fmtFloat(color[0]), fmtFloat(color[1]), fmtFloat(color[2]), fmtFloat(fontSize)))
	d["Q"] = Integer(0)
	d["C"] = Array{} // transparent background
	return p.addAnnot(d)
}

// textString encodes a PDF text string, using UTF-16BE with BOM only
// when ASCII will not do.
func textString(s string) String {
	ascii := true
	for _, r := range s {
		if r > 0x7E {
			ascii = false
			break
		}
	}
	if ascii {
		return String(s)
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2, 2+len(units)*2)
	out[0], out[1] = 0xFE, 0xFF
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return String(out)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
