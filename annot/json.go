package annot

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pagemark/pagemark/coords"
)

// Wire format of a save request, matching what the editing client posts:
//
//	{"actions": [{"type": "highlight", "page": 0, "rect": [x0,y0,x1,y1],
//	              "color": [r,g,b], "thickness": 2, "opacity": 0.35,
//	              "viewport": {"w": 800, "h": 1035}}, ...]}
//
// "points" holds an endpoint pair for line/arrow and a stroke set for ink.
// The legacy kind names shape_rect and shape_circle are accepted on input.

type wireViewport struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type wireAction struct {
	Type         string          `json:"type"`
	Page         int             `json:"page"`
	Rect         []float64       `json:"rect,omitempty"`
	Points       json.RawMessage `json:"points,omitempty"`
	Color        []int           `json:"color,omitempty"`
	Thickness    float64         `json:"thickness,omitempty"`
	Opacity      *float64        `json:"opacity,omitempty"`
	Text         string          `json:"text,omitempty"`
	FontSize     float64         `json:"font_size,omitempty"`
	ImageDataURL string          `json:"image_data_url,omitempty"`
	Viewport     *wireViewport   `json:"viewport,omitempty"`
}

var kindAliases = map[string]Kind{
	"shape_rect":   KindRectangle,
	"shape_circle": KindEllipse,
	"circle":       KindEllipse,
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	kind := Kind(w.Type)
	if alias, ok := kindAliases[w.Type]; ok {
		kind = alias
	}
	a.Kind = kind
	a.Page = w.Page

	if len(w.Rect) >= 4 {
		a.Rect = coords.Rect{X0: w.Rect[0], Y0: w.Rect[1], X1: w.Rect[2], Y1: w.Rect[3]}
	}
	if len(w.Points) > 0 {
		if err := a.decodePoints(w.Points); err != nil {
			return err
		}
	}

	a.Style = Style{
		Color:     colorFromWire(w.Color, kind),
		Thickness: w.Thickness,
		Opacity:   opacityFromWire(w.Opacity, kind),
		FontSize:  w.FontSize,
		Text:      w.Text,
	}
	if a.Style.Thickness <= 0 {
		a.Style.Thickness = 2
	}

	if w.ImageDataURL != "" {
		img, err := DecodeDataURL(w.ImageDataURL)
		if err != nil {
			return fmt.Errorf("decode image payload: %w", err)
		}
		a.Image = img
	}
	if w.Viewport != nil {
		a.Viewport = coords.Size{W: w.Viewport.W, H: w.Viewport.H}
	}
	return nil
}

func (a *Action) decodePoints(raw json.RawMessage) error {
	if a.Kind == KindInk {
		var strokes [][][2]float64
		if err := json.Unmarshal(raw, &strokes); err != nil {
			return fmt.Errorf("ink points: %w", err)
		}
		a.Strokes = make([][]coords.Point, len(strokes))
		for i, s := range strokes {
			pts := make([]coords.Point, len(s))
			for j, p := range s {
				pts[j] = coords.Point{X: p[0], Y: p[1]}
			}
			a.Strokes[i] = pts
		}
		return nil
	}
	var pair [][2]float64
	if err := json.Unmarshal(raw, &pair); err != nil {
		return fmt.Errorf("points: %w", err)
	}
	for i := 0; i < len(pair) && i < 2; i++ {
		a.Points[i] = coords.Point{X: pair[i][0], Y: pair[i][1]}
	}
	return nil
}

func (a *Action) MarshalJSON() ([]byte, error) {
	w := wireAction{
		Type:      string(a.Kind),
		Page:      a.Page,
		Color:     []int{int(a.Style.Color[0]), int(a.Style.Color[1]), int(a.Style.Color[2])},
		Thickness: a.Style.Thickness,
		Text:      a.Style.Text,
		FontSize:  a.Style.FontSize,
	}
	if a.Style.Opacity > 0 {
		op := a.Style.Opacity
		w.Opacity = &op
	}
	if a.Viewport != (coords.Size{}) {
		w.Viewport = &wireViewport{W: a.Viewport.W, H: a.Viewport.H}
	}
	switch {
	case a.Kind.RectLike():
		w.Rect = []float64{a.Rect.X0, a.Rect.Y0, a.Rect.X1, a.Rect.Y1}
	case a.Kind.PointPair():
		pts, err := json.Marshal([][2]float64{
			{a.Points[0].X, a.Points[0].Y},
			{a.Points[1].X, a.Points[1].Y},
		})
		if err != nil {
			return nil, err
		}
		w.Points = pts
	case a.Kind == KindInk:
		strokes := make([][][2]float64, len(a.Strokes))
		for i, s := range a.Strokes {
			out := make([][2]float64, len(s))
			for j, p := range s {
				out[j] = [2]float64{p.X, p.Y}
			}
			strokes[i] = out
		}
		pts, err := json.Marshal(strokes)
		if err != nil {
			return nil, err
		}
		w.Points = pts
	}
	if len(a.Image) > 0 {
		w.ImageDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(a.Image)
	}
	return json.Marshal(w)
}

// Validate checks the action against the structural rules that abort a
// whole save: unknown kind, page out of range, missing geometry.
func (a *Action) Validate(pageCount int) error {
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown annotation kind %q", a.Kind)
	}
	if a.Page < 0 || a.Page >= pageCount {
		return fmt.Errorf("page %d out of range (document has %d pages)", a.Page, pageCount)
	}
	switch {
	case a.Kind.RectLike():
		if a.Rect == (coords.Rect{}) {
			return fmt.Errorf("%s action missing rect geometry", a.Kind)
		}
	case a.Kind.PointPair():
		if a.Points[0] == a.Points[1] && a.Points[0] == (coords.Point{}) {
			return fmt.Errorf("%s action missing endpoint geometry", a.Kind)
		}
	case a.Kind == KindInk:
		if len(a.Strokes) == 0 {
			return fmt.Errorf("ink action missing strokes")
		}
	}
	return nil
}

// DecodeDataURL extracts the raw bytes from a base64 data URL. Bare
// base64 without the data: prefix is accepted too.
func DecodeDataURL(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

func colorFromWire(c []int, kind Kind) [3]uint8 {
	if len(c) < 3 {
		if kind == KindHighlight || kind == KindStrikeout {
			return [3]uint8{255, 255, 0}
		}
		return [3]uint8{}
	}
	clamp := func(v int) uint8 {
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v)
	}
	return [3]uint8{clamp(c[0]), clamp(c[1]), clamp(c[2])}
}

func opacityFromWire(op *float64, kind Kind) float64 {
	if op != nil {
		v := *op
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	switch kind {
	case KindHighlight:
		return 0.35
	case KindStrikeout:
		return 0.25
	default:
		return 1
	}
}
