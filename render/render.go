// Package render produces page previews. Rasterizing PDF content
// needs a full imaging stack, so the real renderer is a pluggable
// interface; the built-in Placeholder draws page-sized blanks, which
// keeps the preview endpoints functional without one.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/pagemark/pagemark/pdf"
)

// DPI bounds for page rendering; requests outside are clamped.
const (
	MinDPI  = 72
	MaxDPI  = 300
	BaseDPI = 144
)

// ThumbWidth is the pixel width of page thumbnails.
const ThumbWidth = 160

// Rasterizer turns one page into a PNG at the given DPI.
type Rasterizer interface {
	RenderPage(doc *pdf.Document, page int, dpi float64) ([]byte, error)
}

// DPIForZoom maps a viewer zoom factor to a render DPI, clamped to the
// supported range. Zoom 1.0 renders at BaseDPI.
func DPIForZoom(zoom float64) float64 {
	if zoom <= 0 {
		zoom = 1
	}
	return math.Min(MaxDPI, math.Max(MinDPI, BaseDPI*zoom))
}

// Placeholder renders blank white pages with a hairline frame at the
// exact pixel dimensions a real rasterizer would produce.
type Placeholder struct{}

func (Placeholder) RenderPage(doc *pdf.Document, pageIndex int, dpi float64) ([]byte, error) {
	page, err := doc.Page(pageIndex)
	if err != nil {
		return nil, err
	}
	size := page.Size()
	w := int(math.Ceil(size.W * dpi / 72))
	h := int(math.Ceil(size.H * dpi / 72))
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("render: degenerate page size %+v", size)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	white := color.RGBA{255, 255, 255, 255}
	frame := color.RGBA{208, 208, 208, 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				img.Set(x, y, frame)
			} else {
				img.Set(x, y, white)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render: encoding page: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail downscales a rendered page PNG to ThumbWidth, preserving
// aspect ratio.
func Thumbnail(pageData []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pageData))
	if err != nil {
		return nil, fmt.Errorf("render: decoding page for thumbnail: %w", err)
	}
	b := src.Bounds()
	if b.Dx() <= ThumbWidth {
		return pageData, nil
	}
	th := int(math.Round(float64(b.Dy()) * ThumbWidth / float64(b.Dx())))
	if th < 1 {
		th = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, ThumbWidth, th))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("render: encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
