// Package coords converts between viewport pixel space (the rendered
// preview canvas, whose size varies with zoom) and document space (the
// fixed physical units of one page).
package coords

import (
	"errors"
	"math"
)

// Point is a location in either coordinate space.
type Point struct{ X, Y float64 }

// Size is the width/height of a viewport or page.
type Size struct{ W, H float64 }

// Rect is an axis-aligned rectangle. Callers are expected to keep
// X0 <= X1 and Y0 <= Y1; Normalize restores that invariant.
type Rect struct{ X0, Y0, X1, Y1 float64 }

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Normalize swaps coordinates so that X0 <= X1 and Y0 <= Y1.
func (r Rect) Normalize() Rect {
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

// Contains reports whether p lies inside r (inclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X0 && p.X <= r.X1 && p.Y >= r.Y0 && p.Y <= r.Y1
}

// Inset grows (negative d) or shrinks (positive d) r on all sides.
func (r Rect) Inset(d float64) Rect {
	return Rect{r.X0 + d, r.Y0 + d, r.X1 - d, r.Y1 - d}
}

// Matrix is a 2D affine transform [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2], m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2], m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4], m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// DocumentScale returns the transform taking viewport pixels to document
// units. Each axis scales independently; a degenerate viewport dimension
// is treated as one pixel so the transform stays finite.
func DocumentScale(viewport, page Size) Matrix {
	return Scale(page.W/math.Max(1, viewport.W), page.H/math.Max(1, viewport.H))
}

// ToDocumentPoint maps one viewport-pixel point into document space.
func ToDocumentPoint(p Point, viewport, page Size) Point {
	return DocumentScale(viewport, page).Transform(p)
}

// ToDocumentRect maps a viewport-pixel rectangle into document space.
func ToDocumentRect(r Rect, viewport, page Size) Rect {
	m := DocumentScale(viewport, page)
	p0 := m.Transform(Point{r.X0, r.Y0})
	p1 := m.Transform(Point{r.X1, r.Y1})
	return Rect{p0.X, p0.Y, p1.X, p1.Y}
}
