// Package images - Frame and geometry primitives shared by the detection pipeline.
package images

import (
	"github.com/chewxy/math32"
)

// Rect is an axis-aligned box in float coordinates.
//
// Depending on where it is used the coordinates are either pixels of the model input
// or values normalized to [0, 1] of the original (oriented) frame.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the rect, never negative.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the rect, never negative.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns Width() * Height().
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Canonical returns the rect with its corners ordered so that X1 <= X2 and Y1 <= Y2.
func (r Rect) Canonical() Rect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// Clamp limits every coordinate to [lo, hi].
func (r Rect) Clamp(lo, hi float32) Rect {
	return Rect{
		X1: clamp(r.X1, lo, hi),
		Y1: clamp(r.Y1, lo, hi),
		X2: clamp(r.X2, lo, hi),
		Y2: clamp(r.Y2, lo, hi),
	}
}

// Scale multiplies the x coordinates by sx and the y coordinates by sy.
func (r Rect) Scale(sx, sy float32) Rect {
	return Rect{X1: r.X1 * sx, Y1: r.Y1 * sy, X2: r.X2 * sx, Y2: r.Y2 * sy}
}

// FromCenter builds a corner rect from a center point and a size.
func FromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// CalculateIoU returns the intersection over union of two rects.
//
// The intersection is bounded by the larger of the top-left corners and the smaller of the
// bottom-right corners. The union follows inclusion-exclusion:
//
//	Area(A ∪ B) = Area(A) + Area(B) - Area(A ∩ B)
//
// Arguments:
//   - r: The first rect.
//   - o: The rect to compare against.
//
// Returns:
//   - float32: A value in [0, 1]. Disjoint rects and a zero-area union yield 0.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0
	}

	return interArea / unionArea
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(hi, math32.Max(lo, v))
}
