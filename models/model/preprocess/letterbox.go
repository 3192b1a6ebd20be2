package preprocess

import "github.com/nvr-ai/go-ripeness/images"

// Letterbox records how an oriented frame was placed on the model input canvas.
type Letterbox struct {
	// ScaleX and ScaleY are the effective resize factors (resized size / source size).
	// They differ from each other only by rounding of the resized size.
	ScaleX, ScaleY float64
	// PadLeft and PadTop are the canvas offsets of the resized image, in model pixels.
	PadLeft, PadTop int
	// SrcWidth and SrcHeight are the oriented frame dimensions.
	SrcWidth, SrcHeight int
	// DstWidth and DstHeight are the model input dimensions.
	DstWidth, DstHeight int
}

// ToSource maps a point in model input pixels to oriented frame pixels.
func (l Letterbox) ToSource(x, y float32) (float32, float32) {
	return (x - float32(l.PadLeft)) / float32(l.ScaleX),
		(y - float32(l.PadTop)) / float32(l.ScaleY)
}

// FromSource maps a point in oriented frame pixels to model input pixels.
func (l Letterbox) FromSource(x, y float32) (float32, float32) {
	return x*float32(l.ScaleX) + float32(l.PadLeft),
		y*float32(l.ScaleY) + float32(l.PadTop)
}

// ToNormalized maps a rect in model input pixels to the oriented frame, normalized to [0, 1].
//
// The result is canonical (X1 <= X2, Y1 <= Y2) and clamped, so boxes reaching into the padding
// are cut at the frame edge.
func (l Letterbox) ToNormalized(r images.Rect) images.Rect {
	x1, y1 := l.ToSource(r.X1, r.Y1)
	x2, y2 := l.ToSource(r.X2, r.Y2)

	out := images.Rect{
		X1: x1 / float32(l.SrcWidth),
		Y1: y1 / float32(l.SrcHeight),
		X2: x2 / float32(l.SrcWidth),
		Y2: y2 / float32(l.SrcHeight),
	}

	return out.Canonical().Clamp(0, 1)
}

// Valid reports whether the letterbox describes a usable mapping.
func (l Letterbox) Valid() bool {
	return l.ScaleX > 0 && l.ScaleY > 0 && l.SrcWidth > 0 && l.SrcHeight > 0 &&
		l.DstWidth > 0 && l.DstHeight > 0
}
