// Package images - Camera frame definition.
package images

import (
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// Rotation is a clockwise rotation hint in degrees attached to a frame by the camera.
type Rotation int

// Rotation constants
const (
	// Rotate0 leaves the frame as captured.
	Rotate0 Rotation = 0
	// Rotate90 turns the frame a quarter turn clockwise.
	Rotate90 Rotation = 90
	// Rotate180 turns the frame upside down.
	Rotate180 Rotation = 180
	// Rotate270 turns the frame a quarter turn counter-clockwise.
	Rotate270 Rotation = 270
)

// ParseRotation normalizes any multiple of 90 degrees (negative values included) to one of the
// Rotation constants.
func ParseRotation(degrees int) (Rotation, error) {
	if degrees%90 != 0 {
		return Rotate0, fmt.Errorf("rotation must be a multiple of 90 degrees, got %d", degrees)
	}
	d := ((degrees % 360) + 360) % 360
	return Rotation(d), nil
}

// Frame is a single camera frame handed to the detector.
//
// The pixels are owned by the pipeline for the duration of one detect call. The orientation
// hints describe what must happen to the pixels before they are upright from the viewer's
// perspective.
type Frame struct {
	// Image holds the raw pixels as captured.
	Image image.Image `json:"-" yaml:"-"`
	// Rotation is applied clockwise before anything else.
	Rotation Rotation `json:"rotation" yaml:"rotation"`
	// Mirror flips the frame horizontally after rotation (front-facing cameras).
	Mirror bool `json:"mirror" yaml:"mirror"`
	// Timestamp is the capture time, informational only.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewFrame wraps an image with no orientation hints.
func NewFrame(img image.Image) Frame {
	return Frame{Image: img, Timestamp: time.Now()}
}

// Validate reports whether the frame carries usable pixels.
func (f Frame) Validate() error {
	if f.Image == nil {
		return fmt.Errorf("frame has no image")
	}
	b := f.Image.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("invalid frame dimensions: %dx%d", b.Dx(), b.Dy())
	}
	if _, err := ParseRotation(int(f.Rotation)); err != nil {
		return err
	}
	return nil
}

// Oriented returns the frame pixels with rotation and mirroring applied.
//
// The returned image is a new allocation unless the frame needs no transformation, in which
// case the original image is returned untouched.
func (f Frame) Oriented() image.Image {
	img := f.Image
	r, _ := ParseRotation(int(f.Rotation))

	// imaging rotates counter-clockwise.
	switch r {
	case Rotate90:
		img = imaging.Rotate270(img)
	case Rotate180:
		img = imaging.Rotate180(img)
	case Rotate270:
		img = imaging.Rotate90(img)
	}

	if f.Mirror {
		img = imaging.FlipH(img)
	}

	return img
}

// OrientedSize returns the width and height the frame has after orientation.
func (f Frame) OrientedSize() (int, int) {
	b := f.Image.Bounds()
	r, _ := ParseRotation(int(f.Rotation))
	if r == Rotate90 || r == Rotate270 {
		return b.Dy(), b.Dx()
	}
	return b.Dx(), b.Dy()
}
