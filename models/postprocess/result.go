// Package postprocess - Turns raw detector output into suppressed detections.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-ripeness/images"
)

// Detection represents a single detection result.
type Detection struct {
	// Box is normalized to [0, 1] of the oriented frame, with X1 <= X2 and Y1 <= Y2.
	Box images.Rect `json:"box"`
	// Confidence is the winning class score.
	Confidence float32 `json:"confidence"`
	// ClassIndex is the predicted class index.
	ClassIndex int `json:"class_index"`
	// ClassName is the label for ClassIndex.
	ClassName string `json:"class_name"`
}

// String implements fmt.Stringer.
func (d Detection) String() string {
	return fmt.Sprintf("%s (%.2f): (%.3f, %.3f), (%.3f, %.3f)",
		d.ClassName, d.Confidence, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
}

// DetectionSet is the suppressed, confidence-descending result for one frame.
type DetectionSet []Detection

// Empty reports whether the set has no detections.
func (s DetectionSet) Empty() bool {
	return len(s) == 0
}

// Labels returns the class name of every detection, in order.
func (s DetectionSet) Labels() []string {
	labels := make([]string, len(s))
	for i, d := range s {
		labels[i] = d.ClassName
	}
	return labels
}
