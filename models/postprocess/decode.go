package postprocess

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-ripeness/images"
	"github.com/nvr-ai/go-ripeness/inference"
	"github.com/nvr-ai/go-ripeness/models/model/preprocess"
	"github.com/pkg/errors"
)

// Labeler resolves class indices to names.
type Labeler interface {
	Name(idx int) string
	Len() int
}

// Layout is the arrangement of the two non-batch output dimensions.
type Layout int

const (
	// LayoutAuto infers the layout from the label count, falling back to the shorter
	// dimension being the attribute axis.
	LayoutAuto Layout = iota
	// LayoutRowMajor is [numCandidates, 4+numClasses].
	LayoutRowMajor
	// LayoutChannelMajor is [4+numClasses, numCandidates], the usual YOLOv8 export.
	LayoutChannelMajor
)

// BoxFormat tells how the cx, cy, w, h values are scaled.
type BoxFormat int

const (
	// BoxNormalized means values are fractions of the model input size.
	BoxNormalized BoxFormat = iota
	// BoxPixels means values are model input pixels.
	BoxPixels
	// BoxAuto treats the output as pixels when any coordinate exceeds 2.
	BoxAuto
)

// DecodeOptions controls how raw output is interpreted.
type DecodeOptions struct {
	Layout    Layout
	BoxFormat BoxFormat
}

// Decode converts raw detector output into detections above threshold.
//
// For every candidate row the class with the highest score wins (the lowest index on ties).
// Rows whose best score is below threshold are dropped; nothing else is. Boxes are
// converted from center form to corners, mapped back through the letterbox, normalized to
// the oriented frame and clamped to [0, 1]. Candidate order is preserved.
//
// Arguments:
//   - output: The model output, optionally with leading batch dimensions of size one.
//   - labels: Class names.
//   - threshold: Minimum confidence.
//   - box: The letterbox the input was prepared with.
//   - opts: Layout and box scaling.
//
// Returns:
//   - []Detection: The candidates above threshold.
//   - error: An error if the output shape cannot be interpreted.
func Decode(
	output *inference.Tensor,
	labels Labeler,
	threshold float32,
	box preprocess.Letterbox,
	opts DecodeOptions,
) ([]Detection, error) {
	if output == nil {
		return nil, errors.New("output tensor is nil")
	}
	if !box.Valid() {
		return nil, fmt.Errorf("invalid letterbox %+v", box)
	}

	rows, err := asRows(output.Squeeze(), labels, opts.Layout)
	if err != nil {
		return nil, err
	}

	numCandidates, attrs := rows.Shape[0], rows.Shape[1]
	data := rows.Data

	scaleX, scaleY := float32(box.DstWidth), float32(box.DstHeight)
	switch opts.BoxFormat {
	case BoxPixels:
		scaleX, scaleY = 1, 1
	case BoxAuto:
		if looksLikePixels(data, numCandidates, attrs) {
			scaleX, scaleY = 1, 1
		}
	}

	detections := make([]Detection, 0)
	for i := 0; i < numCandidates; i++ {
		row := data[i*attrs : (i+1)*attrs]

		classID := 0
		best := float32(math32.Inf(-1))
		for c, score := range row[4:] {
			if score > best {
				best = score
				classID = c
			}
		}
		if !(best >= threshold) {
			continue
		}

		modelBox := images.FromCenter(row[0], row[1], row[2], row[3]).Scale(scaleX, scaleY)

		detections = append(detections, Detection{
			Box:        box.ToNormalized(modelBox),
			Confidence: best,
			ClassIndex: classID,
			ClassName:  labels.Name(classID),
		})
	}

	return detections, nil
}

// asRows returns the output as a [numCandidates, 4+numClasses] tensor.
func asRows(t *inference.Tensor, labels Labeler, layout Layout) (*inference.Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("expected a 2D output after removing batch dimensions, got shape %v", t.Shape)
	}
	a, b := t.Shape[0], t.Shape[1]

	if layout == LayoutAuto {
		want := labels.Len() + 4
		switch {
		case b == want:
			layout = LayoutRowMajor
		case a == want:
			layout = LayoutChannelMajor
		case a < b:
			layout = LayoutChannelMajor
		default:
			layout = LayoutRowMajor
		}
	}

	if layout == LayoutChannelMajor {
		transposed, err := t.Transposed()
		if err != nil {
			return nil, err
		}
		t = transposed
	}

	if t.Shape[1] <= 4 {
		return nil, fmt.Errorf("output rows carry %d values, need 4 box values and at least one class score", t.Shape[1])
	}
	return t, nil
}

func looksLikePixels(data []float32, n, attrs int) bool {
	for i := 0; i < n; i++ {
		for _, v := range data[i*attrs : i*attrs+4] {
			if v > 2 {
				return true
			}
		}
	}
	return false
}
