package inference

import (
	"fmt"
	"image"

	"github.com/nvr-ai/go-ripeness/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
)

// DefaultInputSize is used for dynamic spatial input dimensions when none is configured.
var DefaultInputSize = image.Point{X: 640, Y: 640}

// ONNXSessionFactory builds ONNX Runtime sessions.
type ONNXSessionFactory struct {
	// LibraryPath is the ONNX Runtime shared library. Empty means the platform default.
	LibraryPath string
	// InputSize resolves dynamic height and width input dimensions.
	InputSize image.Point
	// Layout places the channel dimension when resolving a dynamic input.
	Layout InputLayout
}

// InputLayout describes how a four-dimensional image input is ordered.
type InputLayout struct {
	// ChannelsLast is true for NHWC inputs and false for NCHW.
	ChannelsLast bool
	// Channels fills a dynamic channel dimension. Zero means three.
	Channels int
}

// NewSession creates an ONNX Runtime session for an in-memory model.
//
// Order of operations:
//  1. Environment setup, once per process.
//  2. Model I/O inspection to resolve the fixed input shape.
//  3. Input tensor allocation, reused by every Run.
//  4. Session options with the backend's execution provider.
//  5. Session creation, releasing the input tensor if it fails.
//
// Arguments:
//   - model: The serialized ONNX model.
//   - backend: The backend to bind.
//
// Returns:
//   - Session: The session.
//   - error: An error if any step fails.
func (f ONNXSessionFactory) NewSession(model []byte, backend providers.Config) (Session, error) {
	if err := providers.InitializeEnvironment(f.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, errors.Wrap(err, "error reading model inputs and outputs")
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("expected a single input and at least one output, got %d and %d",
			len(inputs), len(outputs))
	}
	if inputs[0].DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("input %q must be float32, got %v", inputs[0].Name, inputs[0].DataType)
	}

	size := f.InputSize
	if size.X <= 0 || size.Y <= 0 {
		size = DefaultInputSize
	}
	inputShape := ResolveInputShape(inputs[0].Dimensions, size, f.Layout)

	input, err := ort.NewEmptyTensor[float32](toShape(inputShape))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	options, err := providers.NewSessionOptions(backend)
	if err != nil {
		input.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(
		model,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		options,
	)
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &ONNXSession{
		session:    session,
		input:      input,
		inputShape: inputShape,
	}, nil
}

// ONNXSession is a Session backed by ONNX Runtime.
type ONNXSession struct {
	session    *ort.DynamicAdvancedSession
	input      *ort.Tensor[float32]
	inputShape []int
}

// Run copies input into the preallocated input tensor, runs the model and copies the first
// output out.
func (s *ONNXSession) Run(input *Tensor) (*Tensor, error) {
	buf := s.input.GetData()
	if len(buf) != input.Len() {
		return nil, fmt.Errorf("input holds %d values, session expects %d", input.Len(), len(buf))
	}
	copy(buf, input.Data)

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{s.input}, outputs); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	shape := make([]int, len(out.GetShape()))
	for i, d := range out.GetShape() {
		shape[i] = int(d)
	}

	return NewTensor(shape, append([]float32(nil), out.GetData()...))
}

// InputShape returns the fixed input shape.
func (s *ONNXSession) InputShape() []int {
	return s.inputShape
}

// Close releases the native session and tensors.
func (s *ONNXSession) Close() error {
	var err error
	if s.input != nil {
		err = multierr.Append(err, s.input.Destroy())
		s.input = nil
	}
	if s.session != nil {
		err = multierr.Append(err, errors.Wrap(s.session.Destroy(), "error destroying ORT session"))
		s.session = nil
	}
	return err
}

// ResolveInputShape replaces dynamic (non-positive) dimensions of an image input with concrete
// sizes: batch 1, the layout's channel count, and size for height and width. Dimensions are
// read as NCHW, or NHWC when layout.ChannelsLast is set.
func ResolveInputShape(dims ort.Shape, size image.Point, layout InputLayout) []int {
	channels := layout.Channels
	if channels <= 0 {
		channels = 3
	}
	// Position of each logical dimension in the shape.
	c, h, w := 1, 2, 3
	if layout.ChannelsLast {
		c, h, w = 3, 1, 2
	}

	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
		if d > 0 {
			continue
		}
		switch i {
		case 0:
			shape[i] = 1
		case c:
			shape[i] = channels
		case h:
			shape[i] = size.Y
		case w:
			shape[i] = size.X
		default:
			shape[i] = 1
		}
	}
	return shape
}

func toShape(dims []int) ort.Shape {
	s := make(ort.Shape, len(dims))
	for i, d := range dims {
		s[i] = int64(d)
	}
	return s
}
