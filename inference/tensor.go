// Package inference - Model execution behind a swappable backend.
package inference

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Tensor is a dense float32 tensor with a fixed shape.
type Tensor struct {
	// Shape lists the dimension sizes, outermost first.
	Shape []int
	// Data holds the values in row-major order. len(Data) equals the product of Shape.
	Data []float32
}

// NewTensor wraps data with a shape, checking that the sizes agree.
//
// Arguments:
//   - shape: The dimension sizes.
//   - data: The backing values. The tensor takes ownership.
//
// Returns:
//   - *Tensor: The tensor.
//   - error: An error if the shape is empty, has a non-positive dimension, or does not match len(data).
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	n, err := volume(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("shape %v holds %d values, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Len returns the number of values.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

// Squeeze returns a view without leading batch dimensions of size one. The last two
// dimensions are always kept, so a single-row [1, N] output stays two-dimensional.
func (t *Tensor) Squeeze() *Tensor {
	shape := t.Shape
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	return &Tensor{Shape: shape, Data: t.Data}
}

// Transposed returns a new two-dimensional tensor with rows and columns swapped.
//
// Returns:
//   - *Tensor: The transposed copy.
//   - error: An error if the tensor is not two-dimensional.
func (t *Tensor) Transposed() (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("transpose needs a 2D tensor, got shape %v", t.Shape)
	}

	backing := append([]float32(nil), t.Data...)
	dense := tensor.New(tensor.WithShape(t.Shape[0], t.Shape[1]), tensor.WithBacking(backing))
	if err := dense.T(); err != nil {
		return nil, errors.Wrap(err, "transpose failed")
	}
	if err := dense.Transpose(); err != nil {
		return nil, errors.Wrap(err, "transpose failed")
	}

	data, ok := dense.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected transposed backing type %T", dense.Data())
	}

	return &Tensor{Shape: []int{t.Shape[1], t.Shape[0]}, Data: data}, nil
}

func volume(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, errors.New("shape must have at least one dimension")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	return n, nil
}
