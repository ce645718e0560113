package audio

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ErrShapeMismatch is returned by Stack when tensors have different shapes.
var ErrShapeMismatch = errors.New("audio tensor shapes do not match")

// Tensor is a dense float32 tensor kept in a contiguous row-major buffer.
// Converting into a gomlx tensor is done with ToGomlx.
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor validates that data fits shape and returns the tensor.
func NewTensor(data []float32, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Tensor{Data: data, Shape: slices.Clone(shape)}, nil
}

// FromWaveform lays out the waveform as a (channels, samples) tensor.
func FromWaveform(w *Waveform) (*Tensor, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	c, n := w.Channels(), w.Len()
	data := make([]float32, c*n)
	for i, ch := range w.Samples {
		copy(data[i*n:], ch)
	}
	return &Tensor{Data: data, Shape: []int{c, n}}, nil
}

// NumElements returns the product of the tensor dimensions.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Stack joins tensors of identical shape along a new leading dimension.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.New("cannot stack zero tensors")
	}
	if ts[0] == nil {
		return nil, errors.New("tensor 0 is nil")
	}
	shape := ts[0].Shape
	per := ts[0].NumElements()
	data := make([]float32, 0, per*len(ts))
	for i, t := range ts {
		if t == nil {
			return nil, fmt.Errorf("tensor %d is nil", i)
		}
		if !slices.Equal(t.Shape, shape) {
			return nil, fmt.Errorf("%w: tensor %d has shape %v, expected %v", ErrShapeMismatch, i, t.Shape, shape)
		}
		data = append(data, t.Data...)
	}
	return &Tensor{Data: data, Shape: append([]int{len(ts)}, shape...)}, nil
}

// ToGomlx converts the tensor into a gomlx tensor with the same shape.
func (t *Tensor) ToGomlx() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(t.Data, t.Shape...)
}
