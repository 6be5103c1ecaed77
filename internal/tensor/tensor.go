// Package tensor holds a small dense, row-major N-dimensional array used to
// move epoch data into the inference runtime and results back out as JSON.
package tensor

import (
	"errors"
	"fmt"
)

// Number is the set of element types the service exchanges with models.
type Number interface {
	~float32 | ~float64 | ~int32 | ~int64
}

var ErrShape = errors.New("tensor: shape does not match data")

// Tensor is a dense row-major array. Shape and Data are exported so callers
// can hand them to runtimes without copying.
type Tensor[T Number] struct {
	Shape []int
	Data  []T
}

// New validates that data holds exactly prod(shape) elements.
func New[T Number](shape []int, data []T) (*Tensor[T], error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension %d", ErrShape, d)
		}
		n *= d
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, got %d", ErrShape, shape, n, len(data))
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor[T]{Shape: s, Data: data}, nil
}

// Zeros allocates a tensor of the given shape.
func Zeros[T Number](shape ...int) *Tensor[T] {
	n := 1
	for _, d := range shape {
		n *= d
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor[T]{Shape: s, Data: make([]T, n)}
}

// Len returns the size of the first axis, or 0 for a scalar.
func (t *Tensor[T]) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Index returns the i-th sub-tensor along the first axis. The returned
// tensor shares its backing array with t.
func (t *Tensor[T]) Index(i int) (*Tensor[T], error) {
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("%w: cannot index a scalar", ErrShape)
	}
	if i < 0 || i >= t.Shape[0] {
		return nil, fmt.Errorf("tensor: index %d out of range [0,%d)", i, t.Shape[0])
	}
	stride := len(t.Data) / max(t.Shape[0], 1)
	return &Tensor[T]{
		Shape: append([]int(nil), t.Shape[1:]...),
		Data:  t.Data[i*stride : (i+1)*stride],
	}, nil
}

// Stack joins equally shaped tensors along a new first axis.
func Stack[T Number](parts []*Tensor[T]) (*Tensor[T], error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrShape)
	}
	inner := parts[0].Shape
	data := make([]T, 0, len(parts)*len(parts[0].Data))
	for i, p := range parts {
		if !sameShape(p.Shape, inner) {
			return nil, fmt.Errorf("%w: part %d has shape %v, want %v", ErrShape, i, p.Shape, inner)
		}
		data = append(data, p.Data...)
	}
	shape := append([]int{len(parts)}, inner...)
	return &Tensor[T]{Shape: shape, Data: data}, nil
}

// Nested converts the tensor into nested []any slices of float64 suitable
// for encoding/json. A scalar becomes a bare number.
func (t *Tensor[T]) Nested() any {
	if len(t.Shape) == 0 {
		if len(t.Data) == 0 {
			return []any{}
		}
		return float64(t.Data[0])
	}
	v, _ := nest(t.Shape, t.Data)
	return v
}

func nest[T Number](shape []int, data []T) (any, int) {
	if len(shape) == 1 {
		out := make([]any, shape[0])
		for i := range out {
			out[i] = float64(data[i])
		}
		return out, shape[0]
	}
	out := make([]any, shape[0])
	off := 0
	for i := range out {
		v, n := nest(shape[1:], data[off:])
		out[i] = v
		off += n
	}
	return out, off
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
